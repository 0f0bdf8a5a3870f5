// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/lite/allocator"
	"github.com/born-ml/lite/internal/tensor"
)

// Mat is an n-dimensional blob with reference-counted storage.
type Mat = tensor.Mat

// New1D allocates a vector of w elements.
func New1D(w, elemsize, elempack int, a allocator.Allocator) Mat {
	return tensor.New1D(w, elemsize, elempack, a)
}

// New2D allocates a w x h matrix.
func New2D(w, h, elemsize, elempack int, a allocator.Allocator) Mat {
	return tensor.New2D(w, h, elemsize, elempack, a)
}

// New3D allocates c channels of w x h elements, each channel 16-byte aligned.
func New3D(w, h, c, elemsize, elempack int, a allocator.Allocator) Mat {
	return tensor.New3D(w, h, c, elemsize, elempack, a)
}

// FromFloat32 copies vals into a new float32 Mat of the given shape (w[, h[, c]]).
// It panics when vals does not fill the shape exactly.
func FromFloat32(vals []float32, shape ...int) Mat {
	return tensor.FromFloat32(vals, shape...)
}

// ConvertPacking regroups the outermost axis of src into elements of
// outElempack lanes. The result holds its own reference.
func ConvertPacking(src Mat, outElempack int, usePadding bool, a allocator.Allocator) Mat {
	return tensor.ConvertPacking(src, outElempack, usePadding, a)
}

// CastFloat32ToBFloat16 truncates every float32 lane of src to bfloat16.
func CastFloat32ToBFloat16(src Mat, a allocator.Allocator) Mat {
	return tensor.CastFloat32ToBFloat16(src, a)
}

// CastBFloat16ToFloat32 widens every bfloat16 lane of src to float32.
func CastBFloat16ToFloat32(src Mat, a allocator.Allocator) Mat {
	return tensor.CastBFloat16ToFloat32(src, a)
}

// CastFloat32ToFloat16 rounds every float32 lane of src to half precision.
func CastFloat32ToFloat16(src Mat, a allocator.Allocator) Mat {
	return tensor.CastFloat32ToFloat16(src, a)
}

// CastFloat16ToFloat32 widens every half precision lane of src to float32.
func CastFloat16ToFloat32(src Mat, a allocator.Allocator) Mat {
	return tensor.CastFloat16ToFloat32(src, a)
}
