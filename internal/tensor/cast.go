package tensor

import (
	"encoding/binary"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/born-ml/lite/internal/allocator"
)

// convertLanes builds a Mat shaped like src whose lanes are outLane bytes wide
// and fills each channel with f.
func convertLanes(src Mat, outLane int, a allocator.Allocator, f func(dst, src []byte)) Mat {
	if src.Empty() {
		return Mat{}
	}
	dst := NewDims(src.Dims, src.W, src.H, src.C, outLane*src.ElemPack, src.ElemPack, a)
	if dst.Empty() {
		return dst
	}
	for q := range src.C {
		f(dst.channelBytes(q), src.channelBytes(q))
	}
	return dst
}

// CastFloat32ToBFloat16 truncates every float32 lane of src to bfloat16.
func CastFloat32ToBFloat16(src Mat, a allocator.Allocator) Mat {
	return convertLanes(src, 2, a, func(dst, s []byte) {
		for i, v := range bytesToFloat32(s) {
			binary.LittleEndian.PutUint16(dst[2*i:], Float32ToBFloat16(v))
		}
	})
}

// CastBFloat16ToFloat32 widens every bfloat16 lane of src to float32.
func CastBFloat16ToFloat32(src Mat, a allocator.Allocator) Mat {
	return convertLanes(src, 4, a, func(dst, s []byte) {
		out := bytesToFloat32(dst)
		for i := range out {
			out[i] = BFloat16ToFloat32(binary.LittleEndian.Uint16(s[2*i:]))
		}
	})
}

// CastFloat32ToFloat16 rounds every float32 lane of src to IEEE half precision.
func CastFloat32ToFloat16(src Mat, a allocator.Allocator) Mat {
	return convertLanes(src, 2, a, func(dst, s []byte) {
		f := bytesToFloat32(s)
		for i, v := range f {
			binary.LittleEndian.PutUint16(dst[2*i:], float16.Fromfloat32(v).Bits())
		}
	})
}

// CastFloat16ToFloat32 widens every IEEE half lane of src to float32.
func CastFloat16ToFloat32(src Mat, a allocator.Allocator) Mat {
	return convertLanes(src, 4, a, func(dst, s []byte) {
		out := bytesToFloat32(dst)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(s[2*i:])).Float32()
		}
	})
}

// BFloat16ToFloat32 widens one bfloat16 value.
func BFloat16ToFloat32(v uint16) float32 {
	return bfloat16.ToFloat32(bfloat16.BF16(v))
}

// Float32ToBFloat16 truncates one float32 value to bfloat16.
func Float32ToBFloat16(v float32) uint16 {
	return uint16(bfloat16.FromFloat32(v))
}

// Float32ToInt8 rounds half away from zero and saturates to [-127, 127].
func Float32ToInt8(v float32) int8 {
	r := math.Round(float64(v))
	if r > 127 {
		return 127
	}
	if r < -127 {
		return -127
	}
	return int8(r)
}

// QuantizeFloat32ToInt8 multiplies every lane of a pack-1 float32 Mat by
// scale and converts it to int8.
func QuantizeFloat32ToInt8(src Mat, scale float32, a allocator.Allocator) Mat {
	return convertLanes(src, 1, a, func(dst, s []byte) {
		f := bytesToFloat32(s)
		for i, v := range f {
			dst[i] = byte(Float32ToInt8(v * scale))
		}
	})
}

func bytesToFloat32(b []byte) []float32 {
	return Mat{data: b}.Float32s()
}
