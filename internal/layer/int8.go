package layer

import (
	"github.com/born-ml/lite/internal/allocator"
	"github.com/born-ml/lite/internal/tensor"
)

// quantizeChannels converts a pack-1 float32 blob to int8, scaling channel q by scale(q).
func quantizeChannels(bottom tensor.Mat, scale func(q int) float32, a allocator.Allocator) tensor.Mat {
	top := tensor.NewDims(bottom.Dims, bottom.W, bottom.H, bottom.C, 1, 1, a)
	if top.Empty() {
		return top
	}
	for q := range bottom.C {
		in := bottom.Channel(q).Float32s()
		out := top.Channel(q).Int8s()
		s := scale(q)
		for i := range out {
			out[i] = tensor.Float32ToInt8(in[i] * s)
		}
	}
	return top
}

// quantizeWeights converts groups of n float32 weights to int8, scaling group g by scales[g].
func quantizeWeights(w tensor.Mat, n int, scales []float32) tensor.Mat {
	src := w.Float32s()[:w.W]
	dst := tensor.New1D(w.W, 1, 1, nil)
	if dst.Empty() {
		return dst
	}
	out := dst.Int8s()
	for i, v := range src {
		out[i] = tensor.Float32ToInt8(v * scales[i/n])
	}
	return dst
}

// dequantizeWeights is the inverse of quantizeWeights; a zero scale yields zero weights.
func dequantizeWeights(w tensor.Mat, n int, scales []float32) tensor.Mat {
	src := w.Int8s()[:w.W]
	dst := tensor.New1D(w.W, 4, 1, nil)
	if dst.Empty() {
		return dst
	}
	out := dst.Float32s()
	for i, v := range src {
		if s := scales[i/n]; s != 0 {
			out[i] = float32(v) / s
		} else {
			out[i] = 0
		}
	}
	return dst
}

// dequantScale returns the factor that maps an int32 accumulator back to float32.
func dequantScale(bottomScale, weightScale float32) float32 {
	if bottomScale == 0 || weightScale == 0 {
		return 0
	}
	return 1 / (bottomScale * weightScale)
}

func isInt8(m tensor.Mat) bool {
	return !m.Empty() && m.ElemSize/m.ElemPack == 1
}
