package layer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

func testOption() option.Option {
	return option.Option{NumThreads: 2}
}

func params(kv map[int]any) *serialization.ParamDict {
	pd := serialization.NewParamDict()
	for id, v := range kv {
		switch v := v.(type) {
		case int:
			pd.SetInt(id, v)
		case float32:
			pd.SetFloat(id, v)
		case []int:
			pd.SetInts(id, v)
		case []float32:
			pd.SetFloats(id, v)
		default:
			panic("unsupported param value")
		}
	}
	return pd
}

// setup runs LoadParam, LoadModel and CreatePipeline with the given weights.
func setup(t *testing.T, l Layer, kv map[int]any, weights []tensor.Mat, opt option.Option) {
	t.Helper()
	require.NoError(t, l.LoadParam(params(kv)))
	if weights != nil {
		require.NoError(t, l.LoadModel(serialization.NewModelBinFromMatArray(weights)))
	}
	require.NoError(t, l.CreatePipeline(opt))
	t.Cleanup(func() { _ = l.DestroyPipeline(opt) })
}

func vec(vals ...float32) tensor.Mat {
	return tensor.FromFloat32(vals, len(vals))
}

func randFloats(r *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = r.Float32()*2 - 1
	}
	return out
}

func maxAbs(vals []float32) float32 {
	var m float32
	for _, v := range vals {
		m = max(m, v, -v)
	}
	return m
}

func toFloat64(vals []float32) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = float64(v)
	}
	return out
}
