package layer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/tensor"
)

func forwardInplace(t *testing.T, l Layer, kv map[int]any, m tensor.Mat) []float32 {
	t.Helper()
	setup(t, l, kv, nil, testOption())
	require.NoError(t, ForwardInplace(l, &m, testOption()))
	return m.ToFloat32()
}

func TestActivationsInplace(t *testing.T) {
	in := []float32{-2, -0.5, 0, 0.5, 3}
	cases := []struct {
		name  string
		layer Layer
		kv    map[int]any
		want  func(x float32) float32
	}{
		{"relu", NewReLU(), nil, func(x float32) float32 { return max(x, 0) }},
		{"leaky", NewReLU(), map[int]any{0: float32(0.1)}, func(x float32) float32 {
			if x < 0 {
				return x * 0.1
			}
			return x
		}},
		{"absval", NewAbsVal(), nil, func(x float32) float32 { return float32(math.Abs(float64(x))) }},
		{"sigmoid", NewSigmoid(), nil, func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) }},
		{"tanh", NewTanH(), nil, func(x float32) float32 { return float32(math.Tanh(float64(x))) }},
		{"hardsigmoid", NewHardSigmoid(), nil, func(x float32) float32 { return min(max(0.2*x+0.5, 0), 1) }},
		{"hardswish", NewHardSwish(), nil, func(x float32) float32 { return x * min(max(0.2*x+0.5, 0), 1) }},
		{"dropout", NewDropout(), map[int]any{0: float32(0.5)}, func(x float32) float32 { return x * 0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := vec(in...)
			defer m.Release()
			got := forwardInplace(t, tc.layer, tc.kv, m)
			for i, x := range in {
				assert.InDelta(t, tc.want(x), got[i], 1e-6, "input %v", x)
			}
		})
	}
}

func TestReLUBFloat16(t *testing.T) {
	src := tensor.FromFloat32([]float32{-1.5, 2, -0.25, 4}, 2, 2, 1)
	defer src.Release()
	m := tensor.CastFloat32ToBFloat16(src, nil)
	defer m.Release()

	l := NewReLU()
	setup(t, l, map[int]any{0: float32(0.5)}, nil, testOption())
	require.NoError(t, l.ForwardInplace(&m, testOption()))

	back := tensor.CastBFloat16ToFloat32(m, nil)
	defer back.Release()
	assert.Equal(t, []float32{-0.75, 2, -0.125, 4}, back.ToFloat32())
}

func TestReLUInt8(t *testing.T) {
	m := tensor.New1D(4, 1, 1, nil)
	defer m.Release()
	copy(m.Int8s(), []int8{-100, -3, 0, 7})

	l := NewReLU()
	setup(t, l, nil, nil, testOption())
	require.NoError(t, l.ForwardInplace(&m, testOption()))
	assert.Equal(t, []int8{0, 0, 0, 7}, m.Int8s()[:4])
}

func TestReLUPackedBlob(t *testing.T) {
	src := tensor.FromFloat32([]float32{-1, 1, -2, 2, -3, 3, -4, 4}, 2, 1, 4)
	defer src.Release()
	packed := tensor.ConvertPacking(src, 4, false, nil)
	defer packed.Release()
	require.Equal(t, 4, packed.ElemPack)

	l := NewReLU()
	setup(t, l, nil, nil, testOption())
	require.NoError(t, l.ForwardInplace(&packed, testOption()))

	unpacked := tensor.ConvertPacking(packed, 1, false, nil)
	defer unpacked.Release()
	assert.Equal(t, []float32{0, 1, 0, 2, 0, 3, 0, 4}, unpacked.ToFloat32())
}

func TestValidateActivation(t *testing.T) {
	assert.NoError(t, validateActivation(ActivationClip, []float32{0, 6}))
	assert.ErrorIs(t, validateActivation(ActivationLeakyReLU, nil), ErrInvalidParam)
	assert.ErrorIs(t, validateActivation(9, nil), ErrInvalidParam)

	x := []float32{-1, 3, 8}
	activate(x, ActivationClip, []float32{0, 6})
	assert.Equal(t, []float32{0, 3, 6}, x)
}
