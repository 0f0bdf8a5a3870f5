package tensor

import (
	"testing"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBFloat16RoundTrip(t *testing.T) {
	src := FromFloat32([]float32{1, -2, 0.5, 3.25, 0, 1024}, 3, 1, 2)
	bf := CastFloat32ToBFloat16(src, nil)
	require.Equal(t, 2, bf.ElemSize)
	assert.Equal(t, Float32ToBFloat16(-2), bf.Channel(0).Uint16s()[1])

	back := CastBFloat16ToFloat32(bf, nil)
	require.Equal(t, 4, back.ElemSize)
	assert.Equal(t, src.ToFloat32(), back.ToFloat32())
}

func TestBFloat16MatchesEncoding(t *testing.T) {
	vals := []float32{1.5, -0.0078125, 3.1415927, -65504, 1e-20}
	src := FromFloat32(vals, len(vals))
	defer src.Release()
	bf := CastFloat32ToBFloat16(src, nil)
	defer bf.Release()

	want := bfloat16.EncodeFloat32(vals)
	assert.Equal(t, want, bf.Bytes()[:len(want)])
	assert.Equal(t, bfloat16.DecodeFloat32(want), CastBFloat16ToFloat32(bf, nil).ToFloat32())
}

func TestBFloat16Truncates(t *testing.T) {
	v := float32(1.00390625) // 1 + 2^-8, below bf16 precision
	assert.Equal(t, float32(1), BFloat16ToFloat32(Float32ToBFloat16(v)))
}

func TestFloat16RoundTrip(t *testing.T) {
	src := FromFloat32([]float32{1, -2, 0.5, 65504, 0.25}, 5)
	half := CastFloat32ToFloat16(src, nil)
	require.Equal(t, 2, half.ElemSize)
	back := CastFloat16ToFloat32(half, nil)
	assert.Equal(t, src.ToFloat32(), back.ToFloat32())
}

func TestFloat32ToInt8(t *testing.T) {
	assert.Equal(t, int8(3), Float32ToInt8(2.5))
	assert.Equal(t, int8(-3), Float32ToInt8(-2.5))
	assert.Equal(t, int8(127), Float32ToInt8(1000))
	assert.Equal(t, int8(-127), Float32ToInt8(-1000))

	q := QuantizeFloat32ToInt8(FromFloat32([]float32{0.1, -0.5, 2}, 3), 10, nil)
	require.Equal(t, 1, q.ElemSize)
	assert.Equal(t, []int8{1, -5, 20}, q.Int8s()[:3])
}
