package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/tensor"
)

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func pool(t *testing.T, kv map[int]any, bottom tensor.Mat) tensor.Mat {
	t.Helper()
	l := NewPooling()
	setup(t, l, kv, nil, testOption())
	top, err := Forward(l, bottom, testOption())
	require.NoError(t, err)
	t.Cleanup(top.Release)
	return top
}

func TestPoolingMax(t *testing.T) {
	bottom := tensor.FromFloat32(ramp(16), 4, 4, 1)
	defer bottom.Release()
	top := pool(t, map[int]any{0: PoolMax, 1: 2, 2: 2}, bottom)
	assert.Equal(t, []float32{5, 7, 13, 15}, top.ToFloat32())
}

func TestPoolingFullPadModeCoversTail(t *testing.T) {
	bottom := tensor.FromFloat32(ramp(25), 5, 5, 1)
	defer bottom.Release()
	top := pool(t, map[int]any{0: PoolMax, 1: 2, 2: 2}, bottom)
	require.Equal(t, 3, top.W)
	require.Equal(t, 3, top.H)
	assert.Equal(t, []float32{6, 8, 9, 16, 18, 19, 21, 23, 24}, top.ToFloat32())

	valid := pool(t, map[int]any{0: PoolMax, 1: 2, 2: 2, 5: PadValid}, bottom)
	assert.Equal(t, 2, valid.W)
}

func TestPoolingAverageExcludesPadding(t *testing.T) {
	bottom := tensor.FromFloat32(ramp(16), 4, 4, 1)
	defer bottom.Release()

	top := pool(t, map[int]any{0: PoolAvg, 1: 3, 2: 1, 3: 1}, bottom)
	require.Equal(t, 4, top.W)
	// Corner window holds 0, 1, 4, 5.
	assert.InDelta(t, 2.5, top.ToFloat32()[0], 1e-6)
	// Interior window holds 0..2, 4..6, 8..10.
	assert.InDelta(t, 5, top.ToFloat32()[5], 1e-6)

	incl := pool(t, map[int]any{0: PoolAvg, 1: 3, 2: 1, 3: 1, 6: 1}, bottom)
	assert.InDelta(t, 10.0/9, incl.ToFloat32()[0], 1e-6)
}

func TestPoolingGlobal(t *testing.T) {
	bottom := tensor.FromFloat32(ramp(18), 3, 3, 2)
	defer bottom.Release()

	avg := pool(t, map[int]any{0: PoolAvg, 4: 1}, bottom)
	assert.Equal(t, 1, avg.Dims)
	assert.Equal(t, []float32{4, 13}, avg.ToFloat32())

	mx := pool(t, map[int]any{0: PoolMax, 4: 1}, bottom)
	assert.Equal(t, []float32{8, 17}, mx.ToFloat32())
}

func TestPoolingInvalidParams(t *testing.T) {
	l := NewPooling()
	assert.ErrorIs(t, l.LoadParam(params(map[int]any{0: 3, 1: 2})), ErrInvalidParam)
	assert.ErrorIs(t, l.LoadParam(params(map[int]any{0: PoolMax})), ErrInvalidParam)
}
