package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/tensor"
)

func TestPaddingConstant(t *testing.T) {
	l := NewPadding()
	setup(t, l, map[int]any{0: 1, 1: 1, 2: 1, 3: 1, 5: float32(9)}, nil, testOption())
	assert.True(t, l.OneBlobOnly)

	bottom := tensor.FromFloat32([]float32{1, 2, 3, 4}, 2, 2, 1)
	defer bottom.Release()
	top, err := Forward(l, bottom, testOption())
	require.NoError(t, err)
	defer top.Release()

	assert.Equal(t, []float32{
		9, 9, 9, 9,
		9, 1, 2, 9,
		9, 3, 4, 9,
		9, 9, 9, 9,
	}, top.ToFloat32())
}

func TestPaddingPerChannelValues(t *testing.T) {
	l := NewPadding()
	setup(t, l, map[int]any{2: 1, 6: 2}, []tensor.Mat{vec(-1, -2)}, testOption())

	bottom := tensor.FromFloat32([]float32{1, 2}, 1, 1, 2)
	defer bottom.Release()
	top, err := Forward(l, bottom, testOption())
	require.NoError(t, err)
	defer top.Release()
	assert.Equal(t, []float32{-1, 1, -2, 2}, top.ToFloat32())
}

func TestPaddingReplicate(t *testing.T) {
	l := NewPadding()
	setup(t, l, map[int]any{2: 2, 4: 1}, nil, testOption())

	bottom := tensor.FromFloat32([]float32{1, 2}, 2, 1, 1)
	defer bottom.Release()
	top, err := Forward(l, bottom, testOption())
	require.NoError(t, err)
	defer top.Release()
	assert.Equal(t, []float32{1, 1, 1, 2}, top.ToFloat32())
}

func TestPaddingFromReferenceBlob(t *testing.T) {
	l := NewPadding()
	setup(t, l, map[int]any{0: -233, 1: -233, 2: -233, 3: -233}, nil, testOption())
	assert.False(t, l.OneBlobOnly)

	ref := tensor.New1D(4, 4, 1, nil)
	copy(ref.Int32s(), []int32{1, 0, 0, 2})
	bottom := tensor.FromFloat32([]float32{1, 2, 3, 4}, 2, 2, 1)
	defer bottom.Release()
	defer ref.Release()

	tops, err := ForwardMulti(l, []tensor.Mat{bottom, ref}, testOption())
	require.NoError(t, err)
	defer releaseAll(tops)

	require.Len(t, tops, 1)
	assert.Equal(t, 4, tops[0].W)
	assert.Equal(t, 3, tops[0].H)
	assert.Equal(t, []float32{
		0, 0, 0, 0,
		1, 2, 0, 0,
		3, 4, 0, 0,
	}, tops[0].ToFloat32())
}
