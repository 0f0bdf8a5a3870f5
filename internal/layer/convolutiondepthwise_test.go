package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/tensor"
)

func TestConvolutionDepthWisePerChannel(t *testing.T) {
	// Two channels, each filtered by its own 1x1 kernel.
	l := NewConvolutionDepthWise()
	kv := map[int]any{0: 2, 1: 1, 5: 1, 6: 2, 7: 2}
	setup(t, l, kv, []tensor.Mat{vec(2, -1), vec(0, 10)}, testOption())

	bottom := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2)
	defer bottom.Release()
	top, err := Forward(l, bottom, testOption())
	require.NoError(t, err)
	defer top.Release()

	assert.Equal(t, []float32{2, 4, 6, 8, 5, 4, 3, 2}, top.ToFloat32())
}

func TestConvolutionDepthWiseMatchesGroupedReference(t *testing.T) {
	// Group 2 with 2 inputs and 2 outputs per group equals two dense convolutions.
	const inch, outch, group, k, w, h = 4, 4, 2, 3, 5, 5
	var weights []float32
	for i := range outch * inch / group * k * k {
		weights = append(weights, float32(i%7)-3)
	}
	input := make([]float32, inch*w*h)
	for i := range input {
		input[i] = float32(i%5) - 2
	}

	l := NewConvolutionDepthWise()
	kv := map[int]any{0: outch, 1: k, 4: 1, 6: len(weights), 7: group}
	setup(t, l, kv, []tensor.Mat{vec(weights...)}, testOption())

	bottom := tensor.FromFloat32(input, w, h, inch)
	defer bottom.Release()
	top, err := Forward(l, bottom, testOption())
	require.NoError(t, err)
	defer top.Release()

	cg, og := inch/group, outch/group
	plane := w * h
	per := og * cg * k * k
	var want []float32
	for g := range group {
		want = append(want, referenceConv(input[g*cg*plane:(g+1)*cg*plane], w, h, cg, weights[g*per:(g+1)*per], nil, og, k, 1)...)
	}
	assert.InDeltaSlice(t, toFloat64(want), toFloat64(top.ToFloat32()), 1e-4)
}

func TestConvolutionDepthWiseGroupValidation(t *testing.T) {
	l := NewConvolutionDepthWise()
	err := l.LoadParam(params(map[int]any{0: 3, 1: 1, 6: 6, 7: 2}))
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestConvolutionDepthWiseInt8(t *testing.T) {
	const c, w, h = 2, 3, 3
	input := []float32{
		0.5, -0.25, 1, 0, 0.75, -1, 0.1, 0.2, 0.3,
		-0.5, 0.25, -1, 0, -0.75, 1, -0.1, -0.2, -0.3,
	}
	weights := []float32{1, 0.5}
	bias := []float32{0.1, -0.1}

	for _, term := range []int{1, 2} {
		opt := testOption()
		opt.UseInt8Inference = true

		l := NewConvolutionDepthWise()
		kv := map[int]any{0: c, 1: 1, 5: 1, 6: 2, 7: c, 8: term}
		mats := []tensor.Mat{vec(weights...), vec(bias...)}
		if term == 1 {
			mats = append(mats, vec(127, 127), vec(127, 127))
		} else {
			mats = append(mats, vec(127), vec(127))
		}
		setup(t, l, kv, mats, opt)
		require.Equal(t, []float32{127, 127}, l.BottomBlobInt8Scales.ToFloat32())

		bottom := tensor.FromFloat32(input, w, h, c)
		top, err := Forward(l, bottom, opt)
		require.NoError(t, err)

		got := top.ToFloat32()
		for i, v := range input {
			q := i / (w * h)
			assert.InDelta(t, v*weights[q]+bias[q], got[i], 0.02, "term %d index %d", term, i)
		}
		top.Release()
		bottom.Release()
	}
}
