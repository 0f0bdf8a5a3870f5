package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// int8Conv writes one 1x1 int8 convolution: weights, per-output weight
// scales, then the input scale.
func int8Conv(mw *serialization.ModelWriter, weights []int8, weightScales []float32, bottomScale float32) {
	mw.Int8(weights)
	mw.Float32(weightScales, true)
	mw.Float32([]float32{bottomScale}, true)
}

const int8ChainParam = `7767517
4 4
Input data 0 1 data 0=4 1=4 2=1
Convolution conv1 1 1 data c1 0=2 1=1 6=2 8=1
ReLU relu 1 1 c1 r1
Convolution conv2 1 1 r1 c2 0=2 1=1 6=4 8=1
`

func TestFuseInt8ThroughReLU(t *testing.T) {
	opt := testOption()
	opt.UseInt8Inference = true
	n := newTestNet(opt)
	load(t, n, int8ChainParam, modelBytes(t, func(mw *serialization.ModelWriter) {
		int8Conv(mw, []int8{1, 2}, []float32{10, 20}, 2)
		int8Conv(mw, []int8{1, 2, 3, 4}, []float32{10, 10}, 0.5)
	}))

	conv1 := n.Layers()[1].(*layer.Convolution)
	conv2 := n.Layers()[3].(*layer.Convolution)
	assert.True(t, conv1.UseInt8Requantize)
	assert.InDelta(t, 0.5, conv1.TopBlobInt8Scale, 1e-7)
	assert.False(t, conv2.UseInt8Requantize)

	in := make([]float32, 16)
	for i := range in {
		in[i] = float32(i-8) * 0.75
	}
	got := run(t, n, tensor.FromFloat32(in, 4, 4, 1), "data", "c2")

	// Reference: quantize, 1x1 conv, requantize, relu, 1x1 conv.
	want := make([]float32, 0, 2*len(in))
	mid := make([][2]float32, len(in))
	for i, x := range in {
		q := float32(tensor.Float32ToInt8(x * 2))
		for p, w := range []float32{1, 2} {
			s := float32(1) / (2 * []float32{10, 20}[p])
			mid[i][p] = max(float32(tensor.Float32ToInt8(q*w*s*0.5)), 0)
		}
	}
	for o := range 2 {
		s := float32(1) / (0.5 * 10)
		for i := range in {
			sum := mid[i][0]*float32(1+2*o) + mid[i][1]*float32(2+2*o)
			want = append(want, sum*s)
		}
	}
	assert.InDeltaSlice(t, want, got, 1e-5)
}

func TestFuseInt8IntoSplitBranches(t *testing.T) {
	param := `7767517
6 7
Input data 0 1 data 0=4 1=4 2=1
Convolution conv1 1 1 data c1 0=2 1=1 6=2 8=1
ReLU relu 1 1 c1 r1
Split split 1 2 r1 s0 s1
Convolution conv2 1 1 s0 c2 0=2 1=1 6=4 8=1
Convolution conv3 1 1 s1 c3 0=2 1=1 6=4 8=1
`
	opt := testOption()
	opt.UseInt8Inference = true
	n := newTestNet(opt)
	load(t, n, param, modelBytes(t, func(mw *serialization.ModelWriter) {
		int8Conv(mw, []int8{1, 2}, []float32{10, 20}, 2)
		int8Conv(mw, []int8{1, 2, 3, 4}, []float32{10, 10}, 0.5)
		int8Conv(mw, []int8{1, 2, 3, 4}, []float32{10, 10}, 0.25)
	}))

	conv1 := n.Layers()[1].(*layer.Convolution)
	assert.True(t, conv1.UseInt8Requantize)
	assert.InDelta(t, 0.25, conv1.TopBlobInt8Scale, 1e-7)
}

func TestNoFusionIntoPooling(t *testing.T) {
	param := `7767517
3 3
Input data 0 1 data 0=4 1=4 2=1
Convolution conv1 1 1 data c1 0=2 1=1 6=2 8=1
Pooling pool 1 1 c1 p 0=0 1=2 2=2
`
	opt := testOption()
	opt.UseInt8Inference = true
	n := newTestNet(opt)
	load(t, n, param, modelBytes(t, func(mw *serialization.ModelWriter) {
		int8Conv(mw, []int8{1, 2}, []float32{10, 20}, 2)
	}))

	conv1 := n.Layers()[1].(*layer.Convolution)
	assert.False(t, conv1.UseInt8Requantize)
}

func TestNoFusionForFloatWeights(t *testing.T) {
	opt := testOption()
	opt.UseInt8Inference = true
	n := newTestNet(opt)
	load(t, n, int8ChainParam, modelBytes(t, func(mw *serialization.ModelWriter) {
		mw.Float32([]float32{0.1, 0.1}, false)
		mw.Float32([]float32{10, 20}, true)
		mw.Float32([]float32{2}, true)
		int8Conv(mw, []int8{1, 2, 3, 4}, []float32{10, 10}, 0.5)
	}))

	conv1 := n.Layers()[1].(*layer.Convolution)
	require.False(t, conv1.QuantizedWeights())
	assert.False(t, conv1.UseInt8Requantize)
}

func TestFuseInt8BackToBack(t *testing.T) {
	tests := []struct {
		name  string
		param string
		next  func(mw *serialization.ModelWriter)
		want  float32
	}{
		{
			name: "convolution",
			param: `7767517
3 3
Input data 0 1 data 0=4 1=4 2=1
Convolution conv1 1 1 data c1 0=2 1=1 6=2 8=1
Convolution conv2 1 1 c1 c2 0=2 1=1 6=4 8=1
`,
			next: func(mw *serialization.ModelWriter) {
				int8Conv(mw, []int8{1, 2, 3, 4}, []float32{10, 10}, 0.375)
			},
			want: 0.375,
		},
		{
			name: "depthwise",
			param: `7767517
3 3
Input data 0 1 data 0=4 1=4 2=1
Convolution conv1 1 1 data c1 0=2 1=1 6=2 8=1
ConvolutionDepthWise dw 1 1 c1 c2 0=2 1=1 6=2 7=2 8=1
`,
			next: func(mw *serialization.ModelWriter) {
				mw.Int8([]int8{1, 2})
				mw.Float32([]float32{10, 10}, true)
				mw.Float32([]float32{0.125, 0.625}, true)
			},
			want: 0.125,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := testOption()
			opt.UseInt8Inference = true
			n := newTestNet(opt)
			load(t, n, tt.param, modelBytes(t, func(mw *serialization.ModelWriter) {
				int8Conv(mw, []int8{1, 2}, []float32{10, 20}, 2)
				tt.next(mw)
			}))

			conv1 := n.Layers()[1].(*layer.Convolution)
			assert.True(t, conv1.UseInt8Requantize)
			assert.Equal(t, tt.want, conv1.TopBlobInt8Scale)
		})
	}
}
