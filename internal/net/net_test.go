package net

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

const residualParam = `7767517
4 5
Input data 0 1 data 0=4
Split split 1 2 data a b
ReLU relu 1 1 a r
Eltwise sum 2 1 r b out 0=1
`

type wiring struct {
	Name      string
	Producer  int
	Consumers []int
}

func wiringOf(blobs []Blob) []wiring {
	out := make([]wiring, len(blobs))
	for i, b := range blobs {
		out[i] = wiring{Name: b.Name, Producer: b.Producer, Consumers: b.Consumers}
	}
	return out
}

func TestLoadParamText(t *testing.T) {
	n := newTestNet(testOption())
	consumed, err := n.LoadParamMem(residualParam)
	require.NoError(t, err)
	assert.Equal(t, len(residualParam), consumed)

	want := []wiring{
		{Name: "data", Producer: 0, Consumers: []int{1}},
		{Name: "a", Producer: 1, Consumers: []int{2}},
		{Name: "b", Producer: 1, Consumers: []int{3}},
		{Name: "r", Producer: 2, Consumers: []int{3}},
		{Name: "out", Producer: 3},
	}
	if diff := cmp.Diff(want, wiringOf(n.Blobs())); diff != "" {
		t.Errorf("blob wiring mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, n.Layers(), 4)
	assert.Equal(t, layer.KindEltwise, layer.KindOf(n.Layers()[3]))
	assert.Equal(t, []int{3, 2}, n.Layers()[3].Meta().Bottoms)
	assert.Equal(t, 2, n.FindLayerIndexByName("relu"))
	assert.Equal(t, -1, n.FindLayerIndexByName("nope"))
	assert.Equal(t, 4, n.FindBlobIndexByName("out"))
	assert.Equal(t, -1, n.FindBlobIndexByName("nope"))
}

func TestResidualGraph(t *testing.T) {
	n := newTestNet(testOption())
	load(t, n, residualParam, nil)

	got := run(t, n, tensor.FromFloat32([]float32{-1, 2, -3, 4}, 4), "data", "out")
	assert.Equal(t, []float32{-1, 4, -3, 8}, got)
}

func TestShapeHints(t *testing.T) {
	param := `7767517
2 2
Input data 0 1 data 0=8 1=8 2=3 -23330=4,3,8,8,3
ReLU relu 1 1 data out -23330=4,3,8,8,3
`
	n := newTestNet(testOption())
	_, err := n.LoadParamMem(param)
	require.NoError(t, err)

	shape := n.Blobs()[0].Shape
	assert.Equal(t, 3, shape.Dims)
	assert.Equal(t, []int{8, 8, 3}, []int{shape.W, shape.H, shape.C})

	relu := n.Layers()[1].Meta()
	require.Len(t, relu.BottomShapes, 1)
	require.Len(t, relu.TopShapes, 1)
	assert.Equal(t, 8, relu.BottomShapes[0].W)
	assert.Equal(t, 3, relu.TopShapes[0].C)
}

func TestLoadParamFormatErrors(t *testing.T) {
	tests := []struct {
		name  string
		param string
		err   error
	}{
		{"bad magic", "7767518\n1 1\nInput data 0 1 data\n", ErrBadMagic},
		{"zero layers", "7767517\n0 1\n", ErrBadFormat},
		{"truncated", "7767517\n2 2\nInput data 0 1 data\nReLU relu 1", ErrBadFormat},
		{"blob overflow", "7767517\n2 1\nInput data 0 1 data\nReLU relu 1 1 data out\n", ErrBadFormat},
		{"unknown layer", "7767517\n1 1\nNoSuchLayer x 0 1 data\n", ErrUnknownLayer},
		{"dangling blob", "7767517\n2 3\nInput data 0 1 data\nReLU relu 1 1 missing out\n", ErrDanglingBlob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNet(testOption())
			_, err := n.LoadParamMem(tt.param)
			require.ErrorIs(t, err, tt.err)
			assert.Empty(t, n.Layers())
			assert.Empty(t, n.Blobs())
		})
	}
}

func TestDanglingBlobIsNamed(t *testing.T) {
	n := newTestNet(testOption())
	_, err := n.LoadParamMem("7767517\n2 3\nInput data 0 1 data\nReLU relu 1 1 missing out\n")
	require.ErrorIs(t, err, ErrDanglingBlob)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestLayerLoadErrorsAreJoined(t *testing.T) {
	param := `7767517
4 4
Input data 0 1 data
Padding pad1 1 1 data p1 4=7
ReLU relu 1 1 p1 r
Padding pad2 1 1 r p2 4=9
`
	n := newTestNet(testOption())
	_, err := n.LoadParamMem(param)
	require.ErrorIs(t, err, ErrLayerLoad)
	require.ErrorIs(t, err, layer.ErrInvalidParam)
	assert.Contains(t, err.Error(), "pad1")
	assert.Contains(t, err.Error(), "pad2")

	// The rest of the graph is still there; the failed slots are nil.
	require.Len(t, n.Layers(), 4)
	assert.Nil(t, n.Layers()[1])
	assert.NotNil(t, n.Layers()[2])
	assert.Nil(t, n.Layers()[3])

	_, err = n.LoadModelMem(nil)
	require.ErrorIs(t, err, ErrIncompleteGraph)
}

func TestLoadModelWithoutParams(t *testing.T) {
	n := newTestNet(testOption())
	_, err := n.LoadModelMem(nil)
	require.ErrorIs(t, err, ErrIncompleteGraph)
}

func TestLoadModelMissingWeights(t *testing.T) {
	param := `7767517
2 2
Input data 0 1 data
InnerProduct fc 1 1 data out 0=2 1=1 2=8
`
	n := newTestNet(testOption())
	_, err := n.LoadParamMem(param)
	require.NoError(t, err)

	// Weights present, bias truncated.
	model := modelBytes(t, func(mw *serialization.ModelWriter) {
		mw.Float32(make([]float32, 8), false)
		mw.Float32([]float32{1}, true)
	})
	_, err = n.LoadModelMem(model)
	require.ErrorIs(t, err, serialization.ErrMissingData)
	assert.Contains(t, err.Error(), `"fc"`)
}

func TestCustomLayerRegistration(t *testing.T) {
	n := newTestNet(testOption())
	require.ErrorIs(t, n.RegisterCustomLayer("ReLU", func() layer.Layer { return &counter{} }), ErrBuiltinLayer)
	require.ErrorIs(t, n.RegisterCustomLayerIndex(3, func() layer.Layer { return &counter{} }), ErrNotCustomIndex)

	c := &counter{Base: layer.Base{OneBlobOnly: true}}
	require.NoError(t, n.RegisterCustomLayer("Counter", func() layer.Layer { return c }))
	load(t, n, `7767517
2 2
Input data 0 1 data
Counter count 1 1 data out
`, nil)

	meta := n.Layers()[1].Meta()
	assert.Equal(t, "Counter", meta.Type)
	assert.Equal(t, layer.CustomBit, meta.TypeIndex)
	assert.Equal(t, layer.KindCustom, layer.KindOf(n.Layers()[1]))

	got := run(t, n, tensor.FromFloat32([]float32{1, 2}, 2), "data", "out")
	assert.Equal(t, []float32{1, 2}, got)
	assert.Equal(t, 1, c.calls)
}

func TestCustomLayerByIndex(t *testing.T) {
	n := newTestNet(testOption())
	c := &counter{Base: layer.Base{OneBlobOnly: true}}
	require.NoError(t, n.RegisterCustomLayerIndex(layer.CustomBit|2, func() layer.Layer { return c }))

	var buf bytes.Buffer
	put := func(vs ...int32) {
		for _, v := range vs {
			buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
		}
	}
	put(magic, 2, 2)
	put(int32(layer.KindInput), 0, 1, 0, -233)
	put(layer.CustomBit|2, 1, 1, 0, 1, -233)

	consumed, err := n.LoadParamBinMem(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, buf.Len(), consumed)
	_, err = n.LoadModelMem(nil)
	require.NoError(t, err)
	t.Cleanup(n.Clear)

	assert.Equal(t, layer.CustomBit|2, n.Layers()[1].Meta().TypeIndex)

	ex := n.CreateExtractor()
	defer ex.Close()
	require.NoError(t, ex.InputIndex(0, tensor.FromFloat32([]float32{3}, 1)))
	out, err := ex.ExtractIndex(1)
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []float32{3}, out.ToFloat32())
}

func TestBinaryParamOutOfRangeBlob(t *testing.T) {
	var buf bytes.Buffer
	put := func(vs ...int32) {
		for _, v := range vs {
			buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
		}
	}
	put(magic, 1, 1)
	put(int32(layer.KindInput), 0, 1, 5, -233)

	n := newTestNet(testOption())
	_, err := n.LoadParamBinMem(buf.Bytes())
	require.ErrorIs(t, err, ErrBadFormat)
	assert.Empty(t, n.Layers())
}

func TestBinaryParamRejectsBadWiring(t *testing.T) {
	relu := int32(layer.KindReLU)
	input := int32(layer.KindInput)
	tests := []struct {
		name   string
		blobs  int32
		layers [][]int32
	}{
		{"cycle", 2, [][]int32{
			{relu, 1, 1, 1, 0, -233},
			{relu, 1, 1, 0, 1, -233},
		}},
		{"self loop", 1, [][]int32{
			{relu, 1, 1, 0, 0, -233},
		}},
		{"two producers", 2, [][]int32{
			{input, 0, 1, 0, -233},
			{relu, 1, 1, 0, 0, -233},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			put := func(vs ...int32) {
				for _, v := range vs {
					buf.Write([]byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)})
				}
			}
			put(magic, int32(len(tt.layers)), tt.blobs)
			for _, l := range tt.layers {
				put(l...)
			}

			n := newTestNet(testOption())
			_, err := n.LoadParamBinMem(buf.Bytes())
			require.ErrorIs(t, err, ErrBadFormat)
			assert.Empty(t, n.Layers())
			assert.Empty(t, n.Blobs())
		})
	}
}
