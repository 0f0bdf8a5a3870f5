package net_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/layer"
	"github.com/born-ml/lite/net"
	"github.com/born-ml/lite/tensor"
)

type doubler struct {
	layer.Base
}

func (d *doubler) ForwardInplace(m *tensor.Mat, _ layer.Option) error {
	for q := range m.C {
		x := m.Channel(q).Float32s()
		for i := range x {
			x[i] *= 2
		}
	}
	return nil
}

func TestLoadAndExtract(t *testing.T) {
	dir := t.TempDir()
	paramPath := filepath.Join(dir, "double.param")
	modelPath := filepath.Join(dir, "double.bin")
	require.NoError(t, os.WriteFile(paramPath, []byte(`7767517
3 3
Input data 0 1 data
Doubler twice 1 1 data d
ReLU relu 1 1 d out
`), 0o600))
	require.NoError(t, os.WriteFile(modelPath, nil, 0o600))

	_, err := net.Load(paramPath, modelPath, net.DefaultOption())
	require.ErrorIs(t, err, net.ErrUnknownLayer)

	model := net.New()
	require.NoError(t, model.RegisterCustomLayer("Doubler", func() layer.Layer {
		return &doubler{Base: layer.Base{OneBlobOnly: true, SupportInplace: true}}
	}))
	require.NoError(t, model.LoadParamFile(paramPath))
	require.NoError(t, model.LoadModelFile(modelPath))
	defer model.Clear()

	ex := model.CreateExtractor()
	defer ex.Close()
	require.NoError(t, ex.Input("data", tensor.FromFloat32([]float32{-1, 0.5, 3}, 3)))
	out, err := ex.Extract("out")
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []float32{0, 1, 6}, out.ToFloat32())
	assert.Equal(t, layer.KindCustom, layer.KindOf(model.Layers()[1]))
}
