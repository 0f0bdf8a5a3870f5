package net

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

func testOption() option.Option {
	opt := option.Default()
	opt.NumThreads = 2
	opt.LightMode = true
	opt.UsePackingLayout = false
	opt.UseBF16Storage = false
	return opt
}

func newTestNet(opt option.Option) *Net {
	n := New()
	n.Opt = opt
	return n
}

func load(t *testing.T, n *Net, param string, model []byte) {
	t.Helper()
	_, err := n.LoadParamMem(param)
	require.NoError(t, err)
	_, err = n.LoadModelMem(model)
	require.NoError(t, err)
	t.Cleanup(n.Clear)
}

func run(t *testing.T, n *Net, in tensor.Mat, input, output string, configure ...func(*Extractor)) []float32 {
	t.Helper()
	ex := n.CreateExtractor()
	defer ex.Close()
	for _, f := range configure {
		f(ex)
	}
	require.NoError(t, ex.Input(input, in))
	out, err := ex.Extract(output)
	require.NoError(t, err)
	defer out.Release()
	return out.ToFloat32()
}

// modelBytes serializes weights with a ModelWriter.
func modelBytes(t *testing.T, write func(mw *serialization.ModelWriter)) []byte {
	t.Helper()
	var buf bytes.Buffer
	mw := serialization.NewModelWriter(&buf)
	write(mw)
	require.NoError(t, mw.Err())
	return buf.Bytes()
}

// counter copies its input and counts how often it ran.
type counter struct {
	layer.Base
	calls int
}

func (c *counter) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	c.calls++
	return bottom.Clone(opt.BlobAllocator), nil
}

// probe records the reference count of the bottom it receives.
type probe struct {
	layer.Base
	refs int
}

func (p *probe) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	p.refs = bottom.RefCount()
	return bottom.Clone(opt.BlobAllocator), nil
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o600)
}
