package net

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/tensor"
)

func TestConvertParamToBinary(t *testing.T) {
	var bin bytes.Buffer
	names, err := ConvertParamToBinary(strings.NewReader(residualParam), &bin)
	require.NoError(t, err)
	assert.Equal(t, []string{"data", "a", "b", "r", "out"}, names)

	text := newTestNet(testOption())
	load(t, text, residualParam, nil)

	binary := newTestNet(testOption())
	consumed, err := binary.LoadParamBinMem(bin.Bytes())
	require.NoError(t, err)
	assert.Equal(t, bin.Len(), consumed)
	_, err = binary.LoadModelMem(nil)
	require.NoError(t, err)
	t.Cleanup(binary.Clear)

	// Same wiring apart from the names the binary form drops.
	want := wiringOf(text.Blobs())
	for i := range want {
		want[i].Name = ""
	}
	if diff := cmp.Diff(want, wiringOf(binary.Blobs())); diff != "" {
		t.Errorf("binary wiring mismatch (-want +got):\n%s", diff)
	}
	for i, l := range binary.Layers() {
		assert.Equal(t, text.Layers()[i].Meta().TypeIndex, l.Meta().TypeIndex)
		assert.Empty(t, l.Meta().Name)
	}

	ex := binary.CreateExtractor()
	defer ex.Close()
	require.NoError(t, ex.InputIndex(0, tensor.FromFloat32([]float32{-1, 2, -3, 4}, 4)))
	out, err := ex.ExtractIndex(4)
	require.NoError(t, err)
	defer out.Release()
	assert.Equal(t, []float32{-1, 4, -3, 8}, out.ToFloat32())
}

func TestConvertParamToBinaryRejectsCustomTypes(t *testing.T) {
	var bin bytes.Buffer
	_, err := ConvertParamToBinary(strings.NewReader("7767517\n1 1\nCounter c 0 1 data\n"), &bin)
	require.ErrorIs(t, err, ErrUnknownLayer)
}

func TestLoadParamFiles(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "net.param")
	binPath := filepath.Join(dir, "net.param.bin")
	require.NoError(t, writeFile(textPath, []byte(residualParam)))

	var bin bytes.Buffer
	_, err := ConvertParamToBinary(strings.NewReader(residualParam), &bin)
	require.NoError(t, err)
	require.NoError(t, writeFile(binPath, bin.Bytes()))

	n := newTestNet(testOption())
	require.NoError(t, n.LoadParamFile(textPath))
	assert.Len(t, n.Layers(), 4)
	require.NoError(t, n.LoadParamBinFile(binPath))
	assert.Len(t, n.Layers(), 4)

	modelPath := filepath.Join(dir, "net.bin")
	require.NoError(t, writeFile(modelPath, nil))
	require.NoError(t, n.LoadModelFile(modelPath))
	n.Clear()

	require.Error(t, n.LoadParamFile(filepath.Join(dir, "missing.param")))
}
