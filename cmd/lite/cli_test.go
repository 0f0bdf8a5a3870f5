package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/lite/internal/serialization"
)

const convParam = `7767517
3 3
Input data 0 1 data
Convolution conv 1 1 data c 0=2 1=3 4=1 5=1 6=36
ReLU relu 1 1 c out
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeModel(t *testing.T, dir string) (string, string) {
	t.Helper()
	paramPath := filepath.Join(dir, "conv.param")
	require.NoError(t, os.WriteFile(paramPath, []byte(convParam), 0o600))

	var buf bytes.Buffer
	mw := serialization.NewModelWriter(&buf)
	weights := make([]float32, 36)
	for i := range weights {
		weights[i] = 1
	}
	mw.Float32(weights, false)
	mw.Float32([]float32{0, -1}, true)
	require.NoError(t, mw.Err())

	modelPath := filepath.Join(dir, "conv.bin")
	require.NoError(t, os.WriteFile(modelPath, buf.Bytes(), 0o600))
	return paramPath, modelPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}

func TestHelpListsEnvironment(t *testing.T) {
	out, err := execute(t, "run", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Environment Variables:")
	assert.Contains(t, out, "LITE_NUM_THREADS")
	assert.Contains(t, out, "LITE_DEBUG")
}

func TestInfo(t *testing.T) {
	paramPath, _ := writeModel(t, t.TempDir())
	out, err := execute(t, "info", paramPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Convolution")
	assert.Contains(t, out, "data")
	assert.Contains(t, out, "3 layers, 3 blobs")
}

func TestRun(t *testing.T) {
	paramPath, modelPath := writeModel(t, t.TempDir())
	out, err := execute(t, "run", paramPath, modelPath,
		"--shape", "4,4,2", "--output", "out", "--fill", "1", "--threads", "1")
	require.NoError(t, err)
	// Interior outputs sum nine ones from each of two channels.
	assert.Contains(t, out, "out")
	assert.Contains(t, out, "18")

	_, err = execute(t, "run", paramPath, modelPath, "--shape", "4,x")
	require.Error(t, err)
}

func TestBench(t *testing.T) {
	paramPath, _ := writeModel(t, t.TempDir())
	out, err := execute(t, "bench", paramPath,
		"--loops", "2", "--warmup", "1", "--jobs", "2", "--shape", "8,8,2", "--output", "out")
	require.NoError(t, err)
	assert.Contains(t, out, "conv")
	assert.Contains(t, out, "AVG")
}

func TestParam2Bin(t *testing.T) {
	dir := t.TempDir()
	paramPath, modelPath := writeModel(t, dir)
	binPath := filepath.Join(dir, "conv.param.bin")

	out, err := execute(t, "param2bin", paramPath, binPath, "--names")
	require.NoError(t, err)
	assert.Contains(t, out, "data")

	out, err = execute(t, "info", "--binary", binPath)
	require.NoError(t, err)
	assert.Contains(t, out, "3 layers, 3 blobs")

	out, err = execute(t, "run", "--binary", binPath, modelPath, "--shape", "4,4,2", "--input", "#0")
	require.Error(t, err, "binary params carry no blob names")
	assert.Empty(t, out)
}

func TestParseShape(t *testing.T) {
	shape, err := parseShape("227, 227,3")
	require.NoError(t, err)
	assert.Equal(t, []int{227, 227, 3}, shape)

	for _, bad := range []string{"", "1,2,3,4", "0", "a"} {
		_, err := parseShape(bad)
		assert.Error(t, err, bad)
	}
}
