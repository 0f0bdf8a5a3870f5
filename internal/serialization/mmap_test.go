package serialization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0o600))

	m, err := MapFile(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(m.Bytes()))
	require.NoError(t, m.Close())
	assert.Nil(t, m.Bytes())

	_, err = MapFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
