package option

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/born-ml/lite/internal/allocator"
)

func TestDefault(t *testing.T) {
	t.Setenv("LITE_NUM_THREADS", "")
	t.Setenv("LITE_LIGHT_MODE", "")
	t.Setenv("LITE_BF16", "")

	opt := Default()
	assert.True(t, opt.LightMode)
	assert.Equal(t, runtime.NumCPU(), opt.NumThreads)
	assert.True(t, opt.UseWinogradConvolution)
	assert.True(t, opt.UseSgemmConvolution)
	assert.True(t, opt.UseInt8Inference)
	assert.False(t, opt.UseBF16Storage)
	assert.Nil(t, opt.BlobAllocator)
}

func TestDefaultFromEnv(t *testing.T) {
	t.Setenv("LITE_NUM_THREADS", "2")
	t.Setenv("LITE_LIGHT_MODE", "false")
	t.Setenv("LITE_PACKING", "0")
	t.Setenv("LITE_BF16", "1")

	opt := Default()
	assert.Equal(t, 2, opt.NumThreads)
	assert.False(t, opt.LightMode)
	assert.False(t, opt.UsePackingLayout)
	assert.True(t, opt.UseBF16Storage)
	assert.Equal(t, 2, opt.Parallel().NumWorkers)
}

func TestWithWorkspace(t *testing.T) {
	blob, ws := allocator.NewPoolAllocator(), allocator.NewUnlockedPoolAllocator()
	opt := Option{BlobAllocator: blob, WorkspaceAllocator: ws}

	w := opt.WithWorkspace()
	assert.Same(t, ws, w.BlobAllocator)
	assert.Same(t, blob, opt.BlobAllocator)
}
