// Package option holds the execution settings shared by a Net, its
// extractors and every layer forward call.
package option

import (
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/born-ml/lite/internal/allocator"
	"github.com/born-ml/lite/internal/envconfig"
	"github.com/born-ml/lite/internal/parallel"
)

// Option configures inference.
type Option struct {
	// LightMode releases each intermediate blob once its consumer has run.
	LightMode bool

	// NumThreads bounds the goroutines a layer may fork.
	NumThreads int

	// BlobAllocator backs layer outputs; nil uses the Go heap.
	BlobAllocator allocator.Allocator

	// WorkspaceAllocator backs temporaries inside a layer; nil uses the Go heap.
	WorkspaceAllocator allocator.Allocator

	UseWinogradConvolution bool
	UseSgemmConvolution    bool
	UseInt8Inference       bool

	// UsePackingLayout converts blobs to 4-lane elements for layers that support it.
	UsePackingLayout bool

	// UseBF16Storage stores activations as bfloat16 for layers that support it.
	UseBF16Storage bool
}

// Default returns the settings used by a new Net, honoring LITE_* variables.
func Default() Option {
	threads := int(envconfig.NumThreads())
	if threads == 0 {
		threads = runtime.NumCPU()
	}
	return Option{
		LightMode:              envconfig.LightMode(true),
		NumThreads:             threads,
		UseWinogradConvolution: envconfig.Winograd(true),
		UseSgemmConvolution:    envconfig.Sgemm(true),
		UseInt8Inference:       envconfig.Int8Inference(true),
		UsePackingLayout:       envconfig.PackingLayout(HasSIMD()),
		UseBF16Storage:         envconfig.BF16Storage(false),
	}
}

// HasSIMD reports whether the CPU offers 128-bit vector units that a
// 4-lane float32 layout maps onto.
func HasSIMD() bool {
	return cpu.X86.HasSSE2 || cpu.ARM64.HasASIMD
}

// Parallel returns the worker configuration for layer kernels.
func (o Option) Parallel() parallel.Config {
	return parallel.Threads(o.NumThreads)
}

// WithWorkspace returns a copy of o whose blob allocator is the workspace allocator,
// for temporaries produced by nested layer calls.
func (o Option) WithWorkspace() Option {
	o.BlobAllocator = o.WorkspaceAllocator
	return o
}
