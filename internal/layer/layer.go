// Package layer defines the contract every graph operator implements, the
// registry that maps layer type names to constructors, and the built-in
// layer types.
//
// A layer always implements Layer. Forward computation is offered through
// any subset of Forwarder, InplaceForwarder, MultiForwarder and
// MultiInplaceForwarder; the package level Forward functions fill the gaps
// by cloning inputs and running the in-place variant when the layer
// declares SupportInplace.
//
// Ownership: bottoms passed to a copying forward are borrowed, returned tops
// are owned by the caller. In-place forwards mutate the caller's tensors.
package layer

import (
	"errors"
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Common errors.
var (
	ErrUnsupported   = errors.New("operation not supported by layer")
	ErrOutOfMemory   = errors.New("out of memory")
	ErrInvalidParam  = errors.New("invalid layer parameter")
	ErrShapeMismatch = errors.New("blob shape mismatch")
	ErrMissingData   = serialization.ErrMissingData
)

// Layer is the lifecycle every operator goes through: parameters, weights,
// then pipeline setup before the first forward call.
type Layer interface {
	Meta() *Base
	LoadParam(pd *serialization.ParamDict) error
	LoadModel(mb serialization.ModelBin) error
	CreatePipeline(opt option.Option) error
	DestroyPipeline(opt option.Option) error
}

// Forwarder computes one top from one bottom.
type Forwarder interface {
	Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error)
}

// InplaceForwarder overwrites one blob with its result.
type InplaceForwarder interface {
	ForwardInplace(m *tensor.Mat, opt option.Option) error
}

// MultiForwarder computes tops from several bottoms.
type MultiForwarder interface {
	ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error)
}

// MultiInplaceForwarder overwrites several blobs with their results.
type MultiInplaceForwarder interface {
	ForwardMultiInplace(blobs []tensor.Mat, opt option.Option) error
}

// Base carries the graph wiring and capability flags shared by all layers.
// Embedding it provides no-op lifecycle methods.
type Base struct {
	// OneBlobOnly layers take exactly one bottom and produce one top.
	OneBlobOnly bool
	// SupportInplace layers can overwrite their input.
	SupportInplace bool
	// SupportPacking layers accept 4-lane packed blobs.
	SupportPacking bool
	// SupportBF16Storage layers accept bfloat16 blobs.
	SupportBF16Storage bool

	TypeIndex int
	Type      string
	Name      string

	Bottoms []int
	Tops    []int

	BottomShapes []tensor.Mat
	TopShapes    []tensor.Mat
}

// Meta returns the shared layer fields.
func (b *Base) Meta() *Base { return b }

// LoadParam implements Layer.
func (b *Base) LoadParam(*serialization.ParamDict) error { return nil }

// LoadModel implements Layer.
func (b *Base) LoadModel(serialization.ModelBin) error { return nil }

// CreatePipeline implements Layer.
func (b *Base) CreatePipeline(option.Option) error { return nil }

// DestroyPipeline implements Layer.
func (b *Base) DestroyPipeline(option.Option) error { return nil }

func unsupported(l Layer, what string) error {
	m := l.Meta()
	return fmt.Errorf("%w: %s %q has no %s", ErrUnsupported, m.Type, m.Name, what)
}

// Forward runs l on one bottom and returns a new top.
func Forward(l Layer, bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	if f, ok := l.(Forwarder); ok {
		return f.Forward(bottom, opt)
	}
	ip, ok := l.(InplaceForwarder)
	if !ok || !l.Meta().SupportInplace {
		return tensor.Mat{}, unsupported(l, "forward")
	}

	top := bottom.Clone(opt.BlobAllocator)
	if top.Empty() {
		return tensor.Mat{}, ErrOutOfMemory
	}
	if err := ip.ForwardInplace(&top, opt); err != nil {
		top.Release()
		return tensor.Mat{}, err
	}
	return top, nil
}

// ForwardInplace runs l over m in place.
func ForwardInplace(l Layer, m *tensor.Mat, opt option.Option) error {
	if ip, ok := l.(InplaceForwarder); ok {
		return ip.ForwardInplace(m, opt)
	}
	return unsupported(l, "in-place forward")
}

// ForwardMulti runs l on several bottoms and returns new tops.
func ForwardMulti(l Layer, bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if f, ok := l.(MultiForwarder); ok {
		return f.ForwardMulti(bottoms, opt)
	}
	ip, ok := l.(MultiInplaceForwarder)
	if !ok || !l.Meta().SupportInplace {
		return nil, unsupported(l, "multi-blob forward")
	}

	tops := make([]tensor.Mat, len(bottoms))
	for i, b := range bottoms {
		tops[i] = b.Clone(opt.BlobAllocator)
		if tops[i].Empty() {
			releaseAll(tops)
			return nil, ErrOutOfMemory
		}
	}
	if err := ip.ForwardMultiInplace(tops, opt); err != nil {
		releaseAll(tops)
		return nil, err
	}
	return tops, nil
}

// ForwardMultiInplace runs l over several blobs in place.
func ForwardMultiInplace(l Layer, blobs []tensor.Mat, opt option.Option) error {
	if ip, ok := l.(MultiInplaceForwarder); ok {
		return ip.ForwardMultiInplace(blobs, opt)
	}
	return unsupported(l, "multi-blob in-place forward")
}

func releaseAll(ms []tensor.Mat) {
	for i := range ms {
		ms[i].Release()
	}
}
