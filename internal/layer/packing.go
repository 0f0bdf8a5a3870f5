package layer

import (
	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Packing converts a blob to OutElempack lanes per element.
type Packing struct {
	Base
	OutElempack int
	UsePadding  bool
}

// NewPacking creates a Packing layer.
func NewPacking() *Packing {
	return &Packing{Base: base(KindPacking, true, false, true, true)}
}

// LoadParam implements Layer.
func (l *Packing) LoadParam(pd *serialization.ParamDict) error {
	l.OutElempack = pd.GetInt(0, 1)
	l.UsePadding = pd.GetInt(1, 0) != 0
	return nil
}

// Forward implements Forwarder.
func (l *Packing) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	top := tensor.ConvertPacking(bottom, l.OutElempack, l.UsePadding, opt.BlobAllocator)
	if top.Empty() && !bottom.Empty() {
		return top, ErrOutOfMemory
	}
	return top, nil
}
