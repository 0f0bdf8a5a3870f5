package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Concat joins its bottoms along one axis.
type Concat struct {
	Base
	Axis int
}

// NewConcat creates a Concat layer.
func NewConcat() *Concat {
	return &Concat{Base: base(KindConcat, false, false, false, true)}
}

// LoadParam implements Layer.
func (l *Concat) LoadParam(pd *serialization.ParamDict) error {
	l.Axis = pd.GetInt(0, 0)
	return nil
}

// ForwardMulti implements MultiForwarder.
func (l *Concat) ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if len(bottoms) == 0 {
		return nil, ErrShapeMismatch
	}
	first := bottoms[0]
	ax, err := resolveAxis(first.Dims, l.Axis)
	if err != nil {
		return nil, err
	}

	total := 0
	for i, b := range bottoms {
		bw, bh, bc := withExtent(b, ax, 0)
		fw, fh, fc := withExtent(first, ax, 0)
		if b.Dims != first.Dims || b.ElemSize != first.ElemSize || bw != fw || bh != fh || bc != fc {
			return nil, fmt.Errorf("%w: concat input %d is %s, first is %s", ErrShapeMismatch, i, b.Shape(), first.Shape())
		}
		total += extent(b, ax)
	}

	w, h, c := withExtent(first, ax, total)
	top := tensor.NewDims(first.Dims, w, h, c, first.ElemSize, first.ElemPack, opt.BlobAllocator)
	if top.Empty() {
		return nil, ErrOutOfMemory
	}

	offset := 0
	for _, b := range bottoms {
		n := extent(b, ax)
		copyBlock(top, offset, b, 0, n, ax)
		offset += n
	}
	return []tensor.Mat{top}, nil
}
