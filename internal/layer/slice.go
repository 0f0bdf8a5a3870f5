package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Slice splits one bottom into consecutive pieces along an axis.
// A slice size of -233 shares the remaining extent evenly among the
// remaining slices.
type Slice struct {
	Base
	Slices []int
	Axis   int
}

// NewSlice creates a Slice layer.
func NewSlice() *Slice {
	return &Slice{Base: base(KindSlice, false, false, false, true)}
}

// LoadParam implements Layer.
func (l *Slice) LoadParam(pd *serialization.ParamDict) error {
	l.Slices = pd.GetInts(0, nil)
	l.Axis = pd.GetInt(1, 0)
	if len(l.Slices) == 0 {
		return fmt.Errorf("%w: slice needs at least one size", ErrInvalidParam)
	}
	return nil
}

// ForwardMulti implements MultiForwarder.
func (l *Slice) ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if len(bottoms) != 1 {
		return nil, ErrShapeMismatch
	}
	bottom := bottoms[0]
	ax, err := resolveAxis(bottom.Dims, l.Axis)
	if err != nil {
		return nil, err
	}

	tops := make([]tensor.Mat, len(l.Slices))
	remaining := extent(bottom, ax)
	offset := 0
	for i, s := range l.Slices {
		n := s
		if s == -233 {
			n = remaining / (len(l.Slices) - i)
		}
		if n <= 0 || n > remaining {
			releaseAll(tops)
			return nil, fmt.Errorf("%w: slice %d of size %d exceeds remaining %d", ErrInvalidParam, i, n, remaining)
		}

		w, h, c := withExtent(bottom, ax, n)
		tops[i] = tensor.NewDims(bottom.Dims, w, h, c, bottom.ElemSize, bottom.ElemPack, opt.BlobAllocator)
		if tops[i].Empty() {
			releaseAll(tops)
			return nil, ErrOutOfMemory
		}
		copyBlock(tops[i], 0, bottom, offset, n, ax)
		offset += n
		remaining -= n
	}
	return tops, nil
}
