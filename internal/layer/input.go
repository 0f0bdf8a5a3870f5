package layer

import (
	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Input marks a graph entry point. Its blob is bound by the caller.
type Input struct {
	Base
	W, H, C int
}

// NewInput creates an Input layer.
func NewInput() *Input {
	return &Input{Base: base(KindInput, true, true, true, true)}
}

// LoadParam implements Layer.
func (l *Input) LoadParam(pd *serialization.ParamDict) error {
	l.W = pd.GetInt(0, 0)
	l.H = pd.GetInt(1, 0)
	l.C = pd.GetInt(2, 0)
	return nil
}

// ForwardInplace implements InplaceForwarder.
func (l *Input) ForwardInplace(*tensor.Mat, option.Option) error {
	return nil
}

// Split fans one blob out to every top without copying.
type Split struct {
	Base
}

// NewSplit creates a Split layer.
func NewSplit() *Split {
	return &Split{Base: base(KindSplit, false, false, true, true)}
}

// ForwardMulti implements MultiForwarder.
func (l *Split) ForwardMulti(bottoms []tensor.Mat, _ option.Option) ([]tensor.Mat, error) {
	if len(bottoms) != 1 {
		return nil, ErrShapeMismatch
	}
	tops := make([]tensor.Mat, max(len(l.Tops), 1))
	for i := range tops {
		tops[i] = bottoms[0].Share()
	}
	return tops, nil
}
