package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Eltwise operations.
const (
	EltwiseProd = 0
	EltwiseSum  = 1
	EltwiseMax  = 2
)

// Eltwise combines same-shaped bottoms element by element.
// Sums may weight each bottom by a coefficient.
type Eltwise struct {
	Base
	OpType int
	Coeffs []float32
}

// NewEltwise creates an Eltwise layer.
func NewEltwise() *Eltwise {
	return &Eltwise{Base: base(KindEltwise, false, false, true, false)}
}

// LoadParam implements Layer.
func (l *Eltwise) LoadParam(pd *serialization.ParamDict) error {
	l.OpType = pd.GetInt(0, EltwiseSum)
	l.Coeffs = pd.GetFloats(1, nil)
	if l.OpType < EltwiseProd || l.OpType > EltwiseMax {
		return fmt.Errorf("%w: eltwise op %d", ErrInvalidParam, l.OpType)
	}
	return nil
}

// ForwardMulti implements MultiForwarder.
func (l *Eltwise) ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if len(bottoms) < 2 {
		return nil, fmt.Errorf("%w: eltwise needs at least two inputs", ErrShapeMismatch)
	}
	for i, b := range bottoms[1:] {
		if !tensor.SameShape(b, bottoms[0]) {
			return nil, fmt.Errorf("%w: eltwise input %d is %s, first is %s", ErrShapeMismatch, i+1, b.Shape(), bottoms[0].Shape())
		}
	}
	if len(l.Coeffs) != 0 && len(l.Coeffs) != len(bottoms) {
		return nil, fmt.Errorf("%w: %d coeffs for %d inputs", ErrInvalidParam, len(l.Coeffs), len(bottoms))
	}

	top := tensor.NewLike(bottoms[0], opt.BlobAllocator)
	if top.Empty() {
		return nil, ErrOutOfMemory
	}

	coeff := func(i int) float32 {
		if len(l.Coeffs) == 0 {
			return 1
		}
		return l.Coeffs[i]
	}

	parallel.For(top.C, func(q int) {
		out := top.Channel(q).Float32s()
		copy(out, bottoms[0].Channel(q).Float32s())
		if l.OpType == EltwiseSum {
			c := coeff(0)
			for i := range out {
				out[i] *= c
			}
		}
		for b := 1; b < len(bottoms); b++ {
			in := bottoms[b].Channel(q).Float32s()
			switch l.OpType {
			case EltwiseProd:
				for i := range out {
					out[i] *= in[i]
				}
			case EltwiseSum:
				c := coeff(b)
				for i := range out {
					out[i] += in[i] * c
				}
			case EltwiseMax:
				for i := range out {
					out[i] = max(out[i], in[i])
				}
			}
		}
	}, opt.Parallel())

	return []tensor.Mat{top}, nil
}
