package layer

import (
	"fmt"
	"math"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// BinaryOp operation types.
const (
	BinaryAdd = iota
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMax
	BinaryMin
	BinaryPow
	BinaryRSub
	BinaryRDiv
)

func binaryFunc(op int) func(a, b float32) float32 {
	switch op {
	case BinaryAdd:
		return func(a, b float32) float32 { return a + b }
	case BinarySub:
		return func(a, b float32) float32 { return a - b }
	case BinaryMul:
		return func(a, b float32) float32 { return a * b }
	case BinaryDiv:
		return func(a, b float32) float32 { return a / b }
	case BinaryMax:
		return func(a, b float32) float32 { return max(a, b) }
	case BinaryMin:
		return func(a, b float32) float32 { return min(a, b) }
	case BinaryPow:
		return func(a, b float32) float32 { return float32(math.Pow(float64(a), float64(b))) }
	case BinaryRSub:
		return func(a, b float32) float32 { return b - a }
	case BinaryRDiv:
		return func(a, b float32) float32 { return b / a }
	}
	return nil
}

// BinaryOp applies an arithmetic operation to two blobs, or to one blob and
// a scalar. The second operand broadcasts when it holds a single value or
// one value per channel of the first.
type BinaryOp struct {
	Base
	OpType     int
	WithScalar bool
	B          float32

	fn func(a, b float32) float32
}

// NewBinaryOp creates a BinaryOp layer.
func NewBinaryOp() *BinaryOp {
	return &BinaryOp{Base: base(KindBinaryOp, false, false, false, false)}
}

// LoadParam implements Layer.
func (l *BinaryOp) LoadParam(pd *serialization.ParamDict) error {
	l.OpType = pd.GetInt(0, BinaryAdd)
	l.WithScalar = pd.GetInt(1, 0) != 0
	l.B = pd.GetFloat(2, 0)
	l.fn = binaryFunc(l.OpType)
	if l.fn == nil {
		return fmt.Errorf("%w: binary op %d", ErrInvalidParam, l.OpType)
	}
	l.OneBlobOnly = l.WithScalar
	l.SupportInplace = l.WithScalar
	return nil
}

// ForwardInplace implements InplaceForwarder for the scalar form.
func (l *BinaryOp) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	if !l.WithScalar {
		return unsupported(l, "in-place forward without scalar")
	}
	fn, b := l.fn, l.B
	forEachChannel(*m, opt, func(x []float32) {
		for i, v := range x {
			x[i] = fn(v, b)
		}
	})
	return nil
}

// ForwardMulti implements MultiForwarder.
func (l *BinaryOp) ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if len(bottoms) != 2 {
		return nil, fmt.Errorf("%w: binary op needs two inputs", ErrShapeMismatch)
	}
	a, b := bottoms[0], bottoms[1]
	fn := l.fn

	// A single-value first operand broadcasts over the second.
	if a.W*a.H*a.C == 1 && b.W*b.H*b.C > 1 {
		a, b = b, a
		inner := fn
		fn = func(x, y float32) float32 { return inner(y, x) }
	}

	top := tensor.NewLike(a, opt.BlobAllocator)
	if top.Empty() {
		return nil, ErrOutOfMemory
	}

	var operand func(q int) func(i int) float32
	switch {
	case tensor.SameShape(a, b):
		operand = func(q int) func(int) float32 {
			y := b.Channel(q).Float32s()
			return func(i int) float32 { return y[i] }
		}
	case b.W*b.H*b.C == 1:
		v := b.Float32s()[0]
		operand = func(int) func(int) float32 { return func(int) float32 { return v } }
	case a.Dims == 3 && b.Dims == 1 && b.W == a.C:
		bv := b.Float32s()
		operand = func(q int) func(int) float32 {
			v := bv[q]
			return func(int) float32 { return v }
		}
	default:
		top.Release()
		return nil, fmt.Errorf("%w: cannot broadcast %s with %s", ErrShapeMismatch, a.Shape(), b.Shape())
	}

	parallel.For(a.C, func(q int) {
		x, out := a.Channel(q).Float32s(), top.Channel(q).Float32s()
		y := operand(q)
		for i, v := range x {
			out[i] = fn(v, y(i))
		}
	}, opt.Parallel())

	return []tensor.Mat{top}, nil
}
