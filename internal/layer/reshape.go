package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Reshape reinterprets a blob with new extents. An extent of 0 keeps the
// input's, -1 is inferred from the element count, and -233 drops the axis.
// With Permute set, a 3-D input is flattened in h, w, c order.
type Reshape struct {
	Base
	W, H, C int
	Permute bool

	ndim int
}

// NewReshape creates a Reshape layer.
func NewReshape() *Reshape {
	return &Reshape{Base: base(KindReshape, true, false, false, true)}
}

// LoadParam implements Layer.
func (l *Reshape) LoadParam(pd *serialization.ParamDict) error {
	l.W = pd.GetInt(0, -233)
	l.H = pd.GetInt(1, -233)
	l.C = pd.GetInt(2, -233)
	l.Permute = pd.GetInt(3, 0) != 0

	l.ndim = 1
	if l.H != -233 {
		l.ndim = 2
	}
	if l.C != -233 {
		l.ndim = 3
	}
	return nil
}

// Forward implements Forwarder.
func (l *Reshape) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	total := bottom.W * bottom.H * bottom.C
	shape := []int{l.W, l.H, l.C}[:l.ndim]
	src := []int{bottom.W, bottom.H, bottom.C}

	known, infer := 1, -1
	for i, v := range shape {
		switch v {
		case 0:
			shape[i] = src[i]
		case -1, -233:
			if infer >= 0 {
				return tensor.Mat{}, fmt.Errorf("%w: more than one inferred extent", ErrInvalidParam)
			}
			infer = i
			continue
		}
		known *= shape[i]
	}
	if infer >= 0 {
		if known == 0 || total%known != 0 {
			return tensor.Mat{}, fmt.Errorf("%w: cannot infer extent of %s into %v", ErrShapeMismatch, bottom.Shape(), shape)
		}
		shape[infer] = total / known
	}

	in := bottom
	if l.Permute && bottom.Dims == 3 {
		in = permuteHWC(bottom, opt)
		if in.Empty() {
			return tensor.Mat{}, ErrOutOfMemory
		}
		defer in.Release()
	}

	top := in.Reshape(opt.BlobAllocator, shape...)
	if top.Empty() {
		return tensor.Mat{}, fmt.Errorf("%w: cannot reshape %s to %v", ErrShapeMismatch, bottom.Shape(), shape)
	}
	return top, nil
}

// permuteHWC returns a copy of m laid out as h, w, c.
func permuteHWC(m tensor.Mat, opt option.Option) tensor.Mat {
	out := tensor.New3D(m.C, m.W, m.H, m.ElemSize, m.ElemPack, opt.WorkspaceAllocator)
	if out.Empty() {
		return out
	}
	es := m.ElemSize
	for q := range m.C {
		src := m.Channel(q).Bytes()
		for y := range m.H {
			dst := out.Channel(y).Bytes()
			for x := range m.W {
				copy(dst[(x*m.C+q)*es:(x*m.C+q+1)*es], src[(y*m.W+x)*es:(y*m.W+x+1)*es])
			}
		}
	}
	return out
}
