package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Cast element types.
const (
	CastAuto     = 0
	CastFloat32  = 1
	CastFloat16  = 2
	CastInt8     = 3
	CastBFloat16 = 4
)

// Cast converts blob storage between float32, float16 and bfloat16.
type Cast struct {
	Base
	TypeFrom int
	TypeTo   int
}

// NewCast creates a Cast layer.
func NewCast() *Cast {
	return &Cast{Base: base(KindCast, true, false, true, true)}
}

// LoadParam implements Layer.
func (l *Cast) LoadParam(pd *serialization.ParamDict) error {
	l.TypeFrom = pd.GetInt(0, CastAuto)
	l.TypeTo = pd.GetInt(1, CastAuto)
	return nil
}

// Forward implements Forwarder.
func (l *Cast) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	from := l.TypeFrom
	if from == CastAuto {
		from = CastFloat32
		if bottom.ElemSize/bottom.ElemPack == 2 {
			from = CastFloat16
		}
	}

	in := bottom.Share()
	defer in.Release()
	// bf16 storage may already have narrowed a float32 input.
	if from == CastFloat32 && in.ElemSize/in.ElemPack == 2 && opt.UseBF16Storage {
		wide := tensor.CastBFloat16ToFloat32(in, opt.WorkspaceAllocator)
		in.Release()
		in = wide
		if in.Empty() {
			return in, ErrOutOfMemory
		}
	}
	if from == l.TypeTo {
		return in.Share(), nil
	}

	var top tensor.Mat
	switch {
	case from == CastFloat32 && l.TypeTo == CastFloat16:
		top = tensor.CastFloat32ToFloat16(in, opt.BlobAllocator)
	case from == CastFloat16 && l.TypeTo == CastFloat32:
		top = tensor.CastFloat16ToFloat32(in, opt.BlobAllocator)
	case from == CastFloat32 && l.TypeTo == CastBFloat16:
		top = tensor.CastFloat32ToBFloat16(in, opt.BlobAllocator)
	case from == CastBFloat16 && l.TypeTo == CastFloat32:
		top = tensor.CastBFloat16ToFloat32(in, opt.BlobAllocator)
	default:
		return tensor.Mat{}, fmt.Errorf("%w: cast %d to %d", ErrUnsupported, from, l.TypeTo)
	}
	if top.Empty() {
		return top, ErrOutOfMemory
	}
	return top, nil
}
