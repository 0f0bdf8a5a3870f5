package layer

import (
	"fmt"
	"math"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Fused activation types for Convolution and InnerProduct.
const (
	ActivationNone      = 0
	ActivationReLU      = 1
	ActivationLeakyReLU = 2
	ActivationClip      = 3
	ActivationSigmoid   = 4
)

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// activate applies a fused activation to x in place.
func activate(x []float32, typ int, params []float32) {
	switch typ {
	case ActivationReLU:
		for i, v := range x {
			x[i] = max(v, 0)
		}
	case ActivationLeakyReLU:
		slope := params[0]
		for i, v := range x {
			if v < 0 {
				x[i] = v * slope
			}
		}
	case ActivationClip:
		lo, hi := params[0], params[1]
		for i, v := range x {
			x[i] = min(max(v, lo), hi)
		}
	case ActivationSigmoid:
		for i, v := range x {
			x[i] = sigmoid(v)
		}
	}
}

// validateActivation checks that params holds what activation typ reads.
func validateActivation(typ int, params []float32) error {
	need := 0
	switch typ {
	case ActivationNone, ActivationReLU, ActivationSigmoid:
	case ActivationLeakyReLU:
		need = 1
	case ActivationClip:
		need = 2
	default:
		return fmt.Errorf("%w: activation type %d", ErrInvalidParam, typ)
	}
	if len(params) < need {
		return fmt.Errorf("%w: activation type %d needs %d params, got %d", ErrInvalidParam, typ, need, len(params))
	}
	return nil
}

func activateScalar(v float32, typ int, params []float32) float32 {
	x := [1]float32{v}
	activate(x[:], typ, params)
	return x[0]
}

// forEachChannel runs f over the float32 lanes of every channel of m.
func forEachChannel(m tensor.Mat, opt option.Option, f func(x []float32)) {
	parallel.For(m.C, func(q int) {
		f(m.Channel(q).Float32s())
	}, opt.Parallel())
}

// ReLU computes max(x, 0), or x*slope for negative x when slope is non-zero.
// It works in place on float32, bfloat16 and int8 blobs.
type ReLU struct {
	Base
	Slope float32
}

// NewReLU creates a ReLU layer.
func NewReLU() *ReLU {
	return &ReLU{Base: base(KindReLU, true, true, true, true)}
}

// LoadParam implements Layer.
func (l *ReLU) LoadParam(pd *serialization.ParamDict) error {
	l.Slope = pd.GetFloat(0, 0)
	return nil
}

// ForwardInplace implements InplaceForwarder.
func (l *ReLU) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	switch m.ElemSize / m.ElemPack {
	case 1:
		return l.forwardInt8(*m, opt)
	case 2:
		return l.forwardBF16(*m, opt)
	}

	slope := l.Slope
	forEachChannel(*m, opt, func(x []float32) {
		for i, v := range x {
			if v < 0 {
				x[i] = v * slope
			}
		}
	})
	return nil
}

func (l *ReLU) forwardBF16(m tensor.Mat, opt option.Option) error {
	slope := l.Slope
	parallel.For(m.C, func(q int) {
		x := m.Channel(q).Uint16s()
		for i, v := range x {
			if v&0x8000 == 0 {
				continue
			}
			if slope == 0 {
				x[i] = 0
			} else {
				x[i] = tensor.Float32ToBFloat16(tensor.BFloat16ToFloat32(v) * slope)
			}
		}
	}, opt.Parallel())
	return nil
}

func (l *ReLU) forwardInt8(m tensor.Mat, opt option.Option) error {
	slope := l.Slope
	parallel.For(m.C, func(q int) {
		x := m.Channel(q).Int8s()
		for i, v := range x {
			if v >= 0 {
				continue
			}
			if slope == 0 {
				x[i] = 0
			} else {
				x[i] = tensor.Float32ToInt8(float32(v) * slope)
			}
		}
	}, opt.Parallel())
	return nil
}

// AbsVal computes |x|.
type AbsVal struct {
	Base
}

// NewAbsVal creates an AbsVal layer.
func NewAbsVal() *AbsVal {
	return &AbsVal{Base: base(KindAbsVal, true, true, true, false)}
}

// ForwardInplace implements InplaceForwarder.
func (l *AbsVal) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	forEachChannel(*m, opt, func(x []float32) {
		for i, v := range x {
			x[i] = float32(math.Abs(float64(v)))
		}
	})
	return nil
}

// Sigmoid computes 1 / (1 + exp(-x)).
type Sigmoid struct {
	Base
}

// NewSigmoid creates a Sigmoid layer.
func NewSigmoid() *Sigmoid {
	return &Sigmoid{Base: base(KindSigmoid, true, true, true, false)}
}

// ForwardInplace implements InplaceForwarder.
func (l *Sigmoid) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	forEachChannel(*m, opt, func(x []float32) {
		activate(x, ActivationSigmoid, nil)
	})
	return nil
}

// TanH computes tanh(x).
type TanH struct {
	Base
}

// NewTanH creates a TanH layer.
func NewTanH() *TanH {
	return &TanH{Base: base(KindTanH, true, true, true, false)}
}

// ForwardInplace implements InplaceForwarder.
func (l *TanH) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	forEachChannel(*m, opt, func(x []float32) {
		for i, v := range x {
			x[i] = float32(math.Tanh(float64(v)))
		}
	})
	return nil
}

// HardSigmoid computes clamp(alpha*x + beta, 0, 1).
type HardSigmoid struct {
	Base
	Alpha, Beta float32
}

// NewHardSigmoid creates a HardSigmoid layer.
func NewHardSigmoid() *HardSigmoid {
	return &HardSigmoid{Base: base(KindHardSigmoid, true, true, true, false)}
}

// LoadParam implements Layer.
func (l *HardSigmoid) LoadParam(pd *serialization.ParamDict) error {
	l.Alpha = pd.GetFloat(0, 0.2)
	l.Beta = pd.GetFloat(1, 0.5)
	return nil
}

// ForwardInplace implements InplaceForwarder.
func (l *HardSigmoid) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	alpha, beta := l.Alpha, l.Beta
	forEachChannel(*m, opt, func(x []float32) {
		for i, v := range x {
			x[i] = min(max(alpha*v+beta, 0), 1)
		}
	})
	return nil
}

// HardSwish computes x * clamp(alpha*x + beta, 0, 1).
type HardSwish struct {
	Base
	Alpha, Beta float32
}

// NewHardSwish creates a HardSwish layer.
func NewHardSwish() *HardSwish {
	return &HardSwish{Base: base(KindHardSwish, true, true, true, false)}
}

// LoadParam implements Layer.
func (l *HardSwish) LoadParam(pd *serialization.ParamDict) error {
	l.Alpha = pd.GetFloat(0, 0.2)
	l.Beta = pd.GetFloat(1, 0.5)
	return nil
}

// ForwardInplace implements InplaceForwarder.
func (l *HardSwish) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	alpha, beta := l.Alpha, l.Beta
	forEachChannel(*m, opt, func(x []float32) {
		for i, v := range x {
			x[i] = v * min(max(alpha*v+beta, 0), 1)
		}
	})
	return nil
}

// Dropout is identity at inference, optionally scaled.
type Dropout struct {
	Base
	Scale float32
}

// NewDropout creates a Dropout layer.
func NewDropout() *Dropout {
	return &Dropout{Base: base(KindDropout, true, true, true, false)}
}

// LoadParam implements Layer.
func (l *Dropout) LoadParam(pd *serialization.ParamDict) error {
	l.Scale = pd.GetFloat(0, 1)
	return nil
}

// ForwardInplace implements InplaceForwarder.
func (l *Dropout) ForwardInplace(m *tensor.Mat, opt option.Option) error {
	if l.Scale == 1 {
		return nil
	}
	scale := l.Scale
	forEachChannel(*m, opt, func(x []float32) {
		for i := range x {
			x[i] *= scale
		}
	})
	return nil
}
