package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Padding borders each channel. When every pad amount is -233 the amounts
// come at run time from a second bottom holding four int32 values: top,
// bottom, left, right.
type Padding struct {
	Base
	Top, Bottom, Left, Right int
	Type                     int
	Value                    float32
	PerChannelPadDataSize    int

	PerChannelPadData tensor.Mat
}

// NewPadding creates a Padding layer.
func NewPadding() *Padding {
	return &Padding{Base: base(KindPadding, true, false, false, false)}
}

// LoadParam implements Layer.
func (l *Padding) LoadParam(pd *serialization.ParamDict) error {
	l.Top = pd.GetInt(0, 0)
	l.Bottom = pd.GetInt(1, 0)
	l.Left = pd.GetInt(2, 0)
	l.Right = pd.GetInt(3, 0)
	l.Type = pd.GetInt(4, tensor.BorderConstant)
	l.Value = pd.GetFloat(5, 0)
	l.PerChannelPadDataSize = pd.GetInt(6, 0)

	if l.Type < tensor.BorderConstant || l.Type > tensor.BorderReflect {
		return fmt.Errorf("%w: padding type %d", ErrInvalidParam, l.Type)
	}
	l.OneBlobOnly = !l.dynamic()
	return nil
}

// LoadModel implements Layer.
func (l *Padding) LoadModel(mb serialization.ModelBin) error {
	if l.PerChannelPadDataSize == 0 {
		return nil
	}
	m, err := mb.Load(l.PerChannelPadDataSize, serialization.LoadRaw)
	if err != nil {
		return fmt.Errorf("failed to load per channel pad data: %w", err)
	}
	l.PerChannelPadData = m
	return nil
}

func (l *Padding) dynamic() bool {
	return l.Top == -233 && l.Bottom == -233 && l.Left == -233 && l.Right == -233
}

// Forward implements Forwarder.
func (l *Padding) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	return l.pad(bottom, l.Top, l.Bottom, l.Left, l.Right, opt)
}

// ForwardMulti implements MultiForwarder.
func (l *Padding) ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if !l.dynamic() {
		top, err := l.Forward(bottoms[0], opt)
		if err != nil {
			return nil, err
		}
		return []tensor.Mat{top}, nil
	}
	if len(bottoms) != 2 {
		return nil, fmt.Errorf("%w: dynamic padding needs a reference blob", ErrShapeMismatch)
	}
	ref := bottoms[1].Int32s()
	if len(ref) < 4 {
		return nil, fmt.Errorf("%w: reference blob holds %d values", ErrShapeMismatch, len(ref))
	}
	top, err := l.pad(bottoms[0], int(ref[0]), int(ref[1]), int(ref[2]), int(ref[3]), opt)
	if err != nil {
		return nil, err
	}
	return []tensor.Mat{top}, nil
}

func (l *Padding) pad(bottom tensor.Mat, top, bot, left, right int, opt option.Option) (tensor.Mat, error) {
	if top < 0 || bot < 0 || left < 0 || right < 0 {
		return tensor.Mat{}, fmt.Errorf("%w: negative padding", ErrInvalidParam)
	}

	value := func(int) float32 { return l.Value }
	if l.PerChannelPadDataSize > 0 {
		if l.PerChannelPadDataSize < bottom.C {
			return tensor.Mat{}, fmt.Errorf("%w: %d pad values for %d channels", ErrShapeMismatch, l.PerChannelPadDataSize, bottom.C)
		}
		vals := l.PerChannelPadData.Float32s()
		value = func(q int) float32 { return vals[q] }
	}

	out := tensor.CopyMakeBorderPerChannel(bottom, top, bot, left, right, l.Type, value, opt.BlobAllocator)
	if out.Empty() {
		return out, ErrOutOfMemory
	}
	return out, nil
}
