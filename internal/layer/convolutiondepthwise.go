package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// ConvolutionDepthWise is a grouped convolution; with Group equal to the
// channel count every channel is filtered on its own.
type ConvolutionDepthWise struct {
	Base
	ConvParams
	Group int

	WeightData           tensor.Mat
	BiasData             tensor.Mat
	WeightDataInt8Scales tensor.Mat // one per group
	BottomBlobInt8Scales tensor.Mat // one per group

	UseInt8Requantize bool
	TopBlobInt8Scale  float32

	useInt8 bool
	weights tensor.Mat
}

// NewConvolutionDepthWise creates a ConvolutionDepthWise layer.
func NewConvolutionDepthWise() *ConvolutionDepthWise {
	return &ConvolutionDepthWise{Base: base(KindConvolutionDepthWise, true, false, false, false)}
}

// LoadParam implements Layer.
func (l *ConvolutionDepthWise) LoadParam(pd *serialization.ParamDict) error {
	if err := l.load(pd); err != nil {
		return err
	}
	l.Group = pd.GetInt(7, 1)
	if l.Group <= 0 || l.NumOutput%l.Group != 0 {
		return fmt.Errorf("%w: num_output %d not divisible by group %d", ErrInvalidParam, l.NumOutput, l.Group)
	}
	return nil
}

// LoadModel implements Layer.
func (l *ConvolutionDepthWise) LoadModel(mb serialization.ModelBin) error {
	var err error
	if l.WeightData, err = mb.Load(l.WeightDataSize, serialization.LoadAuto); err != nil {
		return fmt.Errorf("weight data: %w", err)
	}
	if l.BiasTerm {
		if l.BiasData, err = mb.Load(l.NumOutput, serialization.LoadRaw); err != nil {
			return fmt.Errorf("bias data: %w", err)
		}
	}

	switch l.Int8ScaleTerm {
	case 0:
	case 1:
		if l.WeightDataInt8Scales, err = mb.Load(l.Group, serialization.LoadRaw); err != nil {
			return fmt.Errorf("weight int8 scales: %w", err)
		}
		if l.BottomBlobInt8Scales, err = mb.Load(l.Group, serialization.LoadRaw); err != nil {
			return fmt.Errorf("bottom int8 scales: %w", err)
		}
	case 2:
		// A single scale pair shared by every group.
		if l.WeightDataInt8Scales, err = l.loadBroadcast(mb); err != nil {
			return fmt.Errorf("weight int8 scale: %w", err)
		}
		if l.BottomBlobInt8Scales, err = l.loadBroadcast(mb); err != nil {
			return fmt.Errorf("bottom int8 scale: %w", err)
		}
	default:
		return fmt.Errorf("%w: int8_scale_term %d", ErrInvalidParam, l.Int8ScaleTerm)
	}
	return nil
}

func (l *ConvolutionDepthWise) loadBroadcast(mb serialization.ModelBin) (tensor.Mat, error) {
	s, err := mb.Load(1, serialization.LoadRaw)
	if err != nil {
		return s, err
	}
	defer s.Release()
	m := tensor.New1D(l.Group, 4, 1, nil)
	if m.Empty() {
		return m, ErrOutOfMemory
	}
	m.Fill(s.Float32s()[0])
	return m, nil
}

// QuantizedWeights reports whether the weights were stored as int8.
func (l *ConvolutionDepthWise) QuantizedWeights() bool {
	return isInt8(l.WeightData)
}

func (l *ConvolutionDepthWise) inch() int {
	return l.WeightDataSize / l.maxk() / l.NumOutput * l.Group
}

// CreatePipeline implements Layer.
func (l *ConvolutionDepthWise) CreatePipeline(opt option.Option) error {
	perGroup := l.WeightDataSize / l.Group
	l.useInt8 = l.Int8ScaleTerm != 0 && opt.UseInt8Inference

	switch {
	case l.useInt8 && !isInt8(l.WeightData):
		l.weights = quantizeWeights(l.WeightData, perGroup, l.WeightDataInt8Scales.Float32s())
	case !l.useInt8 && isInt8(l.WeightData):
		if l.WeightDataInt8Scales.Empty() {
			return fmt.Errorf("%w: int8 weights without scales", ErrInvalidParam)
		}
		l.weights = dequantizeWeights(l.WeightData, perGroup, l.WeightDataInt8Scales.Float32s())
	default:
		l.weights = l.WeightData.Share()
	}
	if l.weights.Empty() {
		return ErrOutOfMemory
	}
	return nil
}

// DestroyPipeline implements Layer.
func (l *ConvolutionDepthWise) DestroyPipeline(option.Option) error {
	l.weights.Release()
	return nil
}

// Forward implements Forwarder.
func (l *ConvolutionDepthWise) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	inch := l.inch()
	if bottom.C != inch {
		return tensor.Mat{}, fmt.Errorf("%w: %s into %d input channels", ErrShapeMismatch, bottom.Shape(), inch)
	}
	if l.useInt8 {
		return l.forwardInt8(bottom, opt)
	}
	if isInt8(bottom) {
		return tensor.Mat{}, fmt.Errorf("%w: int8 input to float convolution", ErrUnsupported)
	}

	in := l.padInput(bottom, func(int) float32 { return l.PadValue }, opt.WorkspaceAllocator)
	if in.Empty() {
		return in, ErrOutOfMemory
	}
	defer in.Release()

	g, err := l.geometry(in, inch, l.Group)
	if err != nil {
		return tensor.Mat{}, err
	}
	top := tensor.New3D(g.outw, g.outh, l.NumOutput, 4, 1, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}
	convolveDirect(top, in, l.weights.Float32s(), biasOf(l.BiasData), g, l.ActivationType, l.ActivationParams, opt)
	return top, nil
}

func (l *ConvolutionDepthWise) forwardInt8(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	cg := l.inch() / l.Group
	og := l.NumOutput / l.Group
	bottomScales := l.BottomBlobInt8Scales.Float32s()
	weightScales := l.WeightDataInt8Scales.Float32s()

	var q tensor.Mat
	if isInt8(bottom) {
		q = bottom.Share()
	} else {
		q = quantizeChannels(bottom, func(c int) float32 { return bottomScales[c/cg] }, opt.WorkspaceAllocator)
	}
	if q.Empty() {
		return q, ErrOutOfMemory
	}
	in := l.padInput(q, func(c int) float32 {
		return float32(tensor.Float32ToInt8(l.PadValue * bottomScales[c/cg]))
	}, opt.WorkspaceAllocator)
	q.Release()
	if in.Empty() {
		return in, ErrOutOfMemory
	}
	defer in.Release()

	g, err := l.geometry(in, l.inch(), l.Group)
	if err != nil {
		return tensor.Mat{}, err
	}

	elemsize := 4
	if l.UseInt8Requantize {
		elemsize = 1
	}
	top := tensor.New3D(g.outw, g.outh, l.NumOutput, elemsize, 1, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}

	bias := biasOf(l.BiasData)
	convolveInt8(in, l.weights.Int8s(), g, opt, func(p int, sums []int32) {
		grp := p / og
		var b float32
		if bias != nil {
			b = bias[p]
		}
		emitInt8(top, p, sums, dequantScale(bottomScales[grp], weightScales[grp]), b, l.ActivationType, l.ActivationParams, l.TopBlobInt8Scale)
	})
	return top, nil
}
