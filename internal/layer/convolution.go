package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/allocator"
	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Pad amounts that request automatic SAME padding.
const (
	PadSameUpperAuto = -233
	PadSameLowerAuto = -234
)

// ConvParams are the parameters shared by Convolution and ConvolutionDepthWise.
type ConvParams struct {
	NumOutput            int
	KernelW, KernelH     int
	DilationW, DilationH int
	StrideW, StrideH     int
	PadLeft, PadRight    int
	PadTop, PadBottom    int
	PadValue             float32
	BiasTerm             bool
	WeightDataSize       int
	Int8ScaleTerm        int
	ActivationType       int
	ActivationParams     []float32
}

func (c *ConvParams) load(pd *serialization.ParamDict) error {
	c.NumOutput = pd.GetInt(0, 0)
	c.KernelW = pd.GetInt(1, 0)
	c.KernelH = pd.GetInt(11, c.KernelW)
	c.DilationW = pd.GetInt(2, 1)
	c.DilationH = pd.GetInt(12, c.DilationW)
	c.StrideW = pd.GetInt(3, 1)
	c.StrideH = pd.GetInt(13, c.StrideW)
	c.PadLeft = pd.GetInt(4, 0)
	c.PadRight = pd.GetInt(15, c.PadLeft)
	c.PadTop = pd.GetInt(14, c.PadLeft)
	c.PadBottom = pd.GetInt(16, c.PadTop)
	c.PadValue = pd.GetFloat(18, 0)
	c.BiasTerm = pd.GetInt(5, 0) != 0
	c.WeightDataSize = pd.GetInt(6, 0)
	c.Int8ScaleTerm = pd.GetInt(8, 0)
	c.ActivationType = pd.GetInt(9, ActivationNone)
	c.ActivationParams = pd.GetFloats(10, nil)

	if c.NumOutput <= 0 || c.KernelW <= 0 || c.KernelH <= 0 {
		return fmt.Errorf("%w: num_output %d kernel %dx%d", ErrInvalidParam, c.NumOutput, c.KernelW, c.KernelH)
	}
	if c.StrideW <= 0 || c.StrideH <= 0 || c.DilationW <= 0 || c.DilationH <= 0 {
		return fmt.Errorf("%w: stride %dx%d dilation %dx%d", ErrInvalidParam, c.StrideW, c.StrideH, c.DilationW, c.DilationH)
	}
	if c.WeightDataSize <= 0 || c.WeightDataSize%(c.NumOutput*c.maxk()) != 0 {
		return fmt.Errorf("%w: weight_data_size %d for %d outputs of %dx%d", ErrInvalidParam, c.WeightDataSize, c.NumOutput, c.KernelW, c.KernelH)
	}
	return validateActivation(c.ActivationType, c.ActivationParams)
}

func (c *ConvParams) maxk() int { return c.KernelW * c.KernelH }

// padInput applies explicit or SAME padding; value gives the constant per channel.
func (c *ConvParams) padInput(bottom tensor.Mat, value func(q int) float32, a allocator.Allocator) tensor.Mat {
	top, bot, left, right := c.PadTop, c.PadBottom, c.PadLeft, c.PadRight
	if left == PadSameUpperAuto || left == PadSameLowerAuto {
		extW := c.DilationW*(c.KernelW-1) + 1
		extH := c.DilationH*(c.KernelH-1) + 1
		wpad := max(extW+(bottom.W-1)/c.StrideW*c.StrideW-bottom.W, 0)
		hpad := max(extH+(bottom.H-1)/c.StrideH*c.StrideH-bottom.H, 0)
		if left == PadSameUpperAuto {
			top, bot, left, right = hpad/2, hpad-hpad/2, wpad/2, wpad-wpad/2
		} else {
			top, bot, left, right = hpad-hpad/2, hpad/2, wpad-wpad/2, wpad/2
		}
	}
	return tensor.CopyMakeBorderPerChannel(bottom, top, bot, left, right, tensor.BorderConstant, value, a)
}

func (c *ConvParams) geometry(in tensor.Mat, inch, group int) (convGeometry, error) {
	outw, outh := outputSize(in.W, in.H, c.KernelW, c.KernelH, c.DilationW, c.DilationH, c.StrideW, c.StrideH)
	if outw <= 0 || outh <= 0 {
		return convGeometry{}, fmt.Errorf("%w: padded input %s too small for kernel %dx%d", ErrShapeMismatch, in.Shape(), c.KernelW, c.KernelH)
	}
	return convGeometry{
		inch: inch, outch: c.NumOutput, group: group,
		kernelW: c.KernelW, kernelH: c.KernelH,
		dilationW: c.DilationW, dilationH: c.DilationH,
		strideW: c.StrideW, strideH: c.StrideH,
		w: in.W, outw: outw, outh: outh,
	}, nil
}

func biasOf(bias tensor.Mat) []float32 {
	if bias.Empty() {
		return nil
	}
	return bias.Float32s()
}

type convImpl int

const (
	convDirect convImpl = iota
	convSgemm
	convWinograd
	convInt8
)

func (i convImpl) String() string {
	return [...]string{"direct", "sgemm", "winograd", "int8"}[i]
}

// Convolution is a 2-D convolution. CreatePipeline picks the kernel: int8 when
// the layer carries quantization scales and int8 inference is on, then
// Winograd F(2,3) for wide 3x3 stride 1 layers, then im2col with sgemm, then
// a direct loop.
type Convolution struct {
	Base
	ConvParams

	WeightData           tensor.Mat
	BiasData             tensor.Mat
	WeightDataInt8Scales tensor.Mat
	BottomBlobInt8Scale  float32

	// Set by the requantize fusion: the int8 result is handed to the next
	// int8 layer scaled by TopBlobInt8Scale.
	UseInt8Requantize bool
	TopBlobInt8Scale  float32

	impl         convImpl
	weights      tensor.Mat
	innerProduct *InnerProduct
}

// NewConvolution creates a Convolution layer.
func NewConvolution() *Convolution {
	return &Convolution{Base: base(KindConvolution, true, false, false, false)}
}

// LoadParam implements Layer.
func (l *Convolution) LoadParam(pd *serialization.ParamDict) error {
	return l.load(pd)
}

// LoadModel implements Layer.
func (l *Convolution) LoadModel(mb serialization.ModelBin) error {
	var err error
	if l.WeightData, err = mb.Load(l.WeightDataSize, serialization.LoadAuto); err != nil {
		return fmt.Errorf("weight data: %w", err)
	}
	if l.BiasTerm {
		if l.BiasData, err = mb.Load(l.NumOutput, serialization.LoadRaw); err != nil {
			return fmt.Errorf("bias data: %w", err)
		}
	}
	if l.Int8ScaleTerm != 0 {
		if l.WeightDataInt8Scales, err = mb.Load(l.NumOutput, serialization.LoadRaw); err != nil {
			return fmt.Errorf("weight int8 scales: %w", err)
		}
		s, err := mb.Load(1, serialization.LoadRaw)
		if err != nil {
			return fmt.Errorf("bottom int8 scale: %w", err)
		}
		l.BottomBlobInt8Scale = s.Float32s()[0]
		s.Release()
	}
	return nil
}

// QuantizedWeights reports whether the weights were stored as int8.
func (l *Convolution) QuantizedWeights() bool {
	return isInt8(l.WeightData)
}

func (l *Convolution) inch() int {
	return l.WeightDataSize / l.maxk() / l.NumOutput
}

// CreatePipeline implements Layer.
func (l *Convolution) CreatePipeline(opt option.Option) error {
	inch := l.inch()

	if l.KernelW == 1 && l.KernelH == 1 {
		if err := l.createInnerProduct(opt); err != nil {
			return err
		}
	}

	if l.Int8ScaleTerm != 0 && opt.UseInt8Inference {
		l.impl = convInt8
		if isInt8(l.WeightData) {
			l.weights = l.WeightData.Share()
		} else {
			l.weights = quantizeWeights(l.WeightData, inch*l.maxk(), l.WeightDataInt8Scales.Float32s())
		}
		if l.weights.Empty() {
			return ErrOutOfMemory
		}
		return nil
	}

	w := l.WeightData.Share()
	if isInt8(w) {
		if l.WeightDataInt8Scales.Empty() {
			w.Release()
			return fmt.Errorf("%w: int8 weights without scales", ErrInvalidParam)
		}
		f := dequantizeWeights(w, inch*l.maxk(), l.WeightDataInt8Scales.Float32s())
		w.Release()
		w = f
	}
	if w.Empty() {
		return ErrOutOfMemory
	}

	switch {
	case opt.UseWinogradConvolution && l.winogradEligible(inch):
		l.impl = convWinograd
		l.weights = winogradTransformKernels(w.Float32s(), l.NumOutput, inch)
		w.Release()
		if l.weights.Empty() {
			return ErrOutOfMemory
		}
	case opt.UseSgemmConvolution:
		l.impl = convSgemm
		l.weights = w
	default:
		l.impl = convDirect
		l.weights = w
	}
	return nil
}

func (l *Convolution) winogradEligible(inch int) bool {
	return l.KernelW == 3 && l.KernelH == 3 &&
		l.StrideW == 1 && l.StrideH == 1 &&
		l.DilationW == 1 && l.DilationH == 1 &&
		inch >= 16 && l.NumOutput >= 16
}

// createInnerProduct prepares the fully connected equivalent used for 1-D input.
func (l *Convolution) createInnerProduct(opt option.Option) error {
	ip := NewInnerProduct()
	ip.Name = l.Name
	ip.NumOutput = l.NumOutput
	ip.BiasTerm = l.BiasTerm
	ip.WeightDataSize = l.WeightDataSize
	ip.Int8ScaleTerm = l.Int8ScaleTerm
	ip.ActivationType = l.ActivationType
	ip.ActivationParams = l.ActivationParams

	weights := []tensor.Mat{l.WeightData}
	if l.BiasTerm {
		weights = append(weights, l.BiasData)
	}
	if l.Int8ScaleTerm != 0 {
		scale := tensor.FromFloat32([]float32{l.BottomBlobInt8Scale}, 1)
		defer scale.Release()
		weights = append(weights, l.WeightDataInt8Scales, scale)
	}
	if err := ip.LoadModel(serialization.NewModelBinFromMatArray(weights)); err != nil {
		return fmt.Errorf("inner product delegate: %w", err)
	}
	if err := ip.CreatePipeline(opt); err != nil {
		return fmt.Errorf("inner product delegate: %w", err)
	}
	l.innerProduct = ip
	return nil
}

// DestroyPipeline implements Layer.
func (l *Convolution) DestroyPipeline(opt option.Option) error {
	l.weights.Release()
	if l.innerProduct != nil {
		if err := l.innerProduct.DestroyPipeline(opt); err != nil {
			return err
		}
		l.innerProduct = nil
	}
	return nil
}

// Forward implements Forwarder.
func (l *Convolution) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	if bottom.Dims == 1 && l.innerProduct != nil {
		return l.innerProduct.Forward(bottom, opt)
	}
	inch := l.inch()
	if bottom.C != inch {
		return tensor.Mat{}, fmt.Errorf("%w: %s into %d input channels", ErrShapeMismatch, bottom.Shape(), inch)
	}
	if l.impl == convInt8 {
		return l.forwardInt8(bottom, opt)
	}
	if isInt8(bottom) {
		return tensor.Mat{}, fmt.Errorf("%w: int8 input to %s convolution", ErrUnsupported, l.impl)
	}

	in := l.padInput(bottom, func(int) float32 { return l.PadValue }, opt.WorkspaceAllocator)
	if in.Empty() {
		return in, ErrOutOfMemory
	}
	defer in.Release()

	g, err := l.geometry(in, inch, 1)
	if err != nil {
		return tensor.Mat{}, err
	}

	top := tensor.New3D(g.outw, g.outh, l.NumOutput, 4, 1, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}

	ok := true
	bias := biasOf(l.BiasData)
	switch l.impl {
	case convWinograd:
		// Cover whole 2x2 output tiles.
		extraW := ((g.outw+1)/2)*2 + 2 - in.W
		extraH := ((g.outh+1)/2)*2 + 2 - in.H
		tiled := tensor.CopyMakeBorder(in, 0, extraH, 0, extraW, tensor.BorderConstant, 0, opt.WorkspaceAllocator)
		if ok = !tiled.Empty(); ok {
			g.w = tiled.W
			ok = convolveWinograd(top, tiled, l.weights.Float32s(), bias, g, l.ActivationType, l.ActivationParams, opt)
			tiled.Release()
		}
	case convSgemm:
		ok = convolveSgemm(top, in, l.weights.Float32s(), bias, g, l.ActivationType, l.ActivationParams, opt)
	default:
		convolveDirect(top, in, l.weights.Float32s(), bias, g, l.ActivationType, l.ActivationParams, opt)
	}
	if !ok {
		top.Release()
		return tensor.Mat{}, ErrOutOfMemory
	}
	return top, nil
}

func (l *Convolution) forwardInt8(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	scale := l.BottomBlobInt8Scale

	var q tensor.Mat
	if isInt8(bottom) {
		q = bottom.Share()
	} else {
		q = quantizeChannels(bottom, func(int) float32 { return scale }, opt.WorkspaceAllocator)
	}
	if q.Empty() {
		return q, ErrOutOfMemory
	}
	padValue := float32(tensor.Float32ToInt8(l.PadValue * scale))
	in := l.padInput(q, func(int) float32 { return padValue }, opt.WorkspaceAllocator)
	q.Release()
	if in.Empty() {
		return in, ErrOutOfMemory
	}
	defer in.Release()

	g, err := l.geometry(in, l.inch(), 1)
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

	scales := l.WeightDataInt8Scales.Float32s()
	bias := biasOf(l.BiasData)
	convolveInt8(in, l.weights.Int8s(), g, opt, func(p int, sums []int32) {
		var b float32
		if bias != nil {
			b = bias[p]
		}
		emitInt8(top, p, sums, dequantScale(scale, scales[p]), b, l.ActivationType, l.ActivationParams, l.TopBlobInt8Scale)
	})
	return top, nil
}
