package layer

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// InnerProduct is a fully connected layer over the flattened input.
type InnerProduct struct {
	Base
	NumOutput        int
	BiasTerm         bool
	WeightDataSize   int
	Int8ScaleTerm    int
	ActivationType   int
	ActivationParams []float32

	WeightData           tensor.Mat
	BiasData             tensor.Mat
	WeightDataInt8Scales tensor.Mat
	BottomBlobInt8Scale  float32

	useInt8 bool
	weights tensor.Mat
}

// NewInnerProduct creates an InnerProduct layer.
func NewInnerProduct() *InnerProduct {
	return &InnerProduct{Base: base(KindInnerProduct, true, false, false, false)}
}

// LoadParam implements Layer.
func (l *InnerProduct) LoadParam(pd *serialization.ParamDict) error {
	l.NumOutput = pd.GetInt(0, 0)
	l.BiasTerm = pd.GetInt(1, 0) != 0
	l.WeightDataSize = pd.GetInt(2, 0)
	l.Int8ScaleTerm = pd.GetInt(8, 0)
	l.ActivationType = pd.GetInt(9, ActivationNone)
	l.ActivationParams = pd.GetFloats(10, nil)
	return l.validate()
}

func (l *InnerProduct) validate() error {
	if l.NumOutput <= 0 || l.WeightDataSize <= 0 || l.WeightDataSize%l.NumOutput != 0 {
		return fmt.Errorf("%w: num_output %d weight_data_size %d", ErrInvalidParam, l.NumOutput, l.WeightDataSize)
	}
	return validateActivation(l.ActivationType, l.ActivationParams)
}

// LoadModel implements Layer.
func (l *InnerProduct) LoadModel(mb serialization.ModelBin) error {
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

// CreatePipeline implements Layer.
func (l *InnerProduct) CreatePipeline(opt option.Option) error {
	numInput := l.WeightDataSize / l.NumOutput
	l.useInt8 = l.Int8ScaleTerm != 0 && opt.UseInt8Inference

	switch {
	case l.useInt8 && !isInt8(l.WeightData):
		l.weights = quantizeWeights(l.WeightData, numInput, l.WeightDataInt8Scales.Float32s())
	case !l.useInt8 && isInt8(l.WeightData):
		if l.WeightDataInt8Scales.Empty() {
			return fmt.Errorf("%w: int8 weights without scales", ErrInvalidParam)
		}
		l.weights = dequantizeWeights(l.WeightData, numInput, l.WeightDataInt8Scales.Float32s())
	default:
		l.weights = l.WeightData.Share()
	}
	if l.weights.Empty() {
		return ErrOutOfMemory
	}
	return nil
}

// DestroyPipeline implements Layer.
func (l *InnerProduct) DestroyPipeline(option.Option) error {
	l.weights.Release()
	return nil
}

// Forward implements Forwarder.
func (l *InnerProduct) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	numInput := l.WeightDataSize / l.NumOutput
	size := bottom.W * bottom.H * bottom.C
	if size != numInput {
		return tensor.Mat{}, fmt.Errorf("%w: %s into %d inputs", ErrShapeMismatch, bottom.Shape(), numInput)
	}

	flat := bottom.Reshape(opt.WorkspaceAllocator, size)
	if flat.Empty() {
		return flat, ErrOutOfMemory
	}
	defer flat.Release()

	top := tensor.New1D(l.NumOutput, 4, 1, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}
	out := top.Float32s()[:l.NumOutput]

	if l.useInt8 {
		l.forwardInt8(flat, out, opt)
	} else {
		if l.BiasTerm {
			copy(out, l.BiasData.Float32s())
		} else {
			clear(out)
		}
		a := blas32.General{Rows: l.NumOutput, Cols: numInput, Stride: numInput, Data: l.weights.Float32s()[:l.WeightDataSize]}
		x := blas32.Vector{N: numInput, Inc: 1, Data: flat.Float32s()[:numInput]}
		y := blas32.Vector{N: l.NumOutput, Inc: 1, Data: out}
		blas32.Gemv(blas.NoTrans, 1, a, x, 1, y)
	}

	activate(out, l.ActivationType, l.ActivationParams)
	return top, nil
}

func (l *InnerProduct) forwardInt8(flat tensor.Mat, out []float32, opt option.Option) {
	numInput := l.WeightDataSize / l.NumOutput

	var in []int8
	if isInt8(flat) {
		in = flat.Int8s()[:numInput]
	} else {
		in = make([]int8, numInput)
		for i, v := range flat.Float32s()[:numInput] {
			in[i] = tensor.Float32ToInt8(v * l.BottomBlobInt8Scale)
		}
	}

	w := l.weights.Int8s()
	scales := l.WeightDataInt8Scales.Float32s()
	parallel.For(l.NumOutput, func(p int) {
		row := w[p*numInput : (p+1)*numInput]
		var sum int32
		for i, v := range in {
			sum += int32(v) * int32(row[i])
		}
		v := float32(sum) * dequantScale(l.BottomBlobInt8Scale, scales[p])
		if l.BiasTerm {
			v += l.BiasData.Float32s()[p]
		}
		out[p] = v
	}, opt.Parallel())
}
