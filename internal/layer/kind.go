package layer

// Kind identifies a built-in layer type. Values are the stable type
// indices used by binary param files.
type Kind int

// Built-in kinds.
const (
	KindAbsVal Kind = iota
	KindArgMax
	KindBatchNorm
	KindBias
	KindBNLL
	KindConcat
	KindConvolution
	KindCrop
	KindDeconvolution
	KindDropout
	KindEltwise
	KindELU
	KindEmbed
	KindExp
	KindFlatten
	KindInnerProduct
	KindInput
	KindLog
	KindLRN
	KindMemoryData
	KindMVN
	KindPooling
	KindPower
	KindPReLU
	KindProposal
	KindReduction
	KindReLU
	KindReshape
	KindROIPooling
	KindScale
	KindSigmoid
	KindSlice
	KindSoftmax
	KindSplit
	KindSPP
	KindTanH
	KindThreshold
	KindTile
	KindRNN
	KindLSTM
	KindBinaryOp
	KindUnaryOp
	KindConvolutionDepthWise
	KindPadding
	KindSqueeze
	KindExpandDims
	KindNormalize
	KindPermute
	KindPriorBox
	KindDetectionOutput
	KindInterp
	KindDeconvolutionDepthWise
	KindShuffleChannel
	KindInstanceNorm
	KindClip
	KindReorg
	KindYoloDetectionOutput
	KindQuantize
	KindDequantize
	KindYolov3DetectionOutput
	KindPSROIPooling
	KindROIAlign
	KindPacking
	KindRequantize
	KindCast
	KindHardSigmoid
	KindSELU
	KindHardSwish

	kindCount

	// KindCustom marks layers created from a custom registry.
	KindCustom Kind = -1
)

var kindNames = [kindCount]string{
	"AbsVal", "ArgMax", "BatchNorm", "Bias", "BNLL", "Concat", "Convolution", "Crop",
	"Deconvolution", "Dropout", "Eltwise", "ELU", "Embed", "Exp", "Flatten", "InnerProduct",
	"Input", "Log", "LRN", "MemoryData", "MVN", "Pooling", "Power", "PReLU",
	"Proposal", "Reduction", "ReLU", "Reshape", "ROIPooling", "Scale", "Sigmoid", "Slice",
	"Softmax", "Split", "SPP", "TanH", "Threshold", "Tile", "RNN", "LSTM",
	"BinaryOp", "UnaryOp", "ConvolutionDepthWise", "Padding", "Squeeze", "ExpandDims", "Normalize", "Permute",
	"PriorBox", "DetectionOutput", "Interp", "DeconvolutionDepthWise", "ShuffleChannel", "InstanceNorm", "Clip", "Reorg",
	"YoloDetectionOutput", "Quantize", "Dequantize", "Yolov3DetectionOutput", "PSROIPooling", "ROIAlign", "Packing", "Requantize",
	"Cast", "HardSigmoid", "SELU", "HardSwish",
}

// String returns the layer type name.
func (k Kind) String() string {
	if k >= 0 && k < kindCount {
		return kindNames[k]
	}
	return "Custom"
}

// KindOf returns the built-in kind of l, or KindCustom.
func KindOf(l Layer) Kind {
	idx := l.Meta().TypeIndex
	if idx&CustomBit != 0 || idx < 0 || idx >= int(kindCount) {
		return KindCustom
	}
	return Kind(idx)
}

// base returns a Base for a built-in kind with the given capabilities.
func base(k Kind, oneBlobOnly, inplace, packing, bf16 bool) Base {
	return Base{
		OneBlobOnly:        oneBlobOnly,
		SupportInplace:     inplace,
		SupportPacking:     packing,
		SupportBF16Storage: bf16,
		TypeIndex:          int(k),
		Type:               k.String(),
	}
}
