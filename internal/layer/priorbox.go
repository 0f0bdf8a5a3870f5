package layer

import (
	"fmt"
	"math"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// PriorBox generates SSD anchor boxes for every position of a feature map.
// Row 0 of the output holds normalized xmin, ymin, xmax, ymax per box and
// row 1 the matching variances.
type PriorBox struct {
	Base
	MinSizes     []float32
	MaxSizes     []float32
	AspectRatios []float32
	Variances    [4]float32
	Flip         bool
	Clip         bool
	ImageWidth   int
	ImageHeight  int
	StepWidth    float32
	StepHeight   float32
	Offset       float32
}

// NewPriorBox creates a PriorBox layer.
func NewPriorBox() *PriorBox {
	return &PriorBox{Base: base(KindPriorBox, false, false, false, false)}
}

// LoadParam implements Layer.
func (l *PriorBox) LoadParam(pd *serialization.ParamDict) error {
	l.MinSizes = pd.GetFloats(0, nil)
	l.MaxSizes = pd.GetFloats(1, nil)
	l.AspectRatios = pd.GetFloats(2, nil)
	l.Variances = [4]float32{pd.GetFloat(3, 0.1), pd.GetFloat(4, 0.1), pd.GetFloat(5, 0.2), pd.GetFloat(6, 0.2)}
	l.Flip = pd.GetInt(7, 1) != 0
	l.Clip = pd.GetInt(8, 0) != 0
	l.ImageWidth = pd.GetInt(9, 0)
	l.ImageHeight = pd.GetInt(10, 0)
	l.StepWidth = pd.GetFloat(11, -233)
	l.StepHeight = pd.GetFloat(12, -233)
	l.Offset = pd.GetFloat(13, 0)

	if len(l.MinSizes) == 0 {
		return fmt.Errorf("%w: priorbox needs min_sizes", ErrInvalidParam)
	}
	if len(l.MaxSizes) != 0 && len(l.MaxSizes) != len(l.MinSizes) {
		return fmt.Errorf("%w: %d max_sizes for %d min_sizes", ErrInvalidParam, len(l.MaxSizes), len(l.MinSizes))
	}
	return nil
}

// NumPriors returns the number of boxes emitted per feature map position.
func (l *PriorBox) NumPriors() int {
	n := len(l.MinSizes) * (1 + len(l.AspectRatios))
	if l.Flip {
		n += len(l.MinSizes) * len(l.AspectRatios)
	}
	return n + len(l.MaxSizes)
}

// ForwardMulti implements MultiForwarder. bottoms[0] is the feature map and
// bottoms[1], when present, the network input image.
func (l *PriorBox) ForwardMulti(bottoms []tensor.Mat, opt option.Option) ([]tensor.Mat, error) {
	if len(bottoms) == 0 {
		return nil, fmt.Errorf("%w: priorbox needs a feature blob", ErrShapeMismatch)
	}
	w, h := bottoms[0].W, bottoms[0].H

	imageW, imageH := l.ImageWidth, l.ImageHeight
	if imageW <= 0 || imageH <= 0 {
		if len(bottoms) < 2 {
			return nil, fmt.Errorf("%w: priorbox needs an image blob or image size", ErrShapeMismatch)
		}
		imageW, imageH = bottoms[1].W, bottoms[1].H
	}
	stepW, stepH := l.StepWidth, l.StepHeight
	if stepW == -233 {
		stepW = float32(imageW) / float32(w)
	}
	if stepH == -233 {
		stepH = float32(imageH) / float32(h)
	}

	numPrior := l.NumPriors()
	top := tensor.New2D(4*w*h*numPrior, 2, 4, 1, opt.BlobAllocator)
	if top.Empty() {
		return nil, ErrOutOfMemory
	}

	iw, ih := float32(imageW), float32(imageH)
	boxes := top.Row(0)
	n := 0
	put := func(cx, cy, bw, bh float32) {
		boxes[n] = (cx - bw*0.5) / iw
		boxes[n+1] = (cy - bh*0.5) / ih
		boxes[n+2] = (cx + bw*0.5) / iw
		boxes[n+3] = (cy + bh*0.5) / ih
		n += 4
	}

	for i := range h {
		cy := (float32(i) + l.Offset) * stepH
		for j := range w {
			cx := (float32(j) + l.Offset) * stepW
			for k, minSize := range l.MinSizes {
				put(cx, cy, minSize, minSize)
				if len(l.MaxSizes) > 0 {
					s := float32(math.Sqrt(float64(minSize * l.MaxSizes[k])))
					put(cx, cy, s, s)
				}
				for _, ar := range l.AspectRatios {
					r := float32(math.Sqrt(float64(ar)))
					put(cx, cy, minSize*r, minSize/r)
					if l.Flip {
						put(cx, cy, minSize/r, minSize*r)
					}
				}
			}
		}
	}

	if l.Clip {
		for i, v := range boxes {
			boxes[i] = min(max(v, 0), 1)
		}
	}

	variances := top.Row(1)
	for i := 0; i < len(variances); i += 4 {
		copy(variances[i:i+4], l.Variances[:])
	}
	return []tensor.Mat{top}, nil
}
