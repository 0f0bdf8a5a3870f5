package layer

import (
	"fmt"
	"math"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// Pooling types.
const (
	PoolMax = 0
	PoolAvg = 1
)

// Pooling pad modes.
const (
	PadFull      = 0 // Pad the tail so the last window is complete.
	PadValid     = 1
	PadSameUpper = 2
	PadSameLower = 3
)

// Pooling reduces each kernel window to its maximum or mean.
type Pooling struct {
	Base
	PoolingType            int
	KernelW, KernelH       int
	StrideW, StrideH       int
	PadLeft, PadRight      int
	PadTop, PadBottom      int
	GlobalPooling          bool
	PadMode                int
	AvgPoolCountIncludePad bool
}

// NewPooling creates a Pooling layer.
func NewPooling() *Pooling {
	return &Pooling{Base: base(KindPooling, true, false, false, false)}
}

// LoadParam implements Layer.
func (l *Pooling) LoadParam(pd *serialization.ParamDict) error {
	l.PoolingType = pd.GetInt(0, PoolMax)
	l.KernelW = pd.GetInt(1, 0)
	l.KernelH = pd.GetInt(11, l.KernelW)
	l.StrideW = pd.GetInt(2, 1)
	l.StrideH = pd.GetInt(12, l.StrideW)
	l.PadLeft = pd.GetInt(3, 0)
	l.PadRight = pd.GetInt(14, l.PadLeft)
	l.PadTop = pd.GetInt(13, l.PadLeft)
	l.PadBottom = pd.GetInt(15, l.PadTop)
	l.GlobalPooling = pd.GetInt(4, 0) != 0
	l.PadMode = pd.GetInt(5, PadFull)
	l.AvgPoolCountIncludePad = pd.GetInt(6, 0) != 0

	if l.PoolingType != PoolMax && l.PoolingType != PoolAvg {
		return fmt.Errorf("%w: pooling type %d", ErrInvalidParam, l.PoolingType)
	}
	if !l.GlobalPooling && (l.KernelW <= 0 || l.KernelH <= 0 || l.StrideW <= 0 || l.StrideH <= 0) {
		return fmt.Errorf("%w: kernel %dx%d stride %dx%d", ErrInvalidParam, l.KernelW, l.KernelH, l.StrideW, l.StrideH)
	}
	return nil
}

// Forward implements Forwarder.
func (l *Pooling) Forward(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	if l.GlobalPooling {
		return l.forwardGlobal(bottom, opt)
	}

	w, h := bottom.W, bottom.H
	pt, pb, pl, pr := l.PadTop, l.PadBottom, l.PadLeft, l.PadRight
	wtail, htail := 0, 0

	switch l.PadMode {
	case PadFull:
		if r := (w + pl + pr - l.KernelW) % l.StrideW; r != 0 {
			wtail = l.StrideW - r
		}
		if r := (h + pt + pb - l.KernelH) % l.StrideH; r != 0 {
			htail = l.StrideH - r
		}
	case PadSameUpper, PadSameLower:
		wpad := l.KernelW + (w-1)/l.StrideW*l.StrideW - w
		hpad := l.KernelH + (h-1)/l.StrideH*l.StrideH - h
		wpad, hpad = max(wpad, 0), max(hpad, 0)
		pt, pb, pl, pr = hpad/2, hpad-hpad/2, wpad/2, wpad-wpad/2
		if l.PadMode == PadSameLower {
			pt, pb, pl, pr = pb, pt, pr, pl
		}
	}

	fill := float32(0)
	if l.PoolingType == PoolMax {
		fill = -math.MaxFloat32
	}
	bordered := tensor.CopyMakeBorder(bottom, pt, pb+htail, pl, pr+wtail, tensor.BorderConstant, fill, opt.WorkspaceAllocator)
	if bordered.Empty() {
		return bordered, ErrOutOfMemory
	}
	defer bordered.Release()

	bw, bh := bordered.W, bordered.H
	outw := (bw-l.KernelW)/l.StrideW + 1
	outh := (bh-l.KernelH)/l.StrideH + 1
	if outw <= 0 || outh <= 0 {
		return tensor.Mat{}, fmt.Errorf("%w: %s too small for kernel %dx%d", ErrShapeMismatch, bottom.Shape(), l.KernelW, l.KernelH)
	}

	top := tensor.New3D(outw, outh, bottom.C, 4, 1, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}

	// Window rows and columns that hold real data, for averages that exclude padding.
	x0, x1 := pl, bw-pr-wtail
	y0, y1 := pt, bh-pb-htail

	parallel.For(bottom.C, func(q int) {
		in := bordered.Channel(q).Float32s()
		out := top.Channel(q).Float32s()
		for i := range outh {
			for j := range outw {
				sx0, sy0 := j*l.StrideW, i*l.StrideH
				if l.PoolingType == PoolMax {
					m := float32(-math.MaxFloat32)
					for ky := range l.KernelH {
						row := in[(sy0+ky)*bw+sx0:]
						for kx := range l.KernelW {
							m = max(m, row[kx])
						}
					}
					out[i*outw+j] = m
					continue
				}

				sum, area := float32(0), 0
				for ky := range l.KernelH {
					sy := sy0 + ky
					for kx := range l.KernelW {
						sx := sx0 + kx
						if !l.AvgPoolCountIncludePad && (sy < y0 || sy >= y1 || sx < x0 || sx >= x1) {
							continue
						}
						sum += in[sy*bw+sx]
						area++
					}
				}
				if area > 0 {
					out[i*outw+j] = sum / float32(area)
				} else {
					out[i*outw+j] = 0
				}
			}
		}
	}, opt.Parallel())

	return top, nil
}

func (l *Pooling) forwardGlobal(bottom tensor.Mat, opt option.Option) (tensor.Mat, error) {
	top := tensor.New1D(bottom.C, 4, 1, opt.BlobAllocator)
	if top.Empty() {
		return top, ErrOutOfMemory
	}
	out := top.Float32s()
	size := bottom.W * bottom.H

	parallel.For(bottom.C, func(q int) {
		in := bottom.Channel(q).Float32s()[:size]
		if l.PoolingType == PoolMax {
			m := in[0]
			for _, v := range in[1:] {
				m = max(m, v)
			}
			out[q] = m
			return
		}
		var sum float32
		for _, v := range in {
			sum += v
		}
		out[q] = sum / float32(size)
	}, opt.Parallel())

	return top, nil
}
