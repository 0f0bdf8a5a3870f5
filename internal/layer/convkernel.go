package layer

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/tensor"
)

// convGeometry describes a grouped 2-D convolution over an already padded input.
type convGeometry struct {
	inch, outch, group int

	kernelW, kernelH     int
	dilationW, dilationH int
	strideW, strideH     int

	w          int // padded input width
	outw, outh int
}

func (g convGeometry) maxk() int { return g.kernelW * g.kernelH }

// spaceOffsets returns the input offset of every kernel tap relative to the window origin.
func (g convGeometry) spaceOffsets() []int {
	ofs := make([]int, 0, g.maxk())
	gap := g.w*g.dilationH - g.kernelW*g.dilationW
	p := 0
	for range g.kernelH {
		for range g.kernelW {
			ofs = append(ofs, p)
			p += g.dilationW
		}
		p += gap
	}
	return ofs
}

// outputSize returns the spatial output extent for a padded input of w x h.
func outputSize(w, h, kernelW, kernelH, dilationW, dilationH, strideW, strideH int) (int, int) {
	extW := dilationW*(kernelW-1) + 1
	extH := dilationH*(kernelH-1) + 1
	return (w-extW)/strideW + 1, (h-extH)/strideH + 1
}

// convolveDirect computes a grouped float32 convolution with weights laid out as
// [outch][inch/group][kh][kw].
func convolveDirect(top, in tensor.Mat, weights, bias []float32, g convGeometry, act int, params []float32, opt option.Option) {
	ofs := g.spaceOffsets()
	maxk := len(ofs)
	cg := g.inch / g.group
	og := g.outch / g.group

	parallel.For(g.outch, func(p int) {
		grp := p / og
		out := top.Channel(p).Float32s()
		for i := range g.outh {
			for j := range g.outw {
				var sum float32
				if bias != nil {
					sum = bias[p]
				}
				for q := range cg {
					src := in.Channel(grp*cg + q).Float32s()[i*g.strideH*g.w+j*g.strideW:]
					k := weights[(p*cg+q)*maxk:]
					for t, o := range ofs {
						sum += src[o] * k[t]
					}
				}
				out[i*g.outw+j] = sum
			}
		}
		activate(out[:g.outw*g.outh], act, params)
	}, opt.Parallel())
}

// convolveInt8 accumulates a grouped int8 convolution and hands the int32 sums of
// each output channel to emit.
func convolveInt8(in tensor.Mat, weights []int8, g convGeometry, opt option.Option, emit func(p int, sums []int32)) {
	ofs := g.spaceOffsets()
	maxk := len(ofs)
	cg := g.inch / g.group
	og := g.outch / g.group

	parallel.For(g.outch, func(p int) {
		grp := p / og
		sums := make([]int32, g.outw*g.outh)
		for i := range g.outh {
			for j := range g.outw {
				var sum int32
				for q := range cg {
					src := in.Channel(grp*cg + q).Int8s()[i*g.strideH*g.w+j*g.strideW:]
					k := weights[(p*cg+q)*maxk:]
					for t, o := range ofs {
						sum += int32(src[o]) * int32(k[t])
					}
				}
				sums[i*g.outw+j] = sum
			}
		}
		emit(p, sums)
	}, opt.Parallel())
}

// emitInt8 writes dequantized, biased and activated sums into channel p of top,
// requantizing with requant when top holds int8.
func emitInt8(top tensor.Mat, p int, sums []int32, scale, bias float32, act int, params []float32, requant float32) {
	ch := top.Channel(p)
	if isInt8(top) {
		out := ch.Int8s()
		for i, s := range sums {
			v := activateScalar(float32(s)*scale+bias, act, params)
			out[i] = tensor.Float32ToInt8(v * requant)
		}
		return
	}
	out := ch.Float32s()[:len(sums)]
	for i, s := range sums {
		out[i] = float32(s)*scale + bias
	}
	activate(out, act, params)
}

// convolveSgemm lowers the input with im2col and multiplies it by the weight
// matrix. It only handles a single group.
func convolveSgemm(top, in tensor.Mat, weights, bias []float32, g convGeometry, act int, params []float32, opt option.Option) bool {
	ofs := g.spaceOffsets()
	maxk := len(ofs)
	k := g.inch * maxk
	n := g.outw * g.outh

	col := tensor.New2D(n, k, 4, 1, opt.WorkspaceAllocator)
	if col.Empty() {
		return false
	}
	defer col.Release()

	cols := col.Float32s()
	parallel.For(g.inch, func(q int) {
		src := in.Channel(q).Float32s()
		for t, o := range ofs {
			row := cols[(q*maxk+t)*n:]
			for i := range g.outh {
				base := i*g.strideH*g.w + o
				for j := range g.outw {
					row[i*g.outw+j] = src[base+j*g.strideW]
				}
			}
		}
	}, opt.Parallel())

	out := top.Float32s()
	for p := range g.outch {
		ch := out[p*top.Cstep : p*top.Cstep+n]
		if bias != nil {
			for i := range ch {
				ch[i] = bias[p]
			}
		} else {
			clear(ch)
		}
	}

	a := blas32.General{Rows: g.outch, Cols: k, Stride: k, Data: weights[:g.outch*k]}
	b := blas32.General{Rows: k, Cols: n, Stride: n, Data: cols[:k*n]}
	c := blas32.General{Rows: g.outch, Cols: n, Stride: top.Cstep, Data: out}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 1, c)

	forEachChannel(top, opt, func(x []float32) {
		activate(x[:n], act, params)
	})
	return true
}
