package layer

import (
	"github.com/born-ml/lite/internal/option"
	"github.com/born-ml/lite/internal/parallel"
	"github.com/born-ml/lite/internal/tensor"
)

// Winograd F(2x2, 3x3) transforms.
var (
	winogradG = [4][3]float32{
		{1, 0, 0},
		{0.5, 0.5, 0.5},
		{0.5, -0.5, 0.5},
		{0, 0, 1},
	}
	winogradBT = [4][4]float32{
		{1, 0, -1, 0},
		{0, 1, 1, 0},
		{0, -1, 1, 0},
		{0, 1, 0, -1},
	}
	winogradAT = [2][4]float32{
		{1, 1, 1, 0},
		{0, 1, -1, -1},
	}
)

// winogradKernel computes U = G g Gᵀ for one 3x3 kernel.
func winogradKernel(g []float32, u []float32) {
	var tmp [4][3]float32
	for i := range 4 {
		for j := range 3 {
			tmp[i][j] = winogradG[i][0]*g[j] + winogradG[i][1]*g[3+j] + winogradG[i][2]*g[6+j]
		}
	}
	for i := range 4 {
		for j := range 4 {
			u[i*4+j] = tmp[i][0]*winogradG[j][0] + tmp[i][1]*winogradG[j][1] + tmp[i][2]*winogradG[j][2]
		}
	}
}

// winogradInput computes V = Bᵀ d B for one 4x4 input tile.
func winogradInput(d *[16]float32, v []float32) {
	var tmp [4][4]float32
	for i := range 4 {
		for j := range 4 {
			var s float32
			for k := range 4 {
				s += winogradBT[i][k] * d[k*4+j]
			}
			tmp[i][j] = s
		}
	}
	for i := range 4 {
		for j := range 4 {
			var s float32
			for k := range 4 {
				s += tmp[i][k] * winogradBT[j][k]
			}
			v[i*4+j] = s
		}
	}
}

// winogradOutput computes Y = Aᵀ m A for one tile.
func winogradOutput(m *[16]float32) (y [2][2]float32) {
	var tmp [2][4]float32
	for i := range 2 {
		for j := range 4 {
			var s float32
			for k := range 4 {
				s += winogradAT[i][k] * m[k*4+j]
			}
			tmp[i][j] = s
		}
	}
	for i := range 2 {
		for j := range 2 {
			var s float32
			for k := range 4 {
				s += tmp[i][k] * winogradAT[j][k]
			}
			y[i][j] = s
		}
	}
	return y
}

// winogradTransformKernels returns U for every (outch, inch) pair, 16 values each.
func winogradTransformKernels(weights []float32, outch, inch int) tensor.Mat {
	u := tensor.New1D(outch*inch*16, 4, 1, nil)
	if u.Empty() {
		return u
	}
	dst := u.Float32s()
	for i := range outch * inch {
		winogradKernel(weights[i*9:], dst[i*16:])
	}
	return u
}

// convolveWinograd computes a 3x3 stride 1 convolution. The input must be padded
// so that it covers whole 2x2 output tiles.
func convolveWinograd(top, in tensor.Mat, u []float32, bias []float32, g convGeometry, act int, params []float32, opt option.Option) bool {
	tilesW := (g.outw + 1) / 2
	tilesH := (g.outh + 1) / 2
	tiles := tilesW * tilesH

	vm := tensor.New1D(g.inch*tiles*16, 4, 1, opt.WorkspaceAllocator)
	if vm.Empty() {
		return false
	}
	defer vm.Release()
	v := vm.Float32s()

	parallel.For(g.inch, func(q int) {
		src := in.Channel(q).Float32s()
		var d [16]float32
		for ty := range tilesH {
			for tx := range tilesW {
				for r := range 4 {
					copy(d[r*4:r*4+4], src[(ty*2+r)*g.w+tx*2:])
				}
				winogradInput(&d, v[(q*tiles+ty*tilesW+tx)*16:])
			}
		}
	}, opt.Parallel())

	parallel.For(g.outch, func(p int) {
		out := top.Channel(p).Float32s()
		var b float32
		if bias != nil {
			b = bias[p]
		}
		var m [16]float32
		for t := range tiles {
			clear(m[:])
			for q := range g.inch {
				uk := u[(p*g.inch+q)*16:]
				vt := v[(q*tiles+t)*16:]
				for k := range 16 {
					m[k] += uk[k] * vt[k]
				}
			}
			y := winogradOutput(&m)
			ty, tx := t/tilesW, t%tilesW
			for r := range 2 {
				oy := ty*2 + r
				if oy >= g.outh {
					break
				}
				for c := range 2 {
					if ox := tx*2 + c; ox < g.outw {
						out[oy*g.outw+ox] = y[r][c] + b
					}
				}
			}
		}
		activate(out[:g.outw*g.outh], act, params)
	}, opt.Parallel())
	return true
}
