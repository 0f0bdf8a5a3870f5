package tensor

import (
	"encoding/binary"
	"math"

	"github.com/born-ml/lite/internal/allocator"
)

// Border modes for CopyMakeBorder.
const (
	BorderConstant  = 0
	BorderReplicate = 1
	BorderReflect   = 2
)

// CopyMakeBorder pads every channel of src by the given amounts.
// Constant borders take value, converted to the lane type of src.
func CopyMakeBorder(src Mat, top, bottom, left, right, borderType int, value float32, a allocator.Allocator) Mat {
	return CopyMakeBorderPerChannel(src, top, bottom, left, right, borderType, func(int) float32 { return value }, a)
}

// CopyMakeBorderPerChannel is CopyMakeBorder with a constant fill chosen per channel.
func CopyMakeBorderPerChannel(src Mat, top, bottom, left, right, borderType int, value func(q int) float32, a allocator.Allocator) Mat {
	if src.Empty() {
		return Mat{}
	}
	if src.Dims == 1 {
		top, bottom = 0, 0
	}
	outw := src.W + left + right
	outh := src.H + top + bottom
	if outw <= 0 || outh <= 0 {
		return Mat{}
	}
	if top == 0 && bottom == 0 && left == 0 && right == 0 {
		return src.Share()
	}

	dst := NewDims(src.Dims, outw, outh, src.C, src.ElemSize, src.ElemPack, a)
	if dst.Empty() {
		return dst
	}
	for q := range src.C {
		fill := laneFill(value(q), src.ElemSize, src.ElemPack)
		borderPlane(dst.channelBytes(q), src.channelBytes(q), src.W, src.H, outw, outh, top, left, src.ElemSize, borderType, fill)
	}
	return dst
}

// laneFill encodes v as one element of elemsize bytes.
func laneFill(v float32, elemsize, elempack int) []byte {
	lane := elemsize / elempack
	out := make([]byte, elemsize)
	for k := range elempack {
		switch lane {
		case 4:
			binary.LittleEndian.PutUint32(out[k*4:], math.Float32bits(v))
		case 2:
			binary.LittleEndian.PutUint16(out[k*2:], Float32ToBFloat16(v))
		case 1:
			out[k] = byte(int8(v))
		}
	}
	return out
}

func borderIndex(x, n, borderType int) int {
	switch borderType {
	case BorderReplicate:
		return min(max(x, 0), n-1)
	case BorderReflect:
		if n == 1 {
			return 0
		}
		for x < 0 || x >= n {
			if x < 0 {
				x = -x
			}
			if x >= n {
				x = 2*(n-1) - x
			}
		}
		return x
	}
	return -1
}

func borderPlane(dst, src []byte, w, h, outw, outh, top, left, es, borderType int, fill []byte) {
	for y := range outh {
		sy := y - top
		if sy < 0 || sy >= h {
			sy = borderIndex(sy, h, borderType)
		}
		for x := range outw {
			d := dst[(y*outw+x)*es : (y*outw+x+1)*es]
			sx := x - left
			if sx < 0 || sx >= w {
				sx = borderIndex(sx, w, borderType)
			}
			if sx < 0 || sy < 0 {
				copy(d, fill)
				continue
			}
			copy(d, src[(sy*w+sx)*es:(sy*w+sx+1)*es])
		}
	}
}
