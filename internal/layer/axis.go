package layer

import (
	"fmt"

	"github.com/born-ml/lite/internal/tensor"
)

// Axis positions in w/h/c terms.
const (
	axisC = iota
	axisH
	axisW
)

// resolveAxis maps a dims-relative axis (negative counts from the end) to axisC, axisH or axisW.
func resolveAxis(dims, axis int) (int, error) {
	if axis < 0 {
		axis += dims
	}
	if axis < 0 || axis >= dims {
		return 0, fmt.Errorf("%w: axis %d for %d-D blob", ErrInvalidParam, axis, dims)
	}
	return axis + 3 - dims, nil
}

func extent(m tensor.Mat, ax int) int {
	switch ax {
	case axisC:
		return m.C
	case axisH:
		return m.H
	}
	return m.W
}

func withExtent(m tensor.Mat, ax, n int) (w, h, c int) {
	w, h, c = m.W, m.H, m.C
	switch ax {
	case axisC:
		c = n
	case axisH:
		h = n
	default:
		w = n
	}
	return w, h, c
}

// copyBlock copies the sub-block of src starting at offset along ax into dst
// at dstOffset along ax, for n steps. Other extents must agree.
func copyBlock(dst tensor.Mat, dstOffset int, src tensor.Mat, srcOffset, n, ax int) {
	es := src.ElemSize
	switch ax {
	case axisC:
		for q := range n {
			copy(dst.Channel(dstOffset+q).Bytes(), src.Channel(srcOffset+q).Bytes())
		}
	case axisH:
		row := src.W * es
		for q := range src.C {
			d, s := dst.Channel(q).Bytes(), src.Channel(q).Bytes()
			copy(d[dstOffset*row:(dstOffset+n)*row], s[srcOffset*row:(srcOffset+n)*row])
		}
	default:
		for q := range src.C {
			d, s := dst.Channel(q).Bytes(), src.Channel(q).Bytes()
			for y := range src.H {
				copy(d[(y*dst.W+dstOffset)*es:(y*dst.W+dstOffset+n)*es], s[(y*src.W+srcOffset)*es:(y*src.W+srcOffset+n)*es])
			}
		}
	}
}
