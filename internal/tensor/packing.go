package tensor

import "github.com/born-ml/lite/internal/allocator"

// ConvertPacking regroups the outermost axis of src (w for 1-D, h for 2-D,
// c for 3-D) into elements of outElempack lanes.
//
// When the lane count of that axis is not a multiple of outElempack and
// usePadding is false, src is returned unchanged. With usePadding the axis is
// zero-padded up to the next multiple. The result always holds its own
// reference; callers release it independently of src.
func ConvertPacking(src Mat, outElempack int, usePadding bool, a allocator.Allocator) Mat {
	if src.Empty() || src.ElemPack == outElempack {
		return src.Share()
	}

	outer, inner, stride := src.packAxis()
	rows := outer * src.ElemPack
	if rows%outElempack != 0 && !usePadding {
		return src.Share()
	}

	lane := src.ElemSize / src.ElemPack
	outElemsize := lane * outElempack
	outOuter := (rows + outElempack - 1) / outElempack

	var dst Mat
	switch src.Dims {
	case 1:
		dst = New1D(outOuter, outElemsize, outElempack, a)
	case 2:
		dst = New2D(src.W, outOuter, outElemsize, outElempack, a)
	case 3:
		dst = New3D(src.W, src.H, outOuter, outElemsize, outElempack, a)
	}
	if dst.Empty() {
		return dst
	}
	_, _, dstStride := dst.packAxis()

	sb, db := src.data, dst.data
	for i := range outOuter {
		for k := range outElempack {
			row := i*outElempack + k
			for j := range inner {
				d := (i*dstStride+j)*outElemsize + k*lane
				if row >= rows {
					clear(db[d : d+lane])
					continue
				}
				s := ((row/src.ElemPack)*stride+j)*src.ElemSize + (row%src.ElemPack)*lane
				copy(db[d:d+lane], sb[s:s+lane])
			}
		}
	}
	return dst
}

// packAxis returns the element count of the packed axis, the element count
// inside one step of it, and the step stride in elements.
func (m Mat) packAxis() (outer, inner, stride int) {
	switch m.Dims {
	case 1:
		return m.W, 1, 1
	case 2:
		return m.H, m.W, m.W
	default:
		return m.C, m.W * m.H, m.Cstep
	}
}
