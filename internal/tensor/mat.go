// Package tensor implements Mat, the reference-counted 1-3 dimensional
// tensor that flows between layers of the inference engine.
package tensor

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/born-ml/lite/internal/allocator"
)

// buffer is the shared storage behind one or more Mat handles.
type buffer struct {
	data     []byte // As returned by alloc.
	refCount atomic.Int32
	alloc    allocator.Allocator
}

func newBuffer(size int, a allocator.Allocator) *buffer {
	var data []byte
	if a != nil {
		data = a.FastMalloc(size)
	} else {
		data = allocator.FastMalloc(size)
	}
	if data == nil {
		return nil
	}
	b := &buffer{data: data, alloc: a}
	b.refCount.Store(1)
	return b
}

func (b *buffer) addRef() {
	b.refCount.Add(1)
}

// release drops one reference and hands the bytes back to the allocator on the last one.
func (b *buffer) release() {
	if b.refCount.Add(-1) == 0 {
		if b.alloc != nil {
			b.alloc.FastFree(b.data)
		} else {
			allocator.FastFree(b.data)
		}
		b.data = nil
	}
}

// Mat is a dense tensor of up to three dimensions (w, h, c).
//
// Dims is 0 for an empty (unbound) Mat. ElemSize is the byte size of one
// element including all of its ElemPack lanes, so a pack-4 float32 Mat has
// ElemSize 16. Channels of a 3-D Mat are Cstep elements apart and each channel
// starts on a 16-byte boundary.
//
// Copying a Mat value copies the header only. Use Share to take an extra
// reference and Release to drop one; storage returns to its allocator when
// the last reference is released. Views returned by Channel, ChannelRange and
// Range do not hold a reference.
type Mat struct {
	buf  *buffer
	data []byte

	Dims     int
	W, H, C  int
	ElemSize int
	ElemPack int
	Cstep    int

	Allocator allocator.Allocator
}

// New1D creates a vector of w elements.
func New1D(w, elemsize, elempack int, a allocator.Allocator) Mat {
	m := Mat{Dims: 1, W: w, H: 1, C: 1, ElemSize: elemsize, ElemPack: elempack, Cstep: w, Allocator: a}
	m.allocate()
	return m
}

// New2D creates a w x h matrix.
func New2D(w, h, elemsize, elempack int, a allocator.Allocator) Mat {
	m := Mat{Dims: 2, W: w, H: h, C: 1, ElemSize: elemsize, ElemPack: elempack, Cstep: w * h, Allocator: a}
	m.allocate()
	return m
}

// New3D creates a w x h x c volume with 16-byte aligned channels.
func New3D(w, h, c, elemsize, elempack int, a allocator.Allocator) Mat {
	m := Mat{Dims: 3, W: w, H: h, C: c, ElemSize: elemsize, ElemPack: elempack, Allocator: a}
	m.Cstep = channelStep(w, h, elemsize)
	m.allocate()
	return m
}

// NewDims creates a Mat with the given dimensionality; unused extents are ignored.
func NewDims(dims, w, h, c, elemsize, elempack int, a allocator.Allocator) Mat {
	switch dims {
	case 1:
		return New1D(w, elemsize, elempack, a)
	case 2:
		return New2D(w, h, elemsize, elempack, a)
	case 3:
		return New3D(w, h, c, elemsize, elempack, a)
	}
	return Mat{}
}

// NewLike creates a Mat with the same shape and element layout as m.
func NewLike(m Mat, a allocator.Allocator) Mat {
	return NewDims(m.Dims, m.W, m.H, m.C, m.ElemSize, m.ElemPack, a)
}

// ShapeHint returns a data-less Mat carrying only a shape.
func ShapeHint(dims, w, h, c int) Mat {
	m := Mat{Dims: dims, W: w, H: max(h, 1), C: max(c, 1), ElemSize: 4, ElemPack: 1}
	switch dims {
	case 1:
		m.H, m.C, m.Cstep = 1, 1, w
	case 2:
		m.C, m.Cstep = 1, w*m.H
	case 3:
		m.Cstep = channelStep(w, m.H, 4)
	}
	return m
}

// FromFloat32 copies vals into a new pack-1 float32 Mat of shape w, w h, or w h c.
// It panics if the number of values does not match the shape.
func FromFloat32(vals []float32, shape ...int) Mat {
	var m Mat
	switch len(shape) {
	case 1:
		m = New1D(shape[0], 4, 1, nil)
	case 2:
		m = New2D(shape[0], shape[1], 4, 1, nil)
	case 3:
		m = New3D(shape[0], shape[1], shape[2], 4, 1, nil)
	default:
		panic(fmt.Sprintf("tensor: unsupported shape %v", shape))
	}
	if m.W*m.H*m.C != len(vals) {
		panic(fmt.Sprintf("tensor: %d values do not fill shape %v", len(vals), shape))
	}
	plane := m.W * m.H
	for q := range m.C {
		copy(m.Channel(q).Float32s(), vals[q*plane:(q+1)*plane])
	}
	return m
}

func channelStep(w, h, elemsize int) int {
	if elemsize == 0 {
		return w * h
	}
	return allocator.AlignSize(w*h*elemsize, 16) / elemsize
}

func (m *Mat) allocate() {
	total := m.Total()
	if total <= 0 || m.ElemSize <= 0 {
		*m = Mat{}
		return
	}
	nbytes := total * m.ElemSize
	b := newBuffer(allocator.AlignSize(nbytes, 4), m.Allocator)
	if b == nil {
		*m = Mat{}
		return
	}
	m.buf = b
	m.data = b.data[:nbytes]
}

// Share returns another handle to the same storage and bumps the reference count.
func (m Mat) Share() Mat {
	if m.buf != nil {
		m.buf.addRef()
	}
	return m
}

// Release drops this handle's reference and resets m to empty.
func (m *Mat) Release() {
	if m.buf != nil {
		m.buf.release()
	}
	*m = Mat{}
}

// RefCount returns the number of handles sharing the storage, 0 for views and empty Mats.
func (m Mat) RefCount() int {
	if m.buf == nil {
		return 0
	}
	return int(m.buf.refCount.Load())
}

// IsUnique reports whether m is the only handle to its storage.
func (m Mat) IsUnique() bool {
	return m.RefCount() == 1
}

// Empty reports whether m holds no data.
func (m Mat) Empty() bool {
	return len(m.data) == 0 || m.Total() == 0
}

// Total is the number of elements including channel padding.
func (m Mat) Total() int {
	return m.Cstep * m.C
}

// Clone deep-copies m into fresh storage from a.
func (m Mat) Clone(a allocator.Allocator) Mat {
	if m.Empty() {
		return Mat{}
	}
	out := NewLike(m, a)
	if out.Empty() {
		return out
	}
	if out.Cstep == m.Cstep {
		copy(out.data, m.data)
		return out
	}
	for q := range m.C {
		copy(out.channelBytes(q), m.channelBytes(q))
	}
	return out
}

// SameShape reports whether a and b have equal extents and element layout.
func SameShape(a, b Mat) bool {
	return a.Dims == b.Dims && a.W == b.W && a.H == b.H && a.C == b.C &&
		a.ElemSize == b.ElemSize && a.ElemPack == b.ElemPack
}

// Shape formats the extents for diagnostics.
func (m Mat) Shape() string {
	switch m.Dims {
	case 1:
		return fmt.Sprintf("[%d]", m.W)
	case 2:
		return fmt.Sprintf("[%d %d]", m.W, m.H)
	case 3:
		return fmt.Sprintf("[%d %d %d]", m.W, m.H, m.C)
	}
	return "[]"
}

// Bytes returns the raw storage including channel padding.
func (m Mat) Bytes() []byte {
	return m.data
}

// Float32s views the storage as float32 lanes.
func (m Mat) Float32s() []float32 {
	if len(m.data) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(unsafe.SliceData(m.data))), len(m.data)/4)
}

// Int32s views the storage as int32 lanes.
func (m Mat) Int32s() []int32 {
	if len(m.data) < 4 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(unsafe.SliceData(m.data))), len(m.data)/4)
}

// Uint16s views the storage as 16-bit lanes (bf16 or fp16).
func (m Mat) Uint16s() []uint16 {
	if len(m.data) < 2 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(unsafe.SliceData(m.data))), len(m.data)/2)
}

// Int8s views the storage as int8 lanes.
func (m Mat) Int8s() []int8 {
	if len(m.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(unsafe.SliceData(m.data))), len(m.data))
}

// channelBytes returns the unpadded bytes of channel q.
func (m Mat) channelBytes(q int) []byte {
	off := q * m.Cstep * m.ElemSize
	return m.data[off : off+m.W*m.H*m.ElemSize]
}

// Channel returns a non-owning 2-D view of channel q. On 1-D and 2-D Mats
// channel 0 is the whole Mat.
func (m Mat) Channel(q int) Mat {
	dims := m.Dims
	if dims == 3 {
		dims = 2
	}
	return Mat{
		data:      m.channelBytes(q),
		Dims:      dims,
		W:         m.W,
		H:         m.H,
		C:         1,
		ElemSize:  m.ElemSize,
		ElemPack:  m.ElemPack,
		Cstep:     m.W * m.H,
		Allocator: m.Allocator,
	}
}

// ChannelRange returns a non-owning 3-D view of channels [q, q+n).
func (m Mat) ChannelRange(q, n int) Mat {
	off := q * m.Cstep * m.ElemSize
	v := m
	v.buf = nil
	v.C = n
	v.data = m.data[off : off+n*m.Cstep*m.ElemSize]
	return v
}

// Range returns a non-owning 1-D view of elements [x, x+n).
func (m Mat) Range(x, n int) Mat {
	return Mat{
		data:      m.data[x*m.ElemSize : (x+n)*m.ElemSize],
		Dims:      1,
		W:         n,
		H:         1,
		C:         1,
		ElemSize:  m.ElemSize,
		ElemPack:  m.ElemPack,
		Cstep:     n,
		Allocator: m.Allocator,
	}
}

// Row returns row y of a float32 2-D Mat or channel view.
func (m Mat) Row(y int) []float32 {
	n := m.W * m.ElemPack
	return m.Float32s()[y*n : (y+1)*n]
}

// Fill sets every float32 lane, padding included, to v.
func (m Mat) Fill(v float32) {
	f := m.Float32s()
	for i := range f {
		f[i] = v
	}
}

// ToFloat32 copies the float32 lanes of m into a contiguous slice, dropping channel padding.
func (m Mat) ToFloat32() []float32 {
	if m.Empty() {
		return nil
	}
	plane := m.W * m.H * m.ElemPack
	out := make([]float32, 0, plane*m.C)
	for q := range m.C {
		out = append(out, m.Channel(q).Float32s()[:plane]...)
	}
	return out
}

// contiguous returns the unpadded bytes of m, copying only when channels are padded.
func (m Mat) contiguous() []byte {
	plane := m.W * m.H * m.ElemSize
	if m.Dims < 3 || m.Cstep*m.ElemSize == plane {
		return m.data[:plane*m.C]
	}
	out := make([]byte, 0, plane*m.C)
	for q := range m.C {
		out = append(out, m.channelBytes(q)...)
	}
	return out
}

// Reshape returns m with new extents holding the same elements in order.
// The storage is shared when both layouts are contiguous, otherwise copied into a.
// An empty Mat is returned when the element counts differ.
func (m Mat) Reshape(a allocator.Allocator, shape ...int) Mat {
	if m.Empty() || len(shape) < 1 || len(shape) > 3 {
		return Mat{}
	}
	w, h, c := shape[0], 1, 1
	if len(shape) > 1 {
		h = shape[1]
	}
	if len(shape) > 2 {
		c = shape[2]
	}
	if w*h*c != m.W*m.H*m.C {
		return Mat{}
	}

	out := m
	out.Dims, out.W, out.H, out.C = len(shape), w, h, c
	out.Cstep = w * h
	if out.Dims == 3 {
		out.Cstep = channelStep(w, h, m.ElemSize)
	}

	srcContiguous := m.Dims < 3 || m.Cstep == m.W*m.H
	dstContiguous := out.Dims < 3 || out.Cstep == w*h
	if srcContiguous && dstContiguous {
		out.data = m.data[:w*h*c*m.ElemSize]
		return out.Share()
	}

	flat := m.contiguous()
	dst := NewDims(out.Dims, w, h, c, m.ElemSize, m.ElemPack, a)
	if dst.Empty() {
		return dst
	}
	plane := w * h * m.ElemSize
	for q := range c {
		copy(dst.channelBytes(q), flat[q*plane:(q+1)*plane])
	}
	return dst
}
