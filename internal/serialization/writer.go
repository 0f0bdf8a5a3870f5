package serialization

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/lite/internal/allocator"
)

// ModelWriter emits weight blobs in the layout ModelBin reads.
// The first write error sticks and is returned by Err.
type ModelWriter struct {
	w   io.Writer
	err error
}

// NewModelWriter writes to w.
func NewModelWriter(w io.Writer) *ModelWriter {
	return &ModelWriter{w: w}
}

func (mw *ModelWriter) write(b []byte) {
	if mw.err != nil {
		return
	}
	_, mw.err = mw.w.Write(b)
}

func (mw *ModelWriter) tag(t uint32) {
	mw.write(binary.LittleEndian.AppendUint32(nil, t))
}

// Float32 writes raw float32 weights, prefixed with a zero tag unless raw.
func (mw *ModelWriter) Float32(vals []float32, raw bool) {
	if !raw {
		mw.tag(0)
	}
	out := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	mw.write(out)
}

// Float16 writes half precision weights.
func (mw *ModelWriter) Float16(vals []float32) {
	mw.tag(TagFloat16)
	out := make([]byte, allocator.AlignSize(2*len(vals), 4))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(out[2*i:], float16.Fromfloat32(v).Bits())
	}
	mw.write(out)
}

// Int8 writes int8 weights.
func (mw *ModelWriter) Int8(vals []int8) {
	mw.tag(TagInt8)
	out := make([]byte, allocator.AlignSize(len(vals), 4))
	for i, v := range vals {
		out[i] = byte(v)
	}
	mw.write(out)
}

// Err returns the first write error.
func (mw *ModelWriter) Err() error {
	return mw.err
}
