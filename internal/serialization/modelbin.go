package serialization

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/lite/internal/allocator"
	"github.com/born-ml/lite/internal/tensor"
)

// Storage tags that may prefix a weight blob.
const (
	TagFloat16 = 0x01306B47
	TagInt8    = 0x000D4B38
	TagFloat32 = 0x0002C056
)

// Load types.
const (
	LoadAuto = 0 // Tagged storage; the tag decides the element type.
	LoadRaw  = 1 // Untagged float32.
)

// ModelBin yields a layer's weight tensors in the order the layer asks for them.
type ModelBin interface {
	// Load returns the next tensor of w elements.
	Load(w, typ int) (tensor.Mat, error)
}

type modelBinFromDataReader struct {
	dr DataReader
}

// NewModelBinFromDataReader reads weights sequentially from dr.
func NewModelBinFromDataReader(dr DataReader) ModelBin {
	return &modelBinFromDataReader{dr: dr}
}

func (mb *modelBinFromDataReader) readFloat32(w int) (tensor.Mat, error) {
	m := tensor.New1D(w, 4, 1, nil)
	if m.Empty() {
		return m, fmt.Errorf("%w: cannot hold %d float32 weights", ErrMissingData, w)
	}
	if _, err := mb.dr.Read(m.Bytes()[:w*4]); err != nil {
		m.Release()
		return m, fmt.Errorf("%w: %w", ErrMissingData, err)
	}
	return m, nil
}

func (mb *modelBinFromDataReader) Load(w, typ int) (tensor.Mat, error) {
	if w <= 0 {
		return tensor.Mat{}, fmt.Errorf("%w: invalid weight count %d", ErrMissingData, w)
	}
	if typ == LoadRaw {
		return mb.readFloat32(w)
	}
	if typ != LoadAuto {
		return tensor.Mat{}, fmt.Errorf("unsupported weight load type %d", typ)
	}

	var flag [4]byte
	if _, err := mb.dr.Read(flag[:]); err != nil {
		return tensor.Mat{}, fmt.Errorf("%w: weight tag: %w", ErrMissingData, err)
	}
	tag := binary.LittleEndian.Uint32(flag[:])

	switch tag {
	case TagFloat16:
		raw := make([]byte, allocator.AlignSize(w*2, 4))
		if _, err := mb.dr.Read(raw); err != nil {
			return tensor.Mat{}, fmt.Errorf("%w: %w", ErrMissingData, err)
		}
		m := tensor.New1D(w, 4, 1, nil)
		f := m.Float32s()
		for i := range w {
			f[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return m, nil
	case TagInt8:
		m := tensor.New1D(w, 1, 1, nil)
		raw := make([]byte, allocator.AlignSize(w, 4))
		if _, err := mb.dr.Read(raw); err != nil {
			return tensor.Mat{}, fmt.Errorf("%w: %w", ErrMissingData, err)
		}
		copy(m.Bytes(), raw[:w])
		return m, nil
	case TagFloat32:
		return mb.readFloat32(w)
	}

	if flag[0]|flag[1]|flag[2]|flag[3] != 0 {
		// 256-entry lookup table followed by one uint8 index per weight.
		table := make([]byte, 256*4)
		if _, err := mb.dr.Read(table); err != nil {
			return tensor.Mat{}, fmt.Errorf("%w: quantization table: %w", ErrMissingData, err)
		}
		idx := make([]byte, allocator.AlignSize(w, 4))
		if _, err := mb.dr.Read(idx); err != nil {
			return tensor.Mat{}, fmt.Errorf("%w: %w", ErrMissingData, err)
		}
		m := tensor.New1D(w, 4, 1, nil)
		f := m.Float32s()
		for i := range w {
			f[i] = math.Float32frombits(binary.LittleEndian.Uint32(table[4*int(idx[i]):]))
		}
		return m, nil
	}

	return mb.readFloat32(w)
}

type modelBinFromMatArray struct {
	weights []tensor.Mat
	index   int
}

// NewModelBinFromMatArray serves prepared tensors in order, ignoring w and typ.
func NewModelBinFromMatArray(weights []tensor.Mat) ModelBin {
	return &modelBinFromMatArray{weights: weights}
}

func (mb *modelBinFromMatArray) Load(int, int) (tensor.Mat, error) {
	if mb.index >= len(mb.weights) {
		return tensor.Mat{}, fmt.Errorf("%w: weight %d not provided", ErrMissingData, mb.index)
	}
	m := mb.weights[mb.index]
	mb.index++
	if m.Empty() {
		return tensor.Mat{}, fmt.Errorf("%w: weight %d is empty", ErrMissingData, mb.index-1)
	}
	return m.Share(), nil
}
