package serialization

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// MaxParamCount is the number of param ids a ParamDict can hold.
const MaxParamCount = 32

// Binary param markers.
const (
	paramEnd        = -233
	paramArrayBase  = -23300
	maxParamArrayLn = 1 << 24
)

type param struct {
	set     bool
	isArray bool
	isFloat bool
	i       int
	f       float32
	ints    []int
	floats  []float32
}

// ParamDict maps small integer ids to scalar or array hyper-parameters of one layer.
// Values written as integers read back as floats and vice versa.
type ParamDict struct {
	params [MaxParamCount]param
}

// NewParamDict returns an empty dictionary.
func NewParamDict() *ParamDict {
	return &ParamDict{}
}

// Clear unsets every id.
func (pd *ParamDict) Clear() {
	pd.params = [MaxParamCount]param{}
}

func (pd *ParamDict) lookup(id int) *param {
	if id < 0 || id >= MaxParamCount || !pd.params[id].set {
		return nil
	}
	return &pd.params[id]
}

// Has reports whether id was set.
func (pd *ParamDict) Has(id int) bool {
	return pd.lookup(id) != nil
}

// GetInt returns id as an int, or def when unset.
func (pd *ParamDict) GetInt(id, def int) int {
	if p := pd.lookup(id); p != nil && !p.isArray {
		return p.i
	}
	return def
}

// GetFloat returns id as a float32, or def when unset.
func (pd *ParamDict) GetFloat(id int, def float32) float32 {
	if p := pd.lookup(id); p != nil && !p.isArray {
		return p.f
	}
	return def
}

// GetInts returns the array id as ints, or def when unset.
func (pd *ParamDict) GetInts(id int, def []int) []int {
	if p := pd.lookup(id); p != nil && p.isArray {
		return p.ints
	}
	return def
}

// GetFloats returns the array id as float32s, or def when unset.
func (pd *ParamDict) GetFloats(id int, def []float32) []float32 {
	if p := pd.lookup(id); p != nil && p.isArray {
		return p.floats
	}
	return def
}

// SetInt stores an integer scalar.
func (pd *ParamDict) SetInt(id, v int) {
	pd.params[id] = param{set: true, i: v, f: float32(v)}
}

// SetFloat stores a float scalar.
func (pd *ParamDict) SetFloat(id int, v float32) {
	pd.params[id] = param{set: true, isFloat: true, i: int(v), f: v}
}

// SetInts stores an integer array.
func (pd *ParamDict) SetInts(id int, v []int) {
	floats := make([]float32, len(v))
	for i, x := range v {
		floats[i] = float32(x)
	}
	pd.params[id] = param{set: true, isArray: true, ints: v, floats: floats}
}

// SetFloats stores a float array.
func (pd *ParamDict) SetFloats(id int, v []float32) {
	ints := make([]int, len(v))
	for i, x := range v {
		ints[i] = int(x)
	}
	pd.params[id] = param{set: true, isArray: true, isFloat: true, ints: ints, floats: v}
}

func isFloatLiteral(s string) bool {
	return strings.ContainsAny(s, ".eE")
}

func parseNumber(s string) (i int, f float32, isFloat bool, err error) {
	if isFloatLiteral(s) {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, 0, true, err
		}
		return int(v), float32(v), true, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, false, err
	}
	return v, float32(v), false, nil
}

// LoadParam reads text "id=value" tokens until one does not match that form.
// Array ids are written as -(23300+id) with value "n,v1,...,vn".
func (pd *ParamDict) LoadParam(dr DataReader) error {
	pd.Clear()

	for {
		var id int
		n, err := dr.Scan("%d=", &id)
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read param id: %w", err)
		}

		isArray := id <= paramArrayBase
		if isArray {
			id = -id + paramArrayBase
		}
		if id < 0 || id >= MaxParamCount {
			return fmt.Errorf("%w: %d", ErrInvalidParamID, id)
		}

		var value string
		if _, err := dr.Scan("%s", &value); err != nil {
			return fmt.Errorf("failed to read value of param %d: %w", id, err)
		}

		if !isArray {
			i, f, isFloat, err := parseNumber(value)
			if err != nil {
				return &ParamError{ID: id, Value: value, Details: err.Error()}
			}
			pd.params[id] = param{set: true, isFloat: isFloat, i: i, f: f}
			continue
		}

		fields := strings.Split(value, ",")
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 || count != len(fields)-1 {
			return &ParamError{ID: id, Value: value, Details: "array length does not match element count"}
		}
		p := param{set: true, isArray: true, ints: make([]int, count), floats: make([]float32, count)}
		for j, s := range fields[1:] {
			i, f, isFloat, err := parseNumber(s)
			if err != nil {
				return &ParamError{ID: id, Value: value, Details: err.Error()}
			}
			p.ints[j], p.floats[j] = i, f
			p.isFloat = p.isFloat || isFloat
		}
		pd.params[id] = p
	}
}

func readInt32(dr DataReader) (int32, error) {
	var buf [4]byte
	if _, err := dr.Read(buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil //nolint:gosec // G115: raw 32-bit field
}

// ReadInt32 reads one little-endian int32 field.
func ReadInt32(dr DataReader) (int, error) {
	v, err := readInt32(dr)
	return int(v), err
}

// LoadParamBin reads binary params: int32 id followed by a raw 32-bit value,
// or for array ids an int32 length and that many raw values, until id -233.
func (pd *ParamDict) LoadParamBin(dr DataReader) error {
	pd.Clear()

	for {
		id, err := readInt32(dr)
		if err != nil {
			return fmt.Errorf("failed to read param id: %w", err)
		}
		if id == paramEnd {
			return nil
		}

		isArray := id <= paramArrayBase
		if isArray {
			id = -id + paramArrayBase
		}
		if id < 0 || id >= MaxParamCount {
			return fmt.Errorf("%w: %d", ErrInvalidParamID, id)
		}

		if !isArray {
			raw, err := readInt32(dr)
			if err != nil {
				return fmt.Errorf("failed to read param %d: %w", id, err)
			}
			pd.params[id] = param{set: true, i: int(raw), f: math.Float32frombits(uint32(raw))} //nolint:gosec // G115: bit reinterpretation
			continue
		}

		n, err := readInt32(dr)
		if err != nil {
			return fmt.Errorf("failed to read length of param %d: %w", id, err)
		}
		if n < 0 || n > maxParamArrayLn {
			return &ParamError{ID: int(id), Details: fmt.Sprintf("invalid array length %d", n)}
		}
		buf := make([]byte, 4*int(n))
		if _, err := dr.Read(buf); err != nil {
			return fmt.Errorf("failed to read param %d: %w", id, err)
		}
		p := param{set: true, isArray: true, ints: make([]int, n), floats: make([]float32, n)}
		for j := range int(n) {
			bits := binary.LittleEndian.Uint32(buf[4*j:])
			p.ints[j] = int(int32(bits)) //nolint:gosec // G115: bit reinterpretation
			p.floats[j] = math.Float32frombits(bits)
		}
		pd.params[id] = p
	}
}

// WriteBinary encodes pd in the binary param layout, terminator included.
func (pd *ParamDict) WriteBinary(w io.Writer) error {
	var out []byte
	put := func(v uint32) { out = binary.LittleEndian.AppendUint32(out, v) }
	word := func(isFloat bool, i int, f float32) uint32 {
		if isFloat {
			return math.Float32bits(f)
		}
		return uint32(int32(i)) //nolint:gosec // G115: raw 32-bit field
	}

	for id, p := range pd.params {
		if !p.set {
			continue
		}
		if !p.isArray {
			put(uint32(id))
			put(word(p.isFloat, p.i, p.f))
			continue
		}
		marker := int32(paramArrayBase - id) //nolint:gosec // G115: id < MaxParamCount
		put(uint32(marker))                  //nolint:gosec // G115: negative marker
		put(uint32(len(p.ints)))             //nolint:gosec // G115: bounded by maxParamArrayLn
		for j := range p.ints {
			put(word(p.isFloat, p.ints[j], p.floats[j]))
		}
	}
	end := int32(paramEnd)
	put(uint32(end)) //nolint:gosec // G115: negative marker

	_, err := w.Write(out)
	return err
}
