// Package serialization reads the engine's on-disk formats: whitespace
// separated text params, their binary twin, and sequential weight streams.
package serialization

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DataReader is the byte source the loaders consume.
//
// Scan parses the next whitespace-delimited token according to format:
// "%d" into *int, "%f" into *float32, "%s" into *string, and "%d=" into
// *int for the key of a key=value token, leaving the value for the next
// Scan. It returns the number of items parsed: 0 with a nil error means
// the token did not match and was left unread. At end of input it returns
// io.EOF.
//
// Read fills p completely or returns an error.
type DataReader interface {
	Scan(format string, v any) (int, error)
	Read(p []byte) (int, error)
}

// scanner implements Scan over any token source.
type scanner struct {
	next       func() (string, error)
	pending    string
	hasPending bool
}

func (s *scanner) token() (string, error) {
	if s.hasPending {
		s.hasPending = false
		return s.pending, nil
	}
	return s.next()
}

func (s *scanner) unread(tok string) {
	s.pending, s.hasPending = tok, true
}

func (s *scanner) Scan(format string, v any) (int, error) {
	tok, err := s.token()
	if err != nil {
		return 0, err
	}

	switch format {
	case "%d=":
		key, rest, ok := strings.Cut(tok, "=")
		id, perr := strconv.Atoi(key)
		if !ok || perr != nil {
			s.unread(tok)
			return 0, nil
		}
		*v.(*int) = id
		if rest != "" {
			s.unread(rest)
		}
	case "%d":
		n, perr := strconv.Atoi(tok)
		if perr != nil {
			s.unread(tok)
			return 0, nil
		}
		*v.(*int) = n
	case "%f":
		f, perr := strconv.ParseFloat(tok, 32)
		if perr != nil {
			s.unread(tok)
			return 0, nil
		}
		*v.(*float32) = float32(f)
	case "%s":
		*v.(*string) = tok
	default:
		s.unread(tok)
		return 0, fmt.Errorf("unsupported scan format %q", format)
	}
	return 1, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// StreamDataReader reads from an io.Reader.
type StreamDataReader struct {
	scanner
	r *bufio.Reader
}

// NewDataReader wraps r.
func NewDataReader(r io.Reader) *StreamDataReader {
	d := &StreamDataReader{r: bufio.NewReader(r)}
	d.next = d.readToken
	return d
}

func (d *StreamDataReader) readToken() (string, error) {
	var sb strings.Builder
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if sb.Len() > 0 && err == io.EOF {
				return sb.String(), nil
			}
			return "", err
		}
		if isSpace(b) {
			if sb.Len() > 0 {
				return sb.String(), nil
			}
			continue
		}
		sb.WriteByte(b)
	}
}

// Read implements DataReader.
func (d *StreamDataReader) Read(p []byte) (int, error) {
	n, err := io.ReadFull(d.r, p)
	if err != nil {
		return n, fmt.Errorf("%w: read %d of %d bytes: %w", ErrShortRead, n, len(p), err)
	}
	return n, nil
}

// MemoryDataReader reads from a byte slice and tracks how much was consumed.
type MemoryDataReader struct {
	scanner
	data []byte
	off  int
}

// NewMemoryDataReader reads from data without copying it.
func NewMemoryDataReader(data []byte) *MemoryDataReader {
	d := &MemoryDataReader{data: data}
	d.next = d.readToken
	return d
}

func (d *MemoryDataReader) readToken() (string, error) {
	for d.off < len(d.data) && isSpace(d.data[d.off]) {
		d.off++
	}
	if d.off == len(d.data) {
		return "", io.EOF
	}
	start := d.off
	for d.off < len(d.data) && !isSpace(d.data[d.off]) {
		d.off++
	}
	return string(d.data[start:d.off]), nil
}

// Read implements DataReader.
func (d *MemoryDataReader) Read(p []byte) (int, error) {
	if len(d.data)-d.off < len(p) {
		n := copy(p, d.data[d.off:])
		d.off = len(d.data)
		return n, fmt.Errorf("%w: read %d of %d bytes", ErrShortRead, n, len(p))
	}
	d.off += copy(p, d.data[d.off:])
	return len(p), nil
}

// Consumed returns the number of bytes read so far.
func (d *MemoryDataReader) Consumed() int {
	if d.hasPending {
		return d.off - len(d.pending)
	}
	return d.off
}
