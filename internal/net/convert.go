package net

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/serialization"
)

// ConvertParamToBinary rewrites a text param stream from r as a binary param
// stream on w. Layer types are replaced by their built-in type index and blob
// names by slot indices; the returned slice maps each slot back to its name.
// Custom layer types have no stable index and are rejected.
func ConvertParamToBinary(r io.Reader, w io.Writer) ([]string, error) {
	dr := serialization.NewDataReader(r)
	bw := bufio.NewWriter(w)
	put := func(v int) {
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(v))) //nolint:gosec // G115: raw 32-bit field
		bw.Write(buf[:])                                        //nolint:errcheck // surfaced by Flush
	}

	layerCount, blobCount, err := readHeader(func(what string) (int, error) {
		var v int
		return v, scanField(dr, "%d", &v, what)
	})
	if err != nil {
		return nil, err
	}
	put(magic)
	put(layerCount)
	put(blobCount)

	var names []string
	index := make(map[string]int)
	claim := func(name string) (int, error) {
		if len(names) >= blobCount {
			return -1, fmt.Errorf("%w: more than %d blobs", ErrBadFormat, blobCount)
		}
		names = append(names, name)
		if _, ok := index[name]; !ok {
			index[name] = len(names) - 1
		}
		return len(names) - 1, nil
	}

	pd := serialization.NewParamDict()
	for range layerCount {
		var typ, name string
		var bottomCount, topCount int
		if err := scanField(dr, "%s", &typ, "layer type"); err != nil {
			return nil, err
		}
		if err := scanField(dr, "%s", &name, "layer name"); err != nil {
			return nil, err
		}
		if err := scanField(dr, "%d", &bottomCount, "bottom count"); err != nil {
			return nil, err
		}
		if err := scanField(dr, "%d", &topCount, "top count"); err != nil {
			return nil, err
		}
		typeIndex := layer.Builtin().IndexOf(typ)
		if typeIndex < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, typ)
		}
		put(typeIndex)
		put(bottomCount)
		put(topCount)

		for range bottomCount {
			var blobName string
			if err := scanField(dr, "%s", &blobName, "bottom name"); err != nil {
				return nil, err
			}
			bi, ok := index[blobName]
			if !ok {
				if bi, err = claim(blobName); err != nil {
					return nil, err
				}
			}
			put(bi)
		}
		for range topCount {
			var blobName string
			if err := scanField(dr, "%s", &blobName, "top name"); err != nil {
				return nil, err
			}
			ti, err := claim(blobName)
			if err != nil {
				return nil, err
			}
			put(ti)
		}

		if err := pd.LoadParam(dr); err != nil {
			return nil, fmt.Errorf("%w: layer %q params: %w", ErrBadFormat, name, err)
		}
		if err := pd.WriteBinary(bw); err != nil {
			return nil, err
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write binary params: %w", err)
	}
	return names, nil
}
