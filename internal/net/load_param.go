package net

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/serialization"
	"github.com/born-ml/lite/internal/tensor"
)

// paramShapeHints holds dims,w,h,c for every top of a layer.
const paramShapeHints = 30

// graphBuilder accumulates blobs and layers while a param stream is parsed.
type graphBuilder struct {
	net       *Net
	blobCount int
	blobIndex int
	pd        *serialization.ParamDict
	loadErrs  []error
}

func (n *Net) newGraphBuilder(layerCount, blobCount int) *graphBuilder {
	n.layers = make([]layer.Layer, layerCount)
	n.blobs = make([]Blob, blobCount)
	for i := range n.blobs {
		n.blobs[i].Producer = -1
	}
	return &graphBuilder{net: n, blobCount: blobCount, pd: serialization.NewParamDict()}
}

// nextBlob claims the next free blob slot.
func (b *graphBuilder) nextBlob(name string) (int, error) {
	if b.blobIndex >= b.blobCount {
		return -1, fmt.Errorf("%w: more than %d blobs", ErrBadFormat, b.blobCount)
	}
	i := b.blobIndex
	b.blobIndex++
	b.net.blobs[i].Name = name
	return i, nil
}

func (b *graphBuilder) bindBottom(li, bi int) {
	blob := &b.net.blobs[bi]
	blob.Consumers = append(blob.Consumers, li)
}

func (b *graphBuilder) bindTop(li, bi int) error {
	blob := &b.net.blobs[bi]
	if blob.Producer >= 0 {
		return fmt.Errorf("%w: blob %d written by layers %d and %d", ErrBadFormat, bi, blob.Producer, li)
	}
	blob.Producer = li
	return nil
}

// finishLayer applies shape hints and the layer's own params. A layer that
// rejects its params leaves a nil slot so the rest of the graph still loads.
func (b *graphBuilder) finishLayer(i int, l layer.Layer) {
	meta := l.Meta()
	b.applyShapeHints(meta)

	if err := l.LoadParam(b.pd); err != nil {
		slog.Error("layer LoadParam failed", "index", i, "type", meta.Type, "name", meta.Name, "error", err)
		b.loadErrs = append(b.loadErrs, fmt.Errorf("layer %d %q (%s): %w", i, meta.Name, meta.Type, err))
		return
	}
	b.net.layers[i] = l
}

func (b *graphBuilder) applyShapeHints(meta *layer.Base) {
	hints := b.pd.GetInts(paramShapeHints, nil)
	if len(hints) > 0 {
		meta.TopShapes = make([]tensor.Mat, len(meta.Tops))
		for j, t := range meta.Tops {
			if 4*j+3 >= len(hints) {
				break
			}
			s := tensor.ShapeHint(hints[4*j], hints[4*j+1], hints[4*j+2], hints[4*j+3])
			meta.TopShapes[j] = s
			b.net.blobs[t].Shape = s
		}
	}

	var shapes []tensor.Mat
	for j, bi := range meta.Bottoms {
		s := b.net.blobs[bi].Shape
		if s.Dims == 0 {
			continue
		}
		if shapes == nil {
			shapes = make([]tensor.Mat, len(meta.Bottoms))
		}
		shapes[j] = s
	}
	meta.BottomShapes = shapes
}

// finish validates the wiring and reports collected layer failures.
func (b *graphBuilder) finish() error {
	n := b.net
	n.blobs = n.blobs[:b.blobIndex]

	var dangling []error
	for i := range n.blobs {
		blob := &n.blobs[i]
		if len(blob.Consumers) > 0 && blob.Producer < 0 {
			dangling = append(dangling, fmt.Errorf("%w: %q", ErrDanglingBlob, blob.Name))
		}
	}
	if len(dangling) > 0 {
		n.Clear()
		return errors.Join(dangling...)
	}

	// Every layer must read only blobs produced by earlier layers.
	for i := range n.blobs {
		blob := &n.blobs[i]
		for _, c := range blob.Consumers {
			if blob.Producer >= c {
				return fmt.Errorf("%w: layer %d reads blob %d produced by layer %d", ErrBadFormat, c, i, blob.Producer)
			}
		}
	}

	if len(b.loadErrs) > 0 {
		return fmt.Errorf("%w: %w", ErrLayerLoad, errors.Join(b.loadErrs...))
	}
	return nil
}

func scanField(dr serialization.DataReader, format string, v any, what string) error {
	got, err := dr.Scan(format, v)
	if err == nil && got != 1 {
		err = errors.New("unexpected token")
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrBadFormat, what, err)
	}
	return nil
}

func readHeader(read func(what string) (int, error)) (layerCount, blobCount int, err error) {
	m, err := read("magic")
	if err != nil {
		return 0, 0, err
	}
	if m != magic {
		return 0, 0, fmt.Errorf("%w: got %d", ErrBadMagic, m)
	}
	if layerCount, err = read("layer count"); err != nil {
		return 0, 0, err
	}
	if blobCount, err = read("blob count"); err != nil {
		return 0, 0, err
	}
	if layerCount <= 0 || blobCount <= 0 {
		return 0, 0, fmt.Errorf("%w: invalid layer_count %d or blob_count %d", ErrBadFormat, layerCount, blobCount)
	}
	return layerCount, blobCount, nil
}

// LoadParam builds the graph from a text param stream:
//
//	7767517
//	layer_count blob_count
//	type name bottom_count top_count bottoms... tops... id=value...
//
// Layers whose params are rejected are reported together under ErrLayerLoad
// after the whole stream is read. Any other failure clears the Net.
func (n *Net) LoadParam(dr serialization.DataReader) error {
	n.Clear()
	if err := n.loadParam(dr); err != nil {
		if !errors.Is(err, ErrLayerLoad) {
			n.Clear()
		}
		return err
	}
	return nil
}

func (n *Net) loadParam(dr serialization.DataReader) error {
	layerCount, blobCount, err := readHeader(func(what string) (int, error) {
		var v int
		return v, scanField(dr, "%d", &v, what)
	})
	if err != nil {
		return err
	}

	b := n.newGraphBuilder(layerCount, blobCount)
	for i := range layerCount {
		var typ, name string
		var bottomCount, topCount int
		if err := scanField(dr, "%s", &typ, "layer type"); err != nil {
			return err
		}
		if err := scanField(dr, "%s", &name, "layer name"); err != nil {
			return err
		}
		if err := scanField(dr, "%d", &bottomCount, "bottom count"); err != nil {
			return err
		}
		if err := scanField(dr, "%d", &topCount, "top count"); err != nil {
			return err
		}
		if bottomCount < 0 || topCount < 0 {
			return fmt.Errorf("%w: layer %q has %d bottoms and %d tops", ErrBadFormat, name, bottomCount, topCount)
		}

		l, err := n.createByName(typ)
		if err != nil {
			slog.Error("layer type not exists or not registered", "type", typ, "name", name)
			return fmt.Errorf("layer %d %q: %w", i, name, err)
		}
		meta := l.Meta()
		meta.Name = name

		meta.Bottoms = make([]int, bottomCount)
		for j := range bottomCount {
			var blobName string
			if err := scanField(dr, "%s", &blobName, "bottom name"); err != nil {
				return err
			}
			bi := n.FindBlobIndexByName(blobName)
			if bi < 0 {
				if bi, err = b.nextBlob(blobName); err != nil {
					return err
				}
			}
			b.bindBottom(i, bi)
			meta.Bottoms[j] = bi
		}

		meta.Tops = make([]int, topCount)
		for j := range topCount {
			var blobName string
			if err := scanField(dr, "%s", &blobName, "top name"); err != nil {
				return err
			}
			ti, err := b.nextBlob(blobName)
			if err != nil {
				return err
			}
			if err := b.bindTop(i, ti); err != nil {
				return err
			}
			meta.Tops[j] = ti
		}

		if err := b.pd.LoadParam(dr); err != nil {
			return fmt.Errorf("%w: layer %d %q params: %w", ErrBadFormat, i, name, err)
		}
		b.finishLayer(i, l)
	}
	return b.finish()
}

// LoadParamBin builds the graph from a binary param stream. Layers are
// identified by type index and blobs by slot index; no names are stored.
func (n *Net) LoadParamBin(dr serialization.DataReader) error {
	n.Clear()
	if err := n.loadParamBin(dr); err != nil {
		if !errors.Is(err, ErrLayerLoad) {
			n.Clear()
		}
		return err
	}
	return nil
}

func (n *Net) loadParamBin(dr serialization.DataReader) error {
	read := func(what string) (int, error) {
		v, err := serialization.ReadInt32(dr)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrBadFormat, what, err)
		}
		return v, nil
	}
	layerCount, blobCount, err := readHeader(read)
	if err != nil {
		return err
	}

	b := n.newGraphBuilder(layerCount, blobCount)
	b.blobIndex = blobCount
	blobRef := func(what string) (int, error) {
		v, err := read(what)
		if err != nil {
			return -1, err
		}
		if v < 0 || v >= blobCount {
			return -1, fmt.Errorf("%w: %s %d out of range", ErrBadFormat, what, v)
		}
		return v, nil
	}

	for i := range layerCount {
		typeIndex, err := read("type index")
		if err != nil {
			return err
		}
		bottomCount, err := read("bottom count")
		if err != nil {
			return err
		}
		topCount, err := read("top count")
		if err != nil {
			return err
		}
		if bottomCount < 0 || topCount < 0 {
			return fmt.Errorf("%w: layer %d has %d bottoms and %d tops", ErrBadFormat, i, bottomCount, topCount)
		}

		l, err := n.createByIndex(typeIndex)
		if err != nil {
			slog.Error("layer type not exists or not registered", "type_index", typeIndex)
			return fmt.Errorf("layer %d: %w", i, err)
		}
		meta := l.Meta()

		meta.Bottoms = make([]int, bottomCount)
		for j := range bottomCount {
			bi, err := blobRef("bottom index")
			if err != nil {
				return err
			}
			b.bindBottom(i, bi)
			meta.Bottoms[j] = bi
		}
		meta.Tops = make([]int, topCount)
		for j := range topCount {
			ti, err := blobRef("top index")
			if err != nil {
				return err
			}
			if err := b.bindTop(i, ti); err != nil {
				return err
			}
			meta.Tops[j] = ti
		}

		if err := b.pd.LoadParamBin(dr); err != nil {
			return fmt.Errorf("%w: layer %d params: %w", ErrBadFormat, i, err)
		}
		b.finishLayer(i, l)
	}
	return b.finish()
}

// LoadParamFile loads a text param file.
func (n *Net) LoadParamFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open param file: %w", err)
	}
	defer f.Close()
	return n.LoadParam(serialization.NewDataReader(f))
}

// LoadParamMem loads text params from memory and returns the bytes consumed.
func (n *Net) LoadParamMem(s string) (int, error) {
	dr := serialization.NewMemoryDataReader([]byte(s))
	err := n.LoadParam(dr)
	return dr.Consumed(), err
}

// LoadParamBinFile loads a binary param file.
func (n *Net) LoadParamBinFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open param file: %w", err)
	}
	defer f.Close()
	return n.LoadParamBin(serialization.NewDataReader(f))
}

// LoadParamBinMem loads binary params from memory and returns the bytes consumed.
func (n *Net) LoadParamBinMem(data []byte) (int, error) {
	dr := serialization.NewMemoryDataReader(data)
	err := n.LoadParamBin(dr)
	return dr.Consumed(), err
}
