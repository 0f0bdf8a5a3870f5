// Package net builds an inference graph from param and model streams and
// runs it through extractors.
//
// A Net is immutable after LoadModel returns: any number of Extractors,
// each owned by one goroutine, may run against it concurrently.
package net

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/option"
)

// magic opens every param stream, text or binary.
const magic = 7767517

// Net is a loaded graph: its blobs, its layers and the options they were
// built with.
type Net struct {
	// Opt is the default option set for pipelines and new extractors.
	// Change it before loading the model.
	Opt option.Option

	blobs  []Blob
	layers []layer.Layer
	custom *layer.Registry
}

// New creates an empty Net with option.Default settings.
func New() *Net {
	return &Net{Opt: option.Default(), custom: layer.NewRegistry()}
}

// RegisterCustomLayer adds f under name to the Net's custom registry.
// Names of built-in types are rejected; re-registering a custom name
// replaces the old factory.
func (n *Net) RegisterCustomLayer(name string, f layer.Factory) error {
	if layer.Builtin().IndexOf(name) >= 0 {
		return fmt.Errorf("%w: %s", ErrBuiltinLayer, name)
	}
	idx := n.custom.IndexOf(name)
	if idx < 0 {
		idx = n.custom.Len()
	}
	n.custom.Set(idx, name, f)
	return nil
}

// RegisterCustomLayerIndex adds f at a custom type index for binary params.
// index must carry layer.CustomBit.
func (n *Net) RegisterCustomLayerIndex(index int, f layer.Factory) error {
	if index&layer.CustomBit == 0 {
		return fmt.Errorf("%w: %#x", ErrNotCustomIndex, index)
	}
	idx := index &^ layer.CustomBit
	name := ""
	if e, ok := n.custom.Entry(idx); ok {
		name = e.Name
	}
	n.custom.Set(idx, name, f)
	return nil
}

// createByName resolves built-in types first, then custom ones.
func (n *Net) createByName(typ string) (layer.Layer, error) {
	if l := layer.CreateByName(typ); l != nil {
		return l, nil
	}
	idx := n.custom.IndexOf(typ)
	l := n.custom.Create(idx)
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, typ)
	}
	m := l.Meta()
	m.TypeIndex = idx | layer.CustomBit
	m.Type = typ
	return l, nil
}

// createByIndex resolves a binary type index.
func (n *Net) createByIndex(index int) (layer.Layer, error) {
	if index&layer.CustomBit == 0 {
		l := layer.Builtin().Create(index)
		if l == nil {
			return nil, fmt.Errorf("%w: type index %d", ErrUnknownLayer, index)
		}
		return l, nil
	}
	idx := index &^ layer.CustomBit
	l := n.custom.Create(idx)
	if l == nil {
		return nil, fmt.Errorf("%w: custom type index %d", ErrUnknownLayer, idx)
	}
	m := l.Meta()
	m.TypeIndex = index
	if e, ok := n.custom.Entry(idx); ok && e.Name != "" {
		m.Type = e.Name
	}
	return l, nil
}

// Clear destroys every layer pipeline and drops the graph. Custom layer
// registrations survive.
func (n *Net) Clear() {
	for i, l := range n.layers {
		if l == nil {
			continue
		}
		if err := l.DestroyPipeline(n.Opt); err != nil {
			slog.Error("layer DestroyPipeline failed", "index", i, "name", l.Meta().Name, "error", err)
		}
	}
	n.blobs = nil
	n.layers = nil
}

// Blobs returns the graph's blobs. The slice must not be modified.
func (n *Net) Blobs() []Blob { return n.blobs }

// Layers returns the graph's layers in declaration order. Slots of layers
// that failed to load are nil.
func (n *Net) Layers() []layer.Layer { return n.layers }

// FindBlobIndexByName returns the index of the named blob, or -1.
func (n *Net) FindBlobIndexByName(name string) int {
	for i := range n.blobs {
		if n.blobs[i].Name == name {
			return i
		}
	}
	return -1
}

// FindLayerIndexByName returns the index of the named layer, or -1.
func (n *Net) FindLayerIndexByName(name string) int {
	for i, l := range n.layers {
		if l != nil && l.Meta().Name == name {
			return i
		}
	}
	return -1
}
