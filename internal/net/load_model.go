package net

import (
	"fmt"

	"github.com/born-ml/lite/internal/serialization"
)

// LoadModel reads every layer's weights in declaration order, applies the
// graph fusions and creates the layer pipelines with n.Opt.
func (n *Net) LoadModel(dr serialization.DataReader) error {
	if len(n.layers) == 0 {
		return fmt.Errorf("%w: no layers loaded", ErrIncompleteGraph)
	}
	for i, l := range n.layers {
		if l == nil {
			return fmt.Errorf("%w: layer %d", ErrIncompleteGraph, i)
		}
	}

	mb := serialization.NewModelBinFromDataReader(dr)
	for i, l := range n.layers {
		if err := l.LoadModel(mb); err != nil {
			return fmt.Errorf("layer %d %q load model: %w", i, l.Meta().Name, err)
		}
	}

	n.fuseNetwork()

	for i, l := range n.layers {
		if err := l.CreatePipeline(n.Opt); err != nil {
			return fmt.Errorf("layer %d %q create pipeline: %w", i, l.Meta().Name, err)
		}
	}
	return nil
}

// LoadModelFile memory-maps path and loads weights from it. Weights are
// copied out, so the mapping is released before returning.
func (n *Net) LoadModelFile(path string) error {
	mf, err := serialization.MapFile(path)
	if err != nil {
		return fmt.Errorf("map model file: %w", err)
	}
	defer mf.Close()
	return n.LoadModel(serialization.NewMemoryDataReader(mf.Bytes()))
}

// LoadModelMem loads weights from memory and returns the bytes consumed.
func (n *Net) LoadModelMem(data []byte) (int, error) {
	dr := serialization.NewMemoryDataReader(data)
	err := n.LoadModel(dr)
	return dr.Consumed(), err
}
