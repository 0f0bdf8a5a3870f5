package net

import "github.com/born-ml/lite/internal/tensor"

// Blob is a named edge of the graph. It records which layer writes it and
// which layers read it; the data itself lives in an Extractor.
type Blob struct {
	Name string

	// Producer is the index of the layer that writes this blob, or -1.
	Producer int

	// Consumers lists the indices of layers that read this blob.
	Consumers []int

	// Shape is an optional hint from the param file. It owns no data.
	Shape tensor.Mat
}
