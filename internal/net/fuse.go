package net

import (
	"log/slog"

	"github.com/born-ml/lite/internal/layer"
)

// fuseNetwork lets an int8 convolution emit int8 directly when the layer
// reading its output quantizes again anyway. Pooling successors are not
// handled and keep the float round trip.
func (n *Net) fuseNetwork() {
	for _, l := range n.layers {
		if !isInt8Conv(l) {
			continue
		}
		tops := l.Meta().Tops
		if len(tops) == 0 {
			continue
		}
		for _, c := range n.blobs[tops[0]].Consumers {
			next := n.layers[c]
			scale, ok := n.requantizeScale(next)
			if !ok {
				continue
			}
			setRequantize(l, scale)
			slog.Debug("fuse int8 requantize", "layer", l.Meta().Name, "next", next.Meta().Name, "scale", scale)
		}
	}
}

// requantizeScale returns the input scale an int8 output feeding next must
// use, or false when next does not start an int8 chain.
func (n *Net) requantizeScale(next layer.Layer) (float32, bool) {
	if isInt8Conv(next) {
		return bottomScale(next), true
	}
	if layer.KindOf(next) != layer.KindReLU {
		return 0, false
	}

	after := n.firstConsumer(next)
	if after == nil {
		return 0, false
	}
	if isInt8Conv(after) {
		return bottomScale(after), true
	}
	if layer.KindOf(after) != layer.KindSplit || len(after.Meta().Tops) < 2 {
		return 0, false
	}

	var scale float32
	found := false
	for _, t := range after.Meta().Tops {
		branch := n.firstConsumerOf(t)
		switch {
		case branch == nil:
			return 0, false
		case layer.KindOf(branch) == layer.KindPriorBox:
		case isInt8Conv(branch):
			if _, ok := branch.(*layer.Convolution); ok {
				scale = bottomScale(branch)
				found = true
			}
		default:
			return 0, false
		}
	}
	return scale, found
}

func (n *Net) firstConsumer(l layer.Layer) layer.Layer {
	tops := l.Meta().Tops
	if len(tops) == 0 {
		return nil
	}
	return n.firstConsumerOf(tops[0])
}

func (n *Net) firstConsumerOf(blob int) layer.Layer {
	consumers := n.blobs[blob].Consumers
	if len(consumers) == 0 {
		return nil
	}
	return n.layers[consumers[0]]
}

type quantized interface {
	QuantizedWeights() bool
}

func isInt8Conv(l layer.Layer) bool {
	switch layer.KindOf(l) {
	case layer.KindConvolution, layer.KindConvolutionDepthWise:
		q, ok := l.(quantized)
		return ok && q.QuantizedWeights()
	}
	return false
}

func bottomScale(l layer.Layer) float32 {
	switch c := l.(type) {
	case *layer.Convolution:
		return c.BottomBlobInt8Scale
	case *layer.ConvolutionDepthWise:
		if s := c.BottomBlobInt8Scales.Float32s(); len(s) > 0 {
			return s[0]
		}
	}
	return 0
}

func setRequantize(l layer.Layer, scale float32) {
	switch c := l.(type) {
	case *layer.Convolution:
		c.UseInt8Requantize = true
		c.TopBlobInt8Scale = scale
	case *layer.ConvolutionDepthWise:
		c.UseInt8Requantize = true
		c.TopBlobInt8Scale = scale
	}
}
