// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package layer is the extension point for custom operators.
//
// A custom layer embeds Base, sets its capability flags and implements one
// or more of the forward interfaces:
//
//	type Doubler struct{ layer.Base }
//
//	func NewDoubler() layer.Layer {
//	    return &Doubler{Base: layer.Base{OneBlobOnly: true, SupportInplace: true}}
//	}
//
//	func (d *Doubler) ForwardInplace(m *tensor.Mat, opt layer.Option) error {
//	    for q := range m.C {
//	        x := m.Channel(q).Float32s()
//	        for i := range x {
//	            x[i] *= 2
//	        }
//	    }
//	    return nil
//	}
//
// Register the constructor on a net before loading params:
//
//	model.RegisterCustomLayer("Doubler", NewDoubler)
package layer

import (
	"github.com/born-ml/lite/internal/layer"
	"github.com/born-ml/lite/internal/option"
)

// Layer is the lifecycle every operator goes through.
type Layer = layer.Layer

// Base carries graph wiring and capability flags; embed it.
type Base = layer.Base

// Factory constructs a fresh layer.
type Factory = layer.Factory

// Forward capabilities a layer may implement.
type (
	Forwarder             = layer.Forwarder
	InplaceForwarder      = layer.InplaceForwarder
	MultiForwarder        = layer.MultiForwarder
	MultiInplaceForwarder = layer.MultiInplaceForwarder
)

// Option is the execution context passed to every forward call.
type Option = option.Option

// Kind identifies a built-in layer type.
type Kind = layer.Kind

// KindCustom is reported for layers from a custom registry.
const KindCustom = layer.KindCustom

// CustomBit marks custom type indices in binary params.
const CustomBit = layer.CustomBit

// Errors layers report.
var (
	ErrUnsupported   = layer.ErrUnsupported
	ErrOutOfMemory   = layer.ErrOutOfMemory
	ErrInvalidParam  = layer.ErrInvalidParam
	ErrShapeMismatch = layer.ErrShapeMismatch
)

// KindOf returns the built-in kind of l, or KindCustom.
func KindOf(l Layer) Kind {
	return layer.KindOf(l)
}

// CreateByName instantiates a built-in layer type, or returns nil.
func CreateByName(name string) Layer {
	return layer.CreateByName(name)
}

// BuiltinNames lists the built-in type names in type index order.
// Names without an implementation are included.
func BuiltinNames() []string {
	return layer.Builtin().Names()
}
