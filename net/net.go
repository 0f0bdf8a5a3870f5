// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package net loads and runs inference graphs.
//
// A model is two files: a param file describing layers and the blobs that
// connect them, and a model file holding their weights in the same order.
//
// # Example Usage
//
//	model := net.New()
//	if err := model.LoadParamFile("squeezenet.param"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := model.LoadModelFile("squeezenet.bin"); err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Clear()
//
//	ex := model.CreateExtractor()
//	defer ex.Close()
//	if err := ex.Input("data", img); err != nil {
//	    log.Fatal(err)
//	}
//	prob, err := ex.Extract("prob")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer prob.Release()
//
// A loaded Net is read-only. Run concurrent inferences with one Extractor
// per goroutine.
package net

import (
	"io"

	internalnet "github.com/born-ml/lite/internal/net"
	"github.com/born-ml/lite/internal/option"
)

// Net is a loaded graph.
type Net = internalnet.Net

// Extractor runs one inference over a Net.
type Extractor = internalnet.Extractor

// Blob is a named edge of the graph.
type Blob = internalnet.Blob

// Option configures inference.
type Option = option.Option

// Errors reported while loading or running a graph.
var (
	ErrBadMagic        = internalnet.ErrBadMagic
	ErrBadFormat       = internalnet.ErrBadFormat
	ErrUnknownLayer    = internalnet.ErrUnknownLayer
	ErrLayerLoad       = internalnet.ErrLayerLoad
	ErrDanglingBlob    = internalnet.ErrDanglingBlob
	ErrIncompleteGraph = internalnet.ErrIncompleteGraph
	ErrInputNotSet     = internalnet.ErrInputNotSet
	ErrBlobNotFound    = internalnet.ErrBlobNotFound
	ErrBuiltinLayer    = internalnet.ErrBuiltinLayer
)

// New creates an empty Net with DefaultOption settings.
func New() *Net {
	return internalnet.New()
}

// DefaultOption returns the settings a new Net starts with. LITE_*
// environment variables override the built-in defaults.
func DefaultOption() Option {
	return option.Default()
}

// Load reads a text param file and its model file with opt.
func Load(paramPath, modelPath string, opt Option) (*Net, error) {
	n := internalnet.New()
	n.Opt = opt
	if err := n.LoadParamFile(paramPath); err != nil {
		return nil, err
	}
	if err := n.LoadModelFile(modelPath); err != nil {
		n.Clear()
		return nil, err
	}
	return n, nil
}

// ConvertParamToBinary rewrites a text param stream in binary form and
// returns the blob names indexed by slot.
func ConvertParamToBinary(r io.Reader, w io.Writer) ([]string, error) {
	return internalnet.ConvertParamToBinary(r, w)
}
