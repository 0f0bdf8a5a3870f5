package net

import "errors"

// Common errors.
var (
	ErrBadMagic        = errors.New("param magic mismatch")
	ErrBadFormat       = errors.New("malformed param stream")
	ErrUnknownLayer    = errors.New("layer type not registered")
	ErrLayerLoad       = errors.New("layer failed to load params")
	ErrDanglingBlob    = errors.New("blob is consumed but never produced")
	ErrIncompleteGraph = errors.New("net has layers that failed to load")
	ErrInputNotSet     = errors.New("input blob not set")
	ErrBlobNotFound    = errors.New("blob not found")
	ErrBuiltinLayer    = errors.New("cannot override built-in layer type")
	ErrNotCustomIndex  = errors.New("custom layer index lacks the custom bit")
)
