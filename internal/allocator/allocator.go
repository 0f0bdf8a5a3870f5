// Package allocator provides aligned byte allocation and pooled allocators
// that back every tensor buffer of the inference engine.
package allocator

import (
	"errors"
	"unsafe"
)

// MallocAlign is the byte alignment of every buffer handed out by this package.
const MallocAlign = 16

// MaxAllocSize bounds a single allocation request.
const MaxAllocSize = 1 << 40

// ErrOutstandingAllocations is returned when a pool is closed while some of
// its blocks are still held by tensors.
var ErrOutstandingAllocations = errors.New("allocator destroyed too early")

// Allocator hands out raw byte buffers for tensor storage.
//
// FastMalloc returns nil when the request cannot be satisfied.
// FastFree takes back a buffer previously returned by FastMalloc on the same allocator.
type Allocator interface {
	FastMalloc(size int) []byte
	FastFree(buf []byte)
}

// AlignSize rounds sz up to a multiple of n. n must be a power of two.
func AlignSize(sz, n int) int {
	return (sz + n - 1) &^ (n - 1)
}

// FastMalloc allocates size bytes whose first byte sits on a MallocAlign boundary.
// It returns nil for non-positive or oversized requests.
func FastMalloc(size int) []byte {
	if size <= 0 || size > MaxAllocSize {
		return nil
	}

	// Over-allocate so an aligned window of size bytes always fits.
	buf := make([]byte, size+MallocAlign-1)
	ptr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))

	offset := uintptr(0)
	if mod := ptr % MallocAlign; mod != 0 {
		offset = MallocAlign - mod
	}
	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// FastFree releases a buffer obtained from FastMalloc. Memory is reclaimed by
// the garbage collector, so this only exists to mirror FastMalloc.
func FastFree(buf []byte) {}

// IsAligned reports whether buf starts on a MallocAlign boundary.
func IsAligned(buf []byte) bool {
	if len(buf) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(buf)))%MallocAlign == 0
}

// Heap is the default allocator used when a tensor has no explicit allocator.
type Heap struct{}

// FastMalloc implements Allocator.
func (Heap) FastMalloc(size int) []byte { return FastMalloc(size) }

// FastFree implements Allocator.
func (Heap) FastFree(buf []byte) { FastFree(buf) }
