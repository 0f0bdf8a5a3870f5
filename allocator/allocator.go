// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package allocator provides the memory sources tensors draw from.
//
// The zero value of every allocator parameter in this module means the Go
// heap. Pool allocators keep released blocks for reuse and are meant to be
// shared by the extractors of one model:
//
//	blobs := allocator.NewPoolAllocator()
//	defer blobs.Close()
//	ex := model.CreateExtractor()
//	ex.SetBlobAllocator(blobs)
package allocator

import "github.com/born-ml/lite/internal/allocator"

// Allocator hands out raw byte buffers for tensor storage.
type Allocator = allocator.Allocator

// Heap allocates from the Go heap with 16-byte alignment.
type Heap = allocator.Heap

// PoolAllocator caches released blocks and is safe for concurrent use.
type PoolAllocator = allocator.PoolAllocator

// UnlockedPoolAllocator is a PoolAllocator for a single goroutine.
type UnlockedPoolAllocator = allocator.UnlockedPoolAllocator

// Stats is a snapshot of pool counters.
type Stats = allocator.Stats

// ErrOutstandingAllocations is returned by Close when blocks are still in use.
var ErrOutstandingAllocations = allocator.ErrOutstandingAllocations

// NewPoolAllocator creates an empty thread-safe pool.
func NewPoolAllocator() *PoolAllocator {
	return allocator.NewPoolAllocator()
}

// NewUnlockedPoolAllocator creates an empty pool without locking.
func NewUnlockedPoolAllocator() *UnlockedPoolAllocator {
	return allocator.NewUnlockedPoolAllocator()
}
