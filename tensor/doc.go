// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor exposes the blob type that flows between layers.
//
// # Overview
//
// A Mat is a small value header over reference-counted storage:
//   - 1, 2 or 3 dimensions (w; w,h; w,h,c)
//   - 4-byte float32, 2-byte bfloat16/float16 or 1-byte int8 lanes
//   - an optional packed layout of 4 lanes per element
//   - 16-byte aligned channels
//
// # Ownership
//
// Copying a Mat copies the header only. Share takes another reference and
// Release drops one; storage returns to its allocator when the last
// reference is released. Views such as Channel hold no reference and must
// not outlive their parent.
//
//	m := tensor.FromFloat32([]float32{1, 2, 3, 4}, 2, 2)
//	defer m.Release()
//
//	n := m.Share()     // same storage, two references
//	c := n.Clone(nil)  // private copy
//	n.Release()
//	c.Release()
package tensor
