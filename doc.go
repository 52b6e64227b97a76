// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements a user-space general-purpose allocator over
// anonymous regions obtained directly from the OS, for a single-threaded
// caller that wants to manage its own heap.
//
// The allocator tiles each region as [fence | block ... block | fence]
// and keeps free blocks on a segregated index: one exact-fit list per
// word-multiple payload size up to Config.SizeClasses, plus a catch-all
// list searched first-fit. Allocation pops the smallest list guaranteed
// to fit, splitting from the high end of an oversized candidate when the
// remainder is worth keeping; release coalesces with both physical
// neighbors immediately, so no two free blocks are ever adjacent.
//
// Allocator's zero value is ready to use. A process-wide default
// instance backs the package-level Allocate/Release/Verify/
// MaxAllocationSize functions for callers who don't need more than one
// heap.
package memory
