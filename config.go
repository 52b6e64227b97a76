// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"log"
	"unsafe"
)

const (
	wordSize   = unsafe.Sizeof(uintptr(0))
	fenceMagic = uintptr(0xDEADBEEF)
	fenceSize  = wordSize

	// DefaultSizeClasses is N from the design: the number of exact-fit
	// free lists below the catch-all, used by the segregated variant.
	DefaultSizeClasses = 59

	// DefaultChunkSize is the segregated variant's region size (16 MiB),
	// requested from the Region Provider one chunk at a time.
	DefaultChunkSize = 16 << 20

	// SingleListChunkSize is the single-list variant's region size (4 KiB).
	SingleListChunkSize = 4 << 10
)

// Variant selects between the segregated free-list layout and the
// single-free-list layout. Both share the same block format, split and
// coalesce policy; they differ only in free-list shape and chunk size.
type Variant int

const (
	// Segregated indexes free blocks by exact word-multiple payload size,
	// with a catch-all list for anything larger. This is the default.
	Segregated Variant = iota

	// SingleList keeps every free block on one catch-all list, searched
	// first-fit. Intended for small heaps or constrained environments
	// where the segregated index's per-class bookkeeping isn't worth it.
	SingleList
)

// Config parametrizes an Allocator. The zero value resolves to the
// segregated variant with its default chunk size and size-class count.
type Config struct {
	Variant Variant

	// ChunkSize overrides the variant's default region size. Must be
	// large enough to hold at least one minimum-size block plus fences.
	ChunkSize int

	// SizeClasses overrides the segregated variant's N. Ignored by
	// SingleList, which always collapses to a single catch-all list.
	SizeClasses int

	// Trace, if true, logs every successful Allocate and every non-nil
	// Release through Logger (or log.Default() if Logger is nil).
	Trace  bool
	Logger *log.Logger
}

func (c Config) resolve() Config {
	r := c
	switch r.Variant {
	case SingleList:
		if r.ChunkSize == 0 {
			r.ChunkSize = SingleListChunkSize
		}
		r.SizeClasses = 0
	default:
		if r.ChunkSize == 0 {
			r.ChunkSize = DefaultChunkSize
		}
		if r.SizeClasses == 0 {
			r.SizeClasses = DefaultSizeClasses
		}
	}
	return r
}

// roundup rounds n up to the next multiple of m. m must be a power of 2.
func roundup(n, m uintptr) uintptr { return (n + m - 1) &^ (m - 1) }
