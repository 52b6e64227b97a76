// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func readByte(p unsafe.Pointer, i int) byte {
	return *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(i)))
}

func writeByte(p unsafe.Pointer, i int, v byte) {
	*(*byte)(unsafe.Pointer(uintptr(p) + uintptr(i))) = v
}

func TestAllocateZeroReturnsNil(t *testing.T) {
	var a Allocator
	require.Nil(t, a.Allocate(0))
}

func TestAllocateAboveMaxReturnsNil(t *testing.T) {
	var a Allocator
	require.Nil(t, a.Allocate(a.MaxAllocationSize()+1))
	require.Zero(t, a.Stats().Mmaps, "an over-large request must not contact the Region Provider")
}

func TestAllocateMaxSucceeds(t *testing.T) {
	var a Allocator
	p := a.Allocate(a.MaxAllocationSize())
	require.NotNil(t, p)
}

func TestReleaseNilIsNoop(t *testing.T) {
	var a Allocator
	a.Release(nil)
	require.Zero(t, a.Stats().Allocs)
}

func TestAllocationIsWordAlignedAndZeroed(t *testing.T) {
	var a Allocator
	for _, n := range []int{1, 7, 8, 9, 123, 4096} {
		p := a.Allocate(n)
		require.NotNil(t, p)
		require.Zero(t, uintptr(p)%wordSize)
		for i := 0; i < n; i++ {
			require.Equal(t, byte(0), readByte(p, i))
		}
		a.Release(p)
	}
}

// Scenario 1: single lifecycle.
func TestSingleLifecycle(t *testing.T) {
	var a Allocator
	p := a.Allocate(123)
	require.NotNil(t, p)
	for i := 0; i < 123; i++ {
		writeByte(p, i, byte(i))
	}
	a.Release(p)
	require.NoError(t, a.Verify())
}

// Scenario 2: split and reuse.
func TestSplitAndReuse(t *testing.T) {
	var a Allocator
	p := a.Allocate(8)
	a.Release(p)
	q := a.Allocate(8)
	require.Equal(t, p, q)
}

// Scenario 3: coalesce.
func TestCoalesce(t *testing.T) {
	var a Allocator
	p := a.Allocate(100)
	q := a.Allocate(100)
	a.Release(p)
	a.Release(q)
	r := a.Allocate(208)
	require.Equal(t, p, r)
}

// Scenario 4: odd-index fragmentation.
func TestOddIndexFragmentation(t *testing.T) {
	var a Allocator
	var ptrs [10]unsafe.Pointer
	for i := range ptrs {
		ptrs[i] = a.Allocate(8)
		require.NotNil(t, ptrs[i])
	}
	for i := 9; i > 0; i -= 2 {
		a.Release(ptrs[i])
	}
	require.Equal(t, 5, a.Stats().Allocs)
	require.NoError(t, a.Verify())
}

// Scenario 5: all size classes.
func TestAllSizeClasses(t *testing.T) {
	var a Allocator
	for k := 1; k <= DefaultSizeClasses; k++ {
		first := a.Allocate(8 * (k + 1))
		require.NotNil(t, first)
		gap := a.Allocate(8 * (k + 2)) // blocks coalescence with the freed block
		require.NotNil(t, gap)
		a.Release(first)

		reused := a.Allocate(8 * (k + 1))
		require.NotNil(t, reused)
		if k < DefaultSizeClasses {
			// Below N the freed block sits alone on its exact-fit list,
			// so the next same-size request is guaranteed to pop it
			// back. At k == N the request spills into the catch-all,
			// whose first-fit search makes no such guarantee (spec.md
			// §9's open question on catch-all first-fit).
			require.Equal(t, first, reused, "size class %d did not reuse its freed block", k)
		}
		a.Release(reused)
		a.Release(gap)
	}
	require.NoError(t, a.Verify())
}

// Scenario 6: mixed sizes, alternating forward/reverse release order.
func TestMixedSizes(t *testing.T) {
	sizes := []int{123, 456, 1, 8, 8, 8, 56, 8, 12, 67, 32497, 123, 456, 8, 8, 8, 6, 6, 6, 12, 12}
	var a Allocator
	for i := 1; i <= len(sizes); i++ {
		ptrs := make([]unsafe.Pointer, i)
		for j := 0; j < i; j++ {
			ptrs[j] = a.Allocate(sizes[j])
			require.NotNil(t, ptrs[j])
		}
		if i%2 == 0 {
			for j := i - 1; j >= 0; j-- {
				a.Release(ptrs[j])
			}
		} else {
			for j := 0; j < i; j++ {
				a.Release(ptrs[j])
			}
		}
		require.NoError(t, a.Verify(), "iteration %d", i)
	}
}

func TestDoubleReleasePanics(t *testing.T) {
	var a Allocator
	p := a.Allocate(16)
	a.Release(p)
	require.Panics(t, func() { a.Release(p) })
}

func TestStatsTrackLiveAllocations(t *testing.T) {
	var a Allocator
	p := a.Allocate(64)
	require.Equal(t, 1, a.Stats().Allocs)
	a.Release(p)
	require.Equal(t, 0, a.Stats().Allocs)
}

func TestRegionGrowthAcrossChunks(t *testing.T) {
	a := New(Config{ChunkSize: SingleListChunkSize, Variant: SingleList})
	n := a.MaxAllocationSize()
	var ptrs []unsafe.Pointer
	for i := 0; i < 8; i++ {
		p := a.Allocate(n)
		require.NotNil(t, p)
		ptrs = append(ptrs, p)
	}
	require.Greater(t, a.Stats().Mmaps, 1)
	for _, p := range ptrs {
		a.Release(p)
	}
	require.NoError(t, a.Verify())
}

func TestCloseUnmapsRegions(t *testing.T) {
	var a Allocator
	a.Allocate(16)
	require.NoError(t, a.Close())
	require.Zero(t, a.Stats().Mmaps)
}
