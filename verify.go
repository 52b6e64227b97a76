// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"fmt"
	"unsafe"

	"github.com/cznic/mathutil"
)

// Verify walks every free list and every managed region and checks the
// invariants spec'd for this allocator: free-list membership matches the
// size class the block's payload computes, no two free blocks are
// physically adjacent, every block is word-aligned and at least
// minBlockSize, and boundary tags agree with actual neighbor sizes. It
// returns a descriptive error on the first violation found rather than
// aborting, so callers can log context before deciding to panic (the
// package-level Verify does exactly that).
func (a *Allocator) Verify() error {
	a.ensureInit()

	freeInLists := 0
	for sc := 0; sc <= a.fl.n; sc++ {
		for b := a.fl.heads[sc]; b != nil; b = b.next {
			if !b.free {
				return fmt.Errorf("memory: block %p on free list %d but not marked free", b, sc)
			}
			if got := a.fl.sizeClass(b.size - fixedHeaderSize); got != sc {
				return fmt.Errorf("memory: block %p sits in list %d but its size class is %d", b, sc, got)
			}
			if err := checkBlockSize(b); err != nil {
				return err
			}
			freeInLists++
		}
	}

	freeInRegions := 0
	for base, size := range a.regions {
		n, err := verifyRegion(base, uintptr(size))
		if err != nil {
			return err
		}
		freeInRegions += n
	}

	if freeInLists != freeInRegions {
		return fmt.Errorf("memory: %d free blocks reachable from lists, %d found walking regions", freeInLists, freeInRegions)
	}
	return nil
}

func checkBlockSize(b *block) error {
	if b.size%wordSize != 0 || b.size < minBlockSize {
		return fmt.Errorf("memory: block %p has invalid size %d", b, b.size)
	}
	return nil
}

// verifyRegion walks one region from fence to fence and returns the
// number of free blocks found in it.
func verifyRegion(base, size uintptr) (int, error) {
	if !isFence(unsafe.Pointer(base)) {
		return 0, fmt.Errorf("memory: region %#x missing its low fence", base)
	}
	end := base + size - fenceSize
	if !isFence(unsafe.Pointer(end)) {
		return 0, fmt.Errorf("memory: region %#x missing its high fence", base)
	}

	free := 0
	prevFree := false
	expectedLeft := fenceSize
	for addr := base + fenceSize; addr < end; {
		b := (*block)(unsafe.Pointer(addr))
		if err := checkBlockSize(b); err != nil {
			return 0, err
		}
		if b.leftSize != expectedLeft {
			return 0, fmt.Errorf("memory: block %#x has left_size %d, want %d", addr, b.leftSize, expectedLeft)
		}
		if b.free {
			if prevFree {
				return 0, fmt.Errorf("memory: adjacent free blocks ending at %#x", addr)
			}
			free++
		}
		prevFree = b.free
		expectedLeft = b.size
		addr += b.size
		if addr > end {
			return 0, fmt.Errorf("memory: block overruns region %#x end", base)
		}
	}
	return free, nil
}

// Histogram buckets live allocation sizes by their power-of-two extent,
// a coarse diagnostic built on mathutil.BitLen the way the free-list
// classifier uses linear word-multiple buckets for the exact-fit path.
func (a *Allocator) Histogram() map[int]int {
	a.ensureInit()
	hist := map[int]int{}
	for base, size := range a.regions {
		end := base + uintptr(size) - fenceSize
		for addr := base + fenceSize; addr < end; {
			b := (*block)(unsafe.Pointer(addr))
			if !b.free {
				log2 := mathutil.BitLen(int(b.size - fixedHeaderSize))
				hist[log2]++
			}
			addr += b.size
		}
	}
	return hist
}
