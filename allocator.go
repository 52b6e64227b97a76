// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"log"
	"unsafe"
)

// Allocator allocates and releases memory backed by regions obtained
// from the OS. Its zero value is ready for use: the segregated variant
// at its default chunk size and size-class count. An Allocator must not
// be used from more than one goroutine at a time.
type Allocator struct {
	cfg         Config
	initialized bool

	fl *freeList

	top, bottom           uintptr
	topBlock, bottomBlock *block

	regions map[uintptr]int

	allocs      int
	mmaps       int
	bytesMapped int
	bytesLive   int

	// mapFn/unmapFn are the Region Provider, defaulted to mapChunk/
	// unmapChunk in ensureInit. Tests override them to exercise the
	// SystemOutOfMemory path without relying on the OS actually
	// refusing a mapping.
	mapFn   func(size int) ([]byte, error)
	unmapFn func(b []byte) error
}

// New returns an Allocator configured per cfg. Passing the zero Config
// is equivalent to using the zero Allocator.
func New(cfg Config) *Allocator {
	return &Allocator{cfg: cfg}
}

func (a *Allocator) ensureInit() {
	if a.initialized {
		return
	}
	a.cfg = a.cfg.resolve()
	a.fl = newFreeList(a.cfg.SizeClasses)
	a.regions = make(map[uintptr]int)
	if a.mapFn == nil {
		a.mapFn = mapChunk
	}
	if a.unmapFn == nil {
		a.unmapFn = unmapChunk
	}
	a.initialized = true
}

func (a *Allocator) maxAllocationSize() uintptr {
	return uintptr(a.cfg.ChunkSize) - blockMetadataSize - 2*fenceSize
}

// MaxAllocationSize reports the largest value n for which Allocate(n)
// can succeed.
func (a *Allocator) MaxAllocationSize() int {
	a.ensureInit()
	return int(a.maxAllocationSize())
}

// Stats is a snapshot of an Allocator's bookkeeping counters.
type Stats struct {
	Allocs      int // live (unreleased) allocations
	Mmaps       int // regions currently held
	BytesMapped int // total bytes obtained from the Region Provider
	BytesLive   int // total block bytes backing live allocations
}

// Stats reports the allocator's current bookkeeping counters.
func (a *Allocator) Stats() Stats {
	a.ensureInit()
	return Stats{
		Allocs:      a.allocs,
		Mmaps:       a.mmaps,
		BytesMapped: a.bytesMapped,
		BytesLive:   a.bytesLive,
	}
}

// Allocate returns a word-aligned pointer to at least n zero-initialized,
// writable bytes, or nil if n is zero, n exceeds MaxAllocationSize, or
// the Region Provider cannot supply more memory.
func (a *Allocator) Allocate(n int) unsafe.Pointer {
	a.ensureInit()
	if n < 0 {
		panic("memory: negative allocation size")
	}

	size := roundup(uintptr(n), wordSize)
	if size == 0 || size > a.maxAllocationSize() {
		return nil
	}

	b, err := a.findOrGrow(a.fl.sizeClass(size), size)
	if err != nil {
		return nil
	}

	b.free = false
	b.prev, b.next = nil, nil
	a.allocs++
	a.bytesLive += int(b.size)

	p := payload(b)
	zero(p, size)
	a.trace("allocate(%d) = %p size=%d", n, p, b.size)
	return p
}

// Release returns p, previously obtained from Allocate and not yet
// released, to the allocator. Releasing nil is a no-op. Releasing a
// pointer twice is a caller error; Release panics when p's block header
// still reads free, and does not detect a second release once that
// memory has been handed out again.
func (a *Allocator) Release(p unsafe.Pointer) {
	a.ensureInit()
	if p == nil {
		return
	}

	b := blockFromPayload(p)
	if b.free {
		panic("memory: double release")
	}
	b.free = true
	a.allocs--
	a.bytesLive -= int(b.size)
	a.fl.add(b)
	a.trace("release(%p) size=%d", p, b.size)

	if r := right(b); !isFence(unsafe.Pointer(r)) && r.free {
		a.coalesce(b, r)
	}
	if l := left(b); !isFence(unsafe.Pointer(l)) && l.free {
		a.coalesce(l, b)
	}
}

// Close unmaps every region the allocator currently holds and resets it
// to its zero value. It is not necessary to Close an Allocator on
// process exit; the OS reclaims its regions.
func (a *Allocator) Close() error {
	a.ensureInit()
	var firstErr error
	for base, size := range a.regions {
		b := unsafe.Slice((*byte)(unsafe.Pointer(base)), size)
		if err := a.unmapFn(b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	*a = Allocator{}
	return firstErr
}

// findOrGrow implements the Free-List Index lookup of spec §4.3: walk up
// from sc through the exact-fit lists, falling back to the catch-all
// list and then to a fresh region, splitting the first oversized
// candidate found on the way back down.
func (a *Allocator) findOrGrow(sc int, size uintptr) (*block, error) {
	if sc < a.fl.n && a.fl.heads[sc] != nil {
		b := a.fl.heads[sc]
		a.fl.remove(b)
		return b, nil
	}

	var (
		b   *block
		err error
	)
	if sc < a.fl.n {
		b, err = a.findOrGrow(sc+1, size)
	} else {
		b, err = a.allocFromGeneral(size)
	}
	if err != nil {
		return nil, err
	}

	if b.size >= size+2*blockMetadataSize+wordSize {
		second := a.split(b, size)
		a.fl.add(b)
		b = second
	}
	return b, nil
}

func (a *Allocator) allocFromGeneral(size uintptr) (*block, error) {
	if b := a.fl.findFit(size); b != nil {
		a.fl.remove(b)
		return b, nil
	}
	return a.acquireRegion(size)
}

// split divides an oversized free block b into a low free remainder and
// a high allocated portion sized to fit size bytes of payload, returning
// the high portion. Splitting from the high end keeps free blocks
// clustered toward low addresses.
func (a *Allocator) split(b *block, size uintptr) *block {
	total := b.size
	first := b
	first.free = true

	need := size + fixedHeaderSize
	if need < blockMetadataSize {
		need = blockMetadataSize
	}
	first.size = total - need

	second := right(first)
	second.size = total - first.size
	second.leftSize = first.size
	second.free = false
	second.prev, second.next = nil, nil

	if r := right(second); !isFence(unsafe.Pointer(r)) {
		r.leftSize = second.size
	}
	if b == a.topBlock {
		a.topBlock = second
	}
	return second
}

// coalesce merges two physically adjacent free blocks, lo followed
// immediately by hi, into one surviving as lo.
func (a *Allocator) coalesce(lo, hi *block) {
	a.fl.remove(lo)
	a.fl.remove(hi)
	lo.size += hi.size
	if rr := right(hi); !isFence(unsafe.Pointer(rr)) {
		rr.leftSize = lo.size
	}
	a.fl.add(lo)
	if hi == a.topBlock {
		a.topBlock = lo
	}
}

// acquireRegion obtains a fresh chunk from the Region Provider, brackets
// it with fences, and attempts to stitch it to the existing top/bottom
// of the managed address range before handing back the candidate block.
func (a *Allocator) acquireRegion(size uintptr) (*block, error) {
	chunkSize := uintptr(a.cfg.ChunkSize)
	if size+blockMetadataSize+2*fenceSize > chunkSize {
		panic("memory: allocation size exceeds chunk capacity")
	}

	raw, err := a.mapFn(int(chunkSize))
	if err != nil {
		return nil, err
	}
	a.mmaps++
	a.bytesMapped += len(raw)
	ptr := uintptr(unsafe.Pointer(&raw[0]))
	a.regions[ptr] = len(raw)

	writeFence(unsafe.Pointer(ptr))
	writeFence(unsafe.Pointer(ptr + chunkSize - fenceSize))

	b := (*block)(unsafe.Pointer(ptr + fenceSize))
	b.free = false
	b.size = chunkSize - 2*fenceSize
	b.leftSize = fenceSize
	b.prev, b.next = nil, nil

	end := ptr + chunkSize

	// Bottom merge: the new chunk's upper fence touches the lowest
	// region seen so far.
	if a.bottom != 0 && a.bottom == end {
		if a.bottomBlock.free {
			a.fl.remove(a.bottomBlock)
			b.size = a.bottomBlock.size + chunkSize
			r := right(a.bottomBlock)
			r.leftSize = b.size
		} else {
			b.size = chunkSize
			a.bottomBlock.leftSize = chunkSize
		}
	}
	if a.bottom == 0 || ptr < a.bottom {
		a.bottom = ptr
		a.bottomBlock = b
	}

	// Top merge: the new chunk's lower fence touches the highest region
	// seen so far.
	if a.top != 0 && a.top == ptr {
		r := right(a.topBlock)
		if a.topBlock.free {
			a.fl.remove(a.topBlock)
			a.topBlock.free = false
			a.topBlock.size += chunkSize
			a.topBlock.prev, a.topBlock.next = nil, nil
			b = a.topBlock
		} else {
			r.free = false
			r.size = chunkSize
			r.leftSize = a.topBlock.size
			r.prev, r.next = nil, nil
			b = r
		}
	}
	if ptr > a.top {
		a.top = ptr + chunkSize
		a.topBlock = b
	}

	return b, nil
}

func zero(p unsafe.Pointer, n uintptr) {
	b := unsafe.Slice((*byte)(p), int(n))
	for i := range b {
		b[i] = 0
	}
}

func (a *Allocator) trace(format string, args ...interface{}) {
	if !a.cfg.Trace {
		return
	}
	logger := a.cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf(format, args...)
}

// defaultAllocator backs the package-level Allocate/Release/Verify/
// MaxAllocationSize functions, preserving a historical free-function
// signature over a single process-wide instance.
var defaultAllocator Allocator

// Allocate is Allocate on the package-wide default Allocator.
func Allocate(n int) unsafe.Pointer { return defaultAllocator.Allocate(n) }

// Release is Release on the package-wide default Allocator.
func Release(p unsafe.Pointer) { defaultAllocator.Release(p) }

// MaxAllocationSize is MaxAllocationSize on the package-wide default
// Allocator.
func MaxAllocationSize() int { return defaultAllocator.MaxAllocationSize() }

// Verify checks the package-wide default Allocator's invariants and
// panics if any have been violated. It is a diagnostic hook, not part of
// the normal allocation path.
func Verify() {
	if err := defaultAllocator.Verify(); err != nil {
		panic(err)
	}
}
