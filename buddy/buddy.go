// Package buddy implements a buddy-system page allocator over a fixed,
// page-aligned heap region.
//
// The heap is managed in nine power-of-two size classes from 4KB to 1024KB.
// Free blocks carry an intrusive header at their start and are linked into
// one free list per class; a bitmap records, for every internal block pair,
// whether the pair is currently split. Allocation splits larger blocks on
// demand and freeing eagerly merges buddy pairs back together, bounded by
// the top class.
//
// The package has no internal synchronization: callers must serialize every
// operation (see the root package's global adapter). The caller is also
// responsible for keeping the underlying memory region alive for the
// lifetime of the System.
package buddy

import (
	"fmt"
	"math/bits"
	"unsafe"
)

const (
	// PageSize is the minimum block size and the granularity the slab tier
	// allocates at.
	PageSize = 4 * 1024

	// MinBlockSize is the smallest buddy class (one page).
	MinBlockSize = PageSize
	// MaxBlockSize is the largest buddy class (1024KB).
	MaxBlockSize = 1024 * 1024

	// minBlockShift is log2(MinBlockSize).
	minBlockShift = 12

	// numOrders is the number of size classes: 4KB << order, order in [0, 8].
	numOrders = 9
	maxOrder  = numOrders - 1

	// nullOffset terminates intrusive lists stored in arena memory.
	nullOffset = ^uint32(0)

	// maxHeapSize caps the heap so every block offset fits in uint32 and
	// stays distinguishable from nullOffset.
	maxHeapSize = int64(1)<<32 - PageSize
)

// BlockSize returns the byte size of the given order.
func BlockSize(order int) int {
	return MinBlockSize << order
}

// OrderFor returns the smallest order whose block size fits size, or -1 when
// the request is out of range for the buddy tier.
func OrderFor(size int) int {
	if size <= 0 || size > MaxBlockSize {
		return -1
	}
	if size <= MinBlockSize {
		return 0
	}
	return bits.Len(uint(size-1)) - minBlockShift
}

// System is the buddy page allocator. It owns one contiguous heap range and
// is constructed exactly once over it; there is no teardown.
type System struct {
	base unsafe.Pointer
	size int

	// free[o] links the free blocks of order o through headers written into
	// the blocks themselves.
	free [numOrders]freeList

	// bm holds one split bit per internal block pair.
	bm bitmap

	// avail is the current free capacity in bytes.
	avail int
}

// New constructs a buddy system over [base, base+size). base must be
// page-aligned and size at least one page; anything else fails fast with no
// partial construction. The range is greedily partitioned from the largest
// class downward; a tail smaller than one page is unusable.
func New(base unsafe.Pointer, size int) (*System, error) {
	if base == nil {
		return nil, fmt.Errorf("buddy: nil base address")
	}
	if uintptr(base)%PageSize != 0 {
		return nil, fmt.Errorf("buddy: base address %#x is not aligned to %d", uintptr(base), PageSize)
	}
	if size < MinBlockSize {
		return nil, fmt.Errorf("buddy: heap size must be at least %d bytes, got %d", MinBlockSize, size)
	}
	if int64(size) > maxHeapSize {
		return nil, fmt.Errorf("buddy: heap size %d exceeds the %d byte limit of 32-bit block offsets", size, maxHeapSize)
	}

	s := &System{base: base, size: size}
	s.bm.init(size)
	for i := range s.free {
		s.free[i].init(base)
	}

	off := 0
	remaining := size
	for order := maxOrder; order >= 0; order-- {
		bs := BlockSize(order)
		for remaining >= bs {
			s.free[order].push(uint32(off), uint8(order), relRoot)
			off += bs
			remaining -= bs
			s.avail += bs
		}
	}
	return s, nil
}

// Alloc returns a block of the smallest class that fits size, or nil when
// size is out of range or the heap is exhausted up through the top class.
// The returned block carries no header: the full class size belongs to the
// caller until the matching Free.
func (s *System) Alloc(size int) unsafe.Pointer {
	order := OrderFor(size)
	if order < 0 {
		return nil
	}
	off := s.allocOrder(order)
	if off == nullOffset {
		return nil
	}
	s.avail -= BlockSize(order)
	return unsafe.Add(s.base, uintptr(off))
}

// allocOrder pops a block of the given order, borrowing from the next larger
// class when the list is empty. Recursion bottoms out at the top class.
func (s *System) allocOrder(order int) uint32 {
	if off, ok := s.free[order].pop(); ok {
		return off
	}
	if order == maxOrder {
		return nullOffset
	}
	parent := s.allocOrder(order + 1)
	if parent == nullOffset {
		return nullOffset
	}
	// Split: the pair bit flips 0 -> 1, the second child goes on the free
	// list and the first child satisfies the request.
	half := uint32(BlockSize(order))
	s.bm.toggle(s.bm.index(parent, order+1))
	s.free[order].push(parent+half, uint8(order), relSecond)
	return parent
}

// Free returns the block at p to its class. p must be a live result of a
// prior Alloc with the same size; pointers outside the arena or misaligned
// for their class indicate caller misuse or corruption and panic.
func (s *System) Free(p unsafe.Pointer, size int) {
	order := OrderFor(size)
	if order < 0 {
		panic("buddy: invalid free size")
	}
	off := s.offsetOf(p)
	bs := BlockSize(order)
	if int(off)%bs != 0 {
		panic("buddy: misaligned block")
	}
	if int(off)+bs > s.size {
		panic("buddy: block out of range")
	}
	s.insert(off, order)
	s.avail += bs
}

// insert links a freed block into its class, first merging with its buddy
// while the pair bit shows a split and the buddy is itself free. Eager
// merging keeps a fully free pair from ever lingering unmerged, so the
// combined check is exact. The chain is bounded by the top class.
func (s *System) insert(off uint32, order int) {
	for order < maxOrder {
		bs := uint32(BlockSize(order))
		buddy := off ^ bs
		if int(buddy)+int(bs) > s.size {
			break // tail block, no buddy inside the heap
		}
		pi := s.bm.index(off&^bs, order+1)
		if !s.bm.isSet(pi) {
			break // pair not split: the block is a root at this class
		}
		if !s.free[order].remove(buddy) {
			break // buddy allocated or split further
		}
		// The unlinked buddy's header is still in place; the relation it
		// recorded when it went free must agree with its side of the pair.
		want := relSecond
		if buddy&bs == 0 {
			want = relFirst
		}
		if s.free[order].header(buddy).rel != want {
			panic("buddy: free list corrupted")
		}
		s.bm.toggle(pi) // completed merge: 1 -> 0
		off &^= bs
		order++
	}
	s.free[order].push(off, uint8(order), s.relFor(off, order))
}

// relFor recomputes the parent relation for a block entering the free state;
// insert cross-checks it against the buddy's position before every merge.
// Allocated blocks carry no header, so the relation cannot survive an
// alloc/free round trip and is derived from the pair bit instead.
func (s *System) relFor(off uint32, order int) uint8 {
	if order == maxOrder {
		return relRoot
	}
	bs := uint32(BlockSize(order))
	if int(off^bs)+int(bs) > s.size {
		return relRoot
	}
	if !s.bm.isSet(s.bm.index(off&^bs, order+1)) {
		return relRoot
	}
	if off&bs != 0 {
		return relSecond
	}
	return relFirst
}

func (s *System) offsetOf(p unsafe.Pointer) uint32 {
	d := uintptr(p) - uintptr(s.base)
	if p == nil || d >= uintptr(s.size) {
		panic("buddy: pointer not in arena")
	}
	return uint32(d)
}

// Base returns the start of the managed heap range.
func (s *System) Base() unsafe.Pointer { return s.base }

// Size returns the managed heap size in bytes.
func (s *System) Size() int { return s.size }

// Contains reports whether p points into the managed heap range.
func (s *System) Contains(p unsafe.Pointer) bool {
	return p != nil && uintptr(p)-uintptr(s.base) < uintptr(s.size)
}

// Available returns the current free capacity in bytes.
func (s *System) Available() int { return s.avail }

// FreeCount returns the number of free blocks of the given order.
func (s *System) FreeCount(order int) int {
	if order < 0 || order > maxOrder {
		panic("buddy: order out of range")
	}
	return s.free[order].size
}
