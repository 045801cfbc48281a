// Package slaballoc is a two-tier dynamic memory allocator for a fixed raw
// heap region, built for freestanding targets that have no operating system
// behind them.
//
// A buddy-system page allocator manages the region in power-of-two blocks
// from 4KB to 1024KB, and a slab allocator on top carves buddy pages into
// pools of fixed-size objects from 64B to 4096B. Requests beyond the top
// buddy class are delegated to the overflow tier, which draws from the Go
// heap rather than the fixed region.
//
// The Allocator has no internal synchronization and every operation is
// synchronous, non-blocking and bounded. Hosted callers that need a
// process-wide allocator use Init/Malloc/Free, which serialize everything
// through a spin lock.
package slaballoc

import (
	"unsafe"

	"github.com/memkit/slaballoc/buddy"
	"github.com/memkit/slaballoc/overflow"
	"github.com/memkit/slaballoc/slab"
)

// PageSize is the allocation granularity of the page tier.
const PageSize = buddy.PageSize

// Allocator owns one heap region and routes each request to the tier that
// serves its size: slab for small objects, buddy for page-granularity
// blocks, overflow beyond the top buddy class.
type Allocator struct {
	pages   *buddy.System
	objects *slab.Allocator
	large   *overflow.Allocator
}

// New constructs an allocator over [base, base+heapSize). base must be
// page-aligned; misconfiguration fails fast with no partial construction.
// The caller keeps the region alive for the allocator's lifetime.
func New(base unsafe.Pointer, heapSize int) (*Allocator, error) {
	b, err := buddy.New(base, heapSize)
	if err != nil {
		return nil, err
	}
	return &Allocator{
		pages:   b,
		objects: slab.New(b),
		large:   overflow.New(),
	}, nil
}

// NewFromArena constructs an allocator over an arena built with NewArena.
func NewFromArena(a *Arena) (*Allocator, error) {
	return New(a.Base(), a.Size())
}

// Alloc returns size bytes aligned to at least min(align, class size), or
// nil when the request cannot be satisfied. align must be zero or a power
// of two; alignments above the page size are not supported, because the
// heap base itself is only guaranteed page alignment.
func (a *Allocator) Alloc(size, align int) unsafe.Pointer {
	if size <= 0 || align < 0 || align&(align-1) != 0 {
		return nil
	}
	if size <= slab.MaxObjectSize {
		return a.objects.Alloc(size, align)
	}
	if align > PageSize {
		return nil
	}
	if size <= buddy.MaxBlockSize {
		return a.pages.Alloc(size)
	}
	if align > 8 {
		// Overflow buffers come from the Go heap with word alignment only.
		return nil
	}
	return a.large.Alloc(size)
}

// Free releases the allocation at p. Behavior is undefined unless p is a
// live result of a prior Alloc with the identical size and align; detected
// misuse panics, the rest is on the caller. Freeing nil is a no-op.
func (a *Allocator) Free(p unsafe.Pointer, size, align int) {
	if p == nil {
		return
	}
	if size <= slab.MaxObjectSize {
		a.objects.Free(p, size, align)
		return
	}
	if size <= buddy.MaxBlockSize {
		a.pages.Free(p, size)
		return
	}
	a.large.Free(p, size)
}

// Available reports the free capacity of the fixed heap region: buddy-tier
// free blocks plus unused slots in slab-owned pages. Overflow memory is not
// counted, it does not live in the region.
func (a *Allocator) Available() int {
	return a.pages.Available() + a.objects.FreeBytes()
}

// Contains reports whether p points into the fixed heap region.
func (a *Allocator) Contains(p unsafe.Pointer) bool {
	return a.pages.Contains(p)
}
