// Package slab implements a slab allocator for small objects on top of the
// buddy page allocator.
//
// Seven object-size classes from 64B to 4096B each own a cache of
// buddy-supplied 4KB pages. A request is served from the smallest class
// that fits it, promoted to a larger class when the requested alignment
// exceeds the class's natural alignment. Requests above 4096B bypass the
// slab tier and go to the buddy system at page granularity.
//
// Like the buddy package, this package has no internal synchronization.
package slab

import (
	"unsafe"

	"github.com/memkit/slaballoc/buddy"
)

const (
	// PageSize is the slab page size, one buddy page.
	PageSize = buddy.PageSize

	// MinObjectSize and MaxObjectSize bound the slab tier's size classes.
	MinObjectSize = 64
	MaxObjectSize = 4096

	numClasses = 7
)

var classSizes = [numClasses]uint32{64, 128, 256, 512, 1024, 2048, 4096}

// Allocator aggregates the seven slab caches and dispatches by requested
// size and alignment. All caches share the single buddy system handed to
// New; it is never duplicated.
type Allocator struct {
	caches [numClasses]cache
	pages  *buddy.System
}

// New returns a slab allocator drawing pages from b. Pages are fetched
// lazily on first demand for each class.
func New(b *buddy.System) *Allocator {
	a := &Allocator{pages: b}
	for i := range a.caches {
		a.caches[i].init(classSizes[i], b)
	}
	return a
}

// classFor maps a request to the smallest class satisfying both size and
// alignment. Alignment beyond the class's natural alignment promotes the
// request to the next class rather than implementing general aligned
// allocation. Returns -1 when the request is outside the slab tier.
func classFor(size, align int) int {
	if size <= 0 || size > MaxObjectSize || align > MaxObjectSize {
		return -1
	}
	c := 0
	for int(classSizes[c]) < size {
		c++
	}
	for c < numClasses-1 && int(classSizes[c]) < align {
		c++
	}
	return c
}

// Alloc returns an object of at least size bytes aligned to at least
// min(align, class size), or nil when the request cannot be satisfied.
// align must be a power of two no larger than the page size; size above
// MaxObjectSize is forwarded to the buddy tier.
func (a *Allocator) Alloc(size, align int) unsafe.Pointer {
	if size > MaxObjectSize {
		return a.pages.Alloc(size)
	}
	c := classFor(size, align)
	if c < 0 {
		return nil
	}
	return a.caches[c].alloc()
}

// Free returns the object at p. size and align must match the Alloc call
// that produced p; anything else is caller misuse. Oversized objects are
// routed back to the buddy tier.
func (a *Allocator) Free(p unsafe.Pointer, size, align int) {
	if size > MaxObjectSize {
		a.pages.Free(p, size)
		return
	}
	c := classFor(size, align)
	if c < 0 {
		panic("slab: invalid free size")
	}
	a.caches[c].free(p)
}

// FreeBytes is the unused capacity of all pages currently owned by the slab
// tier. Together with the buddy system's Available it accounts for the
// whole heap.
func (a *Allocator) FreeBytes() int {
	total := 0
	for i := range a.caches {
		total += a.caches[i].freeBytes()
	}
	return total
}
