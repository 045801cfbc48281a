package slab

import (
	"unsafe"

	"github.com/memkit/slaballoc/buddy"
)

// cache serves one object-size class. It owns three disjoint page lists
// keyed by occupancy and draws fresh pages from the shared buddy system,
// one 4KB page at a time.
type cache struct {
	objSize uint32
	full    pageList
	partial pageList
	empty   pageList

	pages *buddy.System
	base  unsafe.Pointer

	grows    int // pages fetched from the buddy system
	reclaims int // emptied pages returned to it
}

func (c *cache) init(objSize uint32, pages *buddy.System) {
	c.objSize = objSize
	c.pages = pages
	c.base = pages.Base()
}

// alloc pops one object. The partial list is tried first; a page from the
// empty list is promoted next, and only then is a new page fetched from the
// buddy system and staged on the empty list before being promoted in turn.
// Returns nil when the buddy system cannot supply a page.
func (c *cache) alloc() unsafe.Pointer {
	pg := c.partial.head
	if pg == nil {
		if c.empty.head == nil && !c.grow() {
			return nil
		}
		pg = c.empty.pop()
		pg.kind = kindPartial
		c.partial.push(pg)
	}
	// Pages on the partial list always have a free slot.
	off := pg.pop(c.base)
	if pg.freeHead == nullOffset {
		c.partial.remove(pg)
		pg.kind = kindFull
		c.full.push(pg)
	}
	return unsafe.Add(c.base, uintptr(off))
}

// free returns the object at p to its owning page, located by address
// containment in the partial list first, then the full list. A pointer no
// page contains means the caller freed a foreign or stale address, which is
// not locally recoverable.
func (c *cache) free(p unsafe.Pointer) {
	if !c.pages.Contains(p) {
		panic("slab: pointer not in arena")
	}
	off := uint32(uintptr(p) - uintptr(c.base))

	pg := c.partial.find(off)
	if pg == nil {
		pg = c.full.find(off)
		if pg == nil {
			panic("slab: no owning page for pointer")
		}
		c.full.remove(pg)
		pg.kind = kindPartial
		c.partial.push(pg)
	}
	if (off-pg.off)%c.objSize != 0 {
		panic("slab: misaligned object pointer")
	}

	pg.push(c.base, off)
	if pg.used == 0 {
		c.partial.remove(pg)
		pg.kind = kindEmpty
		c.reclaim(pg)
	}
}

// grow fetches one fresh page from the buddy system, initializes it and
// stages it on the empty list. Reports whether a page was obtained.
func (c *cache) grow() bool {
	p := c.pages.Alloc(PageSize)
	if p == nil {
		return false
	}
	pg := &page{off: uint32(uintptr(p) - uintptr(c.base)), objSize: c.objSize}
	pg.init(c.base)
	c.empty.push(pg)
	c.grows++
	return true
}

// reclaim hands an emptied page back to the buddy system, where it can
// merge with its buddies again.
func (c *cache) reclaim(pg *page) {
	c.pages.Free(unsafe.Add(c.base, uintptr(pg.off)), PageSize)
	c.reclaims++
}

// freeBytes is the unused capacity of the pages this cache still owns.
func (c *cache) freeBytes() int {
	total := 0
	for pg := c.partial.head; pg != nil; pg = pg.next {
		total += PageSize - int(pg.used)
	}
	total += c.empty.size * PageSize
	return total
}
