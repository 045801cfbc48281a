package slab

import "unsafe"

const nullOffset = ^uint32(0)

// pageKind is the occupancy classification of a slab page.
type pageKind uint8

const (
	kindEmpty pageKind = iota
	kindPartial
	kindFull
)

// page describes one slab page: a buddy-supplied 4KB page subdivided into
// fixed-size object slots. The descriptor itself lives outside the arena so
// object slots can fill the whole page (the 4096B class holds exactly one
// object per page). The free-object list stays intrusive: each free slot
// stores the arena offset of the next free slot in its first four bytes,
// overwritten by caller data once the slot is allocated.
type page struct {
	off      uint32 // arena offset of the page start
	objSize  uint32
	used     uint32 // used bytes
	freeHead uint32 // arena offset of the first free slot, nullOffset when drained
	kind     pageKind
	next     *page
}

func objLink(base unsafe.Pointer, off uint32) *uint32 {
	return (*uint32)(unsafe.Add(base, uintptr(off)))
}

// init threads the free-object list through every slot of the page and
// resets it to the Empty state.
func (pg *page) init(base unsafe.Pointer) {
	n := uint32(PageSize) / pg.objSize
	for i := uint32(0); i < n; i++ {
		slot := pg.off + i*pg.objSize
		next := nullOffset
		if i+1 < n {
			next = slot + pg.objSize
		}
		*objLink(base, slot) = next
	}
	pg.freeHead = pg.off
	pg.used = 0
	pg.kind = kindEmpty
}

// pop takes one slot off the free list; the used-byte counter moves in the
// same step. Returns nullOffset when the page is drained.
func (pg *page) pop(base unsafe.Pointer) uint32 {
	off := pg.freeHead
	if off == nullOffset {
		return nullOffset
	}
	pg.freeHead = *objLink(base, off)
	pg.used += pg.objSize
	return off
}

// push returns a slot to the free list, LIFO.
func (pg *page) push(base unsafe.Pointer, off uint32) {
	*objLink(base, off) = pg.freeHead
	pg.freeHead = off
	pg.used -= pg.objSize
}

// contains reports whether the arena offset falls inside this page.
func (pg *page) contains(off uint32) bool {
	return off >= pg.off && off < pg.off+PageSize
}

// pageList is a singly linked list of pages; each cache keeps one list per
// occupancy kind and every owned page sits in exactly the list matching its
// current kind.
type pageList struct {
	head *page
	size int
}

func (l *pageList) push(pg *page) {
	pg.next = l.head
	l.head = pg
	l.size++
}

func (l *pageList) pop() *page {
	pg := l.head
	if pg == nil {
		return nil
	}
	l.head = pg.next
	pg.next = nil
	l.size--
	return pg
}

// remove unlinks the given page, reporting whether it was present.
func (l *pageList) remove(pg *page) bool {
	var prev *page
	for cur := l.head; cur != nil; cur = cur.next {
		if cur == pg {
			if prev == nil {
				l.head = cur.next
			} else {
				prev.next = cur.next
			}
			cur.next = nil
			l.size--
			return true
		}
		prev = cur
	}
	return false
}

// find returns the page containing the arena offset, if any.
func (l *pageList) find(off uint32) *page {
	for pg := l.head; pg != nil; pg = pg.next {
		if pg.contains(off) {
			return pg
		}
	}
	return nil
}
