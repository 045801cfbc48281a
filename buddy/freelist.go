package buddy

import "unsafe"

// Parent relation of a free block, recorded in its header. A root was
// created by the construction-time partition and never merges upward; first
// and second are the two halves of a split. The merge path checks the
// recorded relation against the buddy's position and treats a mismatch as
// corruption.
const (
	relRoot uint8 = iota
	relFirst
	relSecond
)

// blockHeader sits at the start of every free block. The link storage lives
// in the free memory itself; the header is overwritten by caller data once
// the block is handed out, so it exists only while the block is free.
type blockHeader struct {
	next  uint32 // arena offset of the next free block, nullOffset at the tail
	order uint8
	rel   uint8
}

// freeList is an intrusive singly linked list of free blocks, identified by
// their arena offsets.
type freeList struct {
	base unsafe.Pointer
	head uint32
	size int
}

func (l *freeList) init(base unsafe.Pointer) {
	l.base = base
	l.head = nullOffset
}

func (l *freeList) header(off uint32) *blockHeader {
	return (*blockHeader)(unsafe.Add(l.base, uintptr(off)))
}

// push writes a header at the front of the block and links it in, LIFO.
func (l *freeList) push(off uint32, order, rel uint8) {
	h := l.header(off)
	h.next = l.head
	h.order = order
	h.rel = rel
	l.head = off
	l.size++
}

// pop unlinks and returns the most recently pushed block.
func (l *freeList) pop() (uint32, bool) {
	off := l.head
	if off == nullOffset {
		return nullOffset, false
	}
	l.head = l.header(off).next
	l.size--
	return off, true
}

// remove unlinks the block at off, reporting whether it was present.
func (l *freeList) remove(off uint32) bool {
	cur := l.head
	var prev *blockHeader
	for cur != nullOffset {
		h := l.header(cur)
		if cur == off {
			if prev == nil {
				l.head = h.next
			} else {
				prev.next = h.next
			}
			l.size--
			return true
		}
		prev = h
		cur = h.next
	}
	return false
}
