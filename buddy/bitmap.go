package buddy

// bitmap tracks one split bit per internal block pair. A bit is 1 exactly
// while the pair is split, 0 while merged or untouched; it flips once per
// split and once per completed merge.
//
// Bits are addressed through a computed index rather than stored parent
// links: each parent order gets a contiguous level of bits, and a parent
// block maps to levelBase[order] + offset >> log2(order size). Parent orders
// run from 1 (8KB, the pair of two pages) to the top class; the minimum
// class has no bits of its own, its splits and merges flip the 8KB parent
// bit like every other split.
type bitmap struct {
	words []uint64

	// levelBase[o] is the first bit index of parent order o; levels are laid
	// out from the top class downward.
	levelBase [numOrders]int
	levelBits [numOrders]int
}

func (b *bitmap) init(heapSize int) {
	total := 0
	for order := maxOrder; order >= 1; order-- {
		bs := BlockSize(order)
		b.levelBase[order] = total
		b.levelBits[order] = (heapSize + bs - 1) / bs
		total += b.levelBits[order]
	}
	b.words = make([]uint64, (total+63)/64)
}

// index maps a parent block to its pair bit. Misuse fails loudly rather
// than silently corrupting an adjacent level.
func (b *bitmap) index(parentOff uint32, parentOrder int) int {
	if parentOrder < 1 || parentOrder > maxOrder {
		panic("buddy: bitmap order out of range")
	}
	i := int(parentOff) >> (minBlockShift + parentOrder)
	if int(parentOff)&(BlockSize(parentOrder)-1) != 0 || i >= b.levelBits[parentOrder] {
		panic("buddy: bitmap index out of range")
	}
	return b.levelBase[parentOrder] + i
}

func (b *bitmap) toggle(idx int) {
	b.words[idx>>6] ^= 1 << (idx & 63)
}

func (b *bitmap) isSet(idx int) bool {
	return b.words[idx>>6]&(1<<(idx&63)) != 0
}

// clean reports whether every pair is merged, i.e. the heap is back in its
// post-construction state.
func (b *bitmap) clean() bool {
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}
