// Package overflow serves allocations beyond the largest buddy class. The
// fixed heap region never backs these: buffers come from the Go heap via
// the shared byte cache, so the page tiers keep their bounded behavior and
// oversized requests remain an explicit policy, not a silent rounding.
package overflow

import (
	"encoding/binary"
	"unsafe"

	"github.com/bytedance/gopkg/lang/mcache"
)

const (
	// footerLen is appended to every allocation. The footer holds a magic
	// value checked on Free; a footer (rather than a header) keeps the
	// returned pointer at the start of the buffer.
	footerLen = 8

	footerMagic = uint64(0xB16B10C5B16B10C5)
)

// Allocator hands out large objects by raw pointer. The registry keeps each
// buffer reachable while its pointer is live and is what turns a foreign or
// repeated Free into a loud failure instead of corruption.
type Allocator struct {
	live map[uintptr][]byte
}

func New() *Allocator {
	return &Allocator{live: make(map[uintptr][]byte)}
}

// Alloc returns size bytes, or nil when size is not positive.
func (a *Allocator) Alloc(size int) unsafe.Pointer {
	if size <= 0 {
		return nil
	}
	buf := mcache.Malloc(size + footerLen)
	binary.LittleEndian.PutUint64(buf[size:size+footerLen], footerMagic)
	p := unsafe.Pointer(&buf[0])
	a.live[uintptr(p)] = buf
	return p
}

// Free releases the allocation at p. size must match the Alloc call that
// produced p. Panics on a pointer this allocator does not own, a repeated
// free, or a clobbered footer.
func (a *Allocator) Free(p unsafe.Pointer, size int) {
	buf, ok := a.live[uintptr(p)]
	if !ok {
		panic("overflow: double free or foreign pointer")
	}
	if len(buf) < size+footerLen || binary.LittleEndian.Uint64(buf[size:size+footerLen]) != footerMagic {
		panic("overflow: footer corrupted or size mismatch")
	}
	delete(a.live, uintptr(p))
	mcache.Free(buf)
}

// Live returns the number of outstanding allocations.
func (a *Allocator) Live() int { return len(a.live) }
