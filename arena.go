package slaballoc

import (
	"fmt"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// Arena is a page-aligned heap region carved out of a Go-allocated buffer.
// It exists so hosted code and tests can satisfy the page-alignment
// requirement of New; freestanding targets pass their physical heap range
// directly instead. The Arena must stay reachable as long as the allocator
// built over it is in use.
type Arena struct {
	buf  []byte // retains the backing buffer
	base unsafe.Pointer
	size int
}

// NewArena reserves size usable bytes starting at a page-aligned address.
func NewArena(size int) (*Arena, error) {
	if size < PageSize {
		return nil, fmt.Errorf("slaballoc: arena size must be at least %d bytes, got %d", PageSize, size)
	}
	// One extra page absorbs whatever alignment the runtime gave the buffer.
	buf := dirtmake.Bytes(size+PageSize, size+PageSize)
	base := unsafe.Pointer(&buf[0])
	if pad := uintptr(base) % PageSize; pad != 0 {
		base = unsafe.Add(base, PageSize-pad)
	}
	return &Arena{buf: buf, base: base, size: size}, nil
}

// Base returns the page-aligned start of the region.
func (a *Arena) Base() unsafe.Pointer { return a.base }

// Size returns the usable size in bytes.
func (a *Arena) Size() int { return a.size }
