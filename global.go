package slaballoc

import "unsafe"

// The process-wide allocator. Explicit state with an init-before-use,
// single-initialization contract rather than an implicitly constructed
// global; every call holds the spin lock, so at most one mutator is ever
// inside the allocator.
var (
	globalMu spinLock
	global   *Allocator
)

// Init constructs the process-wide allocator over [base, base+heapSize).
// It must be called exactly once before Malloc or Free; calling it again,
// or passing a misconfigured region, panics.
func Init(base unsafe.Pointer, heapSize int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		panic("slaballoc: Init called twice")
	}
	a, err := New(base, heapSize)
	if err != nil {
		panic(err)
	}
	global = a
}

// Malloc allocates from the process-wide allocator. Panics when called
// before Init.
func Malloc(size, align int) unsafe.Pointer {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		panic("slaballoc: allocator not initialized")
	}
	return global.Alloc(size, align)
}

// Free releases p through the process-wide allocator. Panics when called
// before Init; otherwise the contract is that of (*Allocator).Free.
func Free(p unsafe.Pointer, size, align int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		panic("slaballoc: allocator not initialized")
	}
	global.Free(p, size, align)
}
