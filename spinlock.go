package slaballoc

import (
	"runtime"
	"sync/atomic"
)

// spinLock serializes access to the global allocator. The freestanding
// contract assumes an environment without blocking primitives, so mutual
// exclusion is a bare compare-and-swap loop; Gosched keeps the loop from
// starving other goroutines when running under the hosted runtime.
type spinLock uint32

func (l *spinLock) Lock() {
	for !atomic.CompareAndSwapUint32((*uint32)(l), 0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	atomic.StoreUint32((*uint32)(l), 0)
}
