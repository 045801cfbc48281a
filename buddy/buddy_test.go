package buddy

import (
	"math/rand"
	"runtime"
	"sort"
	"testing"
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testArena carves a page-aligned region out of a Go buffer so tests can
// satisfy the alignment requirement of New.
type testArena struct {
	buf  []byte
	base unsafe.Pointer
}

func newTestArena(size int) *testArena {
	buf := dirtmake.Bytes(size+PageSize, size+PageSize)
	base := unsafe.Pointer(&buf[0])
	if pad := uintptr(base) % PageSize; pad != 0 {
		base = unsafe.Add(base, PageSize-pad)
	}
	return &testArena{buf: buf, base: base}
}

func newTestSystem(t *testing.T, size int) *System {
	t.Helper()
	a := newTestArena(size)
	s, err := New(a.base, size)
	require.NoError(t, err)
	t.Cleanup(func() { runtime.KeepAlive(a.buf) })
	return s
}

func TestNew(t *testing.T) {
	a := newTestArena(64 * 1024)
	defer runtime.KeepAlive(a.buf)

	_, err := New(nil, 64*1024)
	assert.Error(t, err)

	_, err = New(unsafe.Add(a.base, 1), 64*1024)
	assert.Error(t, err)

	_, err = New(a.base, 100)
	assert.Error(t, err)

	// Block offsets are 32-bit; a heap beyond their reach must be refused
	// before any header is written.
	_, err = New(a.base, int(^uint32(0)))
	assert.Error(t, err)

	s, err := New(a.base, 64*1024)
	require.NoError(t, err)
	assert.Equal(t, 64*1024, s.Available())
}

func TestGreedyPartition(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		counts map[int]int // order -> free blocks
		avail  int
	}{
		{"one_page", 4096, map[int]int{0: 1}, 4096},
		{"eight_pages", 8 * 4096, map[int]int{3: 1}, 8 * 4096},
		{"one_root", 1024 * 1024, map[int]int{8: 1}, 1024 * 1024},
		{"root_and_tail", 1024*1024 + 8192 + 4096, map[int]int{8: 1, 1: 1, 0: 1}, 1024*1024 + 8192 + 4096},
		{"unusable_tail", 4096 + 904, map[int]int{0: 1}, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSystem(t, tt.size)
			for order := 0; order <= maxOrder; order++ {
				assert.Equal(t, tt.counts[order], s.FreeCount(order), "order=%d", order)
			}
			assert.Equal(t, tt.avail, s.Available())
		})
	}
}

func TestOrderFor(t *testing.T) {
	tests := []struct {
		size  int
		order int
	}{
		{-1, -1},
		{0, -1},
		{1, 0},
		{4096, 0},
		{4097, 1},
		{8192, 1},
		{100 * 1024, 5},
		{MaxBlockSize, 8},
		{MaxBlockSize + 1, -1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.order, OrderFor(tt.size), "size=%d", tt.size)
	}
}

func TestAllocSplitsFromTop(t *testing.T) {
	s := newTestSystem(t, 1024*1024)

	p := s.Alloc(100)
	require.NotNil(t, p)
	// The first child of every split is handed out, so the single root
	// yields the block at offset zero.
	assert.Equal(t, s.Base(), p)

	// Each level from 8KB up to 1024KB keeps exactly one second child.
	for order := 0; order <= 7; order++ {
		assert.Equal(t, 1, s.FreeCount(order), "order=%d", order)
	}
	assert.Equal(t, 0, s.FreeCount(8))
	assert.Equal(t, 1024*1024-4096, s.Available())
	assert.False(t, s.bm.clean())

	// Freeing merges all the way back to the root.
	s.Free(p, 100)
	for order := 0; order <= 7; order++ {
		assert.Equal(t, 0, s.FreeCount(order), "order=%d", order)
	}
	assert.Equal(t, 1, s.FreeCount(8))
	assert.Equal(t, 1024*1024, s.Available())
	assert.True(t, s.bm.clean())
}

func TestLIFOReuse(t *testing.T) {
	s := newTestSystem(t, 1024*1024)

	p1 := s.Alloc(4096)
	require.NotNil(t, p1)
	s.Free(p1, 4096)

	p2 := s.Alloc(4096)
	assert.Equal(t, p1, p2)
}

func TestExhaustion(t *testing.T) {
	const heapSize = 8 * 4096
	s := newTestSystem(t, heapSize)

	var ptrs []unsafe.Pointer
	for i := 0; i < 8; i++ {
		p := s.Alloc(4096)
		require.NotNil(t, p, "page %d", i)
		ptrs = append(ptrs, p)
	}
	assert.Nil(t, s.Alloc(4096))
	assert.Equal(t, 0, s.Available())

	// All pages are distinct and non-overlapping.
	offs := make([]int, len(ptrs))
	for i, p := range ptrs {
		offs[i] = int(uintptr(p) - uintptr(s.Base()))
	}
	sort.Ints(offs)
	for i := 1; i < len(offs); i++ {
		assert.GreaterOrEqual(t, offs[i], offs[i-1]+4096)
	}

	for _, p := range ptrs {
		s.Free(p, 4096)
	}
	assert.Equal(t, heapSize, s.Available())
	assert.Equal(t, 1, s.FreeCount(3))
	assert.True(t, s.bm.clean())
}

func TestOutOfRangeRequests(t *testing.T) {
	s := newTestSystem(t, 2*1024*1024)

	assert.Nil(t, s.Alloc(0))
	assert.Nil(t, s.Alloc(-1))
	assert.Nil(t, s.Alloc(MaxBlockSize+1))

	p := s.Alloc(MaxBlockSize)
	require.NotNil(t, p)
	s.Free(p, MaxBlockSize)
}

func TestMergeRestoresInitialState(t *testing.T) {
	const heapSize = 2 * 1024 * 1024
	s := newTestSystem(t, heapSize)

	pages := make([]unsafe.Pointer, 0, heapSize/PageSize)
	for {
		p := s.Alloc(PageSize)
		if p == nil {
			break
		}
		pages = append(pages, p)
	}
	require.Len(t, pages, heapSize/PageSize)

	rand.Shuffle(len(pages), func(i, j int) {
		pages[i], pages[j] = pages[j], pages[i]
	})
	for _, p := range pages {
		s.Free(p, PageSize)
	}

	assert.Equal(t, heapSize, s.Available())
	assert.Equal(t, 2, s.FreeCount(8))
	for order := 0; order < 8; order++ {
		assert.Equal(t, 0, s.FreeCount(order), "order=%d", order)
	}
	assert.True(t, s.bm.clean())
}

func TestMergeDetectsCorruptedHeader(t *testing.T) {
	s := newTestSystem(t, 64*1024)

	p1 := s.Alloc(4096)
	require.NotNil(t, p1)
	p2 := s.Alloc(4096)
	require.NotNil(t, p2)

	// p2 is the second child of the lowest split; freeing it records that
	// relation in its header.
	s.Free(p2, 4096)
	hdr := s.free[0].header(s.offsetOf(p2))
	assert.Equal(t, relSecond, hdr.rel)

	// Clobber the recorded relation. The merge triggered by freeing p1 must
	// notice the mismatch instead of silently coalescing.
	hdr.rel = relRoot
	assert.Panics(t, func() { s.Free(p1, 4096) })
}

func TestFreePanics(t *testing.T) {
	s := newTestSystem(t, 64*1024)
	p := s.Alloc(4096)
	require.NotNil(t, p)

	assert.Panics(t, func() { s.Free(unsafe.Add(s.Base(), 64*1024), 4096) }, "out of range")
	assert.Panics(t, func() { s.Free(unsafe.Add(p, 64), 4096) }, "misaligned")
	assert.Panics(t, func() { s.Free(p, 0) }, "invalid size")
	assert.Panics(t, func() { s.Free(p, MaxBlockSize+1) }, "oversized")

	s.Free(p, 4096)
}

func TestRandomStress(t *testing.T) {
	const heapSize = 4 * 1024 * 1024
	s := newTestSystem(t, heapSize)

	type alloc struct {
		p    unsafe.Pointer
		size int
	}
	var live []alloc

	overlaps := func(a, b alloc) bool {
		ao := uintptr(a.p)
		bo := uintptr(b.p)
		return ao < bo+uintptr(BlockSize(OrderFor(b.size))) && bo < ao+uintptr(BlockSize(OrderFor(a.size)))
	}

	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		if len(live) > 0 && rnd.Intn(2) == 0 {
			j := rnd.Intn(len(live))
			s.Free(live[j].p, live[j].size)
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
			continue
		}
		size := 1 + rnd.Intn(MaxBlockSize)
		p := s.Alloc(size)
		if p == nil {
			continue
		}
		na := alloc{p, size}
		for _, a := range live {
			require.False(t, overlaps(na, a), "overlap at iteration %d", i)
		}
		live = append(live, na)
	}

	for _, a := range live {
		s.Free(a.p, a.size)
	}
	assert.Equal(t, heapSize, s.Available())
	assert.True(t, s.bm.clean())
}
