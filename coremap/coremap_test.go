package coremap

import (
	"testing"

	"github.com/abarganier/ops/util"
)

func newTestMap(t *testing.T, numFrames int) *Map {
	t.Helper()
	backing := make([]byte, numFrames*util.PageSize)
	return New(numFrames, backing)
}

func TestNewAllFramesFree(t *testing.T) {
	m := newTestMap(t, 16)
	for i := 0; i < m.Size(); i++ {
		if !m.entries[i].IsFree() {
			t.Fatalf("frame %d not free at boot", i)
		}
	}
	if m.UsedBytes() != 0 {
		t.Fatalf("UsedBytes() = %d, want 0", m.UsedBytes())
	}
}

func TestReserveFixedConservation(t *testing.T) {
	m := newTestMap(t, 16)
	m.ReserveFixed(4, KSEG0Base)
	if m.NumFixedPages() != 4 {
		t.Fatalf("NumFixedPages() = %d, want 4", m.NumFixedPages())
	}
	if m.UsedBytes() != 4*util.PageSize {
		t.Fatalf("UsedBytes() = %d, want %d", m.UsedBytes(), 4*util.PageSize)
	}
	for i := 0; i < 4; i++ {
		e := m.entries[i]
		if !e.IsFixed() || e.IsFree() {
			t.Fatalf("frame %d should be fixed and not free", i)
		}
		if e.IsFirstChunk() != (i == 0) {
			t.Fatalf("frame %d first-chunk bit wrong", i)
		}
	}
}

func TestAllocPagesRunIntegrity(t *testing.T) {
	m := newTestMap(t, 16)
	va, ppn, ok := m.AllocPages(3, false, 7, 0x1000)
	if !ok {
		t.Fatal("alloc failed unexpectedly")
	}
	if va != 0x1000 {
		t.Fatalf("va = %#x, want 0x1000", va)
	}
	for i := 0; i < 3; i++ {
		e := m.entries[ppn+i]
		if e.IsFree() {
			t.Fatalf("frame %d still free after alloc", ppn+i)
		}
		if e.ChunkSize() != 3 {
			t.Fatalf("frame %d chunk size = %d, want 3", ppn+i, e.ChunkSize())
		}
		if e.OwnerPid() != 7 {
			t.Fatalf("frame %d owner pid = %d, want 7", ppn+i, e.OwnerPid())
		}
		if e.IsFirstChunk() != (i == 0) {
			t.Fatalf("frame %d first-chunk = %v, want %v", ppn+i, e.IsFirstChunk(), i == 0)
		}
	}
	if m.UsedBytes() != 3*util.PageSize {
		t.Fatalf("UsedBytes() = %d, want %d", m.UsedBytes(), 3*util.PageSize)
	}
}

func TestAllocPagesFirstFit(t *testing.T) {
	m := newTestMap(t, 8)
	_, ppn1, ok := m.AllocPages(2, false, 1, 0x2000)
	if !ok || ppn1 != 0 {
		t.Fatalf("first alloc ppn = %d, want 0", ppn1)
	}
	_, ppn2, ok := m.AllocPages(2, false, 1, 0x3000)
	if !ok || ppn2 != 2 {
		t.Fatalf("second alloc ppn = %d, want 2", ppn2)
	}
	m.FreePages(0x2000, 1)
	_, ppn3, ok := m.AllocPages(2, false, 1, 0x4000)
	if !ok || ppn3 != 0 {
		t.Fatalf("third alloc ppn = %d, want 0 (first-fit reuse)", ppn3)
	}
}

func TestAllocExhaustion(t *testing.T) {
	m := newTestMap(t, 4)
	m.ReserveFixed(1, KSEG0Base)
	if _, _, ok := m.AllocPages(3, false, 1, 0x1000); !ok {
		t.Fatal("expected the exact remaining run to succeed")
	}
	if _, _, ok := m.AllocPages(1, false, 1, 0x5000); ok {
		t.Fatal("expected allocation to fail once coremap is full")
	}
}

func TestFreePagesRoundTrip(t *testing.T) {
	m := newTestMap(t, 8)
	va, ppn, ok := m.AllocPages(2, false, 3, 0x9000)
	if !ok {
		t.Fatal("alloc failed")
	}
	m.FreePages(va, 3)
	for i := 0; i < 2; i++ {
		if !m.entries[ppn+i].IsFree() {
			t.Fatalf("frame %d not free after FreePages", ppn+i)
		}
		if m.entries[ppn+i] != Free {
			t.Fatalf("frame %d != canonical Free after FreePages", ppn+i)
		}
	}
	if m.UsedBytes() != 0 {
		t.Fatalf("UsedBytes() = %d, want 0 after full free", m.UsedBytes())
	}
}

func TestFreePagesPanicsOnFixed(t *testing.T) {
	m := newTestMap(t, 8)
	m.ReserveFixed(2, KSEG0Base)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic freeing a fixed frame")
		}
	}()
	m.FreePages(KSEG0Base, 0)
}

func TestFreePageAtIndexOwnerMismatch(t *testing.T) {
	m := newTestMap(t, 8)
	_, ppn, _ := m.AllocPages(1, false, 1, 0x1000)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on owner mismatch")
		}
	}()
	m.FreePageAtIndex(ppn, 2, 0x1000)
}

func TestAllocKpagesUsesKseg0(t *testing.T) {
	m := newTestMap(t, 8)
	va, ok := m.AllocKpages(2)
	if !ok {
		t.Fatal("alloc_kpages failed")
	}
	if va < KSEG0Base {
		t.Fatalf("kernel vaddr %#x below KSEG0Base", va)
	}
	m.FreeKpages(va)
	if m.UsedBytes() != 0 {
		t.Fatalf("UsedBytes() = %d after FreeKpages, want 0", m.UsedBytes())
	}
}

func TestFrameSliceLength(t *testing.T) {
	m := newTestMap(t, 4)
	f := m.Frame(1)
	if len(f) != util.PageSize {
		t.Fatalf("Frame length = %d, want %d", len(f), util.PageSize)
	}
	f[0] = 0xAB
	if m.backing[util.PageSize] != 0xAB {
		t.Fatal("Frame slice does not alias backing store")
	}
}
