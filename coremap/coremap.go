package coremap

import (
	"sync"
	"sync/atomic"

	"github.com/abarganier/ops/klog"
	"github.com/abarganier/ops/util"
)

// KSEG0Base is the MIPS kseg0 direct-mapped segment base: kernel
// virtual addresses for allocated kernel pages are physical address
// plus this base, matching original_source's PADDR_TO_KVADDR and
// spec.md §4.1's kseg0_direct_map.
const KSEG0Base uintptr = 0x80000000

// Map is the coremap: a fixed-size, lock-protected array describing
// every physical frame, backed by real memory supplied by ramboot.
// Only one Map is ever constructed per kernel instance (spec.md §9's
// "global state" design note); nothing prevents constructing more than
// one in tests, which is intentional — each test gets its own simulated
// RAM.
type Map struct {
	mu         sync.Mutex
	entries    []Entry
	usedPages  int64 // atomic; also covered by mu for read-modify-write
	numFixed   int
	backing    []byte // len == len(entries)*util.PageSize
}

// New creates a coremap for numFrames frames over the given backing
// store (which must be exactly numFrames*PageSize bytes, typically an
// anonymous mmap from the ramboot package). All frames start free.
func New(numFrames int, backing []byte) *Map {
	if len(backing) != numFrames*util.PageSize {
		panic("coremap: backing store size mismatch")
	}
	m := &Map{
		entries: make([]Entry, numFrames),
		backing: backing,
	}
	for i := range m.entries {
		m.entries[i] = Free
	}
	return m
}

// Size returns the total number of frames in the coremap.
func (m *Map) Size() int { return len(m.entries) }

// NumFixedPages returns the count of kernel+coremap pages reserved at
// the low end, never scanned for allocation.
func (m *Map) NumFixedPages() int { return m.numFixed }

// ReserveFixed marks the first n frames as a single permanently-fixed
// run, owned by the kernel (pid 0). Called once by ramboot during
// bootstrap, before any alloc/free traffic. vaddr is the kernel virtual
// address associated with the run (used only as the owner_vaddr tag).
func (m *Map) ReserveFixed(n int, vaddr uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.entries) {
		panic("coremap: bad fixed reservation size")
	}
	for i := 0; i < n; i++ {
		m.entries[i] = BuildEntry(n, 0, false, false, i == 0, true, vaddr)
	}
	m.numFixed += n
	atomic.AddInt64(&m.usedPages, int64(n))
}

// Frame returns the PageSize-byte slice of backing memory for frame
// index ppn (a frame number, not a byte address).
func (m *Map) Frame(ppn int) []byte {
	off := ppn * util.PageSize
	return m.backing[off : off+util.PageSize]
}

// Backing returns the entire backing store, for callers (ramboot) that
// need to release memory the coremap does not own outright.
func (m *Map) Backing() []byte { return m.backing }

// EntryAt returns a snapshot copy of the raw entry at frame index i,
// for read-only inspection (diag's occupancy scan).
func (m *Map) EntryAt(i int) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[i]
}

// UsedBytes reports bytes currently allocated (fixed + user + kernel),
// matching coremap_used_bytes() in spec.md §6.
func (m *Map) UsedBytes() int {
	return int(atomic.LoadInt64(&m.usedPages)) * util.PageSize
}

// AllocPages scans for the first free run of n contiguous frames at or
// above NumFixedPages, first-fit (spec.md §4.1). vaddr is the caller's
// chosen key for free-by-address (user callers pass their VPN; kernel
// callers pass 0 and get the kseg0-mapped address back). Returns the
// caller-visible virtual address, the base physical frame number, and
// whether allocation succeeded.
func (m *Map) AllocPages(n int, isFixed bool, ownerPid int, vaddr uintptr) (uintptr, int, bool) {
	if n <= 0 {
		panic("coremap: alloc of zero pages")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start := -1
	for i := m.numFixed; i+n <= len(m.entries); i++ {
		if !m.entries[i].IsFree() {
			continue
		}
		run := true
		for j := 1; j < n; j++ {
			if !m.entries[i+j].IsFree() {
				run = false
				break
			}
		}
		if run {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, 0, false
	}

	va := vaddr
	// kernel allocation: caller's vaddr is derived from the frame,
	// not supplied (alloc_kpages always passes vaddr==0).
	if ownerPid == 0 && vaddr == 0 {
		va = KSEG0Base + uintptr(start)*util.PageSize
	}

	m.entries[start] = BuildEntry(n, ownerPid, false, false, true, isFixed, va)
	mid := BuildEntry(n, ownerPid, false, false, false, isFixed, va)
	for j := 1; j < n; j++ {
		m.entries[start+j] = mid
	}
	atomic.AddInt64(&m.usedPages, int64(n))
	return va, start, true
}

// FreePages releases the run whose owner_vaddr/owner_pid match vaddr
// and ownerPid, scanning from NumFixedPages up (spec.md §4.1). A run
// that cannot be found is a fatal invariant violation: the caller
// claimed an address the coremap never handed out.
func (m *Map) FreePages(vaddr uintptr, ownerPid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := m.numFixed; i < len(m.entries); i++ {
		e := m.entries[i]
		if e.IsFree() || e.OwnerVaddr() != vaddr || e.OwnerPid() != ownerPid {
			continue
		}
		if !e.IsFirstChunk() {
			klog.Panicf("coremap: free_pages matched a non-header frame")
		}
		if e.IsFixed() {
			klog.Panicf("coremap: attempt to free a fixed frame")
		}
		n := e.ChunkSize()
		for j := 0; j < n; j++ {
			m.entries[i+j] = Free
		}
		atomic.AddInt64(&m.usedPages, -int64(n))
		return
	}
	klog.Panicf("coremap: free_pages could not find the requested address (vaddr=%#x, owner=%d)", vaddr, ownerPid)
}

// FreePageAtIndex releases the single frame at index i, asserting its
// (owner_vaddr, owner_pid) match — used by the page table, which
// already knows the PPN (spec.md §4.1).
func (m *Map) FreePageAtIndex(i int, ownerPid int, vpn uintptr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if i < m.numFixed || i >= len(m.entries) {
		klog.Panicf("coremap: free_page_at_index out of range (i=%d)", i)
	}
	e := m.entries[i]
	if e.IsFree() {
		klog.Panicf("coremap: double free at index %d", i)
	}
	if e.OwnerVaddr() != vpn || e.OwnerPid() != ownerPid {
		klog.Panicf("coremap: free_page_at_index owner mismatch (index=%d, vpn=%#x, owner=%d)", i, vpn, ownerPid)
	}
	m.entries[i] = Free
	atomic.AddInt64(&m.usedPages, -1)
}

// AllocKpages allocates n contiguous kernel frames and returns the
// kseg0-mapped kernel virtual address, or ok=false on exhaustion.
func (m *Map) AllocKpages(n int) (uintptr, bool) {
	va, _, ok := m.AllocPages(n, true, 0, 0)
	return va, ok
}

// FreeKpages releases a kernel allocation previously returned by
// AllocKpages.
func (m *Map) FreeKpages(addr uintptr) {
	m.FreePages(addr, 0)
}

// AllocUpages allocates n frames (normally 1) for a user page at vpn
// owned by pid, returning the base physical frame number.
func (m *Map) AllocUpages(n int, vpn uintptr, pid int) (int, bool) {
	_, ppn, ok := m.AllocPages(n, false, pid, vpn)
	return ppn, ok
}
