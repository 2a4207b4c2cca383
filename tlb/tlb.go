// Package tlb models the software-managed TLB: a fixed-size array of
// VPN→PPN slots written by the fault handler, adapted from
// original_source/kern/vm/addrspace.c's as_activate (full invalidate on
// context switch) and spec.md §4.5's probe/random-insert fault step.
// The original leaves tlb_probe/tlb_random/tlb_write to MIPS-specific
// assembly never retrieved into original_source; this package gives
// them an explicit, testable Go model per spec.md §9's suggestion that
// hardware-adjacent behavior be re-expressed as ordinary typed state.
package tlb

import (
	"sync"

	"github.com/abarganier/ops/klog"
)

// NumSlots is the number of hardware TLB entries (spec.md §4.5's
// NUM_TLB), matching the MIPS r3000/r4000 family's 64-entry softTLB
// that OS/161-derived kernels target.
const NumSlots = 64

type slot struct {
	valid bool
	vpn   uintptr
	ppn   int
}

// TLB is one CPU's software TLB. All operations that touch slot state
// must run with interrupts disabled around the probe+write pair
// (spec.md §5); mu models that critical section for the single-CPU
// assumption this design makes.
type TLB struct {
	mu    sync.Mutex
	slots [NumSlots]slot
	next  int // round-robin victim, standing in for "hardware choice"
}

// New returns a freshly invalidated TLB.
func New() *TLB {
	t := &TLB{}
	t.InvalidateAll()
	return t
}

// Probe reports the PPN mapped for vpn, or ok=false if no entry
// matches (tlb_probe returning < 0 in the original).
func (t *TLB) Probe(vpn uintptr) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.slots {
		if s.valid && s.vpn == vpn {
			return s.ppn, true
		}
	}
	return 0, false
}

// Random installs (vpn, ppn) into a victim slot chosen the way real
// TLB-random hardware would: whichever slot it picks, without regard
// to prior contents (tlb_random in the original). This model uses
// round-robin over the slot array, which is deterministic for tests
// but otherwise plays the same "caller doesn't get to choose" role.
func (t *TLB) Random(vpn uintptr, ppn int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[t.next] = slot{valid: true, vpn: vpn, ppn: ppn}
	t.next = (t.next + 1) % NumSlots
}

// Invalidate clears any entry mapping vpn, used by pt_remove/pte_destroy
// so a stale translation can never survive a freed frame.
func (t *TLB) Invalidate(vpn uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		if t.slots[i].valid && t.slots[i].vpn == vpn {
			t.slots[i] = slot{}
		}
	}
}

// InvalidateAll clears every entry, per as_activate's per-switch
// full-TLB invalidate loop.
func (t *TLB) InvalidateAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.slots {
		t.slots[i] = slot{}
	}
	t.next = 0
}

// Shootdown handles an inter-CPU TLB invalidation request. This design
// assumes single-CPU execution (spec.md §4.5), so shootdown is never a
// real operation to perform — it is a fatal-invariant violation (spec.md
// §7's "coremap free, TLB shootdown" row) and always panics.
func (t *TLB) Shootdown() {
	klog.Panicf("tlb: shootdown requested on a single-CPU design")
}
