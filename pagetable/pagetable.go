// Package pagetable implements the per-address-space VPN→PPN map,
// adapted from original_source/kern/vm/pagetable.c's linked list of
// pt_entry nodes. Lookup is linear, matching the original — this is a
// teaching implementation, not a production one (spec.md §4.3).
package pagetable

import (
	"github.com/abarganier/ops/coremap"
)

// PTE is one page-table entry: a page-aligned virtual page number
// mapped to the physical page number of a coremap-allocated frame
// (spec.md §3).
type PTE struct {
	VPN uintptr
	PPN int
}

// Table is the unordered collection of PTEs for one address space,
// keyed by VPN (spec.md §4.3). The original stores these as a
// head/tail linked list; a slice gives the same linear-scan semantics
// with none of the pointer bookkeeping.
type Table struct {
	entries []PTE
}

// New returns an empty page table.
func New() *Table {
	return &Table{}
}

// Lookup returns the PTE for vpn and true, or the zero PTE and false.
func (t *Table) Lookup(vpn uintptr) (PTE, bool) {
	for _, e := range t.entries {
		if e.VPN == vpn {
			return e, true
		}
	}
	return PTE{}, false
}

// Add allocates a fresh frame for vpn from cm (owned by pid), zeroes it,
// and appends a new PTE, per spec.md §4.3 steps 3-5: "otherwise create a
// new PTE with vpn and allocate one frame via alloc_upages(1, vpn,
// as.as_pid); zero the new frame; append the PTE; return the PPN."
// Zeroing matters: a frame freed by a previous owner still carries that
// owner's bytes in the backing store until something overwrites them,
// and §8 requires every fresh frame to read as zero regardless of what
// sat there before. Returns the allocated PPN, or ok=false if the
// coremap is exhausted.
func (t *Table) Add(vpn uintptr, pid int, cm *coremap.Map) (int, bool) {
	if _, found := t.Lookup(vpn); found {
		panic("pagetable: add called for a vpn that already has a PTE")
	}
	ppn, ok := cm.AllocUpages(1, vpn, pid)
	if !ok {
		return 0, false
	}
	frame := cm.Frame(ppn)
	for i := range frame {
		frame[i] = 0
	}
	t.entries = append(t.entries, PTE{VPN: vpn, PPN: ppn})
	return ppn, true
}

// Remove deletes the PTE for vpn, freeing its frame in cm, per
// pagetable.c's pt_remove / spec.md §4.3's pte_destroy behavior.
func (t *Table) Remove(vpn uintptr, pid int, cm *coremap.Map) {
	for i, e := range t.entries {
		if e.VPN != vpn {
			continue
		}
		cm.FreePageAtIndex(e.PPN, pid, vpn)
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		return
	}
	panic("pagetable: remove called for a vpn with no PTE")
}

// Len returns the number of mapped pages.
func (t *Table) Len() int { return len(t.entries) }

// All returns a snapshot slice of every PTE, in no particular order.
func (t *Table) All() []PTE {
	out := make([]PTE, len(t.entries))
	copy(out, t.entries)
	return out
}

// Copy duplicates every PTE into a fresh table, allocating a new frame
// per entry in cm and byte-copying the old frame's contents into the
// new one, per spec.md §4.3's pt_copy: "the new address space ends up
// with identical contents at identical VPNs but distinct PPNs —
// copy-on-fork, not copy-on-write." Returns ok=false (leaving no new
// table, per the as_copy cleanup decision recorded in DESIGN.md) if the
// coremap runs out of frames partway through.
func (t *Table) Copy(newPid int, cm *coremap.Map) (*Table, bool) {
	out := New()
	for _, e := range t.entries {
		ppn, ok := out.Add(e.VPN, newPid, cm)
		if !ok {
			for _, added := range out.entries {
				cm.FreePageAtIndex(added.PPN, newPid, added.VPN)
			}
			return nil, false
		}
		copy(cm.Frame(ppn), cm.Frame(e.PPN))
	}
	return out, true
}

// Destroy frees every frame held by t in cm, per pagetable.c's
// pt_destroy / spec.md §4.3: "iterate and pte_destroy each; each
// pte_destroy releases its coremap frame and invalidates its TLB
// entry." TLB invalidation is the caller's responsibility (the
// addrspace package holds the TLB reference, not this one).
func (t *Table) Destroy(pid int, cm *coremap.Map) {
	for _, e := range t.entries {
		cm.FreePageAtIndex(e.PPN, pid, e.VPN)
	}
	t.entries = nil
}
