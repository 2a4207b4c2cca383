// Package addrspace implements the per-process address space: the
// aggregate of a region list, a page table, and heap/stack
// descriptors, adapted from original_source/kern/vm/addrspace.c.
//
// Each address space is single-owner: only the owning process ever
// mutates it, and the fault handler only ever runs against the
// current process's address space, so — unlike the coremap — no lock
// guards these structures (spec.md §5).
package addrspace

import (
	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/defs"
	"github.com/abarganier/ops/klog"
	"github.com/abarganier/ops/pagetable"
	"github.com/abarganier/ops/region"
	"github.com/abarganier/ops/tlb"
	"github.com/abarganier/ops/util"
)

// USERSTACK is the top of user address space (OS/161's USERSPACETOP),
// one byte past the last valid user address.
const USERSTACK uintptr = 0x80000000

// StackSize is the fixed stack reservation handed out by DefineStack.
// original_source computes this as `2048 * 2024`, which is 4 MiB give
// or take a rounding quirk in the original's own arithmetic; this port
// uses the clean 4 MiB value spec.md §4.4 calls out.
const StackSize uintptr = 4 * 1024 * 1024

// AS is one process's address space: regions, page table, heap, and
// stack bounds (spec.md §3 "Address space").
type AS struct {
	Pid        int
	Regions    *region.List
	PageTable  *pagetable.Table
	HeapStart  uintptr
	HeapSize   uintptr
	StackStart uintptr
	StackSize  uintptr
}

// Create returns a fresh, empty address space with as_pid unset (0);
// the owning PID is assigned by the caller once a process adopts it
// (spec.md §4.4), per original_source's as_create.
func Create() *AS {
	return &AS{
		Regions:   region.New(),
		PageTable: pagetable.New(),
	}
}

// getHeapStart returns the page-aligned address immediately above the
// highest region end, per addrspace.c's get_heap_start.
func getHeapStart(regions *region.List) uintptr {
	var max uintptr
	for _, r := range regions.All() {
		if end := r.Start + r.Size; end > max {
			max = end
		}
	}
	return util.PageAlign(max + util.PageSize)
}

// DefineRegion appends a new region spanning [vaddr, vaddr+size),
// overlap-checking against the existing list, then, on every successful
// definition, recomputes heap_start as the page-aligned address above
// the highest region end and resets heap_size to 0 (spec.md §4.4).
func (as *AS) DefineRegion(vaddr, size uintptr, readable, writeable, executable bool) defs.Err_t {
	if size == 0 {
		klog.Warnf("as_define_region called with memsize == 0, ignoring")
		return 0
	}
	if !as.Regions.Available(vaddr, size) {
		return defs.EOVERLAP
	}
	as.Regions.Add(vaddr, size, readable, writeable, executable)
	as.HeapStart = getHeapStart(as.Regions)
	as.HeapSize = 0
	return 0
}

// DefineStack sets up the initial user stack, returning the initial
// stack pointer (spec.md §4.4's as_define_stack).
func (as *AS) DefineStack() uintptr {
	as.StackStart = USERSTACK
	as.StackSize = StackSize
	return USERSTACK
}

func (as *AS) inStack(vaddr uintptr) bool {
	return vaddr < as.StackStart && vaddr >= as.StackStart-as.StackSize
}

func (as *AS) inHeap(vaddr uintptr) bool {
	return vaddr >= as.HeapStart && vaddr < as.HeapStart+as.HeapSize
}

// VaddrInSegment reports whether vaddr lies in any region, the stack
// range, or the heap range (spec.md §4.4's vaddr_in_segment).
func (as *AS) VaddrInSegment(vaddr uintptr) bool {
	return as.Regions.IsValid(vaddr) || as.inStack(vaddr) || as.inHeap(vaddr)
}

// PageStillNeeded reports whether some region, the stack, or the heap
// still covers the page starting at vpn, used by CleanSegments
// (spec.md §4.4's page_still_needed).
func (as *AS) PageStillNeeded(vpn uintptr) bool {
	return as.inHeap(vpn) || as.inStack(vpn) || as.Regions.UsesPage(vpn)
}

// CleanSegments walks the page table and removes every PTE whose VPN
// is no longer covered by any segment, freeing its frame in cm and
// invalidating its TLB entry. Invoked after a negative Sbrk
// (addrspace.c's as_clean_segments).
func (as *AS) CleanSegments(cm *coremap.Map, t *tlb.TLB) {
	for _, pte := range as.PageTable.All() {
		if as.PageStillNeeded(pte.VPN) {
			continue
		}
		as.PageTable.Remove(pte.VPN, as.Pid, cm)
		t.Invalidate(pte.VPN)
	}
}

// Sbrk adjusts the heap by amount bytes, returning the previous break
// (heap_start+heap_size) on success (spec.md §4.4's sbrk, the only VM
// syscall in the core).
func (as *AS) Sbrk(amount int, cm *coremap.Map, t *tlb.TLB) (uintptr, defs.Err_t) {
	if amount%util.PageSize != 0 {
		return 0, defs.EINVAL
	}
	if amount < 0 && uintptr(-amount) > as.HeapSize {
		return 0, defs.EINVAL
	}
	oldBreak := as.HeapStart + as.HeapSize
	if amount > 0 {
		newTop := oldBreak + uintptr(amount)
		if newTop > as.StackStart-as.StackSize {
			return 0, defs.ENOMEM
		}
	}
	as.HeapSize = uintptr(int(as.HeapSize) + amount)
	if amount < 0 {
		as.CleanSegments(cm, t)
	}
	return oldBreak, 0
}

// Copy creates a fresh address space tagged with newPid, copies
// regions and heap/stack scalars verbatim, then deep-copies the page
// table (fresh frames, byte-identical contents — copy-on-fork, not
// copy-on-write). Any failure destroys the partial new address space
// and returns out-of-memory (spec.md §4.4's as_copy). Per the decision
// recorded in DESIGN.md, a failed Copy leaves the coremap exactly as
// it was before the call — nothing partial survives.
func Copy(src *AS, newPid int, cm *coremap.Map) (*AS, defs.Err_t) {
	dst := Create()
	dst.Pid = newPid
	dst.Regions = src.Regions.Copy()
	dst.HeapStart = src.HeapStart
	dst.HeapSize = src.HeapSize
	dst.StackStart = src.StackStart
	dst.StackSize = src.StackSize

	newPt, ok := src.PageTable.Copy(newPid, cm)
	if !ok {
		return nil, defs.ENOMEM
	}
	dst.PageTable = newPt
	return dst, 0
}

// Destroy frees every frame the address space owns (via its page
// table) and invalidates any TLB entries that named those frames
// (spec.md §4.4's as_destroy).
func Destroy(as *AS, cm *coremap.Map, t *tlb.TLB) {
	for _, pte := range as.PageTable.All() {
		t.Invalidate(pte.VPN)
	}
	as.PageTable.Destroy(as.Pid, cm)
}

// Activate invalidates every TLB entry on an address-space switch,
// with interrupts conceptually disabled for the duration (modeled here
// simply as holding the TLB's own lock) — addrspace.c's as_activate.
func Activate(t *tlb.TLB) {
	t.InvalidateAll()
}
