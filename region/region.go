// Package region implements the per-address-space list of valid
// virtual-memory regions, adapted from
// original_source/kern/vm/memregion.c's region_list/mem_region pair.
package region

import "github.com/abarganier/ops/util"

// Region describes one valid range of virtual address space: a base
// address and a byte length, plus the permission bits the original
// carried alongside but never enforced (spec.md §4.2 keeps them for
// future use, not checked on the fault path today).
type Region struct {
	Start      uintptr
	Size       uintptr
	Readable   bool
	Writeable  bool
	Executable bool
}

func (r Region) end() uintptr { return r.Start + r.Size }

// contains reports whether vaddr falls within r.
func (r Region) contains(vaddr uintptr) bool {
	return vaddr >= r.Start && vaddr < r.end()
}

// overlaps reports whether the half-open range [start, start+size)
// intersects r, mirroring memregion.c's no_region_overlap (inverted:
// that function returns true for "no overlap").
func (r Region) overlaps(start uintptr, size uintptr) bool {
	return !(start+size <= r.Start || start >= r.end())
}

// List is the ordered collection of regions belonging to one address
// space, a singly linked list in the original and a slice here —
// append-only during normal operation per memregion.c's tail-insert
// add_region.
type List struct {
	regions []Region
}

// New returns an empty region list.
func New() *List {
	return &List{}
}

// Add appends a new region spanning [vaddr, vaddr+size) to the list.
// The original's add_region returns false only on allocation failure;
// this port has no allocation step, so Add always succeeds. Callers
// are expected to have already checked Available.
func (l *List) Add(vaddr, size uintptr, readable, writeable, executable bool) {
	l.regions = append(l.regions, Region{
		Start:      vaddr,
		Size:       size,
		Readable:   readable,
		Writeable:  writeable,
		Executable: executable,
	})
}

// IsValid reports whether vaddr falls inside some region in the list,
// per memregion.c's is_valid_region.
func (l *List) IsValid(vaddr uintptr) bool {
	for _, r := range l.regions {
		if r.contains(vaddr) {
			return true
		}
	}
	return false
}

// Available reports whether [vaddr, vaddr+size) overlaps no existing
// region, per memregion.c's region_available.
func (l *List) Available(vaddr, size uintptr) bool {
	for _, r := range l.regions {
		if r.overlaps(vaddr, size) {
			return false
		}
	}
	return true
}

// UsesPage reports whether any region's range intersects the page
// starting at vpn, per memregion.c's region_uses_page.
func (l *List) UsesPage(vpn uintptr) bool {
	for _, r := range l.regions {
		if r.overlaps(vpn, util.PageSize) {
			return true
		}
	}
	return false
}

// Find returns the region containing vaddr and true, or the zero
// Region and false.
func (l *List) Find(vaddr uintptr) (Region, bool) {
	for _, r := range l.regions {
		if r.contains(vaddr) {
			return r, true
		}
	}
	return Region{}, false
}

// Len returns the number of regions in the list.
func (l *List) Len() int { return len(l.regions) }

// All returns a snapshot slice of every region, in insertion order.
func (l *List) All() []Region {
	out := make([]Region, len(l.regions))
	copy(out, l.regions)
	return out
}

// Copy returns a deep copy of l, used when duplicating an address
// space on fork (memregion.c's region_copy, applied to every node).
func (l *List) Copy() *List {
	out := &List{regions: make([]Region, len(l.regions))}
	copy(out.regions, l.regions)
	return out
}
