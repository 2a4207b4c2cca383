// Package fault implements the TLB-miss fault handler: validate the
// faulting address, resolve (or lazily create) its page-table mapping,
// then install the translation into the TLB. Shaped after biscuit's
// Vm_t.Pgfault/Sys_pgfault split (lookup-then-resolve, spec.md §4.5 in
// place of biscuit's COW/permission logic, which is out of scope here).
package fault

import (
	"github.com/abarganier/ops/addrspace"
	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/defs"
	"github.com/abarganier/ops/tlb"
)

// Type distinguishes why the CPU trapped; this design does not
// differentiate behavior by fault type (spec.md §4.5: "There is no
// page-fault distinction between read/write/execute in this design").
type Type int

const (
	Read Type = iota
	Write
	Execute
)

// VmFault services one TLB-miss trap for the given address space,
// exactly the six steps of spec.md §4.5:
//  1. (the caller supplies as; a nil as means no current address space)
//  2. validate the faulting address falls in some segment
//  3. pt_add to obtain (or lazily allocate) a PPN
//  4. no dirty/valid bits to set explicitly — every installed TLB entry
//     is implicitly dirty+valid, since write-protection is not enforced
//  5. probe the TLB; insert via Random only on a miss
//  6. return success
//
// faultType is accepted for interface fidelity with the trap frame but
// unused, per the "no distinction" rule above.
func VmFault(as *addrspace.AS, faultType Type, faultAddr uintptr, cm *coremap.Map, t *tlb.TLB) defs.Err_t {
	_ = faultType
	if as == nil {
		return defs.ENOMEM
	}
	if !as.VaddrInSegment(faultAddr) {
		return defs.EFAULT
	}

	vpn := faultAddr &^ uintptr(0xFFF)
	var ppn int
	if pte, found := as.PageTable.Lookup(vpn); found {
		ppn = pte.PPN
	} else {
		var ok bool
		ppn, ok = as.PageTable.Add(vpn, as.Pid, cm)
		if !ok {
			return defs.ENOMEM
		}
	}

	if _, found := t.Probe(vpn); !found {
		t.Random(vpn, ppn)
	}
	return 0
}
