// Package procvm provides the VM-relevant glue for fork and execv: a
// PID-keyed table of address spaces, and the argv-image construction
// execv needs. Adapted from
// original_source/kern/syscall/proc_syscalls.c's sys_fork and spec.md
// §4.6; the PID table itself is modeled on
// biscuit/src/hashtable.Hashtable_t, repurposed here as a dedicated
// pid→*addrspace.AS index rather than a generic interface{} map, and
// guarded by a single mutex rather than per-bucket locks.
package procvm

import (
	"sync"

	"github.com/abarganier/ops/addrspace"
)

// Table is the process table's VM-relevant slice: which address space
// belongs to which PID. The original's process table additionally
// carries parent/child/exit-status bookkeeping (sys_fork's ppid
// assignment, filetable_copy); this port carries only what the VM
// subsystem needs, per this spec's scope.
type Table struct {
	mu      sync.Mutex
	spaces  map[int]*addrspace.AS
	nextPid int
}

// NewTable returns an empty process table; PID 0 is reserved for the
// kernel (spec.md §4.4's as_create default), so allocation starts at 1.
func NewTable() *Table {
	return &Table{
		spaces:  make(map[int]*addrspace.AS),
		nextPid: 1,
	}
}

// Adopt registers as under a freshly allocated PID, sets as.Pid, and
// returns it.
func (t *Table) Adopt(as *addrspace.AS) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pid := t.nextPid
	t.nextPid++
	as.Pid = pid
	t.spaces[pid] = as
	return pid
}

// Lookup returns the address space registered for pid.
func (t *Table) Lookup(pid int) (*addrspace.AS, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	as, ok := t.spaces[pid]
	return as, ok
}

// Remove deletes pid's entry. Fork does not call it: a child is
// registered only after its address-space copy succeeds, so a failed
// fork leaves no entry behind.
func (t *Table) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.spaces, pid)
}

