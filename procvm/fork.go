package procvm

import (
	"github.com/abarganier/ops/addrspace"
	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/defs"
)

// Fork clones the calling process's address space under a fresh PID,
// per spec.md §4.6's VM portion of fork: "allocate a new PID from the
// process table, then as_copy(curproc.as, new_pid). On any failure,
// unwind all partial state: remove the PID entry, destroy the partial
// child". File-descriptor-table cloning is external to this subsystem
// and not reproduced here (original_source's filetable_copy).
func (t *Table) Fork(parentPid int, cm *coremap.Map) (childPid int, err defs.Err_t) {
	parent, ok := t.Lookup(parentPid)
	if !ok {
		return 0, defs.ESRCH
	}

	t.mu.Lock()
	pid := t.nextPid
	t.nextPid++
	t.mu.Unlock()

	child, copyErr := addrspace.Copy(parent, pid, cm)
	if copyErr != 0 {
		return 0, copyErr
	}

	t.mu.Lock()
	t.spaces[pid] = child
	t.mu.Unlock()

	return pid, 0
}
