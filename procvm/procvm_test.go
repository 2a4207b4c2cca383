package procvm

import (
	"testing"

	"github.com/abarganier/ops/addrspace"
	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/defs"
	"github.com/abarganier/ops/tlb"
	"github.com/abarganier/ops/util"
)

func newTestCoremap(t *testing.T, numFrames int) *coremap.Map {
	t.Helper()
	backing := make([]byte, numFrames*util.PageSize)
	return coremap.New(numFrames, backing)
}

func TestAdoptAssignsIncreasingPIDs(t *testing.T) {
	tbl := NewTable()
	p1 := tbl.Adopt(addrspace.Create())
	p2 := tbl.Adopt(addrspace.Create())
	if p1 == 0 || p2 == 0 || p1 == p2 {
		t.Fatalf("expected distinct nonzero PIDs, got %d and %d", p1, p2)
	}
}

func TestForkClonesAddressSpace(t *testing.T) {
	cm := newTestCoremap(t, 16)
	tbl := NewTable()

	parentAS := addrspace.Create()
	parentAS.DefineRegion(0x00400000, util.PageSize, true, true, true)
	parentPid := tbl.Adopt(parentAS)

	ppn, _ := parentAS.PageTable.Add(0x00400000, parentPid, cm)
	cm.Frame(ppn)[0] = 0x7

	childPid, err := tbl.Fork(parentPid, cm)
	if err != 0 {
		t.Fatalf("Fork failed: %v", err)
	}
	if childPid == parentPid {
		t.Fatal("child pid should differ from parent pid")
	}

	child, ok := tbl.Lookup(childPid)
	if !ok {
		t.Fatal("child address space not registered in table")
	}
	pte, found := child.PageTable.Lookup(0x00400000)
	if !found {
		t.Fatal("child missing parent's mapping")
	}
	if pte.PPN == ppn {
		t.Fatal("child should have a distinct physical frame")
	}
	if cm.Frame(pte.PPN)[0] != 0x7 {
		t.Fatal("child frame should have parent's byte-copied contents")
	}
}

func TestForkUnknownParentFails(t *testing.T) {
	cm := newTestCoremap(t, 4)
	tbl := NewTable()
	if _, err := tbl.Fork(999, cm); err != defs.ESRCH {
		t.Fatalf("expected ESRCH for unknown parent, got %v", err)
	}
}

func TestBuildArgvImageLayout(t *testing.T) {
	img, err := BuildArgvImage("/bin/true", []string{"/bin/true", "x"}, addrspace.USERSTACK)
	if err != 0 {
		t.Fatalf("BuildArgvImage failed: %v", err)
	}
	if len(img.ArgvPointers) != 3 {
		t.Fatalf("expected 3 argv pointers (2 args + NULL), got %d", len(img.ArgvPointers))
	}
	if img.ArgvPointers[2] != 0 {
		t.Fatal("argv array should be NULL-terminated")
	}
	if img.StackPointer%4 != 0 {
		t.Fatal("stack pointer should be word-aligned")
	}
	if img.StackPointer >= addrspace.USERSTACK {
		t.Fatal("stack pointer should have moved down from the initial SP")
	}
}

func TestBuildArgvImagePathTooLong(t *testing.T) {
	longPath := make([]byte, 2048)
	for i := range longPath {
		longPath[i] = 'a'
	}
	if _, err := BuildArgvImage(string(longPath), nil, addrspace.USERSTACK); err != defs.ENAMETOOLONG {
		t.Fatalf("expected ENAMETOOLONG, got %v", err)
	}
}

func TestExecvReplacesAddressSpace(t *testing.T) {
	cm := newTestCoremap(t, 16)
	tl := tlb.New()
	tbl := NewTable()

	oldAS := addrspace.Create()
	oldAS.DefineRegion(0x00400000, util.PageSize, true, true, true)
	pid := tbl.Adopt(oldAS)
	oldAS.PageTable.Add(0x00400000, pid, cm)

	newAS, sp, err := tbl.Execv(pid, 0x00500000, 2*util.PageSize, cm, tl)
	if err != 0 {
		t.Fatalf("Execv failed: %v", err)
	}
	if newAS.Regions.Len() != 1 {
		t.Fatal("new address space should have its own single region")
	}
	if sp != addrspace.USERSTACK {
		t.Fatalf("stack pointer = %#x, want %#x", sp, addrspace.USERSTACK)
	}
	if cm.UsedBytes() != 0 {
		t.Fatalf("UsedBytes() = %d after Execv, want 0 (old AS frames released)", cm.UsedBytes())
	}
	got, _ := tbl.Lookup(pid)
	if got != newAS {
		t.Fatal("table should now point at the new address space")
	}
}
