package procvm

import (
	"github.com/abarganier/ops/addrspace"
	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/defs"
	"github.com/abarganier/ops/limits"
	"github.com/abarganier/ops/tlb"
	"github.com/abarganier/ops/util"
)

// ArgvImage is the word-aligned argv layout execv constructs on the
// new user stack: the concatenated, NUL-padded argument bytes followed
// by a NULL-terminated array of pointers into them (spec.md §4.6 step
// 3). StackPointer is the adjusted initial user stack pointer after
// both copyouts.
type ArgvImage struct {
	ArgBytes     []byte
	ArgvPointers []uintptr
	StackPointer uintptr
}

// BuildArgvImage copies path and argv into kernel scratch buffers
// bounded by PathMax/ArgMax (spec.md §4.6 step 1), concatenates each
// argument with NUL padding to the next 4-byte boundary, and lays out
// a word-aligned argv pointer array beneath a fresh user stack
// starting at initialSP (step 3). ELF loading and the actual
// copyout to user memory are external to this subsystem; this
// function produces the kernel-side image those steps would copy out.
func BuildArgvImage(path string, argv []string, initialSP uintptr) (*ArgvImage, defs.Err_t) {
	if len(path) >= limits.PathMax {
		return nil, defs.ENAMETOOLONG
	}
	if len(argv) > limits.MaxArgs {
		return nil, defs.EINVAL
	}

	var argBytes []byte
	offsets := make([]int, len(argv))
	for i, a := range argv {
		offsets[i] = len(argBytes)
		argBytes = append(argBytes, []byte(a)...)
		argBytes = append(argBytes, 0)
		for len(argBytes)%4 != 0 {
			argBytes = append(argBytes, 0)
		}
	}
	if len(argBytes) > limits.ArgMax {
		return nil, defs.EINVAL
	}

	sp := initialSP - uintptr(len(argBytes))
	sp = util.Rounddown(sp, 4)

	pointers := make([]uintptr, len(argv)+1)
	for i, off := range offsets {
		pointers[i] = sp + uintptr(off)
	}
	pointers[len(argv)] = 0 // NULL terminator

	argvArrayBytes := uintptr(len(pointers)) * 4
	sp -= argvArrayBytes
	sp = util.Rounddown(sp, 4)

	return &ArgvImage{
		ArgBytes:     argBytes,
		ArgvPointers: pointers,
		StackPointer: sp,
	}, 0
}

// Execv replaces the address space owned by pid with a fresh one,
// per spec.md §4.6's VM portion: "Define the stack... Destroy the old
// address space." ELF segment loading is external to this subsystem
// (step 2's "load segments (external loader)"); the caller is expected
// to have already populated the page table of the returned address
// space's regions via the fault path or an explicit loader before
// resuming user mode. Any failure before the new address space is
// committed leaves the old one in place untouched, per step 4's
// "failure at any step restores the old address space".
func (t *Table) Execv(pid int, regionVaddr, regionSize uintptr, cm *coremap.Map, tl *tlb.TLB) (*addrspace.AS, uintptr, defs.Err_t) {
	if _, ok := t.Lookup(pid); !ok {
		return nil, 0, defs.ESRCH
	}

	newAS := addrspace.Create()
	newAS.Pid = pid
	if err := newAS.DefineRegion(regionVaddr, regionSize, true, true, true); err != 0 {
		return nil, 0, err
	}
	sp := newAS.DefineStack()

	t.mu.Lock()
	old := t.spaces[pid]
	t.spaces[pid] = newAS
	t.mu.Unlock()

	if old != nil {
		addrspace.Destroy(old, cm, tl)
	}

	return newAS, sp, 0
}
