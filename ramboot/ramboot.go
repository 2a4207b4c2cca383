// Package ramboot performs the earliest-boot step of the VM subsystem:
// sizing physical RAM, carving out the fixed kernel+coremap region, and
// constructing the coremap over it, adapted from
// original_source/kern/arch/mips/vm/ram.c's ram_bootstrap.
package ramboot

import (
	"golang.org/x/sys/unix"

	"github.com/abarganier/ops/coremap"
	"github.com/abarganier/ops/klog"
	"github.com/abarganier/ops/util"
)

// MaxRAMBytes caps simulated physical memory at 512 MiB, the same
// ceiling ram_bootstrap imposes so the whole range stays reachable
// through a single kseg0 direct map ("we had more, we wouldn't be able
// to access it all through kseg0").
const MaxRAMBytes = 512 * 1024 * 1024

// KernelReservedBytes is the size of the fixed region reserved for the
// kernel image and the coremap's own metadata, standing in for
// ram_bootstrap's two separate fixed runs (kernel pages, then coremap
// pages) as a single leading fixed run — this port's coremap lives in
// ordinary Go memory rather than inside the simulated RAM it describes,
// so there is no second run to carve out for it.
const KernelReservedBytes = 1 * 1024 * 1024

// Config selects how much simulated RAM to boot with.
type Config struct {
	// RAMBytes is the total simulated physical memory size. Rounded
	// down to a whole number of pages and capped at MaxRAMBytes.
	RAMBytes int
}

// Bootstrap sizes RAM, mmaps an anonymous backing store for it
// (golang.org/x/sys/unix, standing in for "physical memory"), builds a
// coremap over it, and reserves the leading KernelReservedBytes as a
// fixed run, per ram_bootstrap.
func Bootstrap(cfg Config) (*coremap.Map, error) {
	ramBytes := cfg.RAMBytes
	if ramBytes > MaxRAMBytes {
		ramBytes = MaxRAMBytes
	}
	numFrames := ramBytes / util.PageSize
	if numFrames <= 0 {
		panic("ramboot: RAMBytes too small to hold a single page")
	}

	backing, err := unix.Mmap(-1, 0, numFrames*util.PageSize,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, err
	}

	cm := coremap.New(numFrames, backing)

	numFixed := util.PageCount(KernelReservedBytes)
	if numFixed >= numFrames {
		panic("ramboot: kernel reservation larger than simulated RAM")
	}
	cm.ReserveFixed(numFixed, coremap.KSEG0Base)

	klog.Printf("ramboot: %dk physical memory available\n",
		(numFrames-numFixed)*util.PageSize/1024)

	return cm, nil
}

// Teardown releases the mmap'd backing store acquired by Bootstrap.
// Tests that construct coremaps directly over a plain []byte (not via
// Bootstrap) have nothing to release and do not need to call this.
func Teardown(cm *coremap.Map) error {
	return unix.Munmap(cm.Backing())
}
