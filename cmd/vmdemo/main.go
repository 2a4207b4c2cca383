// Command vmdemo boots a small simulated RAM, defines one user
// address space, drives it through a fault, a fork, and an execv, and
// prints the coremap occupancy at each step. It exists to exercise the
// VM subsystem end to end outside of the test suite.
package main

import (
	"fmt"
	"log"

	"github.com/abarganier/ops/addrspace"
	"github.com/abarganier/ops/diag"
	"github.com/abarganier/ops/fault"
	"github.com/abarganier/ops/procvm"
	"github.com/abarganier/ops/ramboot"
	"github.com/abarganier/ops/tlb"
	"github.com/abarganier/ops/util"
)

func main() {
	cm, err := ramboot.Bootstrap(ramboot.Config{RAMBytes: 4 * 1024 * 1024})
	if err != nil {
		log.Fatal(err)
	}
	defer ramboot.Teardown(cm)

	tl := tlb.New()
	table := procvm.NewTable()

	as := addrspace.Create()
	if e := as.DefineRegion(0x00400000, 0x1000, true, true, true); e != 0 {
		log.Fatalf("DefineRegion failed: %v", e)
	}
	as.DefineStack()
	pid := table.Adopt(as)

	fmt.Println("after bootstrap:", diag.Snapshot(cm))

	if e := fault.VmFault(as, fault.Write, 0x00400000, cm, tl); e != 0 {
		log.Fatalf("fault failed: %v", e)
	}
	fmt.Println("after first fault:", diag.Snapshot(cm))

	childPid, e := table.Fork(pid, cm)
	if e != 0 {
		log.Fatalf("fork failed: %v", e)
	}
	fmt.Printf("forked pid %d -> child pid %d\n", pid, childPid)
	fmt.Println("after fork:", diag.Snapshot(cm))

	newAS, sp, e := table.Execv(pid, 0x00500000, uintptr(util.PageSize), cm, tl)
	if e != 0 {
		log.Fatalf("execv failed: %v", e)
	}
	fmt.Printf("execv replaced pid %d's address space, sp=%#x\n", pid, sp)
	fmt.Println("after execv:", diag.Snapshot(cm))

	if !newAS.VaddrInSegment(0x00500000) {
		log.Fatal("execv: new address space missing its own region")
	}
}
