// Package klog is the kernel's console logger: a thin wrapper over an
// io.Writer, in the spirit of the teaching kernel's bare kprintf/fmt.Printf
// call sites. No structured logging library is introduced — nothing in
// the retrieved corpus reaches for one to log kernel-internal state.
package klog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu   sync.Mutex
	sink io.Writer = os.Stderr
)

// SetOutput redirects kernel log output, primarily for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
}

// Printf writes an informational line, unconditionally, matching
// mem.Phys_init's fmt.Printf reservation-stats line.
func Printf(format string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(sink, format, args...)
}

// Warnf writes a warning line prefixed like original_source's
// `kprintf("WARNING: ...")` call sites (addrspace.c, memregion.c).
func Warnf(format string, args ...interface{}) {
	Printf("WARNING: "+format, args...)
}

// Panicf logs then panics, the Go analogue of the original kernel's
// panic()/KASSERT on a fatal-invariant violation (spec.md §7).
func Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	Printf("PANIC: %s\n", msg)
	panic(msg)
}
