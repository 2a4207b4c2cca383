// Package limits holds the few fixed system limits the VM-visible
// syscall glue needs, in the spirit of biscuit/src/limits's
// Syslimit_t bundle of named constants.
package limits

const (
	// PathMax bounds the kernel scratch buffer execv copies the program
	// path into (spec.md §4.6).
	PathMax = 1024

	// ArgMax bounds the kernel scratch buffer execv copies the
	// concatenated, NUL-padded argv vector into (spec.md §4.6).
	ArgMax = 64 * 1024

	// MaxArgs bounds the number of argv pointers execv will build.
	MaxArgs = 64
)
