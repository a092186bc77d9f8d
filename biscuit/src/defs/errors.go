// Package defs holds the small cross-cutting types shared by every VM
// package: error codes and thread identifiers.
package defs

// / Err_t is the kernel's error return type: zero is success, a negative
// / value names the failure. Callers propagate it instead of the error
// / interface, matching the rest of this kernel.
type Err_t int

// / Error codes returned by the VM subsystem. Names match spec.md §7.
const (
	EFAULT       Err_t = 14 /// bad address: kernel addr from user, RO write, missing SPT entry
	ENOMEM       Err_t = 12 /// frame pool and swap both exhausted
	EINVAL       Err_t = 22 /// malformed argument (bad length, misaligned va)
	EEXIST       Err_t = 17 /// SPT already has a descriptor at this va
	ENAMETOOLONG Err_t = 36 /// string copy exceeded caller's buffer
	EIO          Err_t = 5  /// swap or file device read/write failed
	ENOHEAP      Err_t = 48 /// kernel ran out of heap space servicing a copy
)

// / Tid_t identifies a kernel thread. The scheduler that owns thread
// / lifetime is an external collaborator (spec.md §6); the VM core only
// / ever compares or stores these ids.
type Tid_t int
