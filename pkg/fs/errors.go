package fs

import "errors"

// FsError is a domain error from filesystem metadata operations.
//
// These are semantic failures (path not found, directory not empty, symlink
// loop) as opposed to infrastructure errors from the stores underneath. The
// syscall layer translates FsError codes into the numeric sentinels of the
// kernel ABI; everything else in the tree can branch on Code.
type FsError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// Path is the filesystem path related to the error (if applicable)
	Path string
}

// Error implements the error interface.
func (e *FsError) Error() string {
	if e.Path != "" {
		return e.Message + ": " + e.Path
	}
	return e.Message
}

// ErrorCode represents the category of a filesystem error.
type ErrorCode int

const (
	// ErrNotFound indicates path resolution failed
	ErrNotFound ErrorCode = iota

	// ErrExists indicates a directory entry with the name already exists
	// and the idempotent create rule does not apply
	ErrExists

	// ErrNotDirectory indicates a path component or target that must be a
	// directory is not one
	ErrNotDirectory

	// ErrIsDirectory indicates the operation is not defined on directories
	// (hard-linking a directory, writing a directory fd)
	ErrIsDirectory

	// ErrNotEmpty indicates a directory still has entries besides "." and ".."
	ErrNotEmpty

	// ErrCrossDevice indicates a hard link spanning devices
	ErrCrossDevice

	// ErrBadArgument indicates an argument rejected at the trust boundary:
	// bad descriptor, oversized name, unlinking "." or ".."
	ErrBadArgument

	// ErrTargetTooLong indicates a symlink target exceeding the inode's
	// embedded buffer capacity
	ErrTargetTooLong

	// ErrSymlinkLoop indicates a symlink chain exceeding the hop bound
	ErrSymlinkLoop

	// ErrBrokenLink indicates a symlink whose target does not resolve.
	// Only readlink distinguishes this from plain failure.
	ErrBrokenLink

	// ErrNotSymlink indicates readlink on an inode that is not a symlink
	ErrNotSymlink

	// ErrNoDevice indicates a device inode whose major number has no
	// registered driver
	ErrNoDevice

	// ErrNoSlot indicates descriptor or resource table exhaustion
	ErrNoSlot

	// ErrIO indicates an error reading or writing the underlying stores
	ErrIO

	// ErrInternal indicates an invariant violation (nlink underflow,
	// directory write failing after allocation, loop bound hit during
	// open). The original system halted on these; here they abort only
	// the current operation, which still commits its transaction so the
	// on-disk state stays consistent.
	ErrInternal
)

// CodeOf extracts the ErrorCode from err, if err is (or wraps) an FsError.
func CodeOf(err error) (ErrorCode, bool) {
	var fe *FsError
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	return 0, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
