// Package content defines the byte-stream store consumed by the filesystem
// layer for inode content.
//
// The filesystem keeps metadata (inode records, tags) in its metadata store
// and keeps every inode's byte stream here: regular file bodies and directory
// entry streams alike. The split mirrors the separation between inode fields
// and data blocks in a classical kernel filesystem; this package plays the
// role of readi/writei over the block layer.
package content

import (
	"context"
	"fmt"
)

// ID identifies one inode's byte stream.
//
// IDs are derived deterministically from (device, inode number) so a stream
// can always be found again from the inode record alone, and so backends can
// use the ID directly as a map key, file name, or object key.
type ID string

// NewID builds the stream ID for an inode.
func NewID(dev uint32, inum uint64) ID {
	return ID(fmt.Sprintf("%d-%d", dev, inum))
}

// Store is the byte-stream storage contract.
//
// Streams are sparse-extendable: writing past the current end pads the gap
// with zeros, and reading a stream that does not exist yet behaves like
// reading an empty one. Offsets are byte offsets from the start of the
// stream.
//
// Implementations must be safe for concurrent use. Callers serialize
// operations on a single stream through the owning inode's lock, so backends
// only need map/file-level safety, not per-stream ordering guarantees.
type Store interface {
	// ReadAt reads up to len(p) bytes at off. It returns the number of
	// bytes read; a read at or past the end of the stream returns 0 with
	// a nil error.
	ReadAt(ctx context.Context, id ID, p []byte, off uint64) (int, error)

	// WriteAt writes len(p) bytes at off, creating the stream if needed
	// and zero-padding any gap before off. It returns the number of bytes
	// written, which is len(p) unless an error occurred.
	WriteAt(ctx context.Context, id ID, p []byte, off uint64) (int, error)

	// Size returns the current length of the stream in bytes.
	// A stream that was never written has size 0.
	Size(ctx context.Context, id ID) (uint64, error)

	// Truncate sets the stream length. Growing pads with zeros.
	Truncate(ctx context.Context, id ID, size uint64) error

	// Delete removes the stream. Deleting a missing stream is not an
	// error; inode deallocation calls this unconditionally.
	Delete(ctx context.Context, id ID) error

	// Close releases backend resources.
	Close() error
}
