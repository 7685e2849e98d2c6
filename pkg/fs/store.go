package fs

import "context"

// Txn is one metadata transaction.
//
// Every metadata mutation in this package happens inside a transaction, and
// every transaction is committed on every exit path of the operation that
// began it, including error paths. An operation that fails halfway still
// commits whatever lock-consistent intermediate state it produced; there is
// no rollback machinery beyond explicit compensation (see Link).
type Txn interface {
	// Commit makes the transaction's writes durable. Commit must be called
	// exactly once per transaction.
	Commit() error
}

// Store is the metadata storage contract: inode records, the inode number
// allocator, and the per-inode tag map.
//
// Reads (GetInode, GetTag) see committed state; writes are buffered in the
// Txn and become visible at Commit. Operations never read back their own
// uncommitted inode writes, so read-your-writes is not required of
// implementations. Tag keys are independent of each other and of the inode
// record fields.
type Store interface {
	// Begin opens a transaction.
	Begin(ctx context.Context) (Txn, error)

	// AllocInum allocates the next unused inode number on dev.
	// Allocated numbers are never reused.
	AllocInum(txn Txn, dev uint32) (uint64, error)

	// GetInode loads the record for (dev, inum). Missing records return an
	// FsError with ErrNotFound.
	GetInode(ctx context.Context, dev uint32, inum uint64) (*InodeRecord, error)

	// PutInode creates or replaces the record for (rec.Dev, rec.Inum).
	PutInode(txn Txn, rec *InodeRecord) error

	// DeleteInode removes the record. Deleting a missing record is not an
	// error; deallocation calls it unconditionally.
	DeleteInode(txn Txn, dev uint32, inum uint64) error

	// SetTag sets one tag key to value, overwriting any previous value.
	SetTag(txn Txn, dev uint32, inum uint64, key, value string) error

	// GetTag returns the value for key. Missing keys return an FsError
	// with ErrNotFound.
	GetTag(ctx context.Context, dev uint32, inum uint64, key string) (string, error)

	// DeleteTag removes one tag key. Missing keys return an FsError with
	// ErrNotFound.
	DeleteTag(txn Txn, dev uint32, inum uint64, key string) error

	// DeleteTags removes every tag of the inode; used at deallocation.
	DeleteTags(txn Txn, dev uint32, inum uint64) error

	// Close releases backend resources.
	Close() error
}
