package fs

import (
	"context"
	"sync"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/content"
)

// Inode is a cached inode.
//
// Reference counting and locking are separate concerns: a reference keeps the
// cache entry alive across calls, the lock protects the metadata fields and
// the inode's byte stream during one critical section. Callers must hold the
// lock to read or modify Type, Nlink, Size or Payload, and must never hold it
// across a call that sleeps on another inode's lock except parent-to-child
// during directory walks.
type Inode struct {
	// Dev and Inum identify the inode; immutable after creation
	Dev  uint32
	Inum uint64

	// refs is the in-memory reference count, guarded by the cache mutex
	refs int

	// mu guards everything below
	mu sync.Mutex

	// valid is set once the record has been loaded from the store
	valid bool

	Type    InodeType
	Nlink   uint32
	Size    uint64
	Payload Payload
}

// contentID returns the inode's byte-stream handle, or "" for inodes that
// have no stream (directories, devices, symlinks).
func (ip *Inode) contentID() content.ID {
	if p, ok := ip.Payload.(FileBlocks); ok {
		return content.ID(p.Content)
	}
	return ""
}

// getInode returns a referenced, unlocked handle for (dev, inum). The record
// is not loaded until the first lockInode; the inode may not even exist yet.
func (fsys *FS) getInode(dev uint32, inum uint64) *Inode {
	key := inodeKey{dev: dev, inum: inum}

	fsys.cache.mu.Lock()
	defer fsys.cache.mu.Unlock()

	if ip, ok := fsys.cache.inodes[key]; ok {
		ip.refs++
		return ip
	}

	ip := &Inode{Dev: dev, Inum: inum, refs: 1}
	fsys.cache.inodes[key] = ip
	return ip
}

// dupInode takes an additional reference to an already-referenced inode.
func (fsys *FS) dupInode(ip *Inode) *Inode {
	fsys.cache.mu.Lock()
	defer fsys.cache.mu.Unlock()
	ip.refs++
	return ip
}

// lockInode locks ip, loading its record from the store on first use.
// On error the inode is left unlocked and the caller still owns its
// reference.
func (fsys *FS) lockInode(ctx context.Context, ip *Inode) error {
	ip.mu.Lock()

	if ip.valid {
		return nil
	}

	rec, err := fsys.store.GetInode(ctx, ip.Dev, ip.Inum)
	if err != nil {
		ip.mu.Unlock()
		return err
	}

	ip.Type = rec.Type
	ip.Nlink = rec.Nlink
	ip.Size = rec.Size
	ip.Payload = rec.Payload
	ip.valid = true
	return nil
}

// unlockInode releases the lock; the caller keeps its reference.
func (fsys *FS) unlockInode(ip *Inode) {
	ip.mu.Unlock()
}

// updateInode writes the inode's current fields back to the store inside txn.
// The caller must hold ip's lock.
func (fsys *FS) updateInode(txn Txn, ip *Inode) error {
	return fsys.store.PutInode(txn, &InodeRecord{
		Dev:     ip.Dev,
		Inum:    ip.Inum,
		Type:    ip.Type,
		Nlink:   ip.Nlink,
		Size:    ip.Size,
		Payload: ip.Payload,
	})
}

// putInode drops one reference to an unlocked inode. If it was the last
// reference and no directory entry points at the inode, the inode is
// deallocated: stream truncated and deleted, tags removed, record removed.
//
// txn may be nil; deallocation then runs in its own transaction. Callers
// inside an open transaction must pass it so deallocation joins their commit
// unit.
func (fsys *FS) putInode(ctx context.Context, txn Txn, ip *Inode) error {
	key := inodeKey{dev: ip.Dev, inum: ip.Inum}

	fsys.cache.mu.Lock()
	ip.refs--
	if ip.refs > 0 {
		fsys.cache.mu.Unlock()
		return nil
	}
	// Last reference: remove the cache entry before releasing the cache
	// mutex so no new lookup can revive this handle mid-deallocation.
	delete(fsys.cache.inodes, key)
	fsys.cache.mu.Unlock()

	if !ip.valid || ip.Nlink > 0 {
		return nil
	}

	logger.Debug("Deallocating inode %d/%d", ip.Dev, ip.Inum)

	ownTxn := txn == nil
	if ownTxn {
		t, err := fsys.store.Begin(ctx)
		if err != nil {
			return err
		}
		txn = t
	}

	err := fsys.freeInode(ctx, txn, ip)
	if ownTxn {
		if cerr := txn.Commit(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// freeInode releases the inode's storage. Only putInode calls it, with the
// last reference held, so no lock is needed.
func (fsys *FS) freeInode(ctx context.Context, txn Txn, ip *Inode) error {
	if cid := ip.contentID(); cid != "" {
		if err := fsys.data.Truncate(ctx, cid, 0); err != nil {
			return &FsError{Code: ErrIO, Message: "failed to truncate stream of freed inode"}
		}
		if err := fsys.data.Delete(ctx, cid); err != nil {
			return &FsError{Code: ErrIO, Message: "failed to delete stream of freed inode"}
		}
	}
	if err := fsys.store.DeleteTags(txn, ip.Dev, ip.Inum); err != nil {
		return err
	}
	if err := fsys.store.DeleteInode(txn, ip.Dev, ip.Inum); err != nil {
		return err
	}
	ip.valid = false
	return nil
}

// unlockPut is the common unlock-then-release pair.
func (fsys *FS) unlockPut(ctx context.Context, txn Txn, ip *Inode) error {
	fsys.unlockInode(ip)
	return fsys.putInode(ctx, txn, ip)
}
