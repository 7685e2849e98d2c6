// Package fs implements the transactional filesystem metadata layer: path
// resolution, the inode cache, link/unlink/create with crash-consistent
// transaction bracketing, symbolic links, and per-inode tags.
//
// Metadata (inode records, directory entry blocks, tags) lives in a Store;
// regular-file byte streams live in a content.Store. Directory entries travel
// inside the inode record so an entry write and its paired link-count update
// commit in one store transaction. The package exposes inode-level
// operations; descriptor and process state live above it in pkg/file and
// pkg/kernel.
package fs

import (
	"context"
	"sync"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/content"
)

// Device is a character device driver. Reads and writes on a device inode
// bypass the content store and go to the driver registered under the inode's
// major number.
type Device interface {
	Read(ctx context.Context, p []byte) (int, error)
	Write(ctx context.Context, p []byte) (int, error)
}

// FS is the filesystem. One FS instance owns the inode cache for its stores;
// creating two FS instances over the same stores breaks locking.
type FS struct {
	store Store
	data  content.Store

	// devices maps major numbers to drivers
	devices map[uint32]Device
	devMu   sync.RWMutex

	// cache.mu guards cache.inodes and every Inode's refs field
	cache struct {
		mu     sync.Mutex
		inodes map[inodeKey]*Inode
	}
}

type inodeKey struct {
	dev  uint32
	inum uint64
}

// New builds an FS over the given stores and creates the root directory on
// first use.
func New(ctx context.Context, store Store, data content.Store) (*FS, error) {
	fsys := &FS{
		store:   store,
		data:    data,
		devices: make(map[uint32]Device),
	}
	fsys.cache.inodes = make(map[inodeKey]*Inode)

	if err := fsys.ensureRoot(ctx); err != nil {
		return nil, err
	}
	return fsys, nil
}

// ensureRoot creates the root directory if the store is empty. Root holds
// "." and ".." pointing at itself; neither self-entry counts toward nlink,
// so root's link count is 1 like every other directory's.
func (fsys *FS) ensureRoot(ctx context.Context) error {
	_, err := fsys.store.GetInode(ctx, RootDev, RootInum)
	if err == nil {
		return nil
	}
	if !IsCode(err, ErrNotFound) {
		return err
	}

	logger.Info("Initializing root directory on device %d", RootDev)

	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return err
	}

	inum, err := fsys.store.AllocInum(txn, RootDev)
	if err != nil {
		txn.Commit()
		return err
	}
	if inum != RootInum {
		txn.Commit()
		return &FsError{Code: ErrInternal, Message: "root directory is not the first allocation"}
	}

	entries := append(encodeDirent(Dirent{Inum: RootInum, Name: "."}),
		encodeDirent(Dirent{Inum: RootInum, Name: ".."})...)
	rec := &InodeRecord{
		Dev:     RootDev,
		Inum:    RootInum,
		Type:    TypeDir,
		Nlink:   1,
		Size:    uint64(len(entries)),
		Payload: DirBlocks{Entries: entries},
	}
	if err := fsys.store.PutInode(txn, rec); err != nil {
		txn.Commit()
		return err
	}

	return txn.Commit()
}

// Root returns a referenced handle to the root directory.
func (fsys *FS) Root() *Inode {
	return fsys.getInode(RootDev, RootInum)
}

// Retain takes an additional reference to ip, for sharing an inode handle
// across owners (a forked process inheriting its parent's working directory).
func (fsys *FS) Retain(ip *Inode) *Inode {
	return fsys.dupInode(ip)
}

// Release drops one reference to ip, deallocating the inode if it was the
// last reference and no directory entry points at it anymore.
func (fsys *FS) Release(ctx context.Context, ip *Inode) error {
	return fsys.putInode(ctx, nil, ip)
}

// RegisterDevice installs a driver for the given major number. Re-registering
// a major replaces the driver.
func (fsys *FS) RegisterDevice(major uint32, dev Device) {
	fsys.devMu.Lock()
	defer fsys.devMu.Unlock()
	fsys.devices[major] = dev
}

// device looks up the driver for major.
func (fsys *FS) device(major uint32) (Device, bool) {
	fsys.devMu.RLock()
	defer fsys.devMu.RUnlock()
	dev, ok := fsys.devices[major]
	return dev, ok
}

// Close closes the underlying stores.
func (fsys *FS) Close() error {
	if err := fsys.store.Close(); err != nil {
		fsys.data.Close()
		return err
	}
	return fsys.data.Close()
}
