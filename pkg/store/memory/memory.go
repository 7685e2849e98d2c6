// Package memory implements an in-memory metadata store.
//
// Transactions buffer their writes and apply them at Commit under the map
// lock, so readers only ever see committed state. A single transaction mutex
// held from Begin to Commit is the global serialization point for metadata
// mutations, mirroring the single-log design this layer descends from.
package memory

import (
	"context"
	"sync"

	"github.com/minikern/minikern/pkg/fs"
)

type inodeKey struct {
	dev  uint32
	inum uint64
}

// MemoryStore keeps all metadata in maps. Volatile; used by tests and
// throwaway shells.
type MemoryStore struct {
	// txnMu serializes transactions; held from Begin to Commit
	txnMu sync.Mutex

	// mapMu protects the maps below
	mapMu sync.RWMutex

	inodes   map[inodeKey]*fs.InodeRecord
	tags     map[inodeKey]map[string]string
	nextInum map[uint32]uint64
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore(ctx context.Context) (*MemoryStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryStore{
		inodes:   make(map[inodeKey]*fs.InodeRecord),
		tags:     make(map[inodeKey]map[string]string),
		nextInum: make(map[uint32]uint64),
	}, nil
}

// memTxn buffers writes until Commit.
type memTxn struct {
	s    *MemoryStore
	ops  []func()
	done bool
}

// Begin opens a transaction, blocking until it is the only one running.
func (s *MemoryStore) Begin(ctx context.Context) (fs.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.txnMu.Lock()
	return &memTxn{s: s}, nil
}

// Commit applies the buffered writes and releases the serialization lock.
func (t *memTxn) Commit() error {
	if t.done {
		return &fs.FsError{Code: fs.ErrInternal, Message: "transaction committed twice"}
	}
	t.done = true

	t.s.mapMu.Lock()
	for _, op := range t.ops {
		op()
	}
	t.s.mapMu.Unlock()

	t.s.txnMu.Unlock()
	return nil
}

// own checks that txn belongs to this store and is still open.
func (s *MemoryStore) own(txn fs.Txn) (*memTxn, error) {
	t, ok := txn.(*memTxn)
	if !ok || t.s != s {
		return nil, &fs.FsError{Code: fs.ErrInternal, Message: "foreign transaction"}
	}
	if t.done {
		return nil, &fs.FsError{Code: fs.ErrInternal, Message: "transaction already committed"}
	}
	return t, nil
}

// AllocInum hands out the next inode number on dev. Allocations take effect
// immediately rather than at Commit; numbers lost to failed operations are
// simply never reused.
func (s *MemoryStore) AllocInum(txn fs.Txn, dev uint32) (uint64, error) {
	if _, err := s.own(txn); err != nil {
		return 0, err
	}

	s.mapMu.Lock()
	defer s.mapMu.Unlock()

	next := s.nextInum[dev]
	if next == 0 {
		next = fs.RootInum
	}
	s.nextInum[dev] = next + 1
	return next, nil
}

// GetInode returns a copy of the record for (dev, inum).
func (s *MemoryStore) GetInode(ctx context.Context, dev uint32, inum uint64) (*fs.InodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mapMu.RLock()
	defer s.mapMu.RUnlock()

	rec, ok := s.inodes[inodeKey{dev: dev, inum: inum}]
	if !ok {
		return nil, &fs.FsError{Code: fs.ErrNotFound, Message: "inode not found"}
	}
	cp := *rec
	return &cp, nil
}

// PutInode buffers a record write.
func (s *MemoryStore) PutInode(txn fs.Txn, rec *fs.InodeRecord) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	cp := *rec
	t.ops = append(t.ops, func() {
		s.inodes[inodeKey{dev: cp.Dev, inum: cp.Inum}] = &cp
	})
	return nil
}

// DeleteInode buffers a record removal.
func (s *MemoryStore) DeleteInode(txn fs.Txn, dev uint32, inum uint64) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	t.ops = append(t.ops, func() {
		delete(s.inodes, inodeKey{dev: dev, inum: inum})
	})
	return nil
}

// SetTag buffers a tag write; last write wins.
func (s *MemoryStore) SetTag(txn fs.Txn, dev uint32, inum uint64, key, value string) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	t.ops = append(t.ops, func() {
		ik := inodeKey{dev: dev, inum: inum}
		if s.tags[ik] == nil {
			s.tags[ik] = make(map[string]string)
		}
		s.tags[ik][key] = value
	})
	return nil
}

// GetTag returns the committed value of one tag key.
func (s *MemoryStore) GetTag(ctx context.Context, dev uint32, inum uint64, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mapMu.RLock()
	defer s.mapMu.RUnlock()

	value, ok := s.tags[inodeKey{dev: dev, inum: inum}][key]
	if !ok {
		return "", &fs.FsError{Code: fs.ErrNotFound, Message: "tag not found", Path: key}
	}
	return value, nil
}

// DeleteTag buffers removal of one tag key, failing now if the key is not
// committed.
func (s *MemoryStore) DeleteTag(txn fs.Txn, dev uint32, inum uint64, key string) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	s.mapMu.RLock()
	_, ok := s.tags[inodeKey{dev: dev, inum: inum}][key]
	s.mapMu.RUnlock()
	if !ok {
		return &fs.FsError{Code: fs.ErrNotFound, Message: "tag not found", Path: key}
	}

	t.ops = append(t.ops, func() {
		delete(s.tags[inodeKey{dev: dev, inum: inum}], key)
	})
	return nil
}

// DeleteTags buffers removal of every tag on the inode.
func (s *MemoryStore) DeleteTags(txn fs.Txn, dev uint32, inum uint64) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	t.ops = append(t.ops, func() {
		delete(s.tags, inodeKey{dev: dev, inum: inum})
	})
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
