// Package badger implements a persistent metadata store on BadgerDB.
//
// Each metadata transaction maps to one badger transaction, committed
// atomically, so a crash between operations never exposes a half-applied
// mutation. Transactions are additionally serialized by a store-level mutex:
// the layer above runs one metadata mutation at a time by design, and
// serializing here means badger's optimistic conflict detection never fires.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/fs"
)

// BadgerStore is a metadata store backed by a badger database directory.
type BadgerStore struct {
	db *badgerdb.DB

	// txnMu serializes transactions; held from Begin to Commit
	txnMu sync.Mutex
}

// NewBadgerStore opens (or creates) the database at path.
func NewBadgerStore(ctx context.Context, path string) (*BadgerStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil // badger's own logging is too chatty at default levels

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Opened badger metadata store at %s", path)
	return &BadgerStore{db: db}, nil
}

type badgerTxn struct {
	s    *BadgerStore
	txn  *badgerdb.Txn
	done bool
}

// Begin opens a transaction, blocking until it is the only one running.
func (s *BadgerStore) Begin(ctx context.Context) (fs.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.txnMu.Lock()
	return &badgerTxn{s: s, txn: s.db.NewTransaction(true)}, nil
}

// Commit commits the badger transaction and releases the serialization lock.
func (t *badgerTxn) Commit() error {
	if t.done {
		return &fs.FsError{Code: fs.ErrInternal, Message: "transaction committed twice"}
	}
	t.done = true

	err := t.txn.Commit()
	t.s.txnMu.Unlock()
	if err != nil {
		return &fs.FsError{Code: fs.ErrIO, Message: "failed to commit metadata transaction: " + err.Error()}
	}
	return nil
}

// own checks that txn belongs to this store and is still open.
func (s *BadgerStore) own(txn fs.Txn) (*badgerTxn, error) {
	t, ok := txn.(*badgerTxn)
	if !ok || t.s != s {
		return nil, &fs.FsError{Code: fs.ErrInternal, Message: "foreign transaction"}
	}
	if t.done {
		return nil, &fs.FsError{Code: fs.ErrInternal, Message: "transaction already committed"}
	}
	return t, nil
}

// AllocInum reads, bumps and writes back the per-device counter inside the
// transaction; badger transactions read their own writes, so repeated
// allocations in one transaction stay distinct.
func (s *BadgerStore) AllocInum(txn fs.Txn, dev uint32) (uint64, error) {
	t, err := s.own(txn)
	if err != nil {
		return 0, err
	}

	next := fs.RootInum
	item, err := t.txn.Get(seqKey(dev))
	if err == nil {
		err = item.Value(func(val []byte) error {
			parsed, perr := strconv.ParseUint(string(val), 10, 64)
			if perr != nil {
				return perr
			}
			next = parsed
			return nil
		})
		if err != nil {
			return 0, &fs.FsError{Code: fs.ErrInternal, Message: "corrupt inode allocator state"}
		}
	} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, &fs.FsError{Code: fs.ErrIO, Message: "failed to read inode allocator: " + err.Error()}
	}

	if err := t.txn.Set(seqKey(dev), []byte(strconv.FormatUint(next+1, 10))); err != nil {
		return 0, &fs.FsError{Code: fs.ErrIO, Message: "failed to advance inode allocator: " + err.Error()}
	}
	return next, nil
}

// GetInode loads and decodes the record for (dev, inum).
func (s *BadgerStore) GetInode(ctx context.Context, dev uint32, inum uint64) (*fs.InodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec fs.InodeRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(inodeKey(dev, inum))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, &fs.FsError{Code: fs.ErrNotFound, Message: "inode not found"}
	}
	if err != nil {
		return nil, &fs.FsError{Code: fs.ErrIO, Message: "failed to load inode record: " + err.Error()}
	}
	return &rec, nil
}

// PutInode encodes and writes the record.
func (s *BadgerStore) PutInode(txn fs.Txn, rec *fs.InodeRecord) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return &fs.FsError{Code: fs.ErrInternal, Message: "failed to encode inode record: " + err.Error()}
	}
	if err := t.txn.Set(inodeKey(rec.Dev, rec.Inum), data); err != nil {
		return &fs.FsError{Code: fs.ErrIO, Message: "failed to write inode record: " + err.Error()}
	}
	return nil
}

// DeleteInode removes the record; missing records are ignored.
func (s *BadgerStore) DeleteInode(txn fs.Txn, dev uint32, inum uint64) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	if err := t.txn.Delete(inodeKey(dev, inum)); err != nil {
		return &fs.FsError{Code: fs.ErrIO, Message: "failed to delete inode record: " + err.Error()}
	}
	return nil
}

// SetTag writes one tag value; last write wins.
func (s *BadgerStore) SetTag(txn fs.Txn, dev uint32, inum uint64, key, value string) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	if err := t.txn.Set(tagKey(dev, inum, key), []byte(value)); err != nil {
		return &fs.FsError{Code: fs.ErrIO, Message: "failed to write tag: " + err.Error()}
	}
	return nil
}

// GetTag reads one committed tag value.
func (s *BadgerStore) GetTag(ctx context.Context, dev uint32, inum uint64, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var value string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(tagKey(dev, inum, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", &fs.FsError{Code: fs.ErrNotFound, Message: "tag not found", Path: key}
	}
	if err != nil {
		return "", &fs.FsError{Code: fs.ErrIO, Message: "failed to read tag: " + err.Error()}
	}
	return value, nil
}

// DeleteTag removes one tag key, failing with ErrNotFound if absent.
func (s *BadgerStore) DeleteTag(txn fs.Txn, dev uint32, inum uint64, key string) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	if _, err := t.txn.Get(tagKey(dev, inum, key)); err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return &fs.FsError{Code: fs.ErrNotFound, Message: "tag not found", Path: key}
		}
		return &fs.FsError{Code: fs.ErrIO, Message: "failed to read tag: " + err.Error()}
	}
	if err := t.txn.Delete(tagKey(dev, inum, key)); err != nil {
		return &fs.FsError{Code: fs.ErrIO, Message: "failed to delete tag: " + err.Error()}
	}
	return nil
}

// DeleteTags drops every tag of the inode with one prefix scan.
func (s *BadgerStore) DeleteTags(txn fs.Txn, dev uint32, inum uint64) error {
	t, err := s.own(txn)
	if err != nil {
		return err
	}

	opts := badgerdb.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = tagPrefix(dev, inum)

	it := t.txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	for _, k := range keys {
		if err := t.txn.Delete(k); err != nil {
			return &fs.FsError{Code: fs.ErrIO, Message: "failed to delete tag: " + err.Error()}
		}
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
