// Package fs implements a content store backed by the local filesystem.
//
// Each stream is one file under the configured base directory, named by its
// content ID. This backend gives persistence without any external service
// and is the default for single-machine use.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/minikern/minikern/pkg/content"
)

// FSStore stores one file per stream under basePath.
//
// Thread Safety: the OS serializes individual pread/pwrite calls; ordering
// of operations on a single stream is the caller's responsibility (the
// filesystem layer holds the owning inode's lock across them).
type FSStore struct {
	basePath string
}

// NewFSStore creates the base directory if needed and returns the store.
func NewFSStore(ctx context.Context, basePath string) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}

	return &FSStore{basePath: basePath}, nil
}

// path maps a content ID to its backing file.
func (s *FSStore) path(id content.ID) string {
	return filepath.Join(s.basePath, string(id))
}

// ReadAt reads up to len(p) bytes at off. Missing streams read as empty.
func (s *FSStore) ReadAt(ctx context.Context, id content.ID, p []byte, off uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.Open(s.path(id))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open content %s: %w", id, err)
	}
	defer f.Close()

	n, err := f.ReadAt(p, int64(off))
	if err == io.EOF {
		err = nil
	}
	if err != nil {
		return n, fmt.Errorf("failed to read content %s: %w", id, err)
	}
	return n, nil
}

// WriteAt writes p at off, creating the backing file on first write.
// The OS zero-fills any gap between the old end and off.
func (s *FSStore) WriteAt(ctx context.Context, id content.ID, p []byte, off uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open content %s for write: %w", id, err)
	}
	defer f.Close()

	n, err := f.WriteAt(p, int64(off))
	if err != nil {
		return n, fmt.Errorf("failed to write content %s: %w", id, err)
	}
	return n, nil
}

// Size returns the backing file's length; 0 if it does not exist.
func (s *FSStore) Size(ctx context.Context, id content.ID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	info, err := os.Stat(s.path(id))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to stat content %s: %w", id, err)
	}
	return uint64(info.Size()), nil
}

// Truncate sets the backing file's length, creating it if needed.
func (s *FSStore) Truncate(ctx context.Context, id content.ID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open content %s for truncate: %w", id, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("failed to truncate content %s: %w", id, err)
	}
	return nil
}

// Delete removes the backing file. Missing files are ignored.
func (s *FSStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete content %s: %w", id, err)
	}
	return nil
}

// Close is a no-op; files are opened per operation.
func (s *FSStore) Close() error {
	return nil
}
