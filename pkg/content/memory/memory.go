// Package memory implements an in-memory content store.
package memory

import (
	"context"
	"sync"

	"github.com/minikern/minikern/pkg/content"
)

// MemoryStore keeps every stream in a map of byte slices.
//
// It is the backend used by tests and by throwaway shells: fast, volatile,
// and bounded only by available memory. All operations copy data in and out
// so callers can reuse their buffers freely.
//
// Thread Safety: protected by a sync.RWMutex; concurrent readers are
// allowed, writes are exclusive.
type MemoryStore struct {
	// data holds stream bytes keyed by content ID
	data map[content.ID][]byte

	// mu protects data
	mu sync.RWMutex
}

// NewMemoryStore creates an empty in-memory content store.
func NewMemoryStore(ctx context.Context) (*MemoryStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryStore{
		data: make(map[content.ID][]byte),
	}, nil
}

// ReadAt copies up to len(p) bytes of the stream starting at off into p.
// A missing stream reads as empty.
func (s *MemoryStore) ReadAt(ctx context.Context, id content.ID, p []byte, off uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.data[id]
	if off >= uint64(len(buf)) {
		return 0, nil
	}

	n := copy(p, buf[off:])
	return n, nil
}

// WriteAt writes p at off, growing the stream (zero-padded) as needed.
func (s *MemoryStore) WriteAt(ctx context.Context, id content.ID, p []byte, off uint64) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.data[id]
	end := off + uint64(len(p))
	if end > uint64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}

	copy(buf[off:], p)
	s.data[id] = buf
	return len(p), nil
}

// Size returns the stream length; 0 for streams never written.
func (s *MemoryStore) Size(ctx context.Context, id content.ID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.data[id])), nil
}

// Truncate sets the stream length, zero-padding on growth.
func (s *MemoryStore) Truncate(ctx context.Context, id content.ID, size uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.data[id]
	switch {
	case size < uint64(len(buf)):
		s.data[id] = buf[:size:size]
	case size > uint64(len(buf)):
		grown := make([]byte, size)
		copy(grown, buf)
		s.data[id] = grown
	}

	return nil
}

// Delete removes the stream. Missing streams are ignored.
func (s *MemoryStore) Delete(ctx context.Context, id content.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error {
	return nil
}
