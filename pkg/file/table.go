package file

import (
	"context"
	"sync"

	"github.com/minikern/minikern/pkg/fs"
)

// DefaultTableSize is the descriptor capacity of a new process unless
// configured otherwise.
const DefaultTableSize = 16

// Table is a per-process descriptor table: a fixed-size array of open-file
// slots indexed by descriptor number.
type Table struct {
	mu    sync.Mutex
	slots []*File
}

// NewTable creates a table with the given capacity.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultTableSize
	}
	return &Table{slots: make([]*File, capacity)}
}

// Alloc installs f in the lowest free slot and returns its descriptor
// number. Descriptor numbers are always the lowest available, so programs
// can rely on open-after-close reusing the freed number.
func (t *Table) Alloc(f *File) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, slot := range t.slots {
		if slot == nil {
			t.slots[fd] = f
			return fd, nil
		}
	}
	return -1, &fs.FsError{Code: fs.ErrNoSlot, Message: "descriptor table full"}
}

// Get returns the file at fd.
func (t *Table) Get(fd int) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, &fs.FsError{Code: fs.ErrBadArgument, Message: "bad file descriptor"}
	}
	return t.slots[fd], nil
}

// Dup returns the file at fd after taking an additional reference to it.
// The reference is taken while the slot still holds its own, under the table
// lock, so a concurrent close of fd cannot drop the object's count to zero
// in between.
func (t *Table) Dup(fd int) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, &fs.FsError{Code: fs.ErrBadArgument, Message: "bad file descriptor"}
	}
	f := t.slots[fd]
	f.Dup()
	return f, nil
}

// Clear empties the slot at fd and returns the file that was there. The
// caller is responsible for closing it; clearing and closing are separate so
// the table lock is never held across a close that may block.
func (t *Table) Clear(fd int) (*File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, &fs.FsError{Code: fs.ErrBadArgument, Message: "bad file descriptor"}
	}
	f := t.slots[fd]
	t.slots[fd] = nil
	return f, nil
}

// CloseAll clears every slot and closes the files; used at process teardown.
func (t *Table) CloseAll(ctx context.Context) error {
	t.mu.Lock()
	files := make([]*File, 0, len(t.slots))
	for fd, f := range t.slots {
		if f != nil {
			files = append(files, f)
			t.slots[fd] = nil
		}
	}
	t.mu.Unlock()

	var firstErr error
	for _, f := range files {
		if err := f.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
