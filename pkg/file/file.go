// Package file implements open-file objects and the per-process descriptor
// table: the sharing and lifetime layer between descriptors and inodes.
//
// A File is created by open or pipe, shared by dup and inheritance, and
// released by close. The File owns one inode reference (or one pipe end) and
// drops it when the last duplicate is closed; inode deallocation for
// zero-link files therefore happens on the final close, not at unlink time.
package file

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/minikern/minikern/pkg/fs"
)

// Kind distinguishes what a File is backed by.
type Kind int

const (
	// KindInode is a file, directory or device opened by path
	KindInode Kind = iota

	// KindPipe is one end of an in-memory pipe
	KindPipe
)

// File is one open-file object. Duplicates made by Dup share the object, and
// with it the read/write offset.
type File struct {
	kind     Kind
	readable bool
	writable bool

	// refs counts descriptors (and inherited copies) sharing this object
	refs atomic.Int64

	// inode-backed state
	fsys *fs.FS
	ip   *fs.Inode

	// mu guards off so concurrent reads each see a distinct range
	mu  sync.Mutex
	off uint64

	// pipe-backed state
	pipe     *Pipe
	writeEnd bool
}

// NewInodeFile wraps a referenced inode in an open-file object. The File
// takes ownership of the caller's inode reference.
func NewInodeFile(fsys *fs.FS, ip *fs.Inode, readable, writable bool) *File {
	f := &File{
		kind:     KindInode,
		readable: readable,
		writable: writable,
		fsys:     fsys,
		ip:       ip,
	}
	f.refs.Store(1)
	return f
}

// Dup adds one reference and returns f for convenience.
func (f *File) Dup() *File {
	f.refs.Add(1)
	return f
}

// Close drops one reference. The last close releases the underlying inode
// reference or pipe end.
func (f *File) Close(ctx context.Context) error {
	if f.refs.Add(-1) > 0 {
		return nil
	}

	switch f.kind {
	case KindPipe:
		f.pipe.closeEnd(f.writeEnd)
		return nil
	default:
		return f.fsys.Release(ctx, f.ip)
	}
}

// Readable reports whether the file was opened for reading.
func (f *File) Readable() bool { return f.readable }

// Writable reports whether the file was opened for writing.
func (f *File) Writable() bool { return f.writable }

// Inode returns the backing inode, or nil for pipes.
func (f *File) Inode() *fs.Inode {
	if f.kind != KindInode {
		return nil
	}
	return f.ip
}

// Read reads up to len(p) bytes at the current offset, advancing it by the
// count read. Pipe reads block until data or writer close.
func (f *File) Read(ctx context.Context, p []byte) (int, error) {
	if !f.readable {
		return 0, &fs.FsError{Code: fs.ErrBadArgument, Message: "file not open for reading"}
	}

	if f.kind == KindPipe {
		return f.pipe.read(ctx, p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.fsys.ReadInode(ctx, f.ip, p, f.off)
	if err != nil {
		return n, err
	}
	f.off += uint64(n)
	return n, nil
}

// Write writes p at the current offset, advancing it by the count written.
// Pipe writes block while the buffer is full and a reader remains.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	if !f.writable {
		return 0, &fs.FsError{Code: fs.ErrBadArgument, Message: "file not open for writing"}
	}

	if f.kind == KindPipe {
		return f.pipe.write(ctx, p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.fsys.WriteInode(ctx, f.ip, p, f.off)
	if err != nil {
		return n, err
	}
	f.off += uint64(n)
	return n, nil
}

// Stat returns the backing inode's metadata snapshot.
func (f *File) Stat(ctx context.Context) (fs.Stat, error) {
	if f.kind != KindInode {
		return fs.Stat{}, &fs.FsError{Code: fs.ErrBadArgument, Message: "cannot stat a pipe"}
	}
	return f.fsys.StatInode(ctx, f.ip)
}
