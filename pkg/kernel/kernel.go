// Package kernel implements the syscall surface over the filesystem: the
// trust boundary where untrusted descriptor numbers, paths and flags become
// validated operations on inodes and open-file objects.
//
// Every syscall returns the classical integer convention: a result on
// success, -1 on failure (readlink alone also uses -2 for a broken link).
// Rich errors are logged, not returned; programs above this boundary only
// ever see the sentinels.
package kernel

import (
	"context"
	"sync"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/file"
	"github.com/minikern/minikern/pkg/fs"
)

// Open mode flags.
const (
	ORdonly = 0x000
	OWronly = 0x001
	ORdwr   = 0x002
	OCreate = 0x200
)

// MaxExecArgs bounds the argv accepted by Exec.
const MaxExecArgs = 32

// MaxPathLen bounds the path strings accepted at the trust boundary.
const MaxPathLen = 512

// Loader runs program images. Program loading itself is outside this layer;
// the kernel only resolves the path, reads the image and hands it over.
type Loader interface {
	Exec(ctx context.Context, path string, argv []string, image []byte) error
}

// Config tunes per-process resources.
type Config struct {
	// MaxFDs is the descriptor table capacity per process
	MaxFDs int

	// Loader handles exec; nil makes every exec fail
	Loader Loader
}

// Kernel binds the filesystem to process state.
type Kernel struct {
	fsys   *fs.FS
	loader Loader
	maxFDs int
}

// New creates a kernel over fsys.
func New(fsys *fs.FS, cfg Config) *Kernel {
	maxFDs := cfg.MaxFDs
	if maxFDs <= 0 {
		maxFDs = file.DefaultTableSize
	}
	return &Kernel{
		fsys:   fsys,
		loader: cfg.Loader,
		maxFDs: maxFDs,
	}
}

// FS exposes the underlying filesystem for tooling built beside the syscall
// surface (shells listing directories decode entry streams themselves).
func (k *Kernel) FS() *fs.FS {
	return k.fsys
}

// Proc is one process's kernel-side state: its descriptor table and working
// directory.
type Proc struct {
	k   *Kernel
	fds *file.Table

	// mu guards cwd
	mu  sync.Mutex
	cwd *fs.Inode
}

// NewProc creates a process rooted at the filesystem root.
func (k *Kernel) NewProc() *Proc {
	return &Proc{
		k:   k,
		fds: file.NewTable(k.maxFDs),
		cwd: k.fsys.Root(),
	}
}

// Fork creates a child sharing the parent's open files (by duplication, the
// way descriptor inheritance works) and working directory.
func (p *Proc) Fork() *Proc {
	child := &Proc{
		k:   p.k,
		fds: file.NewTable(p.k.maxFDs),
	}

	for fd := 0; fd < p.k.maxFDs; fd++ {
		f, err := p.fds.Dup(fd)
		if err != nil {
			continue
		}
		if _, err := child.fds.Alloc(f); err != nil {
			// Table sizes match and the child's is empty below fd,
			// so allocation lands in the same slot and cannot fail.
			f.Close(context.Background())
		}
	}

	p.mu.Lock()
	child.cwd = p.k.fsys.Retain(p.cwd)
	p.mu.Unlock()
	return child
}

// Exit tears down the process: closes every descriptor and releases the
// working directory.
func (p *Proc) Exit(ctx context.Context) {
	if err := p.fds.CloseAll(ctx); err != nil {
		logger.Warn("Error closing descriptors at exit: %v", err)
	}

	p.mu.Lock()
	cwd := p.cwd
	p.cwd = nil
	p.mu.Unlock()

	if cwd != nil {
		if err := p.k.fsys.Release(ctx, cwd); err != nil {
			logger.Warn("Error releasing working directory at exit: %v", err)
		}
	}
}

// workingDir returns the current working directory handle without
// transferring ownership.
func (p *Proc) workingDir() *fs.Inode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cwd
}

// validPath rejects paths that must not cross the trust boundary.
func validPath(path string) bool {
	return path != "" && len(path) <= MaxPathLen
}
