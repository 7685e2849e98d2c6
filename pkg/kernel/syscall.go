package kernel

import (
	"context"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/file"
	"github.com/minikern/minikern/pkg/fs"
)

// Dup duplicates fd into the lowest free descriptor slot. The extra
// reference is taken before the new slot is filled, so a concurrent close of
// either descriptor can never release the file while both slots are live.
func (p *Proc) Dup(ctx context.Context, fd int) int {
	f, err := p.fds.Dup(fd)
	if err != nil {
		return -1
	}

	newFD, err := p.fds.Alloc(f)
	if err != nil {
		f.Close(ctx)
		return -1
	}
	return newFD
}

// Read reads up to len(buf) bytes from fd, returning the count read.
func (p *Proc) Read(ctx context.Context, fd int, buf []byte) int {
	f, err := p.fds.Get(fd)
	if err != nil {
		return -1
	}

	n, err := f.Read(ctx, buf)
	if err != nil {
		logger.Debug("read(%d) failed: %v", fd, err)
		return -1
	}
	return n
}

// Write writes buf to fd, returning the count written.
func (p *Proc) Write(ctx context.Context, fd int, buf []byte) int {
	f, err := p.fds.Get(fd)
	if err != nil {
		return -1
	}

	n, err := f.Write(ctx, buf)
	if err != nil {
		logger.Debug("write(%d) failed: %v", fd, err)
		return -1
	}
	return n
}

// Close releases fd. The slot is freed even if releasing the underlying
// object reports an error.
func (p *Proc) Close(ctx context.Context, fd int) int {
	f, err := p.fds.Clear(fd)
	if err != nil {
		return -1
	}

	if err := f.Close(ctx); err != nil {
		logger.Warn("close(%d): error releasing file: %v", fd, err)
	}
	return 0
}

// Fstat returns the metadata of the inode behind fd.
func (p *Proc) Fstat(ctx context.Context, fd int) (fs.Stat, int) {
	f, err := p.fds.Get(fd)
	if err != nil {
		return fs.Stat{}, -1
	}

	st, err := f.Stat(ctx)
	if err != nil {
		return fs.Stat{}, -1
	}
	return st, 0
}

// Link creates a hard link at newpath to the file at oldpath.
func (p *Proc) Link(ctx context.Context, oldpath, newpath string) int {
	if !validPath(oldpath) || !validPath(newpath) {
		return -1
	}

	if err := p.k.fsys.Link(ctx, p.workingDir(), oldpath, newpath); err != nil {
		logger.Debug("link(%s, %s) failed: %v", oldpath, newpath, err)
		return -1
	}
	return 0
}

// Unlink removes the directory entry at path.
func (p *Proc) Unlink(ctx context.Context, path string) int {
	if !validPath(path) {
		return -1
	}

	if err := p.k.fsys.Unlink(ctx, p.workingDir(), path); err != nil {
		logger.Debug("unlink(%s) failed: %v", path, err)
		return -1
	}
	return 0
}

// Open opens path with the given mode flags, returning a new descriptor.
// Nothing is allocated or left referenced when resolution fails.
func (p *Proc) Open(ctx context.Context, path string, mode int) int {
	if !validPath(path) {
		return -1
	}

	wantWrite := mode&OWronly != 0 || mode&ORdwr != 0
	ip, err := p.k.fsys.OpenInode(ctx, p.workingDir(), path, mode&OCreate != 0, wantWrite)
	if err != nil {
		logger.Debug("open(%s, %#x) failed: %v", path, mode, err)
		return -1
	}

	f := file.NewInodeFile(p.k.fsys, ip, mode&OWronly == 0, wantWrite)
	fd, err := p.fds.Alloc(f)
	if err != nil {
		f.Close(ctx)
		return -1
	}
	return fd
}

// Mkdir creates a directory at path.
func (p *Proc) Mkdir(ctx context.Context, path string) int {
	if !validPath(path) {
		return -1
	}

	if err := p.k.fsys.Mkdir(ctx, p.workingDir(), path); err != nil {
		logger.Debug("mkdir(%s) failed: %v", path, err)
		return -1
	}
	return 0
}

// Mknod creates a device node at path.
func (p *Proc) Mknod(ctx context.Context, path string, major, minor uint32) int {
	if !validPath(path) {
		return -1
	}

	if err := p.k.fsys.Mknod(ctx, p.workingDir(), path, major, minor); err != nil {
		logger.Debug("mknod(%s, %d, %d) failed: %v", path, major, minor, err)
		return -1
	}
	return 0
}

// Chdir changes the working directory to path, following symlinks. The old
// working directory is released only after the new one is installed.
func (p *Proc) Chdir(ctx context.Context, path string) int {
	if !validPath(path) {
		return -1
	}

	ip, err := p.k.fsys.ChdirInode(ctx, p.workingDir(), path)
	if err != nil {
		logger.Debug("chdir(%s) failed: %v", path, err)
		return -1
	}

	p.mu.Lock()
	old := p.cwd
	p.cwd = ip
	p.mu.Unlock()

	if err := p.k.fsys.Release(ctx, old); err != nil {
		logger.Warn("chdir(%s): error releasing old working directory: %v", path, err)
	}
	return 0
}

// Exec resolves path, reads the program image and hands it to the loader.
// It returns only on failure.
func (p *Proc) Exec(ctx context.Context, path string, argv []string) int {
	if !validPath(path) || len(argv) > MaxExecArgs {
		return -1
	}

	ip, err := p.k.fsys.OpenInode(ctx, p.workingDir(), path, false, false)
	if err != nil {
		logger.Debug("exec(%s) failed: %v", path, err)
		return -1
	}

	st, err := p.k.fsys.StatInode(ctx, ip)
	if err != nil || st.Type != fs.TypeFile {
		p.k.fsys.Release(ctx, ip)
		return -1
	}

	image := make([]byte, st.Size)
	n, err := p.k.fsys.ReadInode(ctx, ip, image, 0)
	p.k.fsys.Release(ctx, ip)
	if err != nil || uint64(n) != st.Size {
		logger.Debug("exec(%s): failed to read image: %v", path, err)
		return -1
	}

	if p.k.loader == nil {
		return -1
	}
	if err := p.k.loader.Exec(ctx, path, argv, image); err != nil {
		logger.Debug("exec(%s) loader failed: %v", path, err)
		return -1
	}
	return 0
}

// Pipe allocates a connected pipe and two descriptors. Slot allocation is
// all-or-nothing: if the second slot cannot be allocated, the first is freed
// and both ends are released.
func (p *Proc) Pipe(ctx context.Context) (int, int) {
	r, w := file.NewPipePair()

	rfd, err := p.fds.Alloc(r)
	if err != nil {
		r.Close(ctx)
		w.Close(ctx)
		return -1, -1
	}

	wfd, err := p.fds.Alloc(w)
	if err != nil {
		if f, cerr := p.fds.Clear(rfd); cerr == nil {
			f.Close(ctx)
		}
		w.Close(ctx)
		return -1, -1
	}
	return rfd, wfd
}

// Symlink creates a symbolic link at path storing target. No descriptor is
// returned; the link is a namespace object, not an open file.
func (p *Proc) Symlink(ctx context.Context, target, path string) int {
	if !validPath(target) || !validPath(path) {
		return -1
	}

	if err := p.k.fsys.Symlink(ctx, p.workingDir(), target, path); err != nil {
		logger.Debug("symlink(%s, %s) failed: %v", target, path, err)
		return -1
	}
	return 0
}

// Readlink resolves the symlink chain at path and returns the target text
// stored in its last link, with the text's length as the status. The status
// is -1 when path does not name a symlink and -2 when the chain is broken.
func (p *Proc) Readlink(ctx context.Context, path string) (string, int) {
	if !validPath(path) {
		return "", -1
	}

	target, err := p.k.fsys.Readlink(ctx, p.workingDir(), path)
	if err != nil {
		logger.Debug("readlink(%s) failed: %v", path, err)
		if fs.IsCode(err, fs.ErrBrokenLink) {
			return "", -2
		}
		return "", -1
	}
	return target, len(target)
}
