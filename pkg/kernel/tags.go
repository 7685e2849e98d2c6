package kernel

import (
	"context"

	"github.com/minikern/minikern/internal/logger"
)

// Tag syscalls attach named string values to the inode behind a descriptor.
// The adapter resolves fd to its inode and supplies the transactional
// envelope; storage semantics (one value per key, last write wins) live in
// the metadata store.

// Ftag sets key to value on the inode behind fd.
func (p *Proc) Ftag(ctx context.Context, fd int, key, value string) int {
	if key == "" {
		return -1
	}

	f, err := p.fds.Get(fd)
	if err != nil {
		return -1
	}
	ip := f.Inode()
	if ip == nil {
		return -1
	}

	if err := p.k.fsys.SetTag(ctx, ip, key, value); err != nil {
		logger.Debug("ftag(%d, %s) failed: %v", fd, key, err)
		return -1
	}
	return 0
}

// Funtag removes key from the inode behind fd. Removing a key that was never
// set fails.
func (p *Proc) Funtag(ctx context.Context, fd int, key string) int {
	if key == "" {
		return -1
	}

	f, err := p.fds.Get(fd)
	if err != nil {
		return -1
	}
	ip := f.Inode()
	if ip == nil {
		return -1
	}

	if err := p.k.fsys.DeleteTag(ctx, ip, key); err != nil {
		logger.Debug("funtag(%d, %s) failed: %v", fd, key, err)
		return -1
	}
	return 0
}

// Gettag reads the value of key on the inode behind fd, returning the value
// and its length; -1 when the descriptor is bad or the key is absent.
func (p *Proc) Gettag(ctx context.Context, fd int, key string) (string, int) {
	if key == "" {
		return "", -1
	}

	f, err := p.fds.Get(fd)
	if err != nil {
		return "", -1
	}
	ip := f.Inode()
	if ip == nil {
		return "", -1
	}

	value, err := p.k.fsys.GetTag(ctx, ip, key)
	if err != nil {
		logger.Debug("gettag(%d, %s) failed: %v", fd, key, err)
		return "", -1
	}
	return value, len(value)
}
