package fs

import (
	"context"

	"github.com/minikern/minikern/internal/logger"
)

// symlinkOf returns the locked inode's link target, if it is a symlink.
func symlinkOf(ip *Inode) (string, bool) {
	p, ok := ip.Payload.(SymlinkTarget)
	if !ok {
		return "", false
	}
	return p.Target, true
}

// followLinks resolves symlink chains at open time. ip must be locked and
// referenced; the result is the terminal non-symlink inode, locked and
// referenced. On error the reference and lock on ip are released.
//
// Each target is resolved relative to cwd, matching how the stored path was
// interpreted when the link was created from the same directory. A chain
// longer than MaxSymlinkHops, including any cycle, fails with ErrSymlinkLoop;
// a target that does not resolve fails with its resolution error (usually
// ErrNotFound).
func (fsys *FS) followLinks(ctx context.Context, txn Txn, cwd, ip *Inode) (*Inode, error) {
	for hop := 0; hop < MaxSymlinkHops; hop++ {
		target, ok := symlinkOf(ip)
		if !ok {
			return ip, nil
		}

		logger.Debug("Following symlink %d/%d -> %s (hop %d)", ip.Dev, ip.Inum, target, hop)

		// Release the link before resolving its target: resolution locks
		// directories, and holding a child while taking parents inverts
		// the parent-before-child order. The target string is already
		// copied out, so the inode is not needed past this point.
		fsys.unlockPut(ctx, txn, ip)

		next, err := fsys.namei(ctx, txn, cwd, target)
		if err != nil {
			return nil, err
		}

		ip = next
		if err := fsys.lockInode(ctx, ip); err != nil {
			fsys.putInode(ctx, txn, ip)
			return nil, err
		}
	}

	fsys.unlockPut(ctx, txn, ip)
	return nil, &FsError{Code: ErrSymlinkLoop, Message: "too many levels of symbolic links"}
}

// Readlink resolves path to a symlink and walks its chain, returning the
// target string stored in the last link of the chain. Unlike open-time
// following it never yields the terminal inode, only the final stored path.
//
// Failure modes are distinct so the syscall layer can report them apart:
// ErrNotSymlink when path names a non-symlink, ErrBrokenLink when a stored
// target fails to resolve, ErrSymlinkLoop past the hop bound.
func (fsys *FS) Readlink(ctx context.Context, cwd *Inode, path string) (string, error) {
	ip, err := fsys.namei(ctx, nil, cwd, path)
	if err != nil {
		return "", err
	}
	if err := fsys.lockInode(ctx, ip); err != nil {
		fsys.putInode(ctx, nil, ip)
		return "", err
	}

	target, ok := symlinkOf(ip)
	if !ok {
		fsys.unlockPut(ctx, nil, ip)
		return "", &FsError{Code: ErrNotSymlink, Message: "not a symbolic link", Path: path}
	}

	for hop := 0; hop < MaxSymlinkHops; hop++ {
		// Release the current link before resolving its target; resolution
		// locks directories (parent-before-child order), and a
		// self-referential link resolves back to this very inode.
		fsys.unlockPut(ctx, nil, ip)

		next, err := fsys.namei(ctx, nil, cwd, target)
		if err != nil {
			if IsCode(err, ErrNotFound) {
				return "", &FsError{Code: ErrBrokenLink, Message: "symbolic link target does not exist", Path: target}
			}
			return "", err
		}
		ip = next

		if err := fsys.lockInode(ctx, ip); err != nil {
			fsys.putInode(ctx, nil, ip)
			return "", err
		}

		nextTarget, isLink := symlinkOf(ip)
		if !isLink {
			// Terminal inode reached; the answer is the target text
			// stored in the last link, not the terminal inode.
			fsys.unlockPut(ctx, nil, ip)
			return target, nil
		}
		target = nextTarget
	}

	fsys.unlockPut(ctx, nil, ip)
	return "", &FsError{Code: ErrSymlinkLoop, Message: "too many levels of symbolic links", Path: path}
}
