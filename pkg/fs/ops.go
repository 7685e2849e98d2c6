package fs

import (
	"context"

	"github.com/minikern/minikern/internal/logger"
	"github.com/minikern/minikern/pkg/content"
)

// commit pairs with Begin on every exit path. Use with a named error return:
//
//	defer fsys.commit(txn, &err)
func (fsys *FS) commit(txn Txn, err *error) {
	if cerr := txn.Commit(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// create allocates and links a new inode of the given type at path, inside
// the caller's transaction. It returns the new inode locked and referenced.
//
// If an entry already exists at path, create succeeds idempotently when both
// the requested type and the existing inode are regular files, returning the
// existing inode; any other combination fails with ErrExists.
func (fsys *FS) create(ctx context.Context, txn Txn, cwd *Inode, path string, typ InodeType, major, minor uint32) (*Inode, error) {
	dp, name, err := fsys.nameiParent(ctx, txn, cwd, path)
	if err != nil {
		return nil, err
	}
	if err := fsys.lockInode(ctx, dp); err != nil {
		fsys.putInode(ctx, txn, dp)
		return nil, err
	}
	if dp.Type != TypeDir {
		fsys.unlockPut(ctx, txn, dp)
		return nil, &FsError{Code: ErrNotDirectory, Message: "parent is not a directory", Path: path}
	}

	// Step 1: Existing entry?
	if de, _, err := fsys.dirLookup(dp, name); err == nil {
		dev := dp.Dev
		fsys.unlockPut(ctx, txn, dp)

		ip := fsys.getInode(dev, de.Inum)
		if err := fsys.lockInode(ctx, ip); err != nil {
			fsys.putInode(ctx, txn, ip)
			return nil, err
		}
		if typ == TypeFile && ip.Type == TypeFile {
			return ip, nil
		}
		fsys.unlockPut(ctx, txn, ip)
		return nil, &FsError{Code: ErrExists, Message: "path already exists", Path: path}
	} else if !IsCode(err, ErrNotFound) {
		fsys.unlockPut(ctx, txn, dp)
		return nil, err
	}

	// Step 2: Allocate the inode
	inum, err := fsys.store.AllocInum(txn, dp.Dev)
	if err != nil {
		fsys.unlockPut(ctx, txn, dp)
		return nil, err
	}

	logger.Debug("Creating %s inode %d/%d at %s", typ, dp.Dev, inum, path)

	// The new inode is invisible until dirLink below, so taking its lock
	// while holding dp cannot block.
	ip := fsys.getInode(dp.Dev, inum)
	ip.mu.Lock()

	ip.Type = typ
	ip.Nlink = 1
	ip.Size = 0
	switch typ {
	case TypeDir:
		ip.Payload = DirBlocks{}
	case TypeDevice:
		ip.Payload = DeviceNode{Major: major, Minor: minor}
	default:
		ip.Payload = FileBlocks{Content: string(content.NewID(ip.Dev, ip.Inum))}
	}
	ip.valid = true

	if err := fsys.updateInode(txn, ip); err != nil {
		fsys.unlockPut(ctx, txn, ip)
		fsys.unlockPut(ctx, txn, dp)
		return nil, err
	}

	// abortCreate unwinds a half-created inode inside the same transaction:
	// the child was never reachable from the namespace, so its record is
	// dropped and the handle invalidated before both references go away.
	abortCreate := func() {
		if derr := fsys.store.DeleteInode(txn, ip.Dev, ip.Inum); derr != nil {
			logger.Error("Failed to drop half-created inode %d/%d: %v", ip.Dev, ip.Inum, derr)
		}
		ip.valid = false
		fsys.unlockPut(ctx, txn, ip)
		fsys.unlockPut(ctx, txn, dp)
	}

	// Step 3: Directory self-entries; "." does not count toward the new
	// directory's own link count, ".." counts toward the parent's. The
	// parent count is raised only after the seeding succeeded, so the
	// failure paths have nothing of the parent's to compensate yet.
	if typ == TypeDir {
		if err := fsys.dirLink(txn, ip, ".", ip.Inum); err != nil {
			abortCreate()
			return nil, &FsError{Code: ErrInternal, Message: "failed to seed directory self-entries", Path: path}
		}
		if err := fsys.dirLink(txn, ip, "..", dp.Inum); err != nil {
			abortCreate()
			return nil, &FsError{Code: ErrInternal, Message: "failed to seed directory self-entries", Path: path}
		}
		dp.Nlink++
		if err := fsys.updateInode(txn, dp); err != nil {
			dp.Nlink--
			abortCreate()
			return nil, err
		}
	}

	// Step 4: Link into the parent, compensating the raised parent count
	// if the entry cannot be written
	if err := fsys.dirLink(txn, dp, name, ip.Inum); err != nil {
		if typ == TypeDir {
			dp.Nlink--
			if uerr := fsys.updateInode(txn, dp); uerr != nil {
				logger.Error("Failed to roll back parent link count on %d/%d: %v", dp.Dev, dp.Inum, uerr)
			}
		}
		abortCreate()
		return nil, &FsError{Code: ErrInternal, Message: "failed to link new inode into parent", Path: path}
	}

	fsys.unlockPut(ctx, txn, dp)
	return ip, nil
}

// createTxn runs create in its own transaction. The returned inode stays
// locked across the commit; the lock orders concurrent opens, the commit
// makes the allocation durable.
func (fsys *FS) createTxn(ctx context.Context, cwd *Inode, path string, typ InodeType, major, minor uint32) (ip *Inode, err error) {
	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer fsys.commit(txn, &err)

	return fsys.create(ctx, txn, cwd, path, typ, major, minor)
}

// Mkdir creates a directory at path.
func (fsys *FS) Mkdir(ctx context.Context, cwd *Inode, path string) (err error) {
	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer fsys.commit(txn, &err)

	ip, err := fsys.create(ctx, txn, cwd, path, TypeDir, 0, 0)
	if err != nil {
		return err
	}
	return fsys.unlockPut(ctx, txn, ip)
}

// Mknod creates a device inode at path.
func (fsys *FS) Mknod(ctx context.Context, cwd *Inode, path string, major, minor uint32) (err error) {
	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer fsys.commit(txn, &err)

	ip, err := fsys.create(ctx, txn, cwd, path, TypeDevice, major, minor)
	if err != nil {
		return err
	}
	return fsys.unlockPut(ctx, txn, ip)
}

// Symlink creates a symbolic link at path storing target. The target is not
// resolved or validated against the namespace; dangling links are legal and
// surface only when followed.
func (fsys *FS) Symlink(ctx context.Context, cwd *Inode, target, path string) (err error) {
	if len(target) > SymlinkTargetMax {
		return &FsError{Code: ErrTargetTooLong, Message: "symlink target too long", Path: target}
	}
	if target == "" {
		return &FsError{Code: ErrBadArgument, Message: "empty symlink target", Path: path}
	}

	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer fsys.commit(txn, &err)

	ip, err := fsys.create(ctx, txn, cwd, path, TypeFile, 0, 0)
	if err != nil {
		return err
	}

	// A plain file converted in place surrenders its byte stream; the
	// target text lives in the payload, not the content store.
	if cid := ip.contentID(); cid != "" {
		if terr := fsys.data.Truncate(ctx, cid, 0); terr != nil {
			fsys.unlockPut(ctx, txn, ip)
			return &FsError{Code: ErrIO, Message: "failed to truncate stream of converted inode", Path: path}
		}
		if derr := fsys.data.Delete(ctx, cid); derr != nil {
			fsys.unlockPut(ctx, txn, ip)
			return &FsError{Code: ErrIO, Message: "failed to delete stream of converted inode", Path: path}
		}
	}

	ip.Payload = SymlinkTarget{Target: target}
	ip.Size = 0
	if err := fsys.updateInode(txn, ip); err != nil {
		fsys.unlockPut(ctx, txn, ip)
		return err
	}
	return fsys.unlockPut(ctx, txn, ip)
}

// Link creates a hard link at newpath to the inode named by oldpath.
//
// The link count is raised and persisted before the new entry is written.
// If linking into the parent then fails, the count is compensated back down
// inside the same transaction, so no committed state ever shows the raised
// count without the entry.
func (fsys *FS) Link(ctx context.Context, cwd *Inode, oldpath, newpath string) (err error) {
	ip, err := fsys.namei(ctx, nil, cwd, oldpath)
	if err != nil {
		return err
	}

	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		fsys.putInode(ctx, nil, ip)
		return err
	}
	defer fsys.commit(txn, &err)

	if err := fsys.lockInode(ctx, ip); err != nil {
		fsys.putInode(ctx, txn, ip)
		return err
	}
	if ip.Type == TypeDir {
		fsys.unlockPut(ctx, txn, ip)
		return &FsError{Code: ErrIsDirectory, Message: "cannot hard-link a directory", Path: oldpath}
	}

	ip.Nlink++
	if err := fsys.updateInode(txn, ip); err != nil {
		ip.Nlink--
		fsys.unlockPut(ctx, txn, ip)
		return err
	}
	fsys.unlockInode(ip)

	// Compensation: undo the raised link count if the entry cannot be
	// written. Runs inside the same transaction as the raise.
	rollback := func() {
		ip.mu.Lock()
		ip.Nlink--
		if uerr := fsys.updateInode(txn, ip); uerr != nil {
			logger.Error("Failed to roll back link count on %d/%d: %v", ip.Dev, ip.Inum, uerr)
		}
		fsys.unlockPut(ctx, txn, ip)
	}

	dp, name, err := fsys.nameiParent(ctx, txn, cwd, newpath)
	if err != nil {
		rollback()
		return err
	}
	if err := fsys.lockInode(ctx, dp); err != nil {
		fsys.putInode(ctx, txn, dp)
		rollback()
		return err
	}
	if dp.Type != TypeDir {
		fsys.unlockPut(ctx, txn, dp)
		rollback()
		return &FsError{Code: ErrNotDirectory, Message: "link parent is not a directory", Path: newpath}
	}
	if dp.Dev != ip.Dev {
		fsys.unlockPut(ctx, txn, dp)
		rollback()
		return &FsError{Code: ErrCrossDevice, Message: "cannot hard-link across devices", Path: newpath}
	}
	if err := fsys.dirLink(txn, dp, name, ip.Inum); err != nil {
		fsys.unlockPut(ctx, txn, dp)
		rollback()
		return err
	}

	fsys.unlockPut(ctx, txn, dp)
	return fsys.putInode(ctx, txn, ip)
}

// Unlink removes the directory entry at path and drops the target's link
// count. A file whose count reaches zero is deallocated once the last open
// reference to it is released. Directories must be empty; "." and ".." are
// never unlinkable.
func (fsys *FS) Unlink(ctx context.Context, cwd *Inode, path string) (err error) {
	dp, name, err := fsys.nameiParent(ctx, nil, cwd, path)
	if err != nil {
		return err
	}

	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		fsys.putInode(ctx, nil, dp)
		return err
	}
	defer fsys.commit(txn, &err)

	if err := fsys.lockInode(ctx, dp); err != nil {
		fsys.putInode(ctx, txn, dp)
		return err
	}
	if dp.Type != TypeDir {
		fsys.unlockPut(ctx, txn, dp)
		return &FsError{Code: ErrNotDirectory, Message: "unlink parent is not a directory", Path: path}
	}

	if name == "." || name == ".." {
		fsys.unlockPut(ctx, txn, dp)
		return &FsError{Code: ErrBadArgument, Message: "cannot unlink directory self-entries", Path: path}
	}

	de, off, err := fsys.dirLookup(dp, name)
	if err != nil {
		fsys.unlockPut(ctx, txn, dp)
		return err
	}

	ip := fsys.getInode(dp.Dev, de.Inum)
	if err := fsys.lockInode(ctx, ip); err != nil {
		fsys.putInode(ctx, txn, ip)
		fsys.unlockPut(ctx, txn, dp)
		return err
	}

	if ip.Nlink < 1 {
		fsys.unlockPut(ctx, txn, ip)
		fsys.unlockPut(ctx, txn, dp)
		return &FsError{Code: ErrInternal, Message: "unlink target has no links", Path: path}
	}
	if ip.Type == TypeDir && !fsys.isDirEmpty(ip) {
		fsys.unlockPut(ctx, txn, ip)
		fsys.unlockPut(ctx, txn, dp)
		return &FsError{Code: ErrNotEmpty, Message: "directory not empty", Path: path}
	}

	if err := fsys.zeroDirent(txn, dp, off); err != nil {
		fsys.unlockPut(ctx, txn, ip)
		fsys.unlockPut(ctx, txn, dp)
		return &FsError{Code: ErrInternal, Message: "failed to clear directory entry", Path: path}
	}

	// The removed child's ".." no longer counts toward the parent
	if ip.Type == TypeDir {
		dp.Nlink--
		if err := fsys.updateInode(txn, dp); err != nil {
			fsys.unlockPut(ctx, txn, ip)
			fsys.unlockPut(ctx, txn, dp)
			return err
		}
	}
	fsys.unlockPut(ctx, txn, dp)

	ip.Nlink--
	if err := fsys.updateInode(txn, ip); err != nil {
		fsys.unlockPut(ctx, txn, ip)
		return err
	}
	return fsys.unlockPut(ctx, txn, ip)
}

// OpenInode resolves path for open, creating a regular file first when
// create is set (idempotently if one already exists). Symlink chains are
// followed to the terminal inode. The result is referenced and unlocked.
//
// Directories may only be opened read-only; the check runs before symlink
// following, so opening a symlink for writing is allowed even when it
// resolves to a directory, matching the historical behavior.
func (fsys *FS) OpenInode(ctx context.Context, cwd *Inode, path string, create, wantWrite bool) (*Inode, error) {
	var ip *Inode
	if create {
		var err error
		ip, err = fsys.createTxn(ctx, cwd, path, TypeFile, 0, 0)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		ip, err = fsys.namei(ctx, nil, cwd, path)
		if err != nil {
			return nil, err
		}
		if err := fsys.lockInode(ctx, ip); err != nil {
			fsys.putInode(ctx, nil, ip)
			return nil, err
		}
		if ip.Type == TypeDir && wantWrite {
			fsys.unlockPut(ctx, nil, ip)
			return nil, &FsError{Code: ErrIsDirectory, Message: "directories are read-only", Path: path}
		}
	}

	ip, err := fsys.followLinks(ctx, nil, cwd, ip)
	if err != nil {
		return nil, err
	}

	fsys.unlockInode(ip)
	return ip, nil
}

// ChdirInode resolves path to a directory for use as a working directory,
// following symlinks transparently. The result is referenced and unlocked;
// the caller releases its previous working directory itself.
func (fsys *FS) ChdirInode(ctx context.Context, cwd *Inode, path string) (*Inode, error) {
	ip, err := fsys.namei(ctx, nil, cwd, path)
	if err != nil {
		return nil, err
	}
	if err := fsys.lockInode(ctx, ip); err != nil {
		fsys.putInode(ctx, nil, ip)
		return nil, err
	}

	ip, err = fsys.followLinks(ctx, nil, cwd, ip)
	if err != nil {
		return nil, err
	}
	if ip.Type != TypeDir {
		fsys.unlockPut(ctx, nil, ip)
		return nil, &FsError{Code: ErrNotDirectory, Message: "not a directory", Path: path}
	}

	fsys.unlockInode(ip)
	return ip, nil
}

// SetTag sets one tag key on ip, replacing any previous value.
func (fsys *FS) SetTag(ctx context.Context, ip *Inode, key, value string) (err error) {
	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer fsys.commit(txn, &err)

	return fsys.store.SetTag(txn, ip.Dev, ip.Inum, key, value)
}

// GetTag returns the value of one tag key on ip.
func (fsys *FS) GetTag(ctx context.Context, ip *Inode, key string) (string, error) {
	return fsys.store.GetTag(ctx, ip.Dev, ip.Inum, key)
}

// DeleteTag removes one tag key from ip; missing keys fail with ErrNotFound.
func (fsys *FS) DeleteTag(ctx context.Context, ip *Inode, key string) (err error) {
	txn, err := fsys.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer fsys.commit(txn, &err)

	return fsys.store.DeleteTag(txn, ip.Dev, ip.Inum, key)
}
