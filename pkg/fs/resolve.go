package fs

import (
	"context"
	"strings"
)

// splitPath breaks a path into its components, dropping empty elements so
// "a//b" and "a/b/" resolve identically. Components longer than NameMax are
// rejected rather than silently truncated.
func splitPath(path string) ([]string, error) {
	var parts []string
	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}
		if len(name) > NameMax {
			return nil, &FsError{Code: ErrBadArgument, Message: "path component too long", Path: path}
		}
		parts = append(parts, name)
	}
	return parts, nil
}

// namei resolves path to a referenced, unlocked inode. Absolute paths start
// at the root, relative paths at cwd (nil cwd means root). Symlinks are not
// followed here; callers that want following run the resolved inode through
// followLinks.
//
// Each intermediate directory is locked only while its entry block is
// scanned, and the child is referenced before the parent is released, so a
// concurrent unlink can never free an inode out from under the walk.
func (fsys *FS) namei(ctx context.Context, txn Txn, cwd *Inode, path string) (*Inode, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	var ip *Inode
	if strings.HasPrefix(path, "/") || cwd == nil {
		ip = fsys.Root()
	} else {
		ip = fsys.dupInode(cwd)
	}

	for _, name := range parts {
		if err := fsys.lockInode(ctx, ip); err != nil {
			fsys.putInode(ctx, txn, ip)
			return nil, err
		}
		if ip.Type != TypeDir {
			fsys.unlockPut(ctx, txn, ip)
			return nil, &FsError{Code: ErrNotDirectory, Message: "path component is not a directory", Path: path}
		}

		de, _, err := fsys.dirLookup(ip, name)
		if err != nil {
			fsys.unlockPut(ctx, txn, ip)
			return nil, err
		}

		next := fsys.getInode(ip.Dev, de.Inum)
		if err := fsys.unlockPut(ctx, txn, ip); err != nil {
			fsys.putInode(ctx, txn, next)
			return nil, err
		}
		ip = next
	}
	return ip, nil
}

// nameiParent resolves path to its parent directory, returning a referenced,
// unlocked handle on the parent and the final component. The final component
// itself need not exist.
func (fsys *FS) nameiParent(ctx context.Context, txn Txn, cwd *Inode, path string) (*Inode, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, "", err
	}
	if len(parts) == 0 {
		return nil, "", &FsError{Code: ErrBadArgument, Message: "path has no final component", Path: path}
	}

	dir := strings.Join(parts[:len(parts)-1], "/")
	if strings.HasPrefix(path, "/") {
		dir = "/" + dir
	}

	dp, err := fsys.namei(ctx, txn, cwd, dir)
	if err != nil {
		return nil, "", err
	}
	return dp, parts[len(parts)-1], nil
}

// dirEntries returns the locked directory's raw entry block. The slice may
// alias store-owned memory and must be treated as read-only; mutations go
// through setDirEntries with a fresh slice.
func dirEntries(dp *Inode) []byte {
	p, _ := dp.Payload.(DirBlocks)
	return p.Entries
}

// setDirEntries installs a new entry block and keeps Size in step with it.
func setDirEntries(dp *Inode, entries []byte) {
	dp.Payload = DirBlocks{Entries: entries}
	dp.Size = uint64(len(entries))
}

// dirLookup scans the locked directory dp for an entry named name, returning
// the entry and its byte offset in the entry block.
func (fsys *FS) dirLookup(dp *Inode, name string) (Dirent, uint64, error) {
	entries := dirEntries(dp)
	for off := 0; off+DirentSize <= len(entries); off += DirentSize {
		de := decodeDirent(entries[off : off+DirentSize])
		if de.Inum == 0 {
			continue
		}
		if de.Name == name {
			return de, uint64(off), nil
		}
	}
	return Dirent{}, 0, &FsError{Code: ErrNotFound, Message: "no such directory entry", Path: name}
}

// dirLink adds an entry (name -> inum) to the locked directory dp, reusing
// the first free slot or appending at the end. It fails with ErrExists if the
// name is already present. The rewritten entry block goes through txn, so the
// entry and the directory's metadata commit as one unit.
func (fsys *FS) dirLink(txn Txn, dp *Inode, name string, inum uint64) error {
	if _, _, err := fsys.dirLookup(dp, name); err == nil {
		return &FsError{Code: ErrExists, Message: "directory entry already exists", Path: name}
	} else if !IsCode(err, ErrNotFound) {
		return err
	}

	entries := dirEntries(dp)
	off := len(entries)
	for scan := 0; scan+DirentSize <= len(entries); scan += DirentSize {
		if decodeDirent(entries[scan:scan+DirentSize]).Inum == 0 {
			off = scan
			break
		}
	}

	size := len(entries)
	if off+DirentSize > size {
		size = off + DirentSize
	}
	next := make([]byte, size)
	copy(next, entries)
	copy(next[off:], encodeDirent(Dirent{Inum: inum, Name: name}))

	setDirEntries(dp, next)
	return fsys.updateInode(txn, dp)
}

// zeroDirent frees the entry slot at off by zeroing the whole record, writing
// the change through txn.
func (fsys *FS) zeroDirent(txn Txn, dp *Inode, off uint64) error {
	entries := dirEntries(dp)
	if off+DirentSize > uint64(len(entries)) {
		return &FsError{Code: ErrInternal, Message: "directory entry offset out of range"}
	}

	next := make([]byte, len(entries))
	copy(next, entries)
	copy(next[off:off+DirentSize], make([]byte, DirentSize))

	setDirEntries(dp, next)
	return fsys.updateInode(txn, dp)
}

// isDirEmpty reports whether the locked directory dp holds only its "." and
// ".." entries, which occupy the first two slots and are never moved.
func (fsys *FS) isDirEmpty(dp *Inode) bool {
	entries := dirEntries(dp)
	for off := 2 * DirentSize; off+DirentSize <= len(entries); off += DirentSize {
		if decodeDirent(entries[off:off+DirentSize]).Inum != 0 {
			return false
		}
	}
	return true
}
