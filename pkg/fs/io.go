package fs

import "context"

// ReadInode reads up to len(p) bytes of ip's stream at off, returning the
// count read. Reads past the end return 0. Device inodes dispatch to the
// registered driver, which ignores off.
//
// Directory inodes read like files: the raw entry block, DirentSize bytes
// per record, served from the inode record itself. Directory listing tools
// decode it themselves.
func (fsys *FS) ReadInode(ctx context.Context, ip *Inode, p []byte, off uint64) (int, error) {
	if err := fsys.lockInode(ctx, ip); err != nil {
		return 0, err
	}
	defer fsys.unlockInode(ip)

	if node, ok := ip.Payload.(DeviceNode); ok {
		dev, found := fsys.device(node.Major)
		if !found {
			return 0, &FsError{Code: ErrNoDevice, Message: "no driver for device"}
		}
		return dev.Read(ctx, p)
	}

	if ip.Type == TypeDir {
		entries := dirEntries(ip)
		if off >= uint64(len(entries)) {
			return 0, nil
		}
		return copy(p, entries[off:]), nil
	}

	if off >= ip.Size {
		return 0, nil
	}
	if off+uint64(len(p)) > ip.Size {
		p = p[:ip.Size-off]
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, err := fsys.data.ReadAt(ctx, ip.contentID(), p, off)
	if err != nil {
		return n, &FsError{Code: ErrIO, Message: "failed to read inode stream"}
	}
	return n, nil
}

// WriteInode writes p at off, extending the stream and the recorded size as
// needed. The size update runs in its own transaction so a committed record
// never claims bytes that were not written.
func (fsys *FS) WriteInode(ctx context.Context, ip *Inode, p []byte, off uint64) (n int, err error) {
	if err := fsys.lockInode(ctx, ip); err != nil {
		return 0, err
	}
	defer fsys.unlockInode(ip)

	if node, ok := ip.Payload.(DeviceNode); ok {
		dev, found := fsys.device(node.Major)
		if !found {
			return 0, &FsError{Code: ErrNoDevice, Message: "no driver for device"}
		}
		return dev.Write(ctx, p)
	}

	if ip.Type == TypeDir {
		return 0, &FsError{Code: ErrIsDirectory, Message: "directories are read-only"}
	}
	if _, isLink := ip.Payload.(SymlinkTarget); isLink {
		return 0, &FsError{Code: ErrBadArgument, Message: "cannot write through a symlink inode"}
	}

	n, werr := fsys.data.WriteAt(ctx, ip.contentID(), p, off)
	if werr != nil {
		return n, &FsError{Code: ErrIO, Message: "failed to write inode stream"}
	}

	if end := off + uint64(n); end > ip.Size {
		txn, terr := fsys.store.Begin(ctx)
		if terr != nil {
			return n, terr
		}
		defer fsys.commit(txn, &err)

		ip.Size = end
		if uerr := fsys.updateInode(txn, ip); uerr != nil {
			return n, uerr
		}
	}
	return n, nil
}

// StatInode returns a metadata snapshot of ip.
func (fsys *FS) StatInode(ctx context.Context, ip *Inode) (Stat, error) {
	if err := fsys.lockInode(ctx, ip); err != nil {
		return Stat{}, err
	}
	defer fsys.unlockInode(ip)

	return Stat{
		Dev:   ip.Dev,
		Inum:  ip.Inum,
		Type:  ip.Type,
		Nlink: ip.Nlink,
		Size:  ip.Size,
	}, nil
}
