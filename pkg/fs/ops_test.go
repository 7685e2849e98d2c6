package fs_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/minikern/minikern/pkg/content"
	contentmem "github.com/minikern/minikern/pkg/content/memory"
	"github.com/minikern/minikern/pkg/fs"
	storemem "github.com/minikern/minikern/pkg/store/memory"
)

func newTestFS(t *testing.T) *fs.FS {
	fsys, _, _ := newTestFSWithStores(t)
	return fsys
}

// newTestFSWithStores also hands back the backing stores, for tests that
// assert on persisted state directly.
func newTestFSWithStores(t *testing.T) (*fs.FS, *storemem.MemoryStore, *contentmem.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	meta, err := storemem.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("metadata store: %v", err)
	}
	data, err := contentmem.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("content store: %v", err)
	}

	fsys, err := fs.New(ctx, meta, data)
	if err != nil {
		t.Fatalf("fs.New: %v", err)
	}
	return fsys, meta, data
}

func mustStat(t *testing.T, fsys *fs.FS, path string) fs.Stat {
	t.Helper()
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, path, false, false)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer fsys.Release(ctx, ip)

	st, err := fsys.StatInode(ctx, ip)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return st
}

func TestRootBootstrap(t *testing.T) {
	fsys := newTestFS(t)

	st := mustStat(t, fsys, "/")
	if st.Type != fs.TypeDir {
		t.Fatalf("root type = %v, want dir", st.Type)
	}
	if st.Inum != fs.RootInum {
		t.Fatalf("root inum = %d, want %d", st.Inum, fs.RootInum)
	}
	if st.Nlink != 1 {
		t.Fatalf("root nlink = %d, want 1 (self-entries do not count)", st.Nlink)
	}
	if st.Size != 2*fs.DirentSize {
		t.Fatalf("root size = %d, want two entries", st.Size)
	}

	// "." and ".." resolve back to root
	for _, p := range []string{"/.", "/..", "/./.."} {
		if got := mustStat(t, fsys, p); got.Inum != fs.RootInum {
			t.Errorf("%s resolved to inum %d, want root", p, got.Inum)
		}
	}
}

func TestOpenCreateIsIdempotentForFiles(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	ip1, err := fsys.OpenInode(ctx, nil, "/a", true, true)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := fsys.WriteInode(ctx, ip1, []byte("payload"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	fsys.Release(ctx, ip1)

	ip2, err := fsys.OpenInode(ctx, nil, "/a", true, false)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	defer fsys.Release(ctx, ip2)

	st, err := fsys.StatInode(ctx, ip2)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size != 7 {
		t.Fatalf("create over existing file truncated it: size = %d", st.Size)
	}
	if st.Nlink != 1 {
		t.Fatalf("nlink = %d after double create, want 1", st.Nlink)
	}
}

func TestMkdirOverExistingFails(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, nil, "/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	err := fsys.Mkdir(ctx, nil, "/d")
	if !fs.IsCode(err, fs.ErrExists) {
		t.Fatalf("second mkdir error = %v, want ErrExists", err)
	}

	// mkdir over an existing file also fails
	ip, err := fsys.OpenInode(ctx, nil, "/f", true, false)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	fsys.Release(ctx, ip)
	if err := fsys.Mkdir(ctx, nil, "/f"); !fs.IsCode(err, fs.ErrExists) {
		t.Fatalf("mkdir over file error = %v, want ErrExists", err)
	}
}

func TestMkdirLinkCounts(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, nil, "/d"); err != nil {
		t.Fatalf("mkdir /d: %v", err)
	}

	// Child directory: nlink 1 ("." does not count toward itself).
	// Parent gains one link from the child's "..".
	if st := mustStat(t, fsys, "/d"); st.Nlink != 1 {
		t.Fatalf("/d nlink = %d, want 1", st.Nlink)
	}
	if st := mustStat(t, fsys, "/"); st.Nlink != 2 {
		t.Fatalf("root nlink = %d after mkdir, want 2", st.Nlink)
	}

	if err := fsys.Mkdir(ctx, nil, "/d/e"); err != nil {
		t.Fatalf("mkdir /d/e: %v", err)
	}
	if st := mustStat(t, fsys, "/d"); st.Nlink != 2 {
		t.Fatalf("/d nlink = %d after child mkdir, want 2", st.Nlink)
	}

	// Removing the child restores the parent's count
	if err := fsys.Unlink(ctx, nil, "/d/e"); err != nil {
		t.Fatalf("unlink /d/e: %v", err)
	}
	if st := mustStat(t, fsys, "/d"); st.Nlink != 1 {
		t.Fatalf("/d nlink = %d after child unlink, want 1", st.Nlink)
	}
}

func TestLinkRoundTrip(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, "/a", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fsys.WriteInode(ctx, ip, []byte("shared"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	fsys.Release(ctx, ip)

	if err := fsys.Link(ctx, nil, "/a", "/b"); err != nil {
		t.Fatalf("link: %v", err)
	}

	stA := mustStat(t, fsys, "/a")
	stB := mustStat(t, fsys, "/b")
	if stA.Inum != stB.Inum {
		t.Fatalf("link created a different inode: %d vs %d", stA.Inum, stB.Inum)
	}
	if stA.Nlink != 2 {
		t.Fatalf("nlink = %d after link, want 2", stA.Nlink)
	}

	// Content visible through the second name
	ipB, err := fsys.OpenInode(ctx, nil, "/b", false, false)
	if err != nil {
		t.Fatalf("open /b: %v", err)
	}
	buf := make([]byte, 16)
	n, err := fsys.ReadInode(ctx, ipB, buf, 0)
	fsys.Release(ctx, ipB)
	if err != nil || string(buf[:n]) != "shared" {
		t.Fatalf("read through link = %q, %v", buf[:n], err)
	}

	// Unlinking one name leaves the other intact
	if err := fsys.Unlink(ctx, nil, "/a"); err != nil {
		t.Fatalf("unlink /a: %v", err)
	}
	if st := mustStat(t, fsys, "/b"); st.Nlink != 1 {
		t.Fatalf("nlink = %d after unlinking one name, want 1", st.Nlink)
	}
	if _, err := fsys.OpenInode(ctx, nil, "/a", false, false); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("open unlinked name error = %v, want ErrNotFound", err)
	}
}

func TestLinkFailureCompensatesLinkCount(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, "/a", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fsys.Release(ctx, ip)

	// Parent of the new name does not exist
	if err := fsys.Link(ctx, nil, "/a", "/missing/b"); err == nil {
		t.Fatal("link into missing directory succeeded")
	}
	if st := mustStat(t, fsys, "/a"); st.Nlink != 1 {
		t.Fatalf("nlink = %d after failed link, want 1 (compensated)", st.Nlink)
	}

	// Existing name in the target directory also rolls back
	ip2, err := fsys.OpenInode(ctx, nil, "/b", true, false)
	if err != nil {
		t.Fatalf("create /b: %v", err)
	}
	fsys.Release(ctx, ip2)
	if err := fsys.Link(ctx, nil, "/a", "/b"); !fs.IsCode(err, fs.ErrExists) {
		t.Fatalf("link over existing error = %v, want ErrExists", err)
	}
	if st := mustStat(t, fsys, "/a"); st.Nlink != 1 {
		t.Fatalf("nlink = %d after conflicting link, want 1", st.Nlink)
	}
}

func TestLinkDirectoryRejected(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, nil, "/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := fsys.Link(ctx, nil, "/d", "/d2"); !fs.IsCode(err, fs.ErrIsDirectory) {
		t.Fatalf("link dir error = %v, want ErrIsDirectory", err)
	}
}

func TestUnlinkRules(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, nil, "/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ip, err := fsys.OpenInode(ctx, nil, "/d/f", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fsys.Release(ctx, ip)

	// Non-empty directory
	if err := fsys.Unlink(ctx, nil, "/d"); !fs.IsCode(err, fs.ErrNotEmpty) {
		t.Fatalf("unlink non-empty error = %v, want ErrNotEmpty", err)
	}

	// Self-entries
	if err := fsys.Unlink(ctx, nil, "/d/."); !fs.IsCode(err, fs.ErrBadArgument) {
		t.Fatalf("unlink . error = %v, want ErrBadArgument", err)
	}
	if err := fsys.Unlink(ctx, nil, "/d/.."); !fs.IsCode(err, fs.ErrBadArgument) {
		t.Fatalf("unlink .. error = %v, want ErrBadArgument", err)
	}

	// Missing target
	if err := fsys.Unlink(ctx, nil, "/nope"); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("unlink missing error = %v, want ErrNotFound", err)
	}

	// Empty after removing the file
	if err := fsys.Unlink(ctx, nil, "/d/f"); err != nil {
		t.Fatalf("unlink /d/f: %v", err)
	}
	if err := fsys.Unlink(ctx, nil, "/d"); err != nil {
		t.Fatalf("unlink empty dir: %v", err)
	}
	if st := mustStat(t, fsys, "/"); st.Nlink != 1 {
		t.Fatalf("root nlink = %d after rmdir, want 1", st.Nlink)
	}
}

func TestUnlinkedFileStaysReadableUntilLastRelease(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, "/a", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fsys.WriteInode(ctx, ip, []byte("still here"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := fsys.Unlink(ctx, nil, "/a"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	// The open handle still reads the content
	buf := make([]byte, 32)
	n, err := fsys.ReadInode(ctx, ip, buf, 0)
	if err != nil || string(buf[:n]) != "still here" {
		t.Fatalf("read after unlink = %q, %v", buf[:n], err)
	}

	// Last release deallocates; the name is gone and so is the inode
	if err := fsys.Release(ctx, ip); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := fsys.OpenInode(ctx, nil, "/a", false, false); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("open after dealloc error = %v, want ErrNotFound", err)
	}
}

func TestDirectoryEntrySlotReuse(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	for _, name := range []string{"/a", "/b"} {
		ip, err := fsys.OpenInode(ctx, nil, name, true, false)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		fsys.Release(ctx, ip)
	}

	before := mustStat(t, fsys, "/").Size
	if err := fsys.Unlink(ctx, nil, "/a"); err != nil {
		t.Fatalf("unlink: %v", err)
	}

	ip, err := fsys.OpenInode(ctx, nil, "/c", true, false)
	if err != nil {
		t.Fatalf("create /c: %v", err)
	}
	fsys.Release(ctx, ip)

	// The freed slot is reused, so the directory does not grow
	if after := mustStat(t, fsys, "/").Size; after != before {
		t.Fatalf("directory grew from %d to %d despite a free slot", before, after)
	}
}

func TestChdirRelativeResolution(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, nil, "/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ip, err := fsys.OpenInode(ctx, nil, "/d/f", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fsys.Release(ctx, ip)

	cwd, err := fsys.ChdirInode(ctx, nil, "/d")
	if err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer fsys.Release(ctx, cwd)

	// Relative lookup from the new working directory
	got, err := fsys.OpenInode(ctx, cwd, "f", false, false)
	if err != nil {
		t.Fatalf("relative open: %v", err)
	}
	fsys.Release(ctx, got)

	// Chdir to a file fails
	if _, err := fsys.ChdirInode(ctx, cwd, "f"); !fs.IsCode(err, fs.ErrNotDirectory) {
		t.Fatalf("chdir to file error = %v, want ErrNotDirectory", err)
	}
}

func TestMknodAndDeviceDispatch(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if err := fsys.Mknod(ctx, nil, "/dev0", 7, 3); err != nil {
		t.Fatalf("mknod: %v", err)
	}

	ip, err := fsys.OpenInode(ctx, nil, "/dev0", false, true)
	if err != nil {
		t.Fatalf("open device: %v", err)
	}
	defer fsys.Release(ctx, ip)

	// No driver registered yet
	if _, err := fsys.WriteInode(ctx, ip, []byte("x"), 0); !fs.IsCode(err, fs.ErrNoDevice) {
		t.Fatalf("write without driver error = %v, want ErrNoDevice", err)
	}

	dev := &echoDevice{}
	fsys.RegisterDevice(7, dev)
	if _, err := fsys.WriteInode(ctx, ip, []byte("ping"), 0); err != nil {
		t.Fatalf("device write: %v", err)
	}
	buf := make([]byte, 8)
	n, err := fsys.ReadInode(ctx, ip, buf, 0)
	if err != nil || string(buf[:n]) != "ping" {
		t.Fatalf("device read = %q, %v", buf[:n], err)
	}
}

// echoDevice buffers writes and plays them back on read.
type echoDevice struct {
	buf []byte
}

func (d *echoDevice) Read(ctx context.Context, p []byte) (int, error) {
	n := copy(p, d.buf)
	d.buf = d.buf[n:]
	return n, nil
}

func (d *echoDevice) Write(ctx context.Context, p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

func TestTagsLifecycle(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, "/a", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer fsys.Release(ctx, ip)

	if err := fsys.SetTag(ctx, ip, "owner", "alice"); err != nil {
		t.Fatalf("set tag: %v", err)
	}
	if v, err := fsys.GetTag(ctx, ip, "owner"); err != nil || v != "alice" {
		t.Fatalf("get tag = %q, %v", v, err)
	}

	// Overwrite: one value per key, last write wins
	if err := fsys.SetTag(ctx, ip, "owner", "bob"); err != nil {
		t.Fatalf("overwrite tag: %v", err)
	}
	if v, _ := fsys.GetTag(ctx, ip, "owner"); v != "bob" {
		t.Fatalf("tag after overwrite = %q, want bob", v)
	}

	if err := fsys.DeleteTag(ctx, ip, "owner"); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
	if _, err := fsys.GetTag(ctx, ip, "owner"); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("get deleted tag error = %v, want ErrNotFound", err)
	}
	if err := fsys.DeleteTag(ctx, ip, "owner"); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("delete missing tag error = %v, want ErrNotFound", err)
	}
}

func TestTagsDroppedOnDeallocation(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, "/a", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := fsys.SetTag(ctx, ip, "k", "v"); err != nil {
		t.Fatalf("set tag: %v", err)
	}
	firstInum := mustStat(t, fsys, "/a").Inum

	if err := fsys.Unlink(ctx, nil, "/a"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if err := fsys.Release(ctx, ip); err != nil {
		t.Fatalf("release: %v", err)
	}

	// A new inode never sees the dead inode's tags, and inode numbers are
	// not reused, so the tag namespace cannot collide either way.
	ip2, err := fsys.OpenInode(ctx, nil, "/b", true, false)
	if err != nil {
		t.Fatalf("create /b: %v", err)
	}
	defer fsys.Release(ctx, ip2)
	if st := mustStat(t, fsys, "/b"); st.Inum == firstInum {
		t.Fatalf("inode number %d was reused", firstInum)
	}
	if _, err := fsys.GetTag(ctx, ip2, "k"); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("fresh inode inherited a tag: %v", err)
	}
}

func TestOpenWriteOnDirectoryRejected(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	if _, err := fsys.OpenInode(ctx, nil, "/", false, true); !fs.IsCode(err, fs.ErrIsDirectory) {
		t.Fatalf("open / for write error = %v, want ErrIsDirectory", err)
	}

	// Read-only open of a directory is fine
	ip, err := fsys.OpenInode(ctx, nil, "/", false, false)
	if err != nil {
		t.Fatalf("open / read-only: %v", err)
	}
	fsys.Release(ctx, ip)
}

func TestSymlinkOverFileReleasesStream(t *testing.T) {
	fsys, _, data := newTestFSWithStores(t)
	ctx := context.Background()

	ip, err := fsys.OpenInode(ctx, nil, "/a", true, true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := fsys.WriteInode(ctx, ip, []byte("fourteen bytes"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	st, err := fsys.StatInode(ctx, ip)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	fsys.Release(ctx, ip)

	cid := content.NewID(st.Dev, st.Inum)
	if size, _ := data.Size(ctx, cid); size != 14 {
		t.Fatalf("stream size before conversion = %d, want 14", size)
	}

	// Converting the file in place must give its byte stream back to the
	// content store; the target lives in the inode record from here on.
	if err := fsys.Symlink(ctx, nil, "/elsewhere", "/a"); err != nil {
		t.Fatalf("symlink over file: %v", err)
	}
	if size, _ := data.Size(ctx, cid); size != 0 {
		t.Fatalf("stream survived conversion: %d bytes", size)
	}

	// The inode now behaves as a link; its stored target dangles
	if _, err := fsys.Readlink(ctx, nil, "/a"); !fs.IsCode(err, fs.ErrBrokenLink) {
		t.Fatalf("readlink converted file error = %v, want ErrBrokenLink", err)
	}
}

func TestDirectoryEntriesLiveInTheRecord(t *testing.T) {
	fsys, meta, data := newTestFSWithStores(t)
	ctx := context.Background()

	if err := fsys.Mkdir(ctx, nil, "/d"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ip, err := fsys.OpenInode(ctx, nil, "/d/f", true, false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	fsys.Release(ctx, ip)

	st := mustStat(t, fsys, "/d")
	rec, err := meta.GetInode(ctx, st.Dev, st.Inum)
	if err != nil {
		t.Fatalf("get directory record: %v", err)
	}
	blocks, ok := rec.Payload.(fs.DirBlocks)
	if !ok {
		t.Fatalf("directory payload = %T, want DirBlocks", rec.Payload)
	}
	if rec.Size != uint64(len(blocks.Entries)) {
		t.Fatalf("record size %d does not match entry block length %d", rec.Size, len(blocks.Entries))
	}

	// The committed record itself carries the "f" entry, so a directory
	// entry write and its inode update share one transaction.
	found := false
	for off := 0; off+fs.DirentSize <= len(blocks.Entries); off += fs.DirentSize {
		if binary.LittleEndian.Uint64(blocks.Entries[off:off+8]) == 0 {
			continue
		}
		name := string(bytes.TrimRight(blocks.Entries[off+8:off+fs.DirentSize], "\x00"))
		if name == "f" {
			found = true
		}
	}
	if !found {
		t.Fatal("committed directory record has no entry for f")
	}

	// Directories keep no stream in the content store
	if size, _ := data.Size(ctx, content.NewID(st.Dev, st.Inum)); size != 0 {
		t.Fatalf("directory left %d bytes in the content store", size)
	}
}

// growFailStore refuses any root-directory write that would grow its entry
// block, simulating a store fault between setting up a new child and linking
// it into the parent.
type growFailStore struct {
	fs.Store
	limit uint64
}

func (s *growFailStore) PutInode(txn fs.Txn, rec *fs.InodeRecord) error {
	if rec.Inum == fs.RootInum && rec.Size > s.limit {
		return &fs.FsError{Code: fs.ErrIO, Message: "injected write failure"}
	}
	return s.Store.PutInode(txn, rec)
}

func TestCreateLinkFailureLeavesNoOrphan(t *testing.T) {
	ctx := context.Background()

	meta, err := storemem.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("metadata store: %v", err)
	}
	data, err := contentmem.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("content store: %v", err)
	}
	fsys, err := fs.New(ctx, &growFailStore{Store: meta, limit: 2 * fs.DirentSize}, data)
	if err != nil {
		t.Fatalf("fs.New: %v", err)
	}

	if err := fsys.Mkdir(ctx, nil, "/d"); !fs.IsCode(err, fs.ErrInternal) {
		t.Fatalf("mkdir with failing parent write error = %v, want ErrInternal", err)
	}

	// The parent's raised count was compensated and the name never appeared
	if st := mustStat(t, fsys, "/"); st.Nlink != 1 {
		t.Fatalf("root nlink = %d after failed mkdir, want 1", st.Nlink)
	}
	if _, err := fsys.OpenInode(ctx, nil, "/d", false, false); !fs.IsCode(err, fs.ErrNotFound) {
		t.Fatalf("open of failed mkdir target error = %v, want ErrNotFound", err)
	}

	// A failed plain-file create unwinds the same way
	if _, err := fsys.OpenInode(ctx, nil, "/f", true, false); !fs.IsCode(err, fs.ErrInternal) {
		t.Fatalf("create with failing parent write error = %v, want ErrInternal", err)
	}

	// No half-created inode record survived either failure
	for inum := uint64(2); inum <= 4; inum++ {
		if _, err := meta.GetInode(ctx, fs.RootDev, inum); !fs.IsCode(err, fs.ErrNotFound) {
			t.Fatalf("orphaned inode %d survived: %v", inum, err)
		}
	}
}

func TestPathComponentTooLong(t *testing.T) {
	fsys := newTestFS(t)
	ctx := context.Background()

	name := make([]byte, fs.NameMax+1)
	for i := range name {
		name[i] = 'x'
	}
	long := "/" + string(name)

	if _, err := fsys.OpenInode(ctx, nil, long, true, false); !fs.IsCode(err, fs.ErrBadArgument) {
		t.Fatalf("oversized component error = %v, want ErrBadArgument", err)
	}
}
