package fs

import (
	"bytes"
	"encoding/binary"
)

// Filesystem layout constants. DirentSize and NameMax define the on-disk
// directory record format and must not change without a migration; the rest
// bound runtime behavior.
const (
	// RootDev is the device number of the root filesystem
	RootDev uint32 = 1

	// RootInum is the inode number of the root directory on every device
	RootInum uint64 = 1

	// DirentSize is the fixed size of one directory entry record in bytes
	DirentSize = 64

	// NameMax is the maximum length of one path component
	NameMax = DirentSize - 8

	// SymlinkTargetMax is the maximum length of a symlink target path,
	// matching the embedded target buffer of the original inode layout
	SymlinkTargetMax = 52

	// MaxSymlinkHops bounds symlink chain traversal
	MaxSymlinkHops = 16
)

// InodeType classifies an inode.
type InodeType int

const (
	// TypeFile is a regular file. Symlinks are files whose payload carries
	// a target path instead of a content stream.
	TypeFile InodeType = iota + 1

	// TypeDir is a directory; its content stream is a sequence of
	// fixed-size directory entry records
	TypeDir

	// TypeDevice is a device node dispatching I/O to a registered driver
	TypeDevice
)

// String returns the type name for logs and errors.
func (t InodeType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDir:
		return "dir"
	case TypeDevice:
		return "device"
	default:
		return "unknown"
	}
}

// Payload carries the type-specific half of an inode record.
//
// Exactly one variant is set per inode; the variant and the inode type move
// together (a TypeDevice inode always holds a DeviceNode payload). Symlinks
// embed their target directly in the payload, so resolving a link never
// touches the content store.
type Payload interface {
	payloadKind() string
}

// FileBlocks is the payload of a regular file: a handle to its byte stream
// in the content store.
type FileBlocks struct {
	// Content identifies the file's byte stream
	Content string `json:"content"`
}

// DirBlocks is the payload of a directory: the raw entry block, a sequence
// of fixed-size directory entry records. Entries live inside the inode
// record rather than in the content store, so an entry write and its paired
// link-count update always commit in the same store transaction.
type DirBlocks struct {
	// Entries is the entry block, a multiple of DirentSize bytes
	Entries []byte `json:"entries"`
}

// DeviceNode is the payload of a device inode.
type DeviceNode struct {
	// Major selects the driver in the device registry
	Major uint32 `json:"major"`

	// Minor is passed through to the driver
	Minor uint32 `json:"minor"`
}

// SymlinkTarget is the payload of a symbolic link.
type SymlinkTarget struct {
	// Target is the stored path, at most SymlinkTargetMax bytes
	Target string `json:"target"`
}

func (FileBlocks) payloadKind() string    { return "file" }
func (DirBlocks) payloadKind() string     { return "dir" }
func (DeviceNode) payloadKind() string    { return "device" }
func (SymlinkTarget) payloadKind() string { return "symlink" }

// Dirent is one directory entry record.
//
// On disk a record is DirentSize bytes: an 8-byte little-endian inode number
// followed by a NUL-padded name. Inum 0 marks a free slot; unlink reclaims
// slots by zeroing the whole record in place.
type Dirent struct {
	Inum uint64
	Name string
}

// encodeDirent serializes a directory entry into its fixed-size record.
// The name must already be validated against NameMax.
func encodeDirent(de Dirent) []byte {
	buf := make([]byte, DirentSize)
	binary.LittleEndian.PutUint64(buf[0:8], de.Inum)
	copy(buf[8:], de.Name)
	return buf
}

// decodeDirent parses one fixed-size record.
func decodeDirent(buf []byte) Dirent {
	name := buf[8:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Dirent{
		Inum: binary.LittleEndian.Uint64(buf[0:8]),
		Name: string(name),
	}
}

// Stat is the metadata snapshot returned by fstat.
type Stat struct {
	Dev   uint32
	Inum  uint64
	Type  InodeType
	Nlink uint32
	Size  uint64
}
