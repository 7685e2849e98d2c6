package badger

import "fmt"

// Key namespaces.
//
// All keys are human-readable strings so badger's tooling stays usable
// against a live store:
//
//	i:<dev>:<inum>        inode record, JSON
//	t:<dev>:<inum>:<key>  one tag value, raw bytes
//	seq:<dev>             inode number allocator, decimal
//
// Tag keys of one inode share a prefix so deallocation can drop them with a
// single prefix scan.

func inodeKey(dev uint32, inum uint64) []byte {
	return []byte(fmt.Sprintf("i:%d:%d", dev, inum))
}

func tagKey(dev uint32, inum uint64, key string) []byte {
	return []byte(fmt.Sprintf("t:%d:%d:%s", dev, inum, key))
}

func tagPrefix(dev uint32, inum uint64) []byte {
	return []byte(fmt.Sprintf("t:%d:%d:", dev, inum))
}

func seqKey(dev uint32) []byte {
	return []byte(fmt.Sprintf("seq:%d", dev))
}
