package fs

import (
	"encoding/json"
	"fmt"
)

// InodeRecord is the persisted form of an inode: the metadata store holds one
// record per allocated inode, keyed by (device, inode number).
type InodeRecord struct {
	Dev     uint32    `json:"dev"`
	Inum    uint64    `json:"inum"`
	Type    InodeType `json:"type"`
	Nlink   uint32    `json:"nlink"`
	Size    uint64    `json:"size"`
	Payload Payload   `json:"-"`
}

// recordEnvelope is the wire form of InodeRecord. Payload is an interface,
// so it is flattened into a kind discriminator plus a raw body.
type recordEnvelope struct {
	Dev         uint32          `json:"dev"`
	Inum        uint64          `json:"inum"`
	Type        InodeType       `json:"type"`
	Nlink       uint32          `json:"nlink"`
	Size        uint64          `json:"size"`
	PayloadKind string          `json:"payload_kind"`
	PayloadBody json.RawMessage `json:"payload"`
}

// MarshalJSON implements json.Marshaler.
func (r *InodeRecord) MarshalJSON() ([]byte, error) {
	if r.Payload == nil {
		return nil, fmt.Errorf("inode %d/%d has no payload", r.Dev, r.Inum)
	}

	body, err := json.Marshal(r.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	return json.Marshal(recordEnvelope{
		Dev:         r.Dev,
		Inum:        r.Inum,
		Type:        r.Type,
		Nlink:       r.Nlink,
		Size:        r.Size,
		PayloadKind: r.Payload.payloadKind(),
		PayloadBody: body,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *InodeRecord) UnmarshalJSON(data []byte) error {
	var env recordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("failed to unmarshal inode record: %w", err)
	}

	var payload Payload
	switch env.PayloadKind {
	case "file":
		var p FileBlocks
		if err := json.Unmarshal(env.PayloadBody, &p); err != nil {
			return fmt.Errorf("failed to unmarshal file payload: %w", err)
		}
		payload = p
	case "dir":
		var p DirBlocks
		if err := json.Unmarshal(env.PayloadBody, &p); err != nil {
			return fmt.Errorf("failed to unmarshal dir payload: %w", err)
		}
		payload = p
	case "device":
		var p DeviceNode
		if err := json.Unmarshal(env.PayloadBody, &p); err != nil {
			return fmt.Errorf("failed to unmarshal device payload: %w", err)
		}
		payload = p
	case "symlink":
		var p SymlinkTarget
		if err := json.Unmarshal(env.PayloadBody, &p); err != nil {
			return fmt.Errorf("failed to unmarshal symlink payload: %w", err)
		}
		payload = p
	default:
		return fmt.Errorf("unknown payload kind %q", env.PayloadKind)
	}

	r.Dev = env.Dev
	r.Inum = env.Inum
	r.Type = env.Type
	r.Nlink = env.Nlink
	r.Size = env.Size
	r.Payload = payload
	return nil
}
