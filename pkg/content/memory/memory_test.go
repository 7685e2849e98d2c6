package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/minikern/minikern/pkg/content"
)

func TestReadWriteSemantics(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	id := content.NewID(1, 7)

	// Missing stream reads as empty
	buf := make([]byte, 8)
	if n, err := store.ReadAt(ctx, id, buf, 0); n != 0 || err != nil {
		t.Fatalf("read missing = %d, %v", n, err)
	}

	if _, err := store.WriteAt(ctx, id, []byte("abcdef"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Gap writes zero-pad
	if _, err := store.WriteAt(ctx, id, []byte("Z"), 10); err != nil {
		t.Fatalf("gap write: %v", err)
	}
	size, err := store.Size(ctx, id)
	if err != nil || size != 11 {
		t.Fatalf("size = %d, %v; want 11", size, err)
	}

	full := make([]byte, 11)
	if _, err := store.ReadAt(ctx, id, full, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	want := append([]byte("abcdef"), 0, 0, 0, 0, 'Z')
	if !bytes.Equal(full, want) {
		t.Fatalf("stream = %q, want %q", full, want)
	}

	// Reads past the end return 0
	if n, _ := store.ReadAt(ctx, id, buf, 11); n != 0 {
		t.Fatalf("read past end = %d", n)
	}

	// Truncate shrinks and grows
	if err := store.Truncate(ctx, id, 3); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if size, _ := store.Size(ctx, id); size != 3 {
		t.Fatalf("size after shrink = %d", size)
	}
	if err := store.Truncate(ctx, id, 5); err != nil {
		t.Fatalf("truncate grow: %v", err)
	}
	tail := make([]byte, 2)
	if _, err := store.ReadAt(ctx, id, tail, 3); err != nil || !bytes.Equal(tail, []byte{0, 0}) {
		t.Fatalf("grown tail = %v, %v", tail, err)
	}

	// Delete is idempotent
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if size, _ := store.Size(ctx, id); size != 0 {
		t.Fatalf("size after delete = %d", size)
	}
}

func TestBuffersAreCopied(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMemoryStore(ctx)
	id := content.NewID(1, 1)

	src := []byte("original")
	store.WriteAt(ctx, id, src, 0)
	src[0] = 'X'

	got := make([]byte, 8)
	store.ReadAt(ctx, id, got, 0)
	if string(got) != "original" {
		t.Fatalf("caller mutation leaked into store: %q", got)
	}
}
