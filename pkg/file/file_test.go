package file

import (
	"context"
	"testing"
	"time"

	"github.com/minikern/minikern/pkg/fs"
)

func TestTableAllocatesLowestFreeSlot(t *testing.T) {
	tbl := NewTable(4)
	r, w := NewPipePair()

	fd0, err := tbl.Alloc(r)
	if err != nil || fd0 != 0 {
		t.Fatalf("first alloc = %d, %v; want 0", fd0, err)
	}
	fd1, err := tbl.Alloc(w)
	if err != nil || fd1 != 1 {
		t.Fatalf("second alloc = %d, %v; want 1", fd1, err)
	}

	if _, err := tbl.Clear(0); err != nil {
		t.Fatalf("clear: %v", err)
	}

	r2, _ := NewPipePair()
	fd, err := tbl.Alloc(r2)
	if err != nil || fd != 0 {
		t.Fatalf("alloc after clear = %d, %v; want the freed slot 0", fd, err)
	}
}

func TestTableExhaustion(t *testing.T) {
	tbl := NewTable(2)
	r, w := NewPipePair()

	if _, err := tbl.Alloc(r); err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if _, err := tbl.Alloc(w); err != nil {
		t.Fatalf("alloc: %v", err)
	}

	r2, _ := NewPipePair()
	if _, err := tbl.Alloc(r2); !fs.IsCode(err, fs.ErrNoSlot) {
		t.Fatalf("alloc on full table error = %v, want ErrNoSlot", err)
	}
}

func TestTableRejectsBadDescriptors(t *testing.T) {
	tbl := NewTable(4)

	for _, fd := range []int{-1, 0, 3, 4, 100} {
		if _, err := tbl.Get(fd); !fs.IsCode(err, fs.ErrBadArgument) {
			t.Errorf("Get(%d) error = %v, want ErrBadArgument", fd, err)
		}
		if _, err := tbl.Dup(fd); !fs.IsCode(err, fs.ErrBadArgument) {
			t.Errorf("Dup(%d) error = %v, want ErrBadArgument", fd, err)
		}
	}
}

func TestTableDupTakesAReference(t *testing.T) {
	ctx := context.Background()
	tbl := NewTable(2)
	r, w := NewPipePair()

	fd, err := tbl.Alloc(w)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	dup, err := tbl.Dup(fd)
	if err != nil || dup != w {
		t.Fatalf("dup = %v, %v; want the slot's file", dup, err)
	}

	// Dropping the slot's own reference leaves the duplicated one alive
	f, err := tbl.Clear(fd)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := dup.Write(ctx, []byte("still open")); err != nil {
		t.Fatalf("write after closing the slot's reference: %v", err)
	}

	// Releasing the duplicate really closes the write end
	if err := dup.Close(ctx); err != nil {
		t.Fatalf("close duplicate: %v", err)
	}
	buf := make([]byte, 16)
	n, err := r.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "still open" {
		t.Fatalf("read = %q, %v", buf[:n], err)
	}
	if n, err := r.Read(ctx, buf); n != 0 || err != nil {
		t.Fatalf("read after last writer close = %d, %v; want EOF", n, err)
	}
	r.Close(ctx)
}

func TestPipeRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, w := NewPipePair()

	if _, err := w.Write(ctx, []byte("hello pipe")); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 32)
	n, err := r.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "hello pipe" {
		t.Fatalf("read = %q, %v", buf[:n], err)
	}
}

func TestPipeReadSeesEOFAfterWriterClose(t *testing.T) {
	ctx := context.Background()
	r, w := NewPipePair()

	if _, err := w.Write(ctx, []byte("last words")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	buf := make([]byte, 32)
	n, err := r.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "last words" {
		t.Fatalf("read = %q, %v", buf[:n], err)
	}

	// Drained and writer gone: end of stream
	n, err = r.Read(ctx, buf)
	if n != 0 || err != nil {
		t.Fatalf("read at EOF = %d, %v; want 0, nil", n, err)
	}
}

func TestPipeWriteFailsWithReaderClosed(t *testing.T) {
	ctx := context.Background()
	r, w := NewPipePair()

	if err := r.Close(ctx); err != nil {
		t.Fatalf("close reader: %v", err)
	}
	if _, err := w.Write(ctx, []byte("nobody listens")); err == nil {
		t.Fatal("write with closed read end succeeded")
	}
}

func TestPipeBlockingWriteResumesOnRead(t *testing.T) {
	ctx := context.Background()
	r, w := NewPipePair()

	payload := make([]byte, PipeSize+64)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Write(ctx, payload)
		done <- err
	}()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 128)
	for len(got) < len(payload) {
		n, err := r.Read(ctx, buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, buf[:n]...)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("write: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("writer still blocked after pipe was drained")
	}

	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d = %d, want %d", i, got[i], payload[i])
		}
	}
}

func TestPipeReadCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, _ := NewPipePair()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 8)
		_, err := r.Read(ctx, buf)
		done <- err
	}()

	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("read returned nil after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("read still blocked after cancellation")
	}
}

func TestDupSharesObjectUntilLastClose(t *testing.T) {
	ctx := context.Background()
	r, w := NewPipePair()

	w2 := w.Dup()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close first handle: %v", err)
	}

	// The duplicate keeps the write end open
	if _, err := w2.Write(ctx, []byte("still open")); err != nil {
		t.Fatalf("write via duplicate: %v", err)
	}
	if err := w2.Close(ctx); err != nil {
		t.Fatalf("close duplicate: %v", err)
	}

	// Now the write end is really closed: drain then EOF
	buf := make([]byte, 32)
	n, err := r.Read(ctx, buf)
	if err != nil || string(buf[:n]) != "still open" {
		t.Fatalf("read = %q, %v", buf[:n], err)
	}
	if n, err := r.Read(ctx, buf); n != 0 || err != nil {
		t.Fatalf("read after last close = %d, %v; want EOF", n, err)
	}
}

func TestAccessModeEnforcement(t *testing.T) {
	ctx := context.Background()
	r, w := NewPipePair()

	if _, err := r.Write(ctx, []byte("x")); !fs.IsCode(err, fs.ErrBadArgument) {
		t.Fatalf("write on read end error = %v, want ErrBadArgument", err)
	}
	buf := make([]byte, 4)
	if _, err := w.Read(ctx, buf); !fs.IsCode(err, fs.ErrBadArgument) {
		t.Fatalf("read on write end error = %v, want ErrBadArgument", err)
	}

	if _, err := r.Stat(ctx); !fs.IsCode(err, fs.ErrBadArgument) {
		t.Fatalf("stat on pipe error = %v, want ErrBadArgument", err)
	}
}
