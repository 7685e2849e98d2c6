package file

import (
	"context"
	"sync"

	"github.com/minikern/minikern/pkg/fs"
)

// PipeSize is the pipe ring buffer capacity in bytes.
const PipeSize = 512

// Pipe is a bounded in-memory byte channel with one read end and one write
// end. Reads block until data arrives or the write end closes; writes block
// while the buffer is full and the read end is still open.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	data [PipeSize]byte

	// nread and nwrite count total bytes ever read/written; the ring
	// index is the counter modulo PipeSize
	nread  uint64
	nwrite uint64

	readOpen  bool
	writeOpen bool
}

// NewPipePair creates a pipe and returns its read end and write end as
// open-file objects.
func NewPipePair() (*File, *File) {
	p := &Pipe{readOpen: true, writeOpen: true}
	p.cond = sync.NewCond(&p.mu)

	r := &File{kind: KindPipe, readable: true, pipe: p}
	r.refs.Store(1)
	w := &File{kind: KindPipe, writable: true, pipe: p, writeEnd: true}
	w.refs.Store(1)
	return r, w
}

// closeEnd closes one end and wakes any blocked peer.
func (p *Pipe) closeEnd(writeEnd bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writeEnd {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	p.cond.Broadcast()
}

// read copies up to len(b) buffered bytes, blocking while the pipe is empty
// and a writer remains. A closed write end with an empty buffer reads as
// end of stream (0, nil).
func (p *Pipe) read(ctx context.Context, b []byte) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	for p.nread == p.nwrite && p.writeOpen {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		p.cond.Wait()
	}

	n := 0
	for n < len(b) && p.nread < p.nwrite {
		b[n] = p.data[p.nread%PipeSize]
		p.nread++
		n++
	}

	p.cond.Broadcast()
	return n, nil
}

// write copies all of b into the pipe, blocking whenever the ring is full.
// Writing with the read end closed fails.
func (p *Pipe) write(ctx context.Context, b []byte) (int, error) {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for n < len(b) {
		if !p.readOpen {
			return n, &fs.FsError{Code: fs.ErrBadArgument, Message: "write on pipe with closed read end"}
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}

		if p.nwrite == p.nread+PipeSize {
			p.cond.Broadcast()
			p.cond.Wait()
			continue
		}

		p.data[p.nwrite%PipeSize] = b[n]
		p.nwrite++
		n++
	}

	p.cond.Broadcast()
	return n, nil
}
