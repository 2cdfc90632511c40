// Package pipe provides the byte stream endpoints wired to a child process's
// standard streams.
//
// A Writable pipe feeds a child's stdin. Writes never block: bytes are queued
// and flushed by a background goroutine once the pipe is attached to a
// running child. A Readable pipe drains a child's stdout or stderr. Incoming
// chunks go to the registered ReadFunc, or are buffered for Read when none is
// set. A readable pipe can be joined into another readable pipe so both
// streams arrive through one callback.
package pipe

import (
	"bytes"
	"io"
	"sync"
)

// Direction tells which way bytes travel through a pipe
type Direction int

const (
	// Writable pipes carry bytes from the caller into a child
	Writable Direction = iota
	// Readable pipes carry bytes from a child to the caller
	Readable
)

// String returns the direction name
func (d Direction) String() string {
	switch d {
	case Writable:
		return "writable"
	case Readable:
		return "readable"
	default:
		return "unknown"
	}
}

// ReadFunc receives one chunk of child output. The slice is owned by the
// callee.
type ReadFunc func(data []byte)

// Error types for pipe operations
var (
	ErrInvalidDirection = Error{"invalid pipe direction"}
	ErrClosed           = Error{"pipe closed"}
	ErrJoinCycle        = Error{"join would create a cycle"}
)

// Error represents a pipe error
type Error struct {
	Message string
}

func (e Error) Error() string {
	return e.Message
}

// Pipe is a unidirectional byte stream endpoint
type Pipe struct {
	dir Direction

	mu sync.Mutex

	// readable side
	onRead ReadFunc
	target *Pipe
	buf    bytes.Buffer

	// writable side
	cond    *sync.Cond
	pending bytes.Buffer
	sink    io.WriteCloser
	gen     uint64
	closed  bool
	werr    error
}

// New creates a pipe with the given direction
func New(dir Direction) *Pipe {
	p := &Pipe{dir: dir}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// NewWritable creates a pipe that feeds a child's stdin
func NewWritable() *Pipe {
	return New(Writable)
}

// NewReadable creates a pipe that drains a child's output
func NewReadable() *Pipe {
	return New(Readable)
}

// Direction returns the pipe direction
func (p *Pipe) Direction() Direction {
	return p.dir
}

// Write queues bytes for the attached child's stdin. It never blocks on the
// child; bytes written before a child is attached are delivered once one is.
func (p *Pipe) Write(data []byte) (int, error) {
	if p.dir != Writable {
		return 0, ErrInvalidDirection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.werr != nil {
		return 0, p.werr
	}
	p.pending.Write(data)
	p.cond.Broadcast()
	return len(data), nil
}

// WriteString is Write for strings
func (p *Pipe) WriteString(s string) (int, error) {
	return p.Write([]byte(s))
}

// Close marks the end of input. Queued bytes are still flushed, after which
// the child sees EOF.
func (p *Pipe) Close() error {
	if p.dir != Writable {
		return ErrInvalidDirection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.cond.Broadcast()
	return nil
}

// Closed reports whether Close has been called
func (p *Pipe) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Pending returns the number of queued bytes not yet handed to a child
func (p *Pipe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}

// Attach binds a writable pipe to a child's stdin for one run and starts
// flushing queued bytes into it. Any previous binding is dropped.
func (p *Pipe) Attach(w io.WriteCloser) error {
	if p.dir != Writable {
		return ErrInvalidDirection
	}

	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.sink = w
	p.werr = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	go p.flush(w, gen)
	return nil
}

// Detach drops the current child binding. Bytes still queued stay queued.
func (p *Pipe) Detach() {
	if p.dir != Writable {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.sink = nil
	p.cond.Broadcast()
}

// Release drops the binding to w if it is still the current one. Backends
// call it when a child exits so a later Attach is never disturbed.
func (p *Pipe) Release(w io.WriteCloser) {
	if p.dir != Writable {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == w {
		p.gen++
		p.sink = nil
		p.cond.Broadcast()
	}
}

// Attached reports whether a writable pipe is currently bound to a child
func (p *Pipe) Attached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink != nil
}

func (p *Pipe) flush(w io.WriteCloser, gen uint64) {
	for {
		p.mu.Lock()
		for p.pending.Len() == 0 && !p.closed && p.gen == gen {
			p.cond.Wait()
		}
		if p.gen != gen {
			p.mu.Unlock()
			return
		}
		if p.pending.Len() == 0 && p.closed {
			p.sink = nil
			p.mu.Unlock()
			_ = w.Close()
			return
		}
		chunk := bytes.Clone(p.pending.Bytes())
		p.pending.Reset()
		p.mu.Unlock()

		if _, err := w.Write(chunk); err != nil {
			p.mu.Lock()
			if p.gen == gen {
				p.werr = err
				p.sink = nil
			}
			p.mu.Unlock()
			return
		}
	}
}

// Read returns the bytes buffered since the last Read and clears them. It
// never blocks and may return an empty slice.
func (p *Pipe) Read() ([]byte, error) {
	if p.dir != Readable {
		return nil, ErrInvalidDirection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := bytes.Clone(p.buf.Bytes())
	p.buf.Reset()
	if out == nil {
		out = []byte{}
	}
	return out, nil
}

// SetOnRead registers fn to receive every chunk delivered to the pipe.
// A nil fn reverts the pipe to buffering for Read.
func (p *Pipe) SetOnRead(fn ReadFunc) error {
	if p.dir != Readable {
		return ErrInvalidDirection
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRead = fn
	return nil
}

// HasOnRead reports whether a callback is registered
func (p *Pipe) HasOnRead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onRead != nil
}

// Deliver hands a chunk of child output to the pipe. The pipe's own callback
// runs first; a joined pipe then forwards the chunk to its join target. With
// neither, the chunk is buffered for Read.
func (p *Pipe) Deliver(data []byte) {
	if p.dir != Readable || len(data) == 0 {
		return
	}

	p.mu.Lock()
	fn := p.onRead
	target := p.target
	if fn == nil && target == nil {
		p.buf.Write(data)
	}
	p.mu.Unlock()

	if fn != nil {
		fn(bytes.Clone(data))
	}
	if target != nil {
		target.Deliver(data)
	}
}

// joinMu serializes Join across all pipes
var joinMu sync.Mutex

// Join funnels other's incoming data into this pipe's stream. Joining an
// already joined pipe is a no-op, and other keeps its own callback.
func (p *Pipe) Join(other *Pipe) error {
	if other == nil {
		return nil
	}
	if p.dir != Readable || other.dir != Readable {
		return ErrInvalidDirection
	}
	if other == p {
		return ErrJoinCycle
	}

	// targets are only set here, so the cycle walk stays valid until the
	// link below is made
	joinMu.Lock()
	defer joinMu.Unlock()

	if other.IsJoined() {
		return nil
	}
	for q := p.JoinTarget(); q != nil; q = q.JoinTarget() {
		if q == other {
			return ErrJoinCycle
		}
	}

	other.mu.Lock()
	other.target = p
	other.mu.Unlock()
	return nil
}

// IsJoined reports whether the pipe forwards its data to a join target
func (p *Pipe) IsJoined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target != nil
}

// JoinTarget returns the pipe this one forwards to, or nil
func (p *Pipe) JoinTarget() *Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}
