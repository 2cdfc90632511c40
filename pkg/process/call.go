package process

import (
	"bytes"
	"context"
	"sync"
)

// Call runs the process to completion and returns its merged stdout and
// stderr. Any read callback on stdout is replaced by the collector, which is
// removed again when Call returns, so later output is buffered for Read.
// Stdin is left as configured: close it first if the child reads to EOF.
//
// With an output limit, the child is killed once the limit is exceeded and
// ErrOutputLimit is returned with the bytes collected up to the limit. When
// ctx ends first the child is killed and ctx.Err() is returned with the
// bytes collected so far.
func (p *Process) Call(ctx context.Context) ([]byte, error) {
	if p.current {
		return nil, ErrCurrentProcess
	}
	if p.State() == StateRunning {
		return nil, ErrAlreadyRunning
	}

	var (
		mu       sync.Mutex
		buf      bytes.Buffer
		overflow bool
	)
	limit := p.outputLimit
	collected := func() []byte {
		mu.Lock()
		defer mu.Unlock()
		return bytes.Clone(buf.Bytes())
	}

	err := p.SetOnRead(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		if overflow {
			return
		}
		if limit > 0 && buf.Len()+len(data) > limit {
			buf.Write(data[:limit-buf.Len()])
			overflow = true
			if err := p.Kill(); err != nil {
				p.logger.Warn("kill after output limit failed", "id", p.id, "error", err)
			}
			return
		}
		buf.Write(data)
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := p.SetOnRead(nil); err != nil {
			p.logger.Warn("clearing read callback failed", "id", p.id, "error", err)
		}
	}()

	if err := p.Launch(); err != nil {
		return nil, err
	}

	if _, err := p.Wait(ctx); err != nil {
		if kerr := p.Kill(); kerr != nil {
			p.logger.Warn("kill after cancellation failed", "id", p.id, "error", kerr)
		}
		return collected(), err
	}

	out := collected()
	mu.Lock()
	defer mu.Unlock()
	if overflow {
		return out, ErrOutputLimit
	}
	if out == nil {
		out = []byte{}
	}
	return out, nil
}
