package os

import (
	"io"
	"os"
	"sync"
	"time"
)

// output copies one of a child's output pipes into its destination until
// the pipe closes or the stream is cut
type output struct {
	r    *os.File
	dst  io.Writer
	done chan struct{}

	mu  sync.Mutex
	cut bool
}

func copyOutput(r *os.File, dst io.Writer) *output {
	o := &output{r: r, dst: dst, done: make(chan struct{})}
	if dst == nil {
		o.dst = io.Discard
	}
	go func() {
		defer close(o.done)
		_, _ = io.Copy(o, r)
	}()
	return o
}

func (o *output) Write(b []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cut {
		return 0, io.ErrClosedPipe
	}
	return o.dst.Write(b)
}

// stop closes the read end. Nothing reaches the destination afterwards.
func (o *output) stop() {
	o.mu.Lock()
	o.cut = true
	o.mu.Unlock()
	_ = o.r.Close()
}

// drain waits up to d for every stream to reach EOF, then stops them all
func drain(d time.Duration, streams ...*output) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for _, o := range streams {
		select {
		case <-o.done:
		case <-timer.C:
			for _, s := range streams {
				s.stop()
			}
			return
		}
	}
	for _, o := range streams {
		o.stop()
	}
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
