package supervisor

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// lineWriter prefixes each line of a child's merged output with the process
// name. Partial lines are held until their newline arrives or flush is
// called.
type lineWriter struct {
	name    string
	out     io.Writer
	outMu   *sync.Mutex
	partial []byte
}

func newLineWriter(name string, out io.Writer, outMu *sync.Mutex) *lineWriter {
	return &lineWriter{name: name, out: out, outMu: outMu}
}

// write is only called from the process dispatcher, so partial needs no lock
func (w *lineWriter) write(data []byte) {
	w.partial = append(w.partial, data...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			return
		}
		w.emit(w.partial[:i])
		w.partial = w.partial[i+1:]
	}
}

func (w *lineWriter) flush() {
	if len(w.partial) == 0 {
		return
	}
	w.emit(w.partial)
	w.partial = nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, "%s | %s\n", w.name, line)
}
