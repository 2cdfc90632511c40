// Package memory provides a scripted in-memory process backend for tests.
package memory

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/butter-bot-machines/childproc/pkg/pipe"
	"github.com/butter-bot-machines/childproc/pkg/process"
	"github.com/butter-bot-machines/childproc/pkg/timing"
)

// Signal codes understood by the fake children
const (
	SIGHUP  = 1
	SIGINT  = 2
	SIGKILL = 9
	SIGUSR1 = 10
	SIGUSR2 = 12
	SIGTERM = 15
)

// Script describes how a fake child behaves once spawned
type Script struct {
	// Stdout and Stderr are written in order right after spawn
	Stdout []string
	Stderr []string

	// ExitCode is reported when the child exits on its own
	ExitCode int

	// Delay postpones the exit on the backend's clock
	Delay time.Duration

	// Block keeps the child running until it is terminated, killed or
	// exited through Child.Exit
	Block bool

	// Echo copies stdin to stdout and exits once stdin is closed
	Echo bool

	// IgnoreTerm makes Terminate and SIGTERM have no effect
	IgnoreTerm bool

	// Err fails the spawn
	Err error
}

// Backend implements process.Backend with scripted children
type Backend struct {
	mu       sync.Mutex
	clock    timing.Clock
	scripts  map[string]Script
	children []*Child
	nextPID  int
	args     process.Arguments
	env      process.Environment
	current  *Child
}

// NewBackend creates a backend whose delays run on clock
func NewBackend(clock timing.Clock) *Backend {
	if clock == nil {
		clock = timing.New()
	}
	b := &Backend{
		clock:   clock,
		scripts: make(map[string]Script),
		nextPID: 100,
		args:    process.NewArguments("memory"),
		env:     process.Environment{"PATH": "/bin:/usr/bin", "HOME": "/home/test"},
	}
	b.current = &Child{backend: b, pid: 1, running: true}
	return b
}

// Script registers the behavior of program
func (b *Backend) Script(program string, s Script) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[program] = s
}

// SetCurrent replaces what Current reports about the calling process
func (b *Backend) SetCurrent(args []string, env process.Environment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.args = process.NewArguments(args...)
	b.env = env.Clone()
}

// Current implements process.Backend
func (b *Backend) Current() (process.Handle, process.Arguments, process.Environment, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.args, b.env.Clone(), nil
}

// Signals implements process.Backend
func (b *Backend) Signals() process.SignalTable {
	return process.SignalTable{
		"SIGHUP":  SIGHUP,
		"SIGINT":  SIGINT,
		"SIGKILL": SIGKILL,
		"SIGUSR1": SIGUSR1,
		"SIGUSR2": SIGUSR2,
		"SIGTERM": SIGTERM,
	}
}

// Spawn implements process.Backend
func (b *Backend) Spawn(spec process.SpawnSpec) (process.Handle, error) {
	program := spec.Args.Program()

	b.mu.Lock()
	script, ok := b.scripts[program]
	if !ok {
		b.mu.Unlock()
		return nil, &process.SpawnError{
			Reason:  process.SpawnNotFound,
			Program: program,
			Err:     errors.New("executable file not found"),
		}
	}
	if script.Err != nil {
		b.mu.Unlock()
		return nil, script.Err
	}
	c := &Child{
		backend: b,
		pid:     b.nextPID,
		args:    spec.Args,
		env:     spec.Env.Clone(),
		script:  script,
		stdout:  spec.Stdout,
		stderr:  spec.Stderr,
		exited:  spec.Exited,
		running: true,
	}
	b.nextPID++
	b.children = append(b.children, c)
	b.mu.Unlock()

	if spec.Stdin != nil {
		c.stdinPipe = spec.Stdin
		c.stdinW = &childStdin{child: c}
		if err := spec.Stdin.Attach(c.stdinW); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	for _, chunk := range script.Stdout {
		_, _ = io.WriteString(c.stdout, chunk)
	}
	for _, chunk := range script.Stderr {
		_, _ = io.WriteString(c.stderr, chunk)
	}
	c.mu.Unlock()

	switch {
	case script.Block, script.Echo:
	case script.Delay > 0:
		b.clock.AfterFunc(script.Delay, func() {
			c.finish(script.ExitCode)
		})
	default:
		go c.finish(script.ExitCode)
	}
	return c, nil
}

// Children returns every child spawned so far
func (b *Backend) Children() []*Child {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Child(nil), b.children...)
}

// Last returns the most recently spawned child, or nil
func (b *Backend) Last() *Child {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.children) == 0 {
		return nil
	}
	return b.children[len(b.children)-1]
}

// CurrentHandle returns the handle Current reports
func (b *Backend) CurrentHandle() *Child {
	return b.current
}

// Child is a fake spawned process
type Child struct {
	backend *Backend
	pid     int
	args    process.Arguments
	env     process.Environment
	script  Script
	stdout  io.Writer
	stderr  io.Writer
	exited  func(int)

	stdinPipe *pipe.Pipe
	stdinW    *childStdin

	mu      sync.Mutex
	running bool
	stdin   []byte
	eof     bool
	signals []int
	once    sync.Once
}

// PID implements process.Handle
func (c *Child) PID() int {
	return c.pid
}

// Running implements process.Handle
func (c *Child) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Terminate implements process.Handle
func (c *Child) Terminate() error {
	c.record(SIGTERM)
	if c.script.IgnoreTerm {
		return nil
	}
	go c.finish(128 + SIGTERM)
	return nil
}

// Kill implements process.Handle
func (c *Child) Kill() error {
	c.record(SIGKILL)
	go c.finish(128 + SIGKILL)
	return nil
}

// Signal implements process.Handle. SIGHUP, SIGINT, SIGTERM and SIGKILL end
// the child; other signals are only recorded.
func (c *Child) Signal(code int) error {
	if _, ok := c.backend.Signals().Name(code); !ok {
		return process.ErrUnsupportedSignal
	}
	c.record(code)
	switch code {
	case SIGTERM:
		if c.script.IgnoreTerm {
			return nil
		}
		fallthrough
	case SIGHUP, SIGINT, SIGKILL:
		go c.finish(128 + code)
	}
	return nil
}

// Exit ends the child with code, as if it exited on its own
func (c *Child) Exit(code int) {
	c.finish(code)
}

// Write emits output on the child's stdout while it runs
func (c *Child) Write(data string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running && c.stdout != nil {
		_, _ = io.WriteString(c.stdout, data)
	}
}

// Args returns the arguments the child was spawned with
func (c *Child) Args() process.Arguments {
	return c.args
}

// Env returns the environment the child was spawned with
func (c *Child) Env() process.Environment {
	return c.env
}

// Stdin returns everything written to the child's stdin
func (c *Child) Stdin() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.stdin)
}

// StdinClosed reports whether the child saw EOF on stdin
func (c *Child) StdinClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eof
}

// Signals returns the signal codes the child received, in order
func (c *Child) Signals() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.signals...)
}

func (c *Child) record(code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, code)
}

func (c *Child) finish(code int) {
	c.once.Do(func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		if c.stdinPipe != nil {
			c.stdinPipe.Release(c.stdinW)
		}
		if c.exited != nil {
			c.exited(code)
		}
	})
}

// childStdin receives the bytes a Process writes to a fake child
type childStdin struct {
	child *Child
}

func (w *childStdin) Write(data []byte) (int, error) {
	c := w.child
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0, io.ErrClosedPipe
	}
	c.stdin = append(c.stdin, data...)
	if c.script.Echo && c.stdout != nil {
		_, _ = c.stdout.Write(data)
	}
	return len(data), nil
}

func (w *childStdin) Close() error {
	c := w.child
	c.mu.Lock()
	c.eof = true
	echo := c.script.Echo && c.running
	c.mu.Unlock()
	if echo {
		go c.finish(c.script.ExitCode)
	}
	return nil
}
