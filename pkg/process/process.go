// Package process manages the lifecycle of child processes.
//
// A Process owns an argument list, an environment and three pipes. Launch
// asks the platform Backend to spawn the child; output is delivered to the
// pipes and the exit code to the exit callback, all on a per-process serial
// dispatcher. Running processes are retained by a Registry until their exit
// has been delivered.
package process

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	cperrors "github.com/butter-bot-machines/childproc/pkg/errors"
	"github.com/butter-bot-machines/childproc/pkg/logging"
	lslog "github.com/butter-bot-machines/childproc/pkg/logging/slog"
	"github.com/butter-bot-machines/childproc/pkg/metrics"
	"github.com/butter-bot-machines/childproc/pkg/pipe"
)

// Process is a child process, or a description of the calling process when
// obtained from Current
type Process struct {
	id          string
	backend     Backend
	registry    *Registry
	logger      logging.Logger
	panics      cperrors.PanicHandler
	dispatch    *dispatcher
	outputLimit int
	current     bool
	pid         atomic.Int64

	mu     sync.Mutex
	args   Arguments
	env    Environment
	stdin  *pipe.Pipe
	stdout *pipe.Pipe
	stderr *pipe.Pipe
	state  State
	run    *run
	onExit ExitFunc
}

// run is one launch of a Process
type run struct {
	handle   Handle
	done     chan struct{}
	exitCode int
}

// RestartOptions replaces a Process's environment and pipes for the next
// run. Nil fields get a clone of the current environment or fresh pipes.
type RestartOptions struct {
	Env    Environment
	Stdin  *pipe.Pipe
	Stdout *pipe.Pipe
	Stderr *pipe.Pipe
}

// New creates an unlaunched process for args
func New(args []string, opts ...Option) (*Process, error) {
	p := newProcess(opts)
	p.args = NewArguments(args...)
	if p.args.Len() == 0 {
		return nil, &SpawnError{Reason: SpawnInvalidArguments, Err: errors.New("empty argument list")}
	}
	if p.backend == nil {
		return nil, ErrNoBackend
	}

	if p.env == nil {
		_, _, env, err := p.backend.Current()
		if err != nil {
			return nil, err
		}
		p.env = env.Clone()
	}
	if p.stdin == nil {
		p.stdin = pipe.NewWritable()
	}
	if p.stdout == nil {
		p.stdout = pipe.NewReadable()
	}
	if p.stderr == nil {
		p.stderr = pipe.NewReadable()
	}
	if p.stdin.Direction() != pipe.Writable || p.stdout.Direction() != pipe.Readable || p.stderr.Direction() != pipe.Readable {
		return nil, pipe.ErrInvalidDirection
	}
	return p, nil
}

// Current returns a Process describing the calling process. It is running,
// is never retained by a registry and cannot be launched or restarted.
func Current(opts ...Option) (*Process, error) {
	p := newProcess(opts)
	if p.backend == nil {
		return nil, ErrNoBackend
	}

	h, args, env, err := p.backend.Current()
	if err != nil {
		return nil, err
	}
	p.current = true
	p.args = args
	p.env = env
	p.stdin = pipe.NewWritable()
	p.stdout = pipe.NewReadable()
	p.stderr = pipe.NewReadable()
	p.state = StateRunning
	p.run = &run{handle: h, done: make(chan struct{}), exitCode: ExitCodeUnset}
	p.pid.Store(int64(h.PID()))
	return p, nil
}

func newProcess(opts []Option) *Process {
	p := &Process{
		id:       uuid.NewString(),
		backend:  DefaultBackend(),
		registry: DefaultRegistry(),
		state:    StateUnlaunched,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = lslog.NewLogger(logging.LevelWarn, os.Stderr)
	}
	p.logger = p.logger.WithGroup("process")
	p.panics = cperrors.NewPanicHandler(cperrors.DefaultRegistry(), nil)
	p.dispatch = newDispatcher(p.recovered)
	return p
}

// recovered logs a panic raised by a read or exit callback
func (p *Process) recovered(v interface{}) {
	err := cperrors.WithContext(p.panics.Handle(v), "id", p.id)
	args := []interface{}{"pid", p.PID(), "error", err}
	if stack := cperrors.GetStack(err); stack != nil {
		args = append(args, "stack", stack.String())
	}
	p.logger.Error("callback panicked", args...)
}

// ID returns the process identity, stable across restarts
func (p *Process) ID() string {
	return p.id
}

// PID returns the OS process id of the latest run, or NoPID before launch
func (p *Process) PID() int {
	return int(p.pid.Load())
}

// ExitCode returns the exit code of the latest run, or ExitCodeUnset while
// it has not exited
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateExited {
		return ExitCodeUnset
	}
	return p.run.exitCode
}

// State returns the lifecycle state
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// IsRunning reports whether the child of the latest run is alive. It turns
// false as soon as the backend sees the child gone, which may be before
// State moves to StateExited once the remaining output has been delivered.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning && p.run != nil && p.run.handle.Running()
}

// Arguments returns the argument list
func (p *Process) Arguments() Arguments {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.args
}

// Environment returns the live environment used for the next launch
func (p *Process) Environment() Environment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env
}

// Getenv returns one environment value
func (p *Process) Getenv(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env.Get(name)
}

// Setenv sets one environment value for subsequent launches
func (p *Process) Setenv(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.env.Set(name, value)
}

// SetEnvironment replaces the environment for subsequent launches
func (p *Process) SetEnvironment(env Environment) {
	if env == nil {
		env = Environment{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.env = env
}

// CloneEnvironment returns an independent copy of the environment
func (p *Process) CloneEnvironment() Environment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.env.Clone()
}

// Stdin returns the writable pipe feeding the child
func (p *Process) Stdin() *pipe.Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdin
}

// Stdout returns the readable pipe carrying the child's standard output
func (p *Process) Stdout() *pipe.Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stdout
}

// Stderr returns the readable pipe carrying the child's standard error
func (p *Process) Stderr() *pipe.Pipe {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stderr
}

// String renders the argument list
func (p *Process) String() string {
	return p.Arguments().String()
}

// Launch starts a new run. Launching an exited process reuses its identity
// with a fresh exit code.
func (p *Process) Launch() error {
	if p.current {
		return ErrCurrentProcess
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launchLocked()
}

func (p *Process) launchLocked() error {
	if p.state == StateRunning {
		return ErrAlreadyRunning
	}
	return p.spawnLocked()
}

// spawnLocked starts a run and makes it current. On failure the current run
// and state are left as they were.
func (p *Process) spawnLocked() error {
	r := &run{done: make(chan struct{}), exitCode: ExitCodeUnset}
	spec := SpawnSpec{
		Args:   p.args,
		Env:    p.env.Clone(),
		Stdin:  p.stdin,
		Stdout: &outputWriter{dispatch: p.dispatch, pipe: p.stdout},
		Stderr: &outputWriter{dispatch: p.dispatch, pipe: p.stderr},
		Exited: func(exitCode int) {
			p.exited(r, exitCode)
		},
	}

	h, err := p.backend.Spawn(spec)
	if err != nil {
		var spawnErr *SpawnError
		if errors.As(err, &spawnErr) {
			metrics.RecordSpawnFailure(spawnErr.Reason.String())
		} else {
			metrics.RecordSpawnFailure("")
		}
		p.logger.Warn("launch failed", "id", p.id, "args", p.args.String(), "error", err)
		return err
	}

	r.handle = h
	p.run = r
	p.state = StateRunning
	p.pid.Store(int64(h.PID()))
	p.registry.Add(p)

	metrics.RecordSpawn(p.args.Program())
	p.logger.Debug("launched", "id", p.id, "pid", h.PID(), "args", p.args.String())
	return nil
}

// Restart replaces the environment and pipes as described by opts,
// terminates the running child if any and launches a new run. The
// superseded run's exit is not reported.
//
// If the new run cannot be spawned the previous environment and pipes are
// restored and a terminated child stays the current run, so its exit is
// still reported and Kill still reaches it.
func (p *Process) Restart(opts RestartOptions) error {
	if p.current {
		return ErrCurrentProcess
	}
	if opts.Stdin != nil && opts.Stdin.Direction() != pipe.Writable {
		return pipe.ErrInvalidDirection
	}
	if (opts.Stdout != nil && opts.Stdout.Direction() != pipe.Readable) ||
		(opts.Stderr != nil && opts.Stderr.Direction() != pipe.Readable) {
		return pipe.ErrInvalidDirection
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.Env == nil {
		opts.Env = p.env.Clone()
	}
	if opts.Stdin == nil {
		opts.Stdin = pipe.NewWritable()
	}
	if opts.Stdout == nil {
		opts.Stdout = pipe.NewReadable()
	}
	if opts.Stderr == nil {
		opts.Stderr = pipe.NewReadable()
	}

	prevEnv, prevStdin, prevStdout, prevStderr := p.env, p.stdin, p.stdout, p.stderr
	p.env = opts.Env
	p.stdin = opts.Stdin
	p.stdout = opts.Stdout
	p.stderr = opts.Stderr

	if p.state == StateRunning {
		if err := p.run.handle.Terminate(); err != nil {
			p.logger.Warn("terminate before restart failed", "id", p.id, "pid", p.PID(), "error", err)
		}
	}
	if err := p.spawnLocked(); err != nil {
		p.env, p.stdin, p.stdout, p.stderr = prevEnv, prevStdin, prevStdout, prevStderr
		return err
	}
	return nil
}

// Terminate asks the child to exit. It is a no-op unless running.
func (p *Process) Terminate() error {
	h := p.runningHandle()
	if h == nil {
		return nil
	}
	return h.Terminate()
}

// Kill forcefully ends the child. It is a no-op unless running.
func (p *Process) Kill() error {
	h := p.runningHandle()
	if h == nil {
		return nil
	}
	return h.Kill()
}

// SendSignal delivers a platform signal code. Codes missing from the
// backend's signal table fail with ErrUnknownSignal whether or not the
// process is running.
func (p *Process) SendSignal(code int) error {
	if !p.backend.Signals().Contains(code) {
		return ErrUnknownSignal
	}

	h := p.runningHandle()
	if h == nil {
		return nil
	}
	if err := h.Signal(code); err != nil {
		return err
	}
	metrics.RecordSignal(code)
	return nil
}

// SendSignalName delivers a signal given by name, such as "SIGTERM" or
// "TERM", or by decimal code
func (p *Process) SendSignalName(name string) error {
	code, err := ParseSignal(p.backend.Signals(), name)
	if err != nil {
		return err
	}
	return p.SendSignal(code)
}

// Signals returns the signal table of the process's backend
func (p *Process) Signals() SignalTable {
	return p.backend.Signals()
}

func (p *Process) runningHandle() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning || p.run == nil {
		return nil
	}
	return p.run.handle
}

// SetOnRead delivers stdout and stderr through fn. The first non-nil fn
// joins stderr into stdout; a nil fn clears the callback and leaves the
// join in place.
func (p *Process) SetOnRead(fn pipe.ReadFunc) error {
	stdout, stderr := p.Stdout(), p.Stderr()
	if fn == nil {
		return stdout.SetOnRead(nil)
	}
	if !stderr.IsJoined() {
		if err := stdout.Join(stderr); err != nil {
			return err
		}
	}
	return stdout.SetOnRead(fn)
}

// SetOnExit registers fn to receive the exit code of every later run
func (p *Process) SetOnExit(fn ExitFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onExit = fn
}

// Wait blocks until the latest run exits or ctx is done and returns the
// run's exit code. A run superseded by Restart reports ExitCodeUnset unless
// its exit was observed first.
func (p *Process) Wait(ctx context.Context) (int, error) {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		return ExitCodeUnset, ErrNotRunning
	}

	select {
	case <-r.done:
	case <-ctx.Done():
		return ExitCodeUnset, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return r.exitCode, nil
}

// exited is called by the backend once per run, after the run's output has
// been handed to the output writers
func (p *Process) exited(r *run, exitCode int) {
	p.mu.Lock()
	r.exitCode = exitCode
	stale := p.run != r
	if !stale {
		p.state = StateExited
	}
	p.mu.Unlock()

	metrics.RecordExit(p.Arguments().Program(), exitCode)

	if stale {
		p.logger.Debug("ignoring exit of superseded run", "id", p.id, "exit_code", exitCode)
		p.dispatch.enqueue(func() {
			close(r.done)
		})
		return
	}

	p.logger.Debug("exited", "id", p.id, "pid", p.PID(), "exit_code", exitCode)
	p.dispatch.enqueue(func() {
		close(r.done)
		defer p.release(r)

		p.mu.Lock()
		fn := p.onExit
		p.mu.Unlock()
		if fn == nil {
			return
		}
		if err := fn(exitCode); err != nil {
			p.logger.Error("exit callback failed", "id", p.id, "exit_code", exitCode, "error", err)
		}
	})
}

// release drops the registry's reference unless a newer run took over
func (p *Process) release(r *run) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == r {
		p.registry.Release(p)
	}
}

// outputWriter hands child output to the dispatcher for delivery to a pipe
type outputWriter struct {
	dispatch *dispatcher
	pipe     *pipe.Pipe
}

func (w *outputWriter) Write(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	w.dispatch.enqueue(func() {
		w.pipe.Deliver(chunk)
	})
	return len(data), nil
}
