// Package os implements the native process backend on top of os/exec.
//
// Importing the package registers the backend as the process default:
//
//	import _ "github.com/butter-bot-machines/childproc/pkg/process/os"
package os

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/butter-bot-machines/childproc/pkg/process"
)

func init() {
	process.RegisterBackend(New())
}

// DefaultDrainDelay bounds how long output is awaited after a child exits
const DefaultDrainDelay = 250 * time.Millisecond

// Backend spawns real OS processes
type Backend struct {
	signals    process.SignalTable
	drainDelay time.Duration
}

// New creates a native backend
func New() *Backend {
	return &Backend{signals: signalTable(), drainDelay: DefaultDrainDelay}
}

// WithDrainDelay returns a copy of the backend that waits at most d for the
// output pipes to close after a child exits. Pipes still held open by the
// child's own children are cut off after that.
func (b *Backend) WithDrainDelay(d time.Duration) *Backend {
	c := *b
	c.drainDelay = d
	return &c
}

// Signals implements process.Backend
func (b *Backend) Signals() process.SignalTable {
	out := make(process.SignalTable, len(b.signals))
	for name, code := range b.signals {
		out[name] = code
	}
	return out
}

// Current implements process.Backend
func (b *Backend) Current() (process.Handle, process.Arguments, process.Environment, error) {
	pid := os.Getpid()
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, process.Arguments{}, nil, &process.PlatformError{Op: "find current process", Err: err}
	}
	h := &handle{proc: proc, pid: pid, signals: b.signals}
	return h, process.NewArguments(os.Args...), process.EnvironmentFromStrings(os.Environ()), nil
}

// Spawn implements process.Backend
func (b *Backend) Spawn(spec process.SpawnSpec) (process.Handle, error) {
	program := spec.Args.Program()
	if program == "" {
		return nil, &process.SpawnError{Reason: process.SpawnInvalidArguments, Err: errors.New("empty argument list")}
	}

	args := spec.Args.Slice()
	cmd := exec.Command(program, args[1:]...)
	if cmd.Err != nil {
		return nil, spawnError(program, cmd.Err)
	}
	cmd.Env = spec.Env.Strings()
	configureCmd(cmd)

	// the child writes straight into OS pipes, so reaping never waits on
	// output EOF
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, spawnError(program, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW)
		return nil, spawnError(program, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW, stdoutR, stdoutW)
		return nil, spawnError(program, err)
	}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = stdinR, stdoutW, stderrW

	err = cmd.Start()
	closeFiles(stdinR, stdoutW, stderrW)
	if err != nil {
		closeFiles(stdinW, stdoutR, stderrR)
		return nil, spawnError(program, err)
	}

	h := &handle{
		proc:    cmd.Process,
		pid:     cmd.Process.Pid,
		done:    make(chan struct{}),
		signals: b.signals,
	}
	stdout := copyOutput(stdoutR, spec.Stdout)
	stderr := copyOutput(stderrR, spec.Stderr)

	if spec.Stdin != nil {
		if err := spec.Stdin.Attach(stdinW); err != nil {
			closeFiles(stdinW)
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
			stdout.stop()
			stderr.stop()
			return nil, err
		}
	} else {
		closeFiles(stdinW)
	}

	go func() {
		state, err := h.proc.Wait()
		close(h.done)
		if spec.Stdin != nil {
			spec.Stdin.Release(stdinW)
		}
		_ = stdinW.Close()

		// output already written by the child is still delivered before
		// the exit is reported
		drain(b.drainDelay, stdout, stderr)
		if spec.Exited != nil {
			spec.Exited(exitCode(state, err))
		}
	}()
	return h, nil
}

// handle controls one OS process
type handle struct {
	proc    *os.Process
	pid     int
	signals process.SignalTable

	// done is closed once the child has been reaped. It is nil for the
	// calling process.
	done chan struct{}
}

func (h *handle) PID() int {
	return h.pid
}

func (h *handle) Running() bool {
	if h.done == nil {
		return true
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *handle) Kill() error {
	if !h.Running() {
		return nil
	}
	if err := h.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *handle) Terminate() error {
	if !h.Running() {
		return nil
	}
	return terminate(h)
}

func (h *handle) Signal(code int) error {
	if !h.signals.Contains(code) {
		return process.ErrUnsupportedSignal
	}
	if !h.Running() {
		return nil
	}
	return signal(h, code)
}

// spawnError classifies a failed start
func spawnError(program string, err error) *process.SpawnError {
	reason := process.SpawnUnknown
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		reason = process.SpawnNotFound
	case errors.Is(err, fs.ErrPermission), errors.Is(err, exec.ErrDot):
		reason = process.SpawnPermissionDenied
	default:
		if r, ok := classifyErrno(err); ok {
			reason = r
		}
	}
	return &process.SpawnError{Reason: reason, Program: program, Err: err}
}

// exitCode maps a finished child's state to its exit code
func exitCode(state *os.ProcessState, err error) int {
	if state == nil {
		// the child could not be reaped
		return 1
	}
	return stateExitCode(state)
}
