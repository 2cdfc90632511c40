package process

import (
	"io"

	"github.com/butter-bot-machines/childproc/pkg/pipe"
)

const (
	// ExitCodeUnset is reported by ExitCode until the process has exited
	ExitCodeUnset = -1
	// NoPID is reported by PID before the first launch
	NoPID = 0
)

// State is a Process lifecycle state
type State int

const (
	StateUnlaunched State = iota
	StateRunning
	StateExited
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateUnlaunched:
		return "unlaunched"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle controls one spawned child at the OS level
type Handle interface {
	// PID returns the OS process id
	PID() int

	// Running reports whether the OS still considers the child alive.
	// It must not block.
	Running() bool

	// Terminate requests a graceful shutdown and returns without waiting
	Terminate() error

	// Kill forcefully ends the child and returns without waiting
	Kill() error

	// Signal delivers a platform signal code
	Signal(code int) error
}

// SpawnSpec describes everything a Backend needs to start a child
type SpawnSpec struct {
	Args Arguments
	Env  Environment

	// Stdin is attached to the child's standard input for this run
	Stdin *pipe.Pipe

	// Stdout and Stderr receive the child's output as it arrives
	Stdout io.Writer
	Stderr io.Writer

	// Exited is called exactly once, after Stdout and Stderr have seen
	// the child's output. Output still held back by descendants of the
	// child may be cut off. It runs on a backend goroutine, never from
	// inside Spawn or a Handle method.
	Exited func(exitCode int)
}

// Backend is the per-platform capability set used by Process
type Backend interface {
	// Current describes the calling process
	Current() (Handle, Arguments, Environment, error)

	// Spawn starts a child wired to the streams in spec
	Spawn(spec SpawnSpec) (Handle, error)

	// Signals returns the platform's recognized signals
	Signals() SignalTable
}

// ExitFunc is notified once with the exit code when a run ends
type ExitFunc func(exitCode int) error
