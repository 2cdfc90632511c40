//go:build unix

package os

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/butter-bot-machines/childproc/pkg/process"
)

var signalNames = []string{
	"SIGABRT", "SIGALRM", "SIGBUS", "SIGCHLD", "SIGCONT", "SIGFPE",
	"SIGHUP", "SIGILL", "SIGINT", "SIGIO", "SIGKILL", "SIGPIPE",
	"SIGPROF", "SIGQUIT", "SIGSEGV", "SIGSTOP", "SIGSYS", "SIGTERM",
	"SIGTRAP", "SIGTSTP", "SIGTTIN", "SIGTTOU", "SIGURG", "SIGUSR1",
	"SIGUSR2", "SIGVTALRM", "SIGWINCH", "SIGXCPU", "SIGXFSZ",
}

func signalTable() process.SignalTable {
	table := make(process.SignalTable, len(signalNames))
	for _, name := range signalNames {
		if sig := unix.SignalNum(name); sig != 0 {
			table[name] = int(sig)
		}
	}
	return table
}

func configureCmd(cmd *exec.Cmd) {}

func terminate(h *handle) error {
	return signal(h, int(unix.SIGTERM))
}

func signal(h *handle, code int) error {
	// os.Process tracks the reaped child, so a recycled pid is never hit
	err := h.proc.Signal(syscall.Signal(code))
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func classifyErrno(err error) (process.SpawnReason, bool) {
	switch {
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOMEM),
		errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE):
		return process.SpawnResourceExhausted, true
	case errors.Is(err, unix.E2BIG), errors.Is(err, unix.ENOEXEC):
		return process.SpawnInvalidArguments, true
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return process.SpawnPermissionDenied, true
	}
	return process.SpawnUnknown, false
}

// stateExitCode reports 128+signo for children ended by a signal
func stateExitCode(state *os.ProcessState) int {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}
