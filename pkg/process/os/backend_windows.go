//go:build windows

package os

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/butter-bot-machines/childproc/pkg/process"
)

// Signal codes follow the C runtime's numbering
const (
	sigINT   = 2
	sigKILL  = 9
	sigTERM  = 15
	sigBREAK = 21
)

func signalTable() process.SignalTable {
	return process.SignalTable{
		"SIGINT":   sigINT,
		"SIGKILL":  sigKILL,
		"SIGTERM":  sigTERM,
		"SIGBREAK": sigBREAK,
	}
}

// configureCmd puts the child in its own process group so console control
// events can target it alone
func configureCmd(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP}
}

func terminate(h *handle) error {
	if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(h.pid)); err != nil {
		return kill(h)
	}
	return nil
}

func signal(h *handle, code int) error {
	switch code {
	case sigINT, sigBREAK:
		// CTRL_C_EVENT is ignored by processes in a new group
		return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(h.pid))
	case sigKILL, sigTERM:
		return kill(h)
	}
	return process.ErrUnsupportedSignal
}

func kill(h *handle) error {
	if err := h.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func classifyErrno(err error) (process.SpawnReason, bool) {
	switch {
	case errors.Is(err, windows.ERROR_NOT_ENOUGH_MEMORY), errors.Is(err, windows.ERROR_OUTOFMEMORY),
		errors.Is(err, windows.ERROR_TOO_MANY_OPEN_FILES):
		return process.SpawnResourceExhausted, true
	case errors.Is(err, windows.ERROR_BAD_EXE_FORMAT), errors.Is(err, windows.ERROR_FILENAME_EXCED_RANGE):
		return process.SpawnInvalidArguments, true
	case errors.Is(err, windows.ERROR_ACCESS_DENIED):
		return process.SpawnPermissionDenied, true
	}
	return process.SpawnUnknown, false
}

func stateExitCode(state *os.ProcessState) int {
	return state.ExitCode()
}
