package supervisor

import (
	"context"
	"errors"
	"sync"

	"github.com/butter-bot-machines/childproc/pkg/config"
	cperrors "github.com/butter-bot-machines/childproc/pkg/errors"
	"github.com/butter-bot-machines/childproc/pkg/logging"
	"github.com/butter-bot-machines/childproc/pkg/metrics"
	"github.com/butter-bot-machines/childproc/pkg/pipe"
	"github.com/butter-bot-machines/childproc/pkg/process"
	"github.com/butter-bot-machines/childproc/pkg/watcher"
	"github.com/butter-bot-machines/childproc/pkg/watcher/concrete"
)

// unit is one supervised process
type unit struct {
	sup      *Supervisor
	cfg      config.ProcessConfig
	proc     *process.Process
	logger   logging.Logger
	lines    *lineWriter
	throttle *concrete.Throttle

	stdin          *pipe.Pipe
	stdout, stderr *pipe.Pipe

	mu       sync.Mutex
	stopping bool

	finished   chan struct{}
	finishOnce sync.Once
}

func newUnit(s *Supervisor, pc config.ProcessConfig, current process.Environment) (*unit, error) {
	env := process.Environment{}
	if pc.InheritEnv {
		env = current.Clone()
	}
	for k, v := range pc.Env {
		env.Set(k, v)
	}

	u := &unit{
		sup:      s,
		cfg:      pc,
		logger:   s.logger.With("process", pc.Name),
		stdin:    pipe.NewWritable(),
		stdout:   pipe.NewReadable(),
		stderr:   pipe.NewReadable(),
		finished: make(chan struct{}),
	}
	out, outMu := s.output()
	u.lines = newLineWriter(pc.Name, out, outMu)
	u.throttle = concrete.NewThrottle(watcher.HandlerFunc(u.restartForChange), pc.RestartLimit, s.opts.Clock)

	// Supervised children have no input source
	if err := u.stdin.Close(); err != nil {
		return nil, err
	}

	opts := []process.Option{
		process.WithEnvironment(env),
		process.WithStdin(u.stdin),
		process.WithStdout(u.stdout),
		process.WithStderr(u.stderr),
		process.WithBackend(s.opts.Backend),
		process.WithRegistry(s.opts.Registry),
		process.WithLogger(s.opts.Logger),
	}
	if pc.OutputLimit > 0 {
		opts = append(opts, process.WithOutputLimit(pc.OutputLimit))
	}
	proc, err := process.New(pc.Args, opts...)
	if err != nil {
		return nil, err
	}
	u.proc = proc

	if !pc.Oneshot {
		if err := proc.SetOnRead(u.lines.write); err != nil {
			return nil, err
		}
		proc.SetOnExit(u.onExit)
	}
	return u, nil
}

func (u *unit) run(ctx context.Context) error {
	if u.cfg.Oneshot {
		return u.runOnce(ctx)
	}

	if err := u.proc.Launch(); err != nil {
		return u.wrap(err)
	}
	u.logger.Info("started", "pid", u.proc.PID())

	if len(u.cfg.Watch) > 0 {
		w, err := concrete.NewWatcher(watcher.Options{
			Paths:  u.cfg.Watch,
			Delay:  u.cfg.Debounce,
			Clock:  u.sup.opts.Clock,
			Logger: u.logger,
		}, u.throttle)
		if err != nil {
			u.stop()
			return u.wrap(err)
		}
		defer w.Stop()
	}

	select {
	case <-ctx.Done():
		u.stop()
	case <-u.finished:
	}
	return nil
}

func (u *unit) runOnce(ctx context.Context) error {
	out, err := u.proc.Call(ctx)
	u.lines.write(out)
	u.lines.flush()

	code := u.proc.ExitCode()
	switch {
	case errors.Is(err, process.ErrOutputLimit):
		u.fail(u.wrap(err).WithContext("output_limit", u.cfg.OutputLimit))
		return nil
	case err != nil && ctx.Err() != nil:
		return nil
	case err != nil:
		return u.wrap(err)
	}

	u.logger.Info("finished", "exit_code", code)
	if code != 0 {
		u.fail(u.exitError(code))
	}
	return nil
}

// wrap attaches the process name and program to err
func (u *unit) wrap(err error) cperrors.Error {
	return cperrors.Wrap(err, "process %q", u.cfg.Name).WithContext("program", u.proc.Arguments().Program())
}

func (u *unit) exitError(code int) cperrors.Error {
	return cperrors.New(cperrors.StateError, "process %q exited with code %d", u.cfg.Name, code).
		WithContext("exit_code", code).
		WithContext("program", u.proc.Arguments().Program())
}

// fail records err for the report Run returns once everything finished
func (u *unit) fail(err cperrors.Error) {
	u.logger.Error("process failed", "error", cperrors.GetMessage(err), "context", cperrors.GetContext(err))
	u.sup.errs.Add(err)
}

// onExit runs on the process dispatcher after all output of the run has been
// delivered
func (u *unit) onExit(code int) error {
	u.lines.flush()

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stopping {
		return nil
	}
	u.logger.Info("exited", "exit_code", code)

	if !u.shouldRestart(code) {
		u.settle(code)
		return nil
	}
	if !u.throttle.Allow() {
		u.logger.Error("restart limit reached", "restart_limit", u.cfg.RestartLimit)
		u.settle(code)
		return nil
	}
	if err := u.restartLocked("exit"); err != nil {
		u.settle(code)
		return err
	}
	return nil
}

func (u *unit) shouldRestart(code int) bool {
	switch u.cfg.Restart {
	case config.RestartAlways:
		return true
	case config.RestartOnFailure:
		return code != 0
	default:
		return false
	}
}

// settle records a run that will not be restarted by policy. Watched
// processes stay supervised until a change brings them back.
func (u *unit) settle(code int) {
	if len(u.cfg.Watch) > 0 {
		u.logger.Info("waiting for changes", "exit_code", code)
		return
	}
	if code != 0 {
		u.fail(u.exitError(code))
	}
	u.finishOnce.Do(func() {
		close(u.finished)
	})
}

func (u *unit) restartForChange(path string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.stopping {
		return nil
	}
	u.logger.Info("change detected", "path", path)
	return u.restartLocked("change")
}

func (u *unit) restartLocked(reason string) error {
	err := u.proc.Restart(process.RestartOptions{
		Stdin:  u.stdin,
		Stdout: u.stdout,
		Stderr: u.stderr,
	})
	if err != nil {
		u.logger.Error("restart failed", "reason", reason, "error", err)
		return err
	}
	metrics.IncrementRestart(u.cfg.Name)
	u.logger.Info("restarted", "reason", reason, "pid", u.proc.PID())
	return nil
}

// stop terminates the process, escalating to kill after the stop timeout
func (u *unit) stop() {
	u.mu.Lock()
	u.stopping = true
	u.mu.Unlock()

	if !u.proc.IsRunning() {
		return
	}
	if err := u.proc.Terminate(); err != nil {
		u.logger.Warn("terminate failed", "error", err)
	}
	if u.wait() {
		return
	}

	u.logger.Warn("stop timed out, killing", "timeout", u.sup.opts.StopTimeout.String())
	if err := u.proc.Kill(); err != nil {
		u.logger.Warn("kill failed", "error", err)
	}
	if !u.wait() {
		u.logger.Error("process did not exit after kill", "pid", u.proc.PID())
	}
}

func (u *unit) wait() bool {
	ctx, cancel := context.WithTimeout(context.Background(), u.sup.opts.StopTimeout)
	defer cancel()
	_, err := u.proc.Wait(ctx)
	return err == nil
}
