package process_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cperrors "github.com/butter-bot-machines/childproc/pkg/errors"
	"github.com/butter-bot-machines/childproc/pkg/logging"
	memlog "github.com/butter-bot-machines/childproc/pkg/logging/memory"
	"github.com/butter-bot-machines/childproc/pkg/pipe"
	"github.com/butter-bot-machines/childproc/pkg/process"
	"github.com/butter-bot-machines/childproc/pkg/process/memory"
	"github.com/butter-bot-machines/childproc/pkg/timing"
)

const waitFor = 2 * time.Second

type fixture struct {
	backend  *memory.Backend
	registry *process.Registry
	logger   *memlog.Logger
	clock    *timing.Mock
}

func newFixture() *fixture {
	clock := timing.NewMock()
	return &fixture{
		backend:  memory.NewBackend(clock),
		registry: process.NewRegistry(),
		logger:   memlog.NewLogger(logging.LevelDebug, nil),
		clock:    clock,
	}
}

func (f *fixture) newProcess(t *testing.T, args []string, opts ...process.Option) *process.Process {
	t.Helper()
	opts = append([]process.Option{
		process.WithBackend(f.backend),
		process.WithRegistry(f.registry),
		process.WithLogger(f.logger),
	}, opts...)
	p, err := process.New(args, opts...)
	require.NoError(t, err)
	return p
}

func waitState(t *testing.T, p *process.Process, want process.State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.State() == want
	}, waitFor, time.Millisecond, "state never became %s", want)
}

func TestNew_Defaults(t *testing.T) {
	f := newFixture()
	p := f.newProcess(t, []string{"echo", "hi"})

	assert.NotEmpty(t, p.ID())
	assert.Equal(t, process.NoPID, p.PID())
	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())
	assert.Equal(t, process.StateUnlaunched, p.State())
	assert.False(t, p.IsRunning())
	assert.Equal(t, `"echo" "hi"`, p.String())

	require.NotNil(t, p.Stdin())
	require.NotNil(t, p.Stdout())
	require.NotNil(t, p.Stderr())
	assert.Equal(t, pipe.Writable, p.Stdin().Direction())
	assert.Equal(t, pipe.Readable, p.Stdout().Direction())

	v, ok := p.Getenv("HOME")
	assert.True(t, ok, "default environment is the current one")
	assert.Equal(t, "/home/test", v)
}

func TestNew_Errors(t *testing.T) {
	f := newFixture()

	_, err := process.New(nil, process.WithBackend(f.backend))
	var spawnErr *process.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, process.SpawnInvalidArguments, spawnErr.Reason)

	_, err = process.New([]string{"x"}, process.WithBackend(f.backend), process.WithStdin(pipe.NewReadable()))
	assert.ErrorIs(t, err, pipe.ErrInvalidDirection)
}

func TestExitCode_UnsetUntilExited(t *testing.T) {
	f := newFixture()
	f.backend.Script("sleeper", memory.Script{Block: true})
	p := f.newProcess(t, []string{"sleeper"})

	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())
	require.NoError(t, p.Launch())
	assert.Equal(t, process.StateRunning, p.State())
	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())

	f.backend.Last().Exit(3)
	waitState(t, p, process.StateExited)
	assert.Equal(t, 3, p.ExitCode())
}

func TestLaunch_AlreadyRunning(t *testing.T) {
	f := newFixture()
	f.backend.Script("sleeper", memory.Script{Block: true})
	p := f.newProcess(t, []string{"sleeper"})

	require.NoError(t, p.Launch())
	pid := p.PID()

	err := p.Launch()
	assert.ErrorIs(t, err, process.ErrAlreadyRunning)
	assert.Equal(t, pid, p.PID())
	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())
	assert.Len(t, f.backend.Children(), 1)
}

func TestLaunch_SpawnFailure(t *testing.T) {
	f := newFixture()
	p := f.newProcess(t, []string{"/no/such/program"})

	err := p.Launch()
	var spawnErr *process.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, process.SpawnNotFound, spawnErr.Reason)
	assert.Equal(t, "/no/such/program", spawnErr.Program)

	assert.Equal(t, process.StateUnlaunched, p.State())
	assert.False(t, f.registry.Contains(p))
	assert.Equal(t, 0, f.registry.Len())
}

func TestLaunch_ScriptedFailurePropagates(t *testing.T) {
	f := newFixture()
	denied := &process.SpawnError{Reason: process.SpawnPermissionDenied, Program: "locked"}
	f.backend.Script("locked", memory.Script{Err: denied})
	p := f.newProcess(t, []string{"locked"})

	err := p.Launch()
	assert.Same(t, denied, err)
}

func TestLaunch_AfterExitStartsFreshRun(t *testing.T) {
	f := newFixture()
	f.backend.Script("job", memory.Script{Block: true})
	p := f.newProcess(t, []string{"job"})
	id := p.ID()

	require.NoError(t, p.Launch())
	first := p.PID()
	f.backend.Last().Exit(1)
	waitState(t, p, process.StateExited)
	assert.Equal(t, 1, p.ExitCode())

	require.NoError(t, p.Launch())
	assert.Equal(t, process.StateRunning, p.State())
	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())
	assert.NotEqual(t, first, p.PID())
	assert.Equal(t, id, p.ID())
}

func TestDelayedExit(t *testing.T) {
	f := newFixture()
	f.backend.Script("slow", memory.Script{ExitCode: 4, Delay: 5 * time.Second})
	p := f.newProcess(t, []string{"slow"})

	require.NoError(t, p.Launch())
	f.clock.Add(4 * time.Second)
	assert.True(t, p.IsRunning())

	f.clock.Add(time.Second)
	waitState(t, p, process.StateExited)
	assert.Equal(t, 4, p.ExitCode())
}

func TestCloneEnvironment_Independent(t *testing.T) {
	f := newFixture()
	p := f.newProcess(t, []string{"echo"}, process.WithEnvironment(process.Environment{"A": "1"}))

	clone := p.CloneEnvironment()
	assert.True(t, clone.Equal(p.Environment()))

	clone.Set("A", "2")
	clone.Set("B", "3")
	v, _ := p.Getenv("A")
	assert.Equal(t, "1", v)
	_, ok := p.Getenv("B")
	assert.False(t, ok)

	p.Setenv("C", "4")
	_, ok = clone.Get("C")
	assert.False(t, ok)
}

func TestEnvironment_PassedToChild(t *testing.T) {
	f := newFixture()
	f.backend.Script("env", memory.Script{Block: true})
	p := f.newProcess(t, []string{"env"}, process.WithEnvironment(process.Environment{}))

	p.Setenv("GREETING", "hello")
	require.NoError(t, p.Launch())

	child := f.backend.Last()
	assert.Equal(t, process.Environment{"GREETING": "hello"}, child.Env())

	p.Setenv("GREETING", "changed")
	assert.Equal(t, "hello", child.Env()["GREETING"], "the child got a snapshot")

	p.SetEnvironment(nil)
	assert.Equal(t, 0, p.Environment().Len())
}

func TestSetOnRead_JoinsOnce(t *testing.T) {
	f := newFixture()
	p := f.newProcess(t, []string{"echo"})

	assert.False(t, p.Stderr().IsJoined())
	require.NoError(t, p.SetOnRead(func([]byte) {}))
	assert.True(t, p.Stderr().IsJoined())
	assert.Same(t, p.Stdout(), p.Stderr().JoinTarget())

	require.NoError(t, p.SetOnRead(func([]byte) {}))
	assert.Same(t, p.Stdout(), p.Stderr().JoinTarget())
	assert.False(t, p.Stdout().IsJoined())

	require.NoError(t, p.SetOnRead(nil))
	assert.False(t, p.Stdout().HasOnRead())
	assert.True(t, p.Stderr().IsJoined(), "clearing keeps the join")
}

func TestSetOnRead_ReceivesBothStreams(t *testing.T) {
	f := newFixture()
	f.backend.Script("noisy", memory.Script{
		Stdout: []string{"out1 ", "out2 "},
		Stderr: []string{"err1"},
	})
	p := f.newProcess(t, []string{"noisy"})

	var (
		mu  sync.Mutex
		got string
	)
	require.NoError(t, p.SetOnRead(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		got += string(data)
	}))

	done := make(chan int, 1)
	p.SetOnExit(func(code int) error {
		done <- code
		return nil
	})
	require.NoError(t, p.Launch())

	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(waitFor):
		t.Fatal("exit callback never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "out1 out2 err1", got, "output arrives before the exit callback")
}

func TestReadWithoutCallbackBuffers(t *testing.T) {
	f := newFixture()
	f.backend.Script("echo", memory.Script{Stdout: []string{"hi\n"}})
	p := f.newProcess(t, []string{"echo", "hi"})

	require.NoError(t, p.Launch())
	_, err := p.Wait(context.Background())
	require.NoError(t, err)

	got, err := p.Stdout().Read()
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(got))
}

func TestCall_ConcatenatesChunks(t *testing.T) {
	tests := []struct {
		name   string
		stdout []string
	}{
		{"single chunk", []string{"AB"}},
		{"two chunks", []string{"A", "B"}},
		{"empty chunks", []string{"", "A", "", "B", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.backend.Script("ab", memory.Script{Stdout: tt.stdout})
			p := f.newProcess(t, []string{"ab"})

			out, err := p.Call(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "AB", string(out))
			assert.Equal(t, process.StateExited, p.State())
			assert.Equal(t, 0, p.ExitCode())
		})
	}
}

func TestCall_MergesStderr(t *testing.T) {
	f := newFixture()
	f.backend.Script("mixed", memory.Script{
		Stdout:   []string{"out"},
		Stderr:   []string{"err"},
		ExitCode: 2,
	})
	p := f.newProcess(t, []string{"mixed"})

	out, err := p.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "outerr", string(out))
	assert.Equal(t, 2, p.ExitCode())
}

func TestCall_SilentChild(t *testing.T) {
	f := newFixture()
	f.backend.Script("true", memory.Script{})
	p := f.newProcess(t, []string{"true"})

	out, err := p.Call(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestCall_Stdin(t *testing.T) {
	f := newFixture()
	f.backend.Script("cat", memory.Script{Echo: true})
	p := f.newProcess(t, []string{"cat"})

	_, err := p.Stdin().WriteString("ping")
	require.NoError(t, err)
	require.NoError(t, p.Stdin().Close())

	out, err := p.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ping", string(out))
	assert.True(t, f.backend.Last().StdinClosed())
}

func TestCall_OutputLimit(t *testing.T) {
	f := newFixture()
	f.backend.Script("chatty", memory.Script{Stdout: []string{"hello", "world"}, Block: true})
	p := f.newProcess(t, []string{"chatty"}, process.WithOutputLimit(7))

	out, err := p.Call(context.Background())
	assert.ErrorIs(t, err, process.ErrOutputLimit)
	assert.Equal(t, "hellowo", string(out))
	assert.Equal(t, 128+memory.SIGKILL, p.ExitCode())
}

func TestCall_ContextCanceled(t *testing.T) {
	f := newFixture()
	f.backend.Script("hang", memory.Script{Stdout: []string{"partial"}, Block: true})
	p := f.newProcess(t, []string{"hang"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out, err := p.Call(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, []string{"", "partial"}, string(out))
	waitState(t, p, process.StateExited)
	assert.Contains(t, f.backend.Last().Signals(), memory.SIGKILL)
}

func TestCall_ReplacesExternalCallback(t *testing.T) {
	f := newFixture()
	f.backend.Script("echo", memory.Script{Stdout: []string{"x"}})
	p := f.newProcess(t, []string{"echo"})

	external := false
	require.NoError(t, p.SetOnRead(func([]byte) { external = true }))

	out, err := p.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))
	assert.False(t, external)
}

func TestCall_RemovesCollectorAfterReturn(t *testing.T) {
	f := newFixture()
	f.backend.Script("echo", memory.Script{Stdout: []string{"x"}})
	p := f.newProcess(t, []string{"echo"})

	out, err := p.Call(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))
	assert.False(t, p.Stdout().HasOnRead())

	require.NoError(t, p.Launch())
	_, err = p.Wait(context.Background())
	require.NoError(t, err)
	got, err := p.Stdout().Read()
	require.NoError(t, err)
	assert.Equal(t, "x", string(got), "a later run is buffered for Read")
}

func TestCall_RunningProcessKeepsCallback(t *testing.T) {
	f := newFixture()
	f.backend.Script("server", memory.Script{Block: true})
	p := f.newProcess(t, []string{"server"})

	var (
		mu   sync.Mutex
		seen []string
	)
	require.NoError(t, p.SetOnRead(func(data []byte) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(data))
	}))
	require.NoError(t, p.Launch())

	_, err := p.Call(context.Background())
	assert.ErrorIs(t, err, process.ErrAlreadyRunning)

	f.backend.Last().Write("still mine")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == "still mine"
	}, waitFor, time.Millisecond)
	require.NoError(t, p.Kill())
}

func TestSendSignal(t *testing.T) {
	f := newFixture()
	f.backend.Script("sleeper", memory.Script{Block: true})
	p := f.newProcess(t, []string{"sleeper"})

	t.Run("unknown before launch", func(t *testing.T) {
		assert.ErrorIs(t, p.SendSignalName("BOGUS"), process.ErrUnknownSignal)
		assert.ErrorIs(t, p.SendSignal(999), process.ErrUnknownSignal)
		assert.False(t, p.IsRunning())
	})

	t.Run("known before launch is a no-op", func(t *testing.T) {
		assert.NoError(t, p.SendSignalName("SIGUSR1"))
	})

	require.NoError(t, p.Launch())
	child := f.backend.Last()

	t.Run("unknown while running", func(t *testing.T) {
		assert.ErrorIs(t, p.SendSignalName("BOGUS"), process.ErrUnknownSignal)
		assert.True(t, p.IsRunning())
		assert.Empty(t, child.Signals())
	})

	t.Run("delivered by name and code", func(t *testing.T) {
		require.NoError(t, p.SendSignalName("USR1"))
		require.NoError(t, p.SendSignal(memory.SIGUSR2))
		require.NoError(t, p.SendSignalName("10"))
		assert.Equal(t, []int{memory.SIGUSR1, memory.SIGUSR2, memory.SIGUSR1}, child.Signals())
		assert.True(t, p.IsRunning())
	})

	t.Run("terminating signal", func(t *testing.T) {
		require.NoError(t, p.SendSignalName("SIGINT"))
		waitState(t, p, process.StateExited)
		assert.Equal(t, 128+memory.SIGINT, p.ExitCode())
	})
}

func TestTerminateAndKill(t *testing.T) {
	f := newFixture()
	f.backend.Script("sleeper", memory.Script{Block: true})
	f.backend.Script("stubborn", memory.Script{Block: true, IgnoreTerm: true})

	t.Run("not running is a no-op", func(t *testing.T) {
		p := f.newProcess(t, []string{"sleeper"})
		assert.NoError(t, p.Terminate())
		assert.NoError(t, p.Kill())
		assert.Empty(t, f.backend.Children())
	})

	t.Run("terminate", func(t *testing.T) {
		p := f.newProcess(t, []string{"sleeper"})
		require.NoError(t, p.Launch())
		require.NoError(t, p.Terminate())
		waitState(t, p, process.StateExited)
		assert.Equal(t, 128+memory.SIGTERM, p.ExitCode())
	})

	t.Run("kill after ignored terminate", func(t *testing.T) {
		p := f.newProcess(t, []string{"stubborn"})
		require.NoError(t, p.Launch())
		require.NoError(t, p.Terminate())
		assert.True(t, p.IsRunning())

		require.NoError(t, p.Kill())
		waitState(t, p, process.StateExited)
		assert.Equal(t, 128+memory.SIGKILL, p.ExitCode())
	})
}

func TestRestart(t *testing.T) {
	f := newFixture()
	f.backend.Script("server", memory.Script{Block: true})
	p := f.newProcess(t, []string{"server"}, process.WithEnvironment(process.Environment{"PORT": "8080"}))

	var (
		mu    sync.Mutex
		exits []int
	)
	p.SetOnExit(func(code int) error {
		mu.Lock()
		defer mu.Unlock()
		exits = append(exits, code)
		return nil
	})

	require.NoError(t, p.Launch())
	before := p.CloneEnvironment()
	oldPID := p.PID()
	oldChild := f.backend.Last()
	oldStdout := p.Stdout()

	require.NoError(t, p.Restart(process.RestartOptions{}))

	assert.True(t, p.IsRunning())
	assert.NotEqual(t, oldPID, p.PID())
	assert.True(t, before.Equal(p.Environment()))
	assert.NotSame(t, oldStdout, p.Stdout(), "nil pipes are replaced")
	assert.True(t, f.registry.Contains(p))

	require.Eventually(t, func() bool { return !oldChild.Running() }, waitFor, time.Millisecond)
	assert.Equal(t, []int{memory.SIGTERM}, oldChild.Signals())

	// the superseded run's exit must not touch the new run
	time.Sleep(10 * time.Millisecond)
	assert.True(t, p.IsRunning())
	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())
	assert.True(t, f.registry.Contains(p))
	mu.Lock()
	assert.Empty(t, exits)
	mu.Unlock()

	f.backend.Last().Exit(0)
	waitState(t, p, process.StateExited)
	require.Eventually(t, func() bool { return !f.registry.Contains(p) }, waitFor, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{0}, exits)
	mu.Unlock()
}

func TestRestart_WithOptions(t *testing.T) {
	f := newFixture()
	f.backend.Script("server", memory.Script{Block: true})
	p := f.newProcess(t, []string{"server"})

	stdout := pipe.NewReadable()
	stdin := pipe.NewWritable()
	env := process.Environment{"MODE": "restart"}
	require.NoError(t, p.Restart(process.RestartOptions{Env: env, Stdin: stdin, Stdout: stdout}))

	assert.Same(t, stdout, p.Stdout())
	assert.Same(t, stdin, p.Stdin())
	assert.Equal(t, env, f.backend.Last().Env())

	err := p.Restart(process.RestartOptions{Stdout: pipe.NewWritable()})
	assert.ErrorIs(t, err, pipe.ErrInvalidDirection)
}

func TestRestart_SpawnFailureKeepsCurrentRun(t *testing.T) {
	f := newFixture()
	f.backend.Script("server", memory.Script{Block: true, IgnoreTerm: true})
	p := f.newProcess(t, []string{"server"})

	require.NoError(t, p.Launch())
	oldChild := f.backend.Last()
	oldPID := p.PID()
	oldStdout := p.Stdout()
	oldStdin := p.Stdin()

	f.backend.Script("server", memory.Script{Err: errors.New("fork: resource temporarily unavailable")})
	err := p.Restart(process.RestartOptions{
		Env:    process.Environment{"X": "1"},
		Stdout: pipe.NewReadable(),
	})
	require.Error(t, err)

	assert.Len(t, f.backend.Children(), 1)
	assert.Equal(t, []int{memory.SIGTERM}, oldChild.Signals())
	assert.Equal(t, process.StateRunning, p.State())
	assert.True(t, p.IsRunning())
	assert.Equal(t, oldPID, p.PID())
	assert.Equal(t, process.ExitCodeUnset, p.ExitCode())
	assert.Same(t, oldStdout, p.Stdout())
	assert.Same(t, oldStdin, p.Stdin())
	_, ok := p.Getenv("X")
	assert.False(t, ok, "environment is restored")
	assert.True(t, f.registry.Contains(p))

	// the old child is still reachable
	require.NoError(t, p.Kill())
	waitState(t, p, process.StateExited)
	assert.Equal(t, []int{memory.SIGTERM, memory.SIGKILL}, oldChild.Signals())
	assert.Equal(t, 128+memory.SIGKILL, p.ExitCode())
	require.Eventually(t, func() bool { return !f.registry.Contains(p) }, waitFor, time.Millisecond)
}

func TestExitCallback_RegistryHoldsProcess(t *testing.T) {
	f := newFixture()
	f.backend.Script("job", memory.Script{ExitCode: 7})
	p := f.newProcess(t, []string{"job"})

	seen := make(chan bool, 1)
	p.SetOnExit(func(code int) error {
		seen <- f.registry.Contains(p)
		return nil
	})
	require.NoError(t, p.Launch())

	select {
	case held := <-seen:
		assert.True(t, held, "registry retains the process during its exit callback")
	case <-time.After(waitFor):
		t.Fatal("exit callback never ran")
	}
	require.Eventually(t, func() bool { return f.registry.Len() == 0 }, waitFor, time.Millisecond)
}

func TestExitCallback_FailuresAreLogged(t *testing.T) {
	tests := []struct {
		name string
		fn   process.ExitFunc
		want string
	}{
		{
			name: "error",
			fn:   func(int) error { return errors.New("callback failed") },
			want: "exit callback failed",
		},
		{
			name: "panic",
			fn:   func(int) error { panic("boom") },
			want: "callback panicked",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.backend.Script("job", memory.Script{})
			p := f.newProcess(t, []string{"job"})
			p.SetOnExit(tt.fn)

			require.NoError(t, p.Launch())
			require.Eventually(t, func() bool { return f.registry.Len() == 0 }, waitFor, time.Millisecond)

			require.Eventually(t, func() bool {
				for _, e := range f.logger.Find(tt.want) {
					if e.Level == logging.LevelError {
						return true
					}
				}
				return false
			}, waitFor, time.Millisecond, "expected %q in %+v", tt.want, f.logger.GetEntries())
		})
	}
}

func TestCallbackPanic_LoggedWithStack(t *testing.T) {
	f := newFixture()
	f.backend.Script("job", memory.Script{})
	p := f.newProcess(t, []string{"job"})
	p.SetOnExit(func(int) error { panic("boom") })

	require.NoError(t, p.Launch())
	require.Eventually(t, func() bool { return len(f.logger.Find("callback panicked")) == 1 }, waitFor, time.Millisecond)

	entry := f.logger.Find("callback panicked")[0]
	errValue, ok := entry.Value("error")
	require.True(t, ok)
	err, ok := errValue.(error)
	require.True(t, ok)
	assert.Contains(t, err.Error(), "panic recovered: boom")
	assert.Contains(t, err.Error(), "id="+p.ID())
	assert.Equal(t, "PanicError", cperrors.GetType(err).Name())

	stack, ok := entry.Value("stack")
	require.True(t, ok)
	assert.Contains(t, stack, "process_test.go", "stack reaches the panicking callback")
}

func TestCallbacksAreSerialized(t *testing.T) {
	f := newFixture()
	f.backend.Script("stream", memory.Script{Block: true})
	p := f.newProcess(t, []string{"stream"})

	var (
		mu       sync.Mutex
		inside   bool
		overlaps int
		count    int
	)
	require.NoError(t, p.SetOnRead(func([]byte) {
		mu.Lock()
		if inside {
			overlaps++
		}
		inside = true
		mu.Unlock()

		time.Sleep(100 * time.Microsecond)

		mu.Lock()
		inside = false
		count++
		mu.Unlock()
	}))
	require.NoError(t, p.Launch())

	child := f.backend.Last()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				child.Write("x")
			}
		}()
	}
	wg.Wait()
	child.Exit(0)

	_, err := p.Wait(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 80, count)
	assert.Zero(t, overlaps)
}

func TestWait(t *testing.T) {
	f := newFixture()
	f.backend.Script("sleeper", memory.Script{Block: true})
	p := f.newProcess(t, []string{"sleeper"})

	_, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, process.ErrNotRunning)

	require.NoError(t, p.Launch())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	code, err := p.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, process.ExitCodeUnset, code)

	f.backend.Last().Exit(5)
	code, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, code)
}

func TestCurrent(t *testing.T) {
	f := newFixture()
	f.backend.SetCurrent([]string{"/usr/bin/host", "--flag"}, process.Environment{"USER": "me"})

	p, err := process.Current(process.WithBackend(f.backend), process.WithRegistry(f.registry))
	require.NoError(t, err)

	assert.Equal(t, process.StateRunning, p.State())
	assert.True(t, p.IsRunning())
	assert.Equal(t, 1, p.PID())
	assert.Equal(t, []string{"/usr/bin/host", "--flag"}, p.Arguments().Slice())
	v, _ := p.Getenv("USER")
	assert.Equal(t, "me", v)
	assert.False(t, f.registry.Contains(p))

	assert.ErrorIs(t, p.Launch(), process.ErrCurrentProcess)
	assert.ErrorIs(t, p.Restart(process.RestartOptions{}), process.ErrCurrentProcess)
	_, err = p.Call(context.Background())
	assert.ErrorIs(t, err, process.ErrCurrentProcess)

	require.NoError(t, p.SendSignalName("SIGUSR1"))
	assert.Equal(t, []int{memory.SIGUSR1}, f.backend.CurrentHandle().Signals())
}

func TestNoBackend(t *testing.T) {
	if process.DefaultBackend() != nil {
		t.Skip("a default backend is registered")
	}
	_, err := process.New([]string{"echo"})
	assert.ErrorIs(t, err, process.ErrNoBackend)
	_, err = process.Current()
	assert.ErrorIs(t, err, process.ErrNoBackend)
}
