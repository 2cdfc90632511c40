// Package cmd implements the childproc command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/butter-bot-machines/childproc/pkg/config/env"
	"github.com/butter-bot-machines/childproc/pkg/logging"
	slogging "github.com/butter-bot-machines/childproc/pkg/logging/slog"
	"github.com/butter-bot-machines/childproc/pkg/process"
)

const Version = "0.1.0"

// ExitError carries a child's non-zero exit code out of a command
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// CLI represents the command-line interface
type CLI struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	backend  process.Backend
	registry *process.Registry
	logger   logging.Logger
	env      *env.Environment

	// notify subscribes to the signals relayed to children
	notify func(c chan<- os.Signal, sigs ...os.Signal)
	stop   func(c chan<- os.Signal)

	logLevel    string
	logJSON     bool
	builtLogger bool
}

// Option customizes a CLI
type Option func(*CLI)

// WithIO replaces the standard streams
func WithIO(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(c *CLI) {
		c.stdin, c.stdout, c.stderr = stdin, stdout, stderr
	}
}

// WithBackend spawns children through b instead of the default backend
func WithBackend(b process.Backend) Option {
	return func(c *CLI) {
		c.backend = b
	}
}

// WithRegistry tracks children in r instead of the default registry
func WithRegistry(r *process.Registry) Option {
	return func(c *CLI) {
		c.registry = r
	}
}

// WithLogger uses l instead of building a logger from the flags
func WithLogger(l logging.Logger) Option {
	return func(c *CLI) {
		c.logger = l
	}
}

// WithEnv reads CHILDPROC_* overrides from e
func WithEnv(e *env.Environment) Option {
	return func(c *CLI) {
		c.env = e
	}
}

// WithSignals replaces signal subscription, mainly for tests
func WithSignals(notify func(chan<- os.Signal, ...os.Signal), stop func(chan<- os.Signal)) Option {
	return func(c *CLI) {
		c.notify, c.stop = notify, stop
	}
}

// NewCLI creates a new CLI instance
func NewCLI(opts ...Option) *CLI {
	c := &CLI{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		notify: signal.Notify,
		stop:   signal.Stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.env == nil {
		c.env = env.New()
	}
	if c.registry == nil {
		c.registry = process.DefaultRegistry()
	}
	return c
}

// Run executes the CLI with the given arguments
func (c *CLI) Run(args []string) error {
	return c.RunContext(context.Background(), args)
}

// RunContext executes the CLI, stopping supervised processes when ctx ends
func (c *CLI) RunContext(ctx context.Context, args []string) error {
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	return root.ExecuteContext(ctx)
}

func (c *CLI) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "childproc",
		Short: "Launch, supervise and signal child processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("expected 'run', 'call', 'up', 'signals' or 'version' subcommands")
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setupLogger(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.logLevel, "log-level", c.env.GetStringWithDefault("log_level", "warn"), "Minimum log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.logJSON, "log-json", c.env.GetBool("log_json"), "Write logs as JSON even on a terminal")

	root.AddCommand(c.newRunCmd())
	root.AddCommand(c.newCallCmd())
	root.AddCommand(c.newUpCmd())
	root.AddCommand(c.newSignalsCmd())
	root.AddCommand(c.newVersionCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true
	return root
}

// setupLogger builds the logger from the flags: text on a terminal, JSON
// otherwise
func (c *CLI) setupLogger(cmd *cobra.Command) error {
	if c.logger != nil {
		return nil
	}
	level, err := logging.ParseLevel(c.logLevel)
	if err != nil {
		return fmt.Errorf("%w: %q", err, c.logLevel)
	}
	c.logger = newLogger(level, c.stderr, c.logJSON || !isTerminal(c.stderr))
	c.builtLogger = true
	return nil
}

func newLogger(level logging.Level, w io.Writer, json bool) logging.Logger {
	logger := logging.NewLogger(&logging.Options{
		Level:  slogging.LevelToSlog(level),
		Output: w,
		JSON:   json,
	})
	return slogging.NewLoggerWrapper(logger, level, w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *CLI) processBackend() (process.Backend, error) {
	if c.backend != nil {
		return c.backend, nil
	}
	b := process.DefaultBackend()
	if b == nil {
		return nil, process.ErrNoBackend
	}
	return b, nil
}

// Execute runs the CLI entrypoint and exits the process
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewCLI().RunContext(ctx, os.Args[1:])
	stop()

	var exitErr *ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		os.Exit(exitErr.Code)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
