package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/butter-bot-machines/childproc/pkg/process"
)

func (c *CLI) newRunCmd() *cobra.Command {
	var (
		envVars  []string
		cleanEnv bool
	)
	cmd := &cobra.Command{
		Use:   "run [flags] -- program [args...]",
		Short: "Run a program, streaming its output and relaying signals",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.newProcess(args, envVars, cleanEnv)
			if err != nil {
				return err
			}
			return c.stream(p)
		},
	}
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "Set an environment variable (KEY=VALUE), repeatable")
	cmd.Flags().BoolVar(&cleanEnv, "clean-env", false, "Start from an empty environment instead of inheriting ours")
	return cmd
}

func (c *CLI) newCallCmd() *cobra.Command {
	var (
		envVars  []string
		cleanEnv bool
		timeout  time.Duration
		limit    int
		input    string
	)
	cmd := &cobra.Command{
		Use:   "call [flags] -- program [args...]",
		Short: "Run a program to completion and print its collected output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []process.Option
			if limit > 0 {
				extra = append(extra, process.WithOutputLimit(limit))
			}
			p, err := c.newProcess(args, envVars, cleanEnv, extra...)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return c.call(ctx, p, input)
		},
	}
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "Set an environment variable (KEY=VALUE), repeatable")
	cmd.Flags().BoolVar(&cleanEnv, "clean-env", false, "Start from an empty environment instead of inheriting ours")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the program if it runs longer than this")
	cmd.Flags().IntVar(&limit, "limit", 0, "Kill the program once its output exceeds this many bytes")
	cmd.Flags().StringVar(&input, "input", "", "Text written to the program's stdin before it is closed")
	return cmd
}

// newProcess builds a child from the command line. The environment is ours
// unless cleanEnv is set, with envVars layered on top.
func (c *CLI) newProcess(args, envVars []string, cleanEnv bool, extra ...process.Option) (*process.Process, error) {
	backend, err := c.processBackend()
	if err != nil {
		return nil, err
	}

	environment := process.Environment{}
	if !cleanEnv {
		_, _, current, err := backend.Current()
		if err != nil {
			return nil, err
		}
		environment = current
	}
	for _, kv := range envVars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid environment variable %q: want KEY=VALUE", kv)
		}
		environment.Set(key, value)
	}

	opts := append([]process.Option{
		process.WithEnvironment(environment),
		process.WithBackend(backend),
		process.WithRegistry(c.registry),
		process.WithLogger(c.logger),
	}, extra...)
	return process.New(args, opts...)
}

// stream runs p with its merged output copied to our stdout and our stdin
// copied to it. SIGINT and SIGTERM are forwarded while it runs.
func (c *CLI) stream(p *process.Process) error {
	err := p.SetOnRead(func(data []byte) {
		_, _ = c.stdout.Write(data)
	})
	if err != nil {
		return err
	}

	if err := p.Launch(); err != nil {
		return err
	}

	go func() {
		_, _ = io.Copy(p.Stdin(), c.stdin)
		_ = p.Stdin().Close()
	}()

	sigs := make(chan os.Signal, 1)
	c.notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer c.stop(sigs)

	exited := make(chan int, 1)
	go func() {
		code, _ := p.Wait(context.Background())
		exited <- code
	}()

	for {
		select {
		case sig := <-sigs:
			c.relay(p, sig)
		case code := <-exited:
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		}
	}
}

func (c *CLI) relay(p *process.Process, sig os.Signal) {
	var err error
	switch sig {
	case os.Interrupt:
		err = p.SendSignalName("SIGINT")
	default:
		err = p.Terminate()
	}
	if err != nil {
		c.logger.Warn("failed to relay signal", "signal", sig.String(), "pid", p.PID(), "error", err)
		return
	}
	c.logger.Debug("relayed signal", "signal", sig.String(), "pid", p.PID())
}

// call runs p in call mode and prints whatever it produced, including the
// partial output of a killed child
func (c *CLI) call(ctx context.Context, p *process.Process, input string) error {
	if input != "" {
		if _, err := p.Stdin().WriteString(input); err != nil {
			return err
		}
	}
	if err := p.Stdin().Close(); err != nil {
		return err
	}

	out, err := p.Call(ctx)
	if _, werr := c.stdout.Write(out); werr != nil && err == nil {
		err = werr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("call timed out: %w", err)
	case err != nil:
		return err
	}
	if code := p.ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
