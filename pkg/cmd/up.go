package cmd

import (
	"github.com/spf13/cobra"

	"github.com/butter-bot-machines/childproc/pkg/config"
	"github.com/butter-bot-machines/childproc/pkg/logging"
	"github.com/butter-bot-machines/childproc/pkg/supervisor"
)

func (c *CLI) newUpCmd() *cobra.Command {
	var (
		file        string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Supervise every process of a definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig(file)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			c.applyLogging(cmd, cfg.Logging)

			backend, err := c.processBackend()
			if err != nil {
				return err
			}
			sup, err := supervisor.New(cfg, supervisor.Options{
				Backend:  backend,
				Registry: c.registry,
				Logger:   c.logger,
				Output:   c.stdout,
			})
			if err != nil {
				return err
			}
			return sup.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "childproc.yaml", "Path to the process definition file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// applyLogging lets the definition file set what the flags left at their
// defaults
func (c *CLI) applyLogging(cmd *cobra.Command, lc config.LoggingConfig) {
	level := c.logger.GetLevel()
	if !cmd.Flags().Changed("log-level") && lc.Level != "" {
		if parsed, err := logging.ParseLevel(lc.Level); err == nil {
			level = parsed
		}
	}
	if !c.builtLogger {
		c.logger.SetLevel(level)
		return
	}
	c.logger = newLogger(level, c.stderr, c.logJSON || lc.JSON || !isTerminal(c.stderr))
}

// loadConfig reads the definition file and applies CHILDPROC_* overrides
func (c *CLI) loadConfig(path string) (*config.Config, error) {
	manager := config.NewManager(path, c.env)
	if err := manager.Load(); err != nil {
		return nil, err
	}
	return manager.Get(), nil
}
