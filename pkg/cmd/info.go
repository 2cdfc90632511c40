package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *CLI) newSignalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signals",
		Short: "List the signals this platform can deliver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := c.processBackend()
			if err != nil {
				return err
			}
			table := backend.Signals()

			w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			for _, name := range table.Names() {
				code, _ := table.Lookup(name)
				fmt.Fprintf(w, "%s\t%d\n", name, code)
			}
			return w.Flush()
		},
	}
}

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(c.stdout, "childproc version %s\n", Version)
			return nil
		},
	}
}
