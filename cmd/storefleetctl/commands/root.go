// Package commands implements the storefleetctl command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefleet.dev/storefleet/cmd/storefleetctl/rest"
)

const serverEnv = "STOREFLEET_SERVER"

type options struct {
	server  string
	output  string
	timeout time.Duration
	out     io.Writer
}

func (o *options) client() (*rest.Client, error) {
	return rest.NewClient(o.server, o.timeout)
}

func (o *options) printer() (printer, error) {
	return newPrinter(o.output, o.out)
}

// Execute runs the root command.
func Execute(ctx context.Context, out io.Writer) error {
	return newRootCommand(out).ExecuteContext(ctx)
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &options{out: out}

	defaultServer := os.Getenv(serverEnv)
	if defaultServer == "" {
		defaultServer = "http://localhost:3000"
	}

	rootCmd := &cobra.Command{
		Use:   "storefleetctl",
		Short: "Manage storefleet stores",
		Long: `storefleetctl talks to a storefleet server to create, inspect and
delete tenant stores.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.output {
			case outputTable, outputJSON, outputYAML:
				return nil
			}
			return fmt.Errorf("unknown output format %q (table, json, yaml)", opts.output)
		},
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer,
		"storefleet server URL (env "+serverEnv+")")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table, json, yaml")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(newListCommand(opts))
	rootCmd.AddCommand(newGetCommand(opts))
	rootCmd.AddCommand(newCreateCommand(opts))
	rootCmd.AddCommand(newDeleteCommand(opts))
	rootCmd.AddCommand(newEventsCommand(opts))
	rootCmd.AddCommand(newRestartCommand(opts))
	rootCmd.AddCommand(newLogsCommand(opts))
	rootCmd.AddCommand(newAuditCommand(opts))

	return rootCmd
}
