package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"storefleet.dev/storefleet/cmd/storefleetctl/rest"
)

func newListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := setup(opts)
			if err != nil {
				return err
			}
			list, err := c.ListStores(cmd.Context())
			if err != nil {
				return err
			}
			return p.storeList(list)
		},
	}
}

func newGetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get <store-id>",
		Short: "Show one store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := setup(opts)
			if err != nil {
				return err
			}
			store, err := c.GetStore(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.store(store)
		},
	}
}

func newCreateCommand(opts *options) *cobra.Command {
	var req rest.CreateStoreRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a store",
		Example: `  # Create a WooCommerce store
  storefleetctl create --name "Coffee Shop" --email owner@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := setup(opts)
			if err != nil {
				return err
			}
			store, err := c.CreateStore(cmd.Context(), req)
			if err != nil {
				return err
			}
			return p.store(store)
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "store name")
	cmd.Flags().StringVar(&req.AdminEmail, "email", "", "store admin email")
	cmd.Flags().StringVar(&req.Plan, "plan", "woocommerce", "store plan: woocommerce or medusa")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <store-id>",
		Short: "Delete a store and everything it runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.DeleteStore(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(opts.out, "store %s deletion initiated\n", args[0])
			return nil
		},
	}
}

func newEventsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "events <store-id>",
		Short: "Show a store's provisioning events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := setup(opts)
			if err != nil {
				return err
			}
			events, err := c.ListEvents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return p.events(events)
		},
	}
}

func newRestartCommand(opts *options) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "restart <store-id>",
		Short: "Restart a Ready store's deployments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			restarted, err := c.RestartStore(cmd.Context(), args[0], target)
			if err != nil {
				return err
			}
			for _, name := range restarted {
				fmt.Fprintf(opts.out, "deployment %s restarted\n", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "all", "what to restart: all, wordpress, mysql")
	return cmd
}

func newLogsCommand(opts *options) *cobra.Command {
	var tail int

	cmd := &cobra.Command{
		Use:   "logs <store-id> <component>",
		Short: "Print the logs of a store component (wordpress or mysql)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			logs, err := c.StoreLogs(cmd.Context(), args[0], args[1], tail)
			if err != nil {
				return err
			}
			fmt.Fprint(opts.out, logs)
			return nil
		},
	}

	cmd.Flags().IntVar(&tail, "tail", 100, "number of lines")
	return cmd
}

func newAuditCommand(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the newest audit entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, p, err := setup(opts)
			if err != nil {
				return err
			}
			entries, err := c.ListAudit(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return p.audit(entries)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries")
	return cmd
}

func setup(opts *options) (*rest.Client, printer, error) {
	c, err := opts.client()
	if err != nil {
		return nil, printer{}, err
	}
	p, err := opts.printer()
	if err != nil {
		return nil, printer{}, err
	}
	return c, p, nil
}
