// File: cmd/grants.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/grants"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

type grantsOptions struct {
	week   string
	kind   string
	status string
	weeks  bool
}

func newGrantsCmd(provider upstreamProvider) *cobra.Command {
	var opts grantsOptions

	cmd := &cobra.Command{
		Use:   "grants <handle>",
		Short: "List the grant applications of an agent",
		Long: `Lists grant applications with their status, amount and rating. Filters match
the dashboard: --week takes a value printed by --weeks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runGrants(ctx, cmd.OutOrStdout(), observability.GetLogger(), cfg, args[0], opts, provider)
		},
	}

	cmd.Flags().StringVar(&opts.week, "week", "", "Only grants submitted in this week (e.g. week2-2-2025).")
	cmd.Flags().StringVar(&opts.kind, "type", "", "Only repository or url grants.")
	cmd.Flags().StringVar(&opts.status, "status", "", "Only grants in this status.")
	cmd.Flags().BoolVar(&opts.weeks, "weeks", false, "Print the available week filters instead of grants.")
	return cmd
}

func runGrants(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, handle string, opts grantsOptions, provider upstreamProvider) error {
	up, err := provider(cfg, logger)
	if err != nil {
		return err
	}
	agent, err := up.GetAgent(ctx, handle)
	if err != nil {
		return fmt.Errorf("failed to load agent %q: %w", handle, err)
	}
	wb, err := grants.NewWorkbench(agent, up, cfg.Grants(), logger)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	if opts.weeks {
		fmt.Fprintln(tw, "VALUE\tLABEL")
		for _, wk := range wb.Weeks() {
			fmt.Fprintf(tw, "%s\tWeek %d - %s %d\n", wk, wk.Number, wk.Month, wk.Year)
		}
		return nil
	}

	f, err := grants.ParseFilter(opts.week, opts.kind, opts.status)
	if err != nil {
		return err
	}
	list, err := wb.List(f)
	if err != nil {
		return err
	}

	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tUSDC\tRATING")
	for _, g := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%.1f\n", g.ID, g.Kind(), g.Status, g.GrantAmountInUSDC, grants.Rating(g))
	}
	return nil
}
