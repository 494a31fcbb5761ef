// File: cmd/graph.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/knowledgegraph"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

func newGraphCmd(provider upstreamProvider) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph <handle>",
		Short: "Print the knowledge graph layout for an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runGraph(ctx, cmd.OutOrStdout(), observability.GetLogger(), cfg, args[0], format, provider)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml.")
	return cmd
}

// runGraph fetches the agent, lays out its knowledge and prints the diagram.
func runGraph(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, handle, format string, provider upstreamProvider) error {
	format = strings.ToLower(format)
	if format != "json" && format != "yaml" {
		return fmt.Errorf("unsupported format %q (want json or yaml)", format)
	}

	up, err := provider(cfg, logger)
	if err != nil {
		return err
	}

	m := knowledgegraph.NewManager(handle, up, knowledgegraph.DefaultOptions(), logger)
	if err := m.Refetch(ctx); err != nil {
		return fmt.Errorf("failed to load agent %q: %w", handle, err)
	}

	graph := m.Graph()
	if format == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(graph)
	}
	return writeJSON(out, graph)
}
