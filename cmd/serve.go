// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/observability"
	"github.com/a0x-labs/agentdeck/internal/server"
	"github.com/a0x-labs/agentdeck/internal/service"
)

// listenOverrides is implemented by configs whose listen and upstream
// addresses can be replaced from flags.
type listenOverrides interface {
	SetServerListenAddr(addr string)
	SetBackendBaseURL(u string)
}

func newServeCmd(factory service.ComponentFactory) *cobra.Command {
	var listenAddr, backendURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard API and chat socket",
		Long: `Starts the HTTP server that backs the agent dashboard: the access gate,
knowledge graph, grant review, balances and the agent chat. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if o, ok := cfg.(listenOverrides); ok {
				if listenAddr != "" {
					o.SetServerListenAddr(listenAddr)
				}
				if backendURL != "" {
					o.SetBackendBaseURL(backendURL)
				}
			}
			return runServe(ctx, logger, cfg, factory)
		},
	}

	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (overrides server.listen_addr).")
	cmd.Flags().StringVar(&backendURL, "backend-url", "", "Upstream agent API base URL (overrides backend.base_url).")
	return cmd
}

// runServe builds the components and serves until ctx is cancelled.
func runServe(ctx context.Context, logger *zap.Logger, cfg config.Interface, factory service.ComponentFactory) error {
	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	var sessions server.ClaimResolver
	if components.Sessions != nil {
		sessions = components.Sessions
	}

	srv := server.New(cfg, components.Registry, sessions, logger)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
