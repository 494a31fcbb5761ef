// File: cmd/upstream.go
package cmd

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/backend"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/service"
)

// upstreamProvider creates the agent API client used by the inspection
// commands. Tests replace it with a fake.
type upstreamProvider func(cfg config.Interface, logger *zap.Logger) (service.Upstream, error)

func defaultUpstream(cfg config.Interface, logger *zap.Logger) (service.Upstream, error) {
	client, err := backend.New(cfg.Backend(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
