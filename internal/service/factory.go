// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/backend"
	"github.com/a0x-labs/agentdeck/internal/chain"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/store"
)

// ComponentFactory builds the component set for the server. It exists so
// commands can be tested with a fake factory.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the upstream client, balance reader, session verifier,
// transcript persistence and the per-agent registry. Partially built
// components are shut down if a later step fails.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Upstream API
	client, err := backend.New(cfg.Backend(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create backend client: %w", err)
		return nil, initializationErr
	}
	components.Backend = client
	logger.Debug("Backend client initialized.", zap.String("base_url", cfg.Backend().BaseURL))

	// 2. Chain reader
	components.Chain = chain.NewReader(cfg.Chain(), logger)

	// 3. Sessions
	sessions, err := access.NewSessionVerifier(cfg.Session())
	if err != nil {
		logger.Warn("Session verification disabled; every caller is treated as signed out.", zap.Error(err))
	} else {
		components.Sessions = sessions
	}
	components.Notifier = access.NewNotifier(client, cfg.Access().NotifyTimeout, logger)

	// 4. Persistence: PostgreSQL when configured, otherwise transcript files.
	var mirror schemas.TranscriptMirror
	if url := cfg.Database().URL; url != "" {
		pool, err := store.Connect(ctx, url)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.DBPool = pool

		dbStore, err := store.New(ctx, pool, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
			return nil, initializationErr
		}
		if err := dbStore.EnsureSchema(ctx); err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		components.Store = dbStore
		mirror = dbStore

		components.events = make(chan schemas.GrantEvent, 256)
		components.consumerWG = &sync.WaitGroup{}
		StartGrantEventConsumer(ctx, components.consumerWG, components.events, dbStore, logger.Named("grant_events"))
		logger.Debug("Database store initialized.")
	} else {
		fm, err := store.NewFileMirror(cfg.Chat().TranscriptDir, logger)
		if err != nil {
			initializationErr = err
			return nil, initializationErr
		}
		mirror = fm
		logger.Debug("No database configured; mirroring transcripts to files.", zap.String("dir", fm.Dir()))
	}
	components.Mirror = mirror

	// 5. Registry
	deps := RegistryDeps{
		Upstream: client,
		Balances: components.Chain,
		Mirror:   mirror,
		Notifier: components.Notifier,
	}
	if components.events != nil {
		deps.Events = components.events
	}
	components.Registry = NewRegistry(deps, cfg, logger)

	logger.Info("All components initialized.")
	return components, nil
}
