// File: internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/observability"
	"github.com/a0x-labs/agentdeck/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server is the dashboard's HTTP and WebSocket front.
type Server struct {
	cfg      config.Interface
	logger   *zap.Logger
	registry *service.Registry
	sessions ClaimResolver

	httpServer *http.Server

	// baseCtx outlives requests; chat work started by a request runs on it
	// and is cancelled on shutdown.
	baseCtx  context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
}

// New creates a server over registry. sessions may be nil, in which case
// every caller is signed out.
func New(cfg config.Interface, registry *service.Registry, sessions ClaimResolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		logger:   logger.Named("server"),
		registry: registry,
		sessions: sessions,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Router builds the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	// WebSocket routes stay outside the access log group; the connection is
	// hijacked and outlives the request.
	r.Route("/ws/v1/agents/{handle}", func(r chi.Router) {
		r.Use(s.requireAccess)
		r.Get("/chat", s.handleChatSocket)
	})

	r.Group(func(r chi.Router) {
		r.Use(observability.RequestLogger(s.logger))

		r.Get("/healthz", s.handleHealthCheck)

		r.Route("/api/v1/agents/{handle}", func(r chi.Router) {
			r.Get("/dashboard", s.handleDashboard)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAccess)
				if t := s.cfg.Server().RequestTimeout; t > 0 {
					r.Use(middleware.Timeout(t))
				}

				r.Get("/knowledge/graph", s.handleKnowledgeGraph)
				r.Post("/knowledge", s.handleAddKnowledge)
				r.Put("/knowledge/refresh", s.handleRefreshKnowledge)
				r.Delete("/knowledge", s.handleDeleteKnowledge)
				r.Post("/knowledge/edit", s.handleEditKnowledge)

				r.Get("/grants", s.handleListGrants)
				r.Get("/grants/weeks", s.handleGrantWeeks)
				r.Put("/grants/{id}/status", s.handleGrantStatus)
				r.Put("/grants/{id}/amount", s.handleGrantAmount)
				r.Post("/grants/{id}/payment", s.handleGrantPayment)

				r.Get("/balances", s.handleBalances)
				r.Get("/conversations", s.handleConversations)

				r.Get("/chat", s.handleChatHistory)
				r.Post("/chat", s.handleChat)
				r.Delete("/chat", s.handleChatReset)
			})
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully and cancels
// chat work still in flight.
func (s *Server) Run(ctx context.Context) error {
	srvCfg := s.cfg.Server()
	s.httpServer = &http.Server{
		Addr:        srvCfg.ListenAddr,
		Handler:     s.Router(),
		ReadTimeout: srvCfg.ReadTimeout,
		// Write deadlines are left to handlers; the chat socket sets its own.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Dashboard server starting.", zap.String("address", srvCfg.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.cancel()
		s.Wait()
		if ok {
			s.logger.Error("HTTP server ListenAndServe error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down dashboard server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	s.cancel()
	s.Wait()
	s.logger.Info("Dashboard server stopped.")
	return nil
}

// Wait blocks until background chat work has finished.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Close cancels background work without stopping a listener.
func (s *Server) Close() {
	s.cancel()
	s.Wait()
}

// corsMiddleware provides basic CORS support for the dashboard frontend.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type snapshotKey struct{}

// snapshotFrom returns the settled gate of a request that passed requireAccess.
func snapshotFrom(ctx context.Context) access.Snapshot {
	snap, _ := ctx.Value(snapshotKey{}).(access.Snapshot)
	return snap
}

// settle runs the access gate for the request's handle and auth mode.
func (s *Server) settle(r *http.Request) access.Snapshot {
	handle := chi.URLParam(r, "handle")
	mode := schemas.ParseAuthMode(r.URL.Query().Get("auth"))
	claims := access.ClaimFunc(func(context.Context) (schemas.IdentityClaim, error) {
		if s.sessions == nil {
			return schemas.IdentityClaim{}, nil
		}
		claim, err := s.sessions.FromRequest(r)
		if errors.Is(err, access.ErrNoSession) {
			return schemas.IdentityClaim{}, nil
		}
		return claim, err
	})
	return s.registry.NewGate(handle, mode, claims).Settle(r.Context())
}

// requireAccess rejects requests whose gate does not grant access and keeps
// the per-agent state in sync with the freshly loaded agent.
func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.settle(r)
		if !snap.Outcome.Granted() {
			s.respondWithStatus(w, r, gateStatus(snap.Outcome), "error", snap.Outcome, snap.Outcome.Message)
			return
		}
		s.registry.Sync(chi.URLParam(r, "handle"), snap.Agent)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), snapshotKey{}, snap)))
	})
}

func gateStatus(o access.Outcome) int {
	switch o.State {
	case access.StateAwaitingSocialSignIn, access.StateAwaitingWallet:
		return http.StatusUnauthorized
	case access.StateMisconfigured:
		if errors.Is(o.Err, access.ErrAgentNotFound) {
			return http.StatusNotFound
		}
		return http.StatusForbidden
	default:
		return http.StatusForbidden
	}
}
