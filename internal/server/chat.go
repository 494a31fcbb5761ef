// File: internal/server/chat.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/chat"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

// conversation returns the orchestrator for the caller's wallet.
func (s *Server) conversation(r *http.Request) *chat.Orchestrator {
	snap := snapshotFrom(r.Context())
	return s.registry.Chat(r.Context(), chi.URLParam(r, "handle"), snap.Agent, snap.Claim.WalletAddress)
}

func viewOf(o *chat.Orchestrator) ChatView {
	return ChatView{History: o.History(), State: o.State()}
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	s.respondWithSuccess(w, r, http.StatusOK, viewOf(s.conversation(r)))
}

// handleChat accepts a message or a dialog action. Sends run in the
// background on the server's context; clients follow progress through GET
// /chat or the chat socket.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	o := s.conversation(r)

	var send func(ctx context.Context) (chat.Reply, error)
	switch req.Action {
	case ChatDismiss:
		o.DismissModal()
		s.respondWithSuccess(w, r, http.StatusOK, viewOf(o))
		return
	case ChatConfirm:
		send = o.ConfirmDeploy
	case ChatCancel:
		send = o.CancelDeploy
	case "":
		if strings.TrimSpace(req.Message) == "" {
			s.respondWithError(w, r, chat.ErrEmptyMessage)
			return
		}
		text := req.Message
		send = func(ctx context.Context) (chat.Reply, error) { return o.Send(ctx, text) }
	default:
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, fmt.Sprintf("Unknown chat action: %s", req.Action))
		return
	}

	if o.State().Busy {
		s.respondWithError(w, r, chat.ErrBusy)
		return
	}

	logger := observability.FromContext(r.Context())
	s.goBackground(logger, func(ctx context.Context) {
		reply, err := send(ctx)
		switch {
		case errors.Is(err, chat.ErrReset):
			logger.Debug("Chat reply discarded after reset.")
		case err != nil:
			logger.Warn("Chat message did not resolve.", zap.Error(err), zap.String("reply", reply.Message.Content))
		}
	})
	s.respondWithStatus(w, r, http.StatusAccepted, "accepted", viewOf(o), "")
}

func (s *Server) handleChatReset(w http.ResponseWriter, r *http.Request) {
	o := s.conversation(r)
	if err := o.Reset(r.Context()); err != nil {
		// The in-memory transcript is already gone.
		observability.FromContext(r.Context()).Warn("Failed to clear transcript mirror.", zap.Error(err))
	}
	s.respondWithSuccess(w, r, http.StatusOK, viewOf(o))
}

// goBackground runs fn on the server context and tracks it for shutdown.
func (s *Server) goBackground(logger *zap.Logger, fn func(ctx context.Context)) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		fn(observability.ContextWithLogger(s.baseCtx, logger))
	}()
}
