// File: internal/server/respond.go
package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/backend"
	"github.com/a0x-labs/agentdeck/internal/chat"
	"github.com/a0x-labs/agentdeck/internal/grants"
	"github.com/a0x-labs/agentdeck/internal/knowledgegraph"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a bounded JSON body into out.
func decodeJSON(r *http.Request, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// errorStatus maps domain errors onto HTTP status codes.
func errorStatus(err error) int {
	var statusErr *backend.StatusError
	switch {
	case errors.Is(err, knowledgegraph.ErrEmptyInput),
		errors.Is(err, grants.ErrInvalidAmount),
		errors.Is(err, grants.ErrInvalidStatus),
		errors.Is(err, grants.ErrBadWeek),
		errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, knowledgegraph.ErrItemNotFound),
		errors.Is(err, knowledgegraph.ErrNodeNotFound),
		errors.Is(err, grants.ErrGrantNotFound),
		errors.Is(err, grants.ErrNotEnabled):
		return http.StatusNotFound
	case errors.Is(err, knowledgegraph.ErrBusy),
		errors.Is(err, knowledgegraph.ErrNoAgent),
		errors.Is(err, chat.ErrBusy),
		errors.Is(err, chat.ErrReset):
		return http.StatusConflict
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithError sends a JSON error response for err.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	if code >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).Error("Request failed.", zap.Error(err))
	}
	s.respondWithStatus(w, r, code, "error", nil, err.Error())
}

// respondWithSuccess sends a JSON success response.
func (s *Server) respondWithSuccess(w http.ResponseWriter, r *http.Request, code int, data interface{}) {
	s.respondWithStatus(w, r, code, "success", data, "")
}

func (s *Server) respondWithStatus(w http.ResponseWriter, r *http.Request, code int, status string, data interface{}, errMsg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := Response{Status: status, Data: data, Error: errMsg}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		observability.FromContext(r.Context()).Error("Failed to encode response", zap.Error(err))
	}
}
