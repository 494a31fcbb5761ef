// File: internal/server/handlers.go
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/grants"
	"github.com/a0x-labs/agentdeck/internal/knowledgegraph"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

const maxUploadBytes = 32 << 20

// handleHealthCheck confirms the server is responsive.
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleDashboard reports the gate outcome. The agent and its personality
// are only included once access is granted.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap := s.settle(r)
	view := DashboardView{Outcome: snap.Outcome}
	if snap.Outcome.Granted() {
		handle := chi.URLParam(r, "handle")
		s.registry.Sync(handle, snap.Agent)
		view.Agent = snap.Agent
		view.Personality = snap.Personality
		if snap.Agent != nil {
			view.GrantsEnabled = s.cfg.Grants().Enabled(snap.Agent.Name)
		}
	}
	s.respondWithSuccess(w, r, http.StatusOK, view)
}

// -- Knowledge --

func (s *Server) knowledge(r *http.Request) *knowledgegraph.Manager {
	return s.registry.Dashboard(chi.URLParam(r, "handle")).Knowledge
}

func (s *Server) handleKnowledgeGraph(w http.ResponseWriter, r *http.Request) {
	m := s.knowledge(r)
	s.respondWithSuccess(w, r, http.StatusOK, GraphView{Graph: m.Graph(), Processing: m.Processing()})
}

// handleAddKnowledge accepts a JSON body for web pages and Farcaster
// accounts, or a multipart upload with a "file" part for PDFs.
func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	m := s.knowledge(r)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, fmt.Sprintf("Invalid upload: %v", err))
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, "Missing 'file' part in upload.")
			return
		}
		defer file.Close()
		if err := m.AddPDF(r.Context(), header.Filename, file); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		s.respondWithSuccess(w, r, http.StatusCreated, GraphView{Graph: m.Graph(), Processing: m.Processing()})
		return
	}

	var req KnowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}

	switch req.Type {
	case schemas.KnowledgeFarcaster:
		account := req.Account
		if account == "" {
			account = req.URL
		}
		if err := m.AddFarcaster(r.Context(), account); err != nil {
			s.respondWithError(w, r, err)
			return
		}
		s.respondWithSuccess(w, r, http.StatusCreated, GraphView{Graph: m.Graph(), Processing: m.Processing()})
	case schemas.KnowledgeWeb, schemas.KnowledgeWebsite, "":
		scraped, err := m.AddWeb(r.Context(), knowledgegraph.WebSource{
			URL:          req.URL,
			IsDynamic:    req.IsDynamic,
			Instructions: req.Instructions,
		})
		if err != nil {
			s.respondWithError(w, r, err)
			return
		}
		s.respondWithSuccess(w, r, http.StatusCreated, map[string]interface{}{
			"scraped": scraped,
			"graph":   m.Graph(),
		})
	default:
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, fmt.Sprintf("Unsupported knowledge type: %s", req.Type))
	}
}

func (s *Server) handleRefreshKnowledge(w http.ResponseWriter, r *http.Request) {
	var req KnowledgeEditRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.respondWithError(w, r, knowledgegraph.ErrEmptyInput)
		return
	}
	refreshed, err := s.knowledge(r).Refresh(r.Context(), req.URL)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithSuccess(w, r, http.StatusOK, refreshed)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	itemURL := r.URL.Query().Get("url")
	if strings.TrimSpace(itemURL) == "" {
		s.respondWithError(w, r, knowledgegraph.ErrEmptyInput)
		return
	}
	m := s.knowledge(r)
	if err := m.Delete(r.Context(), itemURL); err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithSuccess(w, r, http.StatusOK, GraphView{Graph: m.Graph(), Processing: m.Processing()})
}

func (s *Server) handleEditKnowledge(w http.ResponseWriter, r *http.Request) {
	var req KnowledgeEditRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	item, err := s.knowledge(r).Edit(r.Context(), req.URL, req.Content)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithSuccess(w, r, http.StatusOK, item)
}

// -- Grants --

func (s *Server) workbench(r *http.Request) (*grants.Workbench, error) {
	snap := snapshotFrom(r.Context())
	return s.registry.Grants(chi.URLParam(r, "handle"), snap.Agent)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	wb, err := s.workbench(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	q := r.URL.Query()
	f, err := grants.ParseFilter(q.Get("week"), q.Get("type"), q.Get("status"))
	if err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	list, err := wb.List(f)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}

	type grantRow struct {
		Grant  schemas.Grant `json:"grant"`
		Rating float64       `json:"rating"`
	}
	rows := make([]grantRow, 0, len(list))
	for _, g := range list {
		rows = append(rows, grantRow{Grant: g, Rating: grants.Rating(g)})
	}
	s.respondWithSuccess(w, r, http.StatusOK, map[string]interface{}{
		"count":  len(rows),
		"grants": rows,
	})
}

func (s *Server) handleGrantWeeks(w http.ResponseWriter, r *http.Request) {
	wb, err := s.workbench(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	weeks := wb.Weeks()
	out := make([]WeekOption, 0, len(weeks)+1)
	out = append(out, WeekOption{Value: grants.AllWeeks, Label: "All weeks"})
	for _, wk := range weeks {
		out = append(out, WeekOption{
			Value: wk.String(),
			Label: fmt.Sprintf("Week %d - %s %d", wk.Number, wk.Month, wk.Year),
		})
	}
	s.respondWithSuccess(w, r, http.StatusOK, out)
}

// respondWithResult reports a grant mutation. A failed backend call still
// carries the rolled-back grant and its toast.
func (s *Server) respondWithResult(w http.ResponseWriter, r *http.Request, res grants.Result, err error) {
	if err != nil {
		code := errorStatus(err)
		if code == http.StatusInternalServerError {
			// Rolled-back backend failures that are not HTTP status errors.
			code = http.StatusBadGateway
		}
		observability.FromContext(r.Context()).Warn("Grant mutation failed.", zap.Error(err))
		var data interface{}
		if res.Toast != nil {
			data = res
		}
		s.respondWithStatus(w, r, code, "error", data, err.Error())
		return
	}
	s.respondWithSuccess(w, r, http.StatusOK, res)
}

func (s *Server) handleGrantStatus(w http.ResponseWriter, r *http.Request) {
	wb, err := s.workbench(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	res, err := wb.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	s.respondWithResult(w, r, res, err)
}

func (s *Server) handleGrantAmount(w http.ResponseWriter, r *http.Request) {
	wb, err := s.workbench(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	if req.Amount == nil {
		s.respondWithError(w, r, grants.ErrInvalidAmount)
		return
	}
	res, err := wb.UpdateAmount(r.Context(), chi.URLParam(r, "id"), *req.Amount)
	s.respondWithResult(w, r, res, err)
}

func (s *Server) handleGrantPayment(w http.ResponseWriter, r *http.Request) {
	wb, err := s.workbench(r)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	var req amountRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondWithStatus(w, r, http.StatusBadRequest, "error", nil, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	amount := 0.0
	if req.Amount != nil {
		amount = *req.Amount
	} else if g, err := wb.Get(id); err == nil {
		amount = g.GrantAmountInUSDC
	}
	res, err := wb.Send(r.Context(), id, amount)
	s.respondWithResult(w, r, res, err)
}

// -- Balances and conversations --

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r.Context())
	b, err := s.registry.Balances(r.Context(), chi.URLParam(r, "handle"), snap.Agent)
	if err != nil {
		observability.FromContext(r.Context()).Warn("Failed to read balances.", zap.Error(err))
		s.respondWithStatus(w, r, http.StatusBadGateway, "error", nil, "Failed to read wallet balances.")
		return
	}
	s.respondWithSuccess(w, r, http.StatusOK, b)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	snap := snapshotFrom(r.Context())
	if snap.Agent == nil {
		s.respondWithError(w, r, knowledgegraph.ErrNoAgent)
		return
	}
	convs, err := s.registry.Upstream().GetConversations(r.Context(), snap.Agent.ID)
	if err != nil {
		s.respondWithError(w, r, err)
		return
	}
	s.respondWithSuccess(w, r, http.StatusOK, convs)
}
