// File: internal/knowledgegraph/manager.go
package knowledgegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/backend"
)

var (
	// ErrEmptyInput is returned when the URL, file name or account is blank.
	ErrEmptyInput = errors.New("knowledge source is empty")
	// ErrNoAgent is returned when a mutation needs the agent but none is loaded.
	ErrNoAgent = errors.New("agent is not loaded")
	// ErrBusy is returned when the node already has a request in flight.
	ErrBusy = errors.New("knowledge item is already processing")
	// ErrItemNotFound is returned when the agent has no item with the URL.
	ErrItemNotFound = errors.New("knowledge item not found")
)

// Backend is the slice of the upstream API the knowledge base uses.
type Backend interface {
	GetAgent(ctx context.Context, handle string) (*schemas.Agent, error)
	AddWebKnowledge(ctx context.Context, req backend.AddKnowledgeRequest) (json.RawMessage, error)
	RefreshKnowledge(ctx context.Context, agentID, itemURL string) (json.RawMessage, error)
	DeleteKnowledge(ctx context.Context, agentID, itemURL string) error
	UploadKnowledgePDF(ctx context.Context, agentID, filename string, file io.Reader) error
	AddFarcasterKnowledge(ctx context.Context, agentID, account string) error
	EditKnowledge(ctx context.Context, agentID, itemURL, newData string) error
}

// WebSource describes a web page to ingest.
type WebSource struct {
	URL          string
	IsDynamic    bool
	Instructions string
}

// Manager owns the knowledge base of one agent: its canvas, the in-flight
// tracker and the local edit cache. Every confirmed mutation refetches the
// agent and recomputes the layout.
type Manager struct {
	handle  string
	backend Backend
	canvas  *Canvas
	tracker *Tracker
	opts    Options
	logger  *zap.Logger

	mu    sync.RWMutex
	agent *schemas.Agent
	edits map[string][]byte // Key: item URL
}

// NewManager creates a manager for handle. Call SetAgent or Refetch before use.
func NewManager(handle string, be Backend, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("knowledge").With(zap.String("handle", handle))
	return &Manager{
		handle:  handle,
		backend: be,
		canvas:  NewCanvas(logger),
		tracker: NewTracker(),
		opts:    opts,
		logger:  logger,
		edits:   make(map[string][]byte),
	}
}

// SetAgent installs agent and recomputes the diagram from its knowledge.
func (m *Manager) SetAgent(agent *schemas.Agent) {
	m.mu.Lock()
	m.agent = agent
	m.mu.Unlock()
	m.recompute(agent)
}

// Agent returns the agent the diagram was computed from.
func (m *Manager) Agent() *schemas.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agent
}

// Refetch reloads the agent and recomputes the diagram. On failure the
// current diagram is kept.
func (m *Manager) Refetch(ctx context.Context) error {
	agent, err := m.backend.GetAgent(ctx, m.handle)
	if err != nil {
		m.logger.Warn("Failed to refetch agent.", zap.Error(err))
		return err
	}
	m.SetAgent(agent)
	return nil
}

func (m *Manager) recompute(agent *schemas.Agent) {
	opts := m.opts
	var items []schemas.KnowledgeItem
	if agent != nil {
		opts.AgentName = agent.Name
		items = agent.Knowledge
	}
	// Placeholders with a request still in flight survive the new layout.
	inFlight := func(n schemas.Node) bool { return n.Provisional && m.tracker.Processing(n.ID) }
	if err := m.canvas.ReplaceKeeping(Layout(items, opts), inFlight); err != nil {
		m.logger.Error("Layout produced an inconsistent graph.", zap.Error(err))
	}
}

// Graph returns the current diagram.
func (m *Manager) Graph() schemas.Graph {
	return m.canvas.Graph()
}

// Canvas exposes the live canvas.
func (m *Manager) Canvas() *Canvas { return m.canvas }

// Processing returns the node ids with a request in flight.
func (m *Manager) Processing() map[string]bool {
	return m.tracker.Snapshot()
}

func (m *Manager) agentID() (string, error) {
	a := m.Agent()
	if a == nil || a.ID == "" {
		return "", ErrNoAgent
	}
	return a.ID, nil
}

// AddWeb ingests a web page. A provisional node is shown while the backend
// scrapes; the diagram is recomputed afterwards whatever the result.
func (m *Manager) AddWeb(ctx context.Context, src WebSource) (json.RawMessage, error) {
	src.URL = strings.TrimSpace(src.URL)
	if src.URL == "" {
		return nil, ErrEmptyInput
	}
	agentID, err := m.agentID()
	if err != nil {
		return nil, err
	}

	node, err := AddProvisional(m.canvas, src.URL, schemas.KnowledgeWeb, src.IsDynamic, m.opts)
	if err != nil {
		return nil, err
	}
	m.tracker.Begin(node.ID)

	scraped, err := m.backend.AddWebKnowledge(ctx, backend.AddKnowledgeRequest{
		AgentID:      agentID,
		URL:          src.URL,
		Type:         schemas.KnowledgeWeb,
		IsDynamic:    src.IsDynamic,
		Instructions: strings.TrimSpace(src.Instructions),
	})
	m.settleProvisional(node.ID, err)
	m.tracker.Done(node.ID)
	_ = m.Refetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("add web knowledge: %w", err)
	}
	return scraped, nil
}

// AddPDF uploads a PDF file as knowledge.
func (m *Manager) AddPDF(ctx context.Context, filename string, file io.Reader) error {
	if strings.TrimSpace(filename) == "" || file == nil {
		return ErrEmptyInput
	}
	agentID, err := m.agentID()
	if err != nil {
		return err
	}

	node, err := AddProvisional(m.canvas, filename, schemas.KnowledgePDF, false, m.opts)
	if err != nil {
		return err
	}
	m.tracker.Begin(node.ID)

	err = m.backend.UploadKnowledgePDF(ctx, agentID, filename, file)
	m.settleProvisional(node.ID, err)
	m.tracker.Done(node.ID)
	_ = m.Refetch(ctx)
	if err != nil {
		return fmt.Errorf("upload pdf knowledge: %w", err)
	}
	return nil
}

// AddFarcaster ingests a Farcaster account. The provisional node stays on
// the canvas; on success it turns completed with a Farcaster-coloured edge.
func (m *Manager) AddFarcaster(ctx context.Context, account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return ErrEmptyInput
	}
	agentID, err := m.agentID()
	if err != nil {
		return err
	}

	node, err := AddProvisional(m.canvas, account, schemas.KnowledgeFarcaster, false, m.opts)
	if err != nil {
		return err
	}
	m.tracker.Begin(node.ID)
	defer m.tracker.Done(node.ID)

	err = m.backend.AddFarcasterKnowledge(ctx, agentID, account)
	m.settleProvisional(node.ID, err)
	if err != nil {
		return fmt.Errorf("add farcaster knowledge: %w", err)
	}
	m.canvas.RestyleOutgoing(node.ID, schemas.EdgeStyle{Stroke: ColorFarcaster, StrokeDasharray: edgeDasharray})
	return nil
}

func (m *Manager) settleProvisional(nodeID string, err error) {
	status := schemas.KnowledgeCompleted
	if err != nil {
		status = schemas.KnowledgeError
		m.logger.Error("Knowledge ingestion failed.", zap.String("node_id", nodeID), zap.Error(err))
	}
	if serr := m.canvas.SetStatus(nodeID, status); serr != nil {
		m.logger.Debug("Provisional node already gone.", zap.String("node_id", nodeID))
	}
}

// Refresh re-scrapes a web item.
func (m *Manager) Refresh(ctx context.Context, itemURL string) (json.RawMessage, error) {
	agentID, err := m.agentID()
	if err != nil {
		return nil, err
	}
	nodeID := KnowledgeNodeID(itemURL)
	if !m.tracker.Begin(nodeID) {
		return nil, ErrBusy
	}
	defer m.tracker.Done(nodeID)

	refreshed, err := m.backend.RefreshKnowledge(ctx, agentID, itemURL)
	if err != nil {
		m.logger.Error("Failed to refresh knowledge.", zap.String("url", itemURL), zap.Error(err))
		_ = m.canvas.SetStatus(nodeID, schemas.KnowledgeError)
		return nil, fmt.Errorf("refresh knowledge: %w", err)
	}
	_ = m.canvas.SetStatus(nodeID, schemas.KnowledgeCompleted)
	_ = m.Refetch(ctx)
	return refreshed, nil
}

// Delete removes an item from the canvas and, unless it is a Farcaster
// account, from the backend. Farcaster removal is local only.
func (m *Manager) Delete(ctx context.Context, itemURL string) error {
	agentID, err := m.agentID()
	if err != nil {
		return err
	}
	node, found := m.canvas.RemoveByLabel(itemURL)
	if found && node.Data.Category == schemas.KnowledgeFarcaster {
		m.logger.Info("Removed farcaster knowledge locally.", zap.String("account", itemURL))
		return nil
	}
	if err := m.backend.DeleteKnowledge(ctx, agentID, itemURL); err != nil {
		m.logger.Error("Failed to delete knowledge.", zap.String("url", itemURL), zap.Error(err))
		return fmt.Errorf("delete knowledge: %w", err)
	}
	return nil
}

// Item returns the knowledge item for itemURL with any local edit applied.
func (m *Manager) Item(itemURL string) (schemas.KnowledgeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.agent == nil {
		return schemas.KnowledgeItem{}, ErrNoAgent
	}
	for _, it := range m.agent.Knowledge {
		if it.URL != itemURL {
			continue
		}
		if edited, ok := m.edits[itemURL]; ok {
			it.Data = edited
		}
		return it, nil
	}
	return schemas.KnowledgeItem{}, fmt.Errorf("%q: %w", itemURL, ErrItemNotFound)
}

// Edit replaces the content of an item. The new data is visible at once and
// reverted if the backend rejects the edit.
func (m *Manager) Edit(ctx context.Context, itemURL, content string) (schemas.KnowledgeItem, error) {
	agentID, err := m.agentID()
	if err != nil {
		return schemas.KnowledgeItem{}, err
	}
	prev, err := m.Item(itemURL)
	if err != nil {
		return schemas.KnowledgeItem{}, err
	}
	updated, err := ApplyEdit(prev.Data, content)
	if err != nil {
		return schemas.KnowledgeItem{}, err
	}

	m.mu.Lock()
	prior, hadPrior := m.edits[itemURL]
	m.edits[itemURL] = updated
	m.mu.Unlock()

	if err := m.backend.EditKnowledge(ctx, agentID, itemURL, content); err != nil {
		m.logger.Error("Failed to edit knowledge.", zap.String("url", itemURL), zap.Error(err))
		m.mu.Lock()
		if hadPrior {
			m.edits[itemURL] = prior
		} else {
			delete(m.edits, itemURL)
		}
		m.mu.Unlock()
		return prev, fmt.Errorf("edit knowledge: %w", err)
	}

	prev.Data = updated
	return prev, nil
}
