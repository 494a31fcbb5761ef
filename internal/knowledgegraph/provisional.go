// File: internal/knowledgegraph/provisional.go
package knowledgegraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// provisionalSpacing separates consecutive provisional nodes of one type.
const provisionalSpacing = 150

// ProvisionalPrefix marks the ids of nodes not yet confirmed by the backend.
const ProvisionalPrefix = "knowledge-temp-"

// AddProvisional inserts a placeholder node for an item that is still being
// ingested and wires it to its category anchor. The node sits near the
// category start, offset by how many knowledge nodes of that type exist.
// The first full layout after its request settles replaces it.
func AddProvisional(canvas *Canvas, label string, kind schemas.KnowledgeType, isDynamic bool, opts Options) (schemas.Node, error) {
	if strings.TrimSpace(label) == "" {
		return schemas.Node{}, fmt.Errorf("provisional node needs a label")
	}
	cat, ok := opts.categoryFor(kind)
	if !ok {
		return schemas.Node{}, fmt.Errorf("unknown knowledge type %q", kind)
	}

	start, vertical := provisionalStart(cat.kind, opts)
	offset := float64(canvas.CountKnowledge(cat.kind)) * provisionalSpacing
	pos := start
	if vertical {
		pos.Y += offset
	} else {
		pos.X += offset
	}

	id := ProvisionalPrefix + uuid.NewString()
	node := schemas.Node{
		ID:       id,
		Kind:     schemas.NodeKnowledge,
		Position: pos,
		Data: schemas.NodeData{
			Label:     label,
			Category:  cat.kind,
			Status:    schemas.KnowledgeProcessing,
			Color:     cat.color,
			IsDynamic: cat.kind == schemas.KnowledgeWeb && isDynamic,
		},
		SourcePosition: cat.source,
		TargetPosition: cat.target,
		Provisional:    true,
	}

	if _, err := canvas.Node(cat.id); err != nil {
		// The anchor only exists once the agent has knowledge; add it so the
		// placeholder has something to attach to.
		canvas.AddNode(schemas.Node{
			ID: cat.id, Kind: schemas.NodeCategory, Position: cat.anchor,
			Data:           schemas.NodeData{Label: cat.label, Category: cat.kind, Color: cat.color},
			SourcePosition: cat.source, TargetPosition: cat.target,
		})
	}
	canvas.AddNode(node)
	if err := canvas.AddEdge(newEdge(id, cat.id, "edge-"+id+"-to-"+cat.id, cat.color)); err != nil {
		return schemas.Node{}, err
	}
	return node, nil
}

func provisionalStart(kind schemas.KnowledgeType, opts Options) (schemas.Position, bool) {
	switch kind {
	case schemas.KnowledgeWeb:
		return schemas.Position{X: opts.CenterX - 400, Y: opts.CenterY}, true
	case schemas.KnowledgePDF:
		return schemas.Position{X: opts.CenterX, Y: opts.CenterY + 200}, false
	default:
		return schemas.Position{X: opts.CenterX + 400, Y: opts.CenterY}, true
	}
}

// Tracker records which nodes have a request in flight. It only gates
// resubmission; it does not serialize requests.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]struct{})}
}

// Begin marks nodeID as processing. It returns false if it already was.
func (t *Tracker) Begin(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.pending[nodeID]; busy {
		return false
	}
	t.pending[nodeID] = struct{}{}
	return true
}

// Done clears nodeID.
func (t *Tracker) Done(nodeID string) {
	t.mu.Lock()
	delete(t.pending, nodeID)
	t.mu.Unlock()
}

// Processing reports whether nodeID has a request in flight.
func (t *Tracker) Processing(nodeID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.pending[nodeID]
	return busy
}

// Snapshot returns the ids currently in flight.
func (t *Tracker) Snapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]bool, len(t.pending))
	for id := range t.pending {
		out[id] = true
	}
	return out
}
