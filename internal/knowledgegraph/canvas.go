// File: internal/knowledgegraph/canvas.go
package knowledgegraph

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrEdgeNotFound = errors.New("edge not found")
)

// Canvas is the diagram currently shown for one agent: the last full layout
// plus any provisional nodes added since. It is safe for concurrent use.
// Insertion order is kept so snapshots render deterministically.
type Canvas struct {
	nodes         map[string]schemas.Node
	nodeOrder     []string
	edges         map[string]schemas.Edge // Key: edge ID
	edgeOrder     []string
	outgoingEdges map[string][]string // Key: node ID, Value: edge IDs
	mu            sync.RWMutex
	log           *zap.Logger
}

// NewCanvas creates an empty canvas.
func NewCanvas(logger *zap.Logger) *Canvas {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Canvas{log: logger.Named("canvas")}
	c.reset()
	return c
}

func (c *Canvas) reset() {
	c.nodes = make(map[string]schemas.Node)
	c.nodeOrder = nil
	c.edges = make(map[string]schemas.Edge)
	c.edgeOrder = nil
	c.outgoingEdges = make(map[string][]string)
}

// Replace swaps the whole diagram for a freshly computed layout. Provisional
// nodes disappear here.
func (c *Canvas) Replace(g schemas.Graph) error {
	return c.ReplaceKeeping(g, nil)
}

// ReplaceKeeping swaps the diagram like Replace but carries over the current
// nodes for which keep returns true, with their outgoing edges and whatever
// those edges point at. Nodes already in g win over carried ones.
func (c *Canvas) ReplaceKeeping(g schemas.Graph, keep func(schemas.Node) bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var carried []schemas.Node
	var carriedEdges []schemas.Edge
	targets := make(map[string]schemas.Node)
	if keep != nil {
		for _, id := range c.nodeOrder {
			n := c.nodes[id]
			if !keep(n) {
				continue
			}
			carried = append(carried, n)
			for _, eid := range c.outgoingEdges[id] {
				e := c.edges[eid]
				carriedEdges = append(carriedEdges, e)
				targets[e.Target] = c.nodes[e.Target]
			}
		}
	}

	c.reset()
	for _, n := range g.Nodes {
		c.putNode(n)
	}
	for _, e := range g.Edges {
		if err := c.putEdge(e); err != nil {
			return err
		}
	}

	for _, n := range carried {
		if _, exists := c.nodes[n.ID]; !exists {
			c.putNode(n)
		}
	}
	for _, e := range carriedEdges {
		if _, exists := c.nodes[e.Target]; !exists {
			c.putNode(targets[e.Target])
		}
		if err := c.putEdge(e); err != nil {
			return err
		}
	}
	c.log.Debug("Canvas replaced",
		zap.Int("nodes", len(g.Nodes)), zap.Int("edges", len(g.Edges)), zap.Int("carried", len(carried)))
	return nil
}

// AddNode adds a node. A node with the same ID is overwritten in place.
func (c *Canvas) AddNode(node schemas.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putNode(node)
}

func (c *Canvas) putNode(node schemas.Node) {
	if _, exists := c.nodes[node.ID]; !exists {
		c.nodeOrder = append(c.nodeOrder, node.ID)
	}
	c.nodes[node.ID] = node
}

// AddEdge adds an edge between two existing nodes. An edge with the same ID
// is overwritten.
func (c *Canvas) AddEdge(edge schemas.Edge) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.putEdge(edge)
}

func (c *Canvas) putEdge(edge schemas.Edge) error {
	if _, exists := c.nodes[edge.Source]; !exists {
		return fmt.Errorf("source node with id '%s' not found for edge: %w", edge.Source, ErrNodeNotFound)
	}
	if _, exists := c.nodes[edge.Target]; !exists {
		return fmt.Errorf("target node with id '%s' not found for edge: %w", edge.Target, ErrNodeNotFound)
	}

	existing, exists := c.edges[edge.ID]
	switch {
	case !exists:
		c.edgeOrder = append(c.edgeOrder, edge.ID)
		c.outgoingEdges[edge.Source] = append(c.outgoingEdges[edge.Source], edge.ID)
	case existing.Source != edge.Source:
		c.removeFromOutgoing(existing.Source, edge.ID)
		c.outgoingEdges[edge.Source] = append(c.outgoingEdges[edge.Source], edge.ID)
	}
	c.edges[edge.ID] = edge
	return nil
}

// removeFromOutgoing drops an edge ID from a node's outgoing list.
// Caller holds the write lock.
func (c *Canvas) removeFromOutgoing(nodeID, edgeID string) {
	ids := c.outgoingEdges[nodeID]
	for i, id := range ids {
		if id == edgeID {
			c.outgoingEdges[nodeID] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

// Node retrieves a node by ID.
func (c *Canvas) Node(id string) (schemas.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n, ok := c.nodes[id]
	if !ok {
		return schemas.Node{}, fmt.Errorf("node with id '%s': %w", id, ErrNodeNotFound)
	}
	return n, nil
}

// Edge retrieves an edge by ID.
func (c *Canvas) Edge(id string) (schemas.Edge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.edges[id]
	if !ok {
		return schemas.Edge{}, fmt.Errorf("edge with id '%s': %w", id, ErrEdgeNotFound)
	}
	return e, nil
}

// Neighbors returns the nodes that nodeID has outgoing edges to.
func (c *Canvas) Neighbors(nodeID string) ([]schemas.Node, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("node with id '%s': %w", nodeID, ErrNodeNotFound)
	}
	ids := c.outgoingEdges[nodeID]
	out := make([]schemas.Node, 0, len(ids))
	for _, id := range ids {
		e, ok := c.edges[id]
		if !ok {
			c.log.Warn("Inconsistency found: edge ID in index but not in edges map", zap.String("edge_id", id))
			continue
		}
		n, ok := c.nodes[e.Target]
		if !ok {
			c.log.Warn("Inconsistency found: target node not found", zap.String("node_id", e.Target))
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// OutgoingEdges returns the edges leaving nodeID.
func (c *Canvas) OutgoingEdges(nodeID string) ([]schemas.Edge, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.nodes[nodeID]; !ok {
		return nil, fmt.Errorf("node with id '%s': %w", nodeID, ErrNodeNotFound)
	}
	ids := c.outgoingEdges[nodeID]
	out := make([]schemas.Edge, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.edges[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// SetStatus updates the ingestion status shown on a node.
func (c *Canvas) SetStatus(nodeID string, status schemas.KnowledgeStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes[nodeID]
	if !ok {
		return fmt.Errorf("node with id '%s': %w", nodeID, ErrNodeNotFound)
	}
	n.Data.Status = status
	c.nodes[nodeID] = n
	return nil
}

// RestyleOutgoing applies style to every edge leaving nodeID.
func (c *Canvas) RestyleOutgoing(nodeID string, style schemas.EdgeStyle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.outgoingEdges[nodeID] {
		e := c.edges[id]
		e.Style = style
		c.edges[id] = e
	}
}

// RemoveByLabel removes every node labelled label together with its outgoing
// edges. It returns the first removed node.
func (c *Canvas) RemoveByLabel(label string) (schemas.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var first schemas.Node
	found := false
	kept := c.nodeOrder[:0:0]
	for _, id := range c.nodeOrder {
		n := c.nodes[id]
		if n.Data.Label != label {
			kept = append(kept, id)
			continue
		}
		if !found {
			first, found = n, true
		}
		c.dropOutgoing(id)
		delete(c.nodes, id)
	}
	c.nodeOrder = kept
	return first, found
}

// dropOutgoing deletes the edges leaving nodeID. Caller holds the write lock.
func (c *Canvas) dropOutgoing(nodeID string) {
	ids := c.outgoingEdges[nodeID]
	if len(ids) == 0 {
		return
	}
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		gone[id] = struct{}{}
		delete(c.edges, id)
	}
	delete(c.outgoingEdges, nodeID)

	kept := c.edgeOrder[:0:0]
	for _, id := range c.edgeOrder {
		if _, drop := gone[id]; !drop {
			kept = append(kept, id)
		}
	}
	c.edgeOrder = kept
}

// CountKnowledge counts knowledge nodes of the given category, provisional
// ones included.
func (c *Canvas) CountKnowledge(kind schemas.KnowledgeType) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, n := range c.nodes {
		if n.Kind == schemas.NodeKnowledge && n.Data.Category == kind {
			count++
		}
	}
	return count
}

// Graph returns a copy of the diagram in insertion order.
func (c *Canvas) Graph() schemas.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()

	g := schemas.Graph{
		Nodes: make([]schemas.Node, 0, len(c.nodeOrder)),
		Edges: make([]schemas.Edge, 0, len(c.edgeOrder)),
	}
	for _, id := range c.nodeOrder {
		g.Nodes = append(g.Nodes, c.nodes[id])
	}
	for _, id := range c.edgeOrder {
		g.Edges = append(g.Edges, c.edges[id])
	}
	return g
}
