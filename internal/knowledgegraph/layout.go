// File: internal/knowledgegraph/layout.go
package knowledgegraph

import (
	"math"
	"net/url"
	"strings"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// Fixed node ids of the diagram skeleton.
const (
	RootID              = "agent-node"
	WebCategoryID       = "web-category"
	PDFCategoryID       = "pdf-category"
	FarcasterCategoryID = "farcaster-category"
)

// Category colours, shared by anchors, items and edges.
const (
	ColorWeb       = "#3b82f6"
	ColorPDF       = "#22c55e"
	ColorFarcaster = "#8A63D2"
)

const (
	edgeType      = "floating"
	edgeDasharray = "5,5"

	domainRing = 0.8 // domain nodes, as a fraction of the radius
	itemRing   = 0.5 // items around their domain node
)

// Options positions the diagram on the canvas.
type Options struct {
	CenterX   float64
	CenterY   float64
	Radius    float64
	AgentName string
}

// DefaultOptions matches the dashboard canvas.
func DefaultOptions() Options {
	return Options{CenterX: 500, CenterY: 300, Radius: 200}
}

type category struct {
	kind       schemas.KnowledgeType
	id         string
	color      string
	label      string
	anchor     schemas.Position
	startAngle float64
	source     schemas.Handle
	target     schemas.Handle
}

func (o Options) categories() []category {
	cx, cy := o.CenterX, o.CenterY
	return []category{
		{
			kind: schemas.KnowledgeWeb, id: WebCategoryID, color: ColorWeb, label: "Web",
			anchor: schemas.Position{X: cx - 450, Y: cy}, startAngle: math.Pi / 2,
			source: schemas.HandleRight, target: schemas.HandleLeft,
		},
		{
			kind: schemas.KnowledgePDF, id: PDFCategoryID, color: ColorPDF, label: "PDF",
			anchor: schemas.Position{X: cx + 150, Y: cy + 200}, startAngle: 0,
			source: schemas.HandleTop, target: schemas.HandleBottom,
		},
		{
			kind: schemas.KnowledgeFarcaster, id: FarcasterCategoryID, color: ColorFarcaster, label: "Farcaster",
			anchor: schemas.Position{X: cx + 450, Y: cy}, startAngle: -math.Pi / 2,
			source: schemas.HandleLeft, target: schemas.HandleRight,
		},
	}
}

func (o Options) categoryFor(t schemas.KnowledgeType) (category, bool) {
	kind, ok := t.Category()
	if !ok {
		return category{}, false
	}
	for _, c := range o.categories() {
		if c.kind == kind {
			return c, true
		}
	}
	return category{}, false
}

// Layout computes the radial knowledge diagram. It is pure: the same items in
// the same order always produce the same graph. Items of unknown type are
// skipped. An empty list yields the root node alone.
func Layout(items []schemas.KnowledgeItem, opts Options) schemas.Graph {
	if opts.Radius <= 0 {
		opts.Radius = DefaultOptions().Radius
	}

	root := rootNode(opts)
	if len(items) == 0 {
		return schemas.Graph{Nodes: []schemas.Node{root}, Edges: []schemas.Edge{}}
	}

	cats := opts.categories()
	buckets := make(map[schemas.KnowledgeType][]schemas.KnowledgeItem, len(cats))
	for _, it := range items {
		kind, ok := it.Type.Category()
		if !ok {
			continue
		}
		buckets[kind] = append(buckets[kind], it)
	}

	graph := schemas.Graph{Nodes: []schemas.Node{root}}
	for _, c := range cats {
		graph.Nodes = append(graph.Nodes, schemas.Node{
			ID:             c.id,
			Kind:           schemas.NodeCategory,
			Position:       c.anchor,
			Data:           schemas.NodeData{Label: c.label, Category: c.kind, Color: c.color, ItemCount: len(buckets[c.kind])},
			SourcePosition: c.source,
			TargetPosition: c.target,
		})
		graph.Edges = append(graph.Edges, newEdge(c.id, RootID, "edge-"+c.id+"-to-"+RootID, c.color))
	}

	for _, c := range cats {
		var nodes []schemas.Node
		var edges []schemas.Edge
		if c.kind == schemas.KnowledgeWeb {
			nodes, edges = layoutWeb(c, buckets[c.kind], opts.Radius)
		} else {
			nodes, edges = layoutRing(c, buckets[c.kind], opts.Radius)
		}
		graph.Nodes = append(graph.Nodes, nodes...)
		graph.Edges = append(graph.Edges, edges...)
	}
	return graph
}

func rootNode(opts Options) schemas.Node {
	label := opts.AgentName
	if label == "" {
		label = "Agent"
	}
	return schemas.Node{
		ID:             RootID,
		Kind:           schemas.NodeRoot,
		Position:       schemas.Position{X: opts.CenterX, Y: opts.CenterY - 200},
		Data:           schemas.NodeData{Label: label, Color: ColorWeb},
		SourcePosition: schemas.HandleBottom,
		TargetPosition: schemas.HandleTop,
	}
}

type hostGroup struct {
	host  string
	items []schemas.KnowledgeItem
}

// layoutWeb groups web items by hostname. Hostnames with two or more items
// get a domain node; every hostname shares one equal angular allocation,
// multi-item hostnames first.
func layoutWeb(c category, items []schemas.KnowledgeItem, r float64) ([]schemas.Node, []schemas.Edge) {
	if len(items) == 0 {
		return nil, nil
	}
	if len(items) == 1 {
		n := itemNode(c, items[0], polar(c.anchor, r, 0))
		return []schemas.Node{n}, []schemas.Edge{newEdge(n.ID, c.id, "edge-"+n.ID+"-to-"+c.id, c.color)}
	}

	var groups []*hostGroup
	index := make(map[string]*hostGroup)
	for _, it := range items {
		host := Hostname(it.URL)
		g, ok := index[host]
		if !ok {
			g = &hostGroup{host: host}
			index[host] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, it)
	}

	var multi, single []*hostGroup
	for _, g := range groups {
		if len(g.items) >= 2 {
			multi = append(multi, g)
		} else {
			single = append(single, g)
		}
	}

	step := 2 * math.Pi / float64(len(groups))
	var domainNodes, domainItems, singleItems []schemas.Node
	var domainEdges, itemEdges []schemas.Edge

	for i, g := range multi {
		theta := c.startAngle + float64(i)*step
		dpos := polar(c.anchor, r*domainRing, theta)
		domainID := "domain-" + g.host
		domainNodes = append(domainNodes, schemas.Node{
			ID:             domainID,
			Kind:           schemas.NodeDomain,
			Position:       dpos,
			Data:           schemas.NodeData{Label: g.host, Category: c.kind, Color: c.color, ItemCount: len(g.items)},
			SourcePosition: schemas.HandleRight,
			TargetPosition: schemas.HandleLeft,
		})
		domainEdges = append(domainEdges, newEdge(domainID, c.id, "edge-"+domainID+"-to-"+c.id, c.color))

		// Half circle centred on the domain's own angle.
		start := theta - math.Pi/2
		sub := math.Pi / float64(len(g.items)+1)
		for j, it := range g.items {
			n := itemNode(c, it, polar(dpos, r*itemRing, start+float64(j+1)*sub))
			domainItems = append(domainItems, n)
			itemEdges = append(itemEdges, newEdge(n.ID, domainID, "edge-"+n.ID+"-to-"+domainID, c.color))
		}
	}

	for i, g := range single {
		theta := c.startAngle + float64(len(multi)+i)*step
		n := itemNode(c, g.items[0], polar(c.anchor, r, theta))
		singleItems = append(singleItems, n)
	}

	nodes := make([]schemas.Node, 0, len(domainNodes)+len(domainItems)+len(singleItems))
	nodes = append(nodes, domainNodes...)
	nodes = append(nodes, domainItems...)
	nodes = append(nodes, singleItems...)

	edges := append(domainEdges, itemEdges...)
	for _, n := range singleItems {
		edges = append(edges, newEdge(n.ID, c.id, "edge-"+n.ID+"-to-"+c.id, c.color))
	}
	return nodes, edges
}

// layoutRing places items evenly on one ring around the anchor.
func layoutRing(c category, items []schemas.KnowledgeItem, r float64) ([]schemas.Node, []schemas.Edge) {
	if len(items) == 0 {
		return nil, nil
	}
	nodes := make([]schemas.Node, 0, len(items))
	edges := make([]schemas.Edge, 0, len(items))
	step := 2 * math.Pi / float64(len(items))
	for i, it := range items {
		theta := c.startAngle + float64(i)*step
		if len(items) == 1 {
			theta = 0
		}
		n := itemNode(c, it, polar(c.anchor, r, theta))
		nodes = append(nodes, n)
		edges = append(edges, newEdge(n.ID, c.id, "edge-"+n.ID+"-to-"+c.id, c.color))
	}
	return nodes, edges
}

// KnowledgeNodeID is the node id of a confirmed knowledge item.
func KnowledgeNodeID(itemURL string) string {
	return "knowledge-" + itemURL
}

func itemNode(c category, it schemas.KnowledgeItem, pos schemas.Position) schemas.Node {
	return schemas.Node{
		ID:       KnowledgeNodeID(it.URL),
		Kind:     schemas.NodeKnowledge,
		Position: pos,
		Data: schemas.NodeData{
			Label:       it.URL,
			Category:    c.kind,
			Status:      it.Status,
			Color:       c.color,
			URL:         it.URL,
			IsDynamic:   it.IsDynamic,
			LastUpdated: it.LastUpdated,
		},
		SourcePosition: c.source,
		TargetPosition: c.target,
	}
}

func newEdge(source, target, id, color string) schemas.Edge {
	return schemas.Edge{
		ID:       id,
		Source:   source,
		Target:   target,
		Type:     edgeType,
		Animated: true,
		Style:    schemas.EdgeStyle{Stroke: color, StrokeDasharray: edgeDasharray},
	}
}

func polar(center schemas.Position, r, theta float64) schemas.Position {
	return schemas.Position{
		X: center.X + r*math.Cos(theta),
		Y: center.Y + r*math.Sin(theta),
	}
}

// Hostname returns the lower-cased host of rawURL without a leading "www.".
// Strings that are not absolute URLs are returned unchanged.
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
