package schemas

// -- Knowledge Graph Layout Model --

// NodeKind distinguishes the structural role of a node in the radial diagram.
type NodeKind string

const (
	NodeRoot      NodeKind = "root"      // The agent itself, at the top of the diagram.
	NodeCategory  NodeKind = "category"  // One of the three fixed category anchors.
	NodeDomain    NodeKind = "domain"    // A hostname grouping two or more web items.
	NodeKnowledge NodeKind = "knowledge" // A single knowledge item.
)

// Handle names the side of a node an edge attaches to.
type Handle string

const (
	HandleTop    Handle = "top"
	HandleBottom Handle = "bottom"
	HandleLeft   Handle = "left"
	HandleRight  Handle = "right"
)

// Position is a point on the drawing canvas. The y axis grows downwards.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeData carries what the renderer needs to draw a node.
type NodeData struct {
	Label       string          `json:"label" yaml:"label"`
	Category    KnowledgeType   `json:"category,omitempty" yaml:"category,omitempty"`
	Status      KnowledgeStatus `json:"status,omitempty" yaml:"status,omitempty"`
	Color       string          `json:"color,omitempty" yaml:"color,omitempty"`
	URL         string          `json:"url,omitempty" yaml:"url,omitempty"`
	IsDynamic   bool            `json:"isDynamic,omitempty" yaml:"isDynamic,omitempty"`
	LastUpdated string          `json:"lastUpdated,omitempty" yaml:"lastUpdated,omitempty"`
	ItemCount   int             `json:"itemCount,omitempty" yaml:"itemCount,omitempty"`
}

// Node is a positioned vertex of the diagram. Nodes are transient layout
// output and are never persisted.
type Node struct {
	ID             string   `json:"id" yaml:"id"`
	Kind           NodeKind `json:"kind" yaml:"kind"`
	Position       Position `json:"position" yaml:"position"`
	Data           NodeData `json:"data" yaml:"data"`
	SourcePosition Handle   `json:"sourcePosition,omitempty" yaml:"sourcePosition,omitempty"`
	TargetPosition Handle   `json:"targetPosition,omitempty" yaml:"targetPosition,omitempty"`
	// Provisional marks a placeholder added before the backend confirmed the item.
	Provisional bool `json:"provisional,omitempty" yaml:"provisional,omitempty"`
}

// EdgeStyle is the stroke applied to an edge.
type EdgeStyle struct {
	Stroke          string `json:"stroke" yaml:"stroke"`
	StrokeDasharray string `json:"strokeDasharray" yaml:"strokeDasharray"`
}

// Edge is a directed connection between two diagram nodes.
type Edge struct {
	ID           string    `json:"id" yaml:"id"`
	Source       string    `json:"source" yaml:"source"`
	Target       string    `json:"target" yaml:"target"`
	SourceHandle Handle    `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
	TargetHandle Handle    `json:"targetHandle,omitempty" yaml:"targetHandle,omitempty"`
	Type         string    `json:"type" yaml:"type"`
	Animated     bool      `json:"animated" yaml:"animated"`
	Style        EdgeStyle `json:"style" yaml:"style"`
}

// Graph is a complete diagram: nodes first, then the edges connecting them.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Node returns the node with the given id, if present.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
