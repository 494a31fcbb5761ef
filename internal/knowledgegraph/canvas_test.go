package knowledgegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

func getTestCanvas(t *testing.T) *Canvas {
	t.Helper()
	c := NewCanvas(zap.NewNop())
	items := []schemas.KnowledgeItem{
		web("https://example.com/a"),
		web("https://example.com/b"),
		{URL: "dwr", Type: schemas.KnowledgeFarcaster},
	}
	require.NoError(t, c.Replace(Layout(items, DefaultOptions())))
	return c
}

func TestCanvas_Lookup(t *testing.T) {
	c := getTestCanvas(t)

	n, err := c.Node("domain-example.com")
	require.NoError(t, err)
	assert.Equal(t, schemas.NodeDomain, n.Kind)

	e, err := c.Edge("edge-domain-example.com-to-web-category")
	require.NoError(t, err)
	assert.Equal(t, WebCategoryID, e.Target)

	_, err = c.Node("nope")
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = c.Edge("nope")
	assert.ErrorIs(t, err, ErrEdgeNotFound)
}

func TestCanvas_Neighbors(t *testing.T) {
	c := getTestCanvas(t)

	neighbors, err := c.Neighbors("knowledge-https://example.com/a")
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "domain-example.com", neighbors[0].ID)

	out, err := c.OutgoingEdges(RootID)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = c.Neighbors("missing")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCanvas_AddEdgeValidatesEndpoints(t *testing.T) {
	c := NewCanvas(nil)
	c.AddNode(schemas.Node{ID: "only"})

	err := c.AddEdge(schemas.Edge{ID: "e1", Source: "ghost", Target: "only"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
	err = c.AddEdge(schemas.Edge{ID: "e2", Source: "only", Target: "ghost"})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestCanvas_AddEdgeMovesSource(t *testing.T) {
	c := NewCanvas(nil)
	for _, id := range []string{"a", "b", "c"} {
		c.AddNode(schemas.Node{ID: id})
	}
	require.NoError(t, c.AddEdge(schemas.Edge{ID: "e", Source: "a", Target: "c"}))
	require.NoError(t, c.AddEdge(schemas.Edge{ID: "e", Source: "b", Target: "c"}))

	fromA, _ := c.OutgoingEdges("a")
	fromB, _ := c.OutgoingEdges("b")
	assert.Empty(t, fromA)
	assert.Len(t, fromB, 1)
	assert.Len(t, c.Graph().Edges, 1)
}

func TestCanvas_RemoveByLabel(t *testing.T) {
	c := getTestCanvas(t)
	before := len(c.Graph().Edges)

	n, ok := c.RemoveByLabel("https://example.com/a")
	require.True(t, ok)
	assert.Equal(t, "knowledge-https://example.com/a", n.ID)

	g := c.Graph()
	_, still := g.Node(n.ID)
	assert.False(t, still)
	assert.Len(t, g.Edges, before-1)
	for _, e := range g.Edges {
		assert.NotEqual(t, n.ID, e.Source)
	}

	_, ok = c.RemoveByLabel("never-there")
	assert.False(t, ok)
}

func TestCanvas_StatusAndStyle(t *testing.T) {
	c := getTestCanvas(t)

	require.NoError(t, c.SetStatus("knowledge-dwr", schemas.KnowledgeError))
	n, _ := c.Node("knowledge-dwr")
	assert.Equal(t, schemas.KnowledgeError, n.Data.Status)
	assert.ErrorIs(t, c.SetStatus("missing", schemas.KnowledgeError), ErrNodeNotFound)

	c.RestyleOutgoing("knowledge-dwr", schemas.EdgeStyle{Stroke: "#000", StrokeDasharray: "1,1"})
	edges, _ := c.OutgoingEdges("knowledge-dwr")
	require.Len(t, edges, 1)
	assert.Equal(t, "#000", edges[0].Style.Stroke)
}

func TestAddProvisional(t *testing.T) {
	c := NewCanvas(nil)
	require.NoError(t, c.Replace(Layout(nil, DefaultOptions())))

	first, err := AddProvisional(c, "https://new.example", schemas.KnowledgeWeb, true, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, first.Provisional)
	assert.Contains(t, first.ID, ProvisionalPrefix)
	assert.Equal(t, schemas.Position{X: 100, Y: 300}, first.Position)
	assert.Equal(t, schemas.KnowledgeProcessing, first.Data.Status)
	assert.True(t, first.Data.IsDynamic)

	second, err := AddProvisional(c, "https://newer.example", schemas.KnowledgeWebsite, false, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, schemas.Position{X: 100, Y: 450}, second.Position, "offset grows with same-type count")

	pdf, err := AddProvisional(c, "doc.pdf", schemas.KnowledgePDF, true, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, schemas.Position{X: 500, Y: 500}, pdf.Position)
	assert.False(t, pdf.Data.IsDynamic, "only web items can be dynamic")

	fc, err := AddProvisional(c, "dwr", schemas.KnowledgeFarcaster, false, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, schemas.Position{X: 900, Y: 300}, fc.Position)

	neighbors, err := c.Neighbors(first.ID)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, WebCategoryID, neighbors[0].ID)

	// A full recompute supersedes every provisional node.
	require.NoError(t, c.Replace(Layout(nil, DefaultOptions())))
	assert.Len(t, c.Graph().Nodes, 1)

	_, err = AddProvisional(c, "  ", schemas.KnowledgeWeb, false, DefaultOptions())
	assert.Error(t, err)
	_, err = AddProvisional(c, "x", "video", false, DefaultOptions())
	assert.Error(t, err)
}

func TestCanvas_ReplaceKeeping(t *testing.T) {
	c := NewCanvas(nil)
	require.NoError(t, c.Replace(Layout(nil, DefaultOptions())))

	pending, err := AddProvisional(c, "https://slow.example", schemas.KnowledgeWeb, false, DefaultOptions())
	require.NoError(t, err)
	settled, err := AddProvisional(c, "doc.pdf", schemas.KnowledgePDF, false, DefaultOptions())
	require.NoError(t, err)

	keep := func(n schemas.Node) bool { return n.ID == pending.ID }
	require.NoError(t, c.ReplaceKeeping(Layout(nil, DefaultOptions()), keep))

	got, err := c.Node(pending.ID)
	require.NoError(t, err)
	assert.True(t, got.Provisional)
	_, err = c.Node(settled.ID)
	assert.ErrorIs(t, err, ErrNodeNotFound)

	// The category anchor the layout dropped comes back with the placeholder.
	neighbors, err := c.Neighbors(pending.ID)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, WebCategoryID, neighbors[0].ID)
	assert.Len(t, c.Graph().Nodes, 3)

	// A layout that already has the anchor keeps its own copy.
	require.NoError(t, c.ReplaceKeeping(Layout([]schemas.KnowledgeItem{web("https://example.com/a")}, DefaultOptions()), keep))
	_, err = c.Node(pending.ID)
	assert.NoError(t, err)
	_, err = c.Node(KnowledgeNodeID("https://example.com/a"))
	assert.NoError(t, err)
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	assert.True(t, tr.Begin("n1"))
	assert.False(t, tr.Begin("n1"))
	assert.True(t, tr.Processing("n1"))
	assert.Equal(t, map[string]bool{"n1": true}, tr.Snapshot())
	tr.Done("n1")
	assert.False(t, tr.Processing("n1"))
	assert.Empty(t, tr.Snapshot())
}

func TestApplyEdit(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"string data is replaced", `"old"`, `"new"`},
		{"content wins", `{"content":"old","text":"t"}`, `{"content":"new","text":"t"}`},
		{"text when content empty", `{"content":"","text":"t"}`, `{"content":"","text":"new"}`},
		{"body as last resort", `{"body":"b","title":"x"}`, `{"body":"new","title":"x"}`},
		{"falls back to content", `{"title":"x"}`, `{"title":"x","content":"new"}`},
		{"null data", `null`, `{"content":"new"}`},
		{"no data", ``, `{"content":"new"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyEdit([]byte(tt.data), "new")
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestEditableText(t *testing.T) {
	assert.Equal(t, "plain", EditableText([]byte(`"plain"`)))
	assert.Equal(t, "body", EditableText([]byte(`{"content":"","body":"body"}`)))
	assert.Equal(t, "", EditableText([]byte(`null`)))
	assert.Equal(t, `{"title":"x"}`, EditableText([]byte(`{"title":"x"}`)))
}
