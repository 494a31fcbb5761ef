package knowledgegraph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func web(u string) schemas.KnowledgeItem {
	return schemas.KnowledgeItem{URL: u, Type: schemas.KnowledgeWebsite, Status: schemas.KnowledgeCompleted}
}

func positions(g schemas.Graph) map[string]schemas.Position {
	out := make(map[string]schemas.Position, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.ID] = n.Position
	}
	return out
}

func nodeIDs(g schemas.Graph) []string {
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func edgePairs(g schemas.Graph) [][2]string {
	pairs := make([][2]string, 0, len(g.Edges))
	for _, e := range g.Edges {
		pairs = append(pairs, [2]string{e.Source, e.Target})
	}
	return pairs
}

func TestLayout_Empty(t *testing.T) {
	g := Layout(nil, Options{CenterX: 500, CenterY: 300, Radius: 200, AgentName: "jessexbt"})

	require.Len(t, g.Nodes, 1)
	assert.Empty(t, g.Edges)
	root := g.Nodes[0]
	assert.Equal(t, RootID, root.ID)
	assert.Equal(t, schemas.Position{X: 500, Y: 100}, root.Position)
	assert.Equal(t, "jessexbt", root.Data.Label)
}

func TestLayout_SingleWebItemAtAngleZero(t *testing.T) {
	g := Layout([]schemas.KnowledgeItem{web("https://example.com/about")}, DefaultOptions())

	pos := positions(g)
	if diff := cmp.Diff(schemas.Position{X: 250, Y: 300}, pos["knowledge-https://example.com/about"], approx); diff != "" {
		t.Errorf("single web item misplaced (-want +got):\n%s", diff)
	}
	assert.Contains(t, edgePairs(g), [2]string{"knowledge-https://example.com/about", WebCategoryID})
	_, hasDomain := g.Node("domain-example.com")
	assert.False(t, hasDomain, "a single item never gets a domain node")
}

func TestLayout_DomainGrouping(t *testing.T) {
	items := []schemas.KnowledgeItem{
		web("https://www.example.com/a"),
		web("https://other.org/x"),
		{URL: "https://example.com/b", Type: schemas.KnowledgeWeb},
	}
	g := Layout(items, DefaultOptions())

	wantIDs := []string{
		RootID, WebCategoryID, PDFCategoryID, FarcasterCategoryID,
		"domain-example.com",
		"knowledge-https://www.example.com/a",
		"knowledge-https://example.com/b",
		"knowledge-https://other.org/x",
	}
	if diff := cmp.Diff(wantIDs, nodeIDs(g)); diff != "" {
		t.Fatalf("node order mismatch (-want +got):\n%s", diff)
	}

	s3 := math.Sqrt(3) / 2
	want := map[string]schemas.Position{
		"domain-example.com":                  {X: 50, Y: 460},
		"knowledge-https://www.example.com/a": {X: 50 + 100*0.5, Y: 460 + 100*s3},
		"knowledge-https://example.com/b":     {X: 50 - 100*0.5, Y: 460 + 100*s3},
		"knowledge-https://other.org/x":       {X: 50, Y: 100},
	}
	got := positions(g)
	for id, p := range want {
		if diff := cmp.Diff(p, got[id], approx); diff != "" {
			t.Errorf("%s misplaced (-want +got):\n%s", id, diff)
		}
	}

	wantEdges := [][2]string{
		{WebCategoryID, RootID},
		{PDFCategoryID, RootID},
		{FarcasterCategoryID, RootID},
		{"domain-example.com", WebCategoryID},
		{"knowledge-https://www.example.com/a", "domain-example.com"},
		{"knowledge-https://example.com/b", "domain-example.com"},
		{"knowledge-https://other.org/x", WebCategoryID},
	}
	if diff := cmp.Diff(wantEdges, edgePairs(g)); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}

	domain, ok := g.Node("domain-example.com")
	require.True(t, ok)
	assert.Equal(t, schemas.NodeDomain, domain.Kind)
	assert.Equal(t, 2, domain.Data.ItemCount)
}

func TestLayout_PDFAndFarcasterRings(t *testing.T) {
	items := []schemas.KnowledgeItem{
		{URL: "a.pdf", Type: schemas.KnowledgePDF},
		{URL: "b.pdf", Type: schemas.KnowledgePDF},
		{URL: "dwr", Type: schemas.KnowledgeFarcaster},
		{URL: "mystery", Type: "video"},
	}
	g := Layout(items, DefaultOptions())
	got := positions(g)

	want := map[string]schemas.Position{
		"knowledge-a.pdf": {X: 850, Y: 500},
		"knowledge-b.pdf": {X: 450, Y: 500},
		"knowledge-dwr":   {X: 1150, Y: 300},
	}
	for id, p := range want {
		if diff := cmp.Diff(p, got[id], approx); diff != "" {
			t.Errorf("%s misplaced (-want +got):\n%s", id, diff)
		}
	}
	_, unknown := got["knowledge-mystery"]
	assert.False(t, unknown, "unknown types are skipped")

	for _, e := range g.Edges {
		assert.True(t, e.Animated)
		assert.Equal(t, "5,5", e.Style.StrokeDasharray)
		switch e.Source {
		case "knowledge-a.pdf", "knowledge-b.pdf", PDFCategoryID:
			assert.Equal(t, ColorPDF, e.Style.Stroke)
		case "knowledge-dwr", FarcasterCategoryID:
			assert.Equal(t, ColorFarcaster, e.Style.Stroke)
		default:
			assert.Equal(t, ColorWeb, e.Style.Stroke)
		}
	}

	pdf, _ := g.Node("knowledge-a.pdf")
	assert.Equal(t, schemas.HandleTop, pdf.SourcePosition)
	assert.Equal(t, schemas.HandleBottom, pdf.TargetPosition)
}

func TestLayout_Deterministic(t *testing.T) {
	items := []schemas.KnowledgeItem{
		web("https://a.com/1"), web("https://b.com/1"), web("https://a.com/2"),
		{URL: "x.pdf", Type: schemas.KnowledgePDF},
	}
	first := Layout(items, DefaultOptions())
	second := Layout(items, DefaultOptions())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("layout is not deterministic:\n%s", diff)
	}
}

func TestHostname(t *testing.T) {
	tests := map[string]string{
		"https://www.Example.com/path": "example.com",
		"http://docs.example.com":      "docs.example.com",
		"https://example.com:8443/x":   "example.com",
		"example.com/no-scheme":        "example.com/no-scheme",
		"::not a url":                  "::not a url",
	}
	for in, want := range tests {
		assert.Equal(t, want, Hostname(in), in)
	}
}
