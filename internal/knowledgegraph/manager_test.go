package knowledgegraph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/backend"
)

type fakeBackend struct {
	mu      sync.Mutex
	agent   *schemas.Agent
	fail    error
	calls   []string
	uploads []string
	edits   []string
	// onAdd, if set, runs while the add request is in flight.
	onAdd func()
}

func (f *fakeBackend) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeBackend) GetAgent(_ context.Context, _ string) (*schemas.Agent, error) {
	f.record("get")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agent == nil {
		return nil, backend.ErrNotFound
	}
	cp := *f.agent
	return &cp, nil
}

func (f *fakeBackend) AddWebKnowledge(_ context.Context, req backend.AddKnowledgeRequest) (json.RawMessage, error) {
	f.record("add:" + req.URL)
	if f.onAdd != nil {
		f.onAdd()
	}
	if f.fail != nil {
		return nil, f.fail
	}
	f.mu.Lock()
	f.agent.Knowledge = append(f.agent.Knowledge, schemas.KnowledgeItem{URL: req.URL, Type: schemas.KnowledgeWebsite})
	f.mu.Unlock()
	return json.RawMessage(`{"title":"scraped"}`), nil
}

func (f *fakeBackend) RefreshKnowledge(_ context.Context, _, itemURL string) (json.RawMessage, error) {
	f.record("refresh:" + itemURL)
	if f.fail != nil {
		return nil, f.fail
	}
	return json.RawMessage(`{"fresh":true}`), nil
}

func (f *fakeBackend) DeleteKnowledge(_ context.Context, _, itemURL string) error {
	f.record("delete:" + itemURL)
	return f.fail
}

func (f *fakeBackend) UploadKnowledgePDF(_ context.Context, _, filename string, file io.Reader) error {
	f.record("upload:" + filename)
	b, _ := io.ReadAll(file)
	f.mu.Lock()
	f.uploads = append(f.uploads, string(b))
	f.mu.Unlock()
	return f.fail
}

func (f *fakeBackend) AddFarcasterKnowledge(_ context.Context, _, account string) error {
	f.record("farcaster:" + account)
	return f.fail
}

func (f *fakeBackend) EditKnowledge(_ context.Context, _, itemURL, newData string) error {
	f.record("edit:" + itemURL)
	f.mu.Lock()
	f.edits = append(f.edits, newData)
	f.mu.Unlock()
	return f.fail
}

func newTestManager(t *testing.T, items ...schemas.KnowledgeItem) (*Manager, *fakeBackend) {
	t.Helper()
	be := &fakeBackend{agent: &schemas.Agent{ID: "agent-1", Name: "jessexbt", Knowledge: items}}
	m := NewManager("jessexbt", be, DefaultOptions(), zaptest.NewLogger(t))
	require.NoError(t, m.Refetch(context.Background()))
	return m, be
}

func TestManager_AddWeb(t *testing.T) {
	m, be := newTestManager(t)
	var provisional schemas.Graph
	be.onAdd = func() { provisional = m.Graph() }

	data, err := m.AddWeb(context.Background(), WebSource{URL: " https://example.com ", IsDynamic: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"scraped"}`, string(data))

	// While in flight the canvas showed a processing placeholder.
	var sawPlaceholder bool
	for _, n := range provisional.Nodes {
		if n.Provisional {
			sawPlaceholder = true
			assert.Equal(t, schemas.KnowledgeProcessing, n.Data.Status)
		}
	}
	assert.True(t, sawPlaceholder)

	// After completion the layout is recomputed from the refetched agent.
	g := m.Graph()
	_, ok := g.Node("knowledge-https://example.com")
	assert.True(t, ok)
	for _, n := range g.Nodes {
		assert.False(t, n.Provisional)
	}
	assert.Empty(t, m.Processing())
}

func TestManager_PlaceholderSurvivesResync(t *testing.T) {
	m, be := newTestManager(t, web("https://example.com/a"))
	var during schemas.Graph
	be.onAdd = func() {
		// Every gated request resyncs the dashboard with a fresh agent.
		agent, err := be.GetAgent(context.Background(), "jessexbt")
		require.NoError(t, err)
		m.SetAgent(agent)
		during = m.Graph()
	}

	_, err := m.AddWeb(context.Background(), WebSource{URL: "https://slow.example"})
	require.NoError(t, err)

	var placeholders int
	for _, n := range during.Nodes {
		if n.Provisional {
			placeholders++
			assert.Equal(t, "https://slow.example", n.Data.Label)
		}
	}
	assert.Equal(t, 1, placeholders)
	_, ok := during.Node(KnowledgeNodeID("https://example.com/a"))
	assert.True(t, ok)

	for _, n := range m.Graph().Nodes {
		assert.False(t, n.Provisional, "settled placeholder must give way to the real node")
	}
}

func TestManager_AddWebFailureStillRefetches(t *testing.T) {
	m, be := newTestManager(t)
	be.fail = errors.New("scrape failed")

	_, err := m.AddWeb(context.Background(), WebSource{URL: "https://example.com"})
	require.Error(t, err)
	assert.Equal(t, []string{"get", "add:https://example.com", "get"}, be.calls)

	_, err = m.AddWeb(context.Background(), WebSource{URL: "  "})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestManager_AddWithoutAgent(t *testing.T) {
	be := &fakeBackend{}
	m := NewManager("ghost", be, DefaultOptions(), nil)
	assert.Error(t, m.Refetch(context.Background()))

	_, err := m.AddWeb(context.Background(), WebSource{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrNoAgent)
}

func TestManager_AddPDF(t *testing.T) {
	m, be := newTestManager(t)
	require.NoError(t, m.AddPDF(context.Background(), "whitepaper.pdf", strings.NewReader("%PDF-1.7")))
	assert.Equal(t, []string{"%PDF-1.7"}, be.uploads)

	assert.ErrorIs(t, m.AddPDF(context.Background(), "", strings.NewReader("x")), ErrEmptyInput)
}

func TestManager_AddFarcaster(t *testing.T) {
	t.Run("success completes and restyles", func(t *testing.T) {
		m, _ := newTestManager(t)
		require.NoError(t, m.AddFarcaster(context.Background(), "dwr"))

		var node schemas.Node
		for _, n := range m.Graph().Nodes {
			if n.Provisional {
				node = n
			}
		}
		require.NotEmpty(t, node.ID, "farcaster placeholder stays until the next refetch")
		assert.Equal(t, schemas.KnowledgeCompleted, node.Data.Status)

		edges, err := m.Canvas().OutgoingEdges(node.ID)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, schemas.EdgeStyle{Stroke: ColorFarcaster, StrokeDasharray: "5,5"}, edges[0].Style)
	})

	t.Run("failure marks error", func(t *testing.T) {
		m, be := newTestManager(t)
		be.fail = errors.New("nope")
		require.Error(t, m.AddFarcaster(context.Background(), "dwr"))

		for _, n := range m.Graph().Nodes {
			if n.Provisional {
				assert.Equal(t, schemas.KnowledgeError, n.Data.Status)
			}
		}
	})
}

func TestManager_Refresh(t *testing.T) {
	m, be := newTestManager(t, web("https://example.com/a"))

	data, err := m.Refresh(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"fresh":true}`, string(data))

	be.fail = errors.New("upstream down")
	_, err = m.Refresh(context.Background(), "https://example.com/a")
	require.Error(t, err)
	n, _ := m.Canvas().Node("knowledge-https://example.com/a")
	assert.Equal(t, schemas.KnowledgeError, n.Data.Status)
}

func TestManager_RefreshRejectsConcurrentRequest(t *testing.T) {
	m, _ := newTestManager(t, web("https://example.com/a"))
	m.tracker.Begin("knowledge-https://example.com/a")

	_, err := m.Refresh(context.Background(), "https://example.com/a")
	assert.ErrorIs(t, err, ErrBusy)
}

func TestManager_Delete(t *testing.T) {
	m, be := newTestManager(t,
		web("https://example.com/a"),
		schemas.KnowledgeItem{URL: "dwr", Type: schemas.KnowledgeFarcaster},
	)

	require.NoError(t, m.Delete(context.Background(), "https://example.com/a"))
	require.NoError(t, m.Delete(context.Background(), "dwr"))
	assert.Equal(t, []string{"get", "delete:https://example.com/a"}, be.calls, "farcaster removal stays local")

	_, ok := m.Graph().Node("knowledge-dwr")
	assert.False(t, ok)
}

func TestManager_EditRevertsOnFailure(t *testing.T) {
	item := schemas.KnowledgeItem{URL: "https://example.com/a", Type: schemas.KnowledgeWebsite, Data: json.RawMessage(`{"text":"old"}`)}
	m, be := newTestManager(t, item)

	updated, err := m.Edit(context.Background(), item.URL, "new")
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"new"}`, string(updated.Data))
	assert.Equal(t, []string{"new"}, be.edits)

	be.fail = errors.New("rejected")
	_, err = m.Edit(context.Background(), item.URL, "newer")
	require.Error(t, err)

	current, err := m.Item(item.URL)
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"new"}`, string(current.Data), "failed edit restores the previous local value")

	_, err = m.Item("https://missing")
	assert.ErrorIs(t, err, ErrItemNotFound)
}
