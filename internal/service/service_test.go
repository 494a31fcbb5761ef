package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/backend"
	"github.com/a0x-labs/agentdeck/internal/chain"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/grants"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeUpstream struct {
	mu     sync.Mutex
	agent  *schemas.Agent
	sent   []string
	linked []string
}

func (f *fakeUpstream) GetAgent(context.Context, string) (*schemas.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.agent == nil {
		return nil, backend.ErrNotFound
	}
	return f.agent, nil
}
func (f *fakeUpstream) GetPersonality(context.Context, string) (*schemas.Personality, error) {
	return &schemas.Personality{}, nil
}
func (f *fakeUpstream) SendCreatorAddress(_ context.Context, agentID, wallet string, _ schemas.AuthMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linked = append(f.linked, agentID+"|"+wallet)
	return nil
}
func (f *fakeUpstream) AddWebKnowledge(context.Context, backend.AddKnowledgeRequest) (json.RawMessage, error) {
	return nil, nil
}
func (f *fakeUpstream) RefreshKnowledge(context.Context, string, string) (json.RawMessage, error) {
	return nil, nil
}
func (f *fakeUpstream) DeleteKnowledge(context.Context, string, string) error { return nil }
func (f *fakeUpstream) UploadKnowledgePDF(context.Context, string, string, io.Reader) error {
	return nil
}
func (f *fakeUpstream) AddFarcasterKnowledge(context.Context, string, string) error { return nil }
func (f *fakeUpstream) EditKnowledge(context.Context, string, string, string) error  { return nil }
func (f *fakeUpstream) UpdateGrantStatus(context.Context, string, string, schemas.GrantStatus) error {
	return nil
}
func (f *fakeUpstream) UpdateGrantAmount(context.Context, string, string, float64) error {
	return nil
}
func (f *fakeUpstream) SendGrant(_ context.Context, _, grantID string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, grantID)
	return nil
}
func (f *fakeUpstream) SubmitTalk(context.Context, schemas.TalkRequest) (schemas.JobHandle, error) {
	return schemas.JobHandle{RequestID: "r"}, nil
}
func (f *fakeUpstream) PollTalk(context.Context, string) (schemas.JobStatus, error) {
	return schemas.JobStatus{Status: schemas.JobCompleted, Result: json.RawMessage(`[{"text":"ok"}]`)}, nil
}
func (f *fakeUpstream) GetConversations(context.Context, string) (*schemas.ConversationsByPlatform, error) {
	return &schemas.ConversationsByPlatform{}, nil
}

type countingBalances struct {
	mu    sync.Mutex
	calls int
}

func (c *countingBalances) Balances(_ context.Context, wallet string) (chain.Balances, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return chain.Balances{Wallet: wallet}, nil
}

type memMirror struct {
	mu sync.Mutex
	t  map[string]schemas.Transcript
}

func (m *memMirror) Save(_ context.Context, key string, msgs []schemas.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.t == nil {
		m.t = map[string]schemas.Transcript{}
	}
	m.t[key] = schemas.Transcript{Messages: msgs, CreatedAt: time.Now()}
	return nil
}
func (m *memMirror) Load(_ context.Context, key string) (schemas.Transcript, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t[key], nil
}
func (m *memMirror) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.t, key)
	return nil
}

func grantAgent() *schemas.Agent {
	return &schemas.Agent{
		ID:     "agent-1",
		Name:   "jessexbt",
		Wallet: schemas.AgentWallet{WalletAddress: "0x00000000000000000000000000000000000000aa"},
		URLAnalysis: []json.RawMessage{json.RawMessage(`{
			"id": "url-1", "status": "approved", "grantAmountInUSDC": 20,
			"lastUpdated": 1741773600000, "url": "https://p.example",
			"urlAnalysis": {"analysis": {"relevanceScore": 80}}
		}`)},
	}
}

func newTestRegistry(t *testing.T, up *fakeUpstream, bal BalanceReader, events chan<- schemas.GrantEvent) *Registry {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ChatCfg.PollInterval = time.Millisecond
	return NewRegistry(RegistryDeps{Upstream: up, Balances: bal, Mirror: &memMirror{}, Events: events}, cfg, zaptest.NewLogger(t))
}

func TestRegistry_DashboardIsShared(t *testing.T) {
	r := newTestRegistry(t, &fakeUpstream{}, nil, nil)
	a := r.Dashboard("alpha")
	assert.Same(t, a, r.Dashboard("alpha"))
	assert.NotSame(t, a, r.Dashboard("beta"))

	agent := grantAgent()
	d := r.Sync("alpha", agent)
	assert.Equal(t, agent, d.Knowledge.Agent())
}

func TestRegistry_GrantsAndBalances(t *testing.T) {
	up := &fakeUpstream{}
	bal := &countingBalances{}
	events := make(chan schemas.GrantEvent, 4)
	r := newTestRegistry(t, up, bal, events)
	agent := grantAgent()

	w, err := r.Grants("jessexbt", agent)
	require.NoError(t, err)
	again, err := r.Grants("jessexbt", agent)
	require.NoError(t, err)
	assert.Same(t, w, again)

	b, err := r.Balances(context.Background(), "jessexbt", agent)
	require.NoError(t, err)
	assert.Equal(t, agent.Wallet.WalletAddress, b.Wallet)
	_, _ = r.Balances(context.Background(), "jessexbt", agent)
	assert.Equal(t, 1, bal.calls, "balances are cached")

	_, err = w.Send(context.Background(), "url-1", 20)
	require.NoError(t, err)
	_, _ = r.Balances(context.Background(), "jessexbt", agent)
	assert.Equal(t, 2, bal.calls, "a payment invalidates the cache")

	select {
	case ev := <-events:
		assert.Equal(t, "send", ev.Op)
		assert.Equal(t, "url-1", ev.GrantID)
	default:
		t.Fatal("expected a grant event")
	}
}

func TestRegistry_SyncReloadsGrants(t *testing.T) {
	r := newTestRegistry(t, &fakeUpstream{}, nil, nil)

	w, err := r.Grants("jessexbt", grantAgent())
	require.NoError(t, err)
	list, err := w.List(grants.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	fresh := grantAgent()
	fresh.URLAnalysis = append(fresh.URLAnalysis, json.RawMessage(`{
		"id": "url-2", "status": "pending", "timestamp": "2025-03-12T09:00:00Z",
		"url": "https://q.example", "urlAnalysis": {"analysis": {"relevanceScore": 55}}
	}`))
	r.Sync("jessexbt", fresh)

	again, err := r.Grants("jessexbt", fresh)
	require.NoError(t, err)
	assert.Same(t, w, again)
	list, err = again.List(grants.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	_, err = again.Get("url-2")
	assert.NoError(t, err)
}

func TestRegistry_GrantsNotEnabled(t *testing.T) {
	r := newTestRegistry(t, &fakeUpstream{}, nil, nil)
	agent := grantAgent()
	agent.Name = "someone"
	_, err := r.Grants("someone", agent)
	assert.ErrorIs(t, err, grants.ErrNotEnabled)
}

func TestRegistry_ChatPerWallet(t *testing.T) {
	r := newTestRegistry(t, &fakeUpstream{}, nil, nil)
	agent := grantAgent()
	ctx := context.Background()

	a := r.Chat(ctx, "jessexbt", agent, "0xABC")
	assert.Same(t, a, r.Chat(ctx, "jessexbt", agent, "0xabc"), "wallets compare case-insensitively")
	assert.NotSame(t, a, r.Chat(ctx, "jessexbt", agent, "0xdef"))

	_, err := a.Send(ctx, "hello")
	require.NoError(t, err)

	// A fresh registry over the same mirror restores the transcript.
	mirror := r.mirror
	r2 := NewRegistry(RegistryDeps{Upstream: &fakeUpstream{}, Mirror: mirror}, config.NewDefaultConfig(), nil)
	assert.Len(t, r2.Chat(ctx, "jessexbt", agent, "0xabc").History(), 2)
}

func TestRegistry_NewGateLinksCreator(t *testing.T) {
	up := &fakeUpstream{agent: &schemas.Agent{
		ID:            "agent-1",
		Name:          "alpha",
		TwitterClient: &schemas.TwitterClient{Username: "alpha_bot", CreatorUsername: "alice"},
	}}
	notifier := access.NewNotifier(up, time.Second, zaptest.NewLogger(t))
	r := NewRegistry(RegistryDeps{Upstream: up, Notifier: notifier}, config.NewDefaultConfig(), zaptest.NewLogger(t))
	claim := schemas.IdentityClaim{
		SignedIn:      true,
		WalletAddress: "0xabc",
		Twitter:       &schemas.TwitterIdentity{Username: "alice"},
	}

	g := r.NewGate("alpha", schemas.AuthTwitter, access.StaticClaim(claim))
	snap := g.Settle(context.Background())
	require.Equal(t, access.StateGranted, snap.Outcome.State)

	notifier.Wait()
	assert.Equal(t, []string{"agent-1|0xabc"}, up.linked)
}

type recordingRecorder struct {
	mu      sync.Mutex
	batches [][]schemas.GrantEvent
	err     error
}

func (r *recordingRecorder) RecordGrantEvents(_ context.Context, evs []schemas.GrantEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]schemas.GrantEvent(nil), evs...))
	return r.err
}

func TestGrantEventConsumer_FlushesOnClose(t *testing.T) {
	rec := &recordingRecorder{}
	events := make(chan schemas.GrantEvent, 8)
	var wg sync.WaitGroup
	StartGrantEventConsumer(context.Background(), &wg, events, rec, zaptest.NewLogger(t))

	events <- schemas.GrantEvent{GrantID: "a"}
	events <- schemas.GrantEvent{GrantID: "b"}
	close(events)
	wg.Wait()

	var total int
	for _, b := range rec.batches {
		total += len(b)
	}
	assert.Equal(t, 2, total)
}

func TestGrantEventConsumer_DrainsOnCancel(t *testing.T) {
	rec := &recordingRecorder{err: errors.New("db down")}
	events := make(chan schemas.GrantEvent, 8)
	events <- schemas.GrantEvent{GrantID: "a"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var wg sync.WaitGroup
	StartGrantEventConsumer(ctx, &wg, events, rec, zaptest.NewLogger(t))
	wg.Wait()

	require.NotEmpty(t, rec.batches)
}

func TestTimedWait(t *testing.T) {
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		time.Sleep(10 * time.Millisecond)
		wg.Done()
	}()
	assert.True(t, timedWait(wg.Wait, time.Second))

	block := make(chan struct{})
	assert.False(t, timedWait(func() { <-block }, 10*time.Millisecond))
	close(block)
}
