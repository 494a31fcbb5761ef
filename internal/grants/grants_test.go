package grants_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/grants"
)

const repoGrant = `{
	"id": "repo-1",
	"status": "pending",
	"grantAmountInUSDC": 50,
	"timestamp": "2025-03-10T12:00:00Z",
	"projectName": "scaffold",
	"metrics": {"repository": {"fullName": "org/scaffold", "quality": {
		"web3Score": {"score": 0.8},
		"activityScore": {"score": 0.6}
	}}}
}`

const urlGrant = `{
	"id": "url-1",
	"status": "approved",
	"grantAmountInUSDC": 20,
	"lastUpdated": 1741773600000,
	"url": "https://project.example",
	"urlAnalysis": {"analysis": {"relevanceScore": 80}}
}`

const olderURLGrant = `{
	"id": "url-2",
	"status": "pending",
	"timestamp": "2025-02-03T08:00:00Z",
	"url": "https://older.example",
	"urlAnalysis": {"analysis": {"relevanceScore": 40}}
}`

func testAgent() *schemas.Agent {
	return &schemas.Agent{
		ID:   "agent-1",
		Name: "jessexbt",
		GithubMetrics: map[string]json.RawMessage{
			"repo-1":      json.RawMessage(repoGrant),
			"no-analysis": json.RawMessage(`{"id":"x","metrics":{"repository":null}}`),
			"lastUpdated": json.RawMessage(`"2025-03-11T00:00:00Z"`),
		},
		URLAnalysis: []json.RawMessage{
			json.RawMessage(urlGrant),
			json.RawMessage(olderURLGrant),
			json.RawMessage(`{"id":"broken"}`),
		},
	}
}

func ids(gs []schemas.Grant) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.ID)
	}
	return out
}

type fakeBackend struct {
	mu       sync.Mutex
	fail     error
	statuses []schemas.GrantStatus
	amounts  []float64
	sent     []float64
}

func (f *fakeBackend) UpdateGrantStatus(_ context.Context, _, _ string, status schemas.GrantStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	return f.fail
}

func (f *fakeBackend) UpdateGrantAmount(_ context.Context, _, _ string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amounts = append(f.amounts, amount)
	return f.fail
}

func (f *fakeBackend) SendGrant(_ context.Context, _, _ string, amount float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, amount)
	return f.fail
}

// blockingBackend holds UpdateGrantAmount until release is closed, then
// returns amountErr. Other calls go straight to fakeBackend.
type blockingBackend struct {
	fakeBackend
	entered   chan struct{}
	release   chan struct{}
	amountErr error
}

func newBlockingBackend(amountErr error) *blockingBackend {
	return &blockingBackend{
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
		amountErr: amountErr,
	}
}

func (b *blockingBackend) UpdateGrantAmount(_ context.Context, _, _ string, amount float64) error {
	close(b.entered)
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.amounts = append(b.amounts, amount)
	return b.amountErr
}

func newWorkbench(t *testing.T, be grants.Backend, opts ...grants.Option) *grants.Workbench {
	t.Helper()
	cfg := config.NewDefaultConfig().Grants()
	w, err := grants.NewWorkbench(testAgent(), be, cfg, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return w
}

func TestFromAgent(t *testing.T) {
	gs := grants.FromAgent(testAgent(), zaptest.NewLogger(t))
	assert.ElementsMatch(t, []string{"repo-1", "url-1", "url-2"}, ids(gs))
}

func TestNewWorkbench_OnlyEnabledAgents(t *testing.T) {
	agent := testAgent()
	agent.Name = "someone-else"
	_, err := grants.NewWorkbench(agent, &fakeBackend{}, config.GrantsConfig{EnabledAgents: []string{"jessexbt"}}, nil)
	assert.ErrorIs(t, err, grants.ErrNotEnabled)

	_, err = grants.NewWorkbench(nil, &fakeBackend{}, config.GrantsConfig{}, nil)
	assert.ErrorIs(t, err, grants.ErrNotEnabled)
}

func TestRating(t *testing.T) {
	gs := grants.FromAgent(testAgent(), nil)
	byID := map[string]schemas.Grant{}
	for _, g := range gs {
		byID[g.ID] = g
	}
	assert.InDelta(t, 3.5, grants.Rating(byID["repo-1"]), 1e-9)
	assert.InDelta(t, 4.0, grants.Rating(byID["url-1"]), 1e-9)

	empty := schemas.Grant{Details: schemas.RepositoryDetails{}}
	assert.Zero(t, grants.Rating(empty))
	assert.Zero(t, grants.Rating(schemas.Grant{}))
}

func TestWeekOf(t *testing.T) {
	for day, want := range map[int]int{1: 1, 7: 1, 8: 2, 10: 2, 14: 2, 15: 3, 28: 4, 29: 5, 31: 5} {
		d := time.Date(2025, time.March, day, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, want, grants.WeekOf(d), "day %d", day)
	}
}

func TestParseWeek(t *testing.T) {
	w, ok, err := grants.ParseWeek("week2-2-2025")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, grants.Week{Number: 2, Month: time.March, Year: 2025}, w)
	assert.Equal(t, "week2-2-2025", w.String())

	_, ok, err = grants.ParseWeek("all")
	assert.NoError(t, err)
	assert.False(t, ok)

	for _, bad := range []string{"week2-2", "weekX-1-2025", "week9-1-2025", "week1-12-2025", "month1-1-2025"} {
		_, _, err := grants.ParseWeek(bad)
		assert.ErrorIs(t, err, grants.ErrBadWeek, bad)
	}
}

func TestEffectiveTimeFallsBackToLastUpdated(t *testing.T) {
	gs := grants.FromAgent(testAgent(), nil)
	for _, g := range gs {
		if g.ID == "url-1" {
			assert.Equal(t, time.UnixMilli(1741773600000).UTC(), grants.EffectiveTime(g).UTC())
		}
	}
}

func TestWorkbench_ListAndWeeks(t *testing.T) {
	w := newWorkbench(t, &fakeBackend{})

	all, err := w.List(grants.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"url-1", "repo-1", "url-2"}, ids(all), "newest first")

	// 2025-03-10 is day 10 of March: week 2, zero-based month 2.
	march, err := w.List(grants.Filter{Week: "week2-2-2025"})
	require.NoError(t, err)
	assert.Equal(t, []string{"url-1", "repo-1"}, ids(march))

	repos, err := w.List(grants.Filter{Type: grants.TypeRepository, Status: schemas.GrantPending})
	require.NoError(t, err)
	assert.Equal(t, []string{"repo-1"}, ids(repos))

	urls, err := w.List(grants.Filter{Type: grants.TypeURL, Status: grants.StatusAll})
	require.NoError(t, err)
	assert.Equal(t, []string{"url-1", "url-2"}, ids(urls))

	weeks := w.Weeks()
	require.Len(t, weeks, 2)
	assert.Equal(t, "week2-2-2025", weeks[0].String())
	assert.Equal(t, "week1-1-2025", weeks[1].String())

	_, err = w.List(grants.Filter{Week: "garbage"})
	assert.ErrorIs(t, err, grants.ErrBadWeek)
}

func TestParseFilter(t *testing.T) {
	f, err := grants.ParseFilter("all", "URL", "Pending")
	require.NoError(t, err)
	assert.Equal(t, grants.TypeURL, f.Type)
	assert.Equal(t, schemas.GrantPending, f.Status)

	_, err = grants.ParseFilter("", "video", "")
	assert.Error(t, err)
	_, err = grants.ParseFilter("", "", "archived")
	assert.Error(t, err)
}

func TestWorkbench_StatusMutation(t *testing.T) {
	be := &fakeBackend{}
	w := newWorkbench(t, be)

	res, err := w.Approve(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, schemas.GrantApproved, res.Grant.Status)
	assert.Equal(t, "Grant status updated", res.Toast.Title)

	_, err = w.SetStatus(context.Background(), "repo-1", schemas.GrantPaid)
	assert.ErrorIs(t, err, grants.ErrInvalidStatus)
	_, err = w.Deny(context.Background(), "missing")
	assert.ErrorIs(t, err, grants.ErrGrantNotFound)
}

func TestWorkbench_StatusRollback(t *testing.T) {
	be := &fakeBackend{fail: errors.New("503")}
	w := newWorkbench(t, be)

	res, err := w.Deny(context.Background(), "repo-1")
	require.Error(t, err)
	assert.False(t, res.Changed)
	require.NotNil(t, res.Toast)
	assert.Equal(t, schemas.ToastDestructive, res.Toast.Variant)
	assert.Equal(t, "Error updating grant status", res.Toast.Title)

	g, err := w.Get("repo-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.GrantPending, g.Status, "status reverts like amount does")
}

func TestWorkbench_AmountRollback(t *testing.T) {
	be := &fakeBackend{fail: errors.New("timeout")}
	w := newWorkbench(t, be)

	res, err := w.UpdateAmount(context.Background(), "repo-1", 75)
	require.Error(t, err)
	assert.Equal(t, schemas.ToastDestructive, res.Toast.Variant)

	g, _ := w.Get("repo-1")
	assert.Equal(t, 50.0, g.GrantAmountInUSDC)
	assert.Equal(t, []float64{75}, be.amounts)
}

func TestWorkbench_AmountNoop(t *testing.T) {
	be := &fakeBackend{}
	w := newWorkbench(t, be)

	res, err := w.UpdateAmount(context.Background(), "repo-1", 50)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Toast)
	assert.Empty(t, be.amounts)

	_, err = w.UpdateAmount(context.Background(), "repo-1", -1)
	assert.ErrorIs(t, err, grants.ErrInvalidAmount)
}

func TestWorkbench_Send(t *testing.T) {
	be := &fakeBackend{}
	refreshed := 0
	w := newWorkbench(t, be, grants.WithPaidHook(func(context.Context) { refreshed++ }))

	res, err := w.Send(context.Background(), "url-1", 20)
	require.NoError(t, err)
	assert.Equal(t, schemas.GrantPaid, res.Grant.Status)
	assert.Equal(t, "Grant sent", res.Toast.Title)
	assert.Equal(t, 1, refreshed)

	be.fail = errors.New("insufficient funds")
	res, err = w.Send(context.Background(), "url-2", 10)
	require.Error(t, err)
	assert.Equal(t, "Error sending grant", res.Toast.Title)
	g, _ := w.Get("url-2")
	assert.Equal(t, schemas.GrantPending, g.Status, "failed payment never marks paid")
	assert.Equal(t, 1, refreshed)
}

func TestAdjustAmount(t *testing.T) {
	w := newWorkbench(t, &fakeBackend{})
	assert.Equal(t, 10.0, w.Increment(0))
	assert.Equal(t, 0.0, w.Decrement(5))
	assert.Equal(t, 15.0, grants.AdjustAmount(25, -10))
}

func TestWorkbench_EventHook(t *testing.T) {
	be := &fakeBackend{}
	var events []schemas.GrantEvent
	w := newWorkbench(t, be, grants.WithEventHook(func(_ context.Context, ev schemas.GrantEvent) {
		events = append(events, ev)
	}))

	_, err := w.Approve(context.Background(), "repo-1")
	require.NoError(t, err)
	_, err = w.Send(context.Background(), "repo-1", 30)
	require.NoError(t, err)

	be.fail = errors.New("down")
	_, err = w.Deny(context.Background(), "url-1")
	require.Error(t, err)

	require.Len(t, events, 2, "failed mutations are not recorded")
	assert.Equal(t, "status", events[0].Op)
	assert.Equal(t, schemas.GrantApproved, events[0].Status)
	assert.Equal(t, "send", events[1].Op)
	assert.Equal(t, schemas.GrantPaid, events[1].Status)
	assert.Equal(t, 30.0, events[1].Amount)
	assert.Equal(t, "agent-1", events[1].AgentID)
}

func TestWorkbench_FailedAmountKeepsConcurrentPayment(t *testing.T) {
	be := newBlockingBackend(errors.New("timeout"))
	w := newWorkbench(t, be)

	errc := make(chan error, 1)
	go func() {
		_, err := w.UpdateAmount(context.Background(), "repo-1", 75)
		errc <- err
	}()
	<-be.entered

	_, err := w.Send(context.Background(), "repo-1", 75)
	require.NoError(t, err)
	close(be.release)
	require.Error(t, <-errc)

	g, err := w.Get("repo-1")
	require.NoError(t, err)
	assert.Equal(t, schemas.GrantPaid, g.Status, "payment that landed meanwhile is kept")
	assert.Equal(t, 50.0, g.GrantAmountInUSDC)
}

func TestWorkbench_Reload(t *testing.T) {
	be := newBlockingBackend(nil)
	w := newWorkbench(t, be)

	errc := make(chan error, 1)
	go func() {
		_, err := w.UpdateAmount(context.Background(), "repo-1", 75)
		errc <- err
	}()
	<-be.entered

	fresh := testAgent()
	fresh.GithubMetrics = nil
	fresh.URLAnalysis = append(fresh.URLAnalysis, json.RawMessage(`{
		"id": "url-3",
		"status": "pending",
		"timestamp": "2025-03-12T09:00:00Z",
		"url": "https://newest.example",
		"urlAnalysis": {"analysis": {"relevanceScore": 60}}
	}`))
	w.Reload(fresh)

	list, err := w.List(grants.Filter{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"repo-1", "url-1", "url-2", "url-3"}, ids(list))

	g, err := w.Get("repo-1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, g.GrantAmountInUSDC, "in-flight edit survives the reload")

	close(be.release)
	require.NoError(t, <-errc)

	// Once settled, the next reload follows the backend.
	w.Reload(fresh)
	_, err = w.Get("repo-1")
	assert.ErrorIs(t, err, grants.ErrGrantNotFound)
	w.Reload(nil)
	_, err = w.Get("url-3")
	assert.NoError(t, err)
}
