// File: internal/grants/workbench.go
package grants

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/config"
)

var (
	ErrGrantNotFound = errors.New("grant not found")
	ErrInvalidAmount = errors.New("grant amount must be a non-negative number")
	ErrInvalidStatus = errors.New("invalid grant status")
	ErrNotEnabled    = errors.New("grants are not enabled for this agent")
)

// Backend is the slice of the upstream API the workbench writes through.
type Backend interface {
	UpdateGrantStatus(ctx context.Context, agentID, grantID string, status schemas.GrantStatus) error
	UpdateGrantAmount(ctx context.Context, agentID, grantID string, amount float64) error
	SendGrant(ctx context.Context, agentID, grantID string, amount float64) error
}

// Result is what a mutation reports back to the dashboard.
type Result struct {
	Grant   schemas.Grant  `json:"grant"`
	Changed bool           `json:"changed"`
	Toast   *schemas.Toast `json:"toast,omitempty"`
}

// Workbench holds the grants of one agent under review. Mutations are
// applied optimistically and the touched field is rolled back when the
// backend call fails.
type Workbench struct {
	agentID string
	backend Backend
	loc     *time.Location
	step    float64
	logger  *zap.Logger
	onPaid  func(ctx context.Context)
	onEvent func(ctx context.Context, ev schemas.GrantEvent)
	now     func() time.Time

	mu      sync.RWMutex
	grants  []schemas.Grant
	index   map[string]int
	pending map[string]int // Key: grant ID, Value: mutations in flight
}

// Option configures a Workbench.
type Option func(*Workbench)

// WithPaidHook runs fn after every successful payment, e.g. to refresh balances.
func WithPaidHook(fn func(ctx context.Context)) Option {
	return func(w *Workbench) { w.onPaid = fn }
}

// WithEventHook runs fn after every accepted mutation.
func WithEventHook(fn func(ctx context.Context, ev schemas.GrantEvent)) Option {
	return func(w *Workbench) { w.onEvent = fn }
}

// NewWorkbench builds a workbench over the grants recorded on agent.
// Agents not listed in cfg.EnabledAgents get ErrNotEnabled.
func NewWorkbench(agent *schemas.Agent, be Backend, cfg config.GrantsConfig, logger *zap.Logger, opts ...Option) (*Workbench, error) {
	if agent == nil {
		return nil, ErrNotEnabled
	}
	if !cfg.Enabled(agent.Name) {
		return nil, fmt.Errorf("%s: %w", agent.Name, ErrNotEnabled)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("grants").With(zap.String("agent_id", agent.ID))

	w := &Workbench{
		agentID: agent.ID,
		backend: be,
		loc:     cfg.Location(),
		step:    cfg.AmountStep,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.load(FromAgent(agent, logger))
	return w, nil
}

func (w *Workbench) load(gs []schemas.Grant) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reindex(gs)
}

// reindex installs gs. Caller holds the write lock.
func (w *Workbench) reindex(gs []schemas.Grant) {
	w.grants = gs
	w.index = make(map[string]int, len(gs))
	for i, g := range gs {
		w.index[g.ID] = i
	}
}

// Reload rebuilds the grant list from a freshly fetched agent. Grants with a
// mutation still in flight keep their local state, even if the fetch no
// longer lists them.
func (w *Workbench) Reload(agent *schemas.Agent) {
	if agent == nil {
		return
	}
	fresh := FromAgent(agent, w.logger)

	w.mu.Lock()
	defer w.mu.Unlock()
	seen := make(map[string]struct{}, len(fresh))
	for i, g := range fresh {
		seen[g.ID] = struct{}{}
		if w.pending[g.ID] == 0 {
			continue
		}
		if j, ok := w.index[g.ID]; ok {
			fresh[i] = w.grants[j]
		}
	}
	for id, n := range w.pending {
		if _, ok := seen[id]; ok || n == 0 {
			continue
		}
		if j, ok := w.index[id]; ok {
			fresh = append(fresh, w.grants[j])
		}
	}
	w.reindex(fresh)
	w.logger.Debug("Grants reloaded.", zap.Int("grants", len(fresh)))
}

// FromAgent collects the grants recorded on agent: repository analyses from
// githubMetrics (entries carrying metrics.repository) and url analyses.
// Records that fail to decode are logged and skipped.
func FromAgent(agent *schemas.Agent, logger *zap.Logger) []schemas.Grant {
	if agent == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	keys := make([]string, 0, len(agent.GithubMetrics))
	for k := range agent.GithubMetrics {
		if k != "lastUpdated" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := make([]schemas.Grant, 0, len(keys)+len(agent.URLAnalysis))
	for _, k := range keys {
		raw := agent.GithubMetrics[k]
		if !schemas.HasRepositoryMetrics(raw) {
			continue
		}
		g, err := schemas.DecodeGrant(raw)
		if err != nil {
			logger.Warn("Skipping undecodable repository grant.", zap.String("key", k), zap.Error(err))
			continue
		}
		if g.ID == "" {
			g.ID = k
		}
		out = append(out, g)
	}
	for i, raw := range agent.URLAnalysis {
		g, err := schemas.DecodeGrant(raw)
		if err != nil {
			logger.Warn("Skipping undecodable url grant.", zap.Int("index", i), zap.Error(err))
			continue
		}
		out = append(out, g)
	}
	return out
}

// List returns the grants matching f, newest first.
func (w *Workbench) List(f Filter) ([]schemas.Grant, error) {
	w.mu.RLock()
	snapshot := append([]schemas.Grant(nil), w.grants...)
	w.mu.RUnlock()
	return Apply(snapshot, f, w.loc)
}

// Weeks lists the week buckets present, newest first.
func (w *Workbench) Weeks() []Week {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Weeks(w.grants, w.loc)
}

// Get returns one grant.
func (w *Workbench) Get(id string) (schemas.Grant, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.index[id]
	if !ok {
		return schemas.Grant{}, fmt.Errorf("%q: %w", id, ErrGrantNotFound)
	}
	return w.grants[i], nil
}

// AdjustAmount moves v by delta, never below zero.
func AdjustAmount(v, delta float64) float64 {
	return math.Max(0, v+delta)
}

// Increment and Decrement step the amount editor by the configured step.
func (w *Workbench) Increment(v float64) float64 { return AdjustAmount(v, w.step) }
func (w *Workbench) Decrement(v float64) float64 { return AdjustAmount(v, -w.step) }

// mutation is one optimistic change: apply runs locally before the backend
// call; revert undoes only the field apply touched if call fails.
type mutation struct {
	name    string
	apply   func(g *schemas.Grant)
	revert  func(g *schemas.Grant, prior schemas.Grant)
	call    func(ctx context.Context) error
	success schemas.Toast
	failure schemas.Toast
}

func (w *Workbench) run(ctx context.Context, id string, m mutation) (Result, error) {
	w.mu.Lock()
	i, ok := w.index[id]
	if !ok {
		w.mu.Unlock()
		return Result{}, fmt.Errorf("%q: %w", id, ErrGrantNotFound)
	}
	prior := w.grants[i]
	m.apply(&w.grants[i])
	w.pending[id]++
	w.mu.Unlock()

	err := m.call(ctx)

	w.mu.Lock()
	w.pending[id]--
	if w.pending[id] <= 0 {
		delete(w.pending, id)
	}
	var current schemas.Grant
	if j, ok := w.index[id]; ok {
		// Other writes may have landed meanwhile; only this field goes back.
		if err != nil {
			m.revert(&w.grants[j], prior)
		}
		current = w.grants[j]
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Grant mutation failed; rolling back.", zap.String("op", m.name), zap.String("grant_id", id), zap.Error(err))
		toast := m.failure
		return Result{Grant: current, Toast: &toast}, fmt.Errorf("update %s of %s: %w", m.name, id, err)
	}

	w.emit(ctx, m.name, current)
	toast := m.success
	return Result{Grant: current, Changed: true, Toast: &toast}, nil
}

func (w *Workbench) emit(ctx context.Context, op string, g schemas.Grant) {
	if w.onEvent == nil {
		return
	}
	w.onEvent(ctx, schemas.GrantEvent{
		AgentID: w.agentID,
		GrantID: g.ID,
		Op:      op,
		Status:  g.Status,
		Amount:  g.GrantAmountInUSDC,
		At:      w.now().UTC(),
	})
}

// SetStatus moves a grant to status. Paid is reachable only through Send.
func (w *Workbench) SetStatus(ctx context.Context, id string, status schemas.GrantStatus) (Result, error) {
	if !status.Valid() || status == schemas.GrantPaid {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return w.run(ctx, id, mutation{
		name:  "status",
		apply: func(g *schemas.Grant) { g.Status = status },
		revert: func(g *schemas.Grant, prior schemas.Grant) {
			if g.Status == status {
				g.Status = prior.Status
			}
		},
		call: func(ctx context.Context) error {
			return w.backend.UpdateGrantStatus(ctx, w.agentID, id, status)
		},
		success: schemas.Toast{Title: "Grant status updated", Description: "The grant status has been updated", Variant: schemas.ToastDefault},
		failure: schemas.Toast{Title: "Error updating grant status", Description: "Please try again", Variant: schemas.ToastDestructive},
	})
}

// Approve, Deny and ReturnToPending are the three review transitions.
func (w *Workbench) Approve(ctx context.Context, id string) (Result, error) {
	return w.SetStatus(ctx, id, schemas.GrantApproved)
}

func (w *Workbench) Deny(ctx context.Context, id string) (Result, error) {
	return w.SetStatus(ctx, id, schemas.GrantDenied)
}

func (w *Workbench) ReturnToPending(ctx context.Context, id string) (Result, error) {
	return w.SetStatus(ctx, id, schemas.GrantPending)
}

// UpdateAmount changes the USDC amount. An unchanged amount is a no-op.
func (w *Workbench) UpdateAmount(ctx context.Context, id string, amount float64) (Result, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	current, err := w.Get(id)
	if err != nil {
		return Result{}, err
	}
	if current.GrantAmountInUSDC == amount {
		return Result{Grant: current}, nil
	}
	return w.run(ctx, id, mutation{
		name:  "amount",
		apply: func(g *schemas.Grant) { g.GrantAmountInUSDC = amount },
		revert: func(g *schemas.Grant, prior schemas.Grant) {
			if g.GrantAmountInUSDC == amount {
				g.GrantAmountInUSDC = prior.GrantAmountInUSDC
			}
		},
		call: func(ctx context.Context) error {
			return w.backend.UpdateGrantAmount(ctx, w.agentID, id, amount)
		},
		success: schemas.Toast{Title: "Grant amount updated", Description: "The grant amount has been updated", Variant: schemas.ToastDefault},
		failure: schemas.Toast{Title: "Error updating grant amount", Description: "Please try again", Variant: schemas.ToastDestructive},
	})
}

// Send triggers payment of amount. The grant becomes paid only after the
// backend accepts; nothing is applied up front.
func (w *Workbench) Send(ctx context.Context, id string, amount float64) (Result, error) {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	if _, err := w.Get(id); err != nil {
		return Result{}, err
	}

	if err := w.backend.SendGrant(ctx, w.agentID, id, amount); err != nil {
		w.logger.Error("Failed to send grant.", zap.String("grant_id", id), zap.Error(err))
		g, _ := w.Get(id)
		return Result{Grant: g, Toast: &schemas.Toast{Title: "Error sending grant", Description: "Please try again", Variant: schemas.ToastDestructive}},
			fmt.Errorf("send grant %s: %w", id, err)
	}

	w.mu.Lock()
	var paid schemas.Grant
	if i, ok := w.index[id]; ok {
		w.grants[i].Status = schemas.GrantPaid
		paid = w.grants[i]
	}
	w.mu.Unlock()

	sent := paid
	sent.GrantAmountInUSDC = amount
	w.emit(ctx, "send", sent)
	if w.onPaid != nil {
		w.onPaid(ctx)
	}
	w.logger.Info("Grant sent.", zap.String("grant_id", id), zap.Float64("amount", amount))
	return Result{
		Grant:   paid,
		Changed: true,
		Toast:   &schemas.Toast{Title: "Grant sent", Description: "The transaction has been initiated", Variant: schemas.ToastDefault},
	}, nil
}
