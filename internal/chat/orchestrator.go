// File: internal/chat/orchestrator.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/backend"
	"github.com/a0x-labs/agentdeck/internal/config"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrBusy         = errors.New("a message is already being processed")
	ErrReset        = errors.New("conversation was reset while the reply was pending")
)

// Canned replies shown in place of the thinking entry.
const (
	ThinkingText     = "Thinking"
	GatewayTimeout   = "The agent is processing parallel actions which takes more than 1 minute. In the meantime, you can continue requesting grants through our other channels like Telegram, Twitter, or Farcaster."
	SubmitFailure    = "Sorry, there was an error processing your request."
	ProcessingFailed = "Sorry, there was an error processing your request. Please try again."
)

// Texts sent by the deploy confirmation dialog.
const (
	ConfirmDeployText = "Yes, I confirm the token deployment"
	CancelDeployText  = "Cancel the token deployment"
)

// Reply is the outcome of one Send.
type Reply struct {
	Message schemas.ChatMessage `json:"message"`
	Modal   *Modal              `json:"modal,omitempty"`
}

// State is the dashboard-visible state around the transcript.
type State struct {
	Busy                 bool   `json:"busy"`
	AwaitingConfirmation bool   `json:"awaitingConfirmation"`
	Modal                *Modal `json:"modal,omitempty"`
}

// Params identifies the conversation an Orchestrator drives.
type Params struct {
	// Handle is the dashboard's agent handle, also used as the agent name
	// appended for the token deployer.
	Handle      string
	AgentID     string
	AgentName   string
	UserAddress string
	// MirrorKey names the transcript in the mirror. Empty disables mirroring.
	MirrorKey string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMirror keeps a copy of the transcript in m after every change.
func WithMirror(m schemas.TranscriptMirror) Option {
	return func(o *Orchestrator) { o.mirror = m }
}

// WithRefetch runs fn when the token deployer reports an existing token.
func WithRefetch(fn func(ctx context.Context)) Option {
	return func(o *Orchestrator) { o.refetch = fn }
}

// Orchestrator manages one linear conversation with an agent over the job API.
type Orchestrator struct {
	params  Params
	cfg     config.ChatConfig
	api     JobAPI
	poller  *Poller
	mirror  schemas.TranscriptMirror
	refetch func(ctx context.Context)
	logger  *zap.Logger

	mu       sync.Mutex
	history  []schemas.ChatMessage
	busy     bool
	awaiting bool
	modal    *Modal
	// generation increments on Reset so late replies are dropped.
	generation uint64
}

func NewOrchestrator(p Params, api JobAPI, cfg config.ChatConfig, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chat").With(zap.String("agent", p.Handle))
	o := &Orchestrator{
		params: p,
		cfg:    cfg,
		api:    api,
		poller: NewPoller(api, cfg.PollInterval, cfg.MaxPollingTime, logger),
		logger: logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) isTokenDeployer() bool {
	return o.cfg.TokenDeployerAgent != "" && o.params.AgentName == o.cfg.TokenDeployerAgent
}

// Restore seeds the transcript from the mirror for display. Stale thinking
// entries are dropped. Missing or unreadable mirrors leave it empty.
func (o *Orchestrator) Restore(ctx context.Context) {
	if o.mirror == nil || o.params.MirrorKey == "" {
		return
	}
	t, err := o.mirror.Load(ctx, o.params.MirrorKey)
	if err != nil {
		o.logger.Warn("Failed to load transcript mirror.", zap.Error(err))
		return
	}
	restored := make([]schemas.ChatMessage, 0, len(t.Messages))
	for _, m := range t.Messages {
		if !m.Thinking {
			restored = append(restored, m)
		}
	}
	o.mu.Lock()
	if len(o.history) == 0 {
		o.history = restored
	}
	o.mu.Unlock()
}

// History returns a copy of the transcript.
func (o *Orchestrator) History() []schemas.ChatMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]schemas.ChatMessage(nil), o.history...)
}

// State reports busy/confirmation/modal state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{Busy: o.busy, AwaitingConfirmation: o.awaiting, Modal: o.modal}
}

// DismissModal closes any open dialog. A pending confirmation stays pending.
func (o *Orchestrator) DismissModal() {
	o.mu.Lock()
	o.modal = nil
	o.mu.Unlock()
}

// Send submits text to the agent and blocks until the reply resolves, fails,
// or the polling budget runs out. The transcript is updated throughout; the
// returned Reply carries the entry that replaced the thinking placeholder.
func (o *Orchestrator) Send(ctx context.Context, text string) (Reply, error) {
	if strings.TrimSpace(text) == "" {
		return Reply{}, ErrEmptyMessage
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return Reply{}, ErrBusy
	}
	o.busy = true
	gen := o.generation
	outbound := o.outboundLocked(text)
	o.history = append(o.history,
		schemas.ChatMessage{Role: schemas.RoleUser, Content: text},
		schemas.ChatMessage{Role: schemas.RoleAgent, Content: ThinkingText, Thinking: true},
	)
	awaiting := o.awaiting
	o.mu.Unlock()
	o.persist(ctx)

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	if awaiting {
		if err := sleep(ctx, o.cfg.ConfirmationDelay); err != nil {
			return o.resolve(ctx, gen, failure(SubmitFailure), nil, err)
		}
		o.mu.Lock()
		o.awaiting = false
		if o.modal != nil && o.modal.Kind == ModalConfirmDeploy {
			o.modal = nil
		}
		o.mu.Unlock()
	}

	handle, err := o.api.SubmitTalk(ctx, schemas.TalkRequest{
		Message:     outbound,
		UserAddress: o.params.UserAddress,
		AgentID:     o.params.AgentID,
	})
	if err != nil {
		o.logger.Error("Failed to submit message.", zap.Error(err))
		if backend.IsGatewayTimeout(err) {
			return o.resolve(ctx, gen, failure(GatewayTimeout), nil, err)
		}
		return o.resolve(ctx, gen, failure(SubmitFailure), nil, err)
	}

	status, err := o.poller.Wait(ctx, handle.RequestID)
	if err != nil {
		o.logger.Warn("Agent job did not complete.", zap.String("request_id", handle.RequestID), zap.Error(err))
		return o.resolve(ctx, gen, failure(ProcessingFailed), nil, err)
	}

	resp, err := DecodeResponse(status.Result)
	if err != nil {
		o.logger.Warn("Failed to decode agent reply.", zap.String("request_id", handle.RequestID), zap.Error(err))
		return o.resolve(ctx, gen, failure(ProcessingFailed), nil, err)
	}

	msg := schemas.ChatMessage{
		Role:          schemas.RoleAgent,
		Content:       resp.DisplayText(),
		ShouldAnimate: true,
		Action:        resp.Action,
		Metadata:      resp.Metadata,
	}
	return o.resolve(ctx, gen, msg, o.transition(ctx, resp), nil)
}

// ConfirmDeploy answers the deploy confirmation dialog with a yes.
func (o *Orchestrator) ConfirmDeploy(ctx context.Context) (Reply, error) {
	return o.Send(ctx, ConfirmDeployText)
}

// CancelDeploy closes the confirmation dialog and tells the agent to stop.
// The confirmation delay does not apply to the cancel message.
func (o *Orchestrator) CancelDeploy(ctx context.Context) (Reply, error) {
	o.mu.Lock()
	o.awaiting = false
	o.modal = nil
	o.mu.Unlock()
	return o.Send(ctx, CancelDeployText)
}

// Reset clears the transcript, its mirror and any dialog state. A reply still
// in flight is discarded when it lands.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	o.history = nil
	o.awaiting = false
	o.modal = nil
	o.generation++
	o.mu.Unlock()

	if o.mirror == nil || o.params.MirrorKey == "" {
		return nil
	}
	if err := o.mirror.Clear(ctx, o.params.MirrorKey); err != nil {
		return fmt.Errorf("failed to clear transcript mirror: %w", err)
	}
	return nil
}

// outboundLocked renders the prior turns as a context window ahead of text.
func (o *Orchestrator) outboundLocked(text string) string {
	lines := make([]string, 0, len(o.history))
	for _, m := range o.history {
		if m.Thinking {
			continue
		}
		who := " Agent"
		if m.Role == schemas.RoleUser {
			who = "User"
		}
		lines = append(lines, who+": "+m.Content)
	}
	out := fmt.Sprintf("Context history:\n%s\n\nNew message: %s", strings.Join(lines, "\n"), text)
	if o.isTokenDeployer() && o.params.Handle != "" {
		out = fmt.Sprintf("message: %s, agent name: %s", out, o.params.Handle)
	}
	return out
}

// transition applies the response-driven dialogs of the token deployer.
func (o *Orchestrator) transition(ctx context.Context, resp schemas.AgentResponse) *Modal {
	if !o.isTokenDeployer() {
		return nil
	}
	switch resp.Action {
	case schemas.ActionAwaitDeployConfirmation:
		m := &Modal{Kind: ModalConfirmDeploy}
		o.mu.Lock()
		o.awaiting = true
		o.modal = m
		o.mu.Unlock()
		return m
	case schemas.ActionTokenAlreadyCreated:
		if o.refetch != nil {
			o.refetch(ctx)
		}
		if resp.Metadata == nil || resp.Metadata.TokenAddress == "" {
			return nil
		}
		m := &Modal{
			Kind:         ModalTokenCreated,
			TokenAddress: resp.Metadata.TokenAddress,
			Links:        TokenLinks(resp.Metadata.TokenAddress, o.params.AgentName),
		}
		o.mu.Lock()
		o.modal = m
		o.mu.Unlock()
		return m
	}
	return nil
}

// resolve replaces the thinking placeholder with msg, unless the
// conversation was reset in the meantime.
func (o *Orchestrator) resolve(ctx context.Context, gen uint64, msg schemas.ChatMessage, modal *Modal, cause error) (Reply, error) {
	o.mu.Lock()
	if gen != o.generation {
		o.mu.Unlock()
		return Reply{}, ErrReset
	}
	if n := len(o.history); n > 0 && o.history[n-1].Thinking {
		o.history[n-1] = msg
	} else {
		o.history = append(o.history, msg)
	}
	o.mu.Unlock()
	o.persist(ctx)
	return Reply{Message: msg, Modal: modal}, cause
}

func (o *Orchestrator) persist(ctx context.Context) {
	if o.mirror == nil || o.params.MirrorKey == "" {
		return
	}
	if err := o.mirror.Save(context.WithoutCancel(ctx), o.params.MirrorKey, o.History()); err != nil {
		o.logger.Warn("Failed to mirror transcript.", zap.Error(err))
	}
}

func failure(text string) schemas.ChatMessage {
	return schemas.ChatMessage{Role: schemas.RoleAgent, Content: text, ShouldAnimate: true, IsError: true}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
