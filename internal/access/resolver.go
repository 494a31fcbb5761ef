// File: internal/access/resolver.go
package access

import (
	"errors"
	"fmt"
	"strings"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

var (
	// ErrAgentNotFound means the agent could not be loaded (absent or fetch failed).
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNoOwner means the agent has no identity recorded for the active auth mode.
	ErrNoOwner = errors.New("agent has no owner for this auth mode")
	// ErrNotOwner means the caller's identity does not match the recorded owner.
	ErrNotOwner = errors.New("identity does not own this agent")
	// ErrSignInRequired means the identity needed by the auth mode is missing.
	ErrSignInRequired = errors.New("sign-in required")
)

// State is a node of the access-gate state machine.
type State string

const (
	StateChecking             State = "checking"
	StateAwaitingSocialSignIn State = "awaiting-social-signin"
	StateAwaitingWallet       State = "awaiting-wallet"
	StateMisconfigured        State = "misconfigured"
	StateDenied               State = "denied"
	StateGranted              State = "granted"
)

// Terminal reports whether the state ends the gate.
func (s State) Terminal() bool { return s != StateChecking }

// Outcome is a settled gate decision. Every non-granted outcome carries the
// message shown to the user.
type Outcome struct {
	State    State            `json:"state"`
	Mode     schemas.AuthMode `json:"mode"`
	Message  string           `json:"message,omitempty"`
	Redirect string           `json:"redirect,omitempty"`
	Err      error            `json:"-"`
}

// Granted reports whether the outcome opens the dashboard.
func (o Outcome) Granted() bool { return o.State == StateGranted }

// HasAccess decides whether claim proves ownership of agent under mode.
// Missing identity data on either side denies access.
func HasAccess(mode schemas.AuthMode, agent *schemas.Agent, claim schemas.IdentityClaim) bool {
	if agent == nil {
		return false
	}

	switch mode {
	case schemas.AuthTwitter:
		if claim.Twitter == nil || claim.Twitter.Username == "" || agent.TwitterClient == nil {
			return false
		}
		tc := agent.TwitterClient
		user := claim.Twitter.Username
		return (tc.CreatorUsername != "" && user == tc.CreatorUsername) ||
			(tc.Username != "" && user == tc.Username)

	case schemas.AuthFarcaster:
		if claim.Farcaster == nil || agent.FarcasterClient == nil || agent.FarcasterClient.CreatorFID == 0 {
			return false
		}
		return claim.Farcaster.FID == agent.FarcasterClient.CreatorFID

	default:
		if claim.WalletAddress == "" {
			return false
		}
		for _, addr := range agent.CreatorAddress {
			if strings.EqualFold(claim.WalletAddress, addr) {
				return true
			}
		}
		return false
	}
}

// Evaluate runs the ordered gate checks: missing sign-in, missing agent or
// owner linkage, then the ownership match.
func Evaluate(mode schemas.AuthMode, handle string, agent *schemas.Agent, claim schemas.IdentityClaim) Outcome {
	out := Outcome{Mode: mode}

	// 1. Sign-in.
	if !signedIn(mode, claim) {
		if mode.IsSocial() {
			out.State = StateAwaitingSocialSignIn
			out.Message = fmt.Sprintf("You need to sign in with %s to access this page", platformName(mode))
		} else {
			out.State = StateAwaitingWallet
			out.Message = "You must be connected to the network to access this page"
		}
		out.Err = ErrSignInRequired
		return out
	}

	// 2. Agent and owner linkage.
	if agent == nil {
		out.State = StateMisconfigured
		out.Message = "This agent could not be found"
		out.Err = ErrAgentNotFound
		return out
	}
	if !hasLinkage(mode, agent) {
		out.State = StateMisconfigured
		out.Err = ErrNoOwner
		if mode.IsSocial() {
			out.Message = fmt.Sprintf("This agent does not have a %s account associated with it", platformName(mode))
		} else {
			out.Message = "This agent does not have an owner assigned"
		}
		return out
	}

	// 3. Ownership.
	if HasAccess(mode, agent, claim) {
		out.State = StateGranted
		return out
	}
	out.State = StateDenied
	out.Err = ErrNotOwner
	if mode.IsSocial() {
		out.Message = fmt.Sprintf("You do not have permission to access this agent's dashboard with your %s account", platformName(mode))
	} else {
		out.Message = "You do not have permission to access this agent's dashboard"
		out.Redirect = "/agent/" + handle
	}
	return out
}

func signedIn(mode schemas.AuthMode, claim schemas.IdentityClaim) bool {
	switch mode {
	case schemas.AuthTwitter:
		return claim.SignedIn && claim.Twitter != nil && claim.Twitter.Username != ""
	case schemas.AuthFarcaster:
		return claim.SignedIn && claim.Farcaster != nil && claim.Farcaster.FID != 0
	default:
		return claim.WalletConnected()
	}
}

func hasLinkage(mode schemas.AuthMode, agent *schemas.Agent) bool {
	switch mode {
	case schemas.AuthTwitter:
		tc := agent.TwitterClient
		return tc != nil && (tc.CreatorUsername != "" || tc.Username != "")
	case schemas.AuthFarcaster:
		return agent.FarcasterClient != nil && agent.FarcasterClient.CreatorFID != 0
	default:
		return len(agent.CreatorAddress) > 0
	}
}

func platformName(mode schemas.AuthMode) string {
	switch mode {
	case schemas.AuthTwitter:
		return "Twitter"
	case schemas.AuthFarcaster:
		return "Farcaster"
	default:
		return "wallet"
	}
}
