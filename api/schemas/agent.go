// File: api/schemas/agent.go
package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ClientStatus is the review state of a per-platform client configuration.
type ClientStatus string

const (
	ClientPending  ClientStatus = "pending"
	ClientApproved ClientStatus = "approved"
	ClientRejected ClientStatus = "rejected"
)

// Agent is the read-only copy of an agent record owned by the upstream API.
type Agent struct {
	ID              string           `json:"agentId"`
	Name            string           `json:"name"`
	CreatorAddress  CreatorAddresses `json:"creatorAddress,omitempty"`
	TwitterClient   *TwitterClient   `json:"twitterClient,omitempty"`
	FarcasterClient *FarcasterClient `json:"farcasterClient,omitempty"`
	TelegramClient  *TelegramClient  `json:"telegramClient,omitempty"`
	Knowledge       []KnowledgeItem  `json:"knowledge,omitempty"`
	Wallet          AgentWallet      `json:"agentWallet"`

	// Grant sources. githubMetrics is a map of repository analyses keyed by
	// project, plus a bookkeeping "lastUpdated" key.
	GithubMetrics map[string]json.RawMessage `json:"githubMetrics,omitempty"`
	URLAnalysis   []json.RawMessage          `json:"urlAnalysis,omitempty"`
}

// TwitterClient is the agent's linked Twitter account.
type TwitterClient struct {
	Username        string       `json:"username,omitempty"`
	CreatorUsername string       `json:"creatorUsername,omitempty"`
	Status          ClientStatus `json:"status,omitempty"`
}

// FarcasterClient is the agent's linked Farcaster account.
type FarcasterClient struct {
	FID        int64        `json:"fid,omitempty"`
	CreatorFID int64        `json:"creator_fid,omitempty"`
	Username   string       `json:"username,omitempty"`
	Status     ClientStatus `json:"status,omitempty"`
}

// TelegramClient is the agent's linked Telegram bot.
type TelegramClient struct {
	Username string       `json:"username,omitempty"`
	Status   ClientStatus `json:"status,omitempty"`
}

// AgentWallet is the agent's own on-chain wallet.
type AgentWallet struct {
	WalletAddress string `json:"walletAddress,omitempty"`
}

// CreatorAddresses holds the wallet addresses recorded as the agent's owner.
// Upstream stores either a single address string or an array; both decode
// into the same slice. Non-string array entries are dropped.
type CreatorAddresses []string

// UnmarshalJSON accepts a string, an array of mixed values, or null.
func (c *CreatorAddresses) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = nil
		return nil
	}

	switch trimmed[0] {
	case '"':
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return fmt.Errorf("creatorAddress: %w", err)
		}
		if single == "" {
			*c = nil
			return nil
		}
		*c = CreatorAddresses{single}
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return fmt.Errorf("creatorAddress: %w", err)
		}
		out := make(CreatorAddresses, 0, len(raw))
		for _, item := range raw {
			var addr string
			if err := json.Unmarshal(item, &addr); err != nil {
				continue
			}
			out = append(out, addr)
		}
		*c = out
		return nil
	default:
		// Anything else (numbers, objects) is stringified the way the dashboard did.
		*c = CreatorAddresses{string(trimmed)}
		return nil
	}
}

// Personality is the agent's character configuration as served by the
// personality endpoint.
type Personality struct {
	System          string            `json:"system"`
	Bio             []string          `json:"bio"`
	Lore            []string          `json:"lore"`
	Style           PersonalityStyle  `json:"style"`
	Knowledge       []json.RawMessage `json:"knowledge"`
	Topics          []string          `json:"topics"`
	MessageExamples []json.RawMessage `json:"messageExamples"`
	PostExamples    []string          `json:"postExamples"`
	Adjectives      []string          `json:"adjectives"`
}

// PersonalityStyle groups the style directives by surface.
type PersonalityStyle struct {
	All  []string `json:"all"`
	Chat []string `json:"chat"`
	Post []string `json:"post"`
}

// Normalize replaces missing lists with empty ones so the editor always
// receives every field.
func (p *Personality) Normalize() {
	if p.Bio == nil {
		p.Bio = []string{}
	}
	if p.Lore == nil {
		p.Lore = []string{}
	}
	if p.Style.All == nil {
		p.Style.All = []string{}
	}
	if p.Style.Chat == nil {
		p.Style.Chat = []string{}
	}
	if p.Style.Post == nil {
		p.Style.Post = []string{}
	}
	if p.Knowledge == nil {
		p.Knowledge = []json.RawMessage{}
	}
	if p.Topics == nil {
		p.Topics = []string{}
	}
	if p.MessageExamples == nil {
		p.MessageExamples = []json.RawMessage{}
	}
	if p.PostExamples == nil {
		p.PostExamples = []string{}
	}
	if p.Adjectives == nil {
		p.Adjectives = []string{}
	}
}

// ConversationsByPlatform lists the agent's recent conversations per network.
type ConversationsByPlatform struct {
	Farcaster []json.RawMessage `json:"farcaster"`
	Twitter   []json.RawMessage `json:"twitter"`
	Telegram  []json.RawMessage `json:"telegram"`
}
