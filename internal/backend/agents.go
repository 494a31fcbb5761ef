// File: internal/backend/agents.go
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// GetAgent fetches an agent by handle. A JSON null or a 404 yields ErrNotFound.
func (c *Client) GetAgent(ctx context.Context, handle string) (*schemas.Agent, error) {
	var agent *schemas.Agent
	err := c.doJSON(ctx, http.MethodGet, "/api/agents", url.Values{"name": {handle}}, nil, &agent)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("agent %q: %w", handle, ErrNotFound)
		}
		return nil, err
	}
	if agent == nil {
		return nil, fmt.Errorf("agent %q: %w", handle, ErrNotFound)
	}
	return agent, nil
}

// GetPersonality fetches the agent's personality and normalizes its lists.
func (c *Client) GetPersonality(ctx context.Context, handle string) (*schemas.Personality, error) {
	var p *schemas.Personality
	err := c.doJSON(ctx, http.MethodGet, "/api/personality-agent", url.Values{"handle": {handle}}, nil, &p)
	if err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("personality %q: %w", handle, ErrNotFound)
		}
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("personality %q: %w", handle, ErrNotFound)
	}
	p.Normalize()
	return p, nil
}

// SendCreatorAddress records wallet as the creator address of agentID for
// the given social auth mode.
func (c *Client) SendCreatorAddress(ctx context.Context, agentID, wallet string, mode schemas.AuthMode) error {
	if !mode.IsSocial() {
		return errors.New("creator address linking requires a social auth mode")
	}
	path := fmt.Sprintf("/api/agents/%s/%s/creator-address", url.PathEscape(agentID), mode)
	body := map[string]string{"creatorAddress": wallet, "agentId": agentID}
	return c.doJSON(ctx, http.MethodPost, path, nil, body, nil)
}

// GetConversations lists the agent's recent conversations per platform.
func (c *Client) GetConversations(ctx context.Context, agentID string) (*schemas.ConversationsByPlatform, error) {
	var out schemas.ConversationsByPlatform
	path := fmt.Sprintf("/api/agents/%s/conversations", url.PathEscape(agentID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
