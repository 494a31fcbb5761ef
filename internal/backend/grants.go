// File: internal/backend/grants.go
package backend

import (
	"context"
	"net/http"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

type grantUpdate struct {
	AgentID string              `json:"agentId"`
	ID      string              `json:"id"`
	Status  schemas.GrantStatus `json:"status,omitempty"`
	Amount  *float64            `json:"amount,omitempty"`
}

// UpdateGrantStatus moves a grant to a new review state.
func (c *Client) UpdateGrantStatus(ctx context.Context, agentID, grantID string, status schemas.GrantStatus) error {
	body := grantUpdate{AgentID: agentID, ID: grantID, Status: status}
	return c.doJSON(ctx, http.MethodPut, "/api/grants", nil, body, nil)
}

// UpdateGrantAmount changes the USDC amount of a grant.
func (c *Client) UpdateGrantAmount(ctx context.Context, agentID, grantID string, amount float64) error {
	body := grantUpdate{AgentID: agentID, ID: grantID, Amount: &amount}
	return c.doJSON(ctx, http.MethodPut, "/api/grants", nil, body, nil)
}

// SendGrant triggers the payment of a grant. Execution happens upstream.
func (c *Client) SendGrant(ctx context.Context, agentID, grantID string, amount float64) error {
	body := grantUpdate{AgentID: agentID, ID: grantID, Amount: &amount}
	return c.doJSON(ctx, http.MethodPost, "/api/grants", nil, body, nil)
}
