// File: internal/chat/response.go
package chat

import (
	"bytes"
	"errors"
	"fmt"

	json "github.com/json-iterator/go"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

var errEmptyResult = errors.New("job completed without a result")

// DecodeResponse extracts the reply from a completed job result. The job API
// returns either a list of replies, an object wrapping that list under
// syntheticResponse, or a bare reply object; the first reply wins.
func DecodeResponse(raw []byte) (schemas.AgentResponse, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return schemas.AgentResponse{}, errEmptyResult
	}

	if raw[0] == '[' {
		var list []schemas.AgentResponse
		if err := json.Unmarshal(raw, &list); err != nil {
			return schemas.AgentResponse{}, fmt.Errorf("failed to decode reply list: %w", err)
		}
		if len(list) == 0 {
			return schemas.AgentResponse{}, errEmptyResult
		}
		return list[0], nil
	}

	var wrapped struct {
		SyntheticResponse json.RawMessage `json:"syntheticResponse"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return schemas.AgentResponse{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	if len(wrapped.SyntheticResponse) > 0 && !bytes.Equal(wrapped.SyntheticResponse, []byte("null")) {
		return DecodeResponse(wrapped.SyntheticResponse)
	}

	var r schemas.AgentResponse
	if err := json.Unmarshal(raw, &r); err != nil {
		return schemas.AgentResponse{}, fmt.Errorf("failed to decode reply: %w", err)
	}
	return r, nil
}

// ModalKind names a dialog the dashboard should open after a reply.
type ModalKind string

const (
	ModalConfirmDeploy ModalKind = "confirm-deploy"
	ModalTokenCreated  ModalKind = "token-created"
)

// Link is an external page shown in the token-created dialog.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Modal is a response-driven dialog.
type Modal struct {
	Kind         ModalKind `json:"kind"`
	TokenAddress string    `json:"tokenAddress,omitempty"`
	Links        []Link    `json:"links,omitempty"`
}

// TokenLinks lists the explorer and market pages for a deployed token, plus
// the agent's own token view.
func TokenLinks(tokenAddress, agentName string) []Link {
	return []Link{
		{Label: "View on BaseScan", URL: "https://basescan.org/token/" + tokenAddress},
		{Label: "View on Clanker", URL: "https://www.clanker.world/token/" + tokenAddress},
		{Label: "View on DexScreener", URL: "https://dexscreener.com/base/" + tokenAddress},
		{Label: "View on A0X", URL: "/agent/" + agentName + "?tokenView=1"},
	}
}
