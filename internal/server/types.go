// File: internal/server/types.go
package server

import (
	"net/http"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/chat"
)

// ClaimResolver reads the session identity of an HTTP request.
// *access.SessionVerifier satisfies it.
type ClaimResolver interface {
	FromRequest(r *http.Request) (schemas.IdentityClaim, error)
}

// Response is the envelope of every JSON reply.
type Response struct {
	Status string      `json:"status"` // "success", "error", "accepted"
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// DashboardView is the settled gate plus, once granted, the agent it guards.
type DashboardView struct {
	Outcome       access.Outcome       `json:"outcome"`
	Agent         *schemas.Agent       `json:"agent,omitempty"`
	Personality   *schemas.Personality `json:"personality,omitempty"`
	GrantsEnabled bool                 `json:"grantsEnabled"`
}

// KnowledgeRequest adds a web page or a Farcaster account. PDFs are sent as
// multipart form data instead.
type KnowledgeRequest struct {
	Type         schemas.KnowledgeType `json:"type"`
	URL          string                `json:"url,omitempty"`
	IsDynamic    bool                  `json:"isDynamic,omitempty"`
	Instructions string                `json:"instructions,omitempty"`
	Account      string                `json:"account,omitempty"`
}

// KnowledgeEditRequest replaces the content of one item.
type KnowledgeEditRequest struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// GraphView is the knowledge diagram plus the nodes still processing.
type GraphView struct {
	Graph      schemas.Graph   `json:"graph"`
	Processing map[string]bool `json:"processing"`
}

// WeekOption is one entry of the week selector.
type WeekOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

type statusRequest struct {
	Status schemas.GrantStatus `json:"status"`
}

type amountRequest struct {
	Amount *float64 `json:"amount"`
}

// ChatAction is a non-text chat command.
type ChatAction string

const (
	ChatConfirm ChatAction = "confirm"
	ChatCancel  ChatAction = "cancel"
	ChatDismiss ChatAction = "dismiss"
)

// ChatRequest is either a message or an action.
type ChatRequest struct {
	Message string     `json:"message,omitempty"`
	Action  ChatAction `json:"action,omitempty"`
}

// ChatView is the transcript and the state around it.
type ChatView struct {
	History []schemas.ChatMessage `json:"history"`
	State   chat.State            `json:"state"`
}

// -- WebSocket frames --

// MessageType is the kind of a chat socket frame.
type MessageType string

const (
	// Client to server.
	MsgTypeUserPrompt    MessageType = "UserPrompt"
	MsgTypeConfirmDeploy MessageType = "ConfirmDeploy"
	MsgTypeCancelDeploy  MessageType = "CancelDeploy"
	MsgTypeDismissModal  MessageType = "DismissModal"
	MsgTypeReset         MessageType = "Reset"

	// Server to client.
	MsgTypeHistory       MessageType = "History"
	MsgTypeStatusUpdate  MessageType = "StatusUpdate"
	MsgTypeAgentChunk    MessageType = "AgentChunk"
	MsgTypeAgentResponse MessageType = "AgentResponse"
	MsgTypeSystemError   MessageType = "SystemError"
)

// WSMessage is one frame on the chat socket.
type WSMessage struct {
	Type MessageType            `json:"type"`
	Data map[string]interface{} `json:"data,omitempty"`
	// Timestamp is RFC 3339 in UTC.
	Timestamp string `json:"timestamp"`
	RequestID string `json:"request_id,omitempty"`
}
