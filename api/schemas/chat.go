// File: api/schemas/chat.go
package schemas

import "encoding/json"

// ChatRole identifies who authored a transcript entry.
type ChatRole string

const (
	RoleUser  ChatRole = "user"
	RoleAgent ChatRole = "userAgent"
)

// ResponseAction is a control signal an agent may attach to a reply.
type ResponseAction string

const (
	ActionAwaitDeployConfirmation ResponseAction = "AWAIT_CONFIRMATION_FOR_TOKEN_DEPLOY"
	ActionTokenAlreadyCreated     ResponseAction = "TOKEN_ALREADY_CREATED"
)

// ResponseMetadata carries structured data returned alongside a reply.
type ResponseMetadata struct {
	TokenAddress string `json:"tokenAddress,omitempty"`
}

// ChatMessage is one entry of the transcript.
type ChatMessage struct {
	Role          ChatRole          `json:"role"`
	Content       string            `json:"content"`
	Thinking      bool              `json:"isThinking,omitempty"`
	ShouldAnimate bool              `json:"shouldAnimate,omitempty"`
	IsError       bool              `json:"isError,omitempty"`
	Action        ResponseAction    `json:"action,omitempty"`
	Metadata      *ResponseMetadata `json:"metadata,omitempty"`
}

// JobState is the lifecycle of an asynchronous agent request.
type JobState string

const (
	JobIdle       JobState = "idle"
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
)

// Terminal reports whether no further polling is needed.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobHandle identifies a submitted request on the job API.
type JobHandle struct {
	RequestID string   `json:"requestId"`
	Status    JobState `json:"status"`
}

// JobStatus is one poll result.
type JobStatus struct {
	Status JobState        `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// AgentResponse is the reply extracted from a completed job.
type AgentResponse struct {
	Text     string            `json:"text,omitempty"`
	Message  string            `json:"message,omitempty"`
	Action   ResponseAction    `json:"action,omitempty"`
	Metadata *ResponseMetadata `json:"metadata,omitempty"`
}

// DisplayText is the text shown for the reply.
func (r AgentResponse) DisplayText() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.Message != "":
		return r.Message
	default:
		return "Response received"
	}
}

// TalkRequest is the body submitted to the job API.
type TalkRequest struct {
	Message     string `json:"message"`
	UserAddress string `json:"userAddress,omitempty"`
	AgentID     string `json:"agentId,omitempty"`
}
