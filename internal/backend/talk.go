// File: internal/backend/talk.go
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

const talkPath = "/api/talk-with-a0x-agent"

// SubmitTalk submits a message to the asynchronous job API.
func (c *Client) SubmitTalk(ctx context.Context, req schemas.TalkRequest) (schemas.JobHandle, error) {
	var handle schemas.JobHandle
	if err := c.doJSON(ctx, http.MethodPost, talkPath, nil, req, &handle); err != nil {
		return schemas.JobHandle{}, err
	}
	if handle.RequestID == "" {
		return schemas.JobHandle{}, errors.New("job api returned no requestId")
	}
	if handle.Status == "" {
		handle.Status = schemas.JobPending
	}
	return handle, nil
}

// PollTalk fetches the current state of a submitted job.
func (c *Client) PollTalk(ctx context.Context, requestID string) (schemas.JobStatus, error) {
	var status schemas.JobStatus
	path := fmt.Sprintf("%s/%s", talkPath, url.PathEscape(requestID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &status); err != nil {
		return schemas.JobStatus{}, err
	}
	return status, nil
}
