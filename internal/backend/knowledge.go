// File: internal/backend/knowledge.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// AddKnowledgeRequest asks the upstream to scrape and ingest a web page.
type AddKnowledgeRequest struct {
	AgentID      string                `json:"agentId"`
	URL          string                `json:"url"`
	Type         schemas.KnowledgeType `json:"type"`
	IsDynamic    bool                  `json:"isDynamic"`
	Instructions string                `json:"instructions,omitempty"`
}

type knowledgeTarget struct {
	AgentID string `json:"agentId"`
	URL     string `json:"url"`
}

// AddWebKnowledge ingests a web page and returns the scraped data.
func (c *Client) AddWebKnowledge(ctx context.Context, req AddKnowledgeRequest) (json.RawMessage, error) {
	var out struct {
		ScrapedData json.RawMessage `json:"scrapedData"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/knowledge", nil, req, &out); err != nil {
		return nil, err
	}
	return out.ScrapedData, nil
}

// RefreshKnowledge re-scrapes a web item and returns the refreshed data.
func (c *Client) RefreshKnowledge(ctx context.Context, agentID, itemURL string) (json.RawMessage, error) {
	var out struct {
		RefreshedData json.RawMessage `json:"refreshedData"`
	}
	body := knowledgeTarget{AgentID: agentID, URL: itemURL}
	if err := c.doJSON(ctx, http.MethodPut, "/api/knowledge", nil, body, &out); err != nil {
		return nil, err
	}
	return out.RefreshedData, nil
}

// DeleteKnowledge removes a knowledge item.
func (c *Client) DeleteKnowledge(ctx context.Context, agentID, itemURL string) error {
	body := knowledgeTarget{AgentID: agentID, URL: itemURL}
	return c.doJSON(ctx, http.MethodDelete, "/api/knowledge", nil, body, nil)
}

// UploadKnowledgePDF streams a PDF to the upload endpoint as multipart form data.
func (c *Client) UploadKnowledgePDF(ctx context.Context, agentID, filename string, file io.Reader) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("agentId", agentID); err != nil {
		return err
	}
	if err := mw.WriteField("type", string(schemas.KnowledgePDF)); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("failed to create multipart file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to buffer %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/knowledge-upload", nil), &buf)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.send(req, "/api/knowledge-upload", nil)
}

// AddFarcasterKnowledge ingests a Farcaster account's casts.
func (c *Client) AddFarcasterKnowledge(ctx context.Context, agentID, account string) error {
	body := map[string]string{"agentId": agentID, "farcasterAccount": account}
	return c.doJSON(ctx, http.MethodPost, "/api/knowledge-farcaster", nil, body, nil)
}

// EditKnowledge replaces the stored content of a knowledge item.
func (c *Client) EditKnowledge(ctx context.Context, agentID, itemURL, newData string) error {
	body := map[string]string{"agentId": agentID, "url": itemURL, "newData": newData}
	return c.doJSON(ctx, http.MethodPost, "/api/knowledge-edit", nil, body, nil)
}
