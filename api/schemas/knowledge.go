// File: api/schemas/knowledge.go
package schemas

import "encoding/json"

// KnowledgeType is the source type of a knowledge item. Web items arrive as
// either "website" or "web".
type KnowledgeType string

const (
	KnowledgeWebsite   KnowledgeType = "website"
	KnowledgeWeb       KnowledgeType = "web"
	KnowledgePDF       KnowledgeType = "pdf"
	KnowledgeFarcaster KnowledgeType = "farcaster"
)

// Category collapses the two web spellings into one. Unknown types report false.
func (t KnowledgeType) Category() (KnowledgeType, bool) {
	switch t {
	case KnowledgeWebsite, KnowledgeWeb:
		return KnowledgeWeb, true
	case KnowledgePDF:
		return KnowledgePDF, true
	case KnowledgeFarcaster:
		return KnowledgeFarcaster, true
	default:
		return "", false
	}
}

// KnowledgeStatus is the ingestion state of a knowledge item.
type KnowledgeStatus string

const (
	KnowledgeProcessing KnowledgeStatus = "processing"
	KnowledgeCompleted  KnowledgeStatus = "completed"
	KnowledgeError      KnowledgeStatus = "error"
)

// KnowledgeItem is one source the agent has ingested. Data is opaque to the
// dashboard and only forwarded to the content editor.
type KnowledgeItem struct {
	URL         string          `json:"url"`
	Type        KnowledgeType   `json:"type"`
	Status      KnowledgeStatus `json:"status,omitempty"`
	IsDynamic   bool            `json:"isDynamic,omitempty"`
	LastUpdated string          `json:"lastUpdated,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}
