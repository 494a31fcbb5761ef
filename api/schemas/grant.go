// File: api/schemas/grant.go
package schemas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrUnknownGrantKind is returned when a grant record matches neither the
// repository nor the url shape.
var ErrUnknownGrantKind = errors.New("grant record is neither a repository nor a url analysis")

// GrantStatus is the review state of a grant.
type GrantStatus string

const (
	GrantPending  GrantStatus = "pending"
	GrantApproved GrantStatus = "approved"
	GrantDenied   GrantStatus = "denied"
	GrantPaid     GrantStatus = "paid"
)

// Valid reports whether s is one of the four known states.
func (s GrantStatus) Valid() bool {
	switch s {
	case GrantPending, GrantApproved, GrantDenied, GrantPaid:
		return true
	}
	return false
}

// GrantKind names the variant carried in a Grant's details.
type GrantKind string

const (
	GrantRepository GrantKind = "repository"
	GrantURL        GrantKind = "url"
)

// GrantDetails is the closed set of grant variants. Only RepositoryDetails and
// URLDetails implement it.
type GrantDetails interface {
	Kind() GrantKind
	grantDetails()
}

// Grant is one grant application under review. The common fields are shared
// by both variants; everything variant-specific lives in Details.
type Grant struct {
	ID                string
	Status            GrantStatus
	GrantAmountInUSDC float64
	Timestamp         Timestamp
	LastUpdated       Timestamp
	WalletAddress     string
	WalletAddresses   []string
	Details           GrantDetails
}

// Kind is the variant of the grant's details.
func (g Grant) Kind() GrantKind {
	if g.Details == nil {
		return ""
	}
	return g.Details.Kind()
}

// QualityScore is one 0–1 sub-score of a repository analysis.
type QualityScore struct {
	Score *float64 `json:"score,omitempty"`
}

// RepositoryQuality holds the six optional quality sub-scores.
type RepositoryQuality struct {
	Web3Score            *QualityScore `json:"web3Score,omitempty"`
	ActivityScore        *QualityScore `json:"activityScore,omitempty"`
	DocumentationQuality *QualityScore `json:"documentationQuality,omitempty"`
	CodeQuality          *QualityScore `json:"codeQuality,omitempty"`
	SecurityScore        *QualityScore `json:"securityScore,omitempty"`
	ArchitectureScore    *QualityScore `json:"architectureScore,omitempty"`
}

// Scores returns the sub-scores that are present, in a fixed order.
func (q RepositoryQuality) Scores() []float64 {
	out := make([]float64, 0, 6)
	for _, s := range []*QualityScore{
		q.Web3Score, q.ActivityScore, q.DocumentationQuality,
		q.CodeQuality, q.SecurityScore, q.ArchitectureScore,
	} {
		if s != nil && s.Score != nil {
			out = append(out, *s.Score)
		}
	}
	return out
}

// Contributor is one of a repository's top contributors.
type Contributor struct {
	Login         string `json:"login"`
	Contributions int    `json:"contributions"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
}

// RepositoryDetails is a grant backed by a GitHub repository analysis.
type RepositoryDetails struct {
	ProjectName             string            `json:"projectName"`
	FullName                string            `json:"fullName,omitempty"`
	Description             string            `json:"description,omitempty"`
	DescriptionFromAnalysis string            `json:"descriptionFromAnalysis,omitempty"`
	CreatedAt               string            `json:"createdAt,omitempty"`
	Quality                 RepositoryQuality `json:"quality"`
	TopContributors         []Contributor     `json:"topContributors,omitempty"`
	UserMessage             string            `json:"userMessage,omitempty"`
}

func (RepositoryDetails) Kind() GrantKind { return GrantRepository }
func (RepositoryDetails) grantDetails()   {}

// URLAnalysis is the AI review of a submitted page.
type URLAnalysis struct {
	RelevanceScore     float64  `json:"relevanceScore"`
	Summary            string   `json:"summary,omitempty"`
	KeyTakeaways       []string `json:"keyTakeaways,omitempty"`
	TargetAudience     string   `json:"targetAudience,omitempty"`
	ValueProposition   string   `json:"valueProposition,omitempty"`
	CTAEffectiveness   string   `json:"ctaEffectiveness,omitempty"`
	Feedback           string   `json:"feedback,omitempty"`
	PersuasionElements []string `json:"persuasionElements,omitempty"`
}

// VideoAnalysis is the optional review of a demo video linked from the page.
type VideoAnalysis struct {
	Source   string          `json:"source,omitempty"`
	Error    string          `json:"error,omitempty"`
	Analysis json.RawMessage `json:"analysis,omitempty"`
}

// URLDetails is a grant backed by a URL analysis.
type URLDetails struct {
	URL           string         `json:"url"`
	ProjectName   string         `json:"projectName,omitempty"`
	Analysis      URLAnalysis    `json:"analysis"`
	ScreenshotURL string         `json:"screenshotUrl,omitempty"`
	Video         *VideoAnalysis `json:"videoAnalysis,omitempty"`
}

func (URLDetails) Kind() GrantKind { return GrantURL }
func (URLDetails) grantDetails()   {}

// -- Wire format --

// grantCommon is the part of the upstream record shared by both variants.
type grantCommon struct {
	ID                string      `json:"id"`
	Status            GrantStatus `json:"status"`
	GrantAmountInUSDC float64     `json:"grantAmountInUSDC"`
	Timestamp         Timestamp   `json:"timestamp"`
	LastUpdated       Timestamp   `json:"lastUpdated"`
	WalletAddress     string      `json:"walletAddress,omitempty"`
	WalletAddresses   []string    `json:"walletAddresses,omitempty"`
}

type repositoryWire struct {
	ProjectName string `json:"projectName"`
	Metrics     struct {
		Repository *struct {
			FullName                string            `json:"fullName"`
			Description             string            `json:"description"`
			DescriptionFromAnalysis string            `json:"descriptionFromAnalysis"`
			CreatedAt               string            `json:"createdAt"`
			Quality                 RepositoryQuality `json:"quality"`
			Contributors            struct {
				TopContributors []Contributor `json:"topContributors"`
			} `json:"contributors"`
		} `json:"repository"`
	} `json:"metrics"`
	Request struct {
		UserMessage string `json:"userMessage"`
	} `json:"request"`
}

type urlWire struct {
	URL         string `json:"url"`
	ProjectName string `json:"projectName"`
	URLAnalysis struct {
		Analysis      URLAnalysis `json:"analysis"`
		ScreenshotURL string      `json:"screenshotUrl"`
	} `json:"urlAnalysis"`
	VideoAnalysis *VideoAnalysis `json:"videoAnalysis"`
}

// HasRepositoryMetrics reports whether a raw githubMetrics entry carries a
// repository analysis. Entries without one are not grants.
func HasRepositoryMetrics(raw json.RawMessage) bool {
	var probe struct {
		Metrics *struct {
			Repository json.RawMessage `json:"repository"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Metrics != nil && len(probe.Metrics.Repository) > 0 && string(probe.Metrics.Repository) != "null"
}

// DecodeGrant decides the variant of an upstream grant record and decodes it.
// A record with a "metrics" key is a repository grant; otherwise a record with
// a "urlAnalysis" key is a url grant.
func DecodeGrant(raw []byte) (Grant, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return Grant{}, fmt.Errorf("failed to decode grant: %w", err)
	}

	var common grantCommon
	if err := json.Unmarshal(raw, &common); err != nil {
		return Grant{}, fmt.Errorf("failed to decode grant %q: %w", keys["id"], err)
	}
	g := Grant{
		ID:                common.ID,
		Status:            common.Status,
		GrantAmountInUSDC: common.GrantAmountInUSDC,
		Timestamp:         common.Timestamp,
		LastUpdated:       common.LastUpdated,
		WalletAddress:     common.WalletAddress,
		WalletAddresses:   common.WalletAddresses,
	}
	if g.Status == "" {
		g.Status = GrantPending
	}

	if _, ok := keys["metrics"]; ok {
		var w repositoryWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Grant{}, fmt.Errorf("failed to decode repository grant %s: %w", g.ID, err)
		}
		d := RepositoryDetails{ProjectName: w.ProjectName, UserMessage: w.Request.UserMessage}
		if r := w.Metrics.Repository; r != nil {
			d.FullName = r.FullName
			d.Description = r.Description
			d.DescriptionFromAnalysis = r.DescriptionFromAnalysis
			d.CreatedAt = r.CreatedAt
			d.Quality = r.Quality
			d.TopContributors = r.Contributors.TopContributors
		}
		g.Details = d
		return g, nil
	}

	if _, ok := keys["urlAnalysis"]; ok {
		var w urlWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return Grant{}, fmt.Errorf("failed to decode url grant %s: %w", g.ID, err)
		}
		g.Details = URLDetails{
			URL:           w.URL,
			ProjectName:   w.ProjectName,
			Analysis:      w.URLAnalysis.Analysis,
			ScreenshotURL: w.URLAnalysis.ScreenshotURL,
			Video:         w.VideoAnalysis,
		}
		return g, nil
	}

	return Grant{}, fmt.Errorf("grant %s: %w", g.ID, ErrUnknownGrantKind)
}

// grantView is the dashboard-facing encoding of a Grant.
type grantView struct {
	ID                string             `json:"id"`
	Kind              GrantKind          `json:"kind"`
	Status            GrantStatus        `json:"status"`
	GrantAmountInUSDC float64            `json:"grantAmountInUSDC"`
	Timestamp         Timestamp          `json:"timestamp"`
	LastUpdated       Timestamp          `json:"lastUpdated"`
	WalletAddress     string             `json:"walletAddress,omitempty"`
	WalletAddresses   []string           `json:"walletAddresses,omitempty"`
	Repository        *RepositoryDetails `json:"repository,omitempty"`
	URL               *URLDetails        `json:"url,omitempty"`
}

// MarshalJSON flattens the variant into a tagged object for the dashboard.
func (g Grant) MarshalJSON() ([]byte, error) {
	v := grantView{
		ID:                g.ID,
		Kind:              g.Kind(),
		Status:            g.Status,
		GrantAmountInUSDC: g.GrantAmountInUSDC,
		Timestamp:         g.Timestamp,
		LastUpdated:       g.LastUpdated,
		WalletAddress:     g.WalletAddress,
		WalletAddresses:   g.WalletAddresses,
	}
	switch d := g.Details.(type) {
	case RepositoryDetails:
		v.Repository = &d
	case URLDetails:
		v.URL = &d
	}
	return json.Marshal(v)
}

// Timestamp is an instant that upstream encodes either as an ISO-8601 string
// or as epoch milliseconds. The zero value means "absent".
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts RFC 3339 strings, epoch milliseconds, empty strings and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(trimmed), 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", trimmed, err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// MarshalJSON writes RFC 3339, or null when absent.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// GrantEvent records one accepted grant mutation.
type GrantEvent struct {
	AgentID string      `json:"agentId"`
	GrantID string      `json:"grantId"`
	Op      string      `json:"op"`
	Status  GrantStatus `json:"status"`
	Amount  float64     `json:"amount"`
	At      time.Time   `json:"at"`
}
