// File: internal/grants/filter.go
package grants

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// TypeFilter narrows grants by variant. The empty value means all.
type TypeFilter string

const (
	TypeAll        TypeFilter = "all"
	TypeRepository TypeFilter = TypeFilter(schemas.GrantRepository)
	TypeURL        TypeFilter = TypeFilter(schemas.GrantURL)
)

// StatusAll disables status filtering.
const StatusAll schemas.GrantStatus = "all"

// Filter is the workbench's selection: a week bucket, a variant and a status.
type Filter struct {
	Week   string
	Type   TypeFilter
	Status schemas.GrantStatus
}

// ParseFilter validates raw query values. Empty values mean "all".
func ParseFilter(week, kind, status string) (Filter, error) {
	f := Filter{
		Week:   strings.TrimSpace(week),
		Type:   TypeFilter(strings.ToLower(strings.TrimSpace(kind))),
		Status: schemas.GrantStatus(strings.ToLower(strings.TrimSpace(status))),
	}
	if _, _, err := ParseWeek(f.Week); err != nil {
		return Filter{}, err
	}
	switch f.Type {
	case "", TypeAll, TypeRepository, TypeURL:
	default:
		return Filter{}, fmt.Errorf("unknown grant type %q", kind)
	}
	if f.Status != "" && f.Status != StatusAll && !f.Status.Valid() {
		return Filter{}, fmt.Errorf("unknown grant status %q", status)
	}
	return f, nil
}

// Apply returns the grants matching f, newest first by effective time.
// Week buckets are computed in loc.
func Apply(gs []schemas.Grant, f Filter, loc *time.Location) ([]schemas.Grant, error) {
	week, byWeek, err := ParseWeek(f.Week)
	if err != nil {
		return nil, err
	}

	out := make([]schemas.Grant, 0, len(gs))
	for _, g := range gs {
		if f.Status != "" && f.Status != StatusAll && g.Status != f.Status {
			continue
		}
		if f.Type != "" && f.Type != TypeAll && TypeFilter(g.Kind()) != f.Type {
			continue
		}
		if byWeek {
			t := EffectiveTime(g)
			if t.IsZero() || WeekFor(t, loc) != week {
				continue
			}
		}
		out = append(out, g)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return EffectiveTime(out[i]).After(EffectiveTime(out[j]))
	})
	return out, nil
}
