// File: internal/grants/week.go
package grants

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/a0x-labs/agentdeck/api/schemas"
)

// AllWeeks selects every grant regardless of date.
const AllWeeks = "all"

// ErrBadWeek is returned for a week selector that does not parse.
var ErrBadWeek = errors.New("invalid week selector")

// Week is a bucket of days within a calendar month: days 1-7 are week 1,
// 8-14 week 2, and so on up to week 5.
type Week struct {
	Number int
	Month  time.Month
	Year   int
}

// EffectiveTime is the grant's timestamp, or its last update when the
// timestamp is absent.
func EffectiveTime(g schemas.Grant) time.Time {
	if !g.Timestamp.IsZero() {
		return g.Timestamp.Time
	}
	return g.LastUpdated.Time
}

// WeekOf returns ceil(day/7) for t.
func WeekOf(t time.Time) int {
	return int(math.Ceil(float64(t.Day()) / 7))
}

// WeekFor buckets t, read in loc.
func WeekFor(t time.Time, loc *time.Location) Week {
	if loc != nil {
		t = t.In(loc)
	}
	return Week{Number: WeekOf(t), Month: t.Month(), Year: t.Year()}
}

// String renders the selector value the dashboard emits: week<N>-<month>-<year>
// with a zero-based month.
func (w Week) String() string {
	return fmt.Sprintf("week%d-%d-%d", w.Number, int(w.Month)-1, w.Year)
}

// Before orders weeks chronologically.
func (w Week) Before(o Week) bool {
	if w.Year != o.Year {
		return w.Year < o.Year
	}
	if w.Month != o.Month {
		return w.Month < o.Month
	}
	return w.Number < o.Number
}

// ParseWeek reads a selector. "all" (or empty) reports ok=false with no error.
func ParseWeek(s string) (w Week, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, AllWeeks) {
		return Week{}, false, nil
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 || !strings.HasPrefix(parts[0], "week") {
		return Week{}, false, fmt.Errorf("%w: %q", ErrBadWeek, s)
	}
	n, err1 := strconv.Atoi(strings.TrimPrefix(parts[0], "week"))
	m, err2 := strconv.Atoi(parts[1])
	y, err3 := strconv.Atoi(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil {
		return Week{}, false, fmt.Errorf("%w: %q: %w", ErrBadWeek, s, err)
	}
	if n < 1 || n > 5 || m < 0 || m > 11 {
		return Week{}, false, fmt.Errorf("%w: %q out of range", ErrBadWeek, s)
	}
	return Week{Number: n, Month: time.Month(m + 1), Year: y}, true, nil
}

// Weeks lists the distinct week buckets present in grants, newest first.
// Grants without any date are ignored.
func Weeks(gs []schemas.Grant, loc *time.Location) []Week {
	seen := make(map[Week]struct{})
	var out []Week
	for _, g := range gs {
		t := EffectiveTime(g)
		if t.IsZero() {
			continue
		}
		w := WeekFor(t, loc)
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Before(out[i]) })
	return out
}
