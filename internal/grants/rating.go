// File: internal/grants/rating.go
package grants

import "github.com/a0x-labs/agentdeck/api/schemas"

// MaxRating is the top of the star scale.
const MaxRating = 5.0

// Rating is the 0-5 star score of a grant. Repository grants average their
// present quality sub-scores (0-1); url grants scale the relevance score
// (0-100). A repository grant with no sub-scores rates 0.
func Rating(g schemas.Grant) float64 {
	switch d := g.Details.(type) {
	case schemas.RepositoryDetails:
		scores := d.Quality.Scores()
		if len(scores) == 0 {
			return 0
		}
		var sum float64
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores)) * MaxRating
	case schemas.URLDetails:
		return d.Analysis.RelevanceScore / 100 * MaxRating
	default:
		return 0
	}
}
