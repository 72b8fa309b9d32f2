package ingest

import (
	"fmt"
	"regexp"

	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// scorePattern matches the signed integers embedded in a combined scores
// blob, in criteria order.
var scorePattern = regexp.MustCompile(`-?\d+`)

// ScoreExpander extracts the overall score from a combined per-criteria
// scores blob. The blob lists one integer per criterion in a fixed order;
// fieldIDs gives that order and overallID selects the criterion to keep.
type ScoreExpander struct {
	fieldIDs []int
	overall  int
	index    int
}

// NewScoreExpander validates that the overall criterion is one of the
// configured field ids and fixes its position in the blob.
func NewScoreExpander(fieldIDs []int, overallID int) (*ScoreExpander, error) {
	for i, id := range fieldIDs {
		if id == overallID {
			return &ScoreExpander{fieldIDs: fieldIDs, overall: overallID, index: i}, nil
		}
	}

	return nil, fmt.Errorf("overall field id %d not in score field ids %v: %w", overallID, fieldIDs, errs.ErrInvalidInput)
}

// Overall returns the integer at the overall criterion's position as a raw
// string, with ok=false when the blob carries fewer integers than the
// position requires. Extra trailing integers are ignored.
func (e *ScoreExpander) Overall(blob string) (string, bool) {
	matches := scorePattern.FindAllString(blob, e.index+1)
	if len(matches) <= e.index {
		return "", false
	}

	return matches[e.index], true
}

// Scores returns every extracted integer keyed by field id, for sources
// that want all criteria rather than just the overall one. Positions beyond
// the configured criteria are dropped.
func (e *ScoreExpander) Scores(blob string) map[int]string {
	matches := scorePattern.FindAllString(blob, len(e.fieldIDs))
	scores := make(map[int]string, len(matches))

	for i, m := range matches {
		scores[e.fieldIDs[i]] = m
	}

	return scores
}
