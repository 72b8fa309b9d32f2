// Package bias computes the leave-one-out consensus score for canonical
// review tables. For each review it answers: what did everyone else, on
// average, give this submission?
package bias

import (
	"fmt"
	"math"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// Compute returns a copy of the table with the bias field populated. Rows
// are grouped by submission_id; in a group of size N >= 2 the bias of a
// review with score s is (sum - s) / (N - 1), the mean of the other N-1
// scores. Groups with a single review get a nil bias, the documented
// "insufficient data" marker, never an error. Any bias values already
// present on the input are ignored, so the transform is idempotent.
func Compute(reviews []domain.Review) ([]domain.Review, error) {
	sums := make(map[int64]float64, len(reviews))
	counts := make(map[int64]int, len(reviews))

	for _, r := range reviews {
		if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) {
			return nil, &errs.SchemaError{ReviewID: r.ReviewID, Reason: fmt.Sprintf("score %v is not finite", r.Score)}
		}

		sums[r.SubmissionID] += r.Score
		counts[r.SubmissionID]++
	}

	out := make([]domain.Review, len(reviews))
	copy(out, reviews)

	for i := range out {
		if counts[out[i].SubmissionID] < domain.MinGroupSize {
			out[i].Bias = nil
			continue
		}

		b := (sums[out[i].SubmissionID] - out[i].Score) / float64(counts[out[i].SubmissionID]-1)
		out[i].Bias = &b
	}

	return out, nil
}

// Undefined counts the rows whose bias is the nil marker.
func Undefined(reviews []domain.Review) int {
	n := 0

	for _, r := range reviews {
		if r.Bias == nil {
			n++
		}
	}

	return n
}
