// Package normalize turns mapped raw records into the canonical review
// table: one review per (member_id, submission_id), required fields parsed
// and validated, auxiliary fields derived. It is a pure transform; callers
// decide what to do with the malformed-record report it produces.
package normalize

import (
	"math"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// datetimeLayout is the combined date+time format of the original workbook.
// Other timestamp shapes fall back to best-effort parsing.
const datetimeLayout = "2006-01-02T15:04"

// Log key constants for deduplication.
const (
	logKeySkippedID   = "skipped_id"
	logKeyDuplicateOf = "duplicate_of"
)

// Normalizer produces canonical review tables.
type Normalizer struct {
	caser  cases.Caser
	logger *zerolog.Logger
}

// New creates a Normalizer.
func New(logger *zerolog.Logger) *Normalizer {
	return &Normalizer{caser: cases.Fold(), logger: logger}
}

// Result contains the canonical table and everything the run dropped on the
// way there.
type Result struct {
	// Reviews is the canonical table, sorted by (member_id, submission_id).
	Reviews []domain.Review

	// DroppedCount is the number of raw records removed as duplicates.
	DroppedCount int

	// DuplicateMap maps each dropped review_id to the review_id kept as
	// canonical for the same (member_id, submission_id) pair.
	DuplicateMap map[int64]int64

	// UnmatchedMembers counts reviews whose member name found no directory
	// entry. Those reviews are kept with phd_year unset.
	UnmatchedMembers int

	// Malformed aggregates every raw record that failed field selection,
	// nil when all records parsed. Valid records are normalized regardless;
	// whether a non-nil report aborts the run is the caller's policy.
	Malformed *errs.MalformedBatchError
}

// Normalize parses, deduplicates and enriches raw records. Every record is
// examined: malformed ones are collected into Result.Malformed, the rest
// proceed. The members directory may be nil when the source is flat.
func (n *Normalizer) Normalize(records []domain.RawRecord, members []domain.Member) Result {
	result := Result{DuplicateMap: make(map[int64]int64)}

	var malformed []*errs.MalformedRecordError

	parsed := make([]domain.Review, 0, len(records))

	for _, rec := range records {
		review, perr := n.parseRecord(rec)
		if perr != nil {
			malformed = append(malformed, perr)
			continue
		}

		parsed = append(parsed, review)
	}

	if len(malformed) > 0 {
		result.Malformed = &errs.MalformedBatchError{Records: malformed}
	}

	kept := n.deduplicate(parsed, &result)
	n.joinMembers(kept, members, &result)

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].MemberID != kept[j].MemberID {
			return kept[i].MemberID < kept[j].MemberID
		}

		return kept[i].SubmissionID < kept[j].SubmissionID
	})

	result.Reviews = kept

	return result
}

// Earlier reports whether a is the canonical choice over b for the same
// (member_id, submission_id) pair: the earliest review_datetime wins,
// identical timestamps fall back to the lowest review_id. The tie-break
// keeps repeated runs byte-identical.
func Earlier(a, b domain.Review) bool {
	if !a.ReviewDatetime.Equal(b.ReviewDatetime) {
		return a.ReviewDatetime.Before(b.ReviewDatetime)
	}

	return a.ReviewID < b.ReviewID
}

type dedupKey struct {
	memberID     int64
	submissionID int64
}

// deduplicate keeps one review per (member_id, submission_id), chosen by
// Earlier. The duplicate map always points at the finally kept review, even
// when the canonical choice changes mid-pass.
func (n *Normalizer) deduplicate(reviews []domain.Review, result *Result) []domain.Review {
	kept := make([]domain.Review, 0, len(reviews))
	byKey := make(map[dedupKey]int, len(reviews))

	for _, review := range reviews {
		key := dedupKey{memberID: review.MemberID, submissionID: review.SubmissionID}

		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(kept)
			kept = append(kept, review)

			continue
		}

		result.DroppedCount++

		if Earlier(review, kept[idx]) {
			result.DuplicateMap[kept[idx].ReviewID] = review.ReviewID
			kept[idx] = review
		} else {
			result.DuplicateMap[review.ReviewID] = kept[idx].ReviewID
		}
	}

	// Collapse chains left by replaced canonicals so every dropped id maps
	// to the review that survived.
	for id, canonical := range result.DuplicateMap {
		for {
			next, ok := result.DuplicateMap[canonical]
			if !ok {
				break
			}

			canonical = next
		}

		result.DuplicateMap[id] = canonical
	}

	for id, canonical := range result.DuplicateMap {
		n.logger.Debug().
			Int64(logKeySkippedID, id).
			Int64(logKeyDuplicateOf, canonical).
			Msg("dropping duplicate review")
	}

	return kept
}

// joinMembers fills phd_year and track from the directory for reviews that
// did not carry them. Reviews without a directory match are kept and
// counted, not dropped.
func (n *Normalizer) joinMembers(reviews []domain.Review, members []domain.Member, result *Result) {
	// No directory means nothing to join against, flat sources stay as-is.
	if len(members) == 0 {
		return
	}

	index := make(map[string]domain.Member, len(members))

	for _, m := range members {
		name := n.caser.String(m.Name)
		if _, ok := index[name]; !ok {
			index[name] = m
		}
	}

	for i := range reviews {
		if reviews[i].PhdYear != nil && reviews[i].Track != "" {
			continue
		}

		m, ok := index[reviews[i].MemberName]
		if !ok {
			result.UnmatchedMembers++
			continue
		}

		if reviews[i].PhdYear == nil {
			reviews[i].PhdYear = m.PhdYear
		}

		if reviews[i].Track == "" {
			reviews[i].Track = m.Track
		}
	}
}

// parseRecord projects one raw record onto the canonical schema. The first
// required field that is missing or unparsable makes the record malformed;
// optional fields degrade to their zero values.
func (n *Normalizer) parseRecord(rec domain.RawRecord) (domain.Review, *errs.MalformedRecordError) {
	var review domain.Review

	reviewID, err := n.requireInt(rec, domain.FieldReviewID, 0)
	if err != nil {
		return review, err
	}

	review.ReviewID = reviewID

	review.SubmissionID, err = n.requireInt(rec, domain.FieldSubmissionID, reviewID)
	if err != nil {
		return review, err
	}

	review.MemberID, err = n.requireInt(rec, domain.FieldMemberID, reviewID)
	if err != nil {
		return review, err
	}

	review.Score, err = n.requireScore(rec, reviewID)
	if err != nil {
		return review, err
	}

	review.ReviewDatetime, err = n.requireDatetime(rec, reviewID)
	if err != nil {
		return review, err
	}

	if name, ok := rec.Field(domain.FieldMemberName); ok {
		review.MemberName = n.caser.String(name)
	}

	if text, ok := rec.Field(domain.FieldText); ok {
		review.ReviewLength = utf8.RuneCountInString(text)
	}

	if raw, ok := rec.Field(domain.FieldPhdYear); ok {
		if year, perr := strconv.Atoi(raw); perr == nil {
			review.PhdYear = &year
		}
	}

	if track, ok := rec.Field(domain.FieldTrack); ok {
		review.Track = track
	}

	return review, nil
}

func (n *Normalizer) requireInt(rec domain.RawRecord, field string, reviewID int64) (int64, *errs.MalformedRecordError) {
	raw, ok := rec.Field(field)
	if !ok {
		return 0, &errs.MalformedRecordError{Row: rec.Row, Field: field, ReviewID: reviewID, Reason: "missing required field"}
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &errs.MalformedRecordError{Row: rec.Row, Field: field, ReviewID: reviewID, Reason: "not an integer: " + raw}
	}

	return v, nil
}

func (n *Normalizer) requireScore(rec domain.RawRecord, reviewID int64) (float64, *errs.MalformedRecordError) {
	raw, ok := rec.Field(domain.FieldScore)
	if !ok {
		return 0, &errs.MalformedRecordError{Row: rec.Row, Field: domain.FieldScore, ReviewID: reviewID, Reason: "missing required field"}
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &errs.MalformedRecordError{Row: rec.Row, Field: domain.FieldScore, ReviewID: reviewID, Reason: "not numeric: " + raw}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &errs.MalformedRecordError{Row: rec.Row, Field: domain.FieldScore, ReviewID: reviewID, Reason: "not finite: " + raw}
	}

	return v, nil
}

func (n *Normalizer) requireDatetime(rec domain.RawRecord, reviewID int64) (time.Time, *errs.MalformedRecordError) {
	raw, ok := rec.Field(domain.FieldDatetime)
	if !ok {
		return time.Time{}, &errs.MalformedRecordError{Row: rec.Row, Field: domain.FieldDatetime, ReviewID: reviewID, Reason: "missing required field"}
	}

	if t, err := time.Parse(datetimeLayout, raw); err == nil {
		return t, nil
	}

	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return time.Time{}, &errs.MalformedRecordError{Row: rec.Row, Field: domain.FieldDatetime, ReviewID: reviewID, Reason: "unparsable timestamp: " + raw}
	}

	return t, nil
}
