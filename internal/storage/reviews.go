package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
)

// ReplaceReviews swaps the stored canonical table for the given one inside
// a single transaction. The canonical table is a complete artifact of one
// input dataset, so partial merges across datasets are never wanted; the
// unique (member_id, submission_id) index still guards the dedup invariant
// against normalizer regressions.
func (db *DB) ReplaceReviews(ctx context.Context, runID string, reviews []domain.Review) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit returns error, this is best-effort cleanup
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM reviews`); err != nil {
		return fmt.Errorf("clear reviews: %w", err)
	}

	batch := &pgx.Batch{}

	for i := range reviews {
		r := &reviews[i]
		batch.Queue(`
			INSERT INTO reviews (
				review_id, submission_id, member_id, member_name, phd_year,
				track, score, bias, review_length, review_datetime, run_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			r.ReviewID, r.SubmissionID, r.MemberID, toText(r.MemberName), toInt4Ptr(r.PhdYear),
			toText(r.Track), r.Score, toFloat8Ptr(r.Bias), r.ReviewLength, toTimestamptz(r.ReviewDatetime), toUUID(runID),
		)
	}

	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert reviews: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetReviews returns the stored canonical table in its export order.
func (db *DB) GetReviews(ctx context.Context) ([]domain.Review, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT review_id, submission_id, member_id, member_name, phd_year,
		       track, score, bias, review_length, review_datetime
		FROM reviews
		ORDER BY member_id, submission_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	var reviews []domain.Review

	for rows.Next() {
		var (
			r               domain.Review
			name, track     pgtype.Text
			phdYear         pgtype.Int4
			biasVal         pgtype.Float8
			reviewTimestamp pgtype.Timestamptz
		)

		if err := rows.Scan(
			&r.ReviewID, &r.SubmissionID, &r.MemberID, &name, &phdYear,
			&track, &r.Score, &biasVal, &r.ReviewLength, &reviewTimestamp,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}

		r.MemberName = fromText(name)
		r.Track = fromText(track)
		r.PhdYear = fromInt4Ptr(phdYear)
		r.Bias = fromFloat8Ptr(biasVal)
		r.ReviewDatetime = reviewTimestamp.Time

		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, nil
}

// CountReviews returns the size of the stored canonical table.
func (db *DB) CountReviews(ctx context.Context) (int, error) {
	var count int

	if err := db.Pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM reviews`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}

	return count, nil
}
