package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
)

// SaveRun records the start of a pipeline run.
func (db *DB) SaveRun(ctx context.Context, run domain.Run) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO runs (id, source, input_name, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, toUUID(run.ID), run.Source, toText(run.InputName), toTimestamptz(run.StartedAt), RunStatusRunning)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	return nil
}

// FinishRun records the outcome and counters of a completed run.
func (db *DB) FinishRun(ctx context.Context, run domain.Run) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE runs
		SET finished_at = $2,
			raw_count = $3,
			malformed_count = $4,
			duplicate_count = $5,
			canonical_count = $6,
			undefined_bias_count = $7,
			unmatched_member_count = $8,
			status = $9
		WHERE id = $1
	`, toUUID(run.ID), toTimestamptz(run.FinishedAt), run.RawCount, run.MalformedCount,
		run.DuplicateCount, run.CanonicalCount, run.UndefinedBias, run.UnmatchedMembers, run.Status)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	return nil
}

// GetLastRun returns the most recently started run, or nil when no run has
// been recorded yet.
func (db *DB) GetLastRun(ctx context.Context) (*domain.Run, error) {
	var (
		run        domain.Run
		id         pgtype.UUID
		inputName  pgtype.Text
		startedAt  pgtype.Timestamptz
		finishedAt pgtype.Timestamptz
	)

	err := db.Pool.QueryRow(ctx, `
		SELECT id, source, input_name, started_at, finished_at,
		       raw_count, malformed_count, duplicate_count, canonical_count,
		       undefined_bias_count, unmatched_member_count, status
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(
		&id, &run.Source, &inputName, &startedAt, &finishedAt,
		&run.RawCount, &run.MalformedCount, &run.DuplicateCount, &run.CanonicalCount,
		&run.UndefinedBias, &run.UnmatchedMembers, &run.Status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no run recorded yet
		}

		return nil, fmt.Errorf("get last run: %w", err)
	}

	run.ID = fromUUID(id)
	run.InputName = fromText(inputName)
	run.StartedAt = startedAt.Time
	run.FinishedAt = finishedAt.Time

	return &run, nil
}
