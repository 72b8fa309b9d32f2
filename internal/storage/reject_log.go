package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RejectEntry is one raw record the pipeline refused or dropped, kept so
// source data can be located and fixed.
type RejectEntry struct {
	SourceRow int
	ReviewID  int64
	Reason    string
	Detail    string
}

// RejectReasonStat aggregates reject log entries by reason.
type RejectReasonStat struct {
	Reason string
	Count  int
}

// Reject log reason constants.
const (
	RejectReasonMalformed = "malformed"
	RejectReasonDuplicate = "duplicate"
)

// SaveRejectLog records every rejected record of a run.
func (db *DB) SaveRejectLog(ctx context.Context, runID string, entries []RejectEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	for _, e := range entries {
		batch.Queue(`
			INSERT INTO reject_log (run_id, source_row, review_id, reason, detail)
			VALUES ($1, $2, $3, $4, $5)
		`, toUUID(runID), e.SourceRow, toInt8Ptr(e.ReviewID), e.Reason, toText(e.Detail))
	}

	if err := db.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save reject log: %w", err)
	}

	return nil
}

// GetRejectReasonStats aggregates a run's rejects by reason, most frequent
// first.
func (db *DB) GetRejectReasonStats(ctx context.Context, runID string) ([]RejectReasonStat, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT reason, COUNT(*)::int
		FROM reject_log
		WHERE run_id = $1
		GROUP BY reason
		ORDER BY COUNT(*) DESC
	`, toUUID(runID))
	if err != nil {
		return nil, fmt.Errorf("query reject reason stats: %w", err)
	}
	defer rows.Close()

	var stats []RejectReasonStat

	for rows.Next() {
		var entry RejectReasonStat
		if err := rows.Scan(&entry.Reason, &entry.Count); err != nil {
			return nil, fmt.Errorf("scan reject reason stat row: %w", err)
		}

		stats = append(stats, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reject reason stat rows: %w", err)
	}

	return stats, nil
}
