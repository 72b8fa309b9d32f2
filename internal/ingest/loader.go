package ingest

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// Table is a fully loaded raw source: mapped review records plus any member
// directory rows the source carried alongside them.
type Table struct {
	Records []domain.RawRecord
	Members []domain.Member
}

// Loader assembles canonical raw records from tabular sources. It applies
// the column mapping, expands combined score blobs, joins split date/time
// and first/last-name columns, and skips fully blank rows.
type Loader struct {
	mapping  Mapping
	expander *ScoreExpander
	logger   *zerolog.Logger
}

// NewLoader creates a Loader with the given mapping and score expander.
func NewLoader(mapping Mapping, expander *ScoreExpander, logger *zerolog.Logger) *Loader {
	return &Loader{mapping: mapping, expander: expander, logger: logger}
}

// recordsFromRows maps a header plus data rows to raw records. Rows shorter
// than the header are tolerated; rows with no mapped values at all are
// skipped. Row numbers are 1-based over the data rows.
func (l *Loader) recordsFromRows(header []string, rows [][]string) ([]domain.RawRecord, error) {
	cols, err := l.mapping.Resolve(header)
	if err != nil {
		return nil, err
	}

	if err = requireReviewColumns(cols); err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0, len(rows))
	blank := 0

	for i, row := range rows {
		rec := domain.RawRecord{Row: i + 1, Fields: make(map[string]string, len(cols))}

		for idx, name := range cols {
			if idx >= len(row) {
				continue
			}

			if v := strings.TrimSpace(row[idx]); v != "" {
				rec.Fields[name] = v
			}
		}

		if len(rec.Fields) == 0 {
			blank++
			continue
		}

		l.expand(rec)
		records = append(records, rec)
	}

	if blank > 0 {
		l.logger.Debug().Int("rows", blank).Msg("skipped blank rows")
	}

	if len(records) == 0 {
		return nil, errs.ErrNoRecords
	}

	return records, nil
}

// RecordFromMap canonicalizes a raw-header map, as delivered by streaming
// sources, into a RawRecord. Unmapped keys are dropped.
func (l *Loader) RecordFromMap(row int, raw map[string]string) domain.RawRecord {
	rec := domain.RawRecord{Row: row, Fields: make(map[string]string, len(raw))}

	for key, value := range raw {
		name, ok := l.mapping.Canonical(key)
		if !ok {
			continue
		}

		if _, claimed := rec.Fields[name]; claimed {
			continue
		}

		if v := strings.TrimSpace(value); v != "" {
			rec.Fields[name] = v
		}
	}

	l.expand(rec)

	return rec
}

// expand derives canonical fields the source carries only indirectly:
// the overall score from a combined blob, review_datetime from a split
// date/time pair, member_name from split first/last names.
func (l *Loader) expand(rec domain.RawRecord) {
	fields := rec.Fields

	if _, ok := fields[domain.FieldScore]; !ok && l.expander != nil {
		if blob, has := fields[domain.FieldScores]; has {
			if s, found := l.expander.Overall(blob); found {
				fields[domain.FieldScore] = s
			}
		}
	}

	if _, ok := fields[domain.FieldDatetime]; !ok {
		date, hasDate := fields[domain.FieldDate]
		clock, hasTime := fields[domain.FieldTime]

		if hasDate && hasTime {
			fields[domain.FieldDatetime] = date + "T" + clock
		}
	}

	if _, ok := fields[domain.FieldMemberName]; !ok {
		if name := strings.TrimSpace(fields[domain.FieldFirstName] + " " + fields[domain.FieldLastName]); name != "" {
			fields[domain.FieldMemberName] = name
		}
	}
}
