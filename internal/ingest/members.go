package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// membersFromRows maps a header plus data rows to member directory entries.
// A name column is required, either directly or as a first/last pair; rows
// without a name are skipped. Unparsable phd_year values become nil rather
// than errors, the directory is enrichment data.
func (l *Loader) membersFromRows(header []string, rows [][]string) ([]domain.Member, error) {
	cols, err := l.mapping.Resolve(header)
	if err != nil {
		return nil, err
	}

	if err = requireMemberColumns(cols); err != nil {
		return nil, err
	}

	members := make([]domain.Member, 0, len(rows))
	badYears := 0

	for _, row := range rows {
		fields := make(map[string]string, len(cols))

		for idx, name := range cols {
			if idx >= len(row) {
				continue
			}

			if v := strings.TrimSpace(row[idx]); v != "" {
				fields[name] = v
			}
		}

		name := fields[domain.FieldMemberName]
		if name == "" {
			name = strings.TrimSpace(fields[domain.FieldFirstName] + " " + fields[domain.FieldLastName])
		}

		if name == "" {
			continue
		}

		m := domain.Member{Name: name, Track: fields[domain.FieldTrack]}

		if raw, ok := fields[domain.FieldPhdYear]; ok {
			year, perr := strconv.Atoi(raw)
			if perr != nil {
				badYears++
			} else {
				m.PhdYear = &year
			}
		}

		members = append(members, m)
	}

	if badYears > 0 {
		l.logger.Debug().Int("rows", badYears).Msg("unparsable phd years")
	}

	return members, nil
}

func requireMemberColumns(cols map[int]string) error {
	present := make(map[string]struct{}, len(cols))
	for _, name := range cols {
		present[name] = struct{}{}
	}

	hasName := hasAny(present, domain.FieldMemberName)
	hasSplit := hasAny(present, domain.FieldFirstName) && hasAny(present, domain.FieldLastName)

	if !hasName && !hasSplit {
		return fmt.Errorf("column %s: %w", domain.FieldMemberName, errs.ErrMissingHeader)
	}

	return nil
}
