// Package ingest loads raw review tables from delimited files, spreadsheet
// workbooks and message queues, and maps their columns onto the canonical
// field names the normalizer understands. The core packages never see raw
// headers.
package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// Mapping translates raw source headers into canonical column names.
// Builtin aliases cover the original review workbook and common flat
// exports; a mapping file overlays explicit entries which must all resolve
// against the source header.
type Mapping struct {
	aliases  map[string]string
	explicit map[string]string
}

// mappingFile is the on-disk YAML shape: raw header → canonical column name.
type mappingFile struct {
	Columns map[string]string `yaml:"columns"`
}

// canonicalColumns is the set of names a mapping file may target.
var canonicalColumns = map[string]struct{}{
	domain.FieldReviewID:     {},
	domain.FieldSubmissionID: {},
	domain.FieldMemberID:     {},
	domain.FieldMemberName:   {},
	domain.FieldFirstName:    {},
	domain.FieldLastName:     {},
	domain.FieldScore:        {},
	domain.FieldScores:       {},
	domain.FieldText:         {},
	domain.FieldDate:         {},
	domain.FieldTime:         {},
	domain.FieldDatetime:     {},
	domain.FieldPhdYear:      {},
	domain.FieldTrack:        {},
}

// DefaultMapping returns the builtin alias table. Keys are matched after
// lowercasing and whitespace trimming, so "Member Name" and "member name"
// resolve identically.
func DefaultMapping() Mapping {
	return Mapping{aliases: map[string]string{
		"#":               domain.FieldReviewID,
		"review #":        domain.FieldReviewID,
		"review_id":       domain.FieldReviewID,
		"submission #":    domain.FieldSubmissionID,
		"submission_id":   domain.FieldSubmissionID,
		"member #":        domain.FieldMemberID,
		"member_id":       domain.FieldMemberID,
		"member name":     domain.FieldMemberName,
		"member_name":     domain.FieldMemberName,
		"name":            domain.FieldMemberName,
		"first name":      domain.FieldFirstName,
		"first_name":      domain.FieldFirstName,
		"last name":       domain.FieldLastName,
		"last_name":       domain.FieldLastName,
		"overall":         domain.FieldScore,
		"score":           domain.FieldScore,
		"scores":          domain.FieldScores,
		"text":            domain.FieldText,
		"review":          domain.FieldText,
		"date":            domain.FieldDate,
		"time":            domain.FieldTime,
		"datetime":        domain.FieldDatetime,
		"timestamp":       domain.FieldDatetime,
		"review_datetime": domain.FieldDatetime,
		"year of phd":     domain.FieldPhdYear,
		"phd year":        domain.FieldPhdYear,
		"phd_year":        domain.FieldPhdYear,
		"track":           domain.FieldTrack,
	}}
}

// LoadMapping reads a YAML mapping file and overlays its entries on the
// builtin aliases. Explicit entries are strict: every raw header they name
// must exist in the source, unlike builtin aliases which are best effort.
func LoadMapping(path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("read mapping %s: %w", path, err)
	}

	var file mappingFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return Mapping{}, fmt.Errorf("decode mapping %s: %w", path, err)
	}

	m := DefaultMapping()
	m.explicit = make(map[string]string, len(file.Columns))

	for raw, canonical := range file.Columns {
		if _, ok := canonicalColumns[canonical]; !ok {
			return Mapping{}, fmt.Errorf("mapping %s: header %q targets unknown canonical column %q: %w", path, raw, canonical, errs.ErrInvalidInput)
		}

		m.explicit[normalizeHeader(raw)] = canonical
	}

	return m, nil
}

// Canonical resolves a single raw header, explicit entries first.
func (m Mapping) Canonical(header string) (string, bool) {
	key := normalizeHeader(header)

	if name, ok := m.explicit[key]; ok {
		return name, true
	}

	name, ok := m.aliases[key]

	return name, ok
}

// Resolve maps a header row to column index → canonical name. Headers with
// no mapping are ignored; the first header claiming a canonical name wins.
// Explicit mapping entries that match no header yield ErrUnknownColumn.
func (m Mapping) Resolve(headers []string) (map[int]string, error) {
	cols := make(map[int]string, len(headers))
	claimed := make(map[string]struct{}, len(headers))
	seen := make(map[string]struct{}, len(headers))

	for i, h := range headers {
		key := normalizeHeader(h)
		seen[key] = struct{}{}

		name, ok := m.Canonical(h)
		if !ok {
			continue
		}

		if _, dup := claimed[name]; dup {
			continue
		}

		claimed[name] = struct{}{}
		cols[i] = name
	}

	for raw := range m.explicit {
		if _, ok := seen[raw]; !ok {
			return nil, fmt.Errorf("mapping header %q: %w", raw, errs.ErrUnknownColumn)
		}
	}

	return cols, nil
}

// requireReviewColumns verifies a resolved header can produce the canonical
// schema: the three identifiers, a score source and a timestamp source.
func requireReviewColumns(cols map[int]string) error {
	present := make(map[string]struct{}, len(cols))
	for _, name := range cols {
		present[name] = struct{}{}
	}

	var missing []string

	for _, name := range []string{domain.FieldReviewID, domain.FieldSubmissionID, domain.FieldMemberID} {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}

	if !hasAny(present, domain.FieldScore, domain.FieldScores) {
		missing = append(missing, domain.FieldScore)
	}

	hasDatetime := hasAny(present, domain.FieldDatetime)
	hasDatePair := hasAny(present, domain.FieldDate) && hasAny(present, domain.FieldTime)

	if !hasDatetime && !hasDatePair {
		missing = append(missing, domain.FieldDatetime)
	}

	if len(missing) > 0 {
		return fmt.Errorf("columns %s: %w", strings.Join(missing, ", "), errs.ErrMissingHeader)
	}

	return nil
}

func hasAny(present map[string]struct{}, names ...string) bool {
	for _, name := range names {
		if _, ok := present[name]; ok {
			return true
		}
	}

	return false
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}
