package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

// Sheet names of the original review workbook.
const (
	sheetReviews = "All Reviews"
	sheetMembers = "Members"
	sheetFields  = "Fields"
)

// LoadXLSX reads the review workbook: the reviews sheet is required, the
// member directory and the criteria fields sheet are picked up when present.
func (l *Loader) LoadXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil {
			l.logger.Warn().Err(cerr).Str("path", path).Msg("close workbook")
		}
	}()

	rows, err := f.GetRows(sheetReviews)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetReviews, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s: %w", sheetReviews, errs.ErrMissingHeader)
	}

	records, err := l.recordsFromRows(rows[0], rows[1:])
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", sheetReviews, err)
	}

	table := &Table{Records: records}

	if idx, _ := f.GetSheetIndex(sheetMembers); idx >= 0 {
		memberRows, merr := f.GetRows(sheetMembers)
		if merr != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetMembers, merr)
		}

		if len(memberRows) > 0 {
			table.Members, merr = l.membersFromRows(memberRows[0], memberRows[1:])
			if merr != nil {
				return nil, fmt.Errorf("sheet %s: %w", sheetMembers, merr)
			}
		}
	}

	l.checkFieldsSheet(f)

	l.logger.Debug().
		Int("reviews", len(table.Records)).
		Int("members", len(table.Members)).
		Str("path", path).
		Msg("loaded workbook")

	return table, nil
}

// checkFieldsSheet cross-checks the configured overall criterion against
// the workbook's own field definitions. Purely advisory.
func (l *Loader) checkFieldsSheet(f *excelize.File) {
	if l.expander == nil {
		return
	}

	if idx, _ := f.GetSheetIndex(sheetFields); idx < 0 {
		return
	}

	rows, err := f.GetRows(sheetFields)
	if err != nil || len(rows) == 0 {
		return
	}

	titles := fieldTitles(rows[0], rows[1:])
	if len(titles) == 0 {
		return
	}

	if title, ok := titles[l.expander.overall]; ok {
		l.logger.Debug().Int("field_id", l.expander.overall).Str("title", title).Msg("overall criterion")
	} else {
		l.logger.Warn().Int("field_id", l.expander.overall).Msg("overall field id not defined in fields sheet")
	}
}

// fieldTitles parses the criteria sheet into field id → title. The first
// definition of an id wins, later duplicates are ignored.
func fieldTitles(header []string, rows [][]string) map[int]string {
	idCol, titleCol := -1, -1

	for i, h := range header {
		switch normalizeHeader(h) {
		case "field #", "field_id":
			if idCol < 0 {
				idCol = i
			}
		case "field title", "field_name":
			if titleCol < 0 {
				titleCol = i
			}
		}
	}

	if idCol < 0 || titleCol < 0 {
		return nil
	}

	titles := make(map[int]string, len(rows))

	for _, row := range rows {
		if idCol >= len(row) || titleCol >= len(row) {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(row[idCol]))
		if err != nil {
			continue
		}

		if _, ok := titles[id]; !ok {
			titles[id] = strings.TrimSpace(row[titleCol])
		}
	}

	return titles
}
