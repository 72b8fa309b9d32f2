// Package export writes the enriched review table for downstream analysis.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
)

// timeLayout renders review timestamps without a zone, matching how they
// arrive from the sources.
const timeLayout = "2006-01-02T15:04:05"

// columns of the enriched table, in output order.
var columns = []string{
	"review_id",
	"submission_id",
	"member_id",
	"member_name",
	"phd_year",
	"track",
	"score",
	"bias",
	"review_length",
	"review_datetime",
}

// Writer renders enriched review tables as CSV.
type Writer struct {
	logger *zerolog.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger *zerolog.Logger) *Writer {
	return &Writer{logger: logger}
}

// WriteFile writes the table to path, creating parent directories as
// needed.
func (w *Writer) WriteFile(path string, reviews []domain.Review) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err = w.Write(f, reviews); err != nil {
		_ = f.Close()

		return fmt.Errorf("write %s: %w", path, err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	w.logger.Info().Int("rows", len(reviews)).Str("path", path).Msg("wrote enriched table")

	return nil
}

// Write renders the table. Undefined bias and missing phd_year become empty
// cells; floats use the shortest exact representation so identical tables
// render byte-identically.
func (w *Writer) Write(out io.Writer, reviews []domain.Review) error {
	cw := csv.NewWriter(out)

	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range reviews {
		if err := cw.Write(row(&reviews[i])); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	cw.Flush()

	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}

func row(r *domain.Review) []string {
	phdYear := ""
	if r.PhdYear != nil {
		phdYear = strconv.Itoa(*r.PhdYear)
	}

	biasCell := ""
	if r.Bias != nil {
		biasCell = formatFloat(*r.Bias)
	}

	return []string{
		strconv.FormatInt(r.ReviewID, 10),
		strconv.FormatInt(r.SubmissionID, 10),
		strconv.FormatInt(r.MemberID, 10),
		r.MemberName,
		phdYear,
		r.Track,
		formatFloat(r.Score),
		biasCell,
		strconv.Itoa(r.ReviewLength),
		r.ReviewDatetime.Format(timeLayout),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
