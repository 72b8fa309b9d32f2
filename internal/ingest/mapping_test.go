package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

func TestDefaultMapping_Canonical(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "#", want: domain.FieldReviewID, ok: true},
		{header: "Submission #", want: domain.FieldSubmissionID, ok: true},
		{header: "MEMBER #", want: domain.FieldMemberID, ok: true},
		{header: "  member name  ", want: domain.FieldMemberName, ok: true},
		{header: "\ufeffreview_id", want: domain.FieldReviewID, ok: true},
		{header: "Overall", want: domain.FieldScore, ok: true},
		{header: "Scores", want: domain.FieldScores, ok: true},
		{header: "Year of PhD", want: domain.FieldPhdYear, ok: true},
		{header: "banana", ok: false},
	}

	m := DefaultMapping()

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := m.Canonical(tt.header)
			if ok != tt.ok {
				t.Fatalf("Canonical(%q) ok = %v, want %v", tt.header, ok, tt.ok)
			}

			if ok && got != tt.want {
				t.Errorf("Canonical(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}

func TestResolve_FirstClaimWins(t *testing.T) {
	m := DefaultMapping()

	cols, err := m.Resolve([]string{"#", "review_id", "Submission #"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := cols[0]; got != domain.FieldReviewID {
		t.Errorf("cols[0] = %q, want %q", got, domain.FieldReviewID)
	}

	if _, claimed := cols[1]; claimed {
		t.Error("cols[1] claimed review_id twice")
	}

	if got := cols[2]; got != domain.FieldSubmissionID {
		t.Errorf("cols[2] = %q, want %q", got, domain.FieldSubmissionID)
	}
}

func TestResolve_IgnoresUnknownHeaders(t *testing.T) {
	m := DefaultMapping()

	cols, err := m.Resolve([]string{"#", "internal notes", "score"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(cols) != 2 {
		t.Errorf("Resolve() mapped %d columns, want 2", len(cols))
	}
}

func writeMapping(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mapping.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write mapping: %v", err)
	}

	return path
}

func TestLoadMapping_ExplicitOverridesAlias(t *testing.T) {
	path := writeMapping(t, "columns:\n  \"#\": submission_id\n")

	m, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping() error = %v", err)
	}

	got, ok := m.Canonical("#")
	if !ok || got != domain.FieldSubmissionID {
		t.Errorf("Canonical(#) = %q/%v, want submission_id", got, ok)
	}
}

func TestLoadMapping_UnknownCanonicalTarget(t *testing.T) {
	path := writeMapping(t, "columns:\n  grade: shoe_size\n")

	_, err := LoadMapping(path)
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("LoadMapping() error = %v, want ErrInvalidInput", err)
	}
}

func TestResolve_ExplicitHeaderMustExist(t *testing.T) {
	path := writeMapping(t, "columns:\n  grade: score\n")

	m, err := LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping() error = %v", err)
	}

	_, err = m.Resolve([]string{"#", "submission #", "member #"})
	if !errors.Is(err, errs.ErrUnknownColumn) {
		t.Errorf("Resolve() error = %v, want ErrUnknownColumn", err)
	}

	cols, err := m.Resolve([]string{"#", "grade"})
	if err != nil {
		t.Fatalf("Resolve() with header present error = %v", err)
	}

	if got := cols[1]; got != domain.FieldScore {
		t.Errorf("cols[1] = %q, want score", got)
	}
}

func TestRequireReviewColumns(t *testing.T) {
	resolve := func(t *testing.T, headers []string) map[int]string {
		t.Helper()

		cols, err := DefaultMapping().Resolve(headers)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}

		return cols
	}

	tests := []struct {
		name        string
		headers     []string
		wantMissing bool
	}{
		{
			name:    "full workbook header",
			headers: []string{"#", "submission #", "member #", "member name", "date", "time", "scores", "text"},
		},
		{
			name:    "flat export with combined fields",
			headers: []string{"review_id", "submission_id", "member_id", "score", "review_datetime"},
		},
		{
			name:        "missing member id",
			headers:     []string{"#", "submission #", "score", "review_datetime"},
			wantMissing: true,
		},
		{
			name:        "no score source",
			headers:     []string{"#", "submission #", "member #", "review_datetime"},
			wantMissing: true,
		},
		{
			name:        "date without time",
			headers:     []string{"#", "submission #", "member #", "score", "date"},
			wantMissing: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := requireReviewColumns(resolve(t, tt.headers))
			if tt.wantMissing {
				if !errors.Is(err, errs.ErrMissingHeader) {
					t.Errorf("requireReviewColumns() error = %v, want ErrMissingHeader", err)
				}

				return
			}

			if err != nil {
				t.Errorf("requireReviewColumns() error = %v", err)
			}
		})
	}
}
