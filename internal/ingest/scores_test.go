package ingest

import (
	"errors"
	"testing"

	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
)

func TestNewScoreExpander_OverallMustBeConfigured(t *testing.T) {
	if _, err := NewScoreExpander([]int{3, 5, 6, 7}, 4); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("NewScoreExpander() error = %v, want ErrInvalidInput", err)
	}
}

func TestScoreExpander_Overall(t *testing.T) {
	// Overall criterion 5 sits at position 1 of the blob.
	e, err := NewScoreExpander([]int{3, 5, 6, 7}, 5)
	if err != nil {
		t.Fatalf("NewScoreExpander() error = %v", err)
	}

	tests := []struct {
		name string
		blob string
		want string
		ok   bool
	}{
		{name: "space separated", blob: "7 5 6 8", want: "5", ok: true},
		{name: "comma separated", blob: "7,9,6,8", want: "9", ok: true},
		{name: "labelled", blob: "relevance: 7, overall: 4", want: "4", ok: true},
		{name: "negative scores", blob: "-1 -2 -3 -4", want: "-2", ok: true},
		{name: "extra integers ignored", blob: "7 5 6 8 9 10", want: "5", ok: true},
		{name: "too short", blob: "7", ok: false},
		{name: "no integers", blob: "pending", ok: false},
		{name: "empty", blob: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Overall(tt.blob)
			if ok != tt.ok {
				t.Fatalf("Overall(%q) ok = %v, want %v", tt.blob, ok, tt.ok)
			}

			if ok && got != tt.want {
				t.Errorf("Overall(%q) = %q, want %q", tt.blob, got, tt.want)
			}
		})
	}
}

func TestScoreExpander_FirstPositionOverall(t *testing.T) {
	e, err := NewScoreExpander([]int{5, 6}, 5)
	if err != nil {
		t.Fatalf("NewScoreExpander() error = %v", err)
	}

	got, ok := e.Overall("8 2")
	if !ok || got != "8" {
		t.Errorf("Overall() = %q/%v, want 8", got, ok)
	}
}

func TestScoreExpander_Scores(t *testing.T) {
	e, err := NewScoreExpander([]int{3, 5, 6, 7}, 5)
	if err != nil {
		t.Fatalf("NewScoreExpander() error = %v", err)
	}

	tests := []struct {
		name string
		blob string
		want map[int]string
	}{
		{
			name: "full blob",
			blob: "7 5 6 8",
			want: map[int]string{3: "7", 5: "5", 6: "6", 7: "8"},
		},
		{
			name: "short blob keeps leading positions",
			blob: "7 5",
			want: map[int]string{3: "7", 5: "5"},
		},
		{
			name: "extra integers dropped",
			blob: "1 2 3 4 5",
			want: map[int]string{3: "1", 5: "2", 6: "3", 7: "4"},
		},
		{
			name: "empty",
			blob: "",
			want: map[int]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Scores(tt.blob)
			if len(got) != len(tt.want) {
				t.Fatalf("Scores(%q) len = %d, want %d", tt.blob, len(got), len(tt.want))
			}

			for id, want := range tt.want {
				if got[id] != want {
					t.Errorf("Scores(%q)[%d] = %q, want %q", tt.blob, id, got[id], want)
				}
			}
		})
	}
}
