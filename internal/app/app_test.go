package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
	"github.com/pcmetrics/reviewbias/internal/platform/config"
)

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()

	if cfg.ScoreFieldIDs == nil {
		cfg.ScoreFieldIDs = []int{3, 5, 6, 7}
		cfg.OverallFieldID = 5
	}

	logger := zerolog.Nop()

	return New(cfg, nil, &logger)
}

func writeInboxFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const testCSV = "#,Submission #,Member #,Member Name,Score,Timestamp\n" +
	"1,100,10,ada,4,2024-05-01T09:00\n" +
	"2,100,11,bob,6,2024-05-01T10:00\n"

func TestRunClean(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "reviews.csv")
	writeInboxFile(t, input, testCSV)

	out := filepath.Join(dir, "out", "enriched.csv")
	a := newTestApp(t, &config.Config{InputPath: input, OutputPath: out})

	if err := a.RunClean(context.Background()); err != nil {
		t.Fatalf("RunClean() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("output has %d lines, want header plus 2 rows", len(lines))
	}
}

func TestRunClean_RequiresInputPath(t *testing.T) {
	a := newTestApp(t, &config.Config{})

	if err := a.RunClean(context.Background()); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("RunClean() error = %v, want %v", err, errs.ErrInvalidInput)
	}
}

func TestRunConsume_RequiresQueueURL(t *testing.T) {
	a := newTestApp(t, &config.Config{})

	if err := a.RunConsume(context.Background()); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("RunConsume() error = %v, want %v", err, errs.ErrInvalidInput)
	}
}

func TestRunExport_RequiresDatabase(t *testing.T) {
	a := newTestApp(t, &config.Config{})

	if err := a.RunExport(context.Background()); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("RunExport() error = %v, want %v", err, errs.ErrInvalidInput)
	}
}

func TestLoadTable_UnsupportedExtension(t *testing.T) {
	a := newTestApp(t, &config.Config{})

	loader, err := a.newLoader()
	if err != nil {
		t.Fatalf("newLoader() error = %v", err)
	}

	if _, _, err = a.loadTable(loader, "input.json"); !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("loadTable() error = %v, want %v", err, errs.ErrInvalidInput)
	}
}

func TestInboxFiles(t *testing.T) {
	inbox := t.TempDir()
	writeInboxFile(t, filepath.Join(inbox, "20240502_b.csv"), "")
	writeInboxFile(t, filepath.Join(inbox, "20240501_a.xlsx"), "")
	writeInboxFile(t, filepath.Join(inbox, "notes.txt"), "")
	writeInboxFile(t, filepath.Join(inbox, ".partial.csv"), "")

	if err := os.Mkdir(filepath.Join(inbox, "done"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	a := newTestApp(t, &config.Config{InboxDir: inbox})

	files, err := a.inboxFiles()
	if err != nil {
		t.Fatalf("inboxFiles() error = %v", err)
	}

	want := []string{
		filepath.Join(inbox, "20240501_a.xlsx"),
		filepath.Join(inbox, "20240502_b.csv"),
	}

	if len(files) != len(want) {
		t.Fatalf("inboxFiles() = %v, want %v", files, want)
	}

	for i := range want {
		if files[i] != want[i] {
			t.Errorf("inboxFiles()[%d] = %q, want %q", i, files[i], want[i])
		}
	}
}

func TestArchive(t *testing.T) {
	inbox := t.TempDir()
	archive := t.TempDir()
	a := newTestApp(t, &config.Config{InboxDir: inbox, ArchiveDir: archive})

	path := filepath.Join(inbox, "reviews.csv")
	writeInboxFile(t, path, testCSV)

	if err := a.archive(path, ""); err != nil {
		t.Fatalf("archive() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(archive, "reviews.csv")); err != nil {
		t.Errorf("archived file missing: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("source file still present: %v", err)
	}

	// A second drop with the same name must not overwrite the first archive.
	writeInboxFile(t, path, testCSV)

	if err := a.archive(path, ""); err != nil {
		t.Fatalf("second archive() error = %v", err)
	}

	entries, err := os.ReadDir(archive)
	if err != nil {
		t.Fatalf("read archive dir: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("archive holds %d files, want 2", len(entries))
	}
}

func TestProcessFile_QuarantinesBadFile(t *testing.T) {
	inbox := t.TempDir()
	archive := t.TempDir()
	cfg := &config.Config{
		InboxDir:   inbox,
		ArchiveDir: archive,
		OutputPath: filepath.Join(t.TempDir(), "out.csv"),
	}
	a := newTestApp(t, cfg)

	loader, err := a.newLoader()
	if err != nil {
		t.Fatalf("newLoader() error = %v", err)
	}

	path := filepath.Join(inbox, "broken.csv")
	writeInboxFile(t, path, "#,Submission #,Member #,Score,Timestamp\n")

	if err = a.processFile(context.Background(), loader, a.newPipeline(), path); err == nil {
		t.Fatal("processFile() error = nil, want load failure")
	}

	if _, serr := os.Stat(filepath.Join(archive, "failed_broken.csv")); serr != nil {
		t.Errorf("quarantined file missing: %v", serr)
	}

	if _, serr := os.Stat(path); !os.IsNotExist(serr) {
		t.Errorf("broken file still in inbox: %v", serr)
	}
}

func TestProcessFile_ArchivesGoodFile(t *testing.T) {
	inbox := t.TempDir()
	archive := t.TempDir()
	cfg := &config.Config{
		InboxDir:   inbox,
		ArchiveDir: archive,
		OutputPath: filepath.Join(t.TempDir(), "out.csv"),
	}
	a := newTestApp(t, cfg)

	loader, err := a.newLoader()
	if err != nil {
		t.Fatalf("newLoader() error = %v", err)
	}

	path := filepath.Join(inbox, "reviews.csv")
	writeInboxFile(t, path, testCSV)

	if err = a.processFile(context.Background(), loader, a.newPipeline(), path); err != nil {
		t.Fatalf("processFile() error = %v", err)
	}

	if _, serr := os.Stat(filepath.Join(archive, "reviews.csv")); serr != nil {
		t.Errorf("archived file missing: %v", serr)
	}

	if _, serr := os.Stat(cfg.OutputPath); serr != nil {
		t.Errorf("output file missing: %v", serr)
	}
}
