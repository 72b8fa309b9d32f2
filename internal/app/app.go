// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Clean mode: one-shot ingest of a local CSV or XLSX export
//   - Worker mode: long-running inbox watcher that processes dropped files
//   - Consume mode: AMQP consumer that ingests one streamed batch
//   - Export mode: re-export of the canonical table from Postgres
//
// Each mode can be run independently based on deployment needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
	"github.com/pcmetrics/reviewbias/internal/export"
	"github.com/pcmetrics/reviewbias/internal/ingest"
	"github.com/pcmetrics/reviewbias/internal/normalize"
	"github.com/pcmetrics/reviewbias/internal/platform/config"
	"github.com/pcmetrics/reviewbias/internal/platform/observability"
	"github.com/pcmetrics/reviewbias/internal/platform/worker"
	"github.com/pcmetrics/reviewbias/internal/process/pipeline"
	db "github.com/pcmetrics/reviewbias/internal/storage"
)

const (
	logFieldFile = "file"

	inboxWorkerName       = "inbox"
	backlogGaugeInterval  = 30 * time.Second
	quarantinePrefix      = "failed_"
	archiveTimestampStamp = "20060102T150405"
)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies. database may be
// nil when POSTGRES_DSN is not configured.
func New(cfg *config.Config, database *db.DB, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		logger:   logger,
	}
}

// StartHealthServer starts the health check and metrics server.
func (a *App) StartHealthServer(ctx context.Context) error {
	srv := observability.NewServer(a.database, a.cfg.HealthPort, a.logger)

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("health server start: %w", err)
	}

	return nil
}

// RunClean runs the clean mode: one file in, one enriched table out.
func (a *App) RunClean(ctx context.Context) error {
	a.logger.Info().Str(logFieldFile, a.cfg.InputPath).Msg("Starting clean mode")

	if a.cfg.InputPath == "" {
		return fmt.Errorf("INPUT_PATH is required in clean mode: %w", errs.ErrInvalidInput)
	}

	loader, err := a.newLoader()
	if err != nil {
		return err
	}

	table, source, err := a.loadTable(loader, a.cfg.InputPath)
	if err != nil {
		return err
	}

	if _, err = a.newPipeline().Run(ctx, source, filepath.Base(a.cfg.InputPath), table); err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	return nil
}

// RunWorker runs the worker mode: watch the inbox directory and process every
// dropped file through the pipeline.
func (a *App) RunWorker(ctx context.Context) error {
	a.logger.Info().Str("inbox", a.cfg.InboxDir).Dur("poll", a.cfg.WorkerPollInterval).Msg("Starting worker mode")

	if err := os.MkdirAll(a.cfg.InboxDir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}

	if err := os.MkdirAll(a.cfg.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}

	loader, err := a.newLoader()
	if err != nil {
		return err
	}

	p := a.newPipeline()
	a.seedRunMetrics(ctx)

	err = worker.Loop(ctx, worker.Config{
		Name:         inboxWorkerName,
		PollInterval: a.cfg.WorkerPollInterval,
		Process: func(ctx context.Context) error {
			return a.processInbox(ctx, loader, p)
		},
		PeriodicTasks: []worker.PeriodicTask{{
			Name:     "inbox_backlog",
			Interval: backlogGaugeInterval,
			Run:      a.updateInboxBacklog,
		}},
		Logger: a.logger,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker loop: %w", err)
	}

	return nil
}

// RunConsume runs the consume mode: drain one streamed batch from the AMQP
// queue and run it through the pipeline.
func (a *App) RunConsume(ctx context.Context) error {
	a.logger.Info().Str("queue", a.cfg.AMQPQueue).Msg("Starting consume mode")

	if !a.cfg.AMQPEnabled() {
		return fmt.Errorf("AMQP_URL is required in consume mode: %w", errs.ErrInvalidInput)
	}

	a.seedRunMetrics(ctx)

	loader, err := a.newLoader()
	if err != nil {
		return err
	}

	consumer, err := ingest.NewConsumer(a.cfg.AMQPURL, a.cfg.AMQPQueue, a.cfg.AMQPPrefetch, loader, a.logger)
	if err != nil {
		return fmt.Errorf("amqp connect: %w", err)
	}

	defer func() {
		if cerr := consumer.Close(); cerr != nil {
			a.logger.Warn().Err(cerr).Msg("amqp close failed")
		}
	}()

	table, err := consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("consume batch: %w", err)
	}

	if err = a.attachMembers(loader, table); err != nil {
		return err
	}

	if _, err = a.newPipeline().Run(ctx, domain.SourceAMQP, a.cfg.AMQPQueue, table); err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	return nil
}

// RunExport runs the export mode: rewrite the CSV artifact from the canonical
// table without re-ingesting any source.
func (a *App) RunExport(ctx context.Context) error {
	a.logger.Info().Str(logFieldFile, a.cfg.OutputPath).Msg("Starting export mode")

	if a.database == nil {
		return fmt.Errorf("POSTGRES_DSN is required in export mode: %w", errs.ErrInvalidInput)
	}

	if err := a.newPipeline().Export(ctx, a.cfg.OutputPath); err != nil {
		return fmt.Errorf("export run: %w", err)
	}

	return nil
}

// seedRunMetrics restores the last-run gauge from storage after a restart and
// logs where the canonical table stands before any new work.
func (a *App) seedRunMetrics(ctx context.Context) {
	if a.database == nil {
		return
	}

	run, err := a.database.GetLastRun(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("could not read last run")
		return
	}

	if run == nil {
		a.logger.Info().Msg("no runs recorded yet")
		return
	}

	if !run.FinishedAt.IsZero() {
		observability.LastRunUnixtime.Set(float64(run.FinishedAt.Unix()))
	}

	count, err := a.database.CountReviews(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("could not count stored reviews")
	}

	event := a.logger.Info().
		Str("run_id", run.ID).
		Str("status", run.Status).
		Time("finished_at", run.FinishedAt).
		Int("stored_reviews", count)

	if stats, serr := a.database.GetRejectReasonStats(ctx, run.ID); serr == nil {
		for _, stat := range stats {
			event = event.Int("rejected_"+stat.Reason, stat.Count)
		}
	}

	event.Msg("last recorded run")
}

func (a *App) newPipeline() *pipeline.Pipeline {
	// Keep a nil *db.DB out of the interface field so the pipeline's nil
	// check holds.
	var repo pipeline.Repository
	if a.database != nil {
		repo = a.database
	}

	return pipeline.New(a.cfg, repo, normalize.New(a.logger), export.NewWriter(a.logger), a.logger)
}

func (a *App) newLoader() (*ingest.Loader, error) {
	mapping := ingest.DefaultMapping()

	if a.cfg.MappingPath != "" {
		m, err := ingest.LoadMapping(a.cfg.MappingPath)
		if err != nil {
			return nil, fmt.Errorf("load column mapping: %w", err)
		}

		mapping = m
	}

	expander, err := ingest.NewScoreExpander(a.cfg.ScoreFieldIDs, a.cfg.OverallFieldID)
	if err != nil {
		return nil, fmt.Errorf("score expander: %w", err)
	}

	return ingest.NewLoader(mapping, expander, a.logger), nil
}

// loadTable reads one input file, dispatching on extension. CSV inputs carry
// no member sheet, so the separate members file is attached when configured.
func (a *App) loadTable(loader *ingest.Loader, path string) (*ingest.Table, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		table, err := loader.LoadXLSX(path)
		if err != nil {
			return nil, "", fmt.Errorf("load xlsx: %w", err)
		}

		return table, domain.SourceXLSX, nil
	case ".csv":
		table, err := loader.LoadCSV(path)
		if err != nil {
			return nil, "", fmt.Errorf("load csv: %w", err)
		}

		if err = a.attachMembers(loader, table); err != nil {
			return nil, "", err
		}

		return table, domain.SourceCSV, nil
	default:
		return nil, "", fmt.Errorf("unsupported input extension %q: %w", filepath.Ext(path), errs.ErrInvalidInput)
	}
}

func (a *App) attachMembers(loader *ingest.Loader, table *ingest.Table) error {
	if a.cfg.MembersPath == "" || len(table.Members) > 0 {
		return nil
	}

	members, err := loader.LoadMembersCSV(a.cfg.MembersPath)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}

	table.Members = members

	return nil
}

func (a *App) processInbox(ctx context.Context, loader *ingest.Loader, p *pipeline.Pipeline) error {
	files, err := a.inboxFiles()
	if err != nil {
		return err
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return nil
		}

		if err := a.processFile(ctx, loader, p, path); err != nil {
			a.logger.Error().Err(err).Str(logFieldFile, path).Msg("inbox file failed")
		}
	}

	return nil
}

// processFile runs one inbox file through the pipeline. The file is archived
// on success and quarantined under the archive dir on failure, so a broken
// file cannot wedge the inbox. Cancellation leaves the file in place.
func (a *App) processFile(ctx context.Context, loader *ingest.Loader, p *pipeline.Pipeline, path string) error {
	table, source, err := a.loadTable(loader, path)
	if err == nil {
		_, err = p.Run(ctx, source, filepath.Base(path), table)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if mvErr := a.archive(path, quarantinePrefix); mvErr != nil {
			a.logger.Error().Err(mvErr).Str(logFieldFile, path).Msg("failed to quarantine inbox file")
		}

		return err
	}

	return a.archive(path, "")
}

func (a *App) archive(path, prefix string) error {
	dest := filepath.Join(a.cfg.ArchiveDir, prefix+filepath.Base(path))

	if _, err := os.Stat(dest); err == nil {
		stamp := time.Now().UTC().Format(archiveTimestampStamp)
		dest = filepath.Join(a.cfg.ArchiveDir, stamp+"_"+prefix+filepath.Base(path))
	}

	if err := os.Rename(path, dest); err != nil {
		return fmt.Errorf("archive %s: %w", path, err)
	}

	a.logger.Info().Str(logFieldFile, path).Str("archived_as", dest).Msg("inbox file archived")

	return nil
}

// inboxFiles lists processable files in the inbox, sorted by name so drops
// named with a leading timestamp run in order.
func (a *App) inboxFiles() ([]string, error) {
	entries, err := os.ReadDir(a.cfg.InboxDir)
	if err != nil {
		return nil, fmt.Errorf("read inbox dir: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".csv", ".xlsx":
			files = append(files, filepath.Join(a.cfg.InboxDir, entry.Name()))
		}
	}

	sort.Strings(files)

	return files, nil
}

func (a *App) updateInboxBacklog(context.Context) {
	files, err := a.inboxFiles()
	if err != nil {
		a.logger.Warn().Err(err).Msg("inbox scan failed")
		return
	}

	observability.InboxBacklog.Set(float64(len(files)))
}
