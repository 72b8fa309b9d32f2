package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pcmetrics/reviewbias/internal/bias"
	"github.com/pcmetrics/reviewbias/internal/core/domain"
	errs "github.com/pcmetrics/reviewbias/internal/core/errors"
	"github.com/pcmetrics/reviewbias/internal/export"
	"github.com/pcmetrics/reviewbias/internal/ingest"
	"github.com/pcmetrics/reviewbias/internal/normalize"
	"github.com/pcmetrics/reviewbias/internal/platform/config"
	"github.com/pcmetrics/reviewbias/internal/platform/observability"
	db "github.com/pcmetrics/reviewbias/internal/storage"
)

type Repository interface {
	SaveRun(ctx context.Context, run domain.Run) error
	FinishRun(ctx context.Context, run domain.Run) error
	ReplaceReviews(ctx context.Context, runID string, reviews []domain.Review) error
	SaveRejectLog(ctx context.Context, runID string, entries []db.RejectEntry) error
	GetReviews(ctx context.Context) ([]domain.Review, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)

const (
	logFieldRunID  = "run_id"
	logFieldSource = "source"
	logFieldInput  = "input"

	sinkCSV      = "csv"
	sinkPostgres = "postgres"
)

// Pipeline turns one loaded table of raw review records into the canonical
// enriched table and delivers it to the configured sinks.
type Pipeline struct {
	cfg        *config.Config
	database   Repository
	normalizer *normalize.Normalizer
	writer     *export.Writer
	logger     *zerolog.Logger
}

// New creates a Pipeline. database may be nil, in which case the run is
// CSV-only and no run bookkeeping is persisted.
func New(cfg *config.Config, database Repository, normalizer *normalize.Normalizer, writer *export.Writer, logger *zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		database:   database,
		normalizer: normalizer,
		writer:     writer,
		logger:     logger,
	}
}

// Run executes one full cycle over an already loaded table: normalize, score
// bias, write the CSV artifact and, when a database is configured, replace the
// canonical table and record the run.
func (p *Pipeline) Run(ctx context.Context, source, inputName string, table *ingest.Table) (*domain.Run, error) {
	run := domain.Run{
		ID:        uuid.NewString(),
		Source:    source,
		InputName: inputName,
		StartedAt: time.Now().UTC(),
		Status:    domain.RunStatusRunning,
		RawCount:  len(table.Records),
	}

	logger := p.logger.With().
		Str(logFieldRunID, run.ID).
		Str(logFieldSource, source).
		Str(logFieldInput, inputName).
		Logger()

	logger.Info().Int("raw_records", run.RawCount).Int("members", len(table.Members)).Msg("starting run")
	observability.RecordsIngested.WithLabelValues(source).Add(float64(run.RawCount))

	if p.database != nil {
		if err := p.database.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	reviews, res, err := p.normalizeAndScore(logger, table)
	if err != nil {
		return p.fail(ctx, logger, run, err)
	}

	run.MalformedCount = malformedCount(res)
	run.DuplicateCount = res.DroppedCount
	run.CanonicalCount = len(reviews)
	run.UndefinedBias = bias.Undefined(reviews)
	run.UnmatchedMembers = res.UnmatchedMembers

	if err = p.writer.WriteFile(p.cfg.OutputPath, reviews); err != nil {
		return p.fail(ctx, logger, run, fmt.Errorf("write csv: %w", err))
	}

	observability.ExportsTotal.WithLabelValues(sinkCSV).Inc()

	if p.database != nil {
		if err = p.store(ctx, run.ID, reviews, res); err != nil {
			return p.fail(ctx, logger, run, err)
		}

		observability.ExportsTotal.WithLabelValues(sinkPostgres).Inc()
	}

	run.FinishedAt = time.Now().UTC()
	run.Status = domain.RunStatusSucceeded

	if p.database != nil {
		if err = p.database.FinishRun(ctx, run); err != nil {
			return nil, fmt.Errorf("finish run: %w", err)
		}
	}

	p.observeRun(run)

	logger.Info().
		Int("canonical", run.CanonicalCount).
		Int("malformed", run.MalformedCount).
		Int("duplicates", run.DuplicateCount).
		Int("undefined_bias", run.UndefinedBias).
		Int("unmatched_members", run.UnmatchedMembers).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Msg("run complete")

	return &run, nil
}

// Export rewrites the CSV artifact from the canonical table in Postgres
// without re-ingesting any source. Bias is recomputed from the stored scores,
// which yields the same values the ingesting run wrote.
func (p *Pipeline) Export(ctx context.Context, path string) error {
	if p.database == nil {
		return fmt.Errorf("export requires a database: %w", errs.ErrInvalidInput)
	}

	reviews, err := p.database.GetReviews(ctx)
	if err != nil {
		return fmt.Errorf("get reviews: %w", err)
	}

	if len(reviews) == 0 {
		return fmt.Errorf("canonical table is empty: %w", errs.ErrNoRecords)
	}

	reviews, err = bias.Compute(reviews)
	if err != nil {
		return fmt.Errorf("compute bias: %w", err)
	}

	if err = p.writer.WriteFile(path, reviews); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	observability.ExportsTotal.WithLabelValues(sinkCSV).Inc()
	p.logger.Info().Int("reviews", len(reviews)).Str("path", path).Msg("exported canonical table")

	return nil
}

func (p *Pipeline) normalizeAndScore(logger zerolog.Logger, table *ingest.Table) ([]domain.Review, normalize.Result, error) {
	res := p.normalizer.Normalize(table.Records, table.Members)

	if res.Malformed != nil {
		p.reportMalformed(logger, res.Malformed)

		if p.cfg.StrictMalformed {
			return nil, res, fmt.Errorf("strict mode: %w", res.Malformed)
		}
	}

	observability.DuplicatesDropped.Add(float64(res.DroppedCount))
	observability.UnmatchedMembers.Add(float64(res.UnmatchedMembers))

	reviews, err := bias.Compute(res.Reviews)
	if err != nil {
		return nil, res, fmt.Errorf("compute bias: %w", err)
	}

	observability.ReviewsNormalized.Add(float64(len(reviews)))
	observability.UndefinedBias.Add(float64(bias.Undefined(reviews)))

	return reviews, res, nil
}

// reportMalformed logs every rejected record before the run decides whether
// to continue, so the report is complete even when strict mode aborts.
func (p *Pipeline) reportMalformed(logger zerolog.Logger, batch *errs.MalformedBatchError) {
	for _, rec := range batch.Records {
		observability.MalformedRecords.WithLabelValues(rec.Field).Inc()

		logger.Warn().
			Int("row", rec.Row).
			Int64("review_id", rec.ReviewID).
			Str("field", rec.Field).
			Str("reason", rec.Reason).
			Msg("rejected malformed record")
	}

	logger.Warn().Int("count", len(batch.Records)).Msg("malformed records rejected")
}

func (p *Pipeline) store(ctx context.Context, runID string, reviews []domain.Review, res normalize.Result) error {
	if err := p.database.ReplaceReviews(ctx, runID, reviews); err != nil {
		return fmt.Errorf("replace reviews: %w", err)
	}

	if entries := rejectEntries(res); len(entries) > 0 {
		if err := p.database.SaveRejectLog(ctx, runID, entries); err != nil {
			return fmt.Errorf("save reject log: %w", err)
		}
	}

	return nil
}

// fail closes out the run record after an error. The original error is
// returned; failures while recording the failure are only logged.
func (p *Pipeline) fail(ctx context.Context, logger zerolog.Logger, run domain.Run, err error) (*domain.Run, error) {
	run.FinishedAt = time.Now().UTC()
	run.Status = domain.RunStatusFailed

	if p.database != nil {
		if ferr := p.database.FinishRun(ctx, run); ferr != nil {
			logger.Error().Err(ferr).Msg("failed to record failed run")
		}
	}

	p.observeRun(run)
	logger.Error().Err(err).Msg("run failed")

	return nil, err
}

func (p *Pipeline) observeRun(run domain.Run) {
	observability.RunsTotal.WithLabelValues(run.Status).Inc()
	observability.RunDurationSeconds.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())
	observability.RunRows.Observe(float64(run.CanonicalCount))
	observability.LastRunUnixtime.Set(float64(run.FinishedAt.Unix()))
}

// rejectEntries flattens a run's rejects into reject_log rows. Duplicates are
// ordered by dropped review id so repeated runs write identical logs.
func rejectEntries(res normalize.Result) []db.RejectEntry {
	entries := make([]db.RejectEntry, 0, malformedCount(res)+len(res.DuplicateMap))

	if res.Malformed != nil {
		for _, rec := range res.Malformed.Records {
			entries = append(entries, db.RejectEntry{
				SourceRow: rec.Row,
				ReviewID:  rec.ReviewID,
				Reason:    db.RejectReasonMalformed,
				Detail:    fmt.Sprintf("%s: %s", rec.Field, rec.Reason),
			})
		}
	}

	dropped := make([]int64, 0, len(res.DuplicateMap))
	for id := range res.DuplicateMap {
		dropped = append(dropped, id)
	}

	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })

	for _, id := range dropped {
		entries = append(entries, db.RejectEntry{
			ReviewID: id,
			Reason:   db.RejectReasonDuplicate,
			Detail:   fmt.Sprintf("superseded by review %d", res.DuplicateMap[id]),
		})
	}

	return entries
}

func malformedCount(res normalize.Result) int {
	if res.Malformed == nil {
		return 0
	}

	return len(res.Malformed.Records)
}
