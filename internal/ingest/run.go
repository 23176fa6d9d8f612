package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/sr311/internal/config"
	"github.com/EmpoweredVote/sr311/internal/db"
	"github.com/EmpoweredVote/sr311/internal/honolulu"
	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/metrics"
	"github.com/EmpoweredVote/sr311/internal/servicerequests"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Fetcher supplies the records for one run.
type Fetcher interface {
	Fetch(ctx context.Context) ([]honolulu.Record, error)
	URL() string
}

// RunOnce opens the database named in cfg, fetches from the configured
// endpoint and ingests the result.
func RunOnce(ctx context.Context, cfg config.Config) (Stats, error) {
	if err := cfg.Validate(); err != nil {
		return Stats{}, err
	}

	d, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return Stats{}, err
	}
	defer db.Close(d)

	return Run(ctx, d, honolulu.NewClient(cfg.Ingest))
}

// Run records an IngestRun, fetches records and applies them in a single
// transaction. The run row is finalized outside that transaction so failures
// are still recorded.
func Run(ctx context.Context, d *gorm.DB, f Fetcher) (Stats, error) {
	l := logging.Component("ingest")

	run := servicerequests.IngestRun{
		ID:        uuid.New(),
		SourceURL: f.URL(),
		StartedAt: time.Now().UTC(),
	}
	if err := d.WithContext(ctx).Create(&run).Error; err != nil {
		return Stats{}, fmt.Errorf("record ingest run: %w", err)
	}
	l.Info().Str("run_id", run.ID.String()).Str("source", run.SourceURL).Msg("Starting 311 ingestion")

	records, err := f.Fetch(ctx)
	if err != nil {
		finish(d, &run, Stats{}, err)
		return Stats{}, fmt.Errorf("fetch 311 data: %w", err)
	}
	run.Fetched = len(records)

	if len(records) == 0 {
		l.Info().Msg("No data to ingest")
		finish(d, &run, Stats{}, nil)
		return Stats{}, nil
	}

	var stats Stats
	err = d.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		stats, err = NewEngine(NewGormStore(tx), run.ID).Apply(ctx, records)
		return err
	})
	if err != nil {
		// The transaction rolled back, so nothing in stats was persisted.
		finish(d, &run, Stats{}, err)
		return stats, fmt.Errorf("apply records: %w", err)
	}

	finish(d, &run, stats, nil)
	record(stats)

	l.Info().
		Str("run_id", run.ID.String()).
		Int("fetched", stats.Total).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("unchanged", stats.Unchanged).
		Int("failed", stats.Failed).
		Int("status_changes", stats.Logged).
		Msg("Ingestion complete")
	return stats, nil
}

func finish(d *gorm.DB, run *servicerequests.IngestRun, stats Stats, runErr error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Inserted = stats.Inserted
	run.Updated = stats.Updated
	run.Unchanged = stats.Unchanged
	run.Failed = stats.Failed
	run.FailedSourceIDs = pq.StringArray(stats.FailedIDs)

	result := "success"
	if runErr != nil {
		run.Error = runErr.Error()
		result = "error"
	}
	metrics.IngestRuns.WithLabelValues(result).Inc()

	// Background context: the run row is written even if ctx was cancelled.
	if err := d.WithContext(context.Background()).Save(run).Error; err != nil {
		l := logging.Component("ingest")
		l.Error().Err(err).Str("run_id", run.ID.String()).Msg("failed to finalize ingest run")
	}
}

func record(stats Stats) {
	metrics.IngestRecords.WithLabelValues(Inserted.String()).Add(float64(stats.Inserted))
	metrics.IngestRecords.WithLabelValues(Updated.String()).Add(float64(stats.Updated))
	metrics.IngestRecords.WithLabelValues(Unchanged.String()).Add(float64(stats.Unchanged))
	metrics.IngestRecords.WithLabelValues("failed").Add(float64(stats.Failed))
	metrics.StatusChanges.Add(float64(stats.Logged))
}
