package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/EmpoweredVote/sr311/internal/honolulu"
	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/servicerequests"
	"github.com/google/uuid"
)

// Outcome is what the engine did with one record.
type Outcome int

const (
	Inserted Outcome = iota
	Updated
	Unchanged
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// Stats summarizes one Apply call.
type Stats struct {
	Total     int
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int
	// Logged counts status change log rows written.
	Logged    int
	FailedIDs []string
}

// Engine upserts normalized records into the store. Every status-change log
// row it writes is tagged with runID, and a transition is logged at most once
// per (request, old, new) within the run.
type Engine struct {
	store Store
	runID uuid.UUID
	now   func() time.Time
}

func NewEngine(store Store, runID uuid.UUID) *Engine {
	return &Engine{
		store: store,
		runID: runID,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Apply processes records in order. A record that fails is rolled back on
// its own and counted; the rest continue. Only context cancellation stops
// the loop early.
func (e *Engine) Apply(ctx context.Context, records []honolulu.Record) (Stats, error) {
	l := logging.Component("ingest")
	stats := Stats{Total: len(records)}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome, logged, err := e.applyOne(ctx, rec)
		if err != nil {
			id := rec.ID.Value
			if id == "" {
				id = fmt.Sprintf("#%d", i)
			}
			l.Warn().Str("source_request_id", id).Err(err).Msg("skipping record")
			stats.Failed++
			stats.FailedIDs = append(stats.FailedIDs, id)
			continue
		}

		switch outcome {
		case Inserted:
			stats.Inserted++
		case Updated:
			stats.Updated++
		case Unchanged:
			stats.Unchanged++
		}
		if logged {
			stats.Logged++
		}
	}
	return stats, nil
}

func (e *Engine) applyOne(ctx context.Context, rec honolulu.Record) (Outcome, bool, error) {
	n, err := Normalize(rec)
	if err != nil {
		return 0, false, err
	}

	var (
		outcome Outcome
		logged  bool
	)
	err = e.store.Atomic(ctx, func(s Store) error {
		var err error
		outcome, logged, err = e.upsert(ctx, s, n)
		return err
	})
	return outcome, logged, err
}

func (e *Engine) upsert(ctx context.Context, s Store, n Normalized) (Outcome, bool, error) {
	statusID, err := lookupOrCreateStatus(ctx, s, n.StatusName)
	if err != nil {
		return 0, false, err
	}

	existing, ok, err := s.FindRequest(ctx, n.SourceRequestID)
	if err != nil {
		return 0, false, fmt.Errorf("find request: %w", err)
	}
	if ok && existing.StatusID == statusID {
		return Unchanged, false, nil
	}

	locationID, err := lookupOrCreateLocation(ctx, s, n.Location)
	if err != nil {
		return 0, false, err
	}

	if !ok {
		if _, err := s.CreateRequest(ctx, n, locationID, statusID); err != nil {
			return 0, false, fmt.Errorf("insert request: %w", err)
		}
		return Inserted, false, nil
	}

	logged := false
	already, err := s.TransitionLogged(ctx, e.runID, existing.RequestID, existing.StatusID, statusID)
	if err != nil {
		return 0, false, fmt.Errorf("check status log: %w", err)
	}
	if !already {
		entry := servicerequests.StatusChangeLog{
			RequestID:   existing.RequestID,
			OldStatusID: existing.StatusID,
			NewStatusID: statusID,
			IngestRunID: e.runID,
			ChangedAt:   e.now(),
		}
		if err := s.LogTransition(ctx, entry); err != nil {
			return 0, false, fmt.Errorf("log status change: %w", err)
		}
		logged = true
	}

	if err := s.UpdateRequest(ctx, existing.RequestID, n, locationID, statusID); err != nil {
		return 0, false, fmt.Errorf("update request: %w", err)
	}
	return Updated, logged, nil
}

func lookupOrCreateStatus(ctx context.Context, s Store, name string) (uint, error) {
	id, ok, err := s.FindStatus(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("find status %q: %w", name, err)
	}
	if ok {
		return id, nil
	}
	id, err = s.CreateStatus(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("insert status %q: %w", name, err)
	}
	return id, nil
}

func lookupOrCreateLocation(ctx context.Context, s Store, key LocationKey) (uint, error) {
	id, ok, err := s.FindLocation(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("find location: %w", err)
	}
	if ok {
		return id, nil
	}
	id, err = s.CreateLocation(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("insert location: %w", err)
	}
	return id, nil
}
