package ingest_test

import (
	"context"
	"errors"
	"testing"

	"github.com/EmpoweredVote/sr311/internal/honolulu"
	"github.com/EmpoweredVote/sr311/internal/ingest"
	"github.com/google/uuid"
)

func text(s string) honolulu.Text {
	return honolulu.Text{Value: s, Valid: true}
}

func record(id, status string) honolulu.Record {
	return honolulu.Record{
		ID:          text(id),
		RequestType: text("Pothole"),
		Description: text("Large pothole on Kapiolani"),
		DateCreated: text("2025-06-20T08:15:32.000"),
		StatusType:  text(status),
		City:        text("Honolulu"),
		ZipCode:     text("96814"),
		Location: &honolulu.Location{
			Latitude:  text("21.291982"),
			Longitude: text("-157.843911"),
		},
	}
}

func apply(t *testing.T, store ingest.Store, runID uuid.UUID, recs ...honolulu.Record) ingest.Stats {
	t.Helper()
	stats, err := ingest.NewEngine(store, runID).Apply(context.Background(), recs)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return stats
}

func TestApply_InsertsNewRecord(t *testing.T) {
	store := newMemStore()
	stats := apply(t, store, uuid.New(), record("10001", "Open"))

	if stats.Total != 1 || stats.Inserted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.statuses) != 1 || len(store.locations) != 1 || len(store.requests) != 1 {
		t.Errorf("expected one status, location and request; got %d/%d/%d",
			len(store.statuses), len(store.locations), len(store.requests))
	}
	if len(store.logs) != 0 {
		t.Errorf("insert must not log a status change, got %d", len(store.logs))
	}
}

func TestApply_UnchangedRecordWritesNothing(t *testing.T) {
	store := newMemStore()
	apply(t, store, uuid.New(), record("10001", "Open"))
	before := store.writes

	stats := apply(t, store, uuid.New(), record("10001", "Open"))

	if stats.Unchanged != 1 || stats.Inserted != 0 || stats.Updated != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if store.writes != before {
		t.Errorf("re-ingesting an unchanged record wrote %d rows", store.writes-before)
	}
}

func TestApply_StatusChangeLogsOnceAndUpdates(t *testing.T) {
	store := newMemStore()
	apply(t, store, uuid.New(), record("10001", "Open"))
	openID := store.statuses["Open"]

	stats := apply(t, store, uuid.New(), record("10001", "Closed"))

	if stats.Updated != 1 || stats.Logged != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if store.updates != 1 {
		t.Errorf("expected exactly one update, got %d", store.updates)
	}
	if len(store.logs) != 1 {
		t.Fatalf("expected exactly one log row, got %d", len(store.logs))
	}
	entry := store.logs[0]
	if entry.OldStatusID != openID || entry.NewStatusID != store.statuses["Closed"] {
		t.Errorf("unexpected transition %d -> %d", entry.OldStatusID, entry.NewStatusID)
	}
	if entry.ChangedAt.IsZero() || entry.ChangedAt.Location().String() != "UTC" {
		t.Errorf("changed_at should be set in UTC, got %v", entry.ChangedAt)
	}
	if store.requests["10001"].statusID != store.statuses["Closed"] {
		t.Error("request status was not updated")
	}
}

func TestApply_TransitionLoggedAtMostOncePerRun(t *testing.T) {
	store := newMemStore()
	apply(t, store, uuid.New(), record("10001", "Open"))

	run := uuid.New()
	stats := apply(t, store, run,
		record("10001", "Closed"),
		record("10001", "Open"),
		record("10001", "Closed"),
	)

	if stats.Updated != 3 {
		t.Errorf("expected three updates, got %+v", stats)
	}
	if len(store.logs) != 2 || stats.Logged != 2 {
		t.Errorf("expected Open->Closed and Closed->Open logged once each, got %d rows", len(store.logs))
	}

	// A later run records the same transition again.
	apply(t, store, uuid.New(), record("10001", "Open"), record("10001", "Closed"))
	if len(store.logs) != 4 {
		t.Errorf("expected new run to log again, got %d rows", len(store.logs))
	}
}

func TestApply_NeverDuplicatesLocations(t *testing.T) {
	store := newMemStore()
	noCoords := record("10003", "Open")
	noCoords.Location = nil
	noCoords2 := record("10004", "Open")
	noCoords2.Location = nil
	moreDigits := record("10005", "Open")
	moreDigits.Location.Latitude = text("21.2919820001")

	stats := apply(t, store, uuid.New(),
		record("10001", "Open"),
		record("10002", "Closed"),
		noCoords,
		noCoords2,
		moreDigits,
	)

	if stats.Inserted != 5 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(store.locations) != 2 {
		t.Errorf("expected 2 distinct locations, got %d", len(store.locations))
	}
	if len(store.statuses) != 2 {
		t.Errorf("expected 2 statuses, got %d", len(store.statuses))
	}
}

func TestApply_FailedRecordIsRolledBackAndSkipped(t *testing.T) {
	store := newMemStore()
	store.failSource = "bad"

	bad := record("bad", "Brand New Status")
	missingID := record("", "Open")
	missingID.ID = honolulu.Text{}

	stats := apply(t, store, uuid.New(), bad, missingID, record("10001", "Open"))

	if stats.Failed != 2 || stats.Inserted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.FailedIDs) != 2 || stats.FailedIDs[0] != "bad" || stats.FailedIDs[1] != "#1" {
		t.Errorf("unexpected failed ids: %v", stats.FailedIDs)
	}
	if _, ok := store.statuses["Brand New Status"]; ok {
		t.Error("status created by a failed record should be rolled back")
	}
}

func TestApply_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ingest.NewEngine(newMemStore(), uuid.New()).Apply(ctx, []honolulu.Record{record("1", "Open")})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestApply_UndecodableRecordIsCountedAsFailed(t *testing.T) {
	store := newMemStore()
	broken := honolulu.Record{ID: text("10002"), Err: errors.New("decode record 1: expected string or number, got true")}

	stats := apply(t, store, uuid.New(), record("10001", "Open"), broken)

	if stats.Inserted != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.FailedIDs) != 1 || stats.FailedIDs[0] != "10002" {
		t.Errorf("unexpected failed ids: %v", stats.FailedIDs)
	}
}
