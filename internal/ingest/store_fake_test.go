package ingest_test

import (
	"context"
	"errors"

	"github.com/EmpoweredVote/sr311/internal/ingest"
	"github.com/EmpoweredVote/sr311/internal/servicerequests"
	"github.com/google/uuid"
)

type memRequest struct {
	id         uint
	normalized ingest.Normalized
	locationID uint
	statusID   uint
}

// memStore is an in-memory ingest.Store that counts writes.
type memStore struct {
	nextID    uint
	statuses  map[string]uint
	locations map[uint]ingest.LocationKey
	requests  map[string]memRequest
	logs      []servicerequests.StatusChangeLog
	writes    int
	updates   int

	// failSource makes CreateRequest and UpdateRequest fail for this id.
	failSource string
}

func newMemStore() *memStore {
	return &memStore{
		statuses:  map[string]uint{},
		locations: map[uint]ingest.LocationKey{},
		requests:  map[string]memRequest{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) FindStatus(ctx context.Context, name string) (uint, bool, error) {
	id, ok := m.statuses[name]
	return id, ok, nil
}

func (m *memStore) CreateStatus(ctx context.Context, name string) (uint, error) {
	id := m.id()
	m.statuses[name] = id
	m.writes++
	return id, nil
}

func (m *memStore) FindLocation(ctx context.Context, key ingest.LocationKey) (uint, bool, error) {
	for id, loc := range m.locations {
		if sameFloat(loc.Latitude, key.Latitude) && sameFloat(loc.Longitude, key.Longitude) &&
			sameString(loc.City, key.City) && sameString(loc.ZipCode, key.ZipCode) {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (m *memStore) CreateLocation(ctx context.Context, key ingest.LocationKey) (uint, error) {
	id := m.id()
	m.locations[id] = key
	m.writes++
	return id, nil
}

func (m *memStore) FindRequest(ctx context.Context, sourceID string) (ingest.ExistingRequest, bool, error) {
	r, ok := m.requests[sourceID]
	return ingest.ExistingRequest{RequestID: r.id, StatusID: r.statusID}, ok, nil
}

func (m *memStore) CreateRequest(ctx context.Context, n ingest.Normalized, locationID, statusID uint) (uint, error) {
	if n.SourceRequestID == m.failSource {
		return 0, errors.New("value too long for type character varying(50)")
	}
	id := m.id()
	m.requests[n.SourceRequestID] = memRequest{id: id, normalized: n, locationID: locationID, statusID: statusID}
	m.writes++
	return id, nil
}

func (m *memStore) UpdateRequest(ctx context.Context, requestID uint, n ingest.Normalized, locationID, statusID uint) error {
	if n.SourceRequestID == m.failSource {
		return errors.New("update failed")
	}
	for k, r := range m.requests {
		if r.id == requestID {
			m.requests[k] = memRequest{id: requestID, normalized: n, locationID: locationID, statusID: statusID}
			m.writes++
			m.updates++
			return nil
		}
	}
	return errors.New("no such request")
}

func (m *memStore) TransitionLogged(ctx context.Context, runID uuid.UUID, requestID, oldID, newID uint) (bool, error) {
	for _, l := range m.logs {
		if l.IngestRunID == runID && l.RequestID == requestID && l.OldStatusID == oldID && l.NewStatusID == newID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) LogTransition(ctx context.Context, entry servicerequests.StatusChangeLog) error {
	entry.LogID = m.id()
	m.logs = append(m.logs, entry)
	m.writes++
	return nil
}

func (m *memStore) Atomic(ctx context.Context, fn func(ingest.Store) error) error {
	snap := m.clone()
	if err := fn(m); err != nil {
		*m = *snap
		return err
	}
	return nil
}

func (m *memStore) clone() *memStore {
	c := *m
	c.statuses = make(map[string]uint, len(m.statuses))
	for k, v := range m.statuses {
		c.statuses[k] = v
	}
	c.locations = make(map[uint]ingest.LocationKey, len(m.locations))
	for k, v := range m.locations {
		c.locations[k] = v
	}
	c.requests = make(map[string]memRequest, len(m.requests))
	for k, v := range m.requests {
		c.requests[k] = v
	}
	c.logs = append([]servicerequests.StatusChangeLog(nil), m.logs...)
	return &c
}

func sameFloat(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
