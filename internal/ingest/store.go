package ingest

import (
	"context"
	"errors"

	"github.com/EmpoweredVote/sr311/internal/servicerequests"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExistingRequest is the part of a stored request the engine compares against.
type ExistingRequest struct {
	RequestID uint
	StatusID  uint
}

// Store is the persistence the upsert engine needs.
type Store interface {
	FindStatus(ctx context.Context, name string) (uint, bool, error)
	CreateStatus(ctx context.Context, name string) (uint, error)

	FindLocation(ctx context.Context, key LocationKey) (uint, bool, error)
	CreateLocation(ctx context.Context, key LocationKey) (uint, error)

	FindRequest(ctx context.Context, sourceRequestID string) (ExistingRequest, bool, error)
	CreateRequest(ctx context.Context, n Normalized, locationID, statusID uint) (uint, error)
	UpdateRequest(ctx context.Context, requestID uint, n Normalized, locationID, statusID uint) error

	TransitionLogged(ctx context.Context, runID uuid.UUID, requestID, oldStatusID, newStatusID uint) (bool, error)
	LogTransition(ctx context.Context, entry servicerequests.StatusChangeLog) error

	// Atomic runs fn so that either all of its writes persist or none do.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// GormStore implements Store on gorm. Nested Atomic calls become savepoints
// when the handle is already inside a transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(d *gorm.DB) GormStore {
	return GormStore{db: d}
}

func (s GormStore) FindStatus(ctx context.Context, name string) (uint, bool, error) {
	var st servicerequests.RequestStatus
	err := s.db.WithContext(ctx).Where("status_name = ?", name).Take(&st).Error
	return found(st.StatusID, err)
}

func (s GormStore) CreateStatus(ctx context.Context, name string) (uint, error) {
	st := servicerequests.RequestStatus{StatusName: name}
	if err := s.db.WithContext(ctx).Create(&st).Error; err != nil {
		return 0, err
	}
	return st.StatusID, nil
}

func (s GormStore) FindLocation(ctx context.Context, key LocationKey) (uint, bool, error) {
	var loc servicerequests.Location
	err := s.db.WithContext(ctx).
		Where("latitude IS NOT DISTINCT FROM ?", key.Latitude).
		Where("longitude IS NOT DISTINCT FROM ?", key.Longitude).
		Where("city IS NOT DISTINCT FROM ?", key.City).
		Where("zip_code IS NOT DISTINCT FROM ?", key.ZipCode).
		Take(&loc).Error
	return found(loc.LocationID, err)
}

func (s GormStore) CreateLocation(ctx context.Context, key LocationKey) (uint, error) {
	loc := servicerequests.Location{
		Latitude:  key.Latitude,
		Longitude: key.Longitude,
		City:      key.City,
		ZipCode:   key.ZipCode,
	}
	if err := s.db.WithContext(ctx).Create(&loc).Error; err != nil {
		return 0, err
	}
	return loc.LocationID, nil
}

func (s GormStore) FindRequest(ctx context.Context, sourceRequestID string) (ExistingRequest, bool, error) {
	var sr servicerequests.ServiceRequest
	err := s.db.WithContext(ctx).
		Select("request_id", "status_id").
		Where("source_request_id = ?", sourceRequestID).
		Take(&sr).Error
	id, ok, err := found(sr.RequestID, err)
	return ExistingRequest{RequestID: id, StatusID: sr.StatusID}, ok, err
}

func (s GormStore) CreateRequest(ctx context.Context, n Normalized, locationID, statusID uint) (uint, error) {
	sr := servicerequests.ServiceRequest{
		SourceRequestID: n.SourceRequestID,
		RequestType:     n.RequestType,
		Description:     n.Description,
		RequestDate:     n.RequestDate,
		LocationID:      locationID,
		StatusID:        statusID,
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&sr).Error; err != nil {
		return 0, err
	}
	return sr.RequestID, nil
}

func (s GormStore) UpdateRequest(ctx context.Context, requestID uint, n Normalized, locationID, statusID uint) error {
	return s.db.WithContext(ctx).
		Model(&servicerequests.ServiceRequest{}).
		Where("request_id = ?", requestID).
		Updates(map[string]interface{}{
			"status_id":    statusID,
			"request_type": n.RequestType,
			"description":  n.Description,
			"request_date": n.RequestDate,
			"location_id":  locationID,
		}).Error
}

func (s GormStore) TransitionLogged(ctx context.Context, runID uuid.UUID, requestID, oldStatusID, newStatusID uint) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&servicerequests.StatusChangeLog{}).
		Where("request_id = ? AND old_status_id = ? AND new_status_id = ? AND ingest_run_id = ?",
			requestID, oldStatusID, newStatusID, runID).
		Count(&n).Error
	return n > 0, err
}

func (s GormStore) LogTransition(ctx context.Context, entry servicerequests.StatusChangeLog) error {
	return s.db.WithContext(ctx).Create(&entry).Error
}

func (s GormStore) Atomic(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(GormStore{db: tx})
	})
}

func found(id uint, err error) (uint, bool, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}
