package servicerequests

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Schema is the Postgres schema holding every 311 table.
const Schema = "sr311"

// RequestStatus is a deduplicated status label such as "Open" or "Closed".
type RequestStatus struct {
	StatusID   uint   `gorm:"primaryKey" json:"status_id"`
	StatusName string `gorm:"size:50;not null;uniqueIndex:request_statuses_name_unique" json:"status_name"`
}

func (RequestStatus) TableName() string { return Schema + ".request_statuses" }

// Location is created on first sighting of a (lat, lon, city, zip) tuple and
// never updated. Any component may be NULL.
type Location struct {
	LocationID uint     `gorm:"primaryKey" json:"location_id"`
	Latitude   *float64 `gorm:"type:decimal(9,6)" json:"latitude"`
	Longitude  *float64 `gorm:"type:decimal(9,6)" json:"longitude"`
	City       *string  `gorm:"size:50" json:"city"`
	ZipCode    *string  `gorm:"size:10" json:"zip_code"`
}

func (Location) TableName() string { return Schema + ".locations" }

// ServiceRequest is one 311 case keyed by the open-data id.
type ServiceRequest struct {
	RequestID       uint       `gorm:"primaryKey" json:"request_id"`
	SourceRequestID string     `gorm:"size:50;not null;uniqueIndex" json:"source_request_id"`
	RequestType     string     `gorm:"size:100" json:"request_type"`
	Description     string     `gorm:"type:text" json:"description"`
	RequestDate     *time.Time `gorm:"type:timestamp" json:"request_date"`
	LocationID      uint       `gorm:"not null;index" json:"location_id"`
	StatusID        uint       `gorm:"not null;index" json:"status_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Location Location      `gorm:"foreignKey:LocationID;references:LocationID" json:"-"`
	Status   RequestStatus `gorm:"foreignKey:StatusID;references:StatusID" json:"-"`
}

func (ServiceRequest) TableName() string { return Schema + ".service_requests" }

// StatusChangeLog is an append-only audit row for one observed transition.
type StatusChangeLog struct {
	LogID       uint      `gorm:"primaryKey" json:"log_id"`
	RequestID   uint      `gorm:"not null;index:status_change_logs_transition,priority:1" json:"request_id"`
	OldStatusID uint      `gorm:"not null;index:status_change_logs_transition,priority:2" json:"old_status_id"`
	NewStatusID uint      `gorm:"not null;index:status_change_logs_transition,priority:3" json:"new_status_id"`
	IngestRunID uuid.UUID `gorm:"type:uuid;index:status_change_logs_transition,priority:4" json:"ingest_run_id"`
	ChangedAt   time.Time `gorm:"not null" json:"changed_at"`
}

func (StatusChangeLog) TableName() string { return Schema + ".status_change_logs" }

// IngestRun records one execution of the ingestion pipeline.
type IngestRun struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceURL       string         `gorm:"not null" json:"source_url"`
	StartedAt       time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at,omitempty"`
	Fetched         int            `json:"fetched"`
	Inserted        int            `json:"inserted"`
	Updated         int            `json:"updated"`
	Unchanged       int            `json:"unchanged"`
	Failed          int            `json:"failed"`
	FailedSourceIDs pq.StringArray `gorm:"type:text[]" json:"failed_source_ids,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func (IngestRun) TableName() string { return Schema + ".ingest_runs" }
