package servicerequests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("not found")

// FeatureRow is one joined request/location/status row.
type FeatureRow struct {
	RequestID       uint
	RequestType     string
	SourceRequestID string
	Description     string
	RequestDate     *time.Time
	Latitude        float64
	Longitude       float64
	StatusName      string
}

// StatusCount is a status label with the number of requests holding it.
type StatusCount struct {
	StatusName string `json:"status"`
	Requests   int64  `json:"requests"`
}

// HistoryEntry is one status transition with resolved labels.
type HistoryEntry struct {
	LogID       uint      `json:"log_id"`
	OldStatus   string    `json:"old_status"`
	NewStatus   string    `json:"new_status"`
	ChangedAt   time.Time `json:"changed_at"`
	IngestRunID string    `json:"ingest_run_id,omitempty"`
}

// RequestHistory is the status timeline of one request.
type RequestHistory struct {
	SourceRequestID string         `json:"source_request_id"`
	CurrentStatus   string         `json:"current_status"`
	Changes         []HistoryEntry `json:"changes"`
}

// Querier is the read side used by the HTTP handlers.
type Querier interface {
	Features(ctx context.Context, f Filter) ([]FeatureRow, error)
	History(ctx context.Context, sourceRequestID string) (RequestHistory, error)
	Statuses(ctx context.Context) ([]StatusCount, error)
	Ping(ctx context.Context) error
}

const featureSelect = `
SELECT
	sr.request_id,
	sr.request_type,
	sr.source_request_id,
	sr.description,
	sr.request_date,
	loc.latitude,
	loc.longitude,
	rs.status_name
FROM sr311.service_requests sr
JOIN sr311.request_statuses rs ON sr.status_id = rs.status_id
JOIN sr311.locations loc ON sr.location_id = loc.location_id
WHERE loc.latitude <> 0 AND loc.longitude <> 0`

// BuildFeatureQuery returns the parameterized feature query for f.
// Rows with a zero (or NULL) latitude or longitude never match.
func BuildFeatureQuery(f Filter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString(featureSelect)
	var args []interface{}

	if f.Type != "" {
		b.WriteString("\n  AND LOWER(sr.request_type) LIKE LOWER(?) ESCAPE '\\'")
		args = append(args, likePattern(f.Type))
	}
	if f.Description != "" {
		b.WriteString("\n  AND LOWER(sr.description) LIKE LOWER(?) ESCAPE '\\'")
		args = append(args, likePattern(f.Description))
	}
	if f.Start != nil {
		b.WriteString("\n  AND sr.request_date >= ?")
		args = append(args, *f.Start)
	}
	if f.End != nil {
		if f.EndExclusive {
			b.WriteString("\n  AND sr.request_date < ?")
		} else {
			b.WriteString("\n  AND sr.request_date <= ?")
		}
		args = append(args, *f.End)
	}
	b.WriteString("\nORDER BY sr.request_date DESC NULLS LAST, sr.request_id")
	return b.String(), args
}

// GormQuerier reads from Postgres through gorm.
type GormQuerier struct {
	DB *gorm.DB
}

func NewGormQuerier(d *gorm.DB) GormQuerier {
	return GormQuerier{DB: d}
}

func (q GormQuerier) Features(ctx context.Context, f Filter) ([]FeatureRow, error) {
	query, args := BuildFeatureQuery(f)
	var rows []FeatureRow
	if err := q.DB.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	return rows, nil
}

func (q GormQuerier) History(ctx context.Context, sourceRequestID string) (RequestHistory, error) {
	d := q.DB.WithContext(ctx)

	var req ServiceRequest
	err := d.Preload("Status").First(&req, "source_request_id = ?", sourceRequestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RequestHistory{}, ErrNotFound
	}
	if err != nil {
		return RequestHistory{}, fmt.Errorf("find request %s: %w", sourceRequestID, err)
	}

	changes := []HistoryEntry{}
	if err := d.Raw(`
		SELECT
			l.log_id,
			COALESCE(os.status_name, '') AS old_status,
			COALESCE(ns.status_name, '') AS new_status,
			l.changed_at,
			COALESCE(l.ingest_run_id::text, '') AS ingest_run_id
		FROM sr311.status_change_logs l
		LEFT JOIN sr311.request_statuses os ON os.status_id = l.old_status_id
		LEFT JOIN sr311.request_statuses ns ON ns.status_id = l.new_status_id
		WHERE l.request_id = ?
		ORDER BY l.changed_at, l.log_id
	`, req.RequestID).Scan(&changes).Error; err != nil {
		return RequestHistory{}, fmt.Errorf("query history for %s: %w", sourceRequestID, err)
	}

	return RequestHistory{
		SourceRequestID: req.SourceRequestID,
		CurrentStatus:   req.Status.StatusName,
		Changes:         changes,
	}, nil
}

func (q GormQuerier) Statuses(ctx context.Context) ([]StatusCount, error) {
	out := []StatusCount{}
	if err := q.DB.WithContext(ctx).Raw(`
		SELECT rs.status_name, COUNT(sr.request_id) AS requests
		FROM sr311.request_statuses rs
		LEFT JOIN sr311.service_requests sr ON sr.status_id = rs.status_id
		GROUP BY rs.status_name
		ORDER BY rs.status_name
	`).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	return out, nil
}

func (q GormQuerier) Ping(ctx context.Context) error {
	sqlDB, err := q.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
