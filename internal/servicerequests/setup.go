package servicerequests

import (
	"fmt"

	"github.com/EmpoweredVote/sr311/internal/db"
	"github.com/EmpoweredVote/sr311/internal/logging"
	"gorm.io/gorm"
)

// Init creates the sr311 schema, its tables and supporting indexes.
// It is idempotent.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, Schema); err != nil {
		return fmt.Errorf("ensure schema %s: %w", Schema, err)
	}

	if err := d.AutoMigrate(
		&RequestStatus{},
		&Location{},
		&ServiceRequest{},
		&StatusChangeLog{},
		&IngestRun{},
	); err != nil {
		return fmt.Errorf("auto-migrate %s tables: %w", Schema, err)
	}

	// One row per coordinate/city/zip tuple, NULLs compared as equal (PG15+).
	if err := d.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS locations_identity_unique
		ON sr311.locations (latitude, longitude, city, zip_code) NULLS NOT DISTINCT;
	`).Error; err != nil {
		return fmt.Errorf("create locations_identity_unique: %w", err)
	}

	if err := d.Exec(`
		CREATE INDEX IF NOT EXISTS service_requests_request_date
		ON sr311.service_requests (request_date DESC);
	`).Error; err != nil {
		return fmt.Errorf("create service_requests_request_date: %w", err)
	}

	l := logging.Component("schema")
	l.Info().Str("schema", Schema).Msg("schema initialized")
	return nil
}
