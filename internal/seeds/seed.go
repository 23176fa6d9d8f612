package seeds

import (
	_ "embed"
	"fmt"

	"github.com/EmpoweredVote/sr311/internal/logging"
	"github.com/EmpoweredVote/sr311/internal/servicerequests"
	"github.com/goccy/go-json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed data/statuses.json
var statusesJSON []byte

// Statuses returns the status labels seeded into a fresh database.
func Statuses() ([]string, error) {
	var names []string
	if err := json.Unmarshal(statusesJSON, &names); err != nil {
		return nil, fmt.Errorf("failed to parse statuses.json: %w", err)
	}
	return names, nil
}

// SeedStatuses inserts the known status labels, skipping ones that exist.
// Labels first seen in the feed are still created by ingestion.
func SeedStatuses(d *gorm.DB) error {
	names, err := Statuses()
	if err != nil {
		return err
	}

	rows := make([]servicerequests.RequestStatus, 0, len(names))
	for _, n := range names {
		rows = append(rows, servicerequests.RequestStatus{StatusName: n})
	}

	res := d.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "status_name"}},
		DoNothing: true,
	}).Create(&rows)
	if res.Error != nil {
		return fmt.Errorf("failed to seed statuses: %w", res.Error)
	}

	l := logging.Component("seeds")
	l.Info().Int64("inserted", res.RowsAffected).Int("known", len(names)).Msg("Seeded request statuses")
	return nil
}
