package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/EmpoweredVote/sr311/internal/honolulu"
	"golang.org/x/text/unicode/norm"
)

const (
	DefaultRequestType = "Unknown"
	DefaultStatus      = "Open"
)

var ErrMissingID = errors.New("record has no id")

// Socrata floating timestamps first, then looser forms.
var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// LocationKey identifies a Location row. Nil fields are stored as NULL.
type LocationKey struct {
	Latitude  *float64
	Longitude *float64
	City      *string
	ZipCode   *string
}

// Normalized is a record mapped onto the relational model.
type Normalized struct {
	SourceRequestID string
	RequestType     string
	Description     string
	RequestDate     *time.Time
	StatusName      string
	Location        LocationKey
}

// Normalize maps one open-data record onto the relational model, applying
// the feed's defaults.
func Normalize(rec honolulu.Record) (Normalized, error) {
	if rec.Err != nil {
		return Normalized{}, rec.Err
	}
	id := strings.TrimSpace(rec.ID.Value)
	if !rec.ID.Valid || id == "" {
		return Normalized{}, ErrMissingID
	}

	n := Normalized{
		SourceRequestID: id,
		RequestType:     norm.NFC.String(rec.RequestType.Or(DefaultRequestType)),
		Description:     norm.NFC.String(rec.Description.Or("")),
		StatusName:      strings.TrimSpace(rec.StatusType.Or(DefaultStatus)),
	}
	if n.StatusName == "" {
		n.StatusName = DefaultStatus
	}

	if rec.DateCreated.Valid && strings.TrimSpace(rec.DateCreated.Value) != "" {
		t, err := parseDate(strings.TrimSpace(rec.DateCreated.Value))
		if err != nil {
			return Normalized{}, err
		}
		n.RequestDate = &t
	}

	if rec.City.Valid {
		city := rec.City.Value
		n.Location.City = &city
	}
	if rec.ZipCode.Valid {
		zip := rec.ZipCode.Value
		n.Location.ZipCode = &zip
	}
	if rec.Location != nil {
		n.Location.Latitude = coordinate(rec.Location.Latitude)
		n.Location.Longitude = coordinate(rec.Location.Longitude)
	}
	return n, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable datecreated %q", s)
}

// coordinate parses a latitude/longitude and rounds it to the six decimal
// places the locations table keeps, so lookups compare equal to stored rows.
func coordinate(t honolulu.Text) *float64 {
	if !t.Valid {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	v = math.Round(v*1e6) / 1e6
	return &v
}
