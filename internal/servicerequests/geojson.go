package servicerequests

import "time"

type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"` // [lon, lat]
}

type FeatureProperties struct {
	ID                uint    `json:"id"`
	Service           string  `json:"service"`
	Status            string  `json:"status"`
	SourceRequestID   string  `json:"source_request_id"`
	Description       string  `json:"description"`
	RequestedDatetime *string `json:"requested_datetime"`
}

type Feature struct {
	Type       string            `json:"type"`
	Geometry   Geometry          `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// isoLocal formats a zone-less timestamp the way the map front end expects:
// seconds precision, or microseconds when present.
func isoLocal(t time.Time) string {
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05")
	}
	return t.Format("2006-01-02T15:04:05.000000")
}

// ToFeatureCollection converts rows to a GeoJSON FeatureCollection. The
// features slice is never nil so an empty result encodes as [].
func ToFeatureCollection(rows []FeatureRow) FeatureCollection {
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(rows)),
	}
	for _, row := range rows {
		var requested *string
		if row.RequestDate != nil {
			s := isoLocal(*row.RequestDate)
			requested = &s
		}
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: [2]float64{row.Longitude, row.Latitude},
			},
			Properties: FeatureProperties{
				ID:                row.RequestID,
				Service:           row.RequestType,
				Status:            row.StatusName,
				SourceRequestID:   row.SourceRequestID,
				Description:       row.Description,
				RequestedDatetime: requested,
			},
		})
	}
	return fc
}
