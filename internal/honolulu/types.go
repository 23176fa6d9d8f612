package honolulu

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Text holds a JSON value the feed may send as a string, a number, or null.
type Text struct {
	Value string
	Valid bool
}

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Text{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text{Value: s, Valid: true}
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*t = Text{Value: string(b), Valid: true}
	return nil
}

func (t Text) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Value)
}

// Or returns the value, or def when the field was absent or null.
func (t Text) Or(def string) string {
	if !t.Valid {
		return def
	}
	return t.Value
}

// Record is one row of the Honolulu 311 dataset.
type Record struct {
	ID          Text      `json:"id"`
	RequestType Text      `json:"requesttype"`
	Description Text      `json:"description"`
	DateCreated Text      `json:"datecreated"`
	StatusType  Text      `json:"statustype"`
	City        Text      `json:"city"`
	ZipCode     Text      `json:"zipcode"`
	Location    *Location `json:"location"`

	// Err is set when this element of the page could not be decoded. ID is
	// still filled in when the element carried a readable id.
	Err error `json:"-"`
}

type Location struct {
	Latitude  Text `json:"latitude"`
	Longitude Text `json:"longitude"`
}

// decodeRecords decodes each element of a page on its own, so one malformed
// element does not discard the rest of the page.
func decodeRecords(raw []json.RawMessage) []Record {
	recs := make([]Record, 0, len(raw))
	for i, elem := range raw {
		var rec Record
		if err := json.Unmarshal(elem, &rec); err != nil {
			var idOnly struct {
				ID Text `json:"id"`
			}
			_ = json.Unmarshal(elem, &idOnly)
			rec = Record{ID: idOnly.ID, Err: fmt.Errorf("decode record %d: %w", i, err)}
			logError("decode", rec.Err)
		}
		recs = append(recs, rec)
	}
	return recs
}
