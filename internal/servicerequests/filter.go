package servicerequests

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Filter narrows the feature query. Zero values mean "no filter".
type Filter struct {
	// Substring terms, NFC-normalized. Case folding happens in SQL so the
	// term and the column go through the same LOWER().
	Type        string
	Description string
	Start       *time.Time
	End         *time.Time
	// EndExclusive is set when End is the start of the day after a
	// date-only upper bound.
	EndExclusive bool
}

type filterParams struct {
	Type  string `validate:"max=100"`
	Desc  string `validate:"max=200"`
	Start string `validate:"omitempty,flexdate"`
	End   string `validate:"omitempty,flexdate"`
}

const dateOnly = "2006-01-02"

var dateLayouts = []string{
	dateOnly,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("flexdate", func(fl validator.FieldLevel) bool {
			_, _, err := parseDate(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// parseDate accepts the layouts a browser date or datetime input produces,
// plus RFC 3339. The wall-clock time is kept and the zone discarded, since
// request dates are stored as local time without zone.
func parseDate(s string) (time.Time, bool, error) {
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
			return wall, layout == dateOnly, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
}

// ParseFilter reads type, desc, start and end from the query string.
func ParseFilter(q url.Values) (Filter, error) {
	p := filterParams{
		Type:  strings.TrimSpace(q.Get("type")),
		Desc:  strings.TrimSpace(q.Get("desc")),
		Start: strings.TrimSpace(q.Get("start")),
		End:   strings.TrimSpace(q.Get("end")),
	}

	if err := getValidator().Struct(p); err != nil {
		return Filter{}, fmt.Errorf("%w: %s", ErrInvalidFilter, describe(err))
	}

	f := Filter{
		Type:        norm.NFC.String(p.Type),
		Description: norm.NFC.String(p.Desc),
	}
	if p.Start != "" {
		t, _, _ := parseDate(p.Start)
		f.Start = &t
	}
	if p.End != "" {
		t, dayOnly, _ := parseDate(p.End)
		if dayOnly {
			t = t.AddDate(0, 0, 1)
			f.EndExclusive = true
		}
		f.End = &t
	}
	if f.Start != nil && f.End != nil {
		if f.Start.After(*f.End) || (f.EndExclusive && f.Start.Equal(*f.End)) {
			return Filter{}, fmt.Errorf("%w: start must not be after end", ErrInvalidFilter)
		}
	}
	return f, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		name := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", name, fe.Param()))
		case "flexdate":
			msgs = append(msgs, fmt.Sprintf("%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", name))
		}
	}
	return strings.Join(msgs, "; ")
}

// likePattern wraps term in % after escaping LIKE metacharacters.
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}
