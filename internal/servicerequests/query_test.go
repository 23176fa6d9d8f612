package servicerequests

import (
	"strings"
	"testing"
	"time"
)

func TestBuildFeatureQuery_NoFilters(t *testing.T) {
	sql, args := BuildFeatureQuery(Filter{})
	if len(args) != 0 {
		t.Errorf("expected no args, got %v", args)
	}
	if !strings.Contains(sql, "loc.latitude <> 0 AND loc.longitude <> 0") {
		t.Error("query must exclude zero coordinates")
	}
	if strings.Contains(sql, "LIKE") || strings.Contains(sql, "request_date >=") {
		t.Errorf("unexpected filter clause in %s", sql)
	}
}

func TestBuildFeatureQuery_AllFilters(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 21, 0, 0, 0, 0, time.UTC)
	sql, args := BuildFeatureQuery(Filter{
		Type:         "pothole",
		Description:  "kapiolani",
		Start:        &start,
		End:          &end,
		EndExclusive: true,
	})

	for _, frag := range []string{
		"LOWER(sr.request_type) LIKE LOWER(?)",
		"LOWER(sr.description) LIKE LOWER(?)",
		"sr.request_date >= ?",
		"sr.request_date < ?",
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("expected %q in query", frag)
		}
	}
	if strings.Count(sql, "?") != len(args) {
		t.Errorf("placeholder count %d != args %d", strings.Count(sql, "?"), len(args))
	}
	if args[0] != "%pothole%" || args[1] != "%kapiolani%" {
		t.Errorf("unexpected LIKE args: %v", args[:2])
	}
	if args[2].(time.Time) != start || args[3].(time.Time) != end {
		t.Errorf("unexpected date args: %v", args[2:])
	}
}

func TestBuildFeatureQuery_InclusiveEnd(t *testing.T) {
	end := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	sql, _ := BuildFeatureQuery(Filter{End: &end})
	if !strings.Contains(sql, "sr.request_date <= ?") {
		t.Errorf("expected inclusive end in %s", sql)
	}
}
