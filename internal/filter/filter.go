// Package filter applies the uniform query predicate every view uses
// before aggregation. All dimensions are optional and AND-combined; an
// empty value places no restriction on its dimension.
package filter

import (
	"strings"
	"time"

	"mesdash/internal/models"
)

const dayLayout = "2006-01-02"

// Apply returns the records satisfying every populated dimension of spec.
// An empty spec returns the input unchanged in value and cardinality.
func Apply(records []models.TestRecord, spec models.FilterSpec) []models.TestRecord {
	start, hasStart := parseDay(spec.StartDate)
	end, hasEnd := parseDay(spec.EndDate)
	if hasEnd {
		// Inclusive range: extend the end to the last millisecond of the day.
		end = end.Add(24*time.Hour - time.Millisecond)
	}

	out := make([]models.TestRecord, 0, len(records))
	for _, r := range records {
		if hasStart || hasEnd {
			ts, ok := recordTime(r)
			if !ok {
				continue
			}
			if hasStart && ts.Before(start) {
				continue
			}
			if hasEnd && ts.After(end) {
				continue
			}
		}
		if spec.Result != "" && !strings.EqualFold(r.Result, spec.Result) {
			continue
		}
		if !containsFold(r.SerialNumber, spec.SerialNumber) {
			continue
		}
		if !containsFold(r.WorkOrder, spec.WorkOrder) {
			continue
		}
		if spec.Station != "" && r.Station != spec.Station {
			continue
		}
		if spec.Model != "" && r.Model != spec.Model {
			continue
		}
		out = append(out, r)
	}
	return out
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(dayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// recordTime rebuilds a record's timestamp from its normalized date and
// clock fields. Records with no parseable date cannot be placed in a range.
func recordTime(r models.TestRecord) (time.Time, bool) {
	if r.Date == "" {
		return time.Time{}, false
	}
	clock := r.Time
	if clock == "" {
		clock = "00:00:00"
	}
	t, err := time.ParseInLocation(dayLayout+" 15:04:05", r.Date+" "+clock, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
