package domain

import (
	"slices"
	"strings"
	"time"
)

// WeatherTimeCandidates lists accepted names for the weather time column in
// priority order.
var WeatherTimeCandidates = []string{"time_weather", "timestamp", "datetime", "time", "weather_time"}

// timestampLayouts are tried in order. Naive layouts are interpreted as UTC.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

// NormalizeColumnName strips a byte order mark, trims whitespace, and
// lowercases name. Applying it twice yields the same result.
func NormalizeColumnName(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.TrimSpace(name))
}

// ResolveColumn returns the first candidate present in columns. Both sides
// are compared after normalization. It returns a *SchemaError naming the
// table when nothing matches.
func ResolveColumn(table string, columns, candidates []string) (string, error) {
	normalized := make([]string, len(columns))
	for i, c := range columns {
		normalized[i] = NormalizeColumnName(c)
	}
	for _, c := range candidates {
		c = NormalizeColumnName(c)
		if slices.Contains(normalized, c) {
			return c, nil
		}
	}
	return "", &SchemaError{Table: table, Candidates: slices.Clone(candidates)}
}

// ParseTimestamp parses s using the accepted layouts. The boolean is false
// for empty or unrecognized input.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseTimestamps parses every value. Unparseable values become nil rather
// than an error.
func ParseTimestamps(values []string) []*time.Time {
	out := make([]*time.Time, len(values))
	for i, v := range values {
		if t, ok := ParseTimestamp(v); ok {
			out[i] = &t
		}
	}
	return out
}

// Output layouts. Values at UTC are written naive; any other offset is kept
// so the instant survives a round trip through ParseTimestamp.
const (
	outputLayout       = "2006-01-02 15:04:05"
	outputOffsetLayout = "2006-01-02 15:04:05Z07:00"
)

// FormatTimestamp renders t in the layout used for CSV output.
func FormatTimestamp(t time.Time) string {
	if _, offset := t.Zone(); offset != 0 {
		return t.Format(outputOffsetLayout)
	}
	return t.Format(outputLayout)
}
