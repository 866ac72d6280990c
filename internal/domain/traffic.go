package domain

import (
	"strings"
	"time"
)

// TrafficLabel is the synthesized traffic condition for a delivery.
type TrafficLabel string

const (
	TrafficLow    TrafficLabel = "Low"
	TrafficMedium TrafficLabel = "Medium"
	TrafficHigh   TrafficLabel = "High"
	TrafficJam    TrafficLabel = "Jam"
)

// TrafficLabels lists every label the traffic classifiers can return.
var TrafficLabels = []TrafficLabel{TrafficLow, TrafficMedium, TrafficHigh, TrafficJam}

// trafficTextLayout is the month-day clock pattern found in raw delivery
// logs that carry no year, e.g. "06-04 08:31:00".
const trafficTextLayout = "01-02 15:04:05"

const (
	morningPeakStart = 7 * time.Hour
	morningPeakEnd   = 9 * time.Hour
	eveningPeakStart = 17 * time.Hour
	eveningPeakEnd   = 19 * time.Hour
	nightStart       = 22 * time.Hour
	nightEnd         = 5 * time.Hour
)

// ClassifyTraffic buckets the time of day of t. Both ends of each window
// are inclusive.
func ClassifyTraffic(t time.Time) TrafficLabel {
	tod := timeOfDay(t)
	switch {
	case tod >= morningPeakStart && tod <= morningPeakEnd:
		return TrafficHigh
	case tod >= eveningPeakStart && tod <= eveningPeakEnd:
		return TrafficJam
	case tod >= nightStart || tod <= nightEnd:
		return TrafficLow
	default:
		return TrafficMedium
	}
}

// ClassifyTrafficText classifies a raw "MM-DD HH:MM:SS" value. Anything
// that does not match the pattern is Medium.
func ClassifyTrafficText(s string) TrafficLabel {
	t, err := time.Parse(trafficTextLayout, strings.TrimSpace(s))
	if err != nil {
		return TrafficMedium
	}
	return ClassifyTraffic(t)
}

// timeOfDay returns the wall-clock offset from midnight, nanoseconds included.
func timeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(t.Nanosecond())
}
