package observability

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// ETASummary describes the ETA targets of one canonical dataset, in minutes.
// Records without an ETA are counted in Missing and otherwise ignored.
type ETASummary struct {
	Count   int     `json:"count"`
	Missing int     `json:"missing"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"stddev"`
	P50     float64 `json:"p50"`
	P90     float64 `json:"p90"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// SummarizeETA computes the ETA distribution of records.
func SummarizeETA(records []domain.CanonicalDelivery) ETASummary {
	var s ETASummary
	xs := make([]float64, 0, len(records))
	for _, r := range records {
		if r.ETATarget == nil {
			s.Missing++
			continue
		}
		xs = append(xs, *r.ETATarget)
	}
	s.Count = len(xs)
	if s.Count == 0 {
		return s
	}

	slices.Sort(xs)
	s.Mean, s.StdDev = stat.MeanStdDev(xs, nil)
	if math.IsNaN(s.StdDev) {
		s.StdDev = 0
	}
	s.P50 = stat.Quantile(0.5, stat.Empirical, xs, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, xs, nil)
	s.Min, s.Max = xs[0], xs[len(xs)-1]
	return s
}

// Record publishes the summary on the ETA gauges.
func (s ETASummary) Record(m *Metrics) {
	for name, v := range map[string]float64{
		"mean": s.Mean, "stddev": s.StdDev,
		"p50": s.P50, "p90": s.P90,
		"min": s.Min, "max": s.Max,
		"count": float64(s.Count), "missing": float64(s.Missing),
	} {
		m.ETA.WithLabelValues(name).Set(v)
	}
}
