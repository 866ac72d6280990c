package observability

import (
	"log/slog"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// Observer reports data-quality events as metrics and log lines. It
// implements domain.Observer.
type Observer struct {
	metrics *Metrics
	logger  *slog.Logger
}

// NewObserver returns an Observer. Extra attributes, such as the city, are
// attached to every log line.
func NewObserver(m *Metrics, logger *slog.Logger, attrs ...any) *Observer {
	return &Observer{metrics: m, logger: logger.With(attrs...)}
}

func (o *Observer) RowsIn(stage string, n int) {
	o.metrics.RowsIn.WithLabelValues(stage).Add(float64(n))
}

func (o *Observer) RowsOut(stage string, n int) {
	o.metrics.RowsOut.WithLabelValues(stage).Add(float64(n))
}

func (o *Observer) RowsDropped(stage string, w domain.ParseWarning) {
	if w.Dropped == 0 {
		return
	}
	o.metrics.RowsDropped.WithLabelValues(w.Table, w.Column).Add(float64(w.Dropped))
	o.logger.Warn("dropped rows with unparseable timestamps",
		"stage", stage, "table", w.Table, "column", w.Column, "dropped", w.Dropped)
}

func (o *Observer) NullValues(stage, column string, n int) {
	if n == 0 {
		return
	}
	o.metrics.NullValues.WithLabelValues(stage, column).Add(float64(n))
	o.logger.Debug("null values", "stage", stage, "column", column, "count", n)
}
