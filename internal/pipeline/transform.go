package pipeline

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/nexusdrive/delivery-etl/internal/align"
	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/ingest"
	"github.com/nexusdrive/delivery-etl/internal/observability"
	"github.com/nexusdrive/delivery-etl/internal/table"
)

// DeliveryTransformer implements Transformer with the ingest and align
// packages. It holds no per-run state.
type DeliveryTransformer struct {
	schemas align.Schemas
	maxRows int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewTransformer creates a DeliveryTransformer. maxRows > 0 caps the rows
// taken from each enriched city table during alignment.
func NewTransformer(schemas align.Schemas, maxRows int, metrics *observability.Metrics, logger *slog.Logger) *DeliveryTransformer {
	return &DeliveryTransformer{
		schemas: schemas,
		maxRows: maxRows,
		metrics: metrics,
		logger:  logger,
	}
}

// EnrichCity joins a city's deliveries to its weather log, labels weather
// and traffic, and returns the enriched table as CSV.
func (t *DeliveryTransformer) EnrichCity(city string, delivery, weather []byte) ([]byte, error) {
	logger := t.logger.With("city", city)

	deliveryTbl, err := readTable("delivery", city, delivery)
	if err != nil {
		return nil, err
	}
	weatherTbl, err := readTable("weather", city, weather)
	if err != nil {
		return nil, err
	}

	in, err := ingest.New(deliveryTbl, weatherTbl,
		ingest.WithObserver(observability.NewObserver(t.metrics, t.logger, "city", city)),
		ingest.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	enriched, err := in.EnrichWithTraffic().Table(city)
	if err != nil {
		return nil, fmt.Errorf("encode enriched table: %w", err)
	}

	var buf bytes.Buffer
	if err := enriched.WriteCSV(&buf); err != nil {
		return nil, err
	}
	logger.Info("enriched city", "rows", enriched.Len())
	return buf.Bytes(), nil
}

// Align stacks the enriched city tables, reconciles them with the external
// provider table, and returns the canonical records and their CSV encoding.
// A nil or empty external table is treated as having no rows.
func (t *DeliveryTransformer) Align(enriched [][]byte, external []byte) ([]domain.CanonicalDelivery, []byte, error) {
	var local *table.Table
	if len(enriched) > 0 {
		parts := make([]*table.Table, 0, len(enriched))
		for i, data := range enriched {
			tbl, err := table.ReadCSV(bytes.NewReader(data))
			if err != nil {
				return nil, nil, fmt.Errorf("read enriched table %d: %w", i, err)
			}
			if t.maxRows > 0 {
				if tbl, err = tbl.Head(t.maxRows); err != nil {
					return nil, nil, err
				}
			}
			parts = append(parts, tbl)
		}
		var err error
		if local, err = table.Concat(parts...); err != nil {
			return nil, nil, fmt.Errorf("combine enriched tables: %w", err)
		}
	}

	var externalTbl *table.Table
	if len(bytes.TrimSpace(external)) > 0 {
		var err error
		if externalTbl, err = table.ReadCSV(bytes.NewReader(external)); err != nil {
			return nil, nil, fmt.Errorf("read external table: %w", err)
		}
	}

	aligner := align.New(local, externalTbl,
		align.WithSchemas(t.schemas),
		align.WithObserver(observability.NewObserver(t.metrics, t.logger)),
		align.WithLogger(t.logger),
	)
	records, err := aligner.Align()
	if err != nil {
		return nil, nil, err
	}
	for _, r := range records {
		t.metrics.CanonicalRows.WithLabelValues(r.Source).Inc()
	}

	var buf bytes.Buffer
	if err := align.WriteCSV(&buf, records); err != nil {
		return nil, nil, err
	}
	return records, buf.Bytes(), nil
}

func readTable(source, city string, data []byte) (*table.Table, error) {
	tbl, err := table.ReadCSV(bytes.NewReader(data))
	if err != nil {
		return nil, &domain.SourceNotFoundError{Source: source, Key: city, Err: err}
	}
	return tbl, nil
}
