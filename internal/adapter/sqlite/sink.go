// Package sqlite stores canonical delivery records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// schema.sql creates the run and record tables.
//
//go:embed schema.sql
var schemaSQL string

// Sink writes each run's canonical records in one transaction. Records are
// keyed by run id and position, so duplicate order ids are kept.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	logger.Info("initialized sqlite sink", "path", path)
	return &Sink{db: db, logger: logger}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Sink) Name() string { return "sqlite" }

// LoadBatch stores records under runID. Loading the same run twice fails on
// the run's primary key and leaves the first load intact.
func (s *Sink) LoadBatch(ctx context.Context, runID string, records []domain.CanonicalDelivery) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback() //nolint:errcheck // original error wins
		}
	}()

	if _, err = tx.ExecContext(ctx, "INSERT INTO etl_runs (run_id, row_count) VALUES (?, ?)", runID, len(records)); err != nil {
		return fmt.Errorf("record run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO canonical_deliveries (
			run_id, seq, order_id, source, date, pickup_time, delivery_time,
			pickup_lat, pickup_lng, drop_lat, drop_lng, weather, traffic, eta_target
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		_, err = stmt.ExecContext(ctx,
			runID, i, r.OrderID, r.Source, nullString(&r.Date),
			nullTime(r.PickupTime), nullTime(r.DeliveryTime),
			nullFloat(r.PickupLat), nullFloat(r.PickupLng), nullFloat(r.DropLat), nullFloat(r.DropLng),
			nullString(r.Weather), nullString(r.Traffic), nullFloat(r.ETATarget),
		)
		if err != nil {
			return fmt.Errorf("insert record %d (%s): %w", i, r.OrderID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	s.logger.Debug("stored canonical records", "run_id", runID, "count", len(records))
	return nil
}

// Records returns the records stored for runID in load order.
func (s *Sink) Records(ctx context.Context, runID string) ([]domain.CanonicalDelivery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, source, date, pickup_time, delivery_time,
		       pickup_lat, pickup_lng, drop_lat, drop_lng, weather, traffic, eta_target
		FROM canonical_deliveries WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.CanonicalDelivery
	for rows.Next() {
		var (
			r                           domain.CanonicalDelivery
			date, pickup, delivery      sql.NullString
			weather, traffic            sql.NullString
			pLat, pLng, dLat, dLng, eta sql.NullFloat64
		)
		if err := rows.Scan(&r.OrderID, &r.Source, &date, &pickup, &delivery,
			&pLat, &pLng, &dLat, &dLng, &weather, &traffic, &eta); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Date = date.String
		r.PickupTime, r.DeliveryTime = parseTime(pickup), parseTime(delivery)
		r.PickupLat, r.PickupLng = floatPtr(pLat), floatPtr(pLng)
		r.DropLat, r.DropLng = floatPtr(dLat), floatPtr(dLng)
		r.Weather, r.Traffic = stringPtr(weather), stringPtr(traffic)
		r.ETATarget = floatPtr(eta)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CheckReadiness pings the database.
func (s *Sink) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Sink) Close() error {
	return s.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
