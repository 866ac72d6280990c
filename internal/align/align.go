// Package align reshapes the enriched local delivery table and the external
// provider table into the canonical delivery schema and concatenates them.
package align

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/table"
)

// StageAlign is the stage name reported to the observer.
const StageAlign = "align"

// CanonicalColumns is the header of the canonical output, in order.
var CanonicalColumns = []string{
	"order_id", "Date", "pickup_time", "delivery_time",
	"pickup_lat", "pickup_lng", "drop_lat", "drop_lng",
	"weather", "traffic", "ETA_target",
}

// Option configures an Aligner.
type Option func(*Aligner)

// WithSchemas replaces the built-in source mappings.
func WithSchemas(s Schemas) Option {
	return func(a *Aligner) { a.schemas = s }
}

// WithObserver sets the data-quality observer.
func WithObserver(o domain.Observer) Option {
	return func(a *Aligner) { a.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Aligner) { a.logger = l }
}

// Aligner reconciles the local and external tables.
type Aligner struct {
	local    *table.Table
	external *table.Table
	schemas  Schemas
	observer domain.Observer
	logger   *slog.Logger
}

// New creates an Aligner. A nil table is treated as empty.
func New(local, external *table.Table, opts ...Option) *Aligner {
	a := &Aligner{
		local:    local,
		external: external,
		schemas:  DefaultSchemas(),
		observer: domain.NopObserver{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// TransformDelivery reshapes the enriched local table.
func (a *Aligner) TransformDelivery() ([]domain.CanonicalDelivery, error) {
	return a.transform(a.local, a.schemas.Local)
}

// TransformExternal reshapes the external provider table.
func (a *Aligner) TransformExternal() ([]domain.CanonicalDelivery, error) {
	return a.transform(a.external, a.schemas.External)
}

// Align transforms both sources and returns local records followed by
// external records. Order ids are not deduplicated across sources.
func (a *Aligner) Align() ([]domain.CanonicalDelivery, error) {
	local, err := a.TransformDelivery()
	if err != nil {
		return nil, err
	}
	external, err := a.TransformExternal()
	if err != nil {
		return nil, err
	}

	a.logger.Info("aligning sources", "local_rows", len(local), "external_rows", len(external))
	a.observer.RowsOut(StageAlign, len(local)+len(external))
	switch {
	case len(local) == 0 && len(external) == 0:
		a.logger.Warn("both sources are empty")
		return []domain.CanonicalDelivery{}, nil
	case len(local) == 0:
		a.logger.Warn("local source is empty, returning external rows only")
		return external, nil
	case len(external) == 0:
		a.logger.Warn("external source is empty, returning local rows only")
		return local, nil
	}

	out := make([]domain.CanonicalDelivery, 0, len(local)+len(external))
	out = append(out, local...)
	out = append(out, external...)
	return out, nil
}

func (a *Aligner) transform(t *table.Table, schema SourceSchema) ([]domain.CanonicalDelivery, error) {
	if t == nil || t.Len() == 0 {
		a.logger.Warn("source table is empty", "source", schema.Name)
		return []domain.CanonicalDelivery{}, nil
	}
	recs, err := Transform(t, schema)
	if err != nil {
		return nil, err
	}

	stage := StageAlign + "_" + schema.Name
	a.observer.RowsIn(stage, t.Len())
	a.observer.RowsOut(stage, len(recs))
	pickupNull, etaNull := 0, 0
	for _, r := range recs {
		if r.PickupTime == nil {
			pickupNull++
		}
		if r.ETATarget == nil {
			etaNull++
		}
	}
	a.observer.NullValues(stage, "pickup_time", pickupNull)
	a.observer.NullValues(stage, "ETA_target", etaNull)
	a.logger.Info("transformed source", "source", schema.Name, "rows", len(recs), "null_pickup", pickupNull, "null_eta", etaNull)
	return recs, nil
}

// Transform reshapes t according to schema. Column names are normalized
// first. Unparseable timestamps and coordinates become nulls. It returns a
// *domain.SchemaError when the order id or pickup column is absent.
func Transform(t *table.Table, schema SourceSchema) ([]domain.CanonicalDelivery, error) {
	norm, err := t.Normalize()
	if err != nil {
		return nil, fmt.Errorf("normalize %s table: %w", schema.Name, err)
	}
	for _, c := range schema.requiredColumns() {
		if !norm.Has(c) {
			return nil, &domain.SchemaError{Table: schema.Name, Column: c}
		}
	}

	cols := newColumnSet(norm)
	orderIDs := cols.get(schema.OrderID)
	dates := cols.get(schema.DateColumn)

	out := make([]domain.CanonicalDelivery, norm.Len())
	for i := range out {
		pickup := resolvePickup(cols, schema.Pickup, i)
		delivery := resolveDelivery(cols, schema.Delivery, pickup, i)

		rec := domain.CanonicalDelivery{
			OrderID:      orderIDs[i],
			PickupTime:   pickup,
			DeliveryTime: delivery,
			PickupLat:    cols.firstNumber(schema.PickupLat, i),
			PickupLng:    cols.firstNumber(schema.PickupLng, i),
			DropLat:      cols.firstNumber(schema.DropLat, i),
			DropLng:      cols.firstNumber(schema.DropLng, i),
			Weather:      cols.firstText(schema.Weather, i),
			Traffic:      cols.firstText(schema.Traffic, i),
			ETATarget:    domain.ComputeETA(pickup, delivery),
			Source:       schema.Name,
		}
		switch {
		case dates != nil:
			rec.Date = dates[i]
		case pickup != nil:
			rec.Date = pickup.Format("2006-01-02")
		}
		out[i] = rec
	}
	return out, nil
}

func resolvePickup(cols columnSet, rule TimeRule, i int) *time.Time {
	switch {
	case rule.Column != "":
		return cols.timestamp(rule.Column, i)
	case rule.DateColumn != "":
		date := strings.TrimSpace(cols.value(rule.DateColumn, i))
		if date == "" {
			return nil
		}
		clock := strings.TrimSpace(cols.value(rule.ClockColumn, i))
		if table.IsMissing(clock) {
			clock = rule.DefaultClock
		}
		if t, ok := domain.ParseTimestamp(strings.TrimSpace(date + " " + clock)); ok {
			return &t
		}
	}
	return nil
}

func resolveDelivery(cols columnSet, rule TimeRule, pickup *time.Time, i int) *time.Time {
	switch {
	case rule.Column != "":
		return cols.timestamp(rule.Column, i)
	case rule.DateColumn != "":
		return resolvePickup(cols, rule, i)
	case rule.OffsetMinutesColumn != "":
		mins := domain.ParseNumber(cols.value(rule.OffsetMinutesColumn, i))
		if pickup == nil || mins == nil {
			return nil
		}
		// Offsets that do not fit a time.Duration are treated as unparseable.
		offset := *mins * float64(time.Minute)
		if offset >= math.MaxInt64 || offset <= math.MinInt64 {
			return nil
		}
		d := pickup.Add(time.Duration(offset))
		return &d
	}
	return nil
}

// columnSet caches normalized columns of one table.
type columnSet struct {
	t     *table.Table
	cache map[string][]string
}

func newColumnSet(t *table.Table) columnSet {
	return columnSet{t: t, cache: map[string][]string{}}
}

// get returns the column or nil when name is empty or absent.
func (c columnSet) get(name string) []string {
	if name == "" {
		return nil
	}
	name = domain.NormalizeColumnName(name)
	if col, ok := c.cache[name]; ok {
		return col
	}
	col := c.t.Column(name)
	c.cache[name] = col
	return col
}

func (c columnSet) value(name string, i int) string {
	col := c.get(name)
	if col == nil {
		return ""
	}
	return col[i]
}

func (c columnSet) timestamp(name string, i int) *time.Time {
	if t, ok := domain.ParseTimestamp(c.value(name, i)); ok {
		return &t
	}
	return nil
}

func (c columnSet) firstNumber(names []string, i int) *float64 {
	for _, n := range names {
		if v := domain.ParseNumber(c.value(n, i)); v != nil {
			return v
		}
	}
	return nil
}

// firstText returns the first non-missing value verbatim.
func (c columnSet) firstText(names []string, i int) *string {
	for _, n := range names {
		v := c.value(n, i)
		if !table.IsMissing(v) {
			return &v
		}
	}
	return nil
}

// Table encodes records with the canonical header.
func Table(records []domain.CanonicalDelivery) (*table.Table, error) {
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			r.OrderID,
			r.Date,
			formatTime(r.PickupTime),
			formatTime(r.DeliveryTime),
			formatFloat(r.PickupLat),
			formatFloat(r.PickupLng),
			formatFloat(r.DropLat),
			formatFloat(r.DropLng),
			formatText(r.Weather),
			formatText(r.Traffic),
			formatFloat(r.ETATarget),
		}
	}
	return table.New(CanonicalColumns, rows)
}

// WriteCSV writes records as canonical CSV. Nulls are empty cells.
func WriteCSV(w io.Writer, records []domain.CanonicalDelivery) error {
	t, err := Table(records)
	if err != nil {
		return fmt.Errorf("encode canonical table: %w", err)
	}
	return t.WriteCSV(w)
}

// ReadCSV decodes a canonical CSV produced by WriteCSV.
func ReadCSV(r io.Reader) ([]domain.CanonicalDelivery, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read canonical header: %w", err)
	}
	if strings.Join(header, ",") != strings.Join(CanonicalColumns, ",") {
		return nil, &domain.SchemaError{Table: "canonical", Candidates: CanonicalColumns}
	}
	var out []domain.CanonicalDelivery
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read canonical row: %w", err)
		}
		rec := domain.CanonicalDelivery{OrderID: row[0], Date: row[1]}
		if t, ok := domain.ParseTimestamp(row[2]); ok {
			rec.PickupTime = &t
		}
		if t, ok := domain.ParseTimestamp(row[3]); ok {
			rec.DeliveryTime = &t
		}
		rec.PickupLat, rec.PickupLng = domain.ParseNumber(row[4]), domain.ParseNumber(row[5])
		rec.DropLat, rec.DropLng = domain.ParseNumber(row[6]), domain.ParseNumber(row[7])
		if row[8] != "" {
			rec.Weather = &row[8]
		}
		if row[9] != "" {
			rec.Traffic = &row[9]
		}
		rec.ETATarget = domain.ParseNumber(row[10])
		out = append(out, rec)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return domain.FormatTimestamp(*t)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
