package align

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// TimeRule describes how a canonical timestamp is derived from source
// columns. Exactly one form is used, checked in this order:
//
//   - Column: parse a single timestamp column.
//   - DateColumn (+ ClockColumn): join a date and a time of day, using
//     DefaultClock when the time of day is missing.
//   - OffsetMinutesColumn: add that many minutes to the pickup time.
type TimeRule struct {
	Column              string `yaml:"column,omitempty"`
	DateColumn          string `yaml:"date_column,omitempty"`
	ClockColumn         string `yaml:"clock_column,omitempty"`
	DefaultClock        string `yaml:"default_clock,omitempty"`
	OffsetMinutesColumn string `yaml:"offset_minutes_column,omitempty"`
}

// SourceSchema maps one source's columns onto the canonical record. Field
// lists are fallbacks: the first non-missing value wins. An empty list means
// the canonical field is always null for this source. Column names are
// compared after normalization.
type SourceSchema struct {
	Name string `yaml:"name"`

	OrderID string `yaml:"order_id"`

	// DateColumn is copied verbatim; when empty the date is taken from the
	// pickup time.
	DateColumn string `yaml:"date_column,omitempty"`

	Pickup   TimeRule `yaml:"pickup"`
	Delivery TimeRule `yaml:"delivery"`

	PickupLat []string `yaml:"pickup_lat,omitempty"`
	PickupLng []string `yaml:"pickup_lng,omitempty"`
	DropLat   []string `yaml:"drop_lat,omitempty"`
	DropLng   []string `yaml:"drop_lng,omitempty"`
	Weather   []string `yaml:"weather,omitempty"`
	Traffic   []string `yaml:"traffic,omitempty"`
}

// LocalSchema reads enriched per-city delivery tables.
var LocalSchema = SourceSchema{
	Name:      "local",
	OrderID:   "order_id",
	Pickup:    TimeRule{Column: "accept_time"},
	Delivery:  TimeRule{Column: "delivery_time"},
	PickupLat: []string{"accept_gps_lat", "lat"},
	PickupLng: []string{"accept_gps_lng", "lng"},
	DropLat:   []string{"delivery_gps_lat"},
	DropLng:   []string{"delivery_gps_lng"},
	Weather:   []string{"weather_label"},
	Traffic:   []string{"traffic_label"},
}

// ExternalSchema reads the external provider's delivery table.
var ExternalSchema = SourceSchema{
	Name:       "external",
	OrderID:    "order_id",
	DateColumn: "order_date",
	Pickup:     TimeRule{DateColumn: "order_date", ClockColumn: "order_time", DefaultClock: "00:00:00"},
	Delivery:   TimeRule{OffsetMinutesColumn: "delivery_time"},
	PickupLat:  []string{"store_latitude"},
	PickupLng:  []string{"store_longitude"},
	DropLat:    []string{"drop_latitude"},
	DropLng:    []string{"drop_longitude"},
	Traffic:    []string{"traffic"},
}

// Schemas pairs the two source mappings used by an Aligner.
type Schemas struct {
	Local    SourceSchema `yaml:"local"`
	External SourceSchema `yaml:"external"`
}

// DefaultSchemas returns the built-in mappings.
func DefaultSchemas() Schemas {
	return Schemas{Local: LocalSchema, External: ExternalSchema}
}

// LoadSchemas decodes mappings from YAML. Sections left out of the document
// keep their built-in defaults.
func LoadSchemas(r io.Reader) (Schemas, error) {
	s := DefaultSchemas()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && err != io.EOF {
		return Schemas{}, fmt.Errorf("decode schema mapping: %w", err)
	}
	for _, sc := range []SourceSchema{s.Local, s.External} {
		if err := sc.validate(); err != nil {
			return Schemas{}, err
		}
	}
	return s, nil
}

// LoadSchemaFile reads mappings from path.
func LoadSchemaFile(path string) (Schemas, error) {
	f, err := os.Open(path)
	if err != nil {
		return Schemas{}, fmt.Errorf("open schema mapping: %w", err)
	}
	defer f.Close()
	return LoadSchemas(f)
}

func (s SourceSchema) validate() error {
	if s.Name == "" {
		return fmt.Errorf("schema mapping: name is required")
	}
	if s.OrderID == "" {
		return fmt.Errorf("schema mapping %q: order_id is required", s.Name)
	}
	if s.Pickup.Column == "" && s.Pickup.DateColumn == "" {
		return fmt.Errorf("schema mapping %q: pickup needs column or date_column", s.Name)
	}
	if s.Pickup.OffsetMinutesColumn != "" {
		return fmt.Errorf("schema mapping %q: pickup cannot be an offset of itself", s.Name)
	}
	return nil
}

// requiredColumns lists columns whose absence makes the table unusable.
func (s SourceSchema) requiredColumns() []string {
	cols := []string{s.OrderID}
	switch {
	case s.Pickup.Column != "":
		cols = append(cols, s.Pickup.Column)
	case s.Pickup.DateColumn != "":
		cols = append(cols, s.Pickup.DateColumn)
	}
	for i, c := range cols {
		cols[i] = domain.NormalizeColumnName(c)
	}
	return cols
}
