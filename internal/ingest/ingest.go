// Package ingest loads a city's delivery and weather tables and enriches
// each delivery with the latest prior weather observation and with weather
// and traffic labels.
package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/table"
)

// Stage names reported to the observer.
const (
	StageLoad          = "load"
	StageWeatherJoin   = "enrich_weather"
	StageTrafficLabels = "enrich_traffic"
)

// Column names used by the delivery table and the enriched output.
const (
	ColOrderID      = "order_id"
	ColAcceptTime   = "accept_time"
	ColDeliveryTime = "delivery_time"

	ColTimeWeather  = "time_weather"
	ColWeatherLabel = "weather_label"
	ColTrafficLabel = "traffic_label"
	ColCity         = "city"
	ColETATarget    = "eta_target"
)

// measurementColumns maps each observation field to its accepted column
// names, unit-suffixed export names first.
var measurementColumns = struct {
	humidity, cloudLow, cloudTotal, wind, precip, isDay []string
}{
	humidity:   []string{"relative_humidity_2m (%)", "relative_humidity_2m", "relative_humidity"},
	cloudLow:   []string{"cloud_cover_low (%)", "cloud_cover_low"},
	cloudTotal: []string{"cloud_cover (%)", "cloud_cover", "cloud_cover_total"},
	wind:       []string{"wind_speed_10m (km/h)", "wind_speed_10m", "wind_speed"},
	precip:     []string{"precipitation (mm)", "precipitation"},
	isDay:      []string{"is_day ()", "is_day"},
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithObserver sets the data-quality observer. The default discards events.
func WithObserver(o domain.Observer) Option {
	return func(in *Ingestor) { in.observer = o }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(in *Ingestor) { in.logger = l }
}

// Ingestor enriches one city's deliveries. It is not safe for concurrent use.
type Ingestor struct {
	delivery *table.Table
	weather  *table.Table

	weatherTimeCol string
	measureCols    map[string]string // observation field -> resolved column, absent when missing
	hasDeliveryCol bool

	observer domain.Observer
	logger   *slog.Logger

	weatherDone *Dataset
}

// Open checks that both files exist, loads them, and calls New.
func Open(deliveryPath, weatherPath string, opts ...Option) (*Ingestor, error) {
	delivery, err := readFile("delivery", deliveryPath)
	if err != nil {
		return nil, err
	}
	weather, err := readFile("weather", weatherPath)
	if err != nil {
		return nil, err
	}
	return New(delivery, weather, opts...)
}

func readFile(source, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.SourceNotFoundError{Source: source, Key: path, Err: err}
		}
		return nil, fmt.Errorf("open %s table: %w", source, err)
	}
	defer f.Close()

	t, err := table.ReadCSV(f)
	if err != nil {
		return nil, &domain.SourceNotFoundError{Source: source, Key: path, Err: err}
	}
	return t, nil
}

// New validates and normalizes the delivery and weather tables. It returns a
// *domain.SourceNotFoundError when a table is nil and a *domain.SchemaError
// when accept_time or every weather time candidate is missing.
func New(delivery, weather *table.Table, opts ...Option) (*Ingestor, error) {
	if delivery == nil {
		return nil, &domain.SourceNotFoundError{Source: "delivery"}
	}
	if weather == nil {
		return nil, &domain.SourceNotFoundError{Source: "weather"}
	}

	in := &Ingestor{
		observer: domain.NopObserver{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(in)
	}

	var err error
	if in.delivery, err = delivery.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize delivery table: %w", err)
	}
	if in.weather, err = weather.Normalize(); err != nil {
		return nil, fmt.Errorf("normalize weather table: %w", err)
	}

	if !in.delivery.Has(ColAcceptTime) {
		return nil, &domain.SchemaError{Table: "delivery", Column: ColAcceptTime}
	}
	in.hasDeliveryCol = in.delivery.Has(ColDeliveryTime)

	in.weatherTimeCol, err = domain.ResolveColumn("weather", in.weather.Columns(), domain.WeatherTimeCandidates)
	if err != nil {
		return nil, err
	}

	in.measureCols = make(map[string]string)
	for field, candidates := range map[string][]string{
		"humidity":   measurementColumns.humidity,
		"cloudLow":   measurementColumns.cloudLow,
		"cloudTotal": measurementColumns.cloudTotal,
		"wind":       measurementColumns.wind,
		"precip":     measurementColumns.precip,
		"isDay":      measurementColumns.isDay,
	} {
		if col, err := domain.ResolveColumn("weather", in.weather.Columns(), candidates); err == nil {
			in.measureCols[field] = col
		}
	}

	in.reportQuality()
	return in, nil
}

// reportQuality emits row and null counts for the loaded tables.
func (in *Ingestor) reportQuality() {
	in.observer.RowsIn(StageLoad, in.delivery.Len()+in.weather.Len())
	in.observer.NullValues(StageLoad, ColAcceptTime, countNull(domain.ParseTimestamps(in.delivery.Column(ColAcceptTime))))
	if in.hasDeliveryCol {
		in.observer.NullValues(StageLoad, ColDeliveryTime, countNull(domain.ParseTimestamps(in.delivery.Column(ColDeliveryTime))))
	}
	in.observer.NullValues(StageLoad, in.weatherTimeCol, countNull(domain.ParseTimestamps(in.weather.Column(in.weatherTimeCol))))

	in.logger.Info("loaded city tables",
		"delivery_rows", in.delivery.Len(),
		"delivery_columns", in.delivery.Columns(),
		"weather_rows", in.weather.Len(),
		"weather_columns", in.weather.Columns(),
		"weather_time_column", in.weatherTimeCol,
	)
	if !in.hasDeliveryCol {
		in.logger.Warn("delivery table has no delivery_time column; ETA targets will be empty")
	}
}

// WeatherTimeColumn returns the resolved weather time column name.
func (in *Ingestor) WeatherTimeColumn() string { return in.weatherTimeCol }

// EnrichWithWeather joins every delivery with a parseable acceptance time to
// the latest weather observation at or before it and labels the weather.
// Rows with unparseable times are dropped and reported to the observer.
func (in *Ingestor) EnrichWithWeather() Dataset {
	deliveries := in.deliveryRecords()
	observations := in.weatherRecords()

	acceptTimes := make([]time.Time, len(deliveries))
	for i, d := range deliveries {
		acceptTimes[i] = d.AcceptTime
	}
	obsTimes := make([]time.Time, len(observations))
	for i, w := range observations {
		obsTimes[i] = w.Time
	}

	matches := domain.AsofBackward(acceptTimes, obsTimes)

	records := make([]domain.EnrichedDelivery, len(deliveries))
	unmatched := 0
	for i, d := range deliveries {
		rec := domain.EnrichedDelivery{Delivery: d}
		var obs domain.WeatherObservation
		if j := matches[i]; j >= 0 {
			w := observations[j]
			w.Values = slices.Clone(w.Values)
			rec.Weather = &w
			obs = w.Observation
		} else {
			unmatched++
		}
		rec.WeatherLabel = domain.ClassifyWeather(obs)
		records[i] = rec
	}

	in.observer.RowsOut(StageWeatherJoin, len(records))
	in.observer.NullValues(StageWeatherJoin, ColTimeWeather, unmatched)
	in.logger.Info("weather join complete",
		"records", len(records),
		"with_weather", len(records)-unmatched,
		"without_weather", unmatched,
	)

	ds := in.dataset(records)
	in.weatherDone = &ds
	return ds.clone()
}

// EnrichWithTraffic labels the traffic of every weather-enriched delivery
// from its delivery time, running the weather join first if needed. Values
// that are not timestamps fall back to the month-day text pattern, then to
// Medium.
func (in *Ingestor) EnrichWithTraffic() Dataset {
	if in.weatherDone == nil {
		in.EnrichWithWeather()
	}
	ds := in.weatherDone.clone()
	in.observer.RowsIn(StageTrafficLabels, len(ds.Records))

	for i := range ds.Records {
		d := ds.Records[i].Delivery
		if d.DeliveryTime != nil {
			ds.Records[i].TrafficLabel = domain.ClassifyTraffic(*d.DeliveryTime)
		} else {
			ds.Records[i].TrafficLabel = domain.ClassifyTrafficText(d.RawDeliveryTime)
		}
	}

	in.observer.RowsOut(StageTrafficLabels, len(ds.Records))
	return ds
}

// deliveryRecords parses the delivery table, drops rows whose acceptance
// time does not parse, and sorts by acceptance time.
func (in *Ingestor) deliveryRecords() []domain.DeliveryRecord {
	rows := in.delivery.Rows()
	accept := in.delivery.Column(ColAcceptTime)
	orderIDs := in.delivery.Column(ColOrderID)
	var deliveryRaw []string
	if in.hasDeliveryCol {
		deliveryRaw = in.delivery.Column(ColDeliveryTime)
	}

	in.observer.RowsIn(StageWeatherJoin, len(rows))
	out := make([]domain.DeliveryRecord, 0, len(rows))
	for i, row := range rows {
		t, ok := domain.ParseTimestamp(accept[i])
		if !ok {
			continue
		}
		rec := domain.DeliveryRecord{AcceptTime: t, Values: row}
		if orderIDs != nil {
			rec.OrderID = orderIDs[i]
		}
		if deliveryRaw != nil {
			rec.RawDeliveryTime = deliveryRaw[i]
			if dt, ok := domain.ParseTimestamp(deliveryRaw[i]); ok {
				rec.DeliveryTime = &dt
			}
		}
		out = append(out, rec)
	}

	if dropped := len(rows) - len(out); dropped > 0 {
		w := domain.ParseWarning{Table: "delivery", Column: ColAcceptTime, Dropped: dropped}
		in.observer.RowsDropped(StageWeatherJoin, w)
		in.logger.Warn("dropped deliveries with unparseable acceptance time", "dropped", dropped)
	}

	slices.SortStableFunc(out, func(a, b domain.DeliveryRecord) int {
		return a.AcceptTime.Compare(b.AcceptTime)
	})
	return out
}

// weatherRecords parses the weather table, drops rows whose time does not
// parse, and sorts by time.
func (in *Ingestor) weatherRecords() []domain.WeatherRecord {
	rows := in.weather.Rows()
	times := in.weather.Column(in.weatherTimeCol)
	col := func(field string) []string {
		if name, ok := in.measureCols[field]; ok {
			return in.weather.Column(name)
		}
		return nil
	}
	humidity, cloudLow, cloudTotal := col("humidity"), col("cloudLow"), col("cloudTotal")
	wind, precip, isDay := col("wind"), col("precip"), col("isDay")

	out := make([]domain.WeatherRecord, 0, len(rows))
	for i, row := range rows {
		t, ok := domain.ParseTimestamp(times[i])
		if !ok {
			continue
		}
		obs := domain.WeatherObservation{
			RelativeHumidity: numberAt(humidity, i),
			CloudCoverLow:    numberAt(cloudLow, i),
			CloudCoverTotal:  numberAt(cloudTotal, i),
			WindSpeed:        numberAt(wind, i),
			Precipitation:    numberAt(precip, i),
			IsDay:            numberAt(isDay, i),
		}
		// Exports without a day/night column are treated as daytime.
		if isDay == nil {
			day := 1.0
			obs.IsDay = &day
		}
		out = append(out, domain.WeatherRecord{Time: t, Observation: obs, Values: row})
	}

	if dropped := len(rows) - len(out); dropped > 0 {
		w := domain.ParseWarning{Table: "weather", Column: in.weatherTimeCol, Dropped: dropped}
		in.observer.RowsDropped(StageWeatherJoin, w)
		in.logger.Warn("dropped weather rows with unparseable time", "dropped", dropped, "column", in.weatherTimeCol)
	}

	slices.SortStableFunc(out, func(a, b domain.WeatherRecord) int {
		return a.Time.Compare(b.Time)
	})
	return out
}

// numberAt parses column[i] as a float. Missing or non-numeric values are nil.
func numberAt(column []string, i int) *float64 {
	if column == nil {
		return nil
	}
	return domain.ParseNumber(column[i])
}

func countNull(ts []*time.Time) int {
	n := 0
	for _, t := range ts {
		if t == nil {
			n++
		}
	}
	return n
}

func (in *Ingestor) dataset(records []domain.EnrichedDelivery) Dataset {
	weatherCols := make([]string, 0, len(in.weather.Columns()))
	for _, c := range in.weather.Columns() {
		if c != in.weatherTimeCol {
			weatherCols = append(weatherCols, c)
		}
	}
	return Dataset{
		DeliveryColumns:   in.delivery.Columns(),
		WeatherColumns:    weatherCols,
		WeatherTimeColumn: in.weatherTimeCol,
		weatherHeader:     in.weather.Columns(),
		Records:           records,
	}
}
