package ingest

import (
	"slices"
	"strconv"

	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/table"
)

// Dataset is the result of an enrichment step: the enriched records plus
// the headers needed to encode them back into a table.
type Dataset struct {
	DeliveryColumns   []string
	WeatherColumns    []string // weather header without the time column
	WeatherTimeColumn string
	Records           []domain.EnrichedDelivery

	weatherHeader []string
}

// clone deep-copies the dataset so callers never share records with the
// ingestor's cached state.
func (d Dataset) clone() Dataset {
	out := Dataset{
		DeliveryColumns:   slices.Clone(d.DeliveryColumns),
		WeatherColumns:    slices.Clone(d.WeatherColumns),
		WeatherTimeColumn: d.WeatherTimeColumn,
		weatherHeader:     slices.Clone(d.weatherHeader),
		Records:           make([]domain.EnrichedDelivery, len(d.Records)),
	}
	for i, r := range d.Records {
		r.Delivery.Values = slices.Clone(r.Delivery.Values)
		if r.Weather != nil {
			w := *r.Weather
			w.Values = slices.Clone(w.Values)
			r.Weather = &w
		}
		out.Records[i] = r
	}
	return out
}

// derivedColumns are appended by Table and replace any delivery or weather
// column of the same name.
var derivedColumns = []string{ColTimeWeather, ColWeatherLabel, ColTrafficLabel, ColCity, ColETATarget}

// Table encodes the dataset as one row per record: delivery columns, weather
// columns, then time_weather, weather_label, traffic_label, city and
// eta_target. Weather columns that collide with a delivery column get a
// "_weather" suffix. Parsed timestamps are written in canonical form.
func (d Dataset) Table(city string) (*table.Table, error) {
	var header []string
	var deliveryIdx []int
	for i, c := range d.DeliveryColumns {
		if slices.Contains(derivedColumns, c) {
			continue
		}
		header = append(header, c)
		deliveryIdx = append(deliveryIdx, i)
	}

	var weatherIdx []int
	for _, c := range d.WeatherColumns {
		if slices.Contains(derivedColumns, c) {
			continue
		}
		name := c
		if slices.Contains(header, name) {
			name += "_weather"
		}
		header = append(header, name)
		weatherIdx = append(weatherIdx, slices.Index(d.weatherHeader, c))
	}
	header = append(header, derivedColumns...)

	acceptIdx := slices.Index(d.DeliveryColumns, ColAcceptTime)
	deliveryTimeIdx := slices.Index(d.DeliveryColumns, ColDeliveryTime)

	rows := make([][]string, len(d.Records))
	for i, r := range d.Records {
		row := make([]string, 0, len(header))
		for _, j := range deliveryIdx {
			v := r.Delivery.Values[j]
			switch j {
			case acceptIdx:
				v = domain.FormatTimestamp(r.Delivery.AcceptTime)
			case deliveryTimeIdx:
				v = ""
				if r.Delivery.DeliveryTime != nil {
					v = domain.FormatTimestamp(*r.Delivery.DeliveryTime)
				}
			}
			row = append(row, v)
		}

		weatherTime := ""
		for _, j := range weatherIdx {
			v := ""
			if r.Weather != nil {
				v = r.Weather.Values[j]
			}
			row = append(row, v)
		}
		if r.Weather != nil {
			weatherTime = domain.FormatTimestamp(r.Weather.Time)
		}

		eta := ""
		if m := r.ETAMinutes(); m != nil {
			eta = strconv.FormatFloat(*m, 'f', -1, 64)
		}
		row = append(row, weatherTime, string(r.WeatherLabel), string(r.TrafficLabel), city, eta)
		rows[i] = row
	}
	return table.New(header, rows)
}
