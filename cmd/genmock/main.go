// Command genmock writes a deterministic synthetic data set in the layout the
// ETL reads: per-city delivery logs, hourly weather logs and an external
// provider table. It runs the generated tables through the ingest package
// and prints the resulting label distribution so fixtures can be checked
// against real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out data -cities jl,yt,hz,cq,sh -rows 500 -seed 42
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/ingest"
	"github.com/nexusdrive/delivery-etl/internal/table"
)

var baseDate = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

// Object keys relative to -out, matching the service defaults.
const (
	deliveryKey = "Pickup_and_delivery_data/delivery/delivery_{city}.csv"
	weatherKey  = "Pickup_and_delivery_data/weather/{city}_weather.csv"
	externalKey = "amazon_delivery.csv"
)

// days of history generated per city.
const days = 7

var cityCenters = map[string][2]float64{
	"jl": {43.88, 125.32},
	"yt": {37.46, 121.45},
	"hz": {30.27, 120.15},
	"cq": {29.56, 106.55},
	"sh": {31.23, 121.47},
}

var deliveryHeader = []string{
	"order_id", "region_id", "city", "courier_id", "lng", "lat", "aoi_id", "aoi_type",
	"accept_time", "accept_gps_time", "accept_gps_lng", "accept_gps_lat",
	"delivery_time", "delivery_gps_time", "delivery_gps_lng", "delivery_gps_lat", "ds",
}

var weatherHeader = []string{
	"time", "temperature_2m (°C)", "relative_humidity_2m (%)", "precipitation (mm)",
	"cloud_cover (%)", "cloud_cover_low (%)", "wind_speed_10m (km/h)", "is_day ()",
}

var externalHeader = []string{
	"Order_ID", "Agent_Age", "Agent_Rating", "Store_Latitude", "Store_Longitude",
	"Drop_Latitude", "Drop_Longitude", "Order_Date", "Order_Time", "Pickup_Time",
	"Weather", "Traffic", "Vehicle", "Area", "Delivery_Time", "Category",
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("genmock", flag.ContinueOnError)
	out := fs.String("out", "data", "output directory")
	cities := fs.String("cities", "jl,yt,hz,cq,sh", "comma-separated city codes")
	rows := fs.Int("rows", 500, "deliveries per city and external rows")
	seed := fs.Uint64("seed", 42, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rows <= 0 {
		return fmt.Errorf("-rows must be positive, got %d", *rows)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))

	for _, city := range strings.Split(*cities, ",") {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		delivery, err := deliveryTable(rng, city, *rows)
		if err != nil {
			return err
		}
		weather, err := weatherTable(rng)
		if err != nil {
			return err
		}
		if err := writeTable(*out, strings.ReplaceAll(deliveryKey, "{city}", city), delivery); err != nil {
			return err
		}
		if err := writeTable(*out, strings.ReplaceAll(weatherKey, "{city}", city), weather); err != nil {
			return err
		}
		if err := printStats(stdout, city, delivery, weather); err != nil {
			return fmt.Errorf("%s: %w", city, err)
		}
	}

	external, err := externalTable(rng, *rows)
	if err != nil {
		return err
	}
	if err := writeTable(*out, externalKey, external); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "external: %d records\n", external.Len())
	return nil
}

func deliveryTable(rng *rand.Rand, city string, n int) (*table.Table, error) {
	center, ok := cityCenters[city]
	if !ok {
		center = [2]float64{30 + rng.Float64()*10, 110 + rng.Float64()*10}
	}
	rows := make([][]string, n)
	for i := range rows {
		accept := baseDate.Add(time.Duration(rng.IntN(days*24*60)) * time.Minute)
		lat := center[0] + jitter(rng, 0.1)
		lng := center[1] + jitter(rng, 0.1)

		acceptText := domain.FormatTimestamp(accept)
		// A small share of rows carry defects the ingestor must tolerate.
		switch rng.IntN(50) {
		case 0:
			acceptText = "not-a-time"
		case 1:
			acceptText = accept.Format("01-02 15:04:05")
		}

		deliveryText, deliveryLat, deliveryLng := "", "", ""
		if rng.IntN(40) != 0 {
			deliveryText = domain.FormatTimestamp(accept.Add(time.Duration(10+rng.IntN(170)) * time.Minute))
			deliveryLat = coord(lat + jitter(rng, 0.05))
			deliveryLng = coord(lng + jitter(rng, 0.05))
		}
		acceptLat, acceptLng := coord(lat+jitter(rng, 0.001)), coord(lng+jitter(rng, 0.001))
		if rng.IntN(20) == 0 {
			acceptLat, acceptLng = "", ""
		}

		rows[i] = []string{
			fmt.Sprintf("%s%06d", strings.ToUpper(city), i+1),
			strconv.Itoa(1 + rng.IntN(30)),
			city,
			strconv.Itoa(1000 + rng.IntN(500)),
			coord(lng), coord(lat),
			strconv.Itoa(rng.IntN(10000)),
			strconv.Itoa(1 + rng.IntN(15)),
			acceptText, acceptText, acceptLng, acceptLat,
			deliveryText, deliveryText, deliveryLng, deliveryLat,
			accept.Format("0102"),
		}
	}
	return table.New(deliveryHeader, rows)
}

// weatherTable emits one observation per hour. Each hour draws a regime so
// every weather label appears in a run of any reasonable size.
func weatherTable(rng *rand.Rand) (*table.Table, error) {
	hours := days*24 + 1
	rows := make([][]string, hours)
	for h := range rows {
		t := baseDate.Add(time.Duration(h) * time.Hour)
		var humidity, cloud, cloudLow, wind, precip float64
		switch rng.IntN(6) {
		case 0: // fog
			humidity, cloudLow, cloud, wind, precip = 92+rng.Float64()*8, 85+rng.Float64()*15, 90, rng.Float64()*1.5, 0
		case 1: // storm
			humidity, cloudLow, cloud, wind, precip = 85, 60, 95, 13+rng.Float64()*10, 2.5+rng.Float64()*10
		case 2: // dust
			humidity, cloudLow, cloud, wind, precip = 15+rng.Float64()*20, 0, 20+rng.Float64()*40, 11+rng.Float64()*10, 0
		case 3: // wind
			humidity, cloudLow, cloud, wind, precip = 55, 20, 50, 6+rng.Float64()*5, rng.Float64()*0.5
		case 4: // overcast
			humidity, cloudLow, cloud, wind, precip = 70, 50, 75+rng.Float64()*25, rng.Float64()*5, rng.Float64()*0.5
		default: // clear
			humidity, cloudLow, cloud, wind, precip = 45, 0, rng.Float64()*25, rng.Float64()*5, 0
		}
		isDay := "0"
		if hr := t.Hour(); hr >= 6 && hr < 19 {
			isDay = "1"
		}
		rows[h] = []string{
			domain.FormatTimestamp(t),
			strconv.FormatFloat(5+rng.Float64()*25, 'f', 1, 64),
			strconv.FormatFloat(humidity, 'f', 0, 64),
			strconv.FormatFloat(precip, 'f', 1, 64),
			strconv.FormatFloat(cloud, 'f', 0, 64),
			strconv.FormatFloat(cloudLow, 'f', 0, 64),
			strconv.FormatFloat(wind, 'f', 1, 64),
			isDay,
		}
	}
	return table.New(weatherHeader, rows)
}

func externalTable(rng *rand.Rand, n int) (*table.Table, error) {
	weather := []string{"Sunny", "Cloudy", "Fog", "Stormy", "Sandstorms", "Windy"}
	traffic := []string{"Low ", "Medium ", "High ", "Jam "}
	vehicles := []string{"motorcycle ", "scooter ", "van"}
	areas := []string{"Urban ", "Metropolitian ", "Semi-Urban ", "Other"}
	categories := []string{"Clothing", "Electronics", "Sports", "Cosmetics", "Toys", "Grocery"}

	rows := make([][]string, n)
	for i := range rows {
		ordered := baseDate.Add(time.Duration(rng.IntN(days*24*60)) * time.Minute)
		storeLat, storeLng := 12+rng.Float64()*15, 72+rng.Float64()*15

		orderTime := ordered.Format("15:04:05")
		if rng.IntN(40) == 0 {
			orderTime = "NaN"
		}
		rows[i] = []string{
			fmt.Sprintf("ext%07x", rng.Uint32()&0xfffffff),
			strconv.Itoa(20 + rng.IntN(20)),
			strconv.FormatFloat(2.5+rng.Float64()*2.5, 'f', 1, 64),
			coord(storeLat), coord(storeLng),
			coord(storeLat + jitter(rng, 0.1)), coord(storeLng + jitter(rng, 0.1)),
			ordered.Format("2006-01-02"),
			orderTime,
			ordered.Add(time.Duration(5+rng.IntN(11)) * time.Minute).Format("15:04:05"),
			weather[rng.IntN(len(weather))],
			traffic[rng.IntN(len(traffic))],
			vehicles[rng.IntN(len(vehicles))],
			areas[rng.IntN(len(areas))],
			strconv.Itoa(10 + rng.IntN(260)),
			categories[rng.IntN(len(categories))],
		}
	}
	return table.New(externalHeader, rows)
}

func writeTable(dir, key string, t *table.Table) error {
	path := filepath.Join(dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// printStats enriches the generated city tables and reports how many
// deliveries received each label.
func printStats(w io.Writer, city string, delivery, weather *table.Table) error {
	in, err := ingest.New(delivery, weather)
	if err != nil {
		return err
	}
	ds := in.EnrichWithTraffic()

	weatherCounts := map[domain.WeatherLabel]int{}
	trafficCounts := map[domain.TrafficLabel]int{}
	for _, r := range ds.Records {
		weatherCounts[r.WeatherLabel]++
		trafficCounts[r.TrafficLabel]++
	}

	fmt.Fprintf(w, "%s: %d deliveries, %d enriched\n", city, delivery.Len(), len(ds.Records))
	var parts []string
	for _, l := range domain.WeatherLabels {
		parts = append(parts, fmt.Sprintf("%s=%d", l, weatherCounts[l]))
	}
	fmt.Fprintf(w, "  weather: %s\n", strings.Join(parts, " "))
	parts = parts[:0]
	for _, l := range domain.TrafficLabels {
		parts = append(parts, fmt.Sprintf("%s=%d", l, trafficCounts[l]))
	}
	fmt.Fprintf(w, "  traffic: %s\n", strings.Join(parts, " "))
	return nil
}

func jitter(rng *rand.Rand, spread float64) float64 {
	return (rng.Float64()*2 - 1) * spread
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
