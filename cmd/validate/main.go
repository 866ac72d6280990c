// Command validate checks the integrity of a pipeline run's outputs: the
// canonical CSV and, optionally, the per-city enriched tables it was built
// from. It verifies label domains, ETA consistency, source ordering, that no
// delivery was joined to a future weather observation, and row parity
// between the enriched tables and the canonical output.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -canonical data/Pickup_and_delivery_data/Final/aligned_deliveries.csv \
//	  -enriched-dir data/Pickup_and_delivery_data/Enriched \
//	  -cities jl,yt,hz,cq,sh
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nexusdrive/delivery-etl/internal/align"
	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/table"
)

// etaTolerance is the allowed difference, in minutes, between ETA_target and
// the timestamps it was computed from. Timestamps are written to the second.
const etaTolerance = 1.0 / 60

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	canonical := flag.String("canonical", "", "path to the canonical CSV")
	enrichedDir := flag.String("enriched-dir", "", "directory containing enriched_{city}.csv files (optional)")
	cities := flag.String("cities", "jl,yt,hz,cq,sh", "comma-separated city codes for -enriched-dir")
	maxRows := flag.Int("max-rows", 0, "MAX_ROWS used by the run, 0 for no cap")
	flag.Parse()

	if *canonical == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*canonical, *enrichedDir, strings.Split(*cities, ","), *maxRows); code != 0 {
		os.Exit(code)
	}
}

func run(canonicalPath, enrichedDir string, cities []string, maxRows int) int {
	fmt.Println("=== Delivery ETL Output Validation ===")
	fmt.Println()

	records, err := loadCanonical(canonicalPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load canonical CSV: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateLabels(records),
		validateETA(records),
		validateOrdering(records),
	}

	var enriched map[string]*table.Table
	if enrichedDir != "" {
		enriched, err = loadEnriched(enrichedDir, cities)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load enriched tables: %v\n", err)
			return 1
		}
		phases = append(phases,
			validateEnrichedTables(enriched),
			validateParity(records, enriched, maxRows),
		)
	}

	return report(phases, records, enriched)
}

func report(phases []*phase, records []domain.CanonicalDelivery, enriched map[string]*table.Table) int {
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d canonical, %d local, %d enriched tables\n",
		len(records), countLocal(records), len(enriched))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Data loading ──

func loadCanonical(path string) ([]domain.CanonicalDelivery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return align.ReadCSV(f)
}

func loadEnriched(dir string, cities []string) (map[string]*table.Table, error) {
	out := make(map[string]*table.Table, len(cities))
	for _, city := range cities {
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		f, err := os.Open(filepath.Join(dir, "enriched_"+city+".csv"))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		t, err := table.ReadCSV(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", city, err)
		}
		out[city] = t
	}
	return out, nil
}

// isLocal reports whether a canonical record came from an enriched table.
// Only local rows carry a weather label.
func isLocal(r domain.CanonicalDelivery) bool { return r.Weather != nil }

func countLocal(records []domain.CanonicalDelivery) int {
	n := 0
	for _, r := range records {
		if isLocal(r) {
			n++
		}
	}
	return n
}

// ── Phases ──

func validateLabels(records []domain.CanonicalDelivery) *phase {
	p := &phase{name: "Weather and traffic label domains"}
	for i, r := range records {
		if !isLocal(r) {
			continue
		}
		if !slices.Contains(domain.WeatherLabels, domain.WeatherLabel(*r.Weather)) {
			p.errorf("row %d (%s): unknown weather label %q", i+1, r.OrderID, *r.Weather)
		}
		if r.Traffic == nil || !slices.Contains(domain.TrafficLabels, domain.TrafficLabel(*r.Traffic)) {
			p.errorf("row %d (%s): local row has traffic %s", i+1, r.OrderID, ptrStr(r.Traffic))
		}
	}
	return p
}

func validateETA(records []domain.CanonicalDelivery) *phase {
	p := &phase{name: "ETA_target matches timestamps"}
	for i, r := range records {
		want := domain.ComputeETA(r.PickupTime, r.DeliveryTime)
		switch {
		case want == nil && r.ETATarget != nil:
			p.errorf("row %d (%s): ETA %g without both timestamps", i+1, r.OrderID, *r.ETATarget)
		case want != nil && r.ETATarget == nil:
			p.errorf("row %d (%s): ETA missing, timestamps give %g", i+1, r.OrderID, *want)
		case want != nil && math.Abs(*want-*r.ETATarget) > etaTolerance:
			p.errorf("row %d (%s): ETA %g, timestamps give %g", i+1, r.OrderID, *r.ETATarget, *want)
		}
	}
	return p
}

func validateOrdering(records []domain.CanonicalDelivery) *phase {
	p := &phase{name: "Local rows precede external rows"}
	seenExternal := false
	for i, r := range records {
		if !isLocal(r) {
			seenExternal = true
			continue
		}
		if seenExternal {
			p.errorf("row %d (%s): local row after external rows", i+1, r.OrderID)
		}
	}
	return p
}

func validateEnrichedTables(enriched map[string]*table.Table) *phase {
	p := &phase{name: "Enriched tables: asof join and labels"}
	for city, t := range enriched {
		missing := false
		for _, col := range []string{"order_id", "accept_time", "time_weather", "weather_label", "traffic_label", "city", "eta_target"} {
			if !t.Has(col) {
				p.errorf("%s: missing column %s", city, col)
				missing = true
			}
		}
		if missing {
			continue
		}
		ids := t.Column("order_id")
		accept := t.Column("accept_time")
		obs := t.Column("time_weather")
		cityCol := t.Column("city")
		labels := t.Column("weather_label")
		for i := range ids {
			at, ok := domain.ParseTimestamp(accept[i])
			if !ok {
				p.errorf("%s row %d (%s): unparseable accept_time %q", city, i+1, ids[i], accept[i])
				continue
			}
			if wt, ok := domain.ParseTimestamp(obs[i]); ok && wt.After(at) {
				p.errorf("%s row %d (%s): weather %s is after acceptance %s", city, i+1, ids[i], obs[i], accept[i])
			}
			if i > 0 {
				if prev, ok := domain.ParseTimestamp(accept[i-1]); ok && prev.After(at) {
					p.errorf("%s row %d (%s): not sorted by accept_time", city, i+1, ids[i])
				}
			}
			if cityCol[i] != city {
				p.errorf("%s row %d (%s): city column is %q", city, i+1, ids[i], cityCol[i])
			}
			if !slices.Contains(domain.WeatherLabels, domain.WeatherLabel(labels[i])) {
				p.errorf("%s row %d (%s): unknown weather label %q", city, i+1, ids[i], labels[i])
			}
		}
	}
	return p
}

func validateParity(records []domain.CanonicalDelivery, enriched map[string]*table.Table, maxRows int) *phase {
	p := &phase{name: "Enriched rows reach the canonical table"}
	want := 0
	ids := map[string]int{}
	for _, t := range enriched {
		n := t.Len()
		if maxRows > 0 {
			n = min(n, maxRows)
		}
		want += n
		col := t.Column("order_id")
		for _, id := range col[:min(n, len(col))] {
			ids[id]++
		}
	}
	if got := countLocal(records); got != want {
		p.errorf("canonical table has %d local rows, enriched tables have %d", got, want)
	}
	for _, r := range records {
		if !isLocal(r) {
			continue
		}
		if ids[r.OrderID] == 0 {
			p.errorf("order %s is not in any enriched table", r.OrderID)
			continue
		}
		ids[r.OrderID]--
	}
	return p
}

func ptrStr(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%q", *s)
}
