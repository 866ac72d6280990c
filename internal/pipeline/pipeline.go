package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/observability"
)

// ObjectStore reads and writes whole CSV objects.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Transformer turns raw city tables into enriched tables and enriched
// tables plus the external table into canonical records.
type Transformer interface {
	EnrichCity(city string, delivery, weather []byte) ([]byte, error)
	Align(enriched [][]byte, external []byte) ([]domain.CanonicalDelivery, []byte, error)
}

// Loader writes a run's canonical records to a downstream sink.
type Loader interface {
	Name() string
	LoadBatch(ctx context.Context, runID string, records []domain.CanonicalDelivery) error
}

// Keys locates pipeline objects. City patterns contain a {city} placeholder.
type Keys struct {
	Delivery string
	Weather  string
	Enriched string
	External string
	Output   string
}

// ForCity substitutes city into pattern.
func ForCity(pattern, city string) string {
	return strings.ReplaceAll(pattern, "{city}", city)
}

// CityResult is the outcome of one city's enrichment.
type CityResult struct {
	City  string `json:"city"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error,omitempty"`
}

// Report summarizes one pipeline run.
type Report struct {
	RunID         string                   `json:"run_id"`
	StartedAt     time.Time                `json:"started_at"`
	FinishedAt    time.Time                `json:"finished_at"`
	Cities        []CityResult             `json:"cities"`
	CanonicalRows int                      `json:"canonical_rows"`
	OutputKey     string                   `json:"output_key,omitempty"`
	Loaded        map[string]int           `json:"loaded,omitempty"`
	ETA           observability.ETASummary `json:"eta"`
	Error         string                   `json:"error,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(next func() string) Option {
	return func(p *Pipeline) { p.newRunID = next }
}

// Backoff bounds for retrying failed runs in Run.
const (
	initialBackoff = time.Second
	maxBackoff     = time.Minute
)

// Pipeline runs the per-city enrichment followed by alignment and loading.
type Pipeline struct {
	store       ObjectStore
	transformer Transformer
	loaders     []Loader
	cities      []string
	keys        Keys
	logger      *slog.Logger
	metrics     *observability.Metrics
	clock       clockwork.Clock
	newRunID    func() string

	ready   atomic.Bool
	lastRun atomic.Pointer[Report]
}

// New creates a Pipeline with the given stages and observability.
func New(store ObjectStore, t Transformer, loaders []Loader, cities []string, keys Keys, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		transformer: t,
		loaders:     loaders,
		cities:      cities,
		keys:        keys,
		logger:      logger,
		metrics:     metrics,
		clock:       clockwork.NewRealClock(),
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a run has produced a canonical dataset and
// the object store, when it can report on itself, is reachable.
func (p *Pipeline) CheckReadiness(ctx context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	if rc, ok := p.store.(interface{ CheckReadiness(context.Context) error }); ok {
		return rc.CheckReadiness(ctx)
	}
	return nil
}

// LastRun returns the report of the most recent run.
func (p *Pipeline) LastRun() (any, bool) {
	r := p.lastRun.Load()
	if r == nil {
		return nil, false
	}
	return *r, true
}

// RunOnce processes every city, aligns the successful ones with the external
// table, writes the canonical CSV, and hands the records to each loader.
// A failing city does not stop the others; city and loader failures are
// joined into the returned error. The run fails outright only when no city
// succeeds or when alignment or the output write fails.
func (p *Pipeline) RunOnce(ctx context.Context) (Report, error) {
	report := Report{RunID: p.newRunID(), StartedAt: p.clock.Now()}
	logger := p.logger.With("run_id", report.RunID)
	logger.Info("pipeline run started", "cities", p.cities)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	err := p.run(ctx, logger, &report)
	report.FinishedAt = p.clock.Now()
	if err != nil {
		report.Error = err.Error()
	}
	p.metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	p.lastRun.Store(&report)

	if err != nil {
		logger.Error("pipeline run finished with errors", "error", err, "canonical_rows", report.CanonicalRows)
	} else {
		logger.Info("pipeline run finished", "canonical_rows", report.CanonicalRows,
			"duration", report.FinishedAt.Sub(report.StartedAt))
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, report *Report) error {
	var errs []error
	var enriched [][]byte
	for _, city := range p.cities {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		key := ForCity(p.keys.Enriched, city)
		data, err := p.processCity(ctx, city, key)
		if err != nil {
			p.metrics.CityRuns.WithLabelValues(city, "error").Inc()
			logger.Error("city enrichment failed", "city", city, "error", err)
			report.Cities = append(report.Cities, CityResult{City: city, Error: err.Error()})
			errs = append(errs, fmt.Errorf("city %s: %w", city, err))
			continue
		}
		p.metrics.CityRuns.WithLabelValues(city, "success").Inc()
		report.Cities = append(report.Cities, CityResult{City: city, Key: key})
		enriched = append(enriched, data)
	}
	if len(enriched) == 0 {
		return errors.Join(append(errs, errors.New("no city produced an enriched table"))...)
	}

	external, err := p.store.Get(ctx, p.keys.External)
	var notFound *domain.SourceNotFoundError
	switch {
	case errors.As(err, &notFound):
		logger.Warn("external delivery table not found, aligning local rows only", "key", p.keys.External)
		external = nil
	case err != nil:
		return errors.Join(append(errs, fmt.Errorf("read external table: %w", err))...)
	}

	records, csv, err := p.transformer.Align(enriched, external)
	if err != nil {
		return errors.Join(append(errs, fmt.Errorf("align: %w", err))...)
	}
	if err := p.store.Put(ctx, p.keys.Output, csv); err != nil {
		return errors.Join(append(errs, fmt.Errorf("write canonical table: %w", err))...)
	}
	report.CanonicalRows = len(records)
	report.OutputKey = p.keys.Output

	report.ETA = observability.SummarizeETA(records)
	report.ETA.Record(p.metrics)

	for _, l := range p.loaders {
		if err := l.LoadBatch(ctx, report.RunID, records); err != nil {
			p.metrics.LoadErrors.WithLabelValues(l.Name()).Inc()
			logger.Error("load failed", "sink", l.Name(), "error", err)
			errs = append(errs, fmt.Errorf("load %s: %w", l.Name(), err))
			continue
		}
		p.metrics.RecordsLoaded.WithLabelValues(l.Name()).Add(float64(len(records)))
		if report.Loaded == nil {
			report.Loaded = make(map[string]int)
		}
		report.Loaded[l.Name()] = len(records)
	}

	p.metrics.LastSuccess.Set(float64(p.clock.Now().Unix()))
	p.ready.Store(true)
	return errors.Join(errs...)
}

// processCity downloads a city's tables, enriches them, and uploads the
// enriched table to key.
func (p *Pipeline) processCity(ctx context.Context, city, key string) ([]byte, error) {
	delivery, err := p.store.Get(ctx, ForCity(p.keys.Delivery, city))
	if err != nil {
		return nil, err
	}
	weather, err := p.store.Get(ctx, ForCity(p.keys.Weather, city))
	if err != nil {
		return nil, err
	}
	enriched, err := p.transformer.EnrichCity(city, delivery, weather)
	if err != nil {
		return nil, err
	}
	if err := p.store.Put(ctx, key, enriched); err != nil {
		return nil, fmt.Errorf("write enriched table: %w", err)
	}
	return enriched, nil
}

// Run repeats RunOnce every interval until the context is cancelled. After
// a failed run it retries with exponential backoff instead of waiting the
// full interval.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) error {
	p.logger.Info("pipeline started", "interval", interval, "cities", p.cities)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		wait := interval
		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			wait = min(backoff, interval)
			backoff = retry.NextBackoff(backoff, maxBackoff)
			p.logger.Warn("retrying after failed run", "backoff", wait)
		} else {
			backoff = initialBackoff
		}

		if !p.sleep(ctx, wait) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.clock.After(d):
		return true
	}
}
