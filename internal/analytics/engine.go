// Package analytics aggregates the stored records into dashboard metrics,
// trend and forecast figures, charts and exportable reports.
package analytics

import (
	"context"
	"sync"
	"time"

	"erp-backend/internal/apperr"
	"erp-backend/internal/cache"
	"erp-backend/internal/logging"
	"erp-backend/internal/metrics"
	"erp-backend/internal/models"
	"erp-backend/internal/timeutil"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Report types accepted by CustomReport.
const (
	ReportFinancial   = "financial"
	ReportOperational = "operational"
	ReportPerformance = "performance"
)

// DocumentSource exports a consistent copy of every collection.
type DocumentSource interface {
	Export(ctx context.Context) (*models.Document, error)
}

type cacheEntry struct {
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Engine computes analytics and caches each named result for a fixed window.
// The first tier is in process; the optional second tier is shared through
// Redis so several instances reuse one computation.
type Engine struct {
	source   DocumentSource
	shared   *cache.Redis
	duration time.Duration
	now      timeutil.Clock
	log      zerolog.Logger

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// New builds an engine. shared may be nil. A non-positive duration disables
// caching.
func New(source DocumentSource, shared *cache.Redis, duration time.Duration, clock timeutil.Clock) *Engine {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &Engine{
		source:   source,
		shared:   shared,
		duration: duration,
		now:      clock,
		log:      logging.For("analytics"),
		entries:  make(map[string]cacheEntry),
	}
}

func (e *Engine) fresh(entry cacheEntry) bool {
	return e.now().Sub(entry.ComputedAt) < e.duration
}

func (e *Engine) lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	if e.duration <= 0 {
		return nil, false
	}

	e.mu.Lock()
	entry, ok := e.entries[key]
	if ok && !e.fresh(entry) {
		delete(e.entries, key)
		ok = false
	}
	e.mu.Unlock()
	if ok {
		return entry.Payload, true
	}

	raw, ok := e.shared.Get(ctx, cache.AnalyticsPrefix+key)
	if !ok {
		return nil, false
	}
	if err := json.Unmarshal(raw, &entry); err != nil || !e.fresh(entry) {
		return nil, false
	}
	e.mu.Lock()
	e.entries[key] = entry
	e.mu.Unlock()
	return entry.Payload, true
}

func (e *Engine) store(ctx context.Context, key string, payload json.RawMessage) {
	if e.duration <= 0 {
		return
	}
	entry := cacheEntry{Payload: payload, ComputedAt: e.now()}

	e.mu.Lock()
	e.entries[key] = entry
	e.mu.Unlock()

	if raw, err := json.Marshal(entry); err == nil {
		e.shared.Set(ctx, cache.AnalyticsPrefix+key, raw, e.duration)
	}
}

// ClearCache drops both cache tiers.
func (e *Engine) ClearCache(ctx context.Context) error {
	e.mu.Lock()
	e.entries = make(map[string]cacheEntry)
	e.mu.Unlock()

	if err := e.shared.InvalidatePattern(ctx, cache.AnalyticsPrefix+"*"); err != nil {
		return apperr.Internal(err, "Failed to clear shared analytics cache")
	}
	e.log.Info().Msg("analytics cache cleared")
	return nil
}

func (e *Engine) dataset(ctx context.Context) (*dataset, error) {
	doc, err := e.source.Export(ctx)
	if err != nil {
		return nil, err
	}
	return newDataset(doc, e.now()), nil
}

// cached returns the cached result for key or computes, stores and returns a
// fresh one. Hits and misses both come back decoded from the stored payload,
// so callers never share mutable state with the cache.
func cached[T any](ctx context.Context, e *Engine, key string, compute func(*dataset) T) (T, error) {
	var out T
	if payload, ok := e.lookup(ctx, key); ok {
		if err := json.Unmarshal(payload, &out); err == nil {
			metrics.AnalyticsCacheHits.Inc()
			return out, nil
		}
	}
	metrics.AnalyticsCacheMisses.Inc()

	ds, err := e.dataset(ctx)
	if err != nil {
		return out, err
	}
	started := time.Now()
	payload, err := json.Marshal(compute(ds))
	if err != nil {
		return out, apperr.Internal(err, "Failed to encode analytics")
	}
	e.store(ctx, key, payload)
	e.log.Debug().Str("report", key).Dur("took", time.Since(started)).Msg("analytics computed")

	if err := json.Unmarshal(payload, &out); err != nil {
		return out, apperr.Internal(err, "Failed to decode analytics")
	}
	return out, nil
}

// Comprehensive bundles every section plus the charts.
func (e *Engine) Comprehensive(ctx context.Context) (*Comprehensive, error) {
	c, err := cached(ctx, e, "comprehensive", func(ds *dataset) Comprehensive {
		return Comprehensive{
			Overview:    overview(ds),
			Financial:   financial(ds),
			Operational: operational(ds),
			Performance: performance(ds),
			Trends:      trends(ds),
			Predictions: predictions(ds),
			Charts:      e.charts(ds),
			GeneratedAt: ds.now,
		}
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (e *Engine) Overview(ctx context.Context) (Overview, error) {
	return cached(ctx, e, "overview", overview)
}

func (e *Engine) Financial(ctx context.Context) (Financial, error) {
	return cached(ctx, e, "financial", financial)
}

func (e *Engine) Operational(ctx context.Context) (Operational, error) {
	return cached(ctx, e, "operational", operational)
}

func (e *Engine) Performance(ctx context.Context) (Performance, error) {
	return cached(ctx, e, "performance", performance)
}

func (e *Engine) Trends(ctx context.Context) (Trends, error) {
	return cached(ctx, e, "trends", trends)
}

func (e *Engine) Predictions(ctx context.Context) (Predictions, error) {
	return cached(ctx, e, "predictions", predictions)
}

func (e *Engine) Charts(ctx context.Context) (Charts, error) {
	return cached(ctx, e, "charts", e.charts)
}

// Summary returns the dashboard counters. It is never cached.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	ds, err := e.dataset(ctx)
	if err != nil {
		return Summary{}, err
	}
	return summary(ds), nil
}

func (e *Engine) DailyReport(ctx context.Context) (DailyReport, error) {
	ds, err := e.dataset(ctx)
	if err != nil {
		return DailyReport{}, err
	}
	return dailyReport(ds), nil
}

// CustomReport wraps one section in a report envelope. Filters are echoed
// back in filters_applied but do not narrow the data.
func (e *Engine) CustomReport(ctx context.Context, reportType string, filters map[string]string) (*Report, error) {
	var (
		data interface{}
		err  error
	)
	switch reportType {
	case ReportFinancial:
		data, err = e.Financial(ctx)
	case ReportOperational:
		data, err = e.Operational(ctx)
	case ReportPerformance:
		data, err = e.Performance(ctx)
	default:
		return nil, apperr.Validation("Unknown report type %q", reportType)
	}
	if err != nil {
		return nil, err
	}

	if filters == nil {
		filters = map[string]string{}
	}
	return &Report{
		ReportType:     reportType,
		GeneratedAt:    e.now(),
		Data:           data,
		FiltersApplied: filters,
	}, nil
}
