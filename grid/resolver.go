/*
resolver.go - TTL-cached, single-flight grid intensity resolution

SEE package doc in grid.go for the resolution flow.

FAILURE POSTURE:
  Resolve never returns an error. Every failure tier degrades to the next
  one, ending at the shared default constant. Callers inspect
  Record.DataSource to report data quality.
*/
package grid

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbonledger_grid_cache_hits_total",
		Help: "Grid intensity lookups served from cache within TTL",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbonledger_grid_cache_misses_total",
		Help: "Grid intensity lookups requiring refresh",
	})
	fallbackServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carbonledger_grid_fallback_total",
		Help: "Grid intensity lookups resolved from the static table",
	})
	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "carbonledger_grid_fetch_duration_seconds",
		Help:    "Duration of external hourly-CO2 series fetches",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

// seriesWindow is the trailing range fetched from the external API.
const seriesWindow = 7 * 24 * time.Hour

// Resolver resolves country names to grid intensity records.
type Resolver struct {
	cache    IntensityCache
	client   SeriesClient
	fallback *FallbackTable
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	log      zerolog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithTTL overrides the cache validity window (default one hour).
func WithTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) { r.ttl = ttl }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a Resolver over the given cache, API client, and
// static table.
func NewResolver(cache IntensityCache, client SeriesClient, fallback *FallbackTable, log zerolog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:    cache,
		client:   client,
		fallback: fallback,
		ttl:      DefaultTTL,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the grid intensity record for a country. A cached record
// within TTL is served without any external call; otherwise the refresh is
// single-flighted per country, and any failure degrades to the static
// table. Resolve never fails.
func (r *Resolver) Resolve(ctx context.Context, country string) (Record, error) {
	key := strings.ToLower(strings.TrimSpace(country))
	if key == "" {
		fallbackServed.Inc()
		return r.fallbackRecord(key), nil
	}

	if rec, ok, err := r.cache.Get(ctx, key); err != nil {
		// A broken cache backend must not break resolution.
		r.log.Warn().Err(err).Str("country", key).Msg("intensity cache read failed")
	} else if ok {
		cacheHits.Inc()
		return rec, nil
	}
	cacheMisses.Inc()

	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.refresh(ctx, key), nil
	})
	if err != nil {
		// refresh never returns an error; keep the fallback path anyway.
		return r.fallbackRecord(key), nil
	}
	return v.(Record), nil
}

// refresh fetches from the API or degrades to the static table, then
// writes the result back to the cache tagged with its origin.
func (r *Resolver) refresh(ctx context.Context, key string) Record {
	rec, ok := r.fetchFromAPI(ctx, key)
	if !ok {
		fallbackServed.Inc()
		rec = r.fallbackRecord(key)
	}
	if err := r.cache.Set(ctx, key, rec, r.ttl); err != nil {
		r.log.Warn().Err(err).Str("country", key).Msg("intensity cache write failed")
	}
	return rec
}

func (r *Resolver) fetchFromAPI(ctx context.Context, key string) (Record, bool) {
	iso3, ok := ISO3(key)
	if !ok {
		return Record{}, false
	}

	now := r.now()
	fetchCtx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	start := time.Now()
	series, err := r.client.FetchSeries(fetchCtx, iso3, now.Add(-seriesWindow), now)
	fetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.log.Warn().Err(err).Str("country", key).Str("iso3", iso3).
			Msg("hourly intensity fetch failed, using static fallback")
		return Record{}, false
	}

	avg := average(series)
	return Record{
		Country:     key,
		ISO3:        iso3,
		Average:     avg,
		CurrentHour: currentHourValue(series, now, avg),
		DataSource:  SourceAPI,
		FetchedAt:   now,
	}, true
}

func (r *Resolver) fallbackRecord(key string) Record {
	iso3, _ := ISO3(key)
	value := r.fallback.Intensity(key)
	return Record{
		Country:     key,
		ISO3:        iso3,
		Average:     value,
		CurrentHour: value,
		DataSource:  SourceFallback,
		FetchedAt:   r.now(),
	}
}

func average(series []HourlyValue) float64 {
	var sum float64
	for _, v := range series {
		sum += v.Value
	}
	return sum / float64(len(series))
}

// currentHourValue picks the most recent bucket matching now's hour of
// day, falling back to the average when no bucket matches.
func currentHourValue(series []HourlyValue, now time.Time, avg float64) float64 {
	hour := now.UTC().Hour()
	value, found := avg, false
	for _, v := range series {
		if v.Hour.UTC().Hour() == hour {
			value, found = v.Value, true
		}
	}
	if !found {
		return avg
	}
	return value
}
