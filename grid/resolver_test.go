package grid_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opti100/carbonledger/grid"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeSeries serves a canned hourly series and counts fetches. A nil
// series makes every fetch fail.
type fakeSeries struct {
	series  []grid.HourlyValue
	fetches atomic.Int64
	release chan struct{} // optional gate for concurrency tests
}

func (f *fakeSeries) FetchSeries(_ context.Context, _ string, _, _ time.Time) ([]grid.HourlyValue, error) {
	f.fetches.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.series == nil {
		return nil, errors.New("upstream unavailable")
	}
	return f.series, nil
}

var baseTime = time.Date(2024, time.June, 15, 14, 0, 0, 0, time.UTC)

func flatSeries(value float64) []grid.HourlyValue {
	var series []grid.HourlyValue
	for h := 0; h < 48; h++ {
		series = append(series, grid.HourlyValue{
			Hour:  baseTime.Add(time.Duration(h-48) * time.Hour),
			Value: value,
		})
	}
	return series
}

func newResolver(t *testing.T, client grid.SeriesClient, now *time.Time) *grid.Resolver {
	t.Helper()
	table, err := grid.NewFallbackTable()
	require.NoError(t, err)
	cache := grid.NewMemoryCacheWithClock(func() time.Time { return *now })
	return grid.NewResolver(cache, client, table, zerolog.Nop(),
		grid.WithClock(func() time.Time { return *now }))
}

// =============================================================================
// TTL CACHING
// =============================================================================

func TestResolve_SecondLookupWithinTTL_NoFetch(t *testing.T) {
	// GIVEN: A resolved country cached moments ago
	// WHEN: Resolving the same country again within the TTL
	// THEN: The cached record is served and the API is not called

	now := baseTime
	client := &fakeSeries{series: flatSeries(250)}
	resolver := newResolver(t, client, &now)
	ctx := context.Background()

	first, err := resolver.Resolve(ctx, "Germany")
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, "germany")
	require.NoError(t, err)

	assert.Equal(t, int64(1), client.fetches.Load(), "one fetch serves both lookups")
	assert.Equal(t, grid.SourceAPI, first.DataSource)
	assert.Equal(t, first, second, "case-insensitive key hits the same cache slot")
}

func TestResolve_ExpiredTTL_Refetches(t *testing.T) {
	now := baseTime
	client := &fakeSeries{series: flatSeries(250)}
	resolver := newResolver(t, client, &now)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "germany")
	require.NoError(t, err)

	now = now.Add(grid.DefaultTTL + time.Minute)

	_, err = resolver.Resolve(ctx, "germany")
	require.NoError(t, err)
	assert.Equal(t, int64(2), client.fetches.Load(), "a stale record triggers a refetch")
}

// =============================================================================
// DEGRADATION TIERS
// =============================================================================

func TestResolve_APIFailure_ServesStaticTable(t *testing.T) {
	now := baseTime
	client := &fakeSeries{} // nil series: every fetch fails
	resolver := newResolver(t, client, &now)

	rec, err := resolver.Resolve(context.Background(), "Germany")
	require.NoError(t, err, "resolution never fails")

	assert.Equal(t, grid.SourceFallback, rec.DataSource)
	assert.Positive(t, rec.Average, "the static table carries a value for Germany")
	assert.Equal(t, rec.Average, rec.CurrentHour, "static records have no hourly shape")
}

func TestResolve_UnknownCountry_SharedDefault(t *testing.T) {
	// A country absent from both the ISO3 map and the static table lands
	// on the shared default, without touching the API.
	now := baseTime
	client := &fakeSeries{series: flatSeries(250)}
	resolver := newResolver(t, client, &now)

	rec, err := resolver.Resolve(context.Background(), "Nowhereistan")
	require.NoError(t, err)

	assert.Equal(t, int64(0), client.fetches.Load(), "no ISO3 code, no API call")
	assert.Equal(t, grid.SourceFallback, rec.DataSource)
	assert.Equal(t, grid.DefaultIntensityGramsPerKWh, rec.Average)
}

func TestResolve_FailureResultIsCachedToo(t *testing.T) {
	// Fallback records are cached like API records, so a dead upstream is
	// not hammered once per lookup.
	now := baseTime
	client := &fakeSeries{}
	resolver := newResolver(t, client, &now)
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, "germany")
	require.NoError(t, err)
	_, err = resolver.Resolve(ctx, "germany")
	require.NoError(t, err)

	assert.Equal(t, int64(1), client.fetches.Load())
}

// =============================================================================
// SERIES DERIVATION
// =============================================================================

func TestResolve_CurrentHourPicksMatchingBucket(t *testing.T) {
	// GIVEN: A series where the bucket matching now's hour of day differs
	//        from the overall average
	// WHEN: Resolving
	// THEN: CurrentHour carries the matching bucket, Average the mean

	now := baseTime // 14:00 UTC
	series := flatSeries(200)
	series = append(series, grid.HourlyValue{
		Hour:  time.Date(2024, time.June, 15, 14, 0, 0, 0, time.UTC),
		Value: 320,
	})
	client := &fakeSeries{series: series}
	resolver := newResolver(t, client, &now)

	rec, err := resolver.Resolve(context.Background(), "germany")
	require.NoError(t, err)

	assert.Equal(t, 320.0, rec.CurrentHour)
	assert.InDelta(t, 202.45, rec.Average, 0.01)
}

// =============================================================================
// SINGLE-FLIGHT
// =============================================================================

func TestResolve_ConcurrentMisses_SingleFetch(t *testing.T) {
	// GIVEN: Ten goroutines resolving the same uncached country at once
	// WHEN: The fetch is gated until all are in flight
	// THEN: Exactly one fetch happens; everyone gets the same record

	now := baseTime
	client := &fakeSeries{series: flatSeries(250), release: make(chan struct{})}
	resolver := newResolver(t, client, &now)

	const workers = 10
	records := make([]grid.Record, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := resolver.Resolve(context.Background(), "germany")
			assert.NoError(t, err)
			records[i] = rec
		}(i)
	}

	// Give the goroutines time to pile onto the single flight.
	time.Sleep(50 * time.Millisecond)
	close(client.release)
	wg.Wait()

	assert.Equal(t, int64(1), client.fetches.Load(), "concurrent misses share one fetch")
	for _, rec := range records {
		assert.Equal(t, records[0], rec)
	}
}

// =============================================================================
// FALLBACK TABLE
// =============================================================================

func TestFallbackTable_EmbeddedParsesAndNormalizes(t *testing.T) {
	table, err := grid.NewFallbackTable()
	require.NoError(t, err)

	assert.Positive(t, table.Intensity("Germany"))
	assert.Equal(t, table.Intensity("GERMANY"), table.Intensity("germany"),
		"lookups are case-insensitive")
	assert.Equal(t, grid.DefaultIntensityGramsPerKWh, table.Intensity("atlantis"))
}

func TestISO3_KnownAndUnknown(t *testing.T) {
	code, ok := grid.ISO3("United Kingdom")
	assert.True(t, ok)
	assert.Equal(t, "GBR", code)

	_, ok = grid.ISO3("atlantis")
	assert.False(t, ok)
}
