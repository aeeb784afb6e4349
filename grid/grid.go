/*
Package grid resolves per-country grid carbon intensity (gCO2/kWh).

PURPOSE:
  Cache-aside lookup over an external hourly-CO2 series API with a tiered
  fallback: cached record -> fresh API fetch -> static per-country table ->
  shared global default. Every result is cached and tagged with where it
  came from so callers can report data quality.

RESOLUTION FLOW:
  1. Cache hit within TTL: return immediately, no network call
  2. Miss/stale: map country -> ISO3; unmapped skips straight to fallback
  3. Fetch trailing 7-day hourly series (10s timeout), derive the average
     and the current-hour bucket value
  4. Any failure: static table value, or DefaultIntensityGramsPerKWh for
     unlisted countries
  5. Write the result back to the cache (last-writer-wins)

CONCURRENCY:
  Concurrent resolutions for the same country collapse into one external
  call (singleflight). Lookups for different countries never block each
  other.

SEE ALSO:
  - resolver.go: The Resolver itself
  - client.go: Hourly-CO2 API client
  - fallback.go: Static table and ISO3 mapping
  - cache.go: Cache interface, memory and Redis implementations
*/
package grid

import "time"

// DataSource tags where a resolved intensity value came from.
type DataSource string

const (
	SourceAPI      DataSource = "API"
	SourceFallback DataSource = "FALLBACK"
)

// Record is one resolved (and cached) grid intensity.
type Record struct {
	Country     string     `json:"country"` // lowercased cache key form
	ISO3        string     `json:"iso3"`
	Average     float64    `json:"average"`      // gCO2/kWh over the trailing week
	CurrentHour float64    `json:"current_hour"` // gCO2/kWh for the current hour-of-day
	DataSource  DataSource `json:"data_source"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// DefaultTTL is the validity window of a cached Record.
const DefaultTTL = time.Hour

// DefaultIntensityGramsPerKWh is the shared global-average intensity used
// for countries absent from both the API mapping and the static table.
const DefaultIntensityGramsPerKWh = 475.0
