/*
client.go - HTTP client for the external hourly-CO2 series API

PURPOSE:
  Fetches a trailing date range of hourly intensity buckets for one ISO3
  country code. The API returns an ordered series; average and current-hour
  derivation happen client-side in the resolver.

CONTRACT:
  GET {base}/v1/intensity/{iso3}?from=YYYY-MM-DD&to=YYYY-MM-DD
  -> 200 {"series": [{"hour": "2024-06-01T13:00:00Z", "value": 231.4}, ...]}

  Timeouts, non-2xx responses, and empty payloads are all reported as
  errors; the resolver degrades to the static table on any of them.
*/
package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// FetchTimeout bounds one series fetch. The resolver falls back rather
// than hang past it.
const FetchTimeout = 10 * time.Second

// HourlyValue is one bucket of the external series.
type HourlyValue struct {
	Hour  time.Time `json:"hour"`
	Value float64   `json:"value"`
}

// SeriesClient fetches an ordered hourly intensity series for an ISO3 code.
type SeriesClient interface {
	FetchSeries(ctx context.Context, iso3 string, from, to time.Time) ([]HourlyValue, error)
}

// HTTPSeriesClient is the production SeriesClient.
type HTTPSeriesClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSeriesClient builds a client for the given API base URL.
func NewHTTPSeriesClient(baseURL string) *HTTPSeriesClient {
	return &HTTPSeriesClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: FetchTimeout},
	}
}

// FetchSeries fetches the hourly series for [from, to]. Returns an error
// for transport failures, non-2xx statuses, and empty payloads.
func (c *HTTPSeriesClient) FetchSeries(ctx context.Context, iso3 string, from, to time.Time) ([]HourlyValue, error) {
	endpoint := fmt.Sprintf("%s/v1/intensity/%s?%s", c.baseURL, url.PathEscape(iso3), url.Values{
		"from": {from.Format("2006-01-02")},
		"to":   {to.Format("2006-01-02")},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build intensity request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch intensity series: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("intensity API returned %d for %s", resp.StatusCode, iso3)
	}

	var payload struct {
		Series []HourlyValue `json:"series"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode intensity series: %w", err)
	}
	if len(payload.Series) == 0 {
		return nil, fmt.Errorf("intensity API returned empty series for %s", iso3)
	}
	return payload.Series, nil
}
