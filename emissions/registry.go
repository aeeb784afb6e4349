/*
registry.go - Emission Source Registry

PURPOSE:
  Read-only projection of which emission sources an organization has
  configured. The aggregation core never mutates configuration; it only
  asks "which sources matter for this org" so it can seed pending
  statuses and decide what to aggregate.

SEE ALSO:
  - engine.go: Seeds per-source statuses from the enabled set
  - store.go: GetSourceConfig / SaveSourceConfig
*/
package emissions

import (
	"context"
	"errors"
)

// =============================================================================
// CONFIG TYPES
// =============================================================================

// CloudProviderConfig enables one cloud provider for an org.
type CloudProviderConfig struct {
	Provider string `json:"provider"` // "aws", "gcp", "azure", ...
	Country  string `json:"country"`  // primary region's country, for intensity
}

// CDNConfig enables CDN transfer tracking.
type CDNConfig struct {
	Provider string `json:"provider"`
}

// WorkforceConfig describes office/remote workforce parameters.
type WorkforceConfig struct {
	Employees   int     `json:"employees"`
	RemoteRatio float64 `json:"remote_ratio"` // 0..1
	Country     string  `json:"country"`
}

// OnPremConfig describes one on-premise server fleet.
type OnPremConfig struct {
	Label       string  `json:"label"`
	Servers     int     `json:"servers"`
	AvgWatts    float64 `json:"avg_watts"`
	Utilization float64 `json:"utilization"` // 0..1
	Country     string  `json:"country"`
}

// TravelConfig enables business travel tracking.
type TravelConfig struct{}

// FleetConfig enables company vehicle tracking.
type FleetConfig struct {
	Vehicles int `json:"vehicles"`
}

// SourceConfig is an org's full emission-source configuration.
type SourceConfig struct {
	CloudProviders []CloudProviderConfig `json:"cloud_providers,omitempty"`
	CDN            *CDNConfig            `json:"cdn,omitempty"`
	Workforce      *WorkforceConfig      `json:"workforce,omitempty"`
	OnPrem         []OnPremConfig        `json:"onprem,omitempty"`
	Travel         *TravelConfig         `json:"travel,omitempty"`
	Fleet          *FleetConfig          `json:"fleet,omitempty"`
	WebsiteTracked bool                  `json:"website_tracked,omitempty"`
}

// EnabledSources returns the sources this config turns on, in canonical
// order. Canonical order keeps status seeding deterministic.
func (c SourceConfig) EnabledSources() []SourceType {
	var enabled []SourceType
	for _, s := range AllSources {
		if c.enables(s) {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

func (c SourceConfig) enables(s SourceType) bool {
	switch s {
	case SourceCloud:
		return len(c.CloudProviders) > 0
	case SourceCDN:
		return c.CDN != nil
	case SourceWorkforce:
		return c.Workforce != nil
	case SourceOnPrem:
		return len(c.OnPrem) > 0
	case SourceTravel:
		return c.Travel != nil
	case SourceFleet:
		return c.Fleet != nil
	case SourceWebsite:
		return c.WebsiteTracked
	default:
		return false
	}
}

// Country returns the grid-intensity country applicable to a source, or ""
// when the source carries no location (non-electricity sources).
func (c SourceConfig) Country(s SourceType) string {
	switch s {
	case SourceCloud:
		if len(c.CloudProviders) > 0 {
			return c.CloudProviders[0].Country
		}
	case SourceWorkforce:
		if c.Workforce != nil {
			return c.Workforce.Country
		}
	case SourceOnPrem:
		if len(c.OnPrem) > 0 {
			return c.OnPrem[0].Country
		}
	}
	return ""
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry exposes the read-only projection of org source configuration.
type Registry struct {
	store Store
}

func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Config returns the org's source configuration. ErrNotConfigured when the
// org exists but enables zero sources, or was never configured at all.
func (r *Registry) Config(ctx context.Context, orgID string) (SourceConfig, error) {
	cfg, err := r.store.GetSourceConfig(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return SourceConfig{}, ErrNotConfigured
	}
	if err != nil {
		return SourceConfig{}, err
	}
	if len(cfg.EnabledSources()) == 0 {
		return SourceConfig{}, ErrNotConfigured
	}
	return cfg, nil
}
