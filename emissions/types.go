/*
Package emissions provides the core carbon accounting engine.

PURPOSE:
  This package contains the domain types and algorithms for turning
  heterogeneous, independently-submitted usage data (cloud spend, CDN
  transfer, travel trips, on-premise servers, workforce) into a single
  per-month emissions ledger classified by GHG-protocol scope.

KEY CONCEPTS IN THIS FILE (types.go):
  - Period: The (org, year, month) key identifying one ledger instance
  - SourceType: One configured emission source (cloud, CDN, travel, ...)
  - SourceEntry: One submitted or auto-tracked measurement for a period
  - DataSourceStatus: Per-source progress/accuracy for a period
  - MonthlyLedger: The aggregated per-month record with scope breakdown
  - YearlySummary: Derived rollup over a year's monthly ledgers

DESIGN PRINCIPLES:
  1. Precision: kg CO2e amounts use decimal.Decimal, never raw floats
  2. Replace semantics: resubmitting a (period, source) replaces, never
     appends, the prior contribution
  3. Determinism: recalculating a period with unchanged inputs yields a
     bit-identical MonthlyLedger

SEE ALSO:
  - engine.go: Rebuilds a period's ledger from its entries
  - gateway.go: Accepts and validates source entries
  - store.go: Persistence interface
*/
package emissions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERIOD - The (org, year, month) ledger key
// =============================================================================

// Period identifies one monthly ledger instance for one organization.
type Period struct {
	OrgID string
	Year  int
	Month time.Month
}

// NewPeriod builds a Period, normalizing the month into [1, 12].
func NewPeriod(orgID string, year int, month int) (Period, error) {
	if orgID == "" {
		return Period{}, &ValidationError{Field: "org_id", Message: "must not be empty"}
	}
	if month < 1 || month > 12 {
		return Period{}, &ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}
	if year < 2000 || year > 2200 {
		return Period{}, &ValidationError{Field: "year", Message: "out of range"}
	}
	return Period{OrgID: orgID, Year: year, Month: time.Month(month)}, nil
}

// String returns the canonical "org/YYYY-MM" form used in logs and cache keys.
func (p Period) String() string {
	return fmt.Sprintf("%s/%04d-%02d", p.OrgID, p.Year, int(p.Month))
}

// =============================================================================
// SOURCE TYPES - Fixed set of emission sources with fixed scope mapping
// =============================================================================

// SourceType identifies one family of emission-producing activity.
type SourceType string

const (
	SourceCloud     SourceType = "cloud"     // cloud provider spend
	SourceCDN       SourceType = "cdn"       // CDN transfer volume
	SourceWorkforce SourceType = "workforce" // office + remote workforce
	SourceOnPrem    SourceType = "onprem"    // on-premise servers
	SourceTravel    SourceType = "travel"    // business travel trips
	SourceFleet     SourceType = "fleet"     // company-owned vehicles
	SourceWebsite   SourceType = "website"   // SDK-tracked website/app events
)

// AllSources lists every source type in canonical order. The order is part
// of the determinism contract: recalculation iterates sources in this order.
var AllSources = []SourceType{
	SourceCloud,
	SourceCDN,
	SourceWorkforce,
	SourceOnPrem,
	SourceTravel,
	SourceFleet,
	SourceWebsite,
}

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	for _, known := range AllSources {
		if s == known {
			return true
		}
	}
	return false
}

// Scope classifies emissions per the GHG Protocol.
type Scope int

const (
	Scope1 Scope = 1 // direct emissions (fuel combustion in owned assets)
	Scope2 Scope = 2 // purchased energy (electricity for offices, own servers)
	Scope3 Scope = 3 // indirect value chain (cloud, CDN, business travel)
)

// ScopeOf returns the fixed GHG scope a source contributes to.
// The mapping is static per source: it never depends on the entry payload.
func (s SourceType) ScopeOf() Scope {
	switch s {
	case SourceFleet:
		return Scope1
	case SourceOnPrem, SourceWorkforce:
		return Scope2
	default:
		return Scope3
	}
}

// ElectricityBased reports whether converting this source's quantity to
// kg CO2e requires a resolved grid carbon intensity. CDN, travel, and
// fleet use fixed factors and never touch the resolver.
func (s SourceType) ElectricityBased() bool {
	switch s {
	case SourceCloud, SourceOnPrem, SourceWorkforce, SourceWebsite:
		return true
	default:
		return false
	}
}

// AutoHandled reports whether the source requires no user action and must
// therefore never block a ledger's completeness.
func (s SourceType) AutoHandled() bool {
	return s == SourceWebsite
}

// =============================================================================
// SOURCE STATUS - Unified tagged status type (one enum, consumed everywhere)
// =============================================================================

// SourceStatus is the lifecycle state of one (period, source) pair.
type SourceStatus string

const (
	StatusPending        SourceStatus = "pending"         // configured, nothing submitted yet
	StatusSubmitted      SourceStatus = "submitted"       // recorded, degraded or zero-activity
	StatusCalculated     SourceStatus = "calculated"      // recorded with a full calculation
	StatusAutoCalculated SourceStatus = "auto_calculated" // derived without user input
	StatusAutoTracked    SourceStatus = "auto_tracked"    // SDK-ingested, no user action
)

// BlocksCompletion reports whether this status keeps a ledger incomplete.
// Only pending does: submitted/calculated mean the user acted, and the
// auto_* states require no user action at all.
func (s SourceStatus) BlocksCompletion() bool {
	return s == StatusPending
}

// Accuracy grades the data quality behind a calculated value.
type Accuracy string

const (
	AccuracyHigh      Accuracy = "high"      // measured quantities, API intensity
	AccuracyMedium    Accuracy = "medium"    // estimates or fallback intensity
	AccuracyEstimated Accuracy = "estimated" // degraded externals, best-effort
)

// Degrade returns the accuracy one notch worse than a. Used when a
// calculation had to fall back to static intensity data.
func (a Accuracy) Degrade() Accuracy {
	switch a {
	case AccuracyHigh:
		return AccuracyMedium
	default:
		return AccuracyEstimated
	}
}

// =============================================================================
// RECORDS
// =============================================================================

// SourceEntry is one user-submitted or auto-tracked measurement for a
// (period, source). There is at most one entry per (period, source):
// resubmission replaces the prior entry.
type SourceEntry struct {
	ID          string // uuid, regenerated on every (re)submission
	Period      Period
	Source      SourceType
	EntryType   string // e.g. "cost_estimate", "csv_import", "trip_batch"
	Quantity    decimal.Decimal
	Unit        string
	Details     []byte // normalized JSON payload for batch entry types
	SubmittedAt time.Time
}

// DataSourceStatus is the per-(period, source) progress record.
type DataSourceStatus struct {
	Period      Period
	Source      SourceType
	Status      SourceStatus
	Accuracy    Accuracy
	KgCO2       *decimal.Decimal // nil while pending
	LastUpdated time.Time
}

// MonthlyLedger is the aggregated emissions record for one period.
//
// INVARIANTS:
//   - Scope1Kg + Scope2Kg + Scope3Kg == TotalKg (exact, decimal arithmetic)
//   - PendingEntries == count of statuses with Status == pending
//   - IsComplete == (PendingEntries == 0)
type MonthlyLedger struct {
	Period         Period
	TotalKg        decimal.Decimal
	Scope1Kg       decimal.Decimal
	Scope2Kg       decimal.Decimal
	Scope3Kg       decimal.Decimal
	PendingEntries int
	IsComplete     bool
	GeneratedAt    time.Time
}

// MonthlySummary is one month's slice of a YearlySummary.
type MonthlySummary struct {
	Month    time.Month
	TotalKg  decimal.Decimal
	Scope1Kg decimal.Decimal
	Scope2Kg decimal.Decimal
	Scope3Kg decimal.Decimal
	Complete bool
}

// YearlySummary aggregates a year's monthly ledgers. It is derived on
// demand and never stored.
type YearlySummary struct {
	OrgID          string
	Year           int
	Months         []MonthlySummary
	MonthsReported int // months successfully fetched, not months with data
	TotalKg        decimal.Decimal
	Scope1Kg       decimal.Decimal
	Scope2Kg       decimal.Decimal
	Scope3Kg       decimal.Decimal
	TotalTonnes    decimal.Decimal
	Scope1Tonnes   decimal.Decimal
	Scope2Tonnes   decimal.Decimal
	Scope3Tonnes   decimal.Decimal
}

var thousand = decimal.NewFromInt(1000)

// Tonnes converts a kg amount to metric tonnes.
func Tonnes(kg decimal.Decimal) decimal.Decimal {
	return kg.Div(thousand)
}
