/*
compute.go - Shared entry-to-kg computation and per-period locking

PURPOSE:
  Both the submission gateway and the recalculation engine must agree on
  how an entry's quantity becomes kg CO2e, or a recalculated ledger would
  drift from the per-source values reported at submission time. The shared
  path lives here.

DEGRADATION:
  The computation never blocks on a broken collaborator. A failed primary
  calculator retries on the built-in factor calculator; a fallback-tagged
  intensity marks the result degraded. Only validation failures propagate.

LOCKING:
  A submission and a recalculation for the same (org, period) are
  serialized by a per-period mutex so recalculation never reads a
  half-written entry set.
*/
package emissions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/opti100/carbonledger/grid"
)

// =============================================================================
// ENTRY TYPES
// =============================================================================

const (
	EntryTypeCostEstimate = "cost_estimate" // cloud: monthly spend figure
	EntryTypeCSVImport    = "csv_import"    // cloud: per-service billing rows
	EntryTypeTransfer     = "gb_transferred"
	EntryTypeTripBatch    = "trip_batch"
	EntryTypeFuelLog      = "fuel_log"
	EntryTypeEnergy       = "energy_reading"
	EntryTypeOfficeDays   = "office_days"
	EntryTypeEvents       = "tracked_events"
)

// baseAccuracy grades an entry type before any degradation: measured
// quantities are high, modeled estimates are medium.
func baseAccuracy(entryType string) Accuracy {
	switch entryType {
	case EntryTypeCSVImport, EntryTypeTransfer, EntryTypeTripBatch, EntryTypeFuelLog, EntryTypeEvents:
		return AccuracyHigh
	default:
		return AccuracyMedium
	}
}

// =============================================================================
// BATCH ROW TYPES - Serialized into SourceEntry.Details
// =============================================================================

// Trip is one row of a travel batch.
type Trip struct {
	Mode       string  `json:"mode"` // flight, rail, road
	DistanceKM float64 `json:"distance_km"`
	Passengers int     `json:"passengers"`
}

// CloudCostRow is one row of an imported cloud billing CSV.
type CloudCostRow struct {
	Service string  `json:"service"`
	CostUSD float64 `json:"cost_usd"`
}

// =============================================================================
// SHARED COMPUTATION
// =============================================================================

// computeEntryKg converts one entry into kg CO2e.
//
// Returns degraded=true when the result rests on fallback data (static
// intensity, or the built-in calculator standing in for a failed external
// one). Returns an error only for validation failures or when even the
// best-effort path cannot produce a number.
func computeEntryKg(ctx context.Context, calc Calculator, resolver IntensityResolver, cfg SourceConfig, entry SourceEntry) (kg decimal.Decimal, degraded bool, err error) {
	var intensity *grid.Record
	if entry.Source.ElectricityBased() && resolver != nil {
		rec, rerr := resolver.Resolve(ctx, cfg.Country(entry.Source))
		if rerr != nil {
			degraded = true
		} else {
			intensity = &rec
			if rec.DataSource == grid.SourceFallback {
				degraded = true
			}
		}
	}

	calcOne := func(entryType string, qty decimal.Decimal, unit string) (decimal.Decimal, error) {
		v, cerr := calc.Calculate(ctx, entry.Source, entryType, qty, unit, intensity)
		if cerr == nil {
			return v, nil
		}
		if errors.Is(cerr, ErrValidation) {
			return decimal.Zero, cerr
		}
		// External calculator down: best-effort with the built-in factors.
		degraded = true
		v, ferr := builtinCalculator.Calculate(ctx, entry.Source, entryType, qty, unit, intensity)
		if ferr != nil {
			return decimal.Zero, &ExternalServiceError{Service: "factor_calculator", Err: cerr}
		}
		return v, nil
	}

	switch entry.EntryType {
	case EntryTypeTripBatch:
		var trips []Trip
		if err := json.Unmarshal(entry.Details, &trips); err != nil {
			return decimal.Zero, degraded, &ValidationError{Field: "trips", Message: "malformed trip batch"}
		}
		total := decimal.Zero
		for _, trip := range trips {
			qty := decimal.NewFromFloat(trip.DistanceKM).Mul(decimal.NewFromInt(int64(trip.Passengers)))
			v, cerr := calcOne(trip.Mode, qty, UnitKm)
			if cerr != nil {
				return decimal.Zero, degraded, cerr
			}
			total = total.Add(v)
		}
		return total, degraded, nil

	case EntryTypeCSVImport:
		var rows []CloudCostRow
		if err := json.Unmarshal(entry.Details, &rows); err != nil {
			return decimal.Zero, degraded, &ValidationError{Field: "rows", Message: "malformed billing rows"}
		}
		total := decimal.Zero
		for _, row := range rows {
			v, cerr := calcOne(EntryTypeCSVImport, decimal.NewFromFloat(row.CostUSD), UnitUSD)
			if cerr != nil {
				return decimal.Zero, degraded, cerr
			}
			total = total.Add(v)
		}
		return total, degraded, nil

	default:
		v, cerr := calcOne(entry.EntryType, entry.Quantity, entry.Unit)
		return v, degraded, cerr
	}
}

// builtinCalculator backs the best-effort path when an external calculator
// fails mid-request.
var builtinCalculator = NewFactorCalculator()

// resultStatus applies the status rules shared by gateway and engine:
// degraded results are submitted/estimated; zero quantity is submitted
// ("no activity" is a valid complete state); everything else calculated.
func resultStatus(entry SourceEntry, kg decimal.Decimal, degraded bool) (SourceStatus, Accuracy) {
	if degraded {
		return StatusSubmitted, AccuracyEstimated
	}
	if kg.IsZero() && entry.Quantity.IsZero() {
		return StatusSubmitted, baseAccuracy(entry.EntryType)
	}
	return StatusCalculated, baseAccuracy(entry.EntryType)
}

// =============================================================================
// PERIOD LOCKS
// =============================================================================

// PeriodLocks serializes mutations per (org, year, month). Shared between
// the gateway and the engine.
type PeriodLocks struct {
	mu    sync.Mutex
	locks map[Period]*sync.Mutex
}

func NewPeriodLocks() *PeriodLocks {
	return &PeriodLocks{locks: make(map[Period]*sync.Mutex)}
}

// Lock acquires the period's mutex and returns its unlock func.
func (p *PeriodLocks) Lock(period Period) func() {
	p.mu.Lock()
	m, ok := p.locks[period]
	if !ok {
		m = &sync.Mutex{}
		p.locks[period] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
