/*
gateway.go - Source Entry Submission Gateway

PURPOSE:
  Accepts a raw usage entry for one source in one period: validates the
  payload (every batch row before any write), computes its kg CO2e via
  the calculator and grid intensity, records the entry and its status,
  and invalidates the cached monthly ledger. Recomputation of the ledger
  itself is deferred to the recalculation engine.

IDEMPOTENCE:
  One entry per (period, source). Resubmitting replaces the prior entry
  and its contribution; the next recalculation cannot double-count.

FAILURE POSTURE:
  ValidationError   -> rejected, nothing written
  external failures -> entry still recorded, status=submitted,
                       accuracy=estimated, best-effort numbers; the user
                       is never blocked mid-onboarding

SEE ALSO:
  - compute.go: Shared quantity->kg path
  - engine.go: Rebuilds the ledger from recorded entries
*/
package emissions

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// SubmitResult reports one accepted submission.
type SubmitResult struct {
	KgCO2    decimal.Decimal
	Status   SourceStatus
	Accuracy Accuracy
}

// Gateway accepts source entries.
type Gateway struct {
	store    Store
	registry *Registry
	calc     Calculator
	resolver IntensityResolver
	locks    *PeriodLocks
	metrics  *Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewGateway wires a Gateway. metrics may be nil.
func NewGateway(store Store, registry *Registry, calc Calculator, resolver IntensityResolver, locks *PeriodLocks, metrics *Metrics, log zerolog.Logger) *Gateway {
	return &Gateway{
		store:    store,
		registry: registry,
		calc:     calc,
		resolver: resolver,
		locks:    locks,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// WithClock injects a clock for tests.
func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// =============================================================================
// PAYLOADS - One per source family
// =============================================================================

// CloudPayload submits cloud emissions either as a single monthly cost
// estimate or as imported billing rows. Exactly one of the two is set.
type CloudPayload struct {
	Provider       string         `json:"provider"`
	MonthlyCostUSD *float64       `json:"monthly_cost_usd,omitempty"`
	Rows           []CloudCostRow `json:"rows,omitempty"`
}

// CDNPayload submits a month's CDN transfer volume.
type CDNPayload struct {
	GBTransferred *float64 `json:"gb_transferred"`
}

// TravelPayload submits a batch of business trips.
type TravelPayload struct {
	Trips []Trip `json:"trips"`
}

// FleetPayload submits a month's fleet fuel consumption.
type FleetPayload struct {
	FuelLiters *float64 `json:"fuel_liters"`
}

// OnPremPayload submits a month's metered server energy.
type OnPremPayload struct {
	KWhConsumed *float64 `json:"kwh_consumed"`
}

// WorkforcePayload submits a month's in-office person-days.
type WorkforcePayload struct {
	OfficeDays *float64 `json:"office_days"`
}

// =============================================================================
// SUBMISSION OPERATIONS
// =============================================================================

// SubmitCloud accepts a cloud entry (cost estimate or CSV rows).
func (g *Gateway) SubmitCloud(ctx context.Context, period Period, payload CloudPayload) (SubmitResult, error) {
	if payload.Provider == "" {
		return SubmitResult{}, &ValidationError{Field: "provider", Message: "must not be empty"}
	}
	hasCost := payload.MonthlyCostUSD != nil
	hasRows := len(payload.Rows) > 0
	if hasCost == hasRows {
		return SubmitResult{}, &ValidationError{Field: "payload", Message: "exactly one of monthly_cost_usd or rows is required"}
	}

	if hasCost {
		if *payload.MonthlyCostUSD < 0 {
			return SubmitResult{}, &ValidationError{Field: "monthly_cost_usd", Message: "must be non-negative"}
		}
		return g.submit(ctx, period, SourceCloud, EntryTypeCostEstimate,
			decimal.NewFromFloat(*payload.MonthlyCostUSD), UnitUSD, nil)
	}

	// Every row validates before any write.
	total := decimal.Zero
	for i, row := range payload.Rows {
		if row.CostUSD < 0 {
			return SubmitResult{}, &ValidationError{Field: "rows", Message: rowField(i, "cost_usd must be non-negative")}
		}
		total = total.Add(decimal.NewFromFloat(row.CostUSD))
	}
	details, err := json.Marshal(payload.Rows)
	if err != nil {
		return SubmitResult{}, &ValidationError{Field: "rows", Message: "unserializable rows"}
	}
	return g.submit(ctx, period, SourceCloud, EntryTypeCSVImport, total, UnitUSD, details)
}

// SubmitCDN accepts a CDN transfer-volume entry.
func (g *Gateway) SubmitCDN(ctx context.Context, period Period, payload CDNPayload) (SubmitResult, error) {
	if payload.GBTransferred == nil {
		return SubmitResult{}, &ValidationError{Field: "gb_transferred", Message: "is required"}
	}
	if *payload.GBTransferred < 0 {
		return SubmitResult{}, &ValidationError{Field: "gb_transferred", Message: "must be non-negative"}
	}
	return g.submit(ctx, period, SourceCDN, EntryTypeTransfer,
		decimal.NewFromFloat(*payload.GBTransferred), UnitGB, nil)
}

// SubmitTravel accepts a batch of trips. All rows validate before any write.
func (g *Gateway) SubmitTravel(ctx context.Context, period Period, payload TravelPayload) (SubmitResult, error) {
	if payload.Trips == nil {
		return SubmitResult{}, &ValidationError{Field: "trips", Message: "is required"}
	}
	total := decimal.Zero
	for i, trip := range payload.Trips {
		if !ValidTravelMode(trip.Mode) {
			return SubmitResult{}, &ValidationError{Field: "trips", Message: rowField(i, "unknown mode "+trip.Mode)}
		}
		if trip.DistanceKM < 0 {
			return SubmitResult{}, &ValidationError{Field: "trips", Message: rowField(i, "distance_km must be non-negative")}
		}
		if trip.Passengers < 1 {
			return SubmitResult{}, &ValidationError{Field: "trips", Message: rowField(i, "passengers must be at least 1")}
		}
		total = total.Add(decimal.NewFromFloat(trip.DistanceKM).Mul(decimal.NewFromInt(int64(trip.Passengers))))
	}
	details, err := json.Marshal(payload.Trips)
	if err != nil {
		return SubmitResult{}, &ValidationError{Field: "trips", Message: "unserializable trips"}
	}
	return g.submit(ctx, period, SourceTravel, EntryTypeTripBatch, total, UnitKm, details)
}

// SubmitFleet accepts a fleet fuel entry.
func (g *Gateway) SubmitFleet(ctx context.Context, period Period, payload FleetPayload) (SubmitResult, error) {
	if payload.FuelLiters == nil {
		return SubmitResult{}, &ValidationError{Field: "fuel_liters", Message: "is required"}
	}
	if *payload.FuelLiters < 0 {
		return SubmitResult{}, &ValidationError{Field: "fuel_liters", Message: "must be non-negative"}
	}
	return g.submit(ctx, period, SourceFleet, EntryTypeFuelLog,
		decimal.NewFromFloat(*payload.FuelLiters), UnitLiters, nil)
}

// SubmitOnPrem accepts a metered server-energy entry.
func (g *Gateway) SubmitOnPrem(ctx context.Context, period Period, payload OnPremPayload) (SubmitResult, error) {
	if payload.KWhConsumed == nil {
		return SubmitResult{}, &ValidationError{Field: "kwh_consumed", Message: "is required"}
	}
	if *payload.KWhConsumed < 0 {
		return SubmitResult{}, &ValidationError{Field: "kwh_consumed", Message: "must be non-negative"}
	}
	return g.submit(ctx, period, SourceOnPrem, EntryTypeEnergy,
		decimal.NewFromFloat(*payload.KWhConsumed), UnitKWh, nil)
}

// SubmitWorkforce accepts an office person-days entry.
func (g *Gateway) SubmitWorkforce(ctx context.Context, period Period, payload WorkforcePayload) (SubmitResult, error) {
	if payload.OfficeDays == nil {
		return SubmitResult{}, &ValidationError{Field: "office_days", Message: "is required"}
	}
	if *payload.OfficeDays < 0 {
		return SubmitResult{}, &ValidationError{Field: "office_days", Message: "must be non-negative"}
	}
	return g.submit(ctx, period, SourceWorkforce, EntryTypeOfficeDays,
		decimal.NewFromFloat(*payload.OfficeDays), UnitDays, nil)
}

// =============================================================================
// COMMON SUBMISSION PATH
// =============================================================================

func (g *Gateway) submit(ctx context.Context, period Period, source SourceType, entryType string, quantity decimal.Decimal, unit string, details []byte) (SubmitResult, error) {
	unlock := g.locks.Lock(period)
	defer unlock()

	// ErrNotConfigured means nothing to aggregate yet, not a failure: an
	// org may submit its first entry before finishing source setup.
	cfg, err := g.registry.Config(ctx, period.OrgID)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return SubmitResult{}, err
	}

	entry := SourceEntry{
		ID:          uuid.NewString(),
		Period:      period,
		Source:      source,
		EntryType:   entryType,
		Quantity:    quantity,
		Unit:        unit,
		Details:     details,
		SubmittedAt: g.now().UTC(),
	}

	kg, degraded, err := computeEntryKg(ctx, g.calc, g.resolver, cfg, entry)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return SubmitResult{}, err
		}
		// Even best-effort failed: record the entry anyway so the user is
		// not blocked; the kg stays unknown until a later recalculation.
		g.log.Warn().Err(err).Str("period", period.String()).Str("source", string(source)).
			Msg("calculation degraded, recording entry without kg")
		return g.persist(ctx, entry, nil, StatusSubmitted, AccuracyEstimated)
	}

	status, accuracy := resultStatus(entry, kg, degraded)
	return g.persist(ctx, entry, &kg, status, accuracy)
}

func (g *Gateway) persist(ctx context.Context, entry SourceEntry, kg *decimal.Decimal, status SourceStatus, accuracy Accuracy) (SubmitResult, error) {
	if err := g.store.UpsertEntry(ctx, entry); err != nil {
		return SubmitResult{}, err
	}
	if err := g.store.UpsertStatus(ctx, DataSourceStatus{
		Period:      entry.Period,
		Source:      entry.Source,
		Status:      status,
		Accuracy:    accuracy,
		KgCO2:       kg,
		LastUpdated: entry.SubmittedAt,
	}); err != nil {
		return SubmitResult{}, err
	}
	// Invalidate, never recompute here: the engine owns ledger rebuilds.
	if err := g.store.InvalidateLedger(ctx, entry.Period); err != nil {
		return SubmitResult{}, err
	}

	g.metrics.ObserveSubmission(entry.Source, status)

	result := SubmitResult{Status: status, Accuracy: accuracy}
	if kg != nil {
		result.KgCO2 = *kg
	}
	return result, nil
}

func rowField(i int, msg string) string {
	return "row " + strconv.Itoa(i) + ": " + msg
}
