package emissions_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opti100/carbonledger/emissions"
	"github.com/opti100/carbonledger/grid"
)

// =============================================================================
// VALIDATION - Rejected payloads write nothing
// =============================================================================

func TestSubmitCloud_NegativeCost_RejectedNothingWritten(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()
	configure(t, core, "acme", fullConfig())
	period := testPeriod("acme")

	_, err := core.gateway.SubmitCloud(ctx, period, emissions.CloudPayload{Provider: "aws", MonthlyCostUSD: f64(-10)})

	assert.ErrorIs(t, err, emissions.ErrValidation)
	entries, lerr := core.store.ListEntries(ctx, period)
	require.NoError(t, lerr)
	assert.Empty(t, entries, "rejected submission must not write an entry")
}

func TestSubmitTravel_OneBadRow_WholeBatchRejected(t *testing.T) {
	// Every row validates before any write: a bad row in the middle of a
	// batch rejects the whole batch.
	core := newTestCore(t)
	ctx := context.Background()
	configure(t, core, "acme", fullConfig())
	period := testPeriod("acme")

	_, err := core.gateway.SubmitTravel(ctx, period, emissions.TravelPayload{Trips: []emissions.Trip{
		{Mode: emissions.TravelModeFlight, DistanceKM: 500, Passengers: 1},
		{Mode: "teleport", DistanceKM: 100, Passengers: 1},
		{Mode: emissions.TravelModeRail, DistanceKM: 200, Passengers: 1},
	}})

	assert.ErrorIs(t, err, emissions.ErrValidation)
	entries, lerr := core.store.ListEntries(ctx, period)
	require.NoError(t, lerr)
	assert.Empty(t, entries)
}

func TestSubmitCloud_BothCostAndRows_Rejected(t *testing.T) {
	core := newTestCore(t)
	configure(t, core, "acme", fullConfig())

	_, err := core.gateway.SubmitCloud(context.Background(), testPeriod("acme"), emissions.CloudPayload{
		Provider:       "aws",
		MonthlyCostUSD: f64(100),
		Rows:           []emissions.CloudCostRow{{Service: "ec2", CostUSD: 50}},
	})

	assert.ErrorIs(t, err, emissions.ErrValidation)
}

// =============================================================================
// IDEMPOTENCE - Resubmission replaces, never appends
// =============================================================================

func TestSubmit_Resubmission_ReplacesPriorContribution(t *testing.T) {
	// GIVEN: A cloud entry for $500
	// WHEN: Resubmitting $300 for the same (period, source)
	// THEN: The recalculated ledger reflects only the $300 entry

	core := newTestCore(t)
	ctx := context.Background()
	configure(t, core, "acme", emissions.SourceConfig{
		CloudProviders: []emissions.CloudProviderConfig{{Provider: "aws", Country: "Germany"}},
	})
	period := testPeriod("acme")

	_, err := core.gateway.SubmitCloud(ctx, period, emissions.CloudPayload{Provider: "aws", MonthlyCostUSD: f64(500)})
	require.NoError(t, err)
	second, err := core.gateway.SubmitCloud(ctx, period, emissions.CloudPayload{Provider: "aws", MonthlyCostUSD: f64(300)})
	require.NoError(t, err)

	entries, err := core.store.ListEntries(ctx, period)
	require.NoError(t, err)
	require.Len(t, entries, 1, "resubmission must replace, never append")

	ledger, err := core.engine.Recalculate(ctx, period)
	require.NoError(t, err)
	assert.True(t, ledger.TotalKg.Equal(second.KgCO2),
		"ledger %s must equal the replacing entry's %s, not the sum", ledger.TotalKg, second.KgCO2)
}

// =============================================================================
// ZERO QUANTITY - "No activity" is a valid complete state
// =============================================================================

func TestSubmitCDN_ZeroTransfer_SubmittedNotPending(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()
	configure(t, core, "acme", emissions.SourceConfig{
		CDN: &emissions.CDNConfig{Provider: "cloudfront"},
	})
	period := testPeriod("acme")

	result, err := core.gateway.SubmitCDN(ctx, period, emissions.CDNPayload{GBTransferred: f64(0)})
	require.NoError(t, err)

	assert.True(t, result.KgCO2.IsZero())
	assert.Equal(t, emissions.StatusSubmitted, result.Status)

	ledger, err := core.engine.Recalculate(ctx, period)
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.PendingEntries, "zero activity is complete, not pending")
	assert.True(t, ledger.IsComplete)
}

// =============================================================================
// DEGRADED EXTERNALS - Users are never blocked
// =============================================================================

// downCalculator simulates an unavailable external factor calculator.
type downCalculator struct{}

func (downCalculator) Calculate(context.Context, emissions.SourceType, string, decimal.Decimal, string, *grid.Record) (decimal.Decimal, error) {
	return decimal.Zero, &emissions.ExternalServiceError{Service: "factor_calculator", Err: errors.New("connection refused")}
}

func TestSubmit_CalculatorDown_RecordedDegraded(t *testing.T) {
	// GIVEN: The external factor calculator is unreachable
	// WHEN: Submitting a valid entry
	// THEN: The submission succeeds with status=submitted, accuracy=estimated

	core := newTestCore(t)
	gateway := emissions.NewGateway(core.store, emissions.NewRegistry(core.store),
		downCalculator{}, apiResolver(), emissions.NewPeriodLocks(), nil, zerolog.Nop())
	ctx := context.Background()
	configure(t, core, "acme", fullConfig())
	period := testPeriod("acme")

	result, err := gateway.SubmitCloud(ctx, period, emissions.CloudPayload{Provider: "aws", MonthlyCostUSD: f64(500)})
	require.NoError(t, err, "external failures must not block the user")

	assert.Equal(t, emissions.StatusSubmitted, result.Status)
	assert.Equal(t, emissions.AccuracyEstimated, result.Accuracy)
	assert.True(t, result.KgCO2.IsPositive(), "best-effort fallback still produces a number")

	entries, err := core.store.ListEntries(ctx, period)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "entry is recorded despite the degradation")
}

func TestSubmit_FallbackIntensity_DegradedAccuracy(t *testing.T) {
	// A fallback-tagged intensity marks electricity-based submissions
	// degraded so data quality stays visible downstream.
	core := newTestCore(t)
	core.resolver.rec.DataSource = grid.SourceFallback
	ctx := context.Background()
	configure(t, core, "acme", fullConfig())

	result, err := core.gateway.SubmitCloud(ctx, testPeriod("acme"), emissions.CloudPayload{Provider: "aws", MonthlyCostUSD: f64(500)})
	require.NoError(t, err)

	assert.Equal(t, emissions.StatusSubmitted, result.Status)
	assert.Equal(t, emissions.AccuracyEstimated, result.Accuracy)
	assert.True(t, result.KgCO2.IsPositive())
}

func TestSubmitCDN_NoResolverCall(t *testing.T) {
	// CDN transfer uses a fixed factor; it must not touch the resolver.
	core := newTestCore(t)
	ctx := context.Background()
	configure(t, core, "acme", fullConfig())

	_, err := core.gateway.SubmitCDN(ctx, testPeriod("acme"), emissions.CDNPayload{GBTransferred: f64(1000)})
	require.NoError(t, err)

	assert.Equal(t, int64(0), core.resolver.calls.Load())
}

// =============================================================================
// LEDGER INVALIDATION
// =============================================================================

func TestSubmit_InvalidatesCachedLedger(t *testing.T) {
	core := newTestCore(t)
	ctx := context.Background()
	configure(t, core, "acme", fullConfig())
	period := testPeriod("acme")

	_, err := core.gateway.SubmitCDN(ctx, period, emissions.CDNPayload{GBTransferred: f64(100)})
	require.NoError(t, err)
	_, err = core.engine.Recalculate(ctx, period)
	require.NoError(t, err)

	_, err = core.gateway.SubmitCDN(ctx, period, emissions.CDNPayload{GBTransferred: f64(200)})
	require.NoError(t, err)

	_, err = core.store.GetLedger(ctx, period)
	assert.ErrorIs(t, err, emissions.ErrNotFound,
		"submission must invalidate, not recompute, the cached ledger")
}
