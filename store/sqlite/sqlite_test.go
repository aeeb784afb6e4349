package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opti100/carbonledger/emissions"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testPeriod() emissions.Period {
	return emissions.Period{OrgID: "acme", Year: 2024, Month: time.June}
}

// =============================================================================
// ENTRIES
// =============================================================================

func TestEntries_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := testPeriod()

	entry := emissions.SourceEntry{
		ID:          "e-1",
		Period:      period,
		Source:      emissions.SourceCloud,
		EntryType:   emissions.EntryTypeCostEstimate,
		Quantity:    decimal.NewFromFloat(512.75),
		Unit:        emissions.UnitUSD,
		Details:     []byte(`[{"service":"ec2","cost_usd":512.75}]`),
		SubmittedAt: time.Date(2024, time.June, 20, 12, 30, 45, 123456789, time.UTC),
	}
	require.NoError(t, store.UpsertEntry(ctx, entry))

	entries, err := store.ListEntries(ctx, period)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, entry.Source, got.Source)
	assert.Equal(t, entry.EntryType, got.EntryType)
	assert.True(t, entry.Quantity.Equal(got.Quantity), "decimal survives the text round trip exactly")
	assert.Equal(t, entry.Unit, got.Unit)
	assert.Equal(t, entry.Details, got.Details)
	assert.True(t, entry.SubmittedAt.Equal(got.SubmittedAt), "nanosecond timestamps survive")
}

func TestUpsertEntry_ReplacesOnSamePeriodSource(t *testing.T) {
	// One entry per (org, year, month, source): the second write wins.
	store := newTestStore(t)
	ctx := context.Background()
	period := testPeriod()

	first := emissions.SourceEntry{
		ID: "e-1", Period: period, Source: emissions.SourceCDN,
		EntryType: emissions.EntryTypeTransfer,
		Quantity:  decimal.NewFromInt(100), Unit: emissions.UnitGB,
		SubmittedAt: time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.UpsertEntry(ctx, first))

	second := first
	second.ID = "e-2"
	second.Quantity = decimal.NewFromInt(250)
	second.SubmittedAt = first.SubmittedAt.Add(time.Hour)
	require.NoError(t, store.UpsertEntry(ctx, second))

	entries, err := store.ListEntries(ctx, period)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "e-2", entries[0].ID)
	assert.True(t, second.Quantity.Equal(entries[0].Quantity))
}

func TestListEntries_ScopedToPeriod(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, period := range []emissions.Period{
		{OrgID: "acme", Year: 2024, Month: time.June},
		{OrgID: "acme", Year: 2024, Month: time.July},
		{OrgID: "umbrella", Year: 2024, Month: time.June},
	} {
		require.NoError(t, store.UpsertEntry(ctx, emissions.SourceEntry{
			ID: "e-" + period.String(), Period: period, Source: emissions.SourceCDN,
			EntryType: emissions.EntryTypeTransfer,
			Quantity:  decimal.NewFromInt(1), Unit: emissions.UnitGB,
			SubmittedAt: time.Now().UTC(),
		}))
	}

	entries, err := store.ListEntries(ctx, testPeriod())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "neighboring periods and orgs must not leak in")
}

// =============================================================================
// STATUSES
// =============================================================================

func TestStatuses_RoundTripWithAndWithoutKg(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := testPeriod()

	kg := decimal.NewFromFloat(35.412)
	require.NoError(t, store.UpsertStatus(ctx, emissions.DataSourceStatus{
		Period: period, Source: emissions.SourceCloud,
		Status: emissions.StatusCalculated, Accuracy: emissions.AccuracyMedium,
		KgCO2:       &kg,
		LastUpdated: time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, store.UpsertStatus(ctx, emissions.DataSourceStatus{
		Period: period, Source: emissions.SourceTravel,
		Status: emissions.StatusPending, Accuracy: emissions.AccuracyHigh,
		LastUpdated: time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC),
	}))

	statuses, err := store.ListStatuses(ctx, period)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	bySource := map[emissions.SourceType]emissions.DataSourceStatus{}
	for _, s := range statuses {
		bySource[s.Source] = s
	}
	require.NotNil(t, bySource[emissions.SourceCloud].KgCO2)
	assert.True(t, kg.Equal(*bySource[emissions.SourceCloud].KgCO2))
	assert.Nil(t, bySource[emissions.SourceTravel].KgCO2, "pending statuses carry no kg")
}

func TestUpsertStatus_Replaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := testPeriod()

	require.NoError(t, store.UpsertStatus(ctx, emissions.DataSourceStatus{
		Period: period, Source: emissions.SourceCloud,
		Status: emissions.StatusPending, Accuracy: emissions.AccuracyMedium,
		LastUpdated: time.Now().UTC(),
	}))
	kg := decimal.NewFromInt(42)
	require.NoError(t, store.UpsertStatus(ctx, emissions.DataSourceStatus{
		Period: period, Source: emissions.SourceCloud,
		Status: emissions.StatusCalculated, Accuracy: emissions.AccuracyMedium,
		KgCO2:       &kg,
		LastUpdated: time.Now().UTC(),
	}))

	statuses, err := store.ListStatuses(ctx, period)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, emissions.StatusCalculated, statuses[0].Status)
}

// =============================================================================
// LEDGERS
// =============================================================================

func TestLedger_SaveGetInvalidate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := testPeriod()

	_, err := store.GetLedger(ctx, period)
	assert.ErrorIs(t, err, emissions.ErrNotFound)

	ledger := emissions.MonthlyLedger{
		Period:         period,
		TotalKg:        decimal.NewFromFloat(618.712),
		Scope1Kg:       decimal.NewFromFloat(184.8),
		Scope2Kg:       decimal.NewFromFloat(398.5),
		Scope3Kg:       decimal.NewFromFloat(35.412),
		PendingEntries: 1,
		IsComplete:     false,
		GeneratedAt:    time.Date(2024, time.June, 20, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveLedger(ctx, ledger))

	got, err := store.GetLedger(ctx, period)
	require.NoError(t, err)
	assert.True(t, ledger.TotalKg.Equal(got.TotalKg))
	assert.True(t, ledger.Scope1Kg.Equal(got.Scope1Kg))
	assert.True(t, ledger.Scope2Kg.Equal(got.Scope2Kg))
	assert.True(t, ledger.Scope3Kg.Equal(got.Scope3Kg))
	assert.Equal(t, ledger.PendingEntries, got.PendingEntries)
	assert.Equal(t, ledger.IsComplete, got.IsComplete)
	assert.True(t, ledger.GeneratedAt.Equal(got.GeneratedAt))

	require.NoError(t, store.InvalidateLedger(ctx, period))
	_, err = store.GetLedger(ctx, period)
	assert.ErrorIs(t, err, emissions.ErrNotFound)
}

func TestSaveLedger_OverwritesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	period := testPeriod()

	base := emissions.MonthlyLedger{Period: period, GeneratedAt: time.Now().UTC()}
	base.TotalKg = decimal.NewFromInt(100)
	require.NoError(t, store.SaveLedger(ctx, base))

	base.TotalKg = decimal.NewFromInt(250)
	base.IsComplete = true
	require.NoError(t, store.SaveLedger(ctx, base))

	got, err := store.GetLedger(ctx, period)
	require.NoError(t, err)
	assert.True(t, got.TotalKg.Equal(decimal.NewFromInt(250)))
	assert.True(t, got.IsComplete)
}

// =============================================================================
// SOURCE CONFIGS
// =============================================================================

func TestSourceConfig_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSourceConfig(ctx, "acme")
	assert.ErrorIs(t, err, emissions.ErrNotFound)

	cfg := emissions.SourceConfig{
		CloudProviders: []emissions.CloudProviderConfig{{Provider: "aws", Country: "Germany"}},
		CDN:            &emissions.CDNConfig{Provider: "cloudfront"},
		Travel:         &emissions.TravelConfig{},
		WebsiteTracked: true,
	}
	require.NoError(t, store.SaveSourceConfig(ctx, "acme", cfg))

	got, err := store.GetSourceConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	cfg.CDN = nil
	require.NoError(t, store.SaveSourceConfig(ctx, "acme", cfg))
	got, err = store.GetSourceConfig(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, got.CDN, "saving replaces the whole config")
}
