package emissions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opti100/carbonledger/emissions"
)

// mapLedgers serves canned monthly ledgers keyed by period.
type mapLedgers struct {
	ledgers map[emissions.Period]emissions.MonthlyLedger
}

func (m *mapLedgers) Ledger(_ context.Context, period emissions.Period) (emissions.MonthlyLedger, error) {
	ledger, ok := m.ledgers[period]
	if !ok {
		return emissions.MonthlyLedger{}, errors.New("ledger unavailable")
	}
	return ledger, nil
}

func monthLedger(orgID string, month time.Month, scope2, scope3 int64) emissions.MonthlyLedger {
	s2 := decimal.NewFromInt(scope2)
	s3 := decimal.NewFromInt(scope3)
	return emissions.MonthlyLedger{
		Period:     emissions.Period{OrgID: orgID, Year: 2023, Month: month},
		TotalKg:    s2.Add(s3),
		Scope2Kg:   s2,
		Scope3Kg:   s3,
		IsComplete: true,
	}
}

func TestSummary_BrokenMonthSkippedNotZeroed(t *testing.T) {
	// GIVEN: 11 of 12 months resolve, July fails
	// WHEN: Building the yearly summary
	// THEN: 11 months are reported; July is absent, not counted as zero

	ledgers := &mapLedgers{ledgers: map[emissions.Period]emissions.MonthlyLedger{}}
	for month := time.January; month <= time.December; month++ {
		if month == time.July {
			continue
		}
		ledgers.ledgers[emissions.Period{OrgID: "acme", Year: 2023, Month: month}] =
			monthLedger("acme", month, 100, 200)
	}
	rollup := emissions.NewRollup(ledgers, zerolog.Nop())
	rollup.WithClock(func() time.Time {
		return time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	})

	summary, err := rollup.Summary(context.Background(), "acme", 2023)
	require.NoError(t, err)

	assert.Equal(t, 11, summary.MonthsReported)
	assert.Len(t, summary.Months, 11)
	for _, m := range summary.Months {
		assert.NotEqual(t, time.July, m.Month)
	}
	assert.True(t, summary.TotalKg.Equal(decimal.NewFromInt(11*300)),
		"total is the sum of reported months only")
	assert.True(t, summary.Scope2Kg.Equal(decimal.NewFromInt(11*100)))
	assert.True(t, summary.Scope3Kg.Equal(decimal.NewFromInt(11*200)))
}

func TestSummary_TonnesDerivedFromKg(t *testing.T) {
	ledgers := &mapLedgers{ledgers: map[emissions.Period]emissions.MonthlyLedger{
		{OrgID: "acme", Year: 2023, Month: time.March}: monthLedger("acme", time.March, 1500, 2500),
	}}
	rollup := emissions.NewRollup(ledgers, zerolog.Nop())
	rollup.WithClock(func() time.Time {
		return time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	})

	summary, err := rollup.Summary(context.Background(), "acme", 2023)
	require.NoError(t, err)

	assert.True(t, summary.TotalTonnes.Equal(decimal.NewFromInt(4)),
		"4000 kg is 4 tonnes, got %s", summary.TotalTonnes)
	assert.True(t, summary.Scope2Tonnes.Equal(decimal.NewFromFloat(1.5)))
	assert.True(t, summary.Scope3Tonnes.Equal(decimal.NewFromFloat(2.5)))
}

func TestSummary_CurrentYearStopsAtCurrentMonth(t *testing.T) {
	// Future months of the running year are not queried at all.
	queried := map[time.Month]bool{}
	ledgers := &mapLedgers{ledgers: map[emissions.Period]emissions.MonthlyLedger{}}
	for month := time.January; month <= time.December; month++ {
		ledgers.ledgers[emissions.Period{OrgID: "acme", Year: 2024, Month: month}] =
			monthLedger("acme", month, 10, 20)
	}
	rollup := emissions.NewRollup(recordingLedgers{inner: ledgers, seen: queried}, zerolog.Nop())
	rollup.WithClock(func() time.Time {
		return time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	})

	summary, err := rollup.Summary(context.Background(), "acme", 2024)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.MonthsReported)
	assert.False(t, queried[time.July], "future months must not be fetched")
	assert.True(t, queried[time.June])
}

func TestSummary_EmptyOrgRejected(t *testing.T) {
	rollup := emissions.NewRollup(&mapLedgers{}, zerolog.Nop())

	_, err := rollup.Summary(context.Background(), "", 2023)
	assert.ErrorIs(t, err, emissions.ErrValidation)
}

// recordingLedgers wraps a LedgerProvider and records queried months.
type recordingLedgers struct {
	inner emissions.LedgerProvider
	seen  map[time.Month]bool
}

func (r recordingLedgers) Ledger(ctx context.Context, period emissions.Period) (emissions.MonthlyLedger, error) {
	r.seen[period.Month] = true
	return r.inner.Ledger(ctx, period)
}
