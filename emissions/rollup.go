/*
rollup.go - Yearly Rollup

PURPOSE:
  Iterates a year's months and sums their ledgers into a yearly summary.
  A month whose ledger cannot be fetched is logged and skipped - not
  treated as zero, and never aborting the whole rollup. MonthsReported
  counts only successfully fetched months.
*/
package emissions

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LedgerProvider fetches one period's ledger. The Engine satisfies it
// (stored ledger, lazily rebuilt when invalidated).
type LedgerProvider interface {
	Ledger(ctx context.Context, period Period) (MonthlyLedger, error)
}

// Rollup derives yearly summaries from monthly ledgers.
type Rollup struct {
	ledgers LedgerProvider
	log     zerolog.Logger
	now     func() time.Time
}

func NewRollup(ledgers LedgerProvider, log zerolog.Logger) *Rollup {
	return &Rollup{ledgers: ledgers, log: log, now: time.Now}
}

// WithClock injects a clock for tests.
func (r *Rollup) WithClock(now func() time.Time) *Rollup {
	r.now = now
	return r
}

// Summary builds the yearly summary for an org. For the current year only
// elapsed months are included; past years cover all twelve.
func (r *Rollup) Summary(ctx context.Context, orgID string, year int) (YearlySummary, error) {
	if orgID == "" {
		return YearlySummary{}, &ValidationError{Field: "org_id", Message: "must not be empty"}
	}

	lastMonth := 12
	if now := r.now().UTC(); year == now.Year() {
		lastMonth = int(now.Month())
	}

	summary := YearlySummary{OrgID: orgID, Year: year}
	for month := 1; month <= lastMonth; month++ {
		period := Period{OrgID: orgID, Year: year, Month: time.Month(month)}
		ledger, err := r.ledgers.Ledger(ctx, period)
		if err != nil {
			// Skipped, not zeroed: a broken month must not poison the year.
			r.log.Warn().Err(err).Str("period", period.String()).
				Msg("skipping month in yearly rollup")
			continue
		}

		summary.Months = append(summary.Months, MonthlySummary{
			Month:    period.Month,
			TotalKg:  ledger.TotalKg,
			Scope1Kg: ledger.Scope1Kg,
			Scope2Kg: ledger.Scope2Kg,
			Scope3Kg: ledger.Scope3Kg,
			Complete: ledger.IsComplete,
		})
		summary.MonthsReported++
		summary.TotalKg = summary.TotalKg.Add(ledger.TotalKg)
		summary.Scope1Kg = summary.Scope1Kg.Add(ledger.Scope1Kg)
		summary.Scope2Kg = summary.Scope2Kg.Add(ledger.Scope2Kg)
		summary.Scope3Kg = summary.Scope3Kg.Add(ledger.Scope3Kg)
	}

	summary.TotalTonnes = Tonnes(summary.TotalKg)
	summary.Scope1Tonnes = Tonnes(summary.Scope1Kg)
	summary.Scope2Tonnes = Tonnes(summary.Scope2Kg)
	summary.Scope3Tonnes = Tonnes(summary.Scope3Kg)
	return summary, nil
}
