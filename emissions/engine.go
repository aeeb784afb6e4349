/*
engine.go - Recalculation Engine

PURPOSE:
  Rebuilds a period's full ledger (totals + scope breakdown) from all
  recorded entries, deterministically. The engine is the only writer of
  MonthlyLedger records.

ALGORITHM:
  1. Gather every SourceEntry for the period (including auto-tracked ones
     written outside this core) plus the existing status set
  2. Seed pending statuses for configured-but-unsubmitted sources
  3. For each entry, compute kg via the shared path (grid intensity for
     electricity-based sources) and bucket it into its fixed scope
  4. Verify scope sums reconcile with the independently-accumulated total
  5. Persist statuses and the new ledger; a failure anywhere leaves the
     previous ledger intact

DETERMINISM:
  Entries are processed in canonical source order, amounts are decimal,
  and GeneratedAt derives from the newest entry's submission time rather
  than the wall clock, so recalculating with unchanged inputs yields a
  bit-identical ledger.

SEE ALSO:
  - compute.go: Shared quantity->kg computation
  - rollup.go: Consumes many monthly ledgers
*/
package emissions

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Engine rebuilds monthly ledgers.
type Engine struct {
	store    Store
	registry *Registry
	calc     Calculator
	resolver IntensityResolver
	locks    *PeriodLocks
	metrics  *Metrics
	log      zerolog.Logger
}

// NewEngine wires an Engine. metrics may be nil.
func NewEngine(store Store, registry *Registry, calc Calculator, resolver IntensityResolver, locks *PeriodLocks, metrics *Metrics, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		calc:     calc,
		resolver: resolver,
		locks:    locks,
		metrics:  metrics,
		log:      log,
	}
}

// Recalculate rebuilds and persists the period's ledger.
func (e *Engine) Recalculate(ctx context.Context, period Period) (MonthlyLedger, error) {
	start := time.Now()
	ledger, err := e.recalculate(ctx, period)
	switch {
	case err == nil:
		e.metrics.ObserveRecalculation("ok", time.Since(start))
	case errors.Is(err, ErrConsistency):
		e.metrics.ObserveRecalculation("consistency_error", time.Since(start))
	default:
		e.metrics.ObserveRecalculation("error", time.Since(start))
	}
	return ledger, err
}

func (e *Engine) recalculate(ctx context.Context, period Period) (MonthlyLedger, error) {
	unlock := e.locks.Lock(period)
	defer unlock()

	cfg, err := e.registry.Config(ctx, period.OrgID)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return MonthlyLedger{}, err
	}

	entries, err := e.store.ListEntries(ctx, period)
	if err != nil {
		return MonthlyLedger{}, err
	}
	sortEntries(entries)

	existing, err := e.store.ListStatuses(ctx, period)
	if err != nil {
		return MonthlyLedger{}, err
	}
	statusBySource := make(map[SourceType]DataSourceStatus, len(existing))
	for _, s := range existing {
		statusBySource[s.Source] = s
	}

	entryBySource := make(map[SourceType]SourceEntry, len(entries))
	for _, entry := range entries {
		entryBySource[entry.Source] = entry
	}

	// Seed statuses for configured sources nothing was submitted for.
	// Auto-handled sources never wait on the user, so they are tracked,
	// not pending.
	latest := time.Time{}
	for _, entry := range entries {
		if entry.SubmittedAt.After(latest) {
			latest = entry.SubmittedAt
		}
	}
	for _, source := range cfg.EnabledSources() {
		if _, ok := entryBySource[source]; ok {
			continue
		}
		if _, ok := statusBySource[source]; ok {
			continue
		}
		status := StatusPending
		if source.AutoHandled() {
			status = StatusAutoTracked
		}
		statusBySource[source] = DataSourceStatus{
			Period:      period,
			Source:      source,
			Status:      status,
			Accuracy:    AccuracyEstimated,
			LastUpdated: latest,
		}
	}

	// Aggregate. The total accumulates independently of the scope buckets
	// so the reconciliation check below is a real check, not a tautology.
	var total decimal.Decimal
	scopes := map[Scope]decimal.Decimal{Scope1: decimal.Zero, Scope2: decimal.Zero, Scope3: decimal.Zero}
	for _, entry := range entries {
		kg, degraded, err := computeEntryKg(ctx, e.calc, e.resolver, cfg, entry)
		if err != nil {
			if errors.Is(err, ErrValidation) {
				// Entries were validated at submission; a validation error
				// here means stored data no longer matches the factor
				// model. Fatal to this attempt, prior ledger retained.
				return MonthlyLedger{}, err
			}
			// Externally degraded and even best-effort failed: contribute
			// nothing, keep the source visible as submitted/estimated.
			e.log.Warn().Err(err).Str("period", period.String()).Str("source", string(entry.Source)).
				Msg("entry contribution unavailable during recalculation")
			statusBySource[entry.Source] = statusRecord(entry, nil, StatusSubmitted, AccuracyEstimated)
			continue
		}

		status, accuracy := resultStatus(entry, kg, degraded)
		if existing, ok := statusBySource[entry.Source]; ok && isAuto(existing.Status) {
			// SDK-ingested sources keep their auto status through rebuilds.
			status = existing.Status
		} else if entry.Source.AutoHandled() {
			status = StatusAutoTracked
		}
		statusBySource[entry.Source] = statusRecord(entry, &kg, status, accuracy)

		total = total.Add(kg)
		scope := entry.Source.ScopeOf()
		scopes[scope] = scopes[scope].Add(kg)
	}

	scopeSum := scopes[Scope1].Add(scopes[Scope2]).Add(scopes[Scope3])
	if !scopeSum.Equal(total) {
		return MonthlyLedger{}, &ConsistencyError{
			Period:   period,
			Total:    total.String(),
			ScopeSum: scopeSum.String(),
		}
	}

	pending := 0
	for _, s := range statusBySource {
		if s.Status.BlocksCompletion() {
			pending++
		}
	}

	ledger := MonthlyLedger{
		Period:         period,
		TotalKg:        total,
		Scope1Kg:       scopes[Scope1],
		Scope2Kg:       scopes[Scope2],
		Scope3Kg:       scopes[Scope3],
		PendingEntries: pending,
		IsComplete:     pending == 0,
		GeneratedAt:    latest,
	}

	for _, source := range sortedSources(statusBySource) {
		if err := e.store.UpsertStatus(ctx, statusBySource[source]); err != nil {
			return MonthlyLedger{}, err
		}
	}
	if err := e.store.SaveLedger(ctx, ledger); err != nil {
		return MonthlyLedger{}, err
	}
	return ledger, nil
}

// Ledger returns the stored ledger for a period, rebuilding it lazily
// when absent or invalidated.
func (e *Engine) Ledger(ctx context.Context, period Period) (MonthlyLedger, error) {
	ledger, err := e.store.GetLedger(ctx, period)
	if err == nil {
		return ledger, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return MonthlyLedger{}, err
	}
	return e.Recalculate(ctx, period)
}

func statusRecord(entry SourceEntry, kg *decimal.Decimal, status SourceStatus, accuracy Accuracy) DataSourceStatus {
	return DataSourceStatus{
		Period:      entry.Period,
		Source:      entry.Source,
		Status:      status,
		Accuracy:    accuracy,
		KgCO2:       kg,
		LastUpdated: entry.SubmittedAt,
	}
}

func isAuto(s SourceStatus) bool {
	return s == StatusAutoCalculated || s == StatusAutoTracked
}

// sortEntries orders entries by canonical source order, the determinism
// anchor for aggregation.
func sortEntries(entries []SourceEntry) {
	rank := make(map[SourceType]int, len(AllSources))
	for i, s := range AllSources {
		rank[s] = i
	}
	sort.Slice(entries, func(i, j int) bool {
		return rank[entries[i].Source] < rank[entries[j].Source]
	})
}

func sortedSources(m map[SourceType]DataSourceStatus) []SourceType {
	var sources []SourceType
	for _, s := range AllSources {
		if _, ok := m[s]; ok {
			sources = append(sources, s)
		}
	}
	return sources
}
