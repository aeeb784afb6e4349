/*
store.go - Persistence interface for entries, statuses, and ledgers

PURPOSE:
  Defines the interface between the emissions core and the database.
  The core defines the schema and which operations must be atomic; the
  storage engine (SQLite, PostgreSQL, memory) is an implementation detail.

REPLACE SEMANTICS:
  UpsertEntry replaces any prior entry for the same (period, source).
  There is never more than one entry per key, so recalculation cannot
  double-count a resubmitted source.

ATOMIC LEDGER REPLACEMENT:
  SaveLedger replaces the stored ledger in one step. The engine only calls
  it after a fully reconciled ledger is in hand, so a failed recalculation
  leaves the previous ledger intact.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite (WAL mode)
  - emissions/store/memory.go: In-memory for testing

SEE ALSO:
  - engine.go: Reads entries/statuses, writes ledgers
  - gateway.go: Writes entries/statuses, invalidates ledgers
*/
package emissions

import "context"

// Store handles persistence for the emissions core.
type Store interface {
	// UpsertEntry writes a source entry, replacing any prior entry for the
	// same (period, source).
	UpsertEntry(ctx context.Context, entry SourceEntry) error

	// ListEntries returns all entries for a period, one per source at most.
	ListEntries(ctx context.Context, period Period) ([]SourceEntry, error)

	// UpsertStatus writes the status record for (period, source).
	UpsertStatus(ctx context.Context, status DataSourceStatus) error

	// ListStatuses returns all status records for a period.
	ListStatuses(ctx context.Context, period Period) ([]DataSourceStatus, error)

	// SaveLedger atomically replaces the stored ledger for the period.
	SaveLedger(ctx context.Context, ledger MonthlyLedger) error

	// GetLedger returns the stored ledger. ErrNotFound when absent or
	// invalidated.
	GetLedger(ctx context.Context, period Period) (MonthlyLedger, error)

	// InvalidateLedger drops the cached ledger for the period so the next
	// read triggers recalculation. Dropping an absent ledger is not an error.
	InvalidateLedger(ctx context.Context, period Period) error

	// SaveSourceConfig writes an org's source configuration.
	SaveSourceConfig(ctx context.Context, orgID string, cfg SourceConfig) error

	// GetSourceConfig returns an org's source configuration. ErrNotFound
	// when the org has never been configured.
	GetSourceConfig(ctx context.Context, orgID string) (SourceConfig, error)
}
