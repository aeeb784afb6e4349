/*
Package sqlite provides a SQLite-backed implementation of emissions.Store.

PURPOSE:
  Implements the persistence interface using SQLite. In production the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  source_entries:   One row per (org, year, month, source); upsert replaces
  source_statuses:  Per-source progress for a period
  monthly_ledgers:  Aggregated ledger per period; deleted on invalidation
  source_configs:   Org source configuration, JSON blob

REPLACE SEMANTICS:
  source_entries and source_statuses use ON CONFLICT DO UPDATE on the
  (org, year, month, source) key. Resubmission can never double-count.

WAL MODE:
  Opened with WAL for better concurrency: multiple readers don't block,
  single writer at a time, better crash recovery.

USAGE:
  store, err := sqlite.New("./data/carbonledger.db")   // or ":memory:"

SEE ALSO:
  - emissions/store.go: Interface definition
  - emissions/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/opti100/carbonledger/emissions"
)

// Store implements emissions.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS source_entries (
		org_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		source TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		details BLOB,
		submitted_at TEXT NOT NULL,
		PRIMARY KEY (org_id, year, month, source)
	);

	CREATE TABLE IF NOT EXISTS source_statuses (
		org_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		accuracy TEXT NOT NULL,
		kg_co2 TEXT,
		last_updated TEXT NOT NULL,
		PRIMARY KEY (org_id, year, month, source)
	);

	CREATE TABLE IF NOT EXISTS monthly_ledgers (
		org_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		total_kg TEXT NOT NULL,
		scope_1_kg TEXT NOT NULL,
		scope_2_kg TEXT NOT NULL,
		scope_3_kg TEXT NOT NULL,
		pending_entries INTEGER NOT NULL,
		is_complete INTEGER NOT NULL,
		generated_at TEXT NOT NULL,
		PRIMARY KEY (org_id, year, month)
	);

	CREATE TABLE IF NOT EXISTS source_configs (
		org_id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_period ON source_entries(org_id, year, month);
	CREATE INDEX IF NOT EXISTS idx_statuses_period ON source_statuses(org_id, year, month);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *Store) UpsertEntry(ctx context.Context, entry emissions.SourceEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_entries (org_id, year, month, source, entry_id, entry_type, quantity, unit, details, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, year, month, source) DO UPDATE SET
			entry_id = excluded.entry_id,
			entry_type = excluded.entry_type,
			quantity = excluded.quantity,
			unit = excluded.unit,
			details = excluded.details,
			submitted_at = excluded.submitted_at`,
		entry.Period.OrgID, entry.Period.Year, int(entry.Period.Month),
		string(entry.Source), entry.ID, entry.EntryType,
		entry.Quantity.String(), entry.Unit, entry.Details,
		entry.SubmittedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) ListEntries(ctx context.Context, period emissions.Period) ([]emissions.SourceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, entry_id, entry_type, quantity, unit, details, submitted_at
		FROM source_entries WHERE org_id = ? AND year = ? AND month = ?`,
		period.OrgID, period.Year, int(period.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []emissions.SourceEntry
	for rows.Next() {
		var (
			entry       emissions.SourceEntry
			source      string
			quantity    string
			submittedAt string
		)
		entry.Period = period
		if err := rows.Scan(&source, &entry.ID, &entry.EntryType, &quantity, &entry.Unit, &entry.Details, &submittedAt); err != nil {
			return nil, err
		}
		entry.Source = emissions.SourceType(source)
		if entry.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("corrupt quantity for %s/%s: %w", period, source, err)
		}
		if entry.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt); err != nil {
			return nil, fmt.Errorf("corrupt submitted_at for %s/%s: %w", period, source, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// =============================================================================
// STATUSES
// =============================================================================

func (s *Store) UpsertStatus(ctx context.Context, status emissions.DataSourceStatus) error {
	var kg any
	if status.KgCO2 != nil {
		kg = status.KgCO2.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_statuses (org_id, year, month, source, status, accuracy, kg_co2, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, year, month, source) DO UPDATE SET
			status = excluded.status,
			accuracy = excluded.accuracy,
			kg_co2 = excluded.kg_co2,
			last_updated = excluded.last_updated`,
		status.Period.OrgID, status.Period.Year, int(status.Period.Month),
		string(status.Source), string(status.Status), string(status.Accuracy),
		kg, status.LastUpdated.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) ListStatuses(ctx context.Context, period emissions.Period) ([]emissions.DataSourceStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, status, accuracy, kg_co2, last_updated
		FROM source_statuses WHERE org_id = ? AND year = ? AND month = ?`,
		period.OrgID, period.Year, int(period.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []emissions.DataSourceStatus
	for rows.Next() {
		var (
			status      emissions.DataSourceStatus
			source      string
			st          string
			accuracy    string
			kg          sql.NullString
			lastUpdated string
		)
		status.Period = period
		if err := rows.Scan(&source, &st, &accuracy, &kg, &lastUpdated); err != nil {
			return nil, err
		}
		status.Source = emissions.SourceType(source)
		status.Status = emissions.SourceStatus(st)
		status.Accuracy = emissions.Accuracy(accuracy)
		if kg.Valid {
			v, err := decimal.NewFromString(kg.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt kg_co2 for %s/%s: %w", period, source, err)
			}
			status.KgCO2 = &v
		}
		if status.LastUpdated, err = time.Parse(time.RFC3339Nano, lastUpdated); err != nil {
			return nil, fmt.Errorf("corrupt last_updated for %s/%s: %w", period, source, err)
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}

// =============================================================================
// LEDGERS
// =============================================================================

// SaveLedger atomically replaces the period's ledger row.
func (s *Store) SaveLedger(ctx context.Context, ledger emissions.MonthlyLedger) error {
	complete := 0
	if ledger.IsComplete {
		complete = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO monthly_ledgers (org_id, year, month, total_kg, scope_1_kg, scope_2_kg, scope_3_kg, pending_entries, is_complete, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (org_id, year, month) DO UPDATE SET
			total_kg = excluded.total_kg,
			scope_1_kg = excluded.scope_1_kg,
			scope_2_kg = excluded.scope_2_kg,
			scope_3_kg = excluded.scope_3_kg,
			pending_entries = excluded.pending_entries,
			is_complete = excluded.is_complete,
			generated_at = excluded.generated_at`,
		ledger.Period.OrgID, ledger.Period.Year, int(ledger.Period.Month),
		ledger.TotalKg.String(), ledger.Scope1Kg.String(), ledger.Scope2Kg.String(), ledger.Scope3Kg.String(),
		ledger.PendingEntries, complete,
		ledger.GeneratedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetLedger(ctx context.Context, period emissions.Period) (emissions.MonthlyLedger, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT total_kg, scope_1_kg, scope_2_kg, scope_3_kg, pending_entries, is_complete, generated_at
		FROM monthly_ledgers WHERE org_id = ? AND year = ? AND month = ?`,
		period.OrgID, period.Year, int(period.Month))

	var (
		ledger      emissions.MonthlyLedger
		total       string
		s1, s2, s3  string
		complete    int
		generatedAt string
	)
	ledger.Period = period
	err := row.Scan(&total, &s1, &s2, &s3, &ledger.PendingEntries, &complete, &generatedAt)
	if err == sql.ErrNoRows {
		return emissions.MonthlyLedger{}, emissions.ErrNotFound
	}
	if err != nil {
		return emissions.MonthlyLedger{}, err
	}

	for _, field := range []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{total, &ledger.TotalKg},
		{s1, &ledger.Scope1Kg},
		{s2, &ledger.Scope2Kg},
		{s3, &ledger.Scope3Kg},
	} {
		v, err := decimal.NewFromString(field.raw)
		if err != nil {
			return emissions.MonthlyLedger{}, fmt.Errorf("corrupt ledger amount for %s: %w", period, err)
		}
		*field.dest = v
	}
	ledger.IsComplete = complete == 1
	if ledger.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt); err != nil {
		return emissions.MonthlyLedger{}, fmt.Errorf("corrupt generated_at for %s: %w", period, err)
	}
	return ledger, nil
}

func (s *Store) InvalidateLedger(ctx context.Context, period emissions.Period) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM monthly_ledgers WHERE org_id = ? AND year = ? AND month = ?`,
		period.OrgID, period.Year, int(period.Month))
	return err
}

// =============================================================================
// SOURCE CONFIGS
// =============================================================================

func (s *Store) SaveSourceConfig(ctx context.Context, orgID string, cfg emissions.SourceConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO source_configs (org_id, config_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (org_id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at`,
		orgID, string(raw), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) GetSourceConfig(ctx context.Context, orgID string) (emissions.SourceConfig, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT config_json FROM source_configs WHERE org_id = ?`, orgID)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return emissions.SourceConfig{}, emissions.ErrNotFound
	}
	if err != nil {
		return emissions.SourceConfig{}, err
	}

	var cfg emissions.SourceConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return emissions.SourceConfig{}, fmt.Errorf("corrupt source config for %s: %w", orgID, err)
	}
	return cfg, nil
}
