// Package store provides Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/opti100/carbonledger/emissions"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	entries  map[entryKey]emissions.SourceEntry
	statuses map[entryKey]emissions.DataSourceStatus
	ledgers  map[emissions.Period]emissions.MonthlyLedger
	configs  map[string]emissions.SourceConfig
}

type entryKey struct {
	Period emissions.Period
	Source emissions.SourceType
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[entryKey]emissions.SourceEntry),
		statuses: make(map[entryKey]emissions.DataSourceStatus),
		ledgers:  make(map[emissions.Period]emissions.MonthlyLedger),
		configs:  make(map[string]emissions.SourceConfig),
	}
}

// UpsertEntry replaces any prior entry for (period, source).
func (m *Memory) UpsertEntry(_ context.Context, entry emissions.SourceEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey{Period: entry.Period, Source: entry.Source}] = entry
	return nil
}

func (m *Memory) ListEntries(_ context.Context, period emissions.Period) ([]emissions.SourceEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []emissions.SourceEntry
	for k, entry := range m.entries {
		if k.Period == period {
			result = append(result, entry)
		}
	}
	return result, nil
}

func (m *Memory) UpsertStatus(_ context.Context, status emissions.DataSourceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[entryKey{Period: status.Period, Source: status.Source}] = status
	return nil
}

func (m *Memory) ListStatuses(_ context.Context, period emissions.Period) ([]emissions.DataSourceStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []emissions.DataSourceStatus
	for k, status := range m.statuses {
		if k.Period == period {
			result = append(result, status)
		}
	}
	return result, nil
}

func (m *Memory) SaveLedger(_ context.Context, ledger emissions.MonthlyLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgers[ledger.Period] = ledger
	return nil
}

func (m *Memory) GetLedger(_ context.Context, period emissions.Period) (emissions.MonthlyLedger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ledger, ok := m.ledgers[period]
	if !ok {
		return emissions.MonthlyLedger{}, emissions.ErrNotFound
	}
	return ledger, nil
}

func (m *Memory) InvalidateLedger(_ context.Context, period emissions.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ledgers, period)
	return nil
}

func (m *Memory) SaveSourceConfig(_ context.Context, orgID string, cfg emissions.SourceConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[orgID] = cfg
	return nil
}

func (m *Memory) GetSourceConfig(_ context.Context, orgID string) (emissions.SourceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[orgID]
	if !ok {
		return emissions.SourceConfig{}, emissions.ErrNotFound
	}
	return cfg, nil
}
