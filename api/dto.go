/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the
  internal domain model (decimal amounts, typed enums) from the external
  contract (plain JSON numbers and strings).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Payload validation lives in the emissions gateway, not here. DTOs are
  pure data carriers.
*/
package api

import (
	"time"

	"github.com/opti100/carbonledger/emissions"
)

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LedgerDTO represents a monthly ledger in API responses.
type LedgerDTO struct {
	OrgID          string  `json:"org_id"`
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	TotalKg        float64 `json:"total_emissions_kg"`
	Scope1Kg       float64 `json:"scope_1_kg"`
	Scope2Kg       float64 `json:"scope_2_kg"`
	Scope3Kg       float64 `json:"scope_3_kg"`
	PendingEntries int     `json:"pending_entries"`
	IsComplete     bool    `json:"is_complete"`
	GeneratedAt    string  `json:"generated_at"`
}

// SourceStatusDTO represents one source's progress for a period.
type SourceStatusDTO struct {
	Source      string   `json:"source"`
	Status      string   `json:"status"`
	Accuracy    string   `json:"accuracy"`
	KgCO2       *float64 `json:"kg_co2"`
	LastUpdated string   `json:"last_updated"`
}

// PeriodStatusDTO is the full period view: ledger plus per-source statuses.
type PeriodStatusDTO struct {
	Ledger  LedgerDTO         `json:"ledger"`
	Sources []SourceStatusDTO `json:"sources"`
}

// SubmitResultDTO reports an accepted submission.
type SubmitResultDTO struct {
	KgCO2Calculated float64 `json:"kg_co2_calculated"`
	Status          string  `json:"status"`
	Accuracy        string  `json:"accuracy"`
}

// MonthlySummaryDTO is one month's slice of a yearly summary.
type MonthlySummaryDTO struct {
	Month    int     `json:"month"`
	TotalKg  float64 `json:"total_kg"`
	Scope1Kg float64 `json:"scope_1_kg"`
	Scope2Kg float64 `json:"scope_2_kg"`
	Scope3Kg float64 `json:"scope_3_kg"`
	Complete bool    `json:"complete"`
}

// YearlySummaryDTO represents a yearly rollup.
type YearlySummaryDTO struct {
	OrgID          string              `json:"org_id"`
	Year           int                 `json:"year"`
	MonthsReported int                 `json:"months_reported"`
	Months         []MonthlySummaryDTO `json:"months"`
	TotalKg        float64             `json:"total_kg"`
	Scope1Kg       float64             `json:"scope_1_kg"`
	Scope2Kg       float64             `json:"scope_2_kg"`
	Scope3Kg       float64             `json:"scope_3_kg"`
	TotalTonnes    float64             `json:"total_tonnes"`
	Scope1Tonnes   float64             `json:"scope_1_tonnes"`
	Scope2Tonnes   float64             `json:"scope_2_tonnes"`
	Scope3Tonnes   float64             `json:"scope_3_tonnes"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toLedgerDTO(l emissions.MonthlyLedger) LedgerDTO {
	return LedgerDTO{
		OrgID:          l.Period.OrgID,
		Year:           l.Period.Year,
		Month:          int(l.Period.Month),
		TotalKg:        l.TotalKg.InexactFloat64(),
		Scope1Kg:       l.Scope1Kg.InexactFloat64(),
		Scope2Kg:       l.Scope2Kg.InexactFloat64(),
		Scope3Kg:       l.Scope3Kg.InexactFloat64(),
		PendingEntries: l.PendingEntries,
		IsComplete:     l.IsComplete,
		GeneratedAt:    l.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

func toStatusDTO(s emissions.DataSourceStatus) SourceStatusDTO {
	dto := SourceStatusDTO{
		Source:      string(s.Source),
		Status:      string(s.Status),
		Accuracy:    string(s.Accuracy),
		LastUpdated: s.LastUpdated.UTC().Format(time.RFC3339),
	}
	if s.KgCO2 != nil {
		v := s.KgCO2.InexactFloat64()
		dto.KgCO2 = &v
	}
	return dto
}

func toSubmitResultDTO(r emissions.SubmitResult) SubmitResultDTO {
	return SubmitResultDTO{
		KgCO2Calculated: r.KgCO2.InexactFloat64(),
		Status:          string(r.Status),
		Accuracy:        string(r.Accuracy),
	}
}

func toYearlySummaryDTO(s emissions.YearlySummary) YearlySummaryDTO {
	dto := YearlySummaryDTO{
		OrgID:          s.OrgID,
		Year:           s.Year,
		MonthsReported: s.MonthsReported,
		Months:         []MonthlySummaryDTO{},
		TotalKg:        s.TotalKg.InexactFloat64(),
		Scope1Kg:       s.Scope1Kg.InexactFloat64(),
		Scope2Kg:       s.Scope2Kg.InexactFloat64(),
		Scope3Kg:       s.Scope3Kg.InexactFloat64(),
		TotalTonnes:    s.TotalTonnes.InexactFloat64(),
		Scope1Tonnes:   s.Scope1Tonnes.InexactFloat64(),
		Scope2Tonnes:   s.Scope2Tonnes.InexactFloat64(),
		Scope3Tonnes:   s.Scope3Tonnes.InexactFloat64(),
	}
	for _, m := range s.Months {
		dto.Months = append(dto.Months, MonthlySummaryDTO{
			Month:    int(m.Month),
			TotalKg:  m.TotalKg.InexactFloat64(),
			Scope1Kg: m.Scope1Kg.InexactFloat64(),
			Scope2Kg: m.Scope2Kg.InexactFloat64(),
			Scope3Kg: m.Scope3Kg.InexactFloat64(),
			Complete: m.Complete,
		})
	}
	return dto
}
