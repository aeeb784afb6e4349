/*
handlers.go - HTTP API handlers for the carbon ledger

PURPOSE:
  Exposes the emissions core via REST. Handles HTTP request/response and
  JSON serialization, delegating all domain logic to the gateway, engine,
  and rollup.

ENDPOINTS:
  GET  /api/orgs/{org}/periods/{year}/{month}             Period status
  POST /api/orgs/{org}/periods/{year}/{month}/{source}    Submit entry
  POST /api/orgs/{org}/periods/{year}/{month}/recalculate Rebuild ledger
  GET  /api/orgs/{org}/years/{year}                       Yearly summary
  PUT  /api/orgs/{org}/sources                            Seed source config

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown org/period/source
  - 500: Internal errors, consistency violations

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opti100/carbonledger/emissions"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    emissions.Store
	Gateway  *emissions.Gateway
	Engine   *emissions.Engine
	Rollup   *emissions.Rollup
	Registry *emissions.Registry
}

// NewHandler creates a handler over the wired core components.
func NewHandler(store emissions.Store, gateway *emissions.Gateway, engine *emissions.Engine, rollup *emissions.Rollup, registry *emissions.Registry) *Handler {
	return &Handler{
		Store:    store,
		Gateway:  gateway,
		Engine:   engine,
		Rollup:   rollup,
		Registry: registry,
	}
}

// =============================================================================
// PERIOD ENDPOINTS
// =============================================================================

// GetPeriod returns the period's ledger (rebuilt lazily if invalidated)
// plus its per-source statuses.
// GET /api/orgs/{org}/periods/{year}/{month}
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	ledger, err := h.Engine.Ledger(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Failed to load ledger", err)
		return
	}
	statuses, err := h.Store.ListStatuses(r.Context(), period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load source statuses", err)
		return
	}

	resp := PeriodStatusDTO{Ledger: toLedgerDTO(ledger), Sources: []SourceStatusDTO{}}
	for _, s := range statuses {
		resp.Sources = append(resp.Sources, toStatusDTO(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Recalculate rebuilds the period's ledger from its recorded entries.
// POST /api/orgs/{org}/periods/{year}/{month}/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	ledger, err := h.Engine.Recalculate(r.Context(), period)
	if err != nil {
		writeDomainError(w, "Recalculation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerDTO(ledger))
}

// SubmitEntry accepts one source entry for the period.
// POST /api/orgs/{org}/periods/{year}/{month}/{source}
func (h *Handler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	period, ok := parsePeriod(w, r)
	if !ok {
		return
	}

	var (
		result emissions.SubmitResult
		err    error
	)
	switch emissions.SourceType(chi.URLParam(r, "source")) {
	case emissions.SourceCloud:
		var payload emissions.CloudPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		result, err = h.Gateway.SubmitCloud(r.Context(), period, payload)
	case emissions.SourceCDN:
		var payload emissions.CDNPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		result, err = h.Gateway.SubmitCDN(r.Context(), period, payload)
	case emissions.SourceTravel:
		var payload emissions.TravelPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		result, err = h.Gateway.SubmitTravel(r.Context(), period, payload)
	case emissions.SourceFleet:
		var payload emissions.FleetPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		result, err = h.Gateway.SubmitFleet(r.Context(), period, payload)
	case emissions.SourceOnPrem:
		var payload emissions.OnPremPayload
		if !decodeBody(w, r, &payload) {
			return
		}
		result, err = h.Gateway.SubmitOnPrem(r.Context(), period, payload)
	case emissions.SourceWorkforce:
		var payload emissions.WorkforcePayload
		if !decodeBody(w, r, &payload) {
			return
		}
		result, err = h.Gateway.SubmitWorkforce(r.Context(), period, payload)
	default:
		writeError(w, http.StatusNotFound, "Unknown source", nil)
		return
	}

	if err != nil {
		writeDomainError(w, "Submission failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitResultDTO(result))
}

// =============================================================================
// YEARLY SUMMARY
// =============================================================================

// GetYearlySummary returns the yearly rollup.
// GET /api/orgs/{org}/years/{year}
func (h *Handler) GetYearlySummary(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "org")
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	summary, serr := h.Rollup.Summary(r.Context(), orgID, year)
	if serr != nil {
		writeDomainError(w, "Failed to build yearly summary", serr)
		return
	}
	writeJSON(w, http.StatusOK, toYearlySummaryDTO(summary))
}

// =============================================================================
// SOURCE CONFIGURATION
// =============================================================================

// PutSources seeds or replaces an org's source configuration.
// PUT /api/orgs/{org}/sources
func (h *Handler) PutSources(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "org")
	var cfg emissions.SourceConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := h.Store.SaveSourceConfig(r.Context(), orgID, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save source config", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"org_id":  orgID,
		"sources": cfg.EnabledSources(),
	})
}

// GetSources returns the org's configured sources.
// GET /api/orgs/{org}/sources
func (h *Handler) GetSources(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Registry.Config(r.Context(), chi.URLParam(r, "org"))
	if err != nil {
		writeDomainError(w, "Failed to load source config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Healthz reports liveness.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePeriod(w http.ResponseWriter, r *http.Request) (emissions.Period, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return emissions.Period{}, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return emissions.Period{}, false
	}
	period, perr := emissions.NewPeriod(chi.URLParam(r, "org"), year, month)
	if perr != nil {
		writeError(w, http.StatusBadRequest, "Invalid period", perr)
		return emissions.Period{}, false
	}
	return period, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return false
	}
	return true
}

// writeDomainError maps the emissions error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, emissions.ErrValidation):
		writeError(w, http.StatusBadRequest, message, err)
	case errors.Is(err, emissions.ErrNotFound), errors.Is(err, emissions.ErrNotConfigured):
		writeError(w, http.StatusNotFound, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
