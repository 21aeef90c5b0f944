/*
handlers.go - HTTP API handlers for the equity and distribution engine

PURPOSE:
  Exposes the contribution engine, KPI engine and distribution processor
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Holders:
    GET    /api/holders                    List all holders
    POST   /api/holders                    Create holder
    GET    /api/holders/{id}               Holder detail (balances, tier)
    POST   /api/holders/{id}/contributions Record a contribution
    POST   /api/holders/{id}/deactivate    Deactivate holder
    GET    /api/holders/{id}/events        Contribution history

  Approval:
    POST   /api/events/{id}/approve        Approve a pending event
    POST   /api/events/{id}/reject         Reject and reverse a pending event

  KPI:
    POST   /api/kpi/{staffID}/{quarter}    Score a quarter
    GET    /api/kpi/{staffID}/{quarter}    Read a stored record

  Withdrawals:
    POST   /api/withdrawals/quote          Tax quote for a withdrawal

  Distributions:
    POST   /api/admin/distributions/process  Run the quarterly batch
    GET    /api/distributions/periods        List periods
    GET    /api/distributions/periods/{value} Period + records
    POST   /api/distributions/records/{id}/pay Payment transition

  Ledger:
    POST   /api/ledger/entries             Ingest a revenue/expense line

  Config:
    GET    /api/tiers                      Tier table

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (already processed, duplicate idempotency key)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/distribution"
	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
	"github.com/Trungtrucpixel/vcareglobal-sub002/kpi"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// LedgerRecorder ingests dated revenue/expense lines. Both the sqlite
// and memory stores satisfy it.
type LedgerRecorder interface {
	RecordLedgerEntry(ctx context.Context, date time.Time, revenue, expenses decimal.Decimal) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       equity.TxStore
	Engine      *equity.Engine
	Kpi         *kpi.Engine
	Distributor *distribution.Processor
	Ledger      LedgerRecorder
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store equity.TxStore, engine *equity.Engine, kpiEngine *kpi.Engine, distributor *distribution.Processor, ledger LedgerRecorder) *Handler {
	return &Handler{
		Store:       store,
		Engine:      engine,
		Kpi:         kpiEngine,
		Distributor: distributor,
		Ledger:      ledger,
	}
}

// =============================================================================
// HOLDER HANDLERS
// =============================================================================

// ListHolders returns all holders.
func (h *Handler) ListHolders(w http.ResponseWriter, r *http.Request) {
	holders, err := h.Store.ListHolders(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holders", err)
		return
	}

	dtos := make([]HolderDTO, len(holders))
	for i, holder := range holders {
		dtos[i] = toHolderDTO(holder)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHolder creates a new holder.
func (h *Handler) CreateHolder(w http.ResponseWriter, r *http.Request) {
	var req CreateHolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	typ := equity.HolderType(req.Type)
	switch typ {
	case equity.HolderMember, equity.HolderStaff, equity.HolderBranch:
	case "":
		typ = equity.HolderMember
	default:
		writeError(w, http.StatusBadRequest, "Unknown holder type", nil)
		return
	}

	holder, err := h.Engine.CreateHolder(r.Context(), equity.HolderID(req.ID), req.Name, typ)
	if err != nil {
		writeDomainError(w, "Failed to create holder", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolderDTO(holder))
}

// GetHolder returns a single holder.
func (h *Handler) GetHolder(w http.ResponseWriter, r *http.Request) {
	id := equity.HolderID(chi.URLParam(r, "id"))

	holder, err := h.Store.Holder(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get holder", err)
		return
	}
	writeJSON(w, http.StatusOK, toHolderDTO(holder))
}

// DeactivateHolder marks a holder inactive. Holders are never deleted.
func (h *Handler) DeactivateHolder(w http.ResponseWriter, r *http.Request) {
	id := equity.HolderID(chi.URLParam(r, "id"))

	if err := h.Engine.DeactivateHolder(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to deactivate holder", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordContribution records a contribution for a holder.
func (h *Handler) RecordContribution(w http.ResponseWriter, r *http.Request) {
	id := equity.HolderID(chi.URLParam(r, "id"))

	var req ContributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseDecimalField(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	kind := equity.ContributionKind(req.Kind)
	switch kind {
	case equity.KindCash, equity.KindAsset, equity.KindEffort, equity.KindCard:
	default:
		writeError(w, http.StatusBadRequest, "Unknown contribution kind", nil)
		return
	}

	result, err := h.Engine.RecordContribution(r.Context(), id, amount, kind,
		equity.EventType(req.EventType), req.IdempotencyKey)
	if err != nil {
		writeDomainError(w, "Failed to record contribution", err)
		return
	}

	writeJSON(w, http.StatusCreated, ContributionDTO{
		EventID:       string(result.EventID),
		Shares:        result.Shares.String(),
		Tokens:        result.Tokens.String(),
		Tier:          string(result.Tier),
		MaxoutReached: result.MaxoutReached,
	})
}

// ListEvents returns a holder's contribution history.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := equity.HolderID(chi.URLParam(r, "id"))

	events, err := h.Store.EventsByHolder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// ApproveEvent transitions a pending event to approved.
func (h *Handler) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	id := equity.EventID(chi.URLParam(r, "id"))

	if err := h.Engine.ApproveEvent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to approve event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RejectEvent transitions a pending event to rejected and reverses its
// balance effect.
func (h *Handler) RejectEvent(w http.ResponseWriter, r *http.Request) {
	id := equity.EventID(chi.URLParam(r, "id"))

	if err := h.Engine.RejectEvent(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to reject event", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// KPI HANDLERS
// =============================================================================

// CalculateKpi scores a (staff, quarter) pair.
func (h *Handler) CalculateKpi(w http.ResponseWriter, r *http.Request) {
	staffID := equity.HolderID(chi.URLParam(r, "staffID"))
	quarter := chi.URLParam(r, "quarter")

	var req KpiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var (
		m   kpi.Metrics
		err error
	)
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"card_sales", req.CardSales, &m.CardSales},
		{"card_sales_target", req.CardSalesTarget, &m.CardSalesTarget},
		{"retained_customers", req.RetainedCustomers, &m.RetainedCustomers},
		{"total_customers", req.TotalCustomers, &m.TotalCustomers},
		{"revenue", req.Revenue, &m.Revenue},
		{"revenue_target", req.RevenueTarget, &m.RevenueTarget},
		{"total_points", req.TotalPoints, &m.TotalPoints},
	}
	for _, fld := range fields {
		if *fld.dst, err = parseDecimalField(fld.raw, fld.name); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	rec, err := h.Kpi.Calculate(r.Context(), staffID, quarter, m, req.Force)
	if err != nil {
		writeDomainError(w, "Failed to calculate KPI", err)
		return
	}
	writeJSON(w, http.StatusOK, toKpiRecordDTO(rec))
}

// GetKpiRecord returns a stored KPI record.
func (h *Handler) GetKpiRecord(w http.ResponseWriter, r *http.Request) {
	staffID := equity.HolderID(chi.URLParam(r, "staffID"))
	quarter := chi.URLParam(r, "quarter")

	rec, err := h.Kpi.Record(r.Context(), staffID, quarter)
	if err != nil {
		writeDomainError(w, "Failed to get KPI record", err)
		return
	}
	writeJSON(w, http.StatusOK, toKpiRecordDTO(rec))
}

// =============================================================================
// WITHDRAWAL HANDLERS
// =============================================================================

// QuoteWithdrawal returns the tax breakdown for a proposed withdrawal.
func (h *Handler) QuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseDecimalField(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	quote, err := h.Engine.QuoteWithdrawal(amount)
	if err != nil {
		writeDomainError(w, "Failed to quote withdrawal", err)
		return
	}
	writeJSON(w, http.StatusOK, WithdrawalDTO{
		Amount: quote.Amount.String(),
		Tax:    quote.Tax.String(),
		Net:    quote.Net.String(),
	})
}

// =============================================================================
// DISTRIBUTION HANDLERS
// =============================================================================

// ProcessDistribution runs the quarterly batch.
func (h *Handler) ProcessDistribution(w http.ResponseWriter, r *http.Request) {
	var req ProcessDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Distributor.Process(r.Context(), req.Quarter, req.ForceReprocess)
	if err != nil {
		writeDomainError(w, "Failed to process distribution", err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessResultDTO{
		Period:      toPeriodDTO(result.Period),
		Records:     toRecordDTOs(result.Records),
		Reprocessed: result.Reprocessed,
	})
}

// ListPeriods returns all distribution periods, newest first.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Distributor.Periods(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list periods", err)
		return
	}

	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPeriod returns the active period for a quarter plus its records.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	value := chi.URLParam(r, "value")

	period, ok, err := h.Store.ActivePeriod(r.Context(), value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get period", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Period not found", nil)
		return
	}

	records, err := h.Distributor.Records(r.Context(), period.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get records", err)
		return
	}

	writeJSON(w, http.StatusOK, PeriodDetailDTO{
		Period:  toPeriodDTO(period),
		Records: toRecordDTOs(records),
	})
}

// PayRecord transitions a distribution record from pending to paid.
func (h *Handler) PayRecord(w http.ResponseWriter, r *http.Request) {
	id := equity.RecordID(chi.URLParam(r, "id"))

	if err := h.Distributor.MarkPaid(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to update payment status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// RecordLedgerEntry ingests one dated revenue/expense line.
func (h *Handler) RecordLedgerEntry(w http.ResponseWriter, r *http.Request) {
	var req LedgerEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	revenue, err := parseDecimalField(req.Revenue, "revenue")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	expenses, err := parseDecimalField(req.Expenses, "expenses")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Ledger.RecordLedgerEntry(r.Context(), date, revenue, expenses); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record ledger entry", err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// ListTiers returns the configured tier table, highest threshold first.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toTierDTOs(h.Engine.Tiers()))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

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

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case equity.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case equity.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case equity.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
