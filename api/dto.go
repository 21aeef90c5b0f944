/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Decouples the JSON wire format from domain types. Domain structs use
  decimal.Decimal and typed IDs; DTOs use strings so clients never see
  float money and the wire format stays stable when domain types move.

CONVENTIONS:
  - All money/share/token fields are decimal strings ("12500000")
  - Timestamps are RFC3339
  - Quarter literals are "YYYY-Qn"
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateHolderRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // member, staff, branch
}

type ContributionRequest struct {
	Amount         string `json:"amount"`
	Kind           string `json:"kind"` // cash, asset, effort, card
	EventType      string `json:"event_type,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type KpiRequest struct {
	CardSales         string `json:"card_sales"`
	CardSalesTarget   string `json:"card_sales_target"`
	RetainedCustomers string `json:"retained_customers"`
	TotalCustomers    string `json:"total_customers"`
	Revenue           string `json:"revenue"`
	RevenueTarget     string `json:"revenue_target"`
	TotalPoints       string `json:"total_points"`
	Force             bool   `json:"force,omitempty"`
}

type WithdrawalQuoteRequest struct {
	Amount string `json:"amount"`
}

type ProcessDistributionRequest struct {
	Quarter        string `json:"quarter"`
	ForceReprocess bool   `json:"force_reprocess,omitempty"`
}

type LedgerEntryRequest struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Revenue  string `json:"revenue"`
	Expenses string `json:"expenses"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type HolderDTO struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Type                  string `json:"type"`
	Tier                  string `json:"tier"`
	BaseInvestment        string `json:"base_investment"`
	CumulativeAmount      string `json:"cumulative_amount"`
	CapitalShares         string `json:"capital_shares"`
	LaborShares           string `json:"labor_shares"`
	TotalShares           string `json:"total_shares"`
	TokenBalance          string `json:"token_balance"`
	CumulativeDistributed string `json:"cumulative_distributed"`
	MaxoutReached         bool   `json:"maxout_reached"`
	Active                bool   `json:"active"`
	CreatedAt             string `json:"created_at"`
}

type ContributionDTO struct {
	EventID       string `json:"event_id"`
	Shares        string `json:"shares"`
	Tokens        string `json:"tokens"`
	Tier          string `json:"tier"`
	MaxoutReached bool   `json:"maxout_reached"`
}

type EventDTO struct {
	ID          string `json:"id"`
	HolderID    string `json:"holder_id"`
	Type        string `json:"type"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Shares      string `json:"shares"`
	TokenAmount string `json:"token_amount"`
	Tier        string `json:"tier"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

type KpiRecordDTO struct {
	StaffID       string `json:"staff_id"`
	Quarter       string `json:"quarter"`
	Score         string `json:"score"`
	Eligible      bool   `json:"eligible"`
	Slots         int64  `json:"slots"`
	SharesAwarded string `json:"shares_awarded"`
	TokenEarned   string `json:"token_earned"`
	State         string `json:"state"`
	IsProcessed   bool   `json:"is_processed"`
}

type WithdrawalDTO struct {
	Amount string `json:"amount"`
	Tax    string `json:"tax"`
	Net    string `json:"net"`
}

type PeriodDTO struct {
	ID             string `json:"id"`
	Quarter        string `json:"quarter"`
	TotalRevenue   string `json:"total_revenue"`
	TotalExpenses  string `json:"total_expenses"`
	NetProfit      string `json:"net_profit"`
	Pool           string `json:"pool"`
	CapitalPool    string `json:"capital_pool"`
	LaborPool      string `json:"labor_pool"`
	TotalShares    string `json:"total_shares"`
	ProfitPerShare string `json:"profit_per_share"`
	Status         string `json:"status"`
	ProcessedAt    string `json:"processed_at"`
}

type DistributionRecordDTO struct {
	ID               string `json:"id"`
	PeriodID         string `json:"period_id"`
	HolderID         string `json:"holder_id"`
	DistributionType string `json:"distribution_type"`
	Shares           string `json:"shares"`
	Amount           string `json:"amount"`
	TokenAmount      string `json:"token_amount"`
	Clamped          bool   `json:"clamped"`
	PaymentStatus    string `json:"payment_status"`
}

type PeriodDetailDTO struct {
	Period  PeriodDTO               `json:"period"`
	Records []DistributionRecordDTO `json:"records"`
}

type ProcessResultDTO struct {
	Period      PeriodDTO               `json:"period"`
	Records     []DistributionRecordDTO `json:"records"`
	Reprocessed bool                    `json:"reprocessed"`
}

type TierDTO struct {
	Name             string `json:"name"`
	MinInvestment    string `json:"min_investment"`
	Multiplier       string `json:"multiplier"`
	MaxoutMultiplier string `json:"maxout_multiplier,omitempty"`
	Unlimited        bool   `json:"unlimited,omitempty"`
	KPIRequired      bool   `json:"kpi_required,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toHolderDTO(h equity.Holder) HolderDTO {
	return HolderDTO{
		ID:                    string(h.ID),
		Name:                  h.Name,
		Type:                  string(h.Type),
		Tier:                  string(h.Tier),
		BaseInvestment:        h.BaseInvestment.String(),
		CumulativeAmount:      h.CumulativeAmount.String(),
		CapitalShares:         h.CapitalShares.String(),
		LaborShares:           h.LaborShares.String(),
		TotalShares:           h.TotalShares().String(),
		TokenBalance:          h.TokenBalance.String(),
		CumulativeDistributed: h.CumulativeDistributed.String(),
		MaxoutReached:         h.MaxoutReached,
		Active:                h.Active,
		CreatedAt:             h.CreatedAt.Format(time.RFC3339),
	}
}

func toEventDTO(ev equity.ContributionEvent) EventDTO {
	return EventDTO{
		ID:          string(ev.ID),
		HolderID:    string(ev.HolderID),
		Type:        string(ev.Type),
		Kind:        string(ev.Kind),
		Amount:      ev.Amount.String(),
		Shares:      ev.Shares.String(),
		TokenAmount: ev.TokenAmount.String(),
		Tier:        string(ev.Tier),
		Status:      string(ev.Status),
		CreatedAt:   ev.CreatedAt.Format(time.RFC3339),
	}
}

func toKpiRecordDTO(rec equity.KpiPeriodRecord) KpiRecordDTO {
	return KpiRecordDTO{
		StaffID:       string(rec.StaffID),
		Quarter:       rec.PeriodValue,
		Score:         rec.Score.StringFixed(2),
		Eligible:      rec.Eligible,
		Slots:         rec.Slots,
		SharesAwarded: rec.SharesAwarded.String(),
		TokenEarned:   rec.TokenEarned.String(),
		State:         string(rec.State),
		IsProcessed:   rec.IsProcessed,
	}
}

func toPeriodDTO(p equity.ProfitSharingPeriod) PeriodDTO {
	return PeriodDTO{
		ID:             string(p.ID),
		Quarter:        p.PeriodValue,
		TotalRevenue:   p.TotalRevenue.String(),
		TotalExpenses:  p.TotalExpenses.String(),
		NetProfit:      p.NetProfit.String(),
		Pool:           p.Pool.String(),
		CapitalPool:    p.CapitalPool.String(),
		LaborPool:      p.LaborPool.String(),
		TotalShares:    p.TotalShares.String(),
		ProfitPerShare: p.ProfitPerShare.String(),
		Status:         string(p.Status),
		ProcessedAt:    p.ProcessedAt.Format(time.RFC3339),
	}
}

func toRecordDTOs(recs []equity.ProfitDistributionRecord) []DistributionRecordDTO {
	dtos := make([]DistributionRecordDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = DistributionRecordDTO{
			ID:               string(rec.ID),
			PeriodID:         string(rec.PeriodID),
			HolderID:         string(rec.HolderID),
			DistributionType: string(rec.DistributionType),
			Shares:           rec.Shares.String(),
			Amount:           rec.Amount.String(),
			TokenAmount:      rec.TokenAmount.String(),
			Clamped:          rec.Clamped,
			PaymentStatus:    string(rec.PaymentStatus),
		}
	}
	return dtos
}

func toTierDTOs(table equity.TierTable) []TierDTO {
	var dtos []TierDTO
	for _, tc := range table.Configs() {
		dto := TierDTO{
			Name:          string(tc.Name),
			MinInvestment: tc.MinInvestment.String(),
			Multiplier:    tc.Multiplier.String(),
			Unlimited:     tc.Unlimited,
			KPIRequired:   tc.KPIRequired,
		}
		if !tc.Unlimited {
			dto.MaxoutMultiplier = tc.MaxoutMultiplier.String()
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func parseDecimalField(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, &fieldError{field: field, raw: raw}
	}
	return d, nil
}

type fieldError struct {
	field string
	raw   string
}

func (e *fieldError) Error() string {
	return "invalid decimal value for " + e.field + ": " + e.raw
}
