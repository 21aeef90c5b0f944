/*
Package kpi provides quarterly performance scoring and equity slot grants
for staff members and branches.

PURPOSE:
  Converts raw quarterly metrics (card sales, customer retention, revenue
  vs target) into a performance score, an eligibility flag, equity
  "slots", awarded shares, and a token bonus.

STATE MACHINE per (staff, quarter):
  Uncomputed -> (Ineligible | Eligible) -> Processed

  Scoring and eligibility land in one step; Ineligible is terminal
  for the quarter: no shares, no bonus.
  Processed is set exactly once, by the quarterly distribution
  processor, never here.

TWO INDEPENDENT TRACKS:
  The slot formula and the token bonus are deliberately decoupled:

    slots         = floor(score / 50)        (score is a percentage)
    sharesAwarded = slots * 50
    tokenEarned   = totalPoints * 10         (1 KPI point = 10 token units)

  "Points" and "score" are separate inputs; the engine never reconciles
  them.

SCORING:
  score = 40% card sales attainment
        + 30% customer retention rate
        + 30% revenue attainment
  Each component is a percentage; attainment above target pushes the
  score past 100, which earns additional slots.

SEE ALSO:
  - equity/types.go: KpiPeriodRecord
  - distribution/processor.go: Flips IsProcessed at quarter close
*/
package kpi

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// =============================================================================
// METRICS AND RESULT
// =============================================================================

// Metrics are the raw quarterly inputs for one staff member or branch.
// TotalPoints feeds the token bonus track and is independent of the
// score components.
type Metrics struct {
	CardSales         decimal.Decimal
	CardSalesTarget   decimal.Decimal
	RetainedCustomers decimal.Decimal
	TotalCustomers    decimal.Decimal
	Revenue           decimal.Decimal
	RevenueTarget     decimal.Decimal
	TotalPoints       decimal.Decimal
}

// Result is what the caller sees after scoring a quarter.
type Result struct {
	Score         decimal.Decimal
	Eligible      bool
	Slots         int64
	SharesAwarded decimal.Decimal
	TokenEarned   decimal.Decimal
}

// Component weights. Table-driven so the weighting lives in one place.
var (
	weightCardSales = dec("0.40")
	weightRetention = dec("0.30")
	weightRevenue   = dec("0.30")
	hundred         = decimal.NewFromInt(100)
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// attainment returns actual/target as a percentage; zero when the
// target is zero or missing.
func attainment(actual, target decimal.Decimal) decimal.Decimal {
	if !target.IsPositive() {
		return decimal.Zero
	}
	return actual.Div(target).Mul(hundred)
}

// Score combines the metrics into a percentage score. Pure.
func Score(m Metrics) decimal.Decimal {
	cardPct := attainment(m.CardSales, m.CardSalesTarget)
	retentionPct := attainment(m.RetainedCustomers, m.TotalCustomers)
	revenuePct := attainment(m.Revenue, m.RevenueTarget)

	return cardPct.Mul(weightCardSales).
		Add(retentionPct.Mul(weightRetention)).
		Add(revenuePct.Mul(weightRevenue))
}

// Evaluate runs the full slot and bonus computation for a score. Pure.
func Evaluate(p equity.Params, m Metrics) Result {
	score := Score(m)

	if score.LessThan(p.EligibleScore) {
		return Result{Score: score, Eligible: false,
			SharesAwarded: decimal.Zero, TokenEarned: decimal.Zero}
	}

	slots := score.Div(p.PointsPerSlot).Floor().IntPart()
	return Result{
		Score:         score,
		Eligible:      true,
		Slots:         slots,
		SharesAwarded: decimal.NewFromInt(slots).Mul(p.SharesPerSlot),
		TokenEarned:   m.TotalPoints.Mul(p.TokensPerKpiPoint),
	}
}

// =============================================================================
// ENGINE - Persistent scoring with once-per-quarter semantics
// =============================================================================

type Engine struct {
	params equity.Params
	store  equity.TxStore
	audit  equity.AuditLog
}

func NewEngine(params equity.Params, store equity.TxStore, audit equity.AuditLog) *Engine {
	if audit == nil {
		audit = equity.NopAuditLog{}
	}
	return &Engine{params: params, store: store, audit: audit}
}

// Calculate scores a (staff, quarter) pair and credits eligible staff
// with labor shares and token bonus in one transaction.
//
// Re-invoking for an existing quarter without force is a no-op returning
// the stored result unchanged. force recomputes an unprocessed record
// (reversing its previous grant first); a processed record can only be
// redone through the distribution processor's forceReprocess.
func (e *Engine) Calculate(ctx context.Context, staffID equity.HolderID, quarterValue string, m Metrics, force bool) (equity.KpiPeriodRecord, error) {
	if _, err := e.params.ValidateQuarter(quarterValue); err != nil {
		return equity.KpiPeriodRecord{}, err
	}

	var out equity.KpiPeriodRecord
	err := e.store.WithTx(ctx, func(s equity.Store) error {
		existing, err := s.KpiRecord(ctx, staffID, quarterValue)
		haveExisting := err == nil
		switch {
		case haveExisting && existing.IsProcessed:
			out = existing
			if force {
				return equity.ErrAlreadyProcessed
			}
			return nil
		case haveExisting && !force:
			out = existing
			return nil
		case err != nil && !equity.IsNotFound(err):
			return err
		}

		h, err := s.Holder(ctx, staffID)
		if err != nil {
			return err
		}

		// Recomputation reverses the prior grant before crediting anew.
		if haveExisting && existing.Eligible {
			h.LaborShares = h.LaborShares.Sub(existing.SharesAwarded)
			h.TokenBalance = h.TokenBalance.Sub(existing.TokenEarned)
		}

		res := Evaluate(e.params, m)

		rec := equity.KpiPeriodRecord{
			StaffID:           staffID,
			PeriodValue:       quarterValue,
			CardSales:         m.CardSales,
			CardSalesTarget:   m.CardSalesTarget,
			RetainedCustomers: m.RetainedCustomers,
			TotalCustomers:    m.TotalCustomers,
			Revenue:           m.Revenue,
			RevenueTarget:     m.RevenueTarget,
			TotalPoints:       m.TotalPoints,
			Score:             res.Score,
			Eligible:          res.Eligible,
			Slots:             res.Slots,
			SharesAwarded:     res.SharesAwarded,
			TokenEarned:       res.TokenEarned,
			State:             equity.KpiIneligible,
			ComputedAt:        time.Now().UTC(),
		}
		if res.Eligible {
			rec.State = equity.KpiEligible
			h.LaborShares = h.LaborShares.Add(res.SharesAwarded)
			h.TokenBalance = h.TokenBalance.Add(res.TokenEarned)
		}
		if res.Eligible || (haveExisting && existing.Eligible) {
			if err := s.SaveHolder(ctx, h); err != nil {
				return err
			}
		}

		if err := s.SaveKpiRecord(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return out, err
	}

	_ = e.audit.Record(ctx, equity.AuditEntry{
		Action:    equity.AuditKpiScored,
		HolderID:  staffID,
		At:        time.Now().UTC(),
		PeriodRef: quarterValue,
		Detail:    map[string]string{"score": out.Score.String()},
	})
	return out, nil
}

// Record returns the stored record for a (staff, quarter) pair.
func (e *Engine) Record(ctx context.Context, staffID equity.HolderID, quarterValue string) (equity.KpiPeriodRecord, error) {
	return e.store.KpiRecord(ctx, staffID, quarterValue)
}
