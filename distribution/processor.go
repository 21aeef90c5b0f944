/*
Package distribution implements the quarterly profit-distribution batch.

PURPOSE:
  Once per quarter the processor aggregates the ledger, carves out the
  distributable pool, computes a single profit-per-share figure, and
  writes one payout record per shareholder per share class (capital and
  labor), clamping each payout at the holder's maxout ceiling.

PROCESSING STEPS (all inside one transaction):
  1. Validate the quarter literal and year bounds
  2. Create the period header row; a uniqueness violation means the
     quarter was already processed and aborts with ErrAlreadyProcessed
  3. Aggregate revenue/expenses over the quarter's date range
  4. pool = 0.49 * netProfit; a non-positive profit completes the
     period with an empty pool and NO payout records (steps 5 and 6
     are skipped, not an error)
  5. profitPerShare = pool / totalShares across active shareholders
  6. Per holder: capital record, then labor record, each clamped by the
     maxout guard and credited to the holder's balances
  7. Mark the quarter's KPI records processed
  8. Flip the period to completed

IDEMPOTENCY:
  There is no check-then-act window: exclusivity rests entirely on the
  storage constraint over (periodValue, status != cancelled). Concurrent
  processors race at the insert; exactly one wins.

FORCE REPROCESS:
  Cancels the prior period row first (its records stay for audit), then
  runs a fresh batch in the same transaction. Holder balances credited
  by the prior run are reversed from its records before recomputing.

SEE ALSO:
  - equity/maxout.go: Per-holder ceiling enforcement
  - equity/quarter.go: Quarter parsing and date ranges
*/
package distribution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// Processor runs quarterly distribution batches against a transactional
// store. Safe for concurrent use; the storage constraint arbitrates
// concurrent runs for the same quarter.
type Processor struct {
	params equity.Params
	tiers  equity.TierTable
	store  equity.TxStore
	audit  equity.AuditLog
}

func NewProcessor(params equity.Params, tiers equity.TierTable, store equity.TxStore, audit equity.AuditLog) *Processor {
	if audit == nil {
		audit = equity.NopAuditLog{}
	}
	return &Processor{params: params, tiers: tiers, store: store, audit: audit}
}

// Result summarizes a completed batch.
type Result struct {
	Period  equity.ProfitSharingPeriod
	Records []equity.ProfitDistributionRecord

	// Reprocessed is true when a prior period row was cancelled first.
	Reprocessed bool
}

// Process runs the distribution batch for one quarter.
//
// When the quarter was already processed and force is false, the stored
// period is returned alongside ErrAlreadyProcessed; callers distinguish
// "done before" from "done now" by the error.
func (p *Processor) Process(ctx context.Context, quarterValue string, force bool) (Result, error) {
	q, err := p.params.ValidateQuarter(quarterValue)
	if err != nil {
		return Result{}, err
	}
	from, to := q.Period()

	// Audit entries are collected during the batch and emitted only
	// after the transaction commits.
	var pendingAudit []equity.AuditEntry

	var out Result
	err = p.store.WithTx(ctx, func(s equity.Store) error {
		pendingAudit = pendingAudit[:0]
		if force {
			reprocessed, entries, err := p.cancelActive(ctx, s, quarterValue)
			if err != nil {
				return err
			}
			out.Reprocessed = reprocessed
			pendingAudit = append(pendingAudit, entries...)
		}

		period := equity.ProfitSharingPeriod{
			ID:          equity.PeriodID(uuid.NewString()),
			Period:      "quarter",
			PeriodValue: quarterValue,
			Status:      equity.PeriodPending,
			ProcessedAt: time.Now().UTC(),
		}
		if err := s.CreatePeriod(ctx, period); err != nil {
			if errors.Is(err, equity.ErrAlreadyProcessed) {
				existing, ok, lookupErr := s.ActivePeriod(ctx, quarterValue)
				if lookupErr == nil && ok {
					out.Period = existing
					recs, recErr := s.DistributionRecords(ctx, existing.ID)
					if recErr == nil {
						out.Records = recs
					}
				}
			}
			return err
		}

		agg, err := s.RevenueExpenses(ctx, from, to)
		if err != nil {
			return err
		}
		period.TotalRevenue = agg.Revenue
		period.TotalExpenses = agg.Expenses
		period.NetProfit = agg.NetProfit()

		if period.NetProfit.IsPositive() {
			period.Pool = period.NetProfit.Mul(p.params.PoolRate)
			period.CapitalPool = period.NetProfit.Mul(p.params.CapitalPoolRate)
			period.LaborPool = period.NetProfit.Mul(p.params.LaborPoolRate)
		} else {
			period.Pool = decimal.Zero
			period.CapitalPool = decimal.Zero
			period.LaborPool = decimal.Zero
		}

		// An empty pool (loss or break-even quarter) closes the period
		// without any payout records: the roster is never loaded and no
		// holder balance moves.
		period.TotalShares = decimal.Zero
		period.ProfitPerShare = decimal.Zero

		var recs []equity.ProfitDistributionRecord
		if period.Pool.IsPositive() {
			holders, err := s.Shareholders(ctx)
			if err != nil {
				return err
			}

			for _, h := range holders {
				period.TotalShares = period.TotalShares.Add(h.TotalShares())
			}
			if period.TotalShares.IsPositive() {
				period.ProfitPerShare = period.Pool.Div(period.TotalShares)
			}

			var entries []equity.AuditEntry
			recs, entries, err = p.payout(ctx, s, period, holders)
			if err != nil {
				return err
			}
			pendingAudit = append(pendingAudit, entries...)
			if len(recs) > 0 {
				if err := s.AppendDistributionRecords(ctx, recs); err != nil {
					return err
				}
			}
		}

		if err := s.MarkKpiProcessed(ctx, quarterValue); err != nil {
			return err
		}

		period.Status = equity.PeriodCompleted
		period.ProcessedAt = time.Now().UTC()
		if err := s.UpdatePeriod(ctx, period); err != nil {
			return err
		}

		out.Period = period
		out.Records = recs
		return nil
	})
	if err != nil {
		return out, err
	}

	for _, entry := range pendingAudit {
		_ = p.audit.Record(ctx, entry)
	}
	_ = p.audit.Record(ctx, equity.AuditEntry{
		Action:    equity.AuditDistributionCommitted,
		At:        time.Now().UTC(),
		PeriodRef: quarterValue,
		Detail: map[string]string{
			"pool":           out.Period.Pool.String(),
			"profitPerShare": out.Period.ProfitPerShare.String(),
		},
	})
	return out, nil
}

// payout builds the per-holder records and mutates holder balances.
// One record per non-zero share class, each clamped independently so a
// ceiling hit on the capital class still leaves room for the labor one.
// Audit entries are returned, not emitted, so they land after commit.
func (p *Processor) payout(ctx context.Context, s equity.Store, period equity.ProfitSharingPeriod, holders []equity.Holder) ([]equity.ProfitDistributionRecord, []equity.AuditEntry, error) {
	now := time.Now().UTC()
	var recs []equity.ProfitDistributionRecord
	var entries []equity.AuditEntry

	for _, h := range holders {
		tc, err := p.tiers.Get(h.Tier)
		if err != nil {
			return nil, nil, err
		}

		classes := []struct {
			kind   equity.DistributionType
			shares decimal.Decimal
		}{
			{equity.DistributionCapital, h.CapitalShares},
			{equity.DistributionLabor, h.LaborShares},
		}

		changed := false
		for _, c := range classes {
			if !c.shares.IsPositive() {
				continue
			}
			proposed := c.shares.Mul(period.ProfitPerShare)
			clamp := h.ApplyDistribution(tc, proposed)

			rec := equity.ProfitDistributionRecord{
				ID:               equity.RecordID(uuid.NewString()),
				PeriodID:         period.ID,
				HolderID:         h.ID,
				DistributionType: c.kind,
				Shares:           c.shares,
				Amount:           clamp.Allowed,
				TokenAmount:      p.params.TokensFor(clamp.Allowed),
				Clamped:          clamp.Allowed.LessThan(proposed),
				PaymentStatus:    equity.PaymentPending,
				CreatedAt:        now,
			}
			recs = append(recs, rec)

			h.TokenBalance = h.TokenBalance.Add(rec.TokenAmount)
			changed = true

			if clamp.MaxoutReached {
				entries = append(entries, equity.AuditEntry{
					Action:    equity.AuditMaxoutReached,
					HolderID:  h.ID,
					At:        now,
					PeriodRef: period.PeriodValue,
				})
			}
		}

		if changed {
			if err := s.SaveHolder(ctx, h); err != nil {
				return nil, nil, err
			}
		}
	}
	return recs, entries, nil
}

// cancelActive cancels the current non-cancelled period for the quarter
// and reverses the balances its records credited. Returns false when no
// prior period exists.
func (p *Processor) cancelActive(ctx context.Context, s equity.Store, quarterValue string) (bool, []equity.AuditEntry, error) {
	prior, ok, err := s.ActivePeriod(ctx, quarterValue)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, nil
	}

	recs, err := s.DistributionRecords(ctx, prior.ID)
	if err != nil {
		return false, nil, err
	}
	for _, rec := range recs {
		h, err := s.Holder(ctx, rec.HolderID)
		if err != nil {
			if errors.Is(err, equity.ErrHolderNotFound) {
				continue
			}
			return false, nil, err
		}
		h.TokenBalance = h.TokenBalance.Sub(rec.TokenAmount)
		h.CumulativeDistributed = h.CumulativeDistributed.Sub(rec.Amount)
		if h.MaxoutReached {
			tc, tierErr := p.tiers.Get(h.Tier)
			if tierErr == nil {
				if ceiling, unlimited := tc.Ceiling(h.BaseInvestment); unlimited || h.CumulativeDistributed.LessThan(ceiling) {
					h.MaxoutReached = false
				}
			}
		}
		if err := s.SaveHolder(ctx, h); err != nil {
			return false, nil, err
		}
	}

	prior.Status = equity.PeriodCancelled
	if err := s.UpdatePeriod(ctx, prior); err != nil {
		return false, nil, err
	}

	entry := equity.AuditEntry{
		Action:    equity.AuditPeriodCancelled,
		At:        time.Now().UTC(),
		PeriodRef: quarterValue,
		Detail:    map[string]string{"periodID": string(prior.ID)},
	}
	return true, []equity.AuditEntry{entry}, nil
}

// MarkPaid transitions one distribution record from pending to paid.
func (p *Processor) MarkPaid(ctx context.Context, id equity.RecordID) error {
	return p.store.SetPaymentStatus(ctx, id, equity.PaymentPaid)
}

// Periods lists all periods, newest first.
func (p *Processor) Periods(ctx context.Context) ([]equity.ProfitSharingPeriod, error) {
	return p.store.ListPeriods(ctx)
}

// Records returns the payout lines of one period.
func (p *Processor) Records(ctx context.Context, id equity.PeriodID) ([]equity.ProfitDistributionRecord, error) {
	return p.store.DistributionRecords(ctx, id)
}
