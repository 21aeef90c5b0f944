package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
	"github.com/Trungtrucpixel/vcareglobal-sub002/equity/store"
)

func newTestProcessor(t *testing.T) (*Processor, *store.Memory, *store.AuditMemory) {
	t.Helper()
	mem := store.NewMemory()
	audit := store.NewAuditMemory()
	proc := NewProcessor(equity.DefaultParams(), equity.DefaultTierTable(), mem, audit)
	return proc, mem, audit
}

// seedLedger posts one revenue/expense line dated inside the quarter.
func seedLedger(t *testing.T, mem *store.Memory, date time.Time, revenue, expenses int64) {
	t.Helper()
	require.NoError(t, mem.RecordLedgerEntry(context.Background(), date,
		decimal.NewFromInt(revenue), decimal.NewFromInt(expenses)))
}

func seedHolder(t *testing.T, mem *store.Memory, h equity.Holder) {
	t.Helper()
	h.Active = true
	require.NoError(t, mem.SaveHolder(context.Background(), h))
}

func TestProcess_FullQuarter(t *testing.T) {
	// GIVEN: Two shareholders (60 capital + 40 labor = 100 total shares)
	//        and a quarter netting 100M profit
	// WHEN: Processing 2024-Q1
	// THEN: pool = 49M, profitPerShare = 490K, and each share class gets
	//       its own payout record at shares * profitPerShare

	proc, mem, audit := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "angel",
		CapitalShares:  decimal.NewFromInt(60),
		BaseInvestment: decimal.NewFromInt(100_000_000),
	})
	seedHolder(t, mem, equity.Holder{
		ID: "staff1", Type: equity.HolderStaff, Tier: equity.TierNone,
		LaborShares: decimal.NewFromInt(40),
	})
	seedLedger(t, mem, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), 180_000_000, 80_000_000)

	res, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)

	assert.Equal(t, equity.PeriodCompleted, res.Period.Status)
	assert.True(t, res.Period.NetProfit.Equal(decimal.NewFromInt(100_000_000)))
	assert.True(t, res.Period.Pool.Equal(decimal.NewFromInt(49_000_000)), "pool = %s", res.Period.Pool)
	assert.True(t, res.Period.TotalShares.Equal(decimal.NewFromInt(100)))
	assert.True(t, res.Period.ProfitPerShare.Equal(decimal.NewFromInt(490_000)), "pps = %s", res.Period.ProfitPerShare)

	require.Len(t, res.Records, 2)
	byHolder := map[equity.HolderID]equity.ProfitDistributionRecord{}
	for _, r := range res.Records {
		byHolder[r.HolderID] = r
	}

	inv := byHolder["inv1"]
	assert.Equal(t, equity.DistributionCapital, inv.DistributionType)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(29_400_000)), "inv amount = %s", inv.Amount)
	assert.True(t, inv.TokenAmount.Equal(decimal.NewFromInt(2940)))
	assert.False(t, inv.Clamped)
	assert.Equal(t, equity.PaymentPending, inv.PaymentStatus)

	lab := byHolder["staff1"]
	assert.Equal(t, equity.DistributionLabor, lab.DistributionType)
	assert.True(t, lab.Amount.Equal(decimal.NewFromInt(19_600_000)), "lab amount = %s", lab.Amount)

	// Token balances credited alongside the records.
	h, err := mem.Holder(ctx, "inv1")
	require.NoError(t, err)
	assert.True(t, h.TokenBalance.Equal(decimal.NewFromInt(2940)))
	assert.True(t, h.CumulativeDistributed.Equal(decimal.NewFromInt(29_400_000)))

	var committed bool
	for _, e := range audit.Entries() {
		if e.Action == equity.AuditDistributionCommitted && e.PeriodRef == "2024-Q1" {
			committed = true
		}
	}
	assert.True(t, committed, "expected a committed audit entry")
}

func TestProcess_SecondRunRefused(t *testing.T) {
	// GIVEN: A processed quarter
	// WHEN: Processing it again without force
	// THEN: ErrAlreadyProcessed returns alongside the stored period, and
	//       no balances move twice

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "member",
		CapitalShares:  decimal.NewFromInt(10),
		BaseInvestment: decimal.NewFromInt(10_000_000),
	})
	seedLedger(t, mem, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), 10_000_000, 0)

	first, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)

	second, err := proc.Process(ctx, "2024-Q1", false)
	assert.ErrorIs(t, err, equity.ErrAlreadyProcessed)
	assert.Equal(t, first.Period.ID, second.Period.ID)
	assert.Len(t, second.Records, len(first.Records))

	h, err := mem.Holder(ctx, "inv1")
	require.NoError(t, err)
	assert.True(t, h.CumulativeDistributed.Equal(first.Records[0].Amount), "balances moved twice")
}

func TestProcess_LossQuarter(t *testing.T) {
	// GIVEN: A quarter where expenses exceed revenue
	// WHEN: Processing it
	// THEN: The period completes with a zero pool, no distribution
	//       records are created, and holder balances do not move

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "member",
		CapitalShares:  decimal.NewFromInt(10),
		BaseInvestment: decimal.NewFromInt(10_000_000),
	})
	seedLedger(t, mem, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), 80_000_000, 95_000_000)

	res, err := proc.Process(ctx, "2024-Q2", false)
	require.NoError(t, err)

	assert.Equal(t, equity.PeriodCompleted, res.Period.Status)
	assert.True(t, res.Period.NetProfit.Equal(decimal.NewFromInt(-15_000_000)))
	assert.True(t, res.Period.Pool.IsZero())
	assert.True(t, res.Period.ProfitPerShare.IsZero())
	assert.Empty(t, res.Records)

	stored, err := proc.Records(ctx, res.Period.ID)
	require.NoError(t, err)
	assert.Empty(t, stored, "loss quarter must not persist payout records")

	h, err := mem.Holder(ctx, "inv1")
	require.NoError(t, err)
	assert.True(t, h.CumulativeDistributed.IsZero())
	assert.True(t, h.TokenBalance.IsZero())
}

func TestProcess_BreakEvenQuarter(t *testing.T) {
	// GIVEN: A quarter netting exactly zero
	// WHEN: Processing it
	// THEN: Same as a loss: completed period, empty pool, no records

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "member",
		CapitalShares:  decimal.NewFromInt(10),
		BaseInvestment: decimal.NewFromInt(10_000_000),
	})
	seedLedger(t, mem, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), 50_000_000, 50_000_000)

	res, err := proc.Process(ctx, "2024-Q3", false)
	require.NoError(t, err)
	assert.Equal(t, equity.PeriodCompleted, res.Period.Status)
	assert.True(t, res.Period.Pool.IsZero())
	assert.Empty(t, res.Records)
}

func TestProcess_LedgerDateFiltering(t *testing.T) {
	// GIVEN: Ledger lines inside and outside the quarter
	// WHEN: Processing
	// THEN: Only in-range lines feed the aggregate

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "member",
		CapitalShares:  decimal.NewFromInt(1),
		BaseInvestment: decimal.NewFromInt(1_000_000),
	})
	seedLedger(t, mem, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 30_000_000, 0)  // first day, in
	seedLedger(t, mem, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), 20_000_000, 0) // last day, in
	seedLedger(t, mem, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), 99_000_000, 0)  // next quarter, out
	seedLedger(t, mem, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), 99_000_000, 0)

	res, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)
	assert.True(t, res.Period.TotalRevenue.Equal(decimal.NewFromInt(50_000_000)), "revenue = %s", res.Period.TotalRevenue)
}

func TestProcess_MaxoutClampsPayout(t *testing.T) {
	// GIVEN: A member holder with only 1M of ceiling headroom left and a
	//        quarter whose per-share payout would exceed it
	// WHEN: Processing
	// THEN: The payout is clamped to the headroom, the record flagged,
	//       and a maxout audit entry lands after commit

	proc, mem, audit := newTestProcessor(t)
	ctx := context.Background()

	// Ceiling 2M, already 1M distributed.
	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "member",
		CapitalShares:         decimal.NewFromInt(100),
		BaseInvestment:        decimal.NewFromInt(1_000_000),
		CumulativeDistributed: decimal.NewFromInt(1_000_000),
	})
	// 100M net -> pool 49M -> pps 490K -> proposed 49M for 100 shares.
	seedLedger(t, mem, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 100_000_000, 0)

	res, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)

	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.True(t, rec.Clamped)
	assert.True(t, rec.Amount.Equal(decimal.NewFromInt(1_000_000)), "amount = %s", rec.Amount)
	assert.True(t, rec.TokenAmount.Equal(decimal.NewFromInt(100)))

	h, err := mem.Holder(ctx, "inv1")
	require.NoError(t, err)
	assert.True(t, h.MaxoutReached)
	assert.True(t, h.CumulativeDistributed.Equal(decimal.NewFromInt(2_000_000)))

	var sawMaxout bool
	for _, e := range audit.Entries() {
		if e.Action == equity.AuditMaxoutReached && e.HolderID == "inv1" {
			sawMaxout = true
		}
	}
	assert.True(t, sawMaxout, "expected a maxout audit entry")
}

func TestProcess_ForceReprocess(t *testing.T) {
	// GIVEN: A processed quarter whose ledger was later corrected
	// WHEN: Reprocessing with force
	// THEN: The prior period is cancelled (records kept), the prior
	//       credits reversed, and a fresh batch lands on the corrected
	//       figures

	proc, mem, audit := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "angel",
		CapitalShares:  decimal.NewFromInt(100),
		BaseInvestment: decimal.NewFromInt(100_000_000),
	})
	seedLedger(t, mem, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), 100_000_000, 0)

	first, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)

	// Correction: another 100M of revenue surfaces for the quarter.
	seedLedger(t, mem, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 100_000_000, 0)

	second, err := proc.Process(ctx, "2024-Q1", true)
	require.NoError(t, err)
	assert.True(t, second.Reprocessed)
	assert.NotEqual(t, first.Period.ID, second.Period.ID)
	assert.True(t, second.Period.NetProfit.Equal(decimal.NewFromInt(200_000_000)))

	// The holder carries only the second batch's credit.
	h, err := mem.Holder(ctx, "inv1")
	require.NoError(t, err)
	assert.True(t, h.CumulativeDistributed.Equal(decimal.NewFromInt(98_000_000)), "cum = %s", h.CumulativeDistributed)
	assert.True(t, h.TokenBalance.Equal(decimal.NewFromInt(9800)), "tokens = %s", h.TokenBalance)

	// The cancelled period keeps its records for audit.
	priorRecs, err := proc.Records(ctx, first.Period.ID)
	require.NoError(t, err)
	assert.Len(t, priorRecs, 1)

	var cancelled bool
	for _, e := range audit.Entries() {
		if e.Action == equity.AuditPeriodCancelled && e.PeriodRef == "2024-Q1" {
			cancelled = true
		}
	}
	assert.True(t, cancelled, "expected a period-cancelled audit entry")
}

func TestProcess_MarksKpiRecordsProcessed(t *testing.T) {
	// GIVEN: An eligible KPI record for the quarter
	// WHEN: Processing the quarter
	// THEN: The record flips to processed

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "staff1", Type: equity.HolderStaff, Tier: equity.TierNone,
		LaborShares: decimal.NewFromInt(50),
	})
	require.NoError(t, mem.SaveKpiRecord(ctx, equity.KpiPeriodRecord{
		StaffID:     "staff1",
		PeriodValue: "2024-Q1",
		Eligible:    true,
		State:       equity.KpiEligible,
	}))
	seedLedger(t, mem, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 10_000_000, 0)

	_, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)

	rec, err := mem.KpiRecord(ctx, "staff1", "2024-Q1")
	require.NoError(t, err)
	assert.True(t, rec.IsProcessed)
	assert.Equal(t, equity.KpiProcessed, rec.State)
}

func TestProcess_RejectsBadQuarter(t *testing.T) {
	// GIVEN: Out-of-window and malformed quarter literals
	// WHEN: Processing
	// THEN: The batch never starts

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	for _, v := range []string{"2031-Q1", "2024-Q7", "garbage"} {
		_, err := proc.Process(ctx, v, false)
		assert.ErrorIs(t, err, equity.ErrInvalidPeriod, "quarter %q", v)
	}

	periods, err := mem.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Empty(t, periods)
}

func TestMarkPaid(t *testing.T) {
	// GIVEN: A completed batch with a pending payout record
	// WHEN: Marking it paid, twice
	// THEN: The first transition lands; the record stays paid

	proc, mem, _ := newTestProcessor(t)
	ctx := context.Background()

	seedHolder(t, mem, equity.Holder{
		ID: "inv1", Type: equity.HolderMember, Tier: "member",
		CapitalShares:  decimal.NewFromInt(1),
		BaseInvestment: decimal.NewFromInt(1_000_000),
	})
	seedLedger(t, mem, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), 1_000_000, 0)

	res, err := proc.Process(ctx, "2024-Q1", false)
	require.NoError(t, err)
	require.Len(t, res.Records, 1)

	require.NoError(t, proc.MarkPaid(ctx, res.Records[0].ID))

	recs, err := proc.Records(ctx, res.Period.ID)
	require.NoError(t, err)
	assert.Equal(t, equity.PaymentPaid, recs[0].PaymentStatus)

	err = proc.MarkPaid(ctx, "no-such-record")
	assert.True(t, equity.IsNotFound(err))
}
