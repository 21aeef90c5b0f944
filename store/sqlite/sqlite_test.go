package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testHolder(id equity.HolderID) equity.Holder {
	return equity.Holder{
		ID:                    id,
		Name:                  "Test Holder",
		Type:                  equity.HolderMember,
		Tier:                  "silver",
		BaseInvestment:        decimal.NewFromInt(20_000_000),
		CumulativeAmount:      decimal.NewFromInt(20_000_000),
		CapitalShares:         decimal.NewFromInt(20),
		TokenBalance:          decimal.NewFromInt(3000),
		CumulativeDistributed: decimal.NewFromInt(30_000_000),
		Active:                true,
		CreatedAt:             time.Now().UTC().Truncate(time.Second),
	}
}

// =============================================================================
// HOLDERS
// =============================================================================

func TestHolder_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := testHolder("h1")
	require.NoError(t, s.SaveHolder(ctx, want))

	got, err := s.Holder(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Tier, got.Tier)
	assert.True(t, got.BaseInvestment.Equal(want.BaseInvestment))
	assert.True(t, got.CapitalShares.Equal(want.CapitalShares))
	assert.True(t, got.TokenBalance.Equal(want.TokenBalance))
	assert.True(t, got.CumulativeDistributed.Equal(want.CumulativeDistributed))
	assert.True(t, got.Active)
	assert.False(t, got.MaxoutReached)

	// Upsert: a second save for the same ID replaces the row.
	want.TokenBalance = decimal.NewFromInt(5000)
	want.MaxoutReached = true
	require.NoError(t, s.SaveHolder(ctx, want))

	got, err = s.Holder(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, got.TokenBalance.Equal(decimal.NewFromInt(5000)))
	assert.True(t, got.MaxoutReached)

	holders, err := s.ListHolders(ctx)
	require.NoError(t, err)
	assert.Len(t, holders, 1)
}

func TestHolder_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Holder(context.Background(), "missing")
	assert.ErrorIs(t, err, equity.ErrHolderNotFound)
}

func TestShareholders_FiltersInactiveAndShareless(t *testing.T) {
	// GIVEN: An active shareholder, an inactive one, and a holder with
	//        no shares
	// WHEN: Listing shareholders
	// THEN: Only the active holder with positive shares appears

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHolder(ctx, testHolder("active")))

	inactive := testHolder("inactive")
	inactive.Active = false
	require.NoError(t, s.SaveHolder(ctx, inactive))

	shareless := testHolder("shareless")
	shareless.CapitalShares = decimal.Zero
	require.NoError(t, s.SaveHolder(ctx, shareless))

	got, err := s.Shareholders(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, equity.HolderID("active"), got[0].ID)
}

// =============================================================================
// EVENTS
// =============================================================================

func testEvent(id equity.EventID, holder equity.HolderID, idemKey string) equity.ContributionEvent {
	return equity.ContributionEvent{
		ID:             id,
		HolderID:       holder,
		Type:           equity.EventInvestment,
		Kind:           equity.KindCash,
		Amount:         decimal.NewFromInt(1_000_000),
		Shares:         decimal.NewFromInt(1),
		TokenAmount:    decimal.NewFromInt(100),
		Tier:           "member",
		Status:         equity.StatusPending,
		IdempotencyKey: idemKey,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestEvent_AppendAndRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, testEvent("e1", "h1", "")))
	require.NoError(t, s.AppendEvent(ctx, testEvent("e2", "h1", "")))
	require.NoError(t, s.AppendEvent(ctx, testEvent("e3", "h2", "")))

	got, err := s.Event(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(1_000_000)))
	assert.Equal(t, equity.StatusPending, got.Status)

	byHolder, err := s.EventsByHolder(ctx, "h1")
	require.NoError(t, err)
	assert.Len(t, byHolder, 2)

	_, err = s.Event(ctx, "missing")
	assert.ErrorIs(t, err, equity.ErrEventNotFound)
}

func TestEvent_IdempotencyKeyUnique(t *testing.T) {
	// GIVEN: An event stored under an idempotency key
	// WHEN: Appending another event with the same key
	// THEN: The unique index rejects it; an empty key is never checked

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, testEvent("e1", "h1", "req-1")))

	err := s.AppendEvent(ctx, testEvent("e2", "h1", "req-1"))
	assert.ErrorIs(t, err, equity.ErrDuplicateIdempotencyKey)

	require.NoError(t, s.AppendEvent(ctx, testEvent("e3", "h1", "")))
	require.NoError(t, s.AppendEvent(ctx, testEvent("e4", "h1", "")))
}

func TestSetEventStatus_PendingOnly(t *testing.T) {
	// GIVEN: A pending event
	// WHEN: Transitioning it twice
	// THEN: Only the first transition succeeds

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, testEvent("e1", "h1", "")))
	require.NoError(t, s.SetEventStatus(ctx, "e1", equity.StatusApproved))

	got, err := s.Event(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, equity.StatusApproved, got.Status)

	err = s.SetEventStatus(ctx, "e1", equity.StatusRejected)
	assert.ErrorIs(t, err, equity.ErrEventNotPending)

	err = s.SetEventStatus(ctx, "missing", equity.StatusApproved)
	assert.ErrorIs(t, err, equity.ErrEventNotFound)
}

// =============================================================================
// KPI RECORDS
// =============================================================================

func testKpiRecord(staff equity.HolderID, quarter string, eligible bool) equity.KpiPeriodRecord {
	rec := equity.KpiPeriodRecord{
		StaffID:           staff,
		PeriodValue:       quarter,
		CardSales:         decimal.NewFromInt(100),
		CardSalesTarget:   decimal.NewFromInt(100),
		RetainedCustomers: decimal.NewFromInt(90),
		TotalCustomers:    decimal.NewFromInt(100),
		Revenue:           decimal.NewFromInt(100),
		RevenueTarget:     decimal.NewFromInt(100),
		TotalPoints:       decimal.NewFromInt(120),
		Score:             decimal.NewFromInt(97),
		Eligible:          eligible,
		State:             equity.KpiIneligible,
		ComputedAt:        time.Now().UTC(),
	}
	if eligible {
		rec.State = equity.KpiEligible
		rec.Slots = 1
		rec.SharesAwarded = decimal.NewFromInt(50)
		rec.TokenEarned = decimal.NewFromInt(1200)
	}
	return rec
}

func TestKpiRecord_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := testKpiRecord("s1", "2024-Q1", true)
	require.NoError(t, s.SaveKpiRecord(ctx, want))

	got, err := s.KpiRecord(ctx, "s1", "2024-Q1")
	require.NoError(t, err)
	assert.True(t, got.Score.Equal(want.Score))
	assert.True(t, got.SharesAwarded.Equal(want.SharesAwarded))
	assert.True(t, got.TokenEarned.Equal(want.TokenEarned))
	assert.Equal(t, equity.KpiEligible, got.State)
	assert.EqualValues(t, 1, got.Slots)
	assert.False(t, got.IsProcessed)

	// Recompute replaces the row for the same (staff, quarter).
	want.Score = decimal.NewFromInt(55)
	require.NoError(t, s.SaveKpiRecord(ctx, want))
	got, err = s.KpiRecord(ctx, "s1", "2024-Q1")
	require.NoError(t, err)
	assert.True(t, got.Score.Equal(decimal.NewFromInt(55)))

	_, err = s.KpiRecord(ctx, "s1", "2024-Q2")
	assert.ErrorIs(t, err, equity.ErrKpiRecordNotFound)
}

func TestMarkKpiProcessed_EligibleOnly(t *testing.T) {
	// GIVEN: Eligible and ineligible records for the quarter, plus a
	//        record in a different quarter
	// WHEN: Marking the quarter processed
	// THEN: Only the eligible in-quarter record flips

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveKpiRecord(ctx, testKpiRecord("s1", "2024-Q1", true)))
	require.NoError(t, s.SaveKpiRecord(ctx, testKpiRecord("s2", "2024-Q1", false)))
	require.NoError(t, s.SaveKpiRecord(ctx, testKpiRecord("s1", "2024-Q2", true)))

	require.NoError(t, s.MarkKpiProcessed(ctx, "2024-Q1"))

	r1, err := s.KpiRecord(ctx, "s1", "2024-Q1")
	require.NoError(t, err)
	assert.True(t, r1.IsProcessed)
	assert.Equal(t, equity.KpiProcessed, r1.State)

	r2, err := s.KpiRecord(ctx, "s2", "2024-Q1")
	require.NoError(t, err)
	assert.False(t, r2.IsProcessed)

	r3, err := s.KpiRecord(ctx, "s1", "2024-Q2")
	require.NoError(t, err)
	assert.False(t, r3.IsProcessed)

	forQuarter, err := s.KpiRecordsForQuarter(ctx, "2024-Q1")
	require.NoError(t, err)
	assert.Len(t, forQuarter, 2)
}

// =============================================================================
// PERIODS
// =============================================================================

func testPeriod(id equity.PeriodID, quarter string, status equity.PeriodStatus) equity.ProfitSharingPeriod {
	return equity.ProfitSharingPeriod{
		ID:             id,
		Period:         "quarter",
		PeriodValue:    quarter,
		TotalRevenue:   decimal.NewFromInt(180_000_000),
		TotalExpenses:  decimal.NewFromInt(80_000_000),
		NetProfit:      decimal.NewFromInt(100_000_000),
		Pool:           decimal.NewFromInt(49_000_000),
		CapitalPool:    decimal.NewFromInt(30_000_000),
		LaborPool:      decimal.NewFromInt(19_000_000),
		TotalShares:    decimal.NewFromInt(100),
		ProfitPerShare: decimal.NewFromInt(490_000),
		Status:         status,
		ProcessedAt:    time.Now().UTC(),
	}
}

func TestCreatePeriod_OnePerQuarter(t *testing.T) {
	// GIVEN: A non-cancelled period row for 2024-Q1
	// WHEN: Inserting a second row for the same quarter
	// THEN: The partial unique index rejects it; a different quarter and
	//       a cancelled prior row both insert fine

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p1", "2024-Q1", equity.PeriodPending)))

	err := s.CreatePeriod(ctx, testPeriod("p2", "2024-Q1", equity.PeriodPending))
	assert.ErrorIs(t, err, equity.ErrAlreadyProcessed)

	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p3", "2024-Q2", equity.PeriodPending)))

	// Cancelling the active row frees the quarter.
	cancelled := testPeriod("p1", "2024-Q1", equity.PeriodCancelled)
	require.NoError(t, s.UpdatePeriod(ctx, cancelled))
	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p4", "2024-Q1", equity.PeriodPending)))
}

func TestActivePeriod_IgnoresCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p1", "2024-Q1", equity.PeriodCancelled)))

	_, ok, err := s.ActivePeriod(ctx, "2024-Q1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p2", "2024-Q1", equity.PeriodCompleted)))

	got, ok, err := s.ActivePeriod(ctx, "2024-Q1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, equity.PeriodID("p2"), got.ID)
	assert.True(t, got.Pool.Equal(decimal.NewFromInt(49_000_000)))
}

func TestUpdatePeriod_Missing(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdatePeriod(context.Background(), testPeriod("ghost", "2024-Q1", equity.PeriodCompleted))
	assert.ErrorIs(t, err, equity.ErrPeriodNotFound)
}

func TestListPeriods_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p1", "2024-Q1", equity.PeriodCompleted)))
	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p2", "2024-Q2", equity.PeriodCompleted)))

	periods, err := s.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "2024-Q2", periods[0].PeriodValue)
}

// =============================================================================
// DISTRIBUTION RECORDS
// =============================================================================

func TestDistributionRecords_AppendAndPay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreatePeriod(ctx, testPeriod("p1", "2024-Q1", equity.PeriodCompleted)))

	recs := []equity.ProfitDistributionRecord{
		{
			ID: "r1", PeriodID: "p1", HolderID: "h1",
			DistributionType: equity.DistributionCapital,
			Shares:           decimal.NewFromInt(60),
			Amount:           decimal.NewFromInt(29_400_000),
			TokenAmount:      decimal.NewFromInt(2940),
			PaymentStatus:    equity.PaymentPending,
			CreatedAt:        time.Now().UTC(),
		},
		{
			ID: "r2", PeriodID: "p1", HolderID: "h2",
			DistributionType: equity.DistributionLabor,
			Shares:           decimal.NewFromInt(40),
			Amount:           decimal.NewFromInt(19_600_000),
			TokenAmount:      decimal.NewFromInt(1960),
			Clamped:          true,
			PaymentStatus:    equity.PaymentPending,
			CreatedAt:        time.Now().UTC(),
		},
	}
	require.NoError(t, s.AppendDistributionRecords(ctx, recs))

	got, err := s.DistributionRecords(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(29_400_000)))
	assert.False(t, got[0].Clamped)
	assert.True(t, got[1].Clamped)

	require.NoError(t, s.SetPaymentStatus(ctx, "r1", equity.PaymentPaid))
	got, err = s.DistributionRecords(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, equity.PaymentPaid, got[0].PaymentStatus)
	assert.Equal(t, equity.PaymentPending, got[1].PaymentStatus)

	err = s.SetPaymentStatus(ctx, "missing", equity.PaymentPaid)
	assert.ErrorIs(t, err, equity.ErrRecordNotFound)
}

// =============================================================================
// LEDGER AGGREGATION
// =============================================================================

func TestRevenueExpenses_DateRange(t *testing.T) {
	// GIVEN: Ledger lines on, inside, and outside the quarter bounds
	// WHEN: Aggregating over Q1 2024
	// THEN: Boundary days are inclusive; out-of-range lines are ignored

	s := newTestStore(t)
	ctx := context.Background()

	post := func(y int, m time.Month, d int, rev, exp int64) {
		require.NoError(t, s.RecordLedgerEntry(ctx,
			time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			decimal.NewFromInt(rev), decimal.NewFromInt(exp)))
	}
	post(2024, 1, 1, 30_000_000, 5_000_000)
	post(2024, 2, 15, 50_000_000, 20_000_000)
	post(2024, 3, 31, 20_000_000, 10_000_000)
	post(2023, 12, 31, 99_000_000, 0)
	post(2024, 4, 1, 99_000_000, 0)

	q, err := equity.ParseQuarter("2024-Q1")
	require.NoError(t, err)
	from, to := q.Period()

	agg, err := s.RevenueExpenses(ctx, from, to)
	require.NoError(t, err)
	assert.True(t, agg.Revenue.Equal(decimal.NewFromInt(100_000_000)), "revenue = %s", agg.Revenue)
	assert.True(t, agg.Expenses.Equal(decimal.NewFromInt(35_000_000)), "expenses = %s", agg.Expenses)
	assert.True(t, agg.NetProfit().Equal(decimal.NewFromInt(65_000_000)))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that saves a holder and then fails
	// WHEN: The transaction returns the error
	// THEN: The holder write is rolled back

	s := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx equity.Store) error {
		if err := tx.SaveHolder(ctx, testHolder("h1")); err != nil {
			return err
		}
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	_, err = s.Holder(ctx, "h1")
	assert.ErrorIs(t, err, equity.ErrHolderNotFound)
}

func TestWithTx_CommitOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx equity.Store) error {
		if err := tx.SaveHolder(ctx, testHolder("h1")); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, testEvent("e1", "h1", ""))
	})
	require.NoError(t, err)

	_, err = s.Holder(ctx, "h1")
	assert.NoError(t, err)
	_, err = s.Event(ctx, "e1")
	assert.NoError(t, err)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestAudit_RecordAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, equity.AuditEntry{
		ID:       "a1",
		Action:   equity.AuditContributionRecorded,
		HolderID: "h1",
		At:       time.Now().UTC(),
		Detail:   map[string]string{"amount": "1000000"},
	}))
	require.NoError(t, s.Record(ctx, equity.AuditEntry{
		ID:        "a2",
		Action:    equity.AuditDistributionCommitted,
		At:        time.Now().UTC(),
		PeriodRef: "2024-Q1",
	}))

	got, err := s.AuditEntries(ctx, equity.AuditContributionRecorded)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, equity.HolderID("h1"), got[0].HolderID)
	assert.Equal(t, "1000000", got[0].Detail["amount"])

	all, err := s.AuditEntries(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
