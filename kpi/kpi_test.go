package kpi

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
	"github.com/Trungtrucpixel/vcareglobal-sub002/equity/store"
)

// fullMetrics returns metrics at exactly 100% on every component.
func fullMetrics() Metrics {
	return Metrics{
		CardSales:         decimal.NewFromInt(100),
		CardSalesTarget:   decimal.NewFromInt(100),
		RetainedCustomers: decimal.NewFromInt(80),
		TotalCustomers:    decimal.NewFromInt(80),
		Revenue:           decimal.NewFromInt(500_000_000),
		RevenueTarget:     decimal.NewFromInt(500_000_000),
		TotalPoints:       decimal.NewFromInt(120),
	}
}

func TestScore_Weighting(t *testing.T) {
	// GIVEN: Components at distinct attainment levels
	// WHEN: Combining them
	// THEN: score = 40% cards + 30% retention + 30% revenue

	m := Metrics{
		CardSales:         decimal.NewFromInt(50), // 50% of target
		CardSalesTarget:   decimal.NewFromInt(100),
		RetainedCustomers: decimal.NewFromInt(90), // 90% retention
		TotalCustomers:    decimal.NewFromInt(100),
		Revenue:           decimal.NewFromInt(120), // 120% of target
		RevenueTarget:     decimal.NewFromInt(100),
	}

	// 50*0.40 + 90*0.30 + 120*0.30 = 20 + 27 + 36 = 83
	got := Score(m)
	if !got.Equal(decimal.NewFromInt(83)) {
		t.Errorf("Score = %s, want 83", got)
	}
}

func TestScore_ZeroTargetComponentScoresZero(t *testing.T) {
	// GIVEN: A metrics set with no revenue target configured
	// WHEN: Scoring
	// THEN: The revenue component contributes zero instead of dividing
	//       by zero

	m := fullMetrics()
	m.RevenueTarget = decimal.Zero

	// 100*0.40 + 100*0.30 + 0 = 70
	got := Score(m)
	if !got.Equal(decimal.NewFromInt(70)) {
		t.Errorf("Score = %s, want 70", got)
	}
}

func TestEvaluate_BelowThresholdIneligible(t *testing.T) {
	// GIVEN: Metrics scoring under 50
	// WHEN: Evaluating
	// THEN: No slots, no shares, no token bonus, even with points banked

	p := equity.DefaultParams()
	m := Metrics{
		CardSales:       decimal.NewFromInt(40),
		CardSalesTarget: decimal.NewFromInt(100),
		TotalPoints:     decimal.NewFromInt(500),
	}

	res := Evaluate(p, m)
	if res.Eligible {
		t.Fatal("Eligible = true, want false")
	}
	if res.Slots != 0 || !res.SharesAwarded.IsZero() || !res.TokenEarned.IsZero() {
		t.Errorf("grants = (%d, %s, %s), want all zero", res.Slots, res.SharesAwarded, res.TokenEarned)
	}
}

func TestEvaluate_ThresholdBoundary(t *testing.T) {
	// GIVEN: Metrics scoring exactly 50, then a hair under
	// WHEN: Evaluating both
	// THEN: Exactly 50 is eligible (1 slot, 50 shares); 49.6 is not

	p := equity.DefaultParams()

	at := Metrics{
		CardSales:       decimal.NewFromInt(125), // 125% * 0.40 = 50
		CardSalesTarget: decimal.NewFromInt(100),
	}
	res := Evaluate(p, at)
	if !res.Eligible {
		t.Fatal("Eligible = false at score 50, want true")
	}
	if res.Slots != 1 {
		t.Errorf("Slots = %d, want 1", res.Slots)
	}
	if !res.SharesAwarded.Equal(decimal.NewFromInt(50)) {
		t.Errorf("SharesAwarded = %s, want 50", res.SharesAwarded)
	}

	under := at
	under.CardSales = decimal.NewFromInt(124) // 124% * 0.40 = 49.6
	res = Evaluate(p, under)
	if res.Eligible {
		t.Fatal("Eligible = true at score 49.6, want false")
	}
	if res.Slots != 0 || !res.SharesAwarded.IsZero() {
		t.Errorf("grants = (%d, %s), want zero", res.Slots, res.SharesAwarded)
	}
}

func TestEvaluate_SlotsAndDecoupledBonus(t *testing.T) {
	// GIVEN: A perfect 100 score with 120 raw points
	// WHEN: Evaluating
	// THEN: 2 slots (floor(100/50)), 100 shares, and a 1200 token bonus
	//       driven by the points track alone

	p := equity.DefaultParams()

	res := Evaluate(p, fullMetrics())
	if !res.Eligible {
		t.Fatal("Eligible = false, want true")
	}
	if res.Slots != 2 {
		t.Errorf("Slots = %d, want 2", res.Slots)
	}
	if !res.SharesAwarded.Equal(decimal.NewFromInt(100)) {
		t.Errorf("SharesAwarded = %s, want 100", res.SharesAwarded)
	}
	if !res.TokenEarned.Equal(decimal.NewFromInt(1200)) {
		t.Errorf("TokenEarned = %s, want 1200", res.TokenEarned)
	}
}

func TestEvaluate_ScoreAboveHundredEarnsExtraSlots(t *testing.T) {
	// GIVEN: Over-attainment pushing the score past 150
	// WHEN: Evaluating
	// THEN: The third slot is earned

	p := equity.DefaultParams()
	m := fullMetrics()
	m.CardSales = decimal.NewFromInt(250) // 250% -> 100 weighted points alone

	// 250*0.40 + 100*0.30 + 100*0.30 = 160 -> 3 slots
	res := Evaluate(p, m)
	if res.Slots != 3 {
		t.Errorf("Slots = %d, want 3", res.Slots)
	}
	if !res.SharesAwarded.Equal(decimal.NewFromInt(150)) {
		t.Errorf("SharesAwarded = %s, want 150", res.SharesAwarded)
	}
}

// =============================================================================
// ENGINE - Persistent once-per-quarter semantics
// =============================================================================

func newTestKpiEngine(t *testing.T) (*Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return NewEngine(equity.DefaultParams(), mem, store.NewAuditMemory()), mem
}

func seedStaff(t *testing.T, mem *store.Memory, id equity.HolderID) {
	t.Helper()
	require.NoError(t, mem.SaveHolder(context.Background(), equity.Holder{
		ID:     id,
		Type:   equity.HolderStaff,
		Tier:   equity.TierNone,
		Active: true,
	}))
}

func TestCalculate_CreditsEligibleStaff(t *testing.T) {
	// GIVEN: A staff holder with a perfect quarter
	// WHEN: Calculating the KPI grant
	// THEN: Labor shares and token bonus land on the holder and the
	//       record is stored eligible but unprocessed

	eng, mem := newTestKpiEngine(t)
	ctx := context.Background()
	seedStaff(t, mem, "s1")

	rec, err := eng.Calculate(ctx, "s1", "2024-Q1", fullMetrics(), false)
	require.NoError(t, err)
	assert.True(t, rec.Eligible)
	assert.Equal(t, equity.KpiEligible, rec.State)
	assert.False(t, rec.IsProcessed)
	assert.EqualValues(t, 2, rec.Slots)

	h, err := mem.Holder(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, h.LaborShares.Equal(decimal.NewFromInt(100)), "labor shares = %s", h.LaborShares)
	assert.True(t, h.TokenBalance.Equal(decimal.NewFromInt(1200)), "token balance = %s", h.TokenBalance)

	stored, err := eng.Record(ctx, "s1", "2024-Q1")
	require.NoError(t, err)
	assert.True(t, stored.Score.Equal(rec.Score))
}

func TestCalculate_IneligibleLeavesHolderUntouched(t *testing.T) {
	// GIVEN: A staff holder scoring under the threshold
	// WHEN: Calculating
	// THEN: The record is stored ineligible and no balances move

	eng, mem := newTestKpiEngine(t)
	ctx := context.Background()
	seedStaff(t, mem, "s1")

	m := Metrics{CardSales: decimal.NewFromInt(10), CardSalesTarget: decimal.NewFromInt(100)}
	rec, err := eng.Calculate(ctx, "s1", "2024-Q1", m, false)
	require.NoError(t, err)
	assert.False(t, rec.Eligible)
	assert.Equal(t, equity.KpiIneligible, rec.State)

	h, err := mem.Holder(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, h.LaborShares.IsZero())
	assert.True(t, h.TokenBalance.IsZero())
}

func TestCalculate_RepeatWithoutForceIsNoOp(t *testing.T) {
	// GIVEN: A scored quarter
	// WHEN: Calculating again with different metrics but no force
	// THEN: The stored result is returned and nothing is re-credited

	eng, mem := newTestKpiEngine(t)
	ctx := context.Background()
	seedStaff(t, mem, "s1")

	first, err := eng.Calculate(ctx, "s1", "2024-Q1", fullMetrics(), false)
	require.NoError(t, err)

	second, err := eng.Calculate(ctx, "s1", "2024-Q1", Metrics{}, false)
	require.NoError(t, err)
	assert.True(t, second.Score.Equal(first.Score))

	h, err := mem.Holder(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, h.LaborShares.Equal(decimal.NewFromInt(100)), "double credit detected: %s", h.LaborShares)
}

func TestCalculate_ForceReversesPriorGrant(t *testing.T) {
	// GIVEN: An eligible quarter already credited
	// WHEN: Recomputing with force and weaker metrics
	// THEN: The prior grant is reversed before the new (ineligible)
	//       result is stored

	eng, mem := newTestKpiEngine(t)
	ctx := context.Background()
	seedStaff(t, mem, "s1")

	_, err := eng.Calculate(ctx, "s1", "2024-Q1", fullMetrics(), false)
	require.NoError(t, err)

	weak := Metrics{CardSales: decimal.NewFromInt(10), CardSalesTarget: decimal.NewFromInt(100)}
	rec, err := eng.Calculate(ctx, "s1", "2024-Q1", weak, true)
	require.NoError(t, err)
	assert.False(t, rec.Eligible)

	h, err := mem.Holder(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, h.LaborShares.IsZero(), "labor shares = %s", h.LaborShares)
	assert.True(t, h.TokenBalance.IsZero(), "token balance = %s", h.TokenBalance)
}

func TestCalculate_ProcessedQuarterIsLocked(t *testing.T) {
	// GIVEN: A quarter already swept by the distribution processor
	// WHEN: Calculating again, with and without force
	// THEN: Without force the stored record returns; with force the
	//       recompute is refused

	eng, mem := newTestKpiEngine(t)
	ctx := context.Background()
	seedStaff(t, mem, "s1")

	_, err := eng.Calculate(ctx, "s1", "2024-Q1", fullMetrics(), false)
	require.NoError(t, err)
	require.NoError(t, mem.MarkKpiProcessed(ctx, "2024-Q1"))

	rec, err := eng.Calculate(ctx, "s1", "2024-Q1", Metrics{}, false)
	require.NoError(t, err)
	assert.True(t, rec.IsProcessed)

	_, err = eng.Calculate(ctx, "s1", "2024-Q1", fullMetrics(), true)
	assert.ErrorIs(t, err, equity.ErrAlreadyProcessed)
}

func TestCalculate_RejectsBadQuarter(t *testing.T) {
	// GIVEN: Malformed and out-of-window quarter literals
	// WHEN: Calculating
	// THEN: Both are rejected before touching the store

	eng, mem := newTestKpiEngine(t)
	ctx := context.Background()
	seedStaff(t, mem, "s1")

	for _, v := range []string{"2024-Q5", "2019-Q1", "bogus"} {
		_, err := eng.Calculate(ctx, "s1", v, fullMetrics(), false)
		assert.ErrorIs(t, err, equity.ErrInvalidPeriod, "quarter %q", v)
	}

	h, err := mem.Holder(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, h.LaborShares.IsZero())
}
