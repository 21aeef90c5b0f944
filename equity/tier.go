/*
tier.go - Business tier table and classification

PURPOSE:
  Encodes tier behavior as a single table-driven configuration instead of
  scattered multiplier lookups. Each tier carries its threshold, token
  multiplier, maxout multiplier, share rate and flags in one struct, so
  the calculator, the maxout guard and the API all read from the same
  source of truth.

CLASSIFICATION:
  Classify evaluates tiers from the highest minimum investment to the
  lowest and returns the first tier whose minimum is met. Descending
  order guarantees the richest-qualifying tier wins when several
  thresholds are satisfied at once. Tiers flagged KPIRequired (branch
  style) are skipped: those are assigned at holder creation, not earned
  by contribution volume. If nothing matches, the staff/none tier wins.

  Tier is recomputed on EVERY contribution from the cumulative amount -
  it is never fixed at account creation.

SEE ALSO:
  - maxout.go: Uses MaxoutMultiplier / Unlimited
  - engine.go: Uses Multiplier / SharesPerSlice / BaseShares
  - factory/tiers.go: JSON tier table loading
*/
package equity

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER CONFIG
// =============================================================================

type TierName string

// TierNone is the fallback tier when no investment threshold is met.
const TierNone TierName = "staff"

// TierConfig is the complete behavior of one business tier.
// Read-only at runtime; edits go through the external admin collaborator.
type TierConfig struct {
	Name          TierName
	MinInvestment decimal.Decimal

	// Token multiplier applied to converted token units.
	Multiplier decimal.Decimal

	// Ceiling = baseInvestment * MaxoutMultiplier, unless Unlimited.
	MaxoutMultiplier decimal.Decimal

	// Shares granted per SliceSize of contribution.
	SharesPerSlice decimal.Decimal

	// Fixed flat share grant per contribution. When positive it replaces
	// the amount-derived share calculation (franchise branch tiers).
	BaseShares decimal.Decimal

	// Unlimited tiers have no payout ceiling.
	Unlimited bool

	// KPIRequired tiers are assigned, never reached by classification.
	KPIRequired bool
}

// =============================================================================
// TIER TABLE
// =============================================================================

// TierTable is an ordered tier list, highest MinInvestment first.
type TierTable struct {
	tiers []TierConfig
	index map[TierName]TierConfig
}

// NewTierTable builds a table from configs, sorting by descending
// MinInvestment. Returns an error for duplicate names or non-positive
// multipliers.
func NewTierTable(configs []TierConfig) (TierTable, error) {
	if len(configs) == 0 {
		return TierTable{}, fmt.Errorf("%w: empty tier table", ErrTierNotConfigured)
	}

	sorted := make([]TierConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinInvestment.GreaterThan(sorted[j].MinInvestment)
	})

	index := make(map[TierName]TierConfig, len(sorted))
	for _, tc := range sorted {
		if tc.Name == "" {
			return TierTable{}, fmt.Errorf("%w: tier with empty name", ErrTierNotConfigured)
		}
		if _, dup := index[tc.Name]; dup {
			return TierTable{}, fmt.Errorf("%w: duplicate tier %q", ErrTierNotConfigured, tc.Name)
		}
		if !tc.Multiplier.IsPositive() {
			return TierTable{}, fmt.Errorf("%w: tier %q has non-positive multiplier", ErrTierNotConfigured, tc.Name)
		}
		if tc.MinInvestment.IsNegative() {
			return TierTable{}, fmt.Errorf("%w: tier %q has negative threshold", ErrTierNotConfigured, tc.Name)
		}
		index[tc.Name] = tc
	}

	return TierTable{tiers: sorted, index: index}, nil
}

// MustTierTable panics on an invalid table. For package presets only.
func MustTierTable(configs []TierConfig) TierTable {
	t, err := NewTierTable(configs)
	if err != nil {
		panic(err)
	}
	return t
}

// Classify maps a cumulative contribution amount to the richest tier
// whose minimum investment is met. KPIRequired tiers are skipped.
func (t TierTable) Classify(cumulative decimal.Decimal) TierName {
	for _, tc := range t.tiers {
		if tc.KPIRequired {
			continue
		}
		if cumulative.GreaterThanOrEqual(tc.MinInvestment) {
			return tc.Name
		}
	}
	return TierNone
}

// Get returns the configuration for a tier name.
// A missing entry is a configuration error (fatal, not retried).
func (t TierTable) Get(name TierName) (TierConfig, error) {
	tc, ok := t.index[name]
	if !ok {
		return TierConfig{}, &TierConfigError{Tier: name}
	}
	return tc, nil
}

// Configs returns the tiers in classification order (highest threshold
// first). The slice is a copy.
func (t TierTable) Configs() []TierConfig {
	out := make([]TierConfig, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// =============================================================================
// DEFAULT TABLE - Production tier ladder
// =============================================================================

// DefaultTierTable returns the standard tier ladder.
//
// Investor tiers earn amount-derived shares and token multipliers and are
// capped at a multiple of base investment. The branch tier grants a flat
// 200 shares per contribution and requires KPI. The staff fallback tier
// and the branch tier are unlimited: their holders have no cash principal
// to anchor a ceiling, and labor distributions must still reach them.
func DefaultTierTable() TierTable {
	return MustTierTable([]TierConfig{
		{
			Name:             "angel",
			MinInvestment:    decimal.NewFromInt(100_000_000),
			Multiplier:       dec("2.5"),
			MaxoutMultiplier: dec("5.0"),
			SharesPerSlice:   decimal.NewFromInt(1),
		},
		{
			Name:             "gold",
			MinInvestment:    decimal.NewFromInt(50_000_000),
			Multiplier:       dec("2.0"),
			MaxoutMultiplier: dec("4.0"),
			SharesPerSlice:   decimal.NewFromInt(1),
		},
		{
			Name:             "silver",
			MinInvestment:    decimal.NewFromInt(20_000_000),
			Multiplier:       dec("1.5"),
			MaxoutMultiplier: dec("3.0"),
			SharesPerSlice:   decimal.NewFromInt(1),
		},
		{
			Name:             "member",
			MinInvestment:    decimal.NewFromInt(1_000_000),
			Multiplier:       dec("1.0"),
			MaxoutMultiplier: dec("2.0"),
			SharesPerSlice:   decimal.NewFromInt(1),
		},
		{
			Name:             "branch",
			MinInvestment:    decimal.NewFromInt(500_000_000),
			Multiplier:       dec("3.0"),
			SharesPerSlice:   decimal.NewFromInt(1),
			BaseShares:       decimal.NewFromInt(200),
			Unlimited:        true,
			KPIRequired:      true,
		},
		{
			Name:           TierNone,
			MinInvestment:  decimal.Zero,
			Multiplier:     dec("1.0"),
			SharesPerSlice: decimal.NewFromInt(1),
			Unlimited:      true,
		},
	})
}
