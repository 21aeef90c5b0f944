/*
params.go - Injected business constants and unit conversion

PURPOSE:
  Every global business constant of the engine lives here, in a single
  immutable Params value passed in at construction time. Nothing in the
  engine re-declares an exchange rate, pool percentage, or tax threshold
  at a call site.

CONSTANTS:
  Token exchange:  100 token units per 1,000,000 currency units
                   (1 token unit = 10,000 currency units)
  Profit pool:     49% of quarterly net profit
  Pool split:      30 points capital / 19 points labor (nominal earmarks)
  Withdrawal tax:  10% on amounts above 10,000,000
  Min withdrawal:  5,000,000
  Quarter bounds:  years 2020-2030

UNIT CONVERTER:
  TokensFor and CurrencyFor are pure, total linear scalings of the same
  unit, so the round trip CurrencyFor(TokensFor(x)) == x is exact.
  Token balances are stored as exact decimal quantities; currency output
  is rounded to the smallest unit only at presentation time.
*/
package equity

import "github.com/shopspring/decimal"

// =============================================================================
// PARAMS - Immutable engine configuration
// =============================================================================

// Params bundles the business constants. Construct once with
// DefaultParams() (or a variant in tests) and pass into the engine,
// the KPI engine, and the distribution processor.
type Params struct {
	// TokenUnitsPerSlice token units are granted per SliceSize currency.
	TokenUnitsPerSlice decimal.Decimal
	SliceSize          decimal.Decimal

	// CurrencyPerToken converts token units back to currency.
	CurrencyPerToken decimal.Decimal

	// PoolRate of quarterly net profit is earmarked for distribution.
	PoolRate decimal.Decimal

	// Nominal capital/labor earmarks. They sum to PoolRate.
	CapitalPoolRate decimal.Decimal
	LaborPoolRate   decimal.Decimal

	// Withdrawal rule.
	WithdrawalTaxRate      decimal.Decimal
	WithdrawalTaxThreshold decimal.Decimal
	MinWithdrawal          decimal.Decimal

	// KPI rule: token units granted per performance point.
	TokensPerKpiPoint decimal.Decimal

	// Performance points per equity slot; shares granted per slot.
	PointsPerSlot decimal.Decimal
	SharesPerSlot decimal.Decimal
	EligibleScore decimal.Decimal

	// Fixed token grant for newly created branch holders.
	BranchInitialTokens decimal.Decimal

	// Accepted quarter years, inclusive.
	MinYear int
	MaxYear int
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		TokenUnitsPerSlice: decimal.NewFromInt(100),
		SliceSize:          decimal.NewFromInt(1_000_000),
		CurrencyPerToken:   decimal.NewFromInt(10_000),

		PoolRate:        dec("0.49"),
		CapitalPoolRate: dec("0.30"),
		LaborPoolRate:   dec("0.19"),

		WithdrawalTaxRate:      dec("0.10"),
		WithdrawalTaxThreshold: decimal.NewFromInt(10_000_000),
		MinWithdrawal:          decimal.NewFromInt(5_000_000),

		BranchInitialTokens: decimal.NewFromInt(1_000),

		TokensPerKpiPoint: decimal.NewFromInt(10),
		PointsPerSlot:     decimal.NewFromInt(50),
		SharesPerSlot:     decimal.NewFromInt(50),
		EligibleScore:     decimal.NewFromInt(50),

		MinYear: 2020,
		MaxYear: 2030,
	}
}

// dec parses a decimal literal known to be valid.
func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// UNIT CONVERTER
// =============================================================================

// TokensFor converts a currency amount to token units:
// (amount / SliceSize) * TokenUnitsPerSlice. Pure; the caller is
// responsible for validating amount >= 0.
func (p Params) TokensFor(amount decimal.Decimal) decimal.Decimal {
	// Multiply by the precomputed rate instead of dividing so the result
	// stays exact for any input.
	rate := p.TokenUnitsPerSlice.Div(p.SliceSize)
	return amount.Mul(rate)
}

// CurrencyFor converts token units back to currency: tokens * CurrencyPerToken.
func (p Params) CurrencyFor(tokens decimal.Decimal) decimal.Decimal {
	return tokens.Mul(p.CurrencyPerToken)
}

// BaseSharesFor returns the investment-derived share count for an amount:
// amount / SliceSize, scaled by the tier's shares-per-slice.
func (p Params) BaseSharesFor(amount, sharesPerSlice decimal.Decimal) decimal.Decimal {
	return amount.Div(p.SliceSize).Mul(sharesPerSlice)
}
