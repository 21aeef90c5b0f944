/*
maxout.go - Per-holder payout ceiling guard

PURPOSE:
  Tracks cumulative distributed value against a per-holder ceiling and
  clamps further payout once the ceiling is reached. The ceiling is a
  multiple of base investment:

      ceiling   = baseInvestment * tier.MaxoutMultiplier   (∞ if Unlimited)
      remaining = max(0, ceiling - cumulativeDistributed)
      allowed   = min(proposed, remaining)

  Invoked from BOTH entry points that can pay a holder:
  - contribution calculation (token value credited per event)
  - quarterly profit distribution (per-holder payout lines)

  A capped holder still appears in the distribution roster but receives
  at most the remaining headroom, possibly zero. Clamping is a flag on
  the holder, never an error.
*/
package equity

import "github.com/shopspring/decimal"

// =============================================================================
// MAXOUT GUARD
// =============================================================================

// ClampResult is the outcome of passing a proposed payout through the guard.
type ClampResult struct {
	// Allowed is min(proposed, remaining headroom). Never negative.
	Allowed decimal.Decimal

	// MaxoutReached is true when the proposal was reduced, i.e. the
	// ceiling is now binding for this holder.
	MaxoutReached bool
}

// Ceiling returns the payout ceiling for a holder on this tier, and
// whether the tier is unlimited.
func (tc TierConfig) Ceiling(baseInvestment decimal.Decimal) (decimal.Decimal, bool) {
	if tc.Unlimited {
		return decimal.Zero, true
	}
	return baseInvestment.Mul(tc.MaxoutMultiplier), false
}

// Clamp applies the maxout rule to a proposed currency payout. Pure: the
// caller updates CumulativeDistributed and the MaxoutReached flag from
// the result.
func (tc TierConfig) Clamp(baseInvestment, cumulativeDistributed, proposed decimal.Decimal) ClampResult {
	if proposed.IsNegative() {
		proposed = decimal.Zero
	}

	ceiling, unlimited := tc.Ceiling(baseInvestment)
	if unlimited {
		return ClampResult{Allowed: proposed}
	}

	remaining := ceiling.Sub(cumulativeDistributed)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	if proposed.LessThanOrEqual(remaining) {
		return ClampResult{Allowed: proposed}
	}
	return ClampResult{Allowed: remaining, MaxoutReached: true}
}

// ApplyDistribution clamps a proposed payout for the holder, mutates its
// cumulative distributed total and maxout flag, and returns the result.
// Once the flag is set the holder is excluded from future headroom until
// the tier configuration changes.
func (h *Holder) ApplyDistribution(tc TierConfig, proposed decimal.Decimal) ClampResult {
	res := tc.Clamp(h.BaseInvestment, h.CumulativeDistributed, proposed)
	h.CumulativeDistributed = h.CumulativeDistributed.Add(res.Allowed)
	if res.MaxoutReached {
		h.MaxoutReached = true
	}
	return res
}
