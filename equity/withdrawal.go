/*
withdrawal.go - Withdrawal tax rule

PURPOSE:
  Applies the single fixed withdrawal tax rule:

      tax = amount > threshold ? amount * rate : 0
      net = amount - tax

  with a minimum withdrawal floor below which the request is rejected.
  Multi-currency and jurisdiction generality are out of scope; the rule
  and its constants come from Params.
*/
package equity

import "github.com/shopspring/decimal"

// Withdrawal is the computed tax quote for a withdrawal request.
type Withdrawal struct {
	Amount decimal.Decimal
	Tax    decimal.Decimal
	Net    decimal.Decimal
}

// WithdrawalFor applies the tax rule to an amount. Amounts below the
// configured minimum are rejected with BelowMinimumWithdrawalError.
func (p Params) WithdrawalFor(amount decimal.Decimal) (Withdrawal, error) {
	if amount.LessThan(p.MinWithdrawal) {
		return Withdrawal{}, &BelowMinimumWithdrawalError{Amount: amount, Minimum: p.MinWithdrawal}
	}

	tax := decimal.Zero
	if amount.GreaterThan(p.WithdrawalTaxThreshold) {
		tax = amount.Mul(p.WithdrawalTaxRate)
	}

	return Withdrawal{
		Amount: amount,
		Tax:    tax,
		Net:    amount.Sub(tax),
	}, nil
}
