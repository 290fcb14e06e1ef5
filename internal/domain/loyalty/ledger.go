// Package loyalty implements the cashback ledger arithmetic: how many loyalty
// units a customer may redeem against an order and how many they earn from it.
//
// The functions here are pure. The balance itself lives on the customer
// record and is mutated exactly once per checkout, as a single atomic delta
// (earned - redeemed) inside the checkout transaction.
package loyalty

import "github.com/shopspring/decimal"

// redemptionCap limits redemption to 50% of the discounted subtotal.
var redemptionCap = decimal.NewFromFloat(0.5)

// earnRate is the 3% cashback applied to the final charged amount.
var earnRate = decimal.NewFromFloat(0.03)

// Redeemable returns the number of units actually applied when a customer
// requests to redeem against an order. The request is silently clamped to
// min(requested, balance, floor(discountedSubtotal * 0.5)) — over-asking is
// a UX best-effort case, not an error.
func Redeemable(requested, balance int64, discountedSubtotal decimal.Decimal) int64 {
	if requested <= 0 {
		return 0
	}

	cap := discountedSubtotal.Mul(redemptionCap).Floor().IntPart()
	if cap < 0 {
		cap = 0
	}

	redeemed := requested
	if balance < redeemed {
		redeemed = balance
	}
	if cap < redeemed {
		redeemed = cap
	}
	if redeemed < 0 {
		redeemed = 0
	}
	return redeemed
}

// Earned returns floor(total * 0.03): cashback is computed on the final
// charged amount, after discount and redemption, never on the raw subtotal.
func Earned(total decimal.Decimal) int64 {
	if total.IsNegative() {
		return 0
	}
	return total.Mul(earnRate).Floor().IntPart()
}
