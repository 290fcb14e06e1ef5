// Package shipping defines the delivery-pricing collaborator. Carrier rate
// aggregation is external; checkout only needs a cost figure.
package shipping

import (
	"context"

	"github.com/shopspring/decimal"
)

// Pricer quotes a delivery cost for an order subtotal shipped to a city.
type Pricer interface {
	Quote(ctx context.Context, city string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// FlatRate charges a fixed fee, waived once the subtotal reaches the
// free-delivery threshold. A zero threshold means delivery is never free.
type FlatRate struct {
	Fee           decimal.Decimal
	FreeThreshold decimal.Decimal
}

var _ Pricer = FlatRate{}

// Quote implements Pricer.
func (f FlatRate) Quote(_ context.Context, _ string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if f.FreeThreshold.IsPositive() && subtotal.GreaterThanOrEqual(f.FreeThreshold) {
		return decimal.Zero, nil
	}
	return f.Fee, nil
}
