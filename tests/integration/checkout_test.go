//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brambleberry/storefront/internal/domain/order"
	"github.com/brambleberry/storefront/internal/domain/shipping"
)

func TestCheckoutPersistsOrderAndSideEffects(t *testing.T) {
	ctx := context.Background()

	productID := seedProduct(t, "6.50", 10)
	customerID := seedCustomer(t, 100)
	promoID := seedPercentPromo(t, "ITG10OFF", 10, -1)

	svc := newService(t, shipping.FlatRate{
		Fee:           decimal.RequireFromString("2.50"),
		FreeThreshold: decimal.Zero,
	})

	o, err := svc.Checkout(ctx, order.CheckoutRequest{
		CustomerID:   customerID,
		Items:        []order.ItemRequest{{ProductID: productID, Quantity: 2}},
		Shipping:     shipTo(),
		PromoCode:    "itg10off",
		LoyaltyUnits: 1000,
	})
	require.NoError(t, err)

	// subtotal 13.00, 10% promo = 1.30 off, loyalty clamped to balance-capped
	// min(1000, 100, floor(11.70/2)) = 5, delivery 2.50.
	assert.Equal(t, "13", o.Subtotal.String())
	assert.Equal(t, "1.3", o.Discount.String())
	assert.Equal(t, int64(5), o.LoyaltyRedeemed)
	assert.Equal(t, "2.5", o.DeliveryCost.String())
	assert.Equal(t, "9.2", o.Total.String())
	assert.Equal(t, int64(0), o.LoyaltyEarned)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Regexp(t, `^BB-[0-9A-Z]+-[0-9A-Z]{4}$`, o.Number)

	// Side effects landed in the same transaction.
	assert.Equal(t, 8, productStock(t, productID))
	assert.Equal(t, 1, promoUsedCount(t, promoID))
	assert.Equal(t, int64(95), loyaltyBalance(t, customerID))

	// Round trip by internal ID and by order number.
	byID, err := svc.GetForCustomer(ctx, customerID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Number, byID.Number)
	require.Len(t, byID.Items, 1)
	assert.Equal(t, 2, byID.Items[0].Quantity)
	assert.Equal(t, "6.5", byID.Items[0].UnitPrice.String())

	byNumber, err := svc.GetForCustomer(ctx, customerID, o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID, byNumber.ID)
	assert.True(t, byNumber.Total.Equal(o.Total))
}

func TestCheckoutOwnershipReadsAsNotFound(t *testing.T) {
	ctx := context.Background()

	productID := seedProduct(t, "5.00", 5)
	ownerID := seedCustomer(t, 0)
	strangerID := seedCustomer(t, 0)

	svc := newService(t, freeDelivery())

	o, err := svc.Checkout(ctx, order.CheckoutRequest{
		CustomerID: ownerID,
		Items:      []order.ItemRequest{{ProductID: productID, Quantity: 1}},
		Shipping:   shipTo(),
	})
	require.NoError(t, err)

	_, err = svc.GetForCustomer(ctx, strangerID, o.ID)
	assert.ErrorIs(t, err, order.ErrNotFound)

	_, err = svc.GetForCustomer(ctx, strangerID, o.Number)
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestListOrdersPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()

	productID := seedProduct(t, "1.00", 100)
	customerID := seedCustomer(t, 0)

	svc := newService(t, freeDelivery())

	var created []*order.Order
	for i := range 3 {
		o, err := svc.Checkout(ctx, order.CheckoutRequest{
			CustomerID: customerID,
			Items:      []order.ItemRequest{{ProductID: productID, Quantity: i + 1}},
			Shipping:   shipTo(),
		})
		require.NoError(t, err)
		created = append(created, o)
	}

	page1, total, err := svc.ListForCustomer(ctx, customerID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page1, 2)

	page2, _, err := svc.ListForCustomer(ctx, customerID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)

	seen := map[string]bool{}
	for _, o := range append(page1, page2...) {
		seen[o.ID] = true
	}
	for _, o := range created {
		assert.True(t, seen[o.ID], fmt.Sprintf("order %s missing from pages", o.ID))
	}
}

func TestCheckoutIdempotentReplayReturnsSameOrder(t *testing.T) {
	ctx := context.Background()

	productID := seedProduct(t, "3.00", 10)
	customerID := seedCustomer(t, 0)

	svc := newService(t, freeDelivery())

	req := order.CheckoutRequest{
		CustomerID:     customerID,
		Items:          []order.ItemRequest{{ProductID: productID, Quantity: 1}},
		Shipping:       shipTo(),
		IdempotencyKey: "replay-key-1",
	}

	first, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	second, err := svc.Checkout(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9, productStock(t, productID), "stock must be decremented exactly once")
}
