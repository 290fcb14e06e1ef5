// Package cart holds the per-customer ephemeral cart model. A cart is fully
// cleared by checkout inside the same transaction that creates the order.
package cart

import "context"

// Item is one product/quantity pair in a customer's cart.
type Item struct {
	ID        int64
	ProductID string
	Quantity  int
}

// Repository defines cart persistence operations.
type Repository interface {
	ListByCustomer(ctx context.Context, customerID string) ([]Item, error)
	Upsert(ctx context.Context, customerID, productID string, quantity int) error
	Remove(ctx context.Context, customerID, productID string) error
	Clear(ctx context.Context, customerID string) error
}
