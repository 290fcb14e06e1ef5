package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brambleberry/storefront/internal/domain/cart"
)

const (
	listCartSQL = `SELECT id, product_id, quantity
		FROM cart_items WHERE customer_id = $1 ORDER BY id`

	upsertCartItemSQL = `INSERT INTO cart_items (customer_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	removeCartItemSQL = `DELETE FROM cart_items WHERE customer_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_items WHERE customer_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ListByCustomer returns the customer's current cart items.
func (r *CartRepository) ListByCustomer(ctx context.Context, customerID string) ([]cart.Item, error) {
	rows, err := r.pool.Query(ctx, listCartSQL, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "listing cart items")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ID, &it.ProductID, &it.Quantity)
		return it, err
	})
}

// Upsert sets the quantity for a product in the customer's cart.
func (r *CartRepository) Upsert(ctx context.Context, customerID, productID string, quantity int) error {
	if _, err := r.pool.Exec(ctx, upsertCartItemSQL, customerID, productID, quantity); err != nil {
		return errors.Wrapf(err, "upserting cart item %q", productID)
	}
	return nil
}

// Remove deletes one product from the customer's cart. A malformed product
// ID cannot be in the cart, so removing it is a no-op.
func (r *CartRepository) Remove(ctx context.Context, customerID, productID string) error {
	if _, err := uuid.Parse(productID); err != nil {
		return nil
	}
	if _, err := r.pool.Exec(ctx, removeCartItemSQL, customerID, productID); err != nil {
		return errors.Wrapf(err, "removing cart item %q", productID)
	}
	return nil
}

// Clear deletes every item in the customer's cart.
func (r *CartRepository) Clear(ctx context.Context, customerID string) error {
	if _, err := r.pool.Exec(ctx, clearCartSQL, customerID); err != nil {
		return errors.Wrap(err, "clearing cart")
	}
	return nil
}
