package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brambleberry/storefront/internal/domain/order"
	"github.com/brambleberry/storefront/internal/domain/promo"
)

const (
	insertOrderSQL = `INSERT INTO orders (
			id, order_number, customer_id, subtotal, discount, delivery_cost,
			loyalty_redeemed, loyalty_earned, total, promo_code_id,
			ship_name, ship_phone, ship_city, ship_street, ship_postal_code,
			payment_method, notes, status, payment_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING created_at`

	insertOrderItemSQL = `INSERT INTO order_items
			(order_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	// Guarded increment: matches no row once the ceiling is reached, so two
	// concurrent checkouts cannot both claim the last redemption slot.
	incrementPromoUsesSQL = `UPDATE promo_codes
		SET used_count = used_count + 1
		WHERE id = $1 AND active AND (max_uses IS NULL OR used_count < max_uses)`

	// Guarded decrement: matches no row when stock would go negative.
	decrementStockSQL = `UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND active AND stock >= $1`

	// Guarded delta: the redemption clamp should make this always match, so
	// zero rows affected indicates an invariant violation.
	adjustLoyaltySQL = `UPDATE customers
		SET loyalty_balance = loyalty_balance + $1
		WHERE id = $2 AND loyalty_balance + $1 >= 0`

	selectOrderSQL = `SELECT id, order_number, customer_id, subtotal, discount, delivery_cost,
			loyalty_redeemed, loyalty_earned, total, COALESCE(promo_code_id::text, ''),
			ship_name, ship_phone, ship_city, ship_street, ship_postal_code,
			payment_method, notes, status, payment_status, created_at
		FROM orders`

	getOrderByIDSQL     = selectOrderSQL + ` WHERE id = $1`
	getOrderByNumberSQL = selectOrderSQL + ` WHERE order_number = $1`

	listOrdersSQL = selectOrderSQL + ` WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	countOrdersSQL = `SELECT count(*) FROM orders WHERE customer_id = $1`

	// Line items join the live catalog for thumbnail/slug only; name and
	// price come from the immutable snapshot. LEFT JOIN keeps items visible
	// after product deletion.
	listOrderItemsSQL = `SELECT oi.order_id, oi.id, oi.product_id, oi.product_name,
			oi.quantity, oi.unit_price,
			COALESCE(p.image_thumbnail, ''), COALESCE(p.slug, '')
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1`

	updatePaymentStatusSQL = `UPDATE orders SET payment_status = $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateCheckout persists the order, its line items, the promotion usage
// increment, the stock decrements, the loyalty balance delta, and the cart
// clear in a single transaction. Any guard that matches no row aborts the
// whole write, so an existing order always implies applied side effects.
func (r *OrderRepository) CreateCheckout(ctx context.Context, w *order.CheckoutWrite) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin checkout tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := createCheckoutInTx(ctx, tx, w); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit checkout tx")
	}
	return nil
}

func createCheckoutInTx(ctx context.Context, tx pgx.Tx, w *order.CheckoutWrite) error {
	o := w.Order

	var promoID *string
	if w.PromotionID != "" {
		promoID = &w.PromotionID
	}

	err := tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.Number, o.CustomerID, o.Subtotal, o.Discount, o.DeliveryCost,
		o.LoyaltyRedeemed, o.LoyaltyEarned, o.Total, promoID,
		o.Shipping.Name, o.Shipping.Phone, o.Shipping.City, o.Shipping.Street, o.Shipping.PostalCode,
		o.PaymentMethod, o.Notes, o.Status, o.PaymentStatus,
	).Scan(&o.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return order.ErrNumberConflict
		}
		return errors.Wrapf(err, "inserting order %q", o.ID)
	}

	for i := range o.Items {
		item := &o.Items[i]
		err := tx.QueryRow(ctx, insertOrderItemSQL,
			o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice,
		).Scan(&item.ID)
		if err != nil {
			return errors.Wrapf(err, "inserting order item %q", item.ProductID)
		}
	}

	if w.PromotionID != "" {
		tag, err := tx.Exec(ctx, incrementPromoUsesSQL, w.PromotionID)
		if err != nil {
			return errors.Wrap(err, "incrementing promo uses")
		}
		if tag.RowsAffected() == 0 {
			return promo.ErrExhausted
		}
	}

	for _, d := range w.Decrements {
		tag, err := tx.Exec(ctx, decrementStockSQL, d.Quantity, d.ProductID)
		if err != nil {
			return errors.Wrapf(err, "decrementing stock for %q", d.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return &order.InsufficientStockError{ProductID: d.ProductID}
		}
	}

	if w.LoyaltyDelta != 0 {
		tag, err := tx.Exec(ctx, adjustLoyaltySQL, w.LoyaltyDelta, o.CustomerID)
		if err != nil {
			return errors.Wrap(err, "adjusting loyalty balance")
		}
		if tag.RowsAffected() == 0 {
			return order.ErrLoyaltyBalance
		}
	}

	if w.ClearCart {
		if _, err := tx.Exec(ctx, clearCartSQL, o.CustomerID); err != nil {
			return errors.Wrap(err, "clearing cart")
		}
	}

	return nil
}

// GetByID returns an order with its line items. Malformed UUIDs read as not
// found rather than as a driver encoding error.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns an order with its line items by its order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, "getting order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "getting order")
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

// ListByCustomer returns one page of a customer's orders, newest first, with
// line items, plus the customer's total order count.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]order.Order, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, countOrdersSQL, customerID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting orders")
	}

	offset := (page - 1) * limit
	rows, err := r.pool.Query(ctx, listOrdersSQL, customerID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing orders")
	}

	ordersPage, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing orders")
	}
	if len(ordersPage) == 0 {
		return ordersPage, total, nil
	}

	ids := make([]string, len(ordersPage))
	for i := range ordersPage {
		ids[i] = ordersPage[i].ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range ordersPage {
		ordersPage[i].Items = items[ordersPage[i].ID]
	}

	return ordersPage, total, nil
}

// UpdateStatus applies a fulfillment status change and returns the updated order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, order.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return nil, errors.Wrapf(err, "updating order %q status", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, order.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

// UpdatePaymentStatus records a payment lifecycle change reported by the
// external payment notifier.
func (r *OrderRepository) UpdatePaymentStatus(ctx context.Context, id string, status order.PaymentStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return order.ErrNotFound
	}

	tag, err := r.pool.Exec(ctx, updatePaymentStatusSQL, id, status)
	if err != nil {
		return errors.Wrapf(err, "updating order %q payment status", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]order.LineItem, error) {
	rows, err := r.pool.Query(ctx, listOrderItemsSQL, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "loading order items")
	}
	defer rows.Close()

	items := make(map[string][]order.LineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      order.LineItem
		)
		err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.Thumbnail, &it.Slug)
		if err != nil {
			return nil, errors.Wrap(err, "scanning order item")
		}
		items[orderID] = append(items[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "loading order items")
	}
	return items, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerID, &o.Subtotal, &o.Discount, &o.DeliveryCost,
		&o.LoyaltyRedeemed, &o.LoyaltyEarned, &o.Total, &o.PromoCodeID,
		&o.Shipping.Name, &o.Shipping.Phone, &o.Shipping.City, &o.Shipping.Street, &o.Shipping.PostalCode,
		&o.PaymentMethod, &o.Notes, &o.Status, &o.PaymentStatus, &o.CreatedAt,
	)
	return o, err
}
