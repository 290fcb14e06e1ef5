// Package order implements the checkout pipeline: converting a cart of line
// items into a priced, persisted order while applying a promotion code,
// redeeming and earning loyalty units, decrementing inventory, and clearing
// the cart — all as a single unit of work.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the fulfillment lifecycle of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// statusRank orders the forward fulfillment progression. Cancelled sits
// outside the progression and never triggers a backward-transition warning.
var statusRank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// ValidStatus reports whether s is one of the known status values.
func ValidStatus(s Status) bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// PaymentStatus is the payment lifecycle, flipped by the external payment
// notifier independently of fulfillment status.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Sentinel errors for checkout validation and write conflicts.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrShippingAddress = errors.New("shipping address with name and city is required")
	// ErrNotFound covers both truly missing orders and orders owned by
	// another customer, so existence is never leaked.
	ErrNotFound = errors.New("order not found")
	// ErrNumberConflict signals an order number collision; the caller
	// retries with a freshly generated number.
	ErrNumberConflict = errors.New("order number already exists")
	// ErrDuplicateRequest signals an identical checkout already in flight
	// under the same idempotency key.
	ErrDuplicateRequest = errors.New("duplicate checkout request")
	// ErrLoyaltyBalance signals the guarded balance update matched no row.
	// The redemption clamp makes this unreachable in a consistent store, so
	// it indicates an invariant violation, not a caller mistake.
	ErrLoyaltyBalance = errors.New("loyalty balance update would go negative")
)

// InvalidQuantityError indicates a line item with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be at least 1 for product %s", e.ProductID)
}

// InsufficientStockError indicates a conditional stock decrement matched no
// row: the product sold out between pricing and persisting. This is a
// legitimate race outcome, distinct from caller validation errors.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

// Address is the structured shipping address embedded in an order.
type Address struct {
	Name       string
	Phone      string
	City       string
	Street     string
	PostalCode string
}

// LineItem is an immutable snapshot of one product's quantity and unit price
// within a specific order. Thumbnail and Slug are denormalized from the
// current catalog on read and may be empty if the product was deleted.
type LineItem struct {
	ID          int64
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	Thumbnail   string
	Slug        string
}

// Order is a persisted checkout result. Monetary fields and line items are
// immutable once created; only Status and PaymentStatus change afterwards.
type Order struct {
	ID              string
	Number          string
	CustomerID      string
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	DeliveryCost    decimal.Decimal
	LoyaltyRedeemed int64
	LoyaltyEarned   int64
	Total           decimal.Decimal
	PromoCodeID     string
	Shipping        Address
	PaymentMethod   string
	Notes           string
	Status          Status
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	Items           []LineItem
}

// StockDecrement is one conditional inventory adjustment in a checkout write.
type StockDecrement struct {
	ProductID string
	Quantity  int
}

// CheckoutWrite is the unit of work persisted atomically at the end of
// checkout: either every part happens or none does.
type CheckoutWrite struct {
	Order *Order
	// PromotionID, when set, is incremented with a used_count ceiling guard.
	PromotionID string
	// LoyaltyDelta is earned minus redeemed, applied as one atomic delta.
	LoyaltyDelta int64
	Decrements   []StockDecrement
	ClearCart    bool
}

// Repository defines persistence operations for orders.
type Repository interface {
	// CreateCheckout persists the order, its line items, and all checkout
	// side effects in one transaction. It returns ErrNumberConflict on an
	// order-number collision, promo.ErrExhausted when the promotion ceiling
	// guard matches no row, an *InsufficientStockError when a stock guard
	// matches no row, and ErrLoyaltyBalance when the balance guard fails.
	CreateCheckout(ctx context.Context, w *CheckoutWrite) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// ListByCustomer returns a page of the customer's orders, newest first,
	// with line items, plus the total order count for that customer.
	ListByCustomer(ctx context.Context, customerID string, page, limit int) ([]Order, int64, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status PaymentStatus) error
}

// IdempotencyStore maps (customer, key) pairs to at most one created order so
// a retried checkout request cannot create duplicates.
type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}
