package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brambleberry/storefront/internal/domain/catalog"
	"github.com/brambleberry/storefront/internal/domain/customer"
	"github.com/brambleberry/storefront/internal/domain/loyalty"
	"github.com/brambleberry/storefront/internal/domain/promo"
	"github.com/brambleberry/storefront/internal/domain/shipping"
)

// numberAttempts bounds retries on order-number collisions before the
// conflict is surfaced as a transient failure.
const numberAttempts = 3

// PromoEvaluator validates a promotion code against a subtotal.
type PromoEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (promo.Evaluation, error)
}

// ItemRequest is one product/quantity pair in a checkout request. Prices are
// never accepted from the client.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// CheckoutRequest holds the input for converting a cart into an order.
type CheckoutRequest struct {
	CustomerID     string
	Items          []ItemRequest
	Shipping       Address
	PaymentMethod  string
	PromoCode      string
	LoyaltyUnits   int64
	Notes          string
	IdempotencyKey string
}

// Service sequences the checkout pipeline and serves the order read paths.
type Service struct {
	products     catalog.Repository
	promos       PromoEvaluator
	customers    customer.Repository
	orders       Repository
	pricer       shipping.Pricer
	idem         IdempotencyStore
	numberPrefix string
}

// NewService creates an order Service. idem may be nil, in which case
// checkout requests are never deduplicated.
func NewService(
	products catalog.Repository,
	promos PromoEvaluator,
	customers customer.Repository,
	orders Repository,
	pricer shipping.Pricer,
	idem IdempotencyStore,
	numberPrefix string,
) *Service {
	return &Service{
		products:     products,
		promos:       promos,
		customers:    customers,
		orders:       orders,
		pricer:       pricer,
		idem:         idem,
		numberPrefix: numberPrefix,
	}
}

// Checkout validates the request, prices the cart against the authoritative
// catalog snapshot, applies promotion and loyalty redemption, persists the
// order together with all side effects as one transaction, and returns the
// created order.
//
// Failures before the write leave no trace in the store and are safe to
// retry. The write itself either fully succeeds or fully rolls back.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	// Idempotent replay: a key we have seen before maps to the order it
	// created; a key currently locked by another request is a duplicate.
	if s.idem != nil && req.IdempotencyKey != "" {
		if id, ok, err := s.idem.Recall(ctx, req.CustomerID, req.IdempotencyKey); err == nil && ok {
			return s.orders.GetByID(ctx, id)
		}
		locked, err := s.idem.TryLock(ctx, req.CustomerID, req.IdempotencyKey)
		if err != nil {
			return nil, errors.Wrap(err, "idempotency lock")
		}
		if !locked {
			return nil, ErrDuplicateRequest
		}
	}

	o, err := s.checkout(ctx, req)
	if s.idem != nil && req.IdempotencyKey != "" {
		if err != nil {
			// Free the key so the client can retry after a pre-write failure.
			if rerr := s.idem.Release(ctx, req.CustomerID, req.IdempotencyKey); rerr != nil {
				zctx.From(ctx).Warn("release idempotency key", zap.Error(rerr))
			}
		} else if merr := s.idem.Remember(ctx, req.CustomerID, req.IdempotencyKey, o.ID); merr != nil {
			zctx.From(ctx).Warn("remember idempotency key", zap.Error(merr))
		}
	}
	return o, err
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	products, err := catalog.Snapshot(ctx, s.products, ids)
	if err != nil {
		return nil, err
	}

	// Subtotal over authoritative current unit prices.
	subtotal := decimal.Zero
	items := make([]LineItem, len(req.Items))
	decrements := make([]StockDecrement, len(req.Items))
	for i, item := range req.Items {
		p := products[item.ProductID]
		qty := decimal.NewFromInt(int64(item.Quantity))
		subtotal = subtotal.Add(p.Price.Mul(qty))

		items[i] = LineItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
		}
		decrements[i] = StockDecrement{ProductID: p.ID, Quantity: item.Quantity}
	}
	subtotal = subtotal.Round(2)

	// A supplied but invalid code aborts checkout; a missing code does not.
	eval, err := s.promos.Evaluate(ctx, req.PromoCode, subtotal)
	if err != nil {
		return nil, err
	}
	discount := eval.Discount

	// Loyalty redemption, clamped to balance and to half the discounted
	// subtotal. The clamp is silent; over-asking is not an error.
	var redeemed int64
	if req.LoyaltyUnits > 0 {
		cust, err := s.customers.GetByID(ctx, req.CustomerID)
		if err != nil {
			return nil, errors.Wrap(err, "get customer")
		}
		redeemed = loyalty.Redeemable(req.LoyaltyUnits, cust.LoyaltyBalance, subtotal.Sub(discount))
	}

	deliveryCost, err := s.pricer.Quote(ctx, req.Shipping.City, subtotal)
	if err != nil {
		return nil, errors.Wrap(err, "quote delivery")
	}

	total := subtotal.Sub(discount).Sub(decimal.NewFromInt(redeemed)).Add(deliveryCost)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	earned := loyalty.Earned(total)

	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = "cod"
	}

	o := &Order{
		ID:              uuid.New().String(),
		CustomerID:      req.CustomerID,
		Subtotal:        subtotal,
		Discount:        discount,
		DeliveryCost:    deliveryCost,
		LoyaltyRedeemed: redeemed,
		LoyaltyEarned:   earned,
		Total:           total,
		PromoCodeID:     eval.PromotionID,
		Shipping:        req.Shipping,
		PaymentMethod:   paymentMethod,
		Notes:           req.Notes,
		Status:          StatusPending,
		PaymentStatus:   PaymentUnpaid,
		Items:           items,
	}

	write := &CheckoutWrite{
		Order:        o,
		PromotionID:  eval.PromotionID,
		LoyaltyDelta: earned - redeemed,
		Decrements:   decrements,
		ClearCart:    true,
	}

	// Order numbers are only probabilistically unique; on a collision the
	// unique constraint fires and we retry with a fresh number.
	for attempt := 0; ; attempt++ {
		o.Number = GenerateNumber(s.numberPrefix)
		err = s.orders.CreateCheckout(ctx, write)
		if err == nil {
			break
		}
		if errors.Is(err, ErrNumberConflict) && attempt+1 < numberAttempts {
			zctx.From(ctx).Warn("order number collision, retrying",
				zap.String("number", o.Number),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		return nil, err
	}

	return o, nil
}

func validateRequest(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}
	if req.Shipping.Name == "" || req.Shipping.City == "" {
		return ErrShippingAddress
	}
	return nil
}

// ListForCustomer returns one page of the customer's orders, newest first.
func (s *Service) ListForCustomer(ctx context.Context, customerID string, page, limit int) ([]Order, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.orders.ListByCustomer(ctx, customerID, page, limit)
}

// GetForCustomer fetches an order by internal ID or by order number, scoped
// to the requesting customer. Orders owned by someone else are reported as
// not found, never as forbidden.
func (s *Service) GetForCustomer(ctx context.Context, customerID, idOrNumber string) (*Order, error) {
	var (
		o   *Order
		err error
	)
	if _, parseErr := uuid.Parse(idOrNumber); parseErr == nil {
		o, err = s.orders.GetByID(ctx, idOrNumber)
	} else {
		o, err = s.orders.GetByNumber(ctx, idOrNumber)
	}
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return o, nil
}

// UpdateStatus applies an administrative status transition. Transitions are
// deliberately unconstrained (matching operator expectations for manual
// fixes), but skipped or backward moves are logged for follow-up.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) (*Order, error) {
	current, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from, fromOK := statusRank[current.Status]
	to, toOK := statusRank[status]
	if fromOK && toOK && (to < from || to > from+1) {
		zctx.From(ctx).Warn("non-sequential order status transition",
			zap.String("order_id", id),
			zap.String("from", string(current.Status)),
			zap.String("to", string(status)),
		)
	}

	return s.orders.UpdateStatus(ctx, id, status)
}
