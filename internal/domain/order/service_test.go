package order

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brambleberry/storefront/internal/domain/catalog"
	"github.com/brambleberry/storefront/internal/domain/customer"
	"github.com/brambleberry/storefront/internal/domain/promo"
	"github.com/brambleberry/storefront/internal/domain/shipping"
)

// --- Mock implementations ---

type mockProductRepo struct {
	sellable map[string]catalog.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]catalog.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.sellable[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetSellableByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.sellable[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockEvaluator struct {
	eval promo.Evaluation
	err  error
}

func (m *mockEvaluator) Evaluate(_ context.Context, code string, _ decimal.Decimal) (promo.Evaluation, error) {
	if code == "" {
		return promo.Evaluation{}, nil
	}
	return m.eval, m.err
}

type mockCustomerRepo struct {
	customers map[string]*customer.Customer
}

func (m *mockCustomerRepo) GetByID(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

func (m *mockCustomerRepo) FindKeyByHash(_ context.Context, _ string) (*customer.APIKeyInfo, error) {
	return nil, customer.ErrNotFound
}

// mockOrderRepo records checkout writes and can fail the first N creates.
type mockOrderRepo struct {
	created     []*CheckoutWrite
	numbers     []string
	failFirst   int
	failWith    error
	byID        map[string]*Order
	byNumber    map[string]*Order
	lastUpdated Status
}

func (m *mockOrderRepo) CreateCheckout(_ context.Context, w *CheckoutWrite) error {
	m.numbers = append(m.numbers, w.Order.Number)
	if m.failFirst > 0 {
		m.failFirst--
		return m.failWith
	}
	m.created = append(m.created, w)
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	o, ok := m.byNumber[number]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockOrderRepo) ListByCustomer(_ context.Context, _ string, page, limit int) ([]Order, int64, error) {
	return nil, 0, nil
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, status Status) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.lastUpdated = status
	o.Status = status
	return o, nil
}

func (m *mockOrderRepo) UpdatePaymentStatus(_ context.Context, _ string, _ PaymentStatus) error {
	return nil
}

// mockIdem is a deterministic idempotency store for exercising the dedup
// branches without importing the real in-memory implementation.
type mockIdem struct {
	recalled   string
	hasRecall  bool
	lockOK     bool
	released   int
	remembered map[string]string
}

func (m *mockIdem) TryLock(_ context.Context, _, _ string) (bool, error) { return m.lockOK, nil }

func (m *mockIdem) Release(_ context.Context, _, _ string) error {
	m.released++
	return nil
}

func (m *mockIdem) Remember(_ context.Context, _, key, value string) error {
	if m.remembered == nil {
		m.remembered = make(map[string]string)
	}
	m.remembered[key] = value
	return nil
}

func (m *mockIdem) Recall(_ context.Context, _, _ string) (string, bool, error) {
	return m.recalled, m.hasRecall, nil
}

// --- Helpers ---

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func productRepoWith(products ...catalog.Product) *mockProductRepo {
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &mockProductRepo{sellable: byID}
}

func customerWith(id string, balance int64) *mockCustomerRepo {
	return &mockCustomerRepo{customers: map[string]*customer.Customer{
		id: {ID: id, Email: "t@example.com", LoyaltyBalance: balance},
	}}
}

type serviceDeps struct {
	products  *mockProductRepo
	promos    *mockEvaluator
	customers *mockCustomerRepo
	orders    *mockOrderRepo
	pricer    shipping.Pricer
	idem      IdempotencyStore
}

func newTestService(d serviceDeps) *Service {
	if d.products == nil {
		d.products = productRepoWith()
	}
	if d.promos == nil {
		d.promos = &mockEvaluator{}
	}
	if d.customers == nil {
		d.customers = customerWith("cust1", 0)
	}
	if d.orders == nil {
		d.orders = &mockOrderRepo{}
	}
	if d.pricer == nil {
		d.pricer = shipping.FlatRate{Fee: decimal.Zero, FreeThreshold: decimal.Zero}
	}
	return NewService(d.products, d.promos, d.customers, d.orders, d.pricer, d.idem, "BB")
}

func validShipping() Address {
	return Address{Name: "Alex Doe", City: "Springfield"}
}

// --- Tests ---

func TestCheckout_EmptyItems(t *testing.T) {
	svc := newTestService(serviceDeps{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Shipping:   validShipping(),
	})
	require.ErrorIs(t, err, ErrEmptyItems)
}

func TestCheckout_InvalidQuantity(t *testing.T) {
	svc := newTestService(serviceDeps{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 0}},
		Shipping:   validShipping(),
	})

	var qtyErr *InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
	assert.Equal(t, "p1", qtyErr.ProductID)
}

func TestCheckout_MissingShippingAddress(t *testing.T) {
	svc := newTestService(serviceDeps{})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:   Address{Name: "Alex Doe"}, // no city
	})
	require.ErrorIs(t, err, ErrShippingAddress)
}

func TestCheckout_UnavailableProduct(t *testing.T) {
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
	})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 1},
			{ProductID: "ghost", Quantity: 1},
		},
		Shipping: validShipping(),
	})

	var unavailErr *catalog.UnavailableError
	require.ErrorAs(t, err, &unavailErr)
	assert.Equal(t, []string{"ghost"}, unavailErr.ProductIDs)
}

func TestCheckout_PricesFromCatalogOnly(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(serviceDeps{
		products: productRepoWith(
			catalog.Product{ID: "p1", Name: "Jam", Price: dec("6.50")},
			catalog.Product{ID: "p2", Name: "Loaf", Price: dec("4.25")},
		),
		orders: orders,
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items: []ItemRequest{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		},
		Shipping: validShipping(),
	})
	require.NoError(t, err)

	assert.Equal(t, "17.25", o.Subtotal.StringFixed(2))
	assert.True(t, o.Discount.IsZero())
	assert.Equal(t, "17.25", o.Total.StringFixed(2))
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	assert.Equal(t, "cod", o.PaymentMethod)
	assert.NotEmpty(t, o.ID)
	assert.Regexp(t, `^BB-`, o.Number)

	require.Len(t, orders.created, 1)
	w := orders.created[0]
	assert.True(t, w.ClearCart)
	assert.Equal(t, []StockDecrement{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}, w.Decrements)
	require.Len(t, w.Order.Items, 2)
	assert.Equal(t, "6.5", w.Order.Items[0].UnitPrice.String())
}

func TestCheckout_PromoDiscountApplied(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Name: "Beans", Price: dec("100.00")}),
		promos: &mockEvaluator{eval: promo.Evaluation{
			Applied:     true,
			PromotionID: "promo-1",
			Code:        "SAVE10",
			PercentOff:  decPtr("10"),
			Discount:    dec("100.00"),
		}},
		orders: orders,
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 10}},
		Shipping:   validShipping(),
		PromoCode:  "SAVE10",
	})
	require.NoError(t, err)

	assert.Equal(t, "1000.00", o.Subtotal.StringFixed(2))
	assert.Equal(t, "100.00", o.Discount.StringFixed(2))
	assert.Equal(t, "900.00", o.Total.StringFixed(2))
	assert.Equal(t, int64(27), o.LoyaltyEarned)

	require.Len(t, orders.created, 1)
	assert.Equal(t, "promo-1", orders.created[0].PromotionID)
	assert.Equal(t, int64(27), orders.created[0].LoyaltyDelta)
}

func TestCheckout_PromoRejectionAborts(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		promos:   &mockEvaluator{err: promo.ErrExpired},
		orders:   orders,
	})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:   validShipping(),
		PromoCode:  "OLDCODE1",
	})

	require.ErrorIs(t, err, promo.ErrExpired)
	assert.Empty(t, orders.created, "nothing may be written when the promo is rejected")
}

func TestCheckout_LoyaltyRedemptionClamped(t *testing.T) {
	orders := &mockOrderRepo{}
	svc := newTestService(serviceDeps{
		products:  productRepoWith(catalog.Product{ID: "p1", Price: dec("20.00")}),
		customers: customerWith("cust1", 7),
		orders:    orders,
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID:   "cust1",
		Items:        []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:     validShipping(),
		LoyaltyUnits: 1000,
	})
	require.NoError(t, err)

	// min(1000, balance 7, floor(20.00/2)=10) = 7; total 13.00, earned 0.
	assert.Equal(t, int64(7), o.LoyaltyRedeemed)
	assert.Equal(t, "13.00", o.Total.StringFixed(2))
	assert.Equal(t, int64(0), o.LoyaltyEarned)

	require.Len(t, orders.created, 1)
	assert.Equal(t, int64(-7), orders.created[0].LoyaltyDelta)
}

func TestCheckout_TotalNeverNegative(t *testing.T) {
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		promos: &mockEvaluator{eval: promo.Evaluation{
			Applied: true, PromotionID: "promo-1", Discount: dec("10.00"),
		}},
		customers: customerWith("cust1", 100),
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID:   "cust1",
		Items:        []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:     validShipping(),
		PromoCode:    "FULLOFF1",
		LoyaltyUnits: 100,
	})
	require.NoError(t, err)

	assert.False(t, o.Total.IsNegative())
}

func TestCheckout_DeliveryFeeAndFreeThreshold(t *testing.T) {
	pricer := shipping.FlatRate{Fee: dec("2.50"), FreeThreshold: dec("50.00")}

	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		pricer:   pricer,
	})

	small, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:   validShipping(),
	})
	require.NoError(t, err)
	assert.Equal(t, "2.50", small.DeliveryCost.StringFixed(2))
	assert.Equal(t, "12.50", small.Total.StringFixed(2))

	big, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 5}},
		Shipping:   validShipping(),
	})
	require.NoError(t, err)
	assert.True(t, big.DeliveryCost.IsZero())
}

func TestCheckout_StockConflictSurfaces(t *testing.T) {
	stockErr := &InsufficientStockError{ProductID: "p1"}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		orders:   &mockOrderRepo{failFirst: 1, failWith: stockErr},
	})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:   validShipping(),
	})

	var got *InsufficientStockError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, "p1", got.ProductID)
}

func TestCheckout_NumberConflictRetriesWithFreshNumber(t *testing.T) {
	orders := &mockOrderRepo{failFirst: 2, failWith: ErrNumberConflict}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		orders:   orders,
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:   validShipping(),
	})
	require.NoError(t, err)

	require.Len(t, orders.numbers, 3)
	assert.NotEqual(t, orders.numbers[0], orders.numbers[2])
	assert.Equal(t, orders.numbers[2], o.Number)
}

func TestCheckout_NumberConflictExhaustsRetries(t *testing.T) {
	orders := &mockOrderRepo{failFirst: 99, failWith: ErrNumberConflict}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		orders:   orders,
	})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID: "cust1",
		Items:      []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:   validShipping(),
	})

	require.ErrorIs(t, err, ErrNumberConflict)
	assert.Len(t, orders.numbers, numberAttempts)
}

func TestCheckout_IdempotentReplayReturnsExistingOrder(t *testing.T) {
	existing := &Order{ID: "order-1", CustomerID: "cust1", Number: "BB-X-AAAA"}
	orders := &mockOrderRepo{byID: map[string]*Order{"order-1": existing}}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		orders:   orders,
		idem:     &mockIdem{recalled: "order-1", hasRecall: true},
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID:     "cust1",
		Items:          []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:       validShipping(),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "order-1", o.ID)
	assert.Empty(t, orders.created, "a replay must not create a second order")
}

func TestCheckout_DuplicateInFlight(t *testing.T) {
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		idem:     &mockIdem{lockOK: false},
	})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID:     "cust1",
		Items:          []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:       validShipping(),
		IdempotencyKey: "key-1",
	})
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestCheckout_KeyReleasedAfterFailure(t *testing.T) {
	idem := &mockIdem{lockOK: true}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		orders:   &mockOrderRepo{failFirst: 1, failWith: &InsufficientStockError{ProductID: "p1"}},
		idem:     idem,
	})

	_, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID:     "cust1",
		Items:          []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:       validShipping(),
		IdempotencyKey: "key-1",
	})

	require.Error(t, err)
	assert.Equal(t, 1, idem.released, "the key must be freed so the client can retry")
	assert.Empty(t, idem.remembered)
}

func TestCheckout_KeyRememberedAfterSuccess(t *testing.T) {
	idem := &mockIdem{lockOK: true}
	svc := newTestService(serviceDeps{
		products: productRepoWith(catalog.Product{ID: "p1", Price: dec("10.00")}),
		idem:     idem,
	})

	o, err := svc.Checkout(context.Background(), CheckoutRequest{
		CustomerID:     "cust1",
		Items:          []ItemRequest{{ProductID: "p1", Quantity: 1}},
		Shipping:       validShipping(),
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.Equal(t, o.ID, idem.remembered["key-1"])
	assert.Zero(t, idem.released)
}

func TestGetForCustomer_RoutesByIDOrNumber(t *testing.T) {
	id := uuid.NewString()
	o := &Order{ID: id, Number: "BB-X-AAAA", CustomerID: "cust1"}
	orders := &mockOrderRepo{
		byID:     map[string]*Order{id: o},
		byNumber: map[string]*Order{"BB-X-AAAA": o},
	}
	svc := newTestService(serviceDeps{orders: orders})

	byID, err := svc.GetForCustomer(context.Background(), "cust1", id)
	require.NoError(t, err)
	assert.Equal(t, o, byID)

	byNumber, err := svc.GetForCustomer(context.Background(), "cust1", "BB-X-AAAA")
	require.NoError(t, err)
	assert.Equal(t, o, byNumber)
}

func TestGetForCustomer_ForeignOrderReadsAsNotFound(t *testing.T) {
	id := uuid.NewString()
	orders := &mockOrderRepo{
		byID: map[string]*Order{id: {ID: id, CustomerID: "someone-else"}},
	}
	svc := newTestService(serviceDeps{orders: orders})

	_, err := svc.GetForCustomer(context.Background(), "cust1", id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_AppliesTransition(t *testing.T) {
	id := uuid.NewString()
	orders := &mockOrderRepo{
		byID: map[string]*Order{id: {ID: id, Status: StatusPending}},
	}
	svc := newTestService(serviceDeps{orders: orders})

	o, err := svc.UpdateStatus(context.Background(), id, StatusShipped)
	require.NoError(t, err)

	assert.Equal(t, StatusShipped, o.Status)
	assert.Equal(t, StatusShipped, orders.lastUpdated)
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusPending))
	assert.True(t, ValidStatus(StatusCancelled))
	assert.False(t, ValidStatus(Status("teleported")))
}
