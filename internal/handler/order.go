package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brambleberry/storefront/internal/domain/catalog"
	"github.com/brambleberry/storefront/internal/domain/order"
	"github.com/brambleberry/storefront/internal/domain/promo"
)

const idempotencyKeyHeader = "X-Idempotency-Key"

type orderItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type shippingAddressReq struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone"`
	City       string `json:"city" binding:"required"`
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
}

type createOrderReq struct {
	Items              []orderItemReq     `json:"items" binding:"required"`
	ShippingAddress    shippingAddressReq `json:"shippingAddress" binding:"required"`
	PaymentMethod      string             `json:"paymentMethod"`
	PromoCode          string             `json:"promoCode"`
	LoyaltyPointsToUse int64              `json:"loyaltyPointsToUse"`
	Notes              string             `json:"notes"`
}

type orderItemResp struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Slug        string  `json:"slug,omitempty"`
}

type shippingAddressResp struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	City       string `json:"city"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

type orderResp struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Subtotal        float64             `json:"subtotal"`
	Discount        float64             `json:"discount"`
	DeliveryCost    float64             `json:"deliveryCost"`
	LoyaltyRedeemed int64               `json:"loyaltyPointsUsed"`
	LoyaltyEarned   int64               `json:"loyaltyPointsEarned"`
	Total           float64             `json:"total"`
	ShippingAddress shippingAddressResp `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	Notes           string              `json:"notes,omitempty"`
	Status          string              `json:"status"`
	PaymentStatus   string              `json:"paymentStatus"`
	CreatedAt       time.Time           `json:"createdAt"`
	Items           []orderItemResp     `json:"items"`
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"totalPages"`
}

type listOrdersResp struct {
	Orders     []orderResp `json:"orders"`
	Pagination pagination  `json:"pagination"`
}

// CreateOrder handles POST /api/orders: the checkout pipeline.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = order.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	o, err := h.orders.Checkout(c.Request.Context(), order.CheckoutRequest{
		CustomerID: customerID(c),
		Items:      items,
		Shipping: order.Address{
			Name:       req.ShippingAddress.Name,
			Phone:      req.ShippingAddress.Phone,
			City:       req.ShippingAddress.City,
			Street:     req.ShippingAddress.Street,
			PostalCode: req.ShippingAddress.PostalCode,
		},
		PaymentMethod:  req.PaymentMethod,
		PromoCode:      req.PromoCode,
		LoyaltyUnits:   req.LoyaltyPointsToUse,
		Notes:          req.Notes,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	if err != nil {
		h.mapCheckoutError(c, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResp(o))
}

// mapCheckoutError translates domain failures into HTTP responses. Validation
// and promotion rejections are caller errors (400); stock/promo exhaustion
// and in-flight duplicates are legitimate race outcomes (409); everything
// else is internal.
func (h *Handler) mapCheckoutError(c *gin.Context, err error) {
	var (
		unavailErr *catalog.UnavailableError
		qtyErr     *order.InvalidQuantityError
		minErr     *promo.MinAmountError
		stockErr   *order.InsufficientStockError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrShippingAddress),
		errors.As(err, &qtyErr),
		errors.As(err, &unavailErr),
		errors.Is(err, promo.ErrNotFound),
		errors.Is(err, promo.ErrExpired),
		errors.As(err, &minErr):
		jsonError(c, http.StatusBadRequest, err.Error())

	case errors.As(err, &stockErr),
		errors.Is(err, promo.ErrExhausted),
		errors.Is(err, order.ErrDuplicateRequest):
		jsonError(c, http.StatusConflict, err.Error())

	case errors.Is(err, order.ErrNumberConflict):
		jsonError(c, http.StatusServiceUnavailable, "temporary conflict, please retry")

	default:
		zctx.From(c.Request.Context()).Error("checkout failed", zap.Error(err))
		internalError(c)
	}
}

// ListOrders handles GET /api/orders?page=&limit= for the calling customer.
func (h *Handler) ListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ordersPage, total, err := h.orders.ListForCustomer(c.Request.Context(), customerID(c), page, limit)
	if err != nil {
		zctx.From(c.Request.Context()).Error("list orders failed", zap.Error(err))
		internalError(c)
		return
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	resp := listOrdersResp{
		Orders: make([]orderResp, len(ordersPage)),
		Pagination: pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: int((total + int64(limit) - 1) / int64(limit)),
		},
	}
	for i := range ordersPage {
		resp.Orders[i] = toOrderResp(&ordersPage[i])
	}

	c.JSON(http.StatusOK, resp)
}

// GetOrder handles GET /api/orders/:idOrNumber, scoped to the caller. An
// order owned by another customer reads as not found.
func (h *Handler) GetOrder(c *gin.Context) {
	o, err := h.orders.GetForCustomer(c.Request.Context(), customerID(c), c.Param("idOrNumber"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(c.Request.Context()).Error("get order failed", zap.Error(err))
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, toOrderResp(o))
}

type validatePromoReq struct {
	Code     string  `json:"code" binding:"required"`
	Subtotal float64 `json:"subtotal"`
}

type validatePromoResp struct {
	Valid           bool     `json:"valid"`
	Code            string   `json:"code"`
	Discount        float64  `json:"discount"`
	DiscountPercent *float64 `json:"discountPercent,omitempty"`
	DiscountAmount  float64  `json:"discountAmount"`
}

// ValidatePromo handles POST /api/orders/validate-promo: a pure check that
// never consumes a redemption slot. Unlike checkout, an unknown code here is
// a reportable error, not a silent skip.
func (h *Handler) ValidatePromo(c *gin.Context) {
	var req validatePromoReq
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	eval, err := h.promos.Evaluate(c.Request.Context(), req.Code, decimal.NewFromFloat(req.Subtotal))
	if err != nil {
		var minErr *promo.MinAmountError
		switch {
		case errors.Is(err, promo.ErrNotFound):
			jsonError(c, http.StatusNotFound, err.Error())
		case errors.Is(err, promo.ErrExpired), errors.Is(err, promo.ErrExhausted), errors.As(err, &minErr):
			jsonError(c, http.StatusBadRequest, err.Error())
		default:
			zctx.From(c.Request.Context()).Error("validate promo failed", zap.Error(err))
			internalError(c)
		}
		return
	}

	resp := validatePromoResp{
		Valid:          eval.Applied,
		Code:           eval.Code,
		Discount:       eval.Discount.InexactFloat64(),
		DiscountAmount: eval.Discount.InexactFloat64(),
	}
	if eval.PercentOff != nil {
		pct := eval.PercentOff.InexactFloat64()
		resp.DiscountPercent = &pct
	}

	c.JSON(http.StatusOK, resp)
}

func toOrderResp(o *order.Order) orderResp {
	items := make([]orderItemResp, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResp{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice.InexactFloat64(),
			Thumbnail:   it.Thumbnail,
			Slug:        it.Slug,
		}
	}

	return orderResp{
		ID:              o.ID,
		OrderNumber:     o.Number,
		Subtotal:        o.Subtotal.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		DeliveryCost:    o.DeliveryCost.InexactFloat64(),
		LoyaltyRedeemed: o.LoyaltyRedeemed,
		LoyaltyEarned:   o.LoyaltyEarned,
		Total:           o.Total.InexactFloat64(),
		ShippingAddress: shippingAddressResp{
			Name:       o.Shipping.Name,
			Phone:      o.Shipping.Phone,
			City:       o.Shipping.City,
			Street:     o.Shipping.Street,
			PostalCode: o.Shipping.PostalCode,
		},
		PaymentMethod: o.PaymentMethod,
		Notes:         o.Notes,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt,
		Items:         items,
	}
}
