package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/brambleberry/storefront/internal/domain/catalog"
)

type cartItemReq struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required"`
}

type cartItemResp struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	UnitPrice   float64 `json:"unitPrice,omitempty"`
	Quantity    int     `json:"quantity"`
}

type cartResp struct {
	Items    []cartItemResp `json:"items"`
	Subtotal float64        `json:"subtotal"`
}

// GetCart handles GET /api/cart: the caller's cart enriched with current
// catalog names and prices. Items whose product has since gone inactive are
// returned without price so the client can prompt for removal.
func (h *Handler) GetCart(c *gin.Context) {
	ctx := c.Request.Context()

	items, err := h.carts.ListByCustomer(ctx, customerID(c))
	if err != nil {
		zctx.From(ctx).Error("list cart failed", zap.Error(err))
		internalError(c)
		return
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	products, err := h.products.GetSellableByIDs(ctx, ids)
	if err != nil {
		zctx.From(ctx).Error("resolve cart products failed", zap.Error(err))
		internalError(c)
		return
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	resp := cartResp{Items: make([]cartItemResp, len(items))}
	subtotal := decimal.Zero
	for i, it := range items {
		out := cartItemResp{ProductID: it.ProductID, Quantity: it.Quantity}
		if p, ok := byID[it.ProductID]; ok {
			out.ProductName = p.Name
			out.UnitPrice = p.Price.InexactFloat64()
			subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}
		resp.Items[i] = out
	}
	resp.Subtotal = subtotal.Round(2).InexactFloat64()

	c.JSON(http.StatusOK, resp)
}

// PutCartItem handles PUT /api/cart/items: sets a product's quantity in the
// caller's cart, replacing any previous quantity.
func (h *Handler) PutCartItem(c *gin.Context) {
	var req cartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 1 {
		jsonError(c, http.StatusBadRequest, "quantity must be at least 1")
		return
	}

	ctx := c.Request.Context()
	if _, err := h.products.GetByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(ctx).Error("resolve product failed", zap.Error(err))
		internalError(c)
		return
	}

	if err := h.carts.Upsert(ctx, customerID(c), req.ProductID, req.Quantity); err != nil {
		zctx.From(ctx).Error("upsert cart item failed", zap.Error(err))
		internalError(c)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteCartItem handles DELETE /api/cart/items/:productId.
func (h *Handler) DeleteCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.carts.Remove(ctx, customerID(c), c.Param("productId")); err != nil {
		zctx.From(ctx).Error("remove cart item failed", zap.Error(err))
		internalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}

// ClearCart handles DELETE /api/cart.
func (h *Handler) ClearCart(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.carts.Clear(ctx, customerID(c)); err != nil {
		zctx.From(ctx).Error("clear cart failed", zap.Error(err))
		internalError(c)
		return
	}
	c.Status(http.StatusNoContent)
}
