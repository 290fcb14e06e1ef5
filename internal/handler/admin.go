package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/brambleberry/storefront/internal/domain/order"
)

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

// UpdateOrderStatus handles PUT /api/admin/orders/:id/status.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		jsonError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	status := order.Status(req.Status)
	if !order.ValidStatus(status) {
		jsonError(c, http.StatusBadRequest, "invalid order status")
		return
	}

	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "order not found")
			return
		}
		zctx.From(c.Request.Context()).Error("update order status failed", zap.Error(err))
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, toOrderResp(o))
}
