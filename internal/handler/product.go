package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/brambleberry/storefront/internal/domain/catalog"
)

type productResp struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Slug      string  `json:"slug"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
	Thumbnail string  `json:"thumbnail,omitempty"`
}

// ListProducts returns the sellable catalog.
func (h *Handler) ListProducts(c *gin.Context) {
	products, err := h.products.List(c.Request.Context())
	if err != nil {
		zctx.From(c.Request.Context()).Error("list products failed", zap.Error(err))
		internalError(c)
		return
	}

	out := make([]productResp, len(products))
	for i, p := range products {
		out[i] = toProductResp(p)
	}
	c.JSON(http.StatusOK, out)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(c *gin.Context) {
	p, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			jsonError(c, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(c.Request.Context()).Error("get product failed", zap.Error(err))
		internalError(c)
		return
	}

	c.JSON(http.StatusOK, toProductResp(*p))
}

func toProductResp(p catalog.Product) productResp {
	return productResp{
		ID:        p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		Price:     p.Price.InexactFloat64(),
		Stock:     p.Stock,
		Thumbnail: p.Thumbnail,
	}
}
