// Package handler implements the JSON HTTP surface on gin, delegating
// business logic to the domain services and repositories.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brambleberry/storefront/internal/domain/cart"
	"github.com/brambleberry/storefront/internal/domain/catalog"
	"github.com/brambleberry/storefront/internal/domain/customer"
	"github.com/brambleberry/storefront/internal/domain/order"
)

// Handler holds the dependencies shared by all routes.
type Handler struct {
	products  catalog.Repository
	orders    *order.Service
	promos    order.PromoEvaluator
	customers customer.Repository
	carts     cart.Repository
	pepper    []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
// pepper is the HMAC key used for API key hashing.
func NewHandler(
	products catalog.Repository,
	orders *order.Service,
	promos order.PromoEvaluator,
	customers customer.Repository,
	carts cart.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		products:  products,
		orders:    orders,
		promos:    promos,
		customers: customers,
		carts:     carts,
		pepper:    pepper,
	}
}

// Routes builds the gin engine with all API routes mounted under /api.
// Recovery, CORS, rate limiting, and logging are applied by the outer
// net/http middleware chain, not here.
func (h *Handler) Routes() *gin.Engine {
	r := gin.New()

	api := r.Group("/api", h.Authenticate())
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)

		api.GET("/cart", h.GetCart)
		api.PUT("/cart/items", h.PutCartItem)
		api.DELETE("/cart/items/:productId", h.DeleteCartItem)
		api.DELETE("/cart", h.ClearCart)

		api.POST("/orders", h.CreateOrder)
		api.GET("/orders", h.ListOrders)
		api.GET("/orders/:idOrNumber", h.GetOrder)
		api.POST("/orders/validate-promo", h.ValidatePromo)

		admin := api.Group("/admin", h.RequireScope("admin"))
		admin.PUT("/orders/:id/status", h.UpdateOrderStatus)
	}

	return r
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func abortError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, errorBody{Code: status, Message: message})
}

func jsonError(c *gin.Context, status int, message string) {
	c.JSON(status, errorBody{Code: status, Message: message})
}

func internalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, errorBody{
		Code:    http.StatusInternalServerError,
		Message: "internal error",
	})
}
