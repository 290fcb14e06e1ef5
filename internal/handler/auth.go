package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

const (
	apiKeyHeader = "X-API-Key"

	ctxCustomerID = "customerID"
	ctxScopes     = "scopes"
)

// Authenticate resolves the request's API key to a customer. Keys are stored
// as HMAC-SHA256 hashes; the incoming key is hashed with the configured
// pepper and compared in constant time to guard against timing side-channels.
func (h *Handler) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(apiKeyHeader)
		if key == "" {
			abortError(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, h.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := h.customers.FindKeyByHash(c.Request.Context(), hex.EncodeToString(hash))
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			abortError(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		c.Set(ctxCustomerID, info.CustomerID)
		c.Set(ctxScopes, info.Scopes)
		c.Next()
	}
}

// RequireScope rejects requests whose API key does not carry the given scope.
func (h *Handler) RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, _ := c.Get(ctxScopes)
		ss, _ := scopes.([]string)
		if !slices.Contains(ss, scope) {
			abortError(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func customerID(c *gin.Context) string {
	id, _ := c.Get(ctxCustomerID)
	s, _ := id.(string)
	return s
}
