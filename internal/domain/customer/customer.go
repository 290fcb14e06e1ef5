// Package customer holds the customer read model and API key authentication
// types. Session issuance and account management are external collaborators;
// this service only resolves keys to customers.
package customer

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a customer does not exist.
var ErrNotFound = errors.New("customer not found")

// Customer is the storefront's view of an account: identity plus the loyalty
// balance checkout reads and adjusts.
type Customer struct {
	ID             string
	Email          string
	Name           string
	LoyaltyBalance int64
}

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID         string
	KeyHash    string
	CustomerID string
	Name       string
	Scopes     []string
}

// Repository defines customer and API key read operations.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Customer, error)
	// FindKeyByHash looks up an active API key by its HMAC-SHA256 hash.
	FindKeyByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
