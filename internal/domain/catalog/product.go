// Package catalog holds the product catalog read model used by checkout and
// the browse endpoints. Checkout never trusts client-supplied prices: the
// snapshot returned here is the authoritative price source at the instant an
// order is created.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID        string
	Name      string
	Slug      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	Thumbnail string
}

// UnavailableError indicates that one or more requested products are missing
// or inactive. Checkout treats this as fatal for the whole cart: partial
// fulfillment is not permitted.
type UnavailableError struct {
	ProductIDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("products not found or unavailable: %s", strings.Join(e.ProductIDs, ", "))
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetSellableByIDs returns the subset of the given products that exist
	// and are active. Callers must compare the result count against the
	// distinct input count themselves.
	GetSellableByIDs(ctx context.Context, ids []string) ([]Product, error)
}

// Snapshot resolves a deduplicated set of product IDs against the repository
// and fails when any of them is missing or not sellable.
func Snapshot(ctx context.Context, repo Repository, ids []string) (map[string]Product, error) {
	distinct := dedupe(ids)

	fetched, err := repo.GetSellableByIDs(ctx, distinct)
	if err != nil {
		return nil, errors.Wrap(err, "get sellable products")
	}

	byID := make(map[string]Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	if len(byID) != len(distinct) {
		missing := make([]string, 0, len(distinct)-len(byID))
		for _, id := range distinct {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		return nil, &UnavailableError{ProductIDs: missing}
	}

	return byID, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
