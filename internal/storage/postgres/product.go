package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brambleberry/storefront/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, slug, price, stock, active, image_thumbnail
		FROM products WHERE active ORDER BY name`

	getProductByIDSQL = `SELECT id, name, slug, price, stock, active, image_thumbnail
		FROM products WHERE id = $1`

	getSellableByIDsSQL = `SELECT id, name, slug, price, stock, active, image_thumbnail
		FROM products WHERE active AND id = ANY($1)`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all active products ordered by name.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "listing products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier, active or not.
// Identifiers that do not parse as UUIDs cannot exist and read as not found
// rather than as a driver encoding error.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, catalog.ErrNotFound
	}

	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "getting product %q", id)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting product %q", id)
	}
	return &p, nil
}

// GetSellableByIDs returns the active products matching any of the given IDs.
// Malformed IDs are dropped before the query; they match nothing, and the
// caller's count check reports them as unavailable.
func (r *ProductRepository) GetSellableByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, getSellableByIDsSQL, valid)
	if err != nil {
		return nil, errors.Wrap(err, "getting sellable products")
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &p.Stock, &p.Active, &p.Thumbnail)
	return p, err
}
