package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brambleberry/storefront/internal/domain/customer"
)

const (
	getCustomerByIDSQL = `SELECT id, email, name, loyalty_balance
		FROM customers WHERE id = $1`

	getAPIKeyByHashSQL = `SELECT id, key_hash, COALESCE(customer_id::text, ''), name, scopes
		FROM api_keys WHERE key_hash = $1 AND active`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a customer with their current loyalty balance.
func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerByIDSQL, id).
		Scan(&c.ID, &c.Email, &c.Name, &c.LoyaltyBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, errors.Wrapf(err, "getting customer %q", id)
	}
	return &c, nil
}

// FindKeyByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *CustomerRepository) FindKeyByHash(ctx context.Context, hash string) (*customer.APIKeyInfo, error) {
	var info customer.APIKeyInfo
	err := r.pool.QueryRow(ctx, getAPIKeyByHashSQL, hash).
		Scan(&info.ID, &info.KeyHash, &info.CustomerID, &info.Name, &info.Scopes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrap(err, "api key not found")
		}
		return nil, errors.Wrap(err, "finding api key by hash")
	}
	return &info, nil
}
