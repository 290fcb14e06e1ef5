package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brambleberry/storefront/internal/domain/promo"
)

// Codes are stored uppercase; lookups pass pre-normalized codes. Inactive
// promotions are invisible to the evaluator by design.
const getPromoByCodeSQL = `SELECT id, code, percent_off, amount_off, min_order_amount,
		expires_at, max_uses, used_count, active, description
	FROM promo_codes WHERE code = $1 AND active`

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// FindByCode looks up an active promotion by its normalized code.
func (r *PromoRepository) FindByCode(ctx context.Context, code string) (*promo.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromoByCodeSQL, code)
	if err != nil {
		return nil, errors.Wrapf(err, "finding promo code %q", code)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, errors.Wrapf(err, "finding promo code %q", code)
	}
	return &p, nil
}

func scanPromotion(row pgx.CollectableRow) (promo.Promotion, error) {
	var p promo.Promotion
	err := row.Scan(
		&p.ID, &p.Code, &p.PercentOff, &p.AmountOff, &p.MinOrderAmount,
		&p.ExpiresAt, &p.MaxUses, &p.UsedCount, &p.Active, &p.Description,
	)
	return p, err
}
