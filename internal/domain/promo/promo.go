// Package promo implements promotion code lookup and discount evaluation.
//
// Evaluation is a pure read: the used-count increment happens as a
// conditional write inside the checkout transaction, never here, so that two
// concurrent checkouts cannot both claim the last redemption slot.
package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel rejections surfaced to callers with user-facing messages.
var (
	// ErrNotFound is returned when a code does not resolve to an active promotion.
	ErrNotFound = errors.New("promo code not found")
	// ErrExpired is returned when a promotion is past its expiry timestamp.
	ErrExpired = errors.New("promo code expired")
	// ErrExhausted is returned when a promotion has no redemption slots left.
	ErrExhausted = errors.New("promo code usage limit reached")
)

// MinAmountError rejects a code whose minimum order amount is not met.
// The message embeds the concrete threshold for display to the customer.
type MinAmountError struct {
	Min decimal.Decimal
}

func (e *MinAmountError) Error() string {
	return fmt.Sprintf("order subtotal below the %s minimum required by this promo code", e.Min.StringFixed(2))
}

// Promotion is a redeemable discount code. PercentOff and AmountOff are
// mutually exclusive in practice; percent wins when both are set.
type Promotion struct {
	ID             string
	Code           string
	PercentOff     *decimal.Decimal
	AmountOff      *decimal.Decimal
	MinOrderAmount *decimal.Decimal
	ExpiresAt      *time.Time
	MaxUses        *int
	UsedCount      int
	Active         bool
	Description    string
}

// Repository provides promotion lookup. FindByCode matches the normalized
// (uppercase) code against active promotions only and returns ErrNotFound
// when nothing matches.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Promotion, error)
}

// Evaluation is the outcome of applying a code to a subtotal.
type Evaluation struct {
	Applied     bool
	PromotionID string
	Code        string
	PercentOff  *decimal.Decimal
	Discount    decimal.Decimal
}

// Evaluator validates a promotion code against an order subtotal and computes
// the discount it grants.
type Evaluator struct {
	repo Repository
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository) *Evaluator {
	return &Evaluator{repo: repo, now: time.Now}
}

var hundred = decimal.NewFromInt(100)

// Evaluate looks up the code (case-insensitively), checks expiry, usage
// ceiling, and minimum order amount, and returns the computed discount.
// The discount never exceeds the subtotal. An empty code yields a
// not-applied evaluation without error.
func (e *Evaluator) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (Evaluation, error) {
	if code == "" {
		return Evaluation{}, nil
	}

	normalized := Normalize(code)

	p, err := e.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Evaluation{}, ErrNotFound
		}
		return Evaluation{}, errors.Wrapf(err, "lookup promo code %q", normalized)
	}

	if p.ExpiresAt != nil && e.now().After(*p.ExpiresAt) {
		return Evaluation{}, ErrExpired
	}
	if p.MaxUses != nil && p.UsedCount >= *p.MaxUses {
		return Evaluation{}, ErrExhausted
	}
	if p.MinOrderAmount != nil && subtotal.LessThan(*p.MinOrderAmount) {
		return Evaluation{}, &MinAmountError{Min: *p.MinOrderAmount}
	}

	return Evaluation{
		Applied:     true,
		PromotionID: p.ID,
		Code:        p.Code,
		PercentOff:  p.PercentOff,
		Discount:    Discount(p, subtotal),
	}, nil
}

// Discount computes the monetary discount a promotion grants on a subtotal.
// Percent is checked first; the result is capped at the subtotal so the
// effective post-discount amount can never go negative, and rounded to the
// currency precision.
func Discount(p *Promotion, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch {
	case p.PercentOff != nil:
		amount = subtotal.Mul(*p.PercentOff).Div(hundred)
	case p.AmountOff != nil:
		amount = *p.AmountOff
	default:
		return decimal.Zero
	}

	amount = decimal.Min(amount, subtotal)
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount.Round(2)
}

// Normalize uppercases and trims a user-supplied promo code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
