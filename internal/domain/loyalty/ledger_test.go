package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRedeemable(t *testing.T) {
	tests := []struct {
		name               string
		requested          int64
		balance            int64
		discountedSubtotal string
		want               int64
	}{
		{"zero requested", 0, 100, "50.00", 0},
		{"negative requested", -5, 100, "50.00", 0},
		{"under all limits", 10, 100, "50.00", 10},
		{"clamped to balance", 80, 30, "200.00", 30},
		{"clamped to half subtotal", 100, 100, "50.00", 25},
		{"half subtotal floors", 100, 100, "33.50", 16},
		{"over-ask clamps silently", 1000, 100, "23.40", 11},
		{"zero subtotal", 10, 100, "0.00", 0},
		{"negative subtotal", 10, 100, "-5.00", 0},
		{"zero balance", 10, 0, "50.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redeemable(tt.requested, tt.balance, decimal.RequireFromString(tt.discountedSubtotal))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEarned(t *testing.T) {
	tests := []struct {
		name  string
		total string
		want  int64
	}{
		{"zero total", "0.00", 0},
		{"floors fractional cashback", "9.20", 0},
		{"exact multiple", "100.00", 3},
		{"floors below next unit", "133.33", 3},
		{"large order", "900.00", 27},
		{"negative total", "-1.00", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Earned(decimal.RequireFromString(tt.total))
			assert.Equal(t, tt.want, got)
		})
	}
}
