package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(id, price string, qty int) cart.LineItem {
	return cart.LineItem{ProductID: id, Name: "Dish " + id, UnitPrice: d(price), Quantity: qty}
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "%s: expected %s, got %s", field, want, got)
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name         string
		items        []cart.LineItem
		wantSubtotal string
		wantFee      string
		wantDiscount string
		wantTotal    string
	}{
		{
			name:         "empty cart",
			items:        nil,
			wantSubtotal: "0",
			wantFee:      "0",
			wantDiscount: "0",
			wantTotal:    "0",
		},
		{
			name:         "subtotal exactly at threshold gets no discount",
			items:        []cart.LineItem{line("1", "100000", 2)},
			wantSubtotal: "200000",
			wantFee:      "15000",
			wantDiscount: "0",
			wantTotal:    "215000",
		},
		{
			name:         "subtotal just below threshold",
			items:        []cart.LineItem{line("1", "199999", 1)},
			wantSubtotal: "199999",
			wantFee:      "15000",
			wantDiscount: "0",
			wantTotal:    "214999",
		},
		{
			name:         "subtotal just above threshold",
			items:        []cart.LineItem{line("1", "200001", 1)},
			wantSubtotal: "200001",
			wantFee:      "15000",
			wantDiscount: "20000",
			wantTotal:    "195001",
		},
		{
			name:         "fractional subtotal above threshold rounds down to it",
			items:        []cart.LineItem{line("1", "100000.2", 2)},
			wantSubtotal: "200000",
			wantFee:      "15000",
			wantDiscount: "20000",
			wantTotal:    "195000",
		},
		{
			name:         "subtotal above threshold",
			items:        []cart.LineItem{line("1", "150000", 2)},
			wantSubtotal: "300000",
			wantFee:      "15000",
			wantDiscount: "20000",
			wantTotal:    "295000",
		},
		{
			name:         "several lines",
			items:        []cart.LineItem{line("1", "45000", 2), line("2", "30000", 1), line("3", "12500", 4)},
			wantSubtotal: "170000",
			wantFee:      "15000",
			wantDiscount: "0",
			wantTotal:    "185000",
		},
		{
			name:         "invalid lines are skipped",
			items:        []cart.LineItem{line("1", "-5000", 1), line("2", "10000", 0)},
			wantSubtotal: "0",
			wantFee:      "0",
			wantDiscount: "0",
			wantTotal:    "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.items, DefaultFeePolicy())

			assertDecimal(t, tt.wantSubtotal, got.Subtotal, "subtotal")
			assertDecimal(t, tt.wantFee, got.DeliveryFee, "delivery fee")
			assertDecimal(t, tt.wantDiscount, got.Discount, "discount")
			assertDecimal(t, tt.wantTotal, got.Total, "total")
		})
	}
}

func TestCompute_Deterministic(t *testing.T) {
	items := []cart.LineItem{line("1", "150000", 2), line("2", "35000", 3)}
	policy := DefaultFeePolicy()

	first := Compute(items, policy)
	second := Compute(items, policy)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, first.ItemCount)
	assert.Equal(t, 5, first.Quantity)
}

func TestCompute_OrderIndependent(t *testing.T) {
	a := line("1", "150000", 2)
	b := line("2", "35000", 3)
	policy := DefaultFeePolicy()

	forward := Compute([]cart.LineItem{a, b}, policy)
	reverse := Compute([]cart.LineItem{b, a}, policy)
	assert.True(t, forward.Total.Equal(reverse.Total))
}

func TestCompute_FeeGating(t *testing.T) {
	policy := DefaultFeePolicy()

	for _, items := range [][]cart.LineItem{
		{line("1", "0", 1)},
		{line("1", "1000", 1)},
		{line("1", "500000", 3)},
	} {
		assertDecimal(t, "15000", Compute(items, policy).DeliveryFee, "delivery fee")
	}
	assertDecimal(t, "0", Compute(nil, policy).DeliveryFee, "delivery fee")
}

func TestCompute_TotalNeverNegative(t *testing.T) {
	policy := FeePolicy{
		DeliveryFee:       d("1000"),
		DiscountThreshold: d("10"),
		DiscountAmount:    d("999999"),
	}

	got := Compute([]cart.LineItem{line("1", "500", 1)}, policy)
	assertDecimal(t, "0", got.Total, "total")
	assertDecimal(t, "999999", got.Discount, "discount")
}

func TestCompute_RoundsToPrecision(t *testing.T) {
	policy := FeePolicy{
		DeliveryFee:       d("1.005"),
		DiscountThreshold: d("100"),
		DiscountAmount:    d("5"),
		Precision:         2,
	}

	got := Compute([]cart.LineItem{line("1", "0.335", 3)}, policy)
	assertDecimal(t, "1.01", got.Subtotal, "subtotal")
	assertDecimal(t, "1.01", got.DeliveryFee, "delivery fee")
	assertDecimal(t, "2.02", got.Total, "total")
}

func TestLineTotal(t *testing.T) {
	assertDecimal(t, "200000", LineTotal(line("5", "50000", 4)), "line total")
}

func TestFeePolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultFeePolicy().Validate())

	bad := DefaultFeePolicy()
	bad.DeliveryFee = d("-1")
	require.Error(t, bad.Validate())

	bad = DefaultFeePolicy()
	bad.DiscountAmount = d("-1")
	require.Error(t, bad.Validate())

	bad = DefaultFeePolicy()
	bad.Precision = -1
	require.Error(t, bad.Validate())
}
