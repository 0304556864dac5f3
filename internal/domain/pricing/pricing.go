// Package pricing derives checkout totals from a cart snapshot.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-cart/internal/domain/cart"
)

// FeePolicy holds the delivery fee and threshold discount applied at checkout.
type FeePolicy struct {
	// DeliveryFee is charged once for any non-empty cart.
	DeliveryFee decimal.Decimal
	// DiscountThreshold must be strictly exceeded by the subtotal to unlock
	// DiscountAmount.
	DiscountThreshold decimal.Decimal
	DiscountAmount    decimal.Decimal
	// Precision is the number of decimal places money is rounded to.
	Precision int32
}

// DefaultFeePolicy is the storefront's standing policy in đồng: a 15 000 flat
// delivery fee and 20 000 off orders above 200 000.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		DeliveryFee:       decimal.NewFromInt(15000),
		DiscountThreshold: decimal.NewFromInt(200000),
		DiscountAmount:    decimal.NewFromInt(20000),
		Precision:         0,
	}
}

// Validate rejects policies with negative amounts.
func (p FeePolicy) Validate() error {
	switch {
	case p.DeliveryFee.IsNegative():
		return errors.New("delivery fee must not be negative")
	case p.DiscountThreshold.IsNegative():
		return errors.New("discount threshold must not be negative")
	case p.DiscountAmount.IsNegative():
		return errors.New("discount amount must not be negative")
	case p.Precision < 0:
		return errors.New("precision must not be negative")
	}
	return nil
}

// Summary is the checkout breakdown of a cart.
type Summary struct {
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
	Discount    decimal.Decimal
	Total       decimal.Decimal
	// ItemCount is the number of distinct lines, Quantity the number of units.
	ItemCount int
	Quantity  int
}

// Compute derives the summary for items under policy. It has no side effects
// and returns the same result for the same input.
//
// Lines with a negative price or a quantity below one are ignored; the cart
// store never produces them.
func Compute(items []cart.LineItem, policy FeePolicy) Summary {
	var s Summary
	subtotal := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 || item.UnitPrice.IsNegative() {
			continue
		}
		subtotal = subtotal.Add(LineTotal(item))
		s.ItemCount++
		s.Quantity += item.Quantity
	}

	s.Subtotal = subtotal.Round(policy.Precision)
	s.DeliveryFee = decimal.Zero
	if s.ItemCount > 0 {
		s.DeliveryFee = floorAtZero(policy.DeliveryFee).Round(policy.Precision)
	}
	s.Discount = decimal.Zero
	// The threshold applies to the exact subtotal, before rounding.
	if subtotal.GreaterThan(policy.DiscountThreshold) {
		s.Discount = floorAtZero(policy.DiscountAmount).Round(policy.Precision)
	}
	s.Total = floorAtZero(s.Subtotal.Add(s.DeliveryFee).Sub(s.Discount))
	return s
}

// LineTotal returns unit price times quantity for a single line.
func LineTotal(item cart.LineItem) decimal.Decimal {
	return item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
