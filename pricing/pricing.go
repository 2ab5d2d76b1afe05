// Package pricing turns cart figures into the totals checkout submits.
// Amounts stay decimal currency units until ToMinorUnits is applied at
// submission time.
package pricing

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Coupon is the discount applied to the cart subtotal.
type Coupon struct {
	Code             string
	DiscountFraction decimal.Decimal
}

// Rates are the shop-wide shipping and tax settings.
type Rates struct {
	ShippingFlatRate decimal.Decimal
	TaxRate          decimal.Decimal
}

// Snapshot is the priced state of a cart at one point in time.
type Snapshot struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
}

// Quote prices a cart whose discounted subtotal is already known. Shipping
// is not charged on an empty cart; tax is levied on the discounted subtotal.
// Every component is rounded to cents, so Total is their exact sum.
func Quote(subtotal, discountedSubtotal decimal.Decimal, r Rates) Snapshot {
	discountedSubtotal = discountedSubtotal.Round(2)
	shipping := decimal.Zero
	if discountedSubtotal.IsPositive() {
		shipping = r.ShippingFlatRate.Round(2)
	}
	tax := discountedSubtotal.Mul(r.TaxRate).Round(2)

	return Snapshot{
		Subtotal:     discountedSubtotal,
		Discount:     subtotal.Sub(discountedSubtotal),
		ShippingCost: shipping,
		Tax:          tax,
		Total:        discountedSubtotal.Add(shipping).Add(tax),
	}
}

// ToMinorUnits converts a decimal currency amount to integer cents,
// rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}
