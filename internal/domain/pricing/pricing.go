// Package pricing derives order summary figures from a cart snapshot.
//
// Nothing here is cached: every caller recomputes the summary from the
// current lines so that the cart sidebar, checkout page and persisted order
// always agree on the same numbers.
package pricing

import "github.com/shopspring/decimal"

// Default delivery policy, in whole currency units.
var (
	DefaultFreeDeliveryThreshold = decimal.NewFromInt(50000)
	DefaultDeliveryFee           = decimal.NewFromInt(2500)
)

// Item is the pricing view of a single cart line.
type Item struct {
	UnitPrice decimal.Decimal
	// OriginalPrice is the pre-markdown price. Zero means the line is not
	// marked down.
	OriginalPrice decimal.Decimal
	Quantity      int
}

// Summary holds the derived totals for a cart.
type Summary struct {
	Subtotal        decimal.Decimal
	ProductDiscount decimal.Decimal
	CouponDiscount  decimal.Decimal
	DeliveryFee     decimal.Decimal
	TotalDiscount   decimal.Decimal
	Total           decimal.Decimal
}

// Calculator applies the delivery policy to cart snapshots.
type Calculator struct {
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

// NewCalculator returns a Calculator with the default delivery policy.
func NewCalculator() Calculator {
	return Calculator{
		FreeDeliveryThreshold: DefaultFreeDeliveryThreshold,
		DeliveryFee:           DefaultDeliveryFee,
	}
}

// Subtotal returns the sum of unit price times quantity.
func Subtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// ProductDiscount returns the markdown savings over lines whose original
// price exceeds the unit price.
func ProductDiscount(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		if !it.OriginalPrice.GreaterThan(it.UnitPrice) {
			continue
		}
		diff := it.OriginalPrice.Sub(it.UnitPrice)
		sum = sum.Add(diff.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Delivery returns the delivery fee for the given subtotal. Delivery is free
// only when the subtotal strictly exceeds the threshold.
func (c Calculator) Delivery(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThan(c.FreeDeliveryThreshold) {
		return decimal.Zero
	}
	return c.DeliveryFee
}

// Summarize computes the full summary for items with the given coupon
// discount. An empty cart yields an all-zero summary.
func (c Calculator) Summarize(items []Item, couponDiscount decimal.Decimal) Summary {
	if len(items) == 0 {
		return Summary{
			Subtotal:        decimal.Zero,
			ProductDiscount: decimal.Zero,
			CouponDiscount:  decimal.Zero,
			DeliveryFee:     decimal.Zero,
			TotalDiscount:   decimal.Zero,
			Total:           decimal.Zero,
		}
	}

	subtotal := Subtotal(items)
	productDiscount := ProductDiscount(items)
	fee := c.Delivery(subtotal)
	totalDiscount := productDiscount.Add(couponDiscount)

	return Summary{
		Subtotal:        subtotal,
		ProductDiscount: productDiscount,
		CouponDiscount:  couponDiscount,
		DeliveryFee:     fee,
		TotalDiscount:   totalDiscount,
		Total:           subtotal.Add(fee).Sub(totalDiscount),
	}
}
