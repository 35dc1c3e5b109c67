// Package coupon resolves promotional codes to discount amounts and keeps
// the currently applied code for a device.
package coupon

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountFixed takes a flat amount off the order.
	DiscountFixed DiscountType = "fixed"
	// DiscountDelivery refunds the current delivery fee.
	DiscountDelivery DiscountType = "delivery"
	// DiscountThreshold takes a flat amount off once the subtotal reaches
	// MinSubtotal.
	DiscountThreshold DiscountType = "threshold"
)

// ErrInvalidCoupon is returned when a coupon code is not in the rule table.
var ErrInvalidCoupon = errors.New("invalid coupon code")

// Rule defines a coupon's discount behaviour.
type Rule struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinSubtotal  decimal.Decimal
	Description  string
}

// Discount holds the computed discount amount for a resolved code.
type Discount struct {
	Code        string
	Amount      decimal.Decimal
	Description string
}

// DefaultRules is the storefront's coupon table.
var DefaultRules = []Rule{
	{
		Code:         "ZAYA1000",
		DiscountType: DiscountFixed,
		Value:        decimal.NewFromInt(1000),
		Description:  "1,000 off your order",
	},
	{
		Code:         "FREEDELIVERY",
		DiscountType: DiscountDelivery,
		Description:  "Free delivery",
	},
	{
		Code:         "ZAYA50K",
		DiscountType: DiscountThreshold,
		Value:        decimal.NewFromInt(5000),
		MinSubtotal:  decimal.NewFromInt(50000),
		Description:  "5,000 off orders of 50,000 or more",
	},
}

// Resolver looks codes up in a fixed rule table. Codes are case-insensitive.
type Resolver struct {
	rules map[string]Rule
}

// NewResolver builds a Resolver over rules. With no rules it uses DefaultRules.
func NewResolver(rules ...Rule) *Resolver {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		m[normalize(r.Code)] = r
	}
	return &Resolver{rules: m}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolve returns the discount code earns against the given subtotal and
// delivery fee. Unknown codes return ErrInvalidCoupon.
func (r *Resolver) Resolve(code string, subtotal, deliveryFee decimal.Decimal) (*Discount, error) {
	rule, ok := r.rules[normalize(code)]
	if !ok {
		return nil, ErrInvalidCoupon
	}
	return &Discount{
		Code:        rule.Code,
		Amount:      Apply(rule, subtotal, deliveryFee),
		Description: rule.Description,
	}, nil
}

// Apply computes the discount a rule grants. The result is never negative.
func Apply(rule Rule, subtotal, deliveryFee decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountFixed:
		amount = rule.Value
	case DiscountDelivery:
		amount = deliveryFee
	case DiscountThreshold:
		if subtotal.GreaterThanOrEqual(rule.MinSubtotal) {
			amount = rule.Value
		}
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
