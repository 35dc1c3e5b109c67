package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/zaya-storefront/internal/kv"
)

// Device storage keys for the applied coupon.
const (
	codeKey     = "coupon"
	discountKey = "discount"
)

// Applied is the coupon currently in effect for a device. The zero value
// means no coupon.
type Applied struct {
	Code   string
	Amount decimal.Decimal
}

// Active reports whether a coupon is applied.
func (a Applied) Active() bool {
	return a.Code != ""
}

// Selection persists the applied coupon in device storage so that it
// survives navigation and reloads.
type Selection struct {
	store kv.Store
}

// NewSelection returns a Selection backed by store.
func NewSelection(store kv.Store) *Selection {
	return &Selection{store: store}
}

// Load returns the applied coupon, or the zero Applied when none is stored.
// A corrupt stored amount is treated as no coupon.
func (s *Selection) Load(ctx context.Context) (Applied, error) {
	code, ok, err := s.store.Get(ctx, codeKey)
	if err != nil {
		return Applied{}, errors.Wrap(err, "load coupon code")
	}
	if !ok {
		return Applied{}, nil
	}
	raw, ok, err := s.store.Get(ctx, discountKey)
	if err != nil {
		return Applied{}, errors.Wrap(err, "load coupon discount")
	}
	if !ok {
		return Applied{}, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return Applied{}, nil
	}
	return Applied{Code: code, Amount: amount}, nil
}

// Apply resolves code and replaces any previously applied coupon with it.
// An invalid code clears the stored coupon and returns ErrInvalidCoupon.
func (s *Selection) Apply(ctx context.Context, r *Resolver, code string, subtotal, deliveryFee decimal.Decimal) (Applied, error) {
	d, err := r.Resolve(code, subtotal, deliveryFee)
	if err != nil {
		if clearErr := s.Clear(ctx); clearErr != nil {
			return Applied{}, errors.Wrap(clearErr, "clear coupon")
		}
		return Applied{}, err
	}

	if err := s.store.Set(ctx, codeKey, d.Code); err != nil {
		return Applied{}, errors.Wrap(err, "save coupon code")
	}
	if err := s.store.Set(ctx, discountKey, d.Amount.String()); err != nil {
		return Applied{}, errors.Wrap(err, "save coupon discount")
	}
	return Applied{Code: d.Code, Amount: d.Amount}, nil
}

// Clear removes the applied coupon.
func (s *Selection) Clear(ctx context.Context) error {
	if err := s.store.Remove(ctx, codeKey); err != nil {
		return err
	}
	return s.store.Remove(ctx, discountKey)
}
