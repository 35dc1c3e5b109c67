package handler

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/domain/order"
	"github.com/xenking/zaya-storefront/internal/domain/pricing"
)

// cartView is a cart with its derived summary.
type cartView struct {
	lines   []cart.Line
	coupon  coupon.Applied
	summary pricing.Summary
}

func (h *Handler) view(lines []cart.Line, applied coupon.Applied) cartView {
	discount := decimal.Zero
	if applied.Active() {
		discount = applied.Amount
	}
	return cartView{
		lines:   lines,
		coupon:  applied,
		summary: h.Orders.Calculator().Summarize(cart.PricingItems(lines), discount),
	}
}

func (h *Handler) loadView(ctx context.Context, s *session) (cartView, error) {
	lines, err := h.cart(s).Lines(ctx)
	if err != nil {
		return cartView{}, err
	}
	applied, err := h.coupons(s).Load(ctx)
	if err != nil {
		return cartView{}, err
	}
	return h.view(lines, applied), nil
}

func (h *Handler) encodeCart(e *jx.Encoder, v cartView) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range v.lines {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "id", l.ProductID)
						strField(e, "name", l.Name)
						moneyField(e, "price", l.UnitPrice)
						if !l.OriginalPrice.IsZero() {
							moneyField(e, "oldPrice", l.OriginalPrice)
						}
						strField(e, "image", h.imageURL(l.Image))
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						if l.Size != "" {
							strField(e, "size", l.Size)
						}
					})
				}
			})
		})
		e.Field("count", func(e *jx.Encoder) { e.Int(cart.Count(v.lines)) })
		e.Field("coupon", func(e *jx.Encoder) {
			if !v.coupon.Active() {
				e.Null()
				return
			}
			e.Obj(func(e *jx.Encoder) {
				strField(e, "code", v.coupon.Code)
				moneyField(e, "amount", v.coupon.Amount)
			})
		})
		e.Field("summary", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				moneyField(e, "subtotal", v.summary.Subtotal)
				moneyField(e, "productDiscount", v.summary.ProductDiscount)
				moneyField(e, "couponDiscount", v.summary.CouponDiscount)
				moneyField(e, "deliveryFee", v.summary.DeliveryFee)
				moneyField(e, "discount", v.summary.TotalDiscount)
				moneyField(e, "total", v.summary.Total)
			})
		})
	})
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, s *session) {
	v, err := h.loadView(r.Context(), s)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeCart(e, v) })
}

// GetCart returns the caller's cart and summary.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r, sessionFrom(r.Context()))
}

// CartEvents streams the cart every time it changes.
func (h *Handler) CartEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := sessionFrom(ctx)

	ch, err := h.cart(s).Watch(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	es, err := openStream(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	selection := h.coupons(s)
	stream(r, es, h.heartbeat, ch, "cart", func(e *jx.Encoder, lines []cart.Line) {
		applied, err := selection.Load(ctx)
		if err != nil {
			zctx.From(ctx).Warn("Load coupon", zap.Error(err))
		}
		h.encodeCart(e, h.view(lines, applied))
	})
}

// AddCartItem adds one unit of a product. Prices are taken from the catalog.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var productID, size string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			return readStr(d, &productID)
		case "size":
			return readStr(d, &size)
		default:
			return d.Skip()
		}
	}); err != nil {
		fail(w, r, err)
		return
	}
	if productID == "" {
		fail(w, r, cart.ErrInvalidLine)
		return
	}

	ctx := r.Context()
	p, err := h.Products.GetByID(ctx, productID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if size != "" && len(p.Sizes) > 0 && !slices.Contains(p.Sizes, size) {
		fail(w, r, &order.ValidationError{Field: "size", Reason: "not offered for this product"})
		return
	}

	s := sessionFrom(ctx)
	if err := h.cart(s).Add(ctx, cart.Line{
		ProductID:     p.ID,
		Name:          p.Name,
		UnitPrice:     p.Price,
		OriginalPrice: p.OriginalPrice,
		Image:         p.Image,
		Size:          size,
	}); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r, s)
}

// SetCartItemQuantity sets a line's quantity. Zero or less removes it.
func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	var (
		quantity int
		seen     bool
	)
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		n, err := d.Int()
		if err != nil {
			return err
		}
		quantity, seen = n, true
		return nil
	}); err != nil {
		fail(w, r, err)
		return
	}
	if !seen {
		fail(w, r, &order.ValidationError{Field: "quantity", Reason: "required"})
		return
	}

	ctx := r.Context()
	s := sessionFrom(ctx)
	if err := h.cart(s).SetQuantity(ctx, r.PathValue("productId"), quantity); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r, s)
}

// RemoveCartItem deletes a line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := sessionFrom(ctx)
	if err := h.cart(s).Remove(ctx, r.PathValue("productId")); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r, s)
}

// ApplyCoupon resolves a code against the current cart and stores it on the
// device. An invalid code also clears any previously applied coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var code string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		return readStr(d, &code)
	}); err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	s := sessionFrom(ctx)
	lines, err := h.cart(s).Lines(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	calc := h.Orders.Calculator()
	subtotal := pricing.Subtotal(cart.PricingItems(lines))
	if _, err := h.coupons(s).Apply(ctx, h.Coupons, code, subtotal, calc.Delivery(subtotal)); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r, s)
}

// ClearCoupon removes the applied coupon.
func (h *Handler) ClearCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := sessionFrom(ctx)
	if err := h.coupons(s).Clear(ctx); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r, s)
}
