package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/order"
)

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", o.ID)
		strField(e, "userId", o.UserID)
		strField(e, "email", o.Email)
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range o.Lines {
					e.Obj(func(e *jx.Encoder) {
						strField(e, "id", l.ProductID)
						strField(e, "name", l.Name)
						moneyField(e, "price", l.UnitPrice)
						if !l.OriginalPrice.IsZero() {
							moneyField(e, "oldPrice", l.OriginalPrice)
						}
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						if l.Size != "" {
							strField(e, "size", l.Size)
						}
						strField(e, "image", h.imageURL(l.Image))
						moneyField(e, "lineTotal", l.LineTotal)
					})
				}
			})
		})
		moneyField(e, "subtotal", o.Subtotal)
		moneyField(e, "deliveryFee", o.DeliveryFee)
		moneyField(e, "productDiscount", o.ProductDiscount)
		moneyField(e, "couponDiscount", o.CouponDiscount)
		moneyField(e, "discount", o.Discount)
		moneyField(e, "total", o.Total)
		if o.CouponCode != "" {
			strField(e, "couponCode", o.CouponCode)
		}
		strField(e, "paymentMethod", o.PaymentMethod)
		strField(e, "status", string(o.Status))
		createdAt := o.CreatedAt
		timeField(e, "createdAt", &createdAt)
		timeField(e, "updatedAt", o.UpdatedAt)
		timeField(e, "shippedAt", o.ShippedAt)
		timeField(e, "deliveredAt", o.DeliveredAt)
	})
}

func (h *Handler) encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.Arr(func(e *jx.Encoder) {
		for i := range orders {
			h.encodeOrder(e, &orders[i])
		}
	})
}

// visible reports whether the caller may read o. Guest orders are readable by
// id, user orders only by their owner and admins.
func visible(s *session, o *order.Order) bool {
	if o.UserID == auth.GuestUserID {
		return true
	}
	if s.identity == nil {
		return false
	}
	return s.identity.IsAdmin || s.identity.UserID == o.UserID
}

// CreateOrder checks out the caller's cart.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var p order.Payment
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "paymentMethod":
			return readStr(d, &p.Method)
		case "cardNumber":
			return readStr(d, &p.CardNumber)
		case "expiry":
			return readStr(d, &p.Expiry)
		case "cvv":
			return readStr(d, &p.CVV)
		default:
			return d.Skip()
		}
	}); err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	s := sessionFrom(ctx)
	selection := h.coupons(s)
	applied, err := selection.Load(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Orders.CreateOrder(ctx, order.CreateRequest{
		Cart:     h.cart(s),
		Payment:  p,
		Customer: order.Customer{Identity: s.identity},
		Coupon:   applied,
		Coupons:  selection,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// ListOrders returns the signed-in user's order history.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := sessionFrom(ctx)
	if s.identity == nil {
		fail(w, r, errSignInRequired)
		return
	}
	orders, err := h.Orders.ListForUser(ctx, s.userID())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

// GetOrder returns one order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.Orders.Get(ctx, r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if !visible(sessionFrom(ctx), o) {
		fail(w, r, order.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

// OrderEvents streams an order every time its status changes.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	o, err := h.Orders.Get(ctx, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !visible(sessionFrom(ctx), o) {
		fail(w, r, order.ErrNotFound)
		return
	}
	ch, err := h.Orders.Watch(ctx, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	es, err := openStream(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	stream(r, es, h.heartbeat, ch, "order", h.encodeOrder)
}

// ListAllOrders returns every order. Admin only.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orders, err := h.Orders.ListAll(ctx, sessionFrom(ctx).operator())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrders(e, orders) })
}

// UpdateOrderStatus moves an order forward in its lifecycle. Admin only.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var raw string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		return readStr(d, &raw)
	}); err != nil {
		fail(w, r, err)
		return
	}

	ctx := r.Context()
	op := sessionFrom(ctx).operator()
	if !op.IsAdmin {
		fail(w, r, order.ErrForbidden)
		return
	}
	status, err := order.ParseStatus(raw)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := h.Orders.UpdateStatus(ctx, op, r.PathValue("id"), status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}
