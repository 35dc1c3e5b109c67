package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/catalog"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/domain/order"
	"github.com/xenking/zaya-storefront/internal/domain/wishlist"
)

// fail maps err onto an HTTP error response. Unknown errors are logged and
// answered with 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		badReq     *badRequestError
		invalid    *order.ValidationError
		transition *order.TransitionError
		persist    *order.PersistenceError
	)
	switch {
	case errors.As(err, &badReq):
		writeError(w, http.StatusBadRequest, badReq.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, cart.ErrInvalidLine):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, errSignInRequired), errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, cart.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "item not in cart")
	case errors.Is(err, wishlist.ErrNotSaved):
		writeError(w, http.StatusNotFound, "item not saved")
	case errors.As(err, &transition):
		writeError(w, http.StatusConflict, transition.Error())
	case errors.Is(err, order.ErrStatusChanged):
		writeError(w, http.StatusConflict, "order status changed, reload and retry")
	case errors.Is(err, wishlist.ErrAlreadyInCart):
		writeError(w, http.StatusConflict, "item already in cart")
	case errors.Is(err, coupon.ErrInvalidCoupon):
		writeError(w, http.StatusUnprocessableEntity, "invalid coupon code")
	case errors.Is(err, order.ErrEmptyCart):
		writeError(w, http.StatusUnprocessableEntity, "cart is empty")
	case errors.As(err, &persist):
		zctx.From(r.Context()).Error("Order not persisted", zap.Error(err))
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "order could not be placed, your cart is unchanged, please retry")
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
