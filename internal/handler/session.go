package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/domain/order"
	"github.com/xenking/zaya-storefront/internal/kv"
	"github.com/xenking/zaya-storefront/pkg/httpmiddleware"
)

// DeviceHeader carries the client's device id. Device storage (guest cart,
// applied coupon) is keyed by it.
const DeviceHeader = "X-Device-ID"

var errSignInRequired = errors.New("sign in required")

// session is the caller of a request.
type session struct {
	deviceID string
	device   kv.Store
	// identity is nil for guests.
	identity *auth.Identity
}

func (s *session) userID() string {
	if s.identity == nil {
		return ""
	}
	return s.identity.UserID
}

func (s *session) operator() order.Operator {
	if s.identity == nil {
		return order.Operator{}
	}
	return order.Operator{ID: s.identity.UserID, IsAdmin: s.identity.IsAdmin}
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

// identify resolves the device and the signed-in user, and moves the guest
// cart into the user's cart the first time a user is seen on a device. A
// failed merge is logged and retried on the next request.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		deviceID := r.Header.Get(DeviceHeader)
		if !httpmiddleware.ValidID(deviceID) {
			deviceID = uuid.New().String()
		}
		w.Header().Set(DeviceHeader, deviceID)

		s := &session{
			deviceID: deviceID,
			device:   kv.Scoped(h.Devices, deviceID),
		}
		if token, ok := bearerToken(r); ok {
			id, err := h.Auth.Authenticate(ctx, token)
			switch {
			case errors.Is(err, auth.ErrUnauthorized):
				writeError(w, http.StatusUnauthorized, "invalid access token")
				return
			case err != nil:
				fail(w, r, err)
				return
			}
			s.identity = id
		}

		lg := zctx.From(ctx).With(zap.String("device_id", deviceID))
		if uid := s.userID(); uid != "" {
			lg = lg.With(zap.String("user_id", uid))
		}
		ctx = zctx.Base(ctx, lg)

		if err := h.Merger.OnIdentity(ctx, s.device, s.userID()); err != nil {
			lg.Warn("Sign-in cart merge", zap.Error(err))
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, sessionKey{}, s)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	v := r.Header.Get("Authorization")
	if v == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

// cart returns the authoritative cart of the caller.
func (h *Handler) cart(s *session) cart.Store {
	return h.Carts.For(s.device, s.userID())
}

func (h *Handler) coupons(s *session) *coupon.Selection {
	return coupon.NewSelection(s.device)
}
