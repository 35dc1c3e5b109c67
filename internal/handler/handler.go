// Package handler serves the storefront JSON API over net/http.
package handler

import (
	"net/http"
	"time"

	"github.com/xenking/zaya-storefront/internal/domain/auth"
	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/catalog"
	"github.com/xenking/zaya-storefront/internal/domain/coupon"
	"github.com/xenking/zaya-storefront/internal/domain/order"
	"github.com/xenking/zaya-storefront/internal/domain/wishlist"
	"github.com/xenking/zaya-storefront/internal/kv"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to product image paths. Empty returns paths
	// as stored.
	ImageBaseURL string
	// Heartbeat is the interval of keep-alive comments on event streams.
	Heartbeat time.Duration
}

// Deps are the services the API delegates to.
type Deps struct {
	Products catalog.Repository
	Carts    *cart.Provider
	Merger   *cart.Merger
	Coupons  *coupon.Resolver
	Orders   *order.Service
	Saved    *wishlist.Service
	Auth     *auth.Authenticator
	// Devices is the device storage shared by every device. Requests see a
	// view scoped to their X-Device-ID.
	Devices kv.Store
}

// Handler serves the storefront API.
type Handler struct {
	Deps
	imageBaseURL string
	heartbeat    time.Duration
}

// New creates a Handler.
func New(cfg Config, deps Deps) *Handler {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 15 * time.Second
	}
	return &Handler{
		Deps:         deps,
		imageBaseURL: cfg.ImageBaseURL,
		heartbeat:    cfg.Heartbeat,
	}
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.identify(fn))
	}

	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", h.GetProduct)

	handle("GET /api/cart", h.GetCart)
	handle("GET /api/cart/events", h.CartEvents)
	handle("POST /api/cart/items", h.AddCartItem)
	handle("PUT /api/cart/items/{productId}", h.SetCartItemQuantity)
	handle("DELETE /api/cart/items/{productId}", h.RemoveCartItem)
	handle("POST /api/cart/coupon", h.ApplyCoupon)
	handle("DELETE /api/cart/coupon", h.ClearCoupon)

	handle("POST /api/orders", h.CreateOrder)
	handle("GET /api/orders", h.ListOrders)
	handle("GET /api/orders/{id}", h.GetOrder)
	handle("GET /api/orders/{id}/events", h.OrderEvents)
	handle("GET /api/admin/orders", h.ListAllOrders)
	handle("PUT /api/admin/orders/{id}/status", h.UpdateOrderStatus)

	handle("GET /api/saved-items", h.ListSavedItems)
	handle("POST /api/saved-items", h.SaveItem)
	handle("DELETE /api/saved-items/{productId}", h.RemoveSavedItem)
	handle("POST /api/saved-items/{productId}/cart", h.MoveSavedItemToCart)
}
