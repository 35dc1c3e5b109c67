package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/zaya-storefront/internal/domain/wishlist"
)

func (h *Handler) encodeSaved(e *jx.Encoder, it *wishlist.Item) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", it.ProductID)
		strField(e, "name", it.Name)
		moneyField(e, "price", it.Price)
		if !it.OriginalPrice.IsZero() {
			moneyField(e, "oldPrice", it.OriginalPrice)
		}
		strField(e, "image", h.imageURL(it.Image))
		savedAt := it.SavedAt
		timeField(e, "savedAt", &savedAt)
	})
}

// signedIn returns the caller's session, or answers 401 for guests.
func signedIn(w http.ResponseWriter, r *http.Request) (*session, bool) {
	s := sessionFrom(r.Context())
	if s.identity == nil {
		fail(w, r, errSignInRequired)
		return nil, false
	}
	return s, true
}

// ListSavedItems returns the user's saved items.
func (h *Handler) ListSavedItems(w http.ResponseWriter, r *http.Request) {
	s, ok := signedIn(w, r)
	if !ok {
		return
	}
	items, err := h.Saved.List(r.Context(), s.userID())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range items {
				h.encodeSaved(e, &items[i])
			}
		})
	})
}

// SaveItem saves a product for later.
func (h *Handler) SaveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := signedIn(w, r)
	if !ok {
		return
	}
	var productID string
	if err := decodeObject(r, func(d *jx.Decoder, key string) error {
		if key != "productId" {
			return d.Skip()
		}
		return readStr(d, &productID)
	}); err != nil {
		fail(w, r, err)
		return
	}
	it, err := h.Saved.Save(r.Context(), s.userID(), productID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeSaved(e, it) })
}

// RemoveSavedItem deletes a saved item.
func (h *Handler) RemoveSavedItem(w http.ResponseWriter, r *http.Request) {
	s, ok := signedIn(w, r)
	if !ok {
		return
	}
	if err := h.Saved.Remove(r.Context(), s.userID(), r.PathValue("productId")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveSavedItemToCart adds a saved product to the cart and returns the cart.
func (h *Handler) MoveSavedItemToCart(w http.ResponseWriter, r *http.Request) {
	s, ok := signedIn(w, r)
	if !ok {
		return
	}
	if err := h.Saved.MoveToCart(r.Context(), s.userID(), r.PathValue("productId"), h.cart(s)); err != nil {
		fail(w, r, err)
		return
	}
	h.respondCart(w, r, s)
}
