package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/zaya-storefront/internal/domain/catalog"
)

// imageURL resolves a stored image path against the image base URL.
func (h *Handler) imageURL(path string) string {
	if h.imageBaseURL == "" || path == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(h.imageBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *catalog.Product) {
	e.Obj(func(e *jx.Encoder) {
		strField(e, "id", p.ID)
		strField(e, "name", p.Name)
		moneyField(e, "price", p.Price)
		if !p.OriginalPrice.IsZero() {
			moneyField(e, "oldPrice", p.OriginalPrice)
		}
		strField(e, "category", p.Category)
		strField(e, "image", h.imageURL(p.Image))
		e.Field("sizes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, s := range p.Sizes {
					e.Str(s)
				}
			})
		})
		e.Field("soldCount", func(e *jx.Encoder) { e.Int64(p.SoldCount) })
	})
}

// ListProducts returns the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	category := r.URL.Query().Get("category")
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range products {
				if category != "" && !strings.EqualFold(products[i].Category, category) {
					continue
				}
				h.encodeProduct(e, &products[i])
			}
		})
	})
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Products.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}
