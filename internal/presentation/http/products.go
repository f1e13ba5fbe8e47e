package httppresentation

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Zhima-Mochi/storefront/internal/application/apperr"
	"github.com/Zhima-Mochi/storefront/internal/domain/catalog"
)

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.deps.Products.List(r.Context())
	if err != nil {
		h.writeAppError(w, r, apperr.Internal("CATALOG_UNAVAILABLE", err))
		return
	}
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, productFrom(p, h.deps.Currency))
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": out})
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Products.Get(r.Context(), chi.URLParam(r, "productID"))
	if errors.Is(err, catalog.ErrNotFound) {
		h.writeAppError(w, r, apperr.NotFound("PRODUCT_NOT_FOUND", "product not found"))
		return
	}
	if err != nil {
		h.writeAppError(w, r, apperr.Internal("CATALOG_UNAVAILABLE", err))
		return
	}
	writeJSON(w, http.StatusOK, productFrom(p, h.deps.Currency))
}
