package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"admitest/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

// Handler serves the read-only test catalog. Question detail is sanitized:
// correct options never leave the server through this surface.
type Handler struct {
	provider Provider
}

func NewHandler(provider Provider) *Handler {
	return &Handler{provider: provider}
}

func (h *Handler) ListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.provider.ListPublished(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]Test, 0, len(tests))
	for _, t := range tests {
		items = append(items, *t.Sanitized())
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) GetTest(w http.ResponseWriter, r *http.Request) {
	testID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || testID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid test id")
		return
	}

	test, err := h.provider.GetTest(r.Context(), testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if !test.Available() {
		apiresp.WriteError(w, r, http.StatusNotFound, ErrTestNotFound.Error())
		return
	}

	apiresp.WriteOK(w, r, http.StatusOK, test.Sanitized())
}
