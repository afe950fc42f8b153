package httpx

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/inventory"
)

// StockHandler exposes read-only ledger queries.
type StockHandler struct {
	Stock inventory.Ledger
	Log   zerolog.Logger
}

func (h *StockHandler) Register(r chi.Router) {
	r.Route("/v1/stock", func(r chi.Router) {
		r.Use(RequireTenant)
		r.Get("/{skuID}", h.checkAvailable)
		r.Get("/{skuID}/offices", h.listOffices)
	})
}

// checkAvailable returns the row a reservation of ?quantity= would use.
func (h *StockHandler) checkAvailable(w http.ResponseWriter, r *http.Request) {
	qty := int64(1)
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.ParseInt(q, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, h.Log, fmt.Errorf("quantity %q must be a positive integer: %w", q, domain.ErrInvalidInput))
			return
		}
		qty = n
	}
	row, err := h.Stock.CheckAvailable(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "skuID"), qty)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *StockHandler) listOffices(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Stock.ListBySku(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "skuID"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if rows == nil {
		rows = []inventory.StockRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}
