package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/domain"
	"github.com/ariefcatur/order-ledger/internal/orders"
)

// StatusCache is the read-through cache behind GET /v1/orders/{id}/status.
// redisx.StatusCache implements it.
type StatusCache interface {
	Get(ctx context.Context, tenantID, orderID string) (orders.Status, time.Time, bool, error)
	Set(ctx context.Context, o orders.Order) error
	Invalidate(ctx context.Context, tenantID, orderID string) error
}

type OrdersHandler struct {
	Orders *orders.Lifecycle
	Cache  StatusCache // optional
	Log    zerolog.Logger
}

type CancelOrderReq struct {
	Reason string `json:"reason"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type BatchStatusReq struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
}

type BatchItemResp struct {
	OrderID string        `json:"order_id"`
	OK      bool          `json:"ok"`
	Status  orders.Status `json:"status,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type StatusResp struct {
	OrderID   string        `json:"order_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
	Cached    bool          `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/v1/orders", func(r chi.Router) {
		r.Use(RequireTenant)
		r.Post("/", h.createOrder)
		r.Post("/status", h.batchStatus)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getStatus)
		r.Post("/{id}/complete", h.completeOrder)
		r.Post("/{id}/cancel", h.cancelOrder)
		r.Patch("/{id}/status", h.updateStatus)
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid json: %v: %w", err, domain.ErrInvalidInput)
	}
	return nil
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderInput
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	o, err := h.Orders.CreateOrder(r.Context(), tenantFrom(r.Context()), req)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Get(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant, id := tenantFrom(ctx), chi.URLParam(r, "id")

	// 1) coba cache
	if h.Cache != nil {
		st, at, ok, err := h.Cache.Get(ctx, tenant, id)
		if err != nil {
			h.Log.Warn().Err(err).Str("order_id", id).Msg("status cache read failed")
		}
		if ok {
			writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: st, UpdatedAt: at, Cached: true})
			return
		}
	}

	// 2) fallback repo
	o, err := h.Orders.Get(ctx, tenant, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, o); err != nil {
			h.Log.Warn().Err(err).Str("order_id", id).Msg("status cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, StatusResp{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) completeOrder(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(ctx context.Context, tenant, id string) (orders.Order, error) {
		return h.Orders.CompleteOrder(ctx, tenant, id)
	})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderReq
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, h.Log, err)
			return
		}
	}
	h.command(w, r, func(ctx context.Context, tenant, id string) (orders.Order, error) {
		return h.Orders.CancelOrder(ctx, tenant, id, req.Reason)
	})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	target, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.command(w, r, func(ctx context.Context, tenant, id string) (orders.Order, error) {
		return h.Orders.UpdateStatus(ctx, tenant, id, target)
	})
}

func (h *OrdersHandler) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, tenant, id string) (orders.Order, error)) {
	ctx := r.Context()
	tenant, id := tenantFrom(ctx), chi.URLParam(r, "id")
	o, err := fn(ctx, tenant, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	h.invalidate(ctx, tenant, id)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) batchStatus(w http.ResponseWriter, r *http.Request) {
	var req BatchStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, h.Log, err)
		return
	}
	target, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, h.Log, fmt.Errorf("order_ids required: %w", domain.ErrInvalidInput))
		return
	}

	ctx := r.Context()
	tenant := tenantFrom(ctx)
	results := h.Orders.BatchUpdateStatus(ctx, tenant, req.OrderIDs, target)
	out := make([]BatchItemResp, len(results))
	for i, res := range results {
		if res.Err != nil {
			msg := res.Err.Error()
			if statusFor(res.Err) == http.StatusServiceUnavailable {
				msg = msgUnavailable
			}
			out[i] = BatchItemResp{OrderID: res.OrderID, Error: msg}
			continue
		}
		h.invalidate(ctx, tenant, res.OrderID)
		out[i] = BatchItemResp{OrderID: res.OrderID, OK: true, Status: res.Order.Status}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

func (h *OrdersHandler) invalidate(ctx context.Context, tenant, id string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx, tenant, id); err != nil {
		h.Log.Warn().Err(err).Str("order_id", id).Msg("status cache invalidate failed")
	}
}
