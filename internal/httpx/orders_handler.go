package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cahyo88/go-tenant-payments/internal/money"
	"github.com/cahyo88/go-tenant-payments/internal/orders"
)

type OrdersHandler struct {
	Repo    *orders.Repo
	Service *orders.Service
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(RequireTenant)
		r.Post("/orders", h.create)
		r.Get("/orders/{orderID}", h.get)
		r.Post("/orders/{orderID}/status", h.transition)
		r.Get("/orders/{orderID}/history", h.history)
	})
}

type createOrderReq struct {
	OrderNumber     string  `json:"order_number"`
	CustomerEmail   string  `json:"customer_email"`
	EstimatedCost   float64 `json:"estimated_cost"`
	Deposit         float64 `json:"deposit"`
	NotifyOnPlaced  bool    `json:"notify_on_placed"`
	NotifyOnArrival bool    `json:"notify_on_arrival"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "unreadable body")
		return
	}
	estimated, err := money.ToMinorUnits(req.EstimatedCost)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "estimated_cost: "+err.Error())
		return
	}
	deposit, err := money.ToMinorUnits(req.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", "deposit: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	o, err := h.Repo.Create(ctx, orders.CreateInput{
		TenantID:           TenantFrom(r),
		OrderNumber:        req.OrderNumber,
		CustomerEmail:      req.CustomerEmail,
		EstimatedCostCents: estimated,
		DepositCents:       deposit,
		NotifyOnPlaced:     req.NotifyOnPlaced,
		NotifyOnArrival:    req.NotifyOnArrival,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "create_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, orderView(o))
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Repo.Get(ctx, TenantFrom(r), chi.URLParam(r, "orderID"))
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orderView(o))
}

type transitionReq struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func (h *OrdersHandler) transition(w http.ResponseWriter, r *http.Request) {
	var req transitionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "unreadable body")
		return
	}
	to := orders.Status(req.Status)
	if !orders.Valid(to) {
		writeError(w, http.StatusBadRequest, "invalid_status", "unknown order status "+req.Status)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	o, err := h.Service.Transition(ctx, TenantFrom(r), chi.URLParam(r, "orderID"), orders.TransitionInput{
		NewStatus: to,
		ActorID:   r.Header.Get("X-Actor-ID"),
		Reason:    req.Reason,
		Notes:     req.Notes,
	}, r.Header.Get("X-Request-Id"))
	if errors.Is(err, orders.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "transition_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, orderView(o))
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	hist, err := h.Repo.History(ctx, TenantFrom(r), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}
	out := make([]map[string]any, 0, len(hist))
	for _, ch := range hist {
		out = append(out, map[string]any{
			"previous_status": ch.PreviousStatus,
			"new_status":      ch.NewStatus,
			"reason":          ch.Reason,
			"notes":           ch.Notes,
			"changed_by":      ch.ChangedBy,
			"changed_at":      ch.ChangedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func orderView(o orders.Order) map[string]any {
	return map[string]any{
		"id":                o.ID,
		"order_number":      o.OrderNumber,
		"status":            o.Status,
		"estimated_cents":   o.EstimatedCostCents,
		"actual_cost_cents": o.ActualCostCents,
		"deposit_cents":     o.DepositCents,
		"paid_cents":        o.PaidCents,
		"notify_on_placed":  o.NotifyOnPlaced,
		"notify_on_arrival": o.NotifyOnArrival,
		"updated_at":        o.UpdatedAt,
	}
}
