package handlers

import (
	"net/http"
	"strings"

	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
	"github.com/restitch/restitch/internal/services"
)

func (h *Handlers) AdminOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, limit, err := pagination(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	orders, err := h.dashboard.AdminOrders(ctx, principalFromRequest(r), db.OrderFilter{
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, orders)
}

func (h *Handlers) AdminPickups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, limit, err := pagination(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	pickups, err := h.dashboard.AdminPickups(ctx, principalFromRequest(r), db.PickupFilter{
		Status: models.PickupStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, pickups)
}

// OrderDetail serves the order view for admins, the owning customer and the
// assigned designer.
func (h *Handlers) OrderDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	detail, err := h.dashboard.OrderDetail(ctx, principalFromRequest(r), orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, detail)
}

func (h *Handlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var update services.OrderUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateOrder(ctx, principalFromRequest(r), orderID, update)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orders.ApproveOrder(ctx, principalFromRequest(r), orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

type fulfillmentRequest struct {
	Stage models.FulfillmentStage `json:"stage"`
}

func (h *Handlers) AdvanceFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req fulfillmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orders.AdvanceFulfillment(ctx, principalFromRequest(r), orderID, req.Stage)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) ApproveForStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	listing, err := h.orders.ApproveForStore(ctx, principalFromRequest(r), orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, listing)
}

func pagination(r *http.Request) (page, limit int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if limit, err = queryInt(r, "limit"); err != nil {
		return 0, 0, err
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit, nil
}
