package handlers

import (
	"net/http"
)

func (h *Handlers) DesignerOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	queue, err := h.dashboard.DesignerQueue(ctx, principalFromRequest(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, queue)
}

func (h *Handlers) AcceptOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orders.AcceptOrder(ctx, principalFromRequest(r), orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) RejectOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orders.RejectOrder(ctx, principalFromRequest(r), orderID, req.Message)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	order, err := h.orders.CompleteOrder(ctx, principalFromRequest(r), orderID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, order)
}
