package handlers

import (
	"net/http"

	"github.com/restitch/restitch/internal/services"
)

func (h *Handlers) SchedulePickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input services.SchedulePickupInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	scheduled, err := h.pickups.SchedulePickup(ctx, principalFromRequest(r), input)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, scheduled)
}

func (h *Handlers) AcceptPickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pickupID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	accepted, err := h.pickups.AcceptPickup(ctx, principalFromRequest(r), pickupID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, accepted)
}

func (h *Handlers) RejectPickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pickupID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	pickup, err := h.pickups.RejectPickup(ctx, principalFromRequest(r), pickupID, req.Message)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, pickup)
}

func (h *Handlers) MarkPickedUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pickupID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	pickup, err := h.pickups.MarkPickedUp(ctx, principalFromRequest(r), pickupID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, pickup)
}

func (h *Handlers) CompletePickup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pickupID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	pickup, err := h.pickups.CompletePickup(ctx, principalFromRequest(r), pickupID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, pickup)
}
