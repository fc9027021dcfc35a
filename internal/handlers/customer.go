package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

func (h *Handlers) CustomerOverview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overview, err := h.dashboard.CustomerOverview(ctx, principalFromRequest(r))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, overview)
}

func (h *Handlers) Rewards(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"rewards": h.rewards.Rewards()})
}

func (h *Handlers) RedeemReward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rewardID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || rewardID <= 0 {
		h.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "Invalid reward id."})
		return
	}

	redemption, err := h.rewards.Redeem(ctx, principalFromRequest(r), rewardID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, redemption)
}

// Track is the public barcode lookup.
func (h *Handlers) Track(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracking, err := h.dashboard.Track(ctx, mux.Vars(r)["barcode"])
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, tracking)
}
