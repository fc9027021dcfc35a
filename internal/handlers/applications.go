package handlers

import (
	"net/http"
	"strings"

	"github.com/restitch/restitch/internal/db"
	"github.com/restitch/restitch/internal/models"
	"github.com/restitch/restitch/internal/services"
)

func (h *Handlers) ApplyDesigner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var input services.ApplyDesignerInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	app, err := h.applications.ApplyDesigner(ctx, principalFromRequest(r), input)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, app)
}

func (h *Handlers) AdminApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, limit, err := pagination(r)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	apps, err := h.dashboard.AdminApplications(ctx, principalFromRequest(r), db.ApplicationFilter{
		Status: models.ApplicationStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, apps)
}

// ReviewDesignerApplication approves or rejects an application. Approved
// applicants pick up the designer role with their next token.
func (h *Handlers) ReviewDesignerApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appID, err := pathID(r, "id")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	var input services.ReviewApplicationInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.writeError(ctx, w, err)
		return
	}

	app, err := h.applications.ReviewDesignerApplication(ctx, principalFromRequest(r), appID, input)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, app)
}
