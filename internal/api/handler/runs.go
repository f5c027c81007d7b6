package handler

import (
	"net/http"
	"strconv"

	mw "github.com/sajagana/pcvgate/internal/api/middleware"
	"github.com/sajagana/pcvgate/internal/api/response"
	"github.com/sajagana/pcvgate/internal/store"
	"github.com/sajagana/pcvgate/pkg/models"
)

// RunsHandler serves the invocation audit trail.
type RunsHandler struct {
	store store.Store
}

func NewRunsHandler(s store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

// List handles GET /api/v1/runs. Results are scoped to the caller's tenant
// and ordered newest first.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant context", nil)
		return
	}

	filter := store.RunFilter{
		TenantID:      tenantID,
		InsightsGroup: r.URL.Query().Get("group"),
		JobName:       r.URL.Query().Get("name"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer", nil)
			return
		}
		filter.Limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs", nil)
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	response.JSON(w, runs)
}
