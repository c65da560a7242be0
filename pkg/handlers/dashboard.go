package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdb/askdb-engine/pkg/apperrors"
	"github.com/askdb/askdb-engine/pkg/models"
	"github.com/askdb/askdb-engine/pkg/services"
)

// RefreshRequest is the body of POST /api/dashboard-items/{id}/refresh.
// SQL, when set, overrides Display.SQL.
type RefreshRequest struct {
	SQL              string               `json:"sql,omitempty"`
	Display          models.DisplayConfig `json:"display"`
	ConnectionString string               `json:"connectionString"`
}

// DashboardHandler refreshes saved dashboard items and reports their last results.
type DashboardHandler struct {
	queries services.QueryService
	logger  *zap.Logger
}

// NewDashboardHandler creates a dashboard handler.
func NewDashboardHandler(queries services.QueryService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{
		queries: queries,
		logger:  logger.Named("dashboard-handler"),
	}
}

// RegisterRoutes registers the dashboard item endpoints.
func (h *DashboardHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/dashboard-items/{id}", func(r chi.Router) {
		r.Post("/refresh", h.Refresh)
		r.Get("/executions/latest", h.LatestExecution)
	})
}

// Refresh handles POST /api/dashboard-items/{id}/refresh. A failed query is
// reported as a 200 with status "failed"; the execution record is the result.
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.parseItemID(w, r)
	if !ok {
		return
	}

	var req RefreshRequest
	if !decodeJSONBody(w, r, h.logger, &req) {
		return
	}

	display := req.Display
	if sql := strings.TrimSpace(req.SQL); sql != "" {
		display.SQL = sql
	}

	exec, err := h.queries.RefreshDashboardItem(r.Context(), &models.DashboardItem{ID: itemID, Display: display}, req.ConnectionString)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, exec); err != nil {
		h.logger.Error("Failed to encode execution", zap.Error(err))
	}
}

// LatestExecution handles GET /api/dashboard-items/{id}/executions/latest.
func (h *DashboardHandler) LatestExecution(w http.ResponseWriter, r *http.Request) {
	itemID, ok := h.parseItemID(w, r)
	if !ok {
		return
	}

	exec, err := h.queries.GetLatestExecution(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, exec); err != nil {
		h.logger.Error("Failed to encode execution", zap.Error(err))
	}
}

func (h *DashboardHandler) parseItemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		writeServiceError(w, h.logger, fmt.Errorf("%w: invalid dashboard item id %q", apperrors.ErrInvalidRequest, raw))
		return uuid.Nil, false
	}
	return id, true
}
