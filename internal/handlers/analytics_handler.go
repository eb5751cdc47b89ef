package handlers

import (
	"net/http"

	"ticket-engine/internal/services"

	"github.com/pocketbase/pocketbase/core"
)

type AnalyticsHandler struct {
	analytics *services.AnalyticsService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// GetAnalytics - Sales rollup for ?event_id=, or for all events
func (h *AnalyticsHandler) GetAnalytics(e *core.RequestEvent) error {
	snap, err := h.analytics.GetAnalytics(e.Request.Context(), e.Request.URL.Query().Get("event_id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, snap)
}
