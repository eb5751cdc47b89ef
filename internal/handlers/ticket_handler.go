package handlers

import (
	"net/http"
	"time"

	"ticket-engine/internal/services"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type TicketHandler struct {
	tickets *services.TicketService
}

func NewTicketHandler(tickets *services.TicketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// ConfigureTickets - Replace the ticket configuration of an event
func (h *TicketHandler) ConfigureTickets(e *core.RequestEvent) error {
	var req services.ConfigureTicketsRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.EventID = e.Request.PathValue("eventId")

	cfg, err := h.tickets.ConfigureTickets(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, cfg)
}

func (h *TicketHandler) GetTickets(e *core.RequestEvent) error {
	cfg, err := h.tickets.GetConfiguration(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, cfg)
}

// GetAvailability - Remaining tickets and current prices, optionally at ?as_of=RFC3339
func (h *TicketHandler) GetAvailability(e *core.RequestEvent) error {
	asOf, err := ParseAsOf(e.Request.URL.Query().Get("as_of"))
	if err != nil {
		return apis.NewBadRequestError("as_of must be an RFC 3339 timestamp", err)
	}

	av, err := h.tickets.GetAvailability(e.Request.Context(), e.Request.PathValue("eventId"), asOf)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, av)
}

// ParseAsOf parses an optional RFC 3339 timestamp. Empty means now.
func ParseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
