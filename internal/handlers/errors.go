package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"ticket-engine/internal/status"

	"github.com/pocketbase/pocketbase/core"
)

// StatusCode maps engine errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, status.ErrInvalidConfiguration),
		errors.Is(err, status.ErrEmptyOrder),
		errors.Is(err, status.ErrInvalidQuantity),
		errors.Is(err, status.ErrOrderTooLarge),
		errors.Is(err, status.ErrGuestNamesRequired):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrEventNotFound),
		errors.Is(err, status.ErrTicketingNotConfigured),
		errors.Is(err, status.ErrReservationNotFound),
		errors.Is(err, status.ErrUnknownTicketType):
		return http.StatusNotFound
	case errors.Is(err, status.ErrInsufficientInventory),
		errors.Is(err, status.ErrSalesNotStarted),
		errors.Is(err, status.ErrSalesEnded),
		errors.Is(err, status.ErrTicketTypeInactive),
		errors.Is(err, status.ErrCapacityBelowSold),
		errors.Is(err, status.ErrInvalidStatusTransition),
		errors.Is(err, status.ErrDuplicateCode):
		return http.StatusConflict
	case errors.Is(err, status.ErrPersistenceFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorBody is the JSON payload of every failed request.
func ErrorBody(err error) map[string]any {
	code := StatusCode(err)
	body := map[string]any{
		"status":  code,
		"reason":  status.ReasonCode(err),
		"message": err.Error(),
	}
	if code == http.StatusInternalServerError {
		body["message"] = http.StatusText(code)
	}

	var rejection *status.RejectionError
	if errors.As(err, &rejection) {
		if rejection.TicketTypeID != "" {
			body["ticket_type_id"] = rejection.TicketTypeID
		}
		if errors.Is(err, status.ErrInsufficientInventory) {
			body["remaining"] = rejection.Remaining
		}
	}
	return body
}

func respondError(e *core.RequestEvent, err error) error {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "error", err, "method", e.Request.Method, "path", e.Request.URL.Path)
	}
	return e.JSON(code, ErrorBody(err))
}
