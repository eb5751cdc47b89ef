package handlers

import (
	"context"
	"net/http"
	"strconv"

	"ticket-engine/internal/services"
	"ticket-engine/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

const maxQRSize = 1024

type ReservationHandler struct {
	reservations *services.ReservationService
}

func NewReservationHandler(reservations *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservations: reservations}
}

func (h *ReservationHandler) CreateReservation(e *core.RequestEvent) error {
	var req services.CreateReservationRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.EventID = e.Request.PathValue("eventId")

	r, err := h.reservations.CreateReservation(e.Request.Context(), req)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusCreated, r)
}

func (h *ReservationHandler) GetReservation(e *core.RequestEvent) error {
	r, err := h.reservations.GetReservation(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, r)
}

func (h *ReservationHandler) CancelReservation(e *core.RequestEvent) error {
	return h.apply(e, h.reservations.CancelReservation)
}

func (h *ReservationHandler) ConfirmReservation(e *core.RequestEvent) error {
	return h.apply(e, h.reservations.ConfirmReservation)
}

func (h *ReservationHandler) MarkPaid(e *core.RequestEvent) error {
	return h.apply(e, h.reservations.MarkPaid)
}

func (h *ReservationHandler) MarkPaymentFailed(e *core.RequestEvent) error {
	return h.apply(e, h.reservations.MarkPaymentFailed)
}

func (h *ReservationHandler) CheckIn(e *core.RequestEvent) error {
	return h.apply(e, h.reservations.CheckIn)
}

func (h *ReservationHandler) apply(e *core.RequestEvent, op func(ctx context.Context, id string) (*models.Reservation, error)) error {
	r, err := op(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, r)
}

// GetQRCode - PNG of the reservation code, ?size= in pixels
func (h *ReservationHandler) GetQRCode(e *core.RequestEvent) error {
	size := 0
	if raw := e.Request.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > maxQRSize {
			return apis.NewBadRequestError("size must be between 64 and 1024", err)
		}
		size = n
	}

	png, err := h.reservations.ReservationQRCode(e.Request.Context(), e.Request.PathValue("code"), size)
	if err != nil {
		return respondError(e, err)
	}
	return e.Blob(http.StatusOK, "image/png", png)
}
