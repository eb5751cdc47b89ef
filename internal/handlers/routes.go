package handlers

import (
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
)

// RegisterRoutes mounts the API. createLimit, when set, guards reservation creation.
func RegisterRoutes(r *router.Router[*core.RequestEvent], tickets *TicketHandler, reservations *ReservationHandler, analytics *AnalyticsHandler, createLimit func(e *core.RequestEvent) error) {
	v1 := r.Group("/api/v1")

	// Ticket configuration
	v1.POST("/events/{eventId}/tickets", tickets.ConfigureTickets)
	v1.GET("/events/{eventId}/tickets", tickets.GetTickets)
	v1.GET("/events/{eventId}/availability", tickets.GetAvailability)

	// Reservations
	create := v1.POST("/events/{eventId}/reservations", reservations.CreateReservation)
	if createLimit != nil {
		create.BindFunc(createLimit)
	}
	v1.GET("/reservations/{id}", reservations.GetReservation)
	v1.POST("/reservations/{id}/cancel", reservations.CancelReservation)
	v1.POST("/reservations/{id}/confirm", reservations.ConfirmReservation)
	v1.POST("/reservations/{id}/pay", reservations.MarkPaid)
	v1.POST("/reservations/{id}/payment-failed", reservations.MarkPaymentFailed)
	v1.POST("/reservations/{id}/check-in", reservations.CheckIn)
	v1.GET("/reservations/code/{code}/qr", reservations.GetQRCode)

	// Analytics
	v1.GET("/analytics", analytics.GetAnalytics)
}
