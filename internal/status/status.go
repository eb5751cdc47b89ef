package status

import (
	"errors"
	"fmt"
)

var (
	ErrSalesNotStarted       = errors.New("reservation: sales have not started")
	ErrSalesEnded            = errors.New("reservation: sales have ended")
	ErrOrderTooLarge         = errors.New("reservation: order exceeds the per-order ticket limit")
	ErrUnknownTicketType     = errors.New("reservation: unknown ticket type")
	ErrTicketTypeInactive    = errors.New("reservation: ticket type is not on sale")
	ErrGuestNamesRequired    = errors.New("reservation: a guest name is required for every vip ticket")
	ErrInsufficientInventory = errors.New("inventory: insufficient inventory")
	ErrReservationNotFound   = errors.New("reservation: reservation not found")

	ErrEventNotFound           = errors.New("event: event not found")
	ErrTicketingNotConfigured  = errors.New("catalog: ticketing is not configured for this event")
	ErrEmptyOrder              = errors.New("reservation: order has no ticket lines")
	ErrInvalidQuantity         = errors.New("reservation: quantity must be at least 1")
	ErrInvalidConfiguration    = errors.New("catalog: invalid ticket configuration")
	ErrCapacityBelowSold       = errors.New("inventory: capacity is below tickets already sold")
	ErrInvalidStatusTransition = errors.New("reservation: invalid status transition")
	ErrDuplicateCode           = errors.New("reservation: reservation code already in use")
	ErrPersistenceFailed       = errors.New("store: persistence failed")
)

// RejectionError is returned for every refused reservation. It unwraps to
// one of the sentinel reasons above so callers can switch with errors.Is.
type RejectionError struct {
	Reason       error
	TicketTypeID string
	Remaining    int
	Detail       string
}

func Reject(reason error, ticketTypeID string) *RejectionError {
	return &RejectionError{Reason: reason, TicketTypeID: ticketTypeID}
}

func (e *RejectionError) Error() string {
	msg := e.Reason.Error()
	switch {
	case errors.Is(e.Reason, ErrInsufficientInventory):
		if e.Remaining == 1 {
			msg = fmt.Sprintf("%s: only 1 ticket remains for %s", msg, e.TicketTypeID)
		} else {
			msg = fmt.Sprintf("%s: only %d tickets remain for %s", msg, e.Remaining, e.TicketTypeID)
		}
	case e.TicketTypeID != "":
		msg = fmt.Sprintf("%s: %s", msg, e.TicketTypeID)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	return msg
}

func (e *RejectionError) Unwrap() error {
	return e.Reason
}

// ReasonCode is the stable machine-readable name of a rejection, used on the wire.
func ReasonCode(err error) string {
	for code, sentinel := range reasonCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return "internal_error"
}

var reasonCodes = map[string]error{
	"sales_not_started":         ErrSalesNotStarted,
	"sales_ended":               ErrSalesEnded,
	"order_too_large":           ErrOrderTooLarge,
	"unknown_ticket_type":       ErrUnknownTicketType,
	"ticket_type_inactive":      ErrTicketTypeInactive,
	"guest_names_required":      ErrGuestNamesRequired,
	"insufficient_inventory":    ErrInsufficientInventory,
	"reservation_not_found":     ErrReservationNotFound,
	"event_not_found":           ErrEventNotFound,
	"ticketing_not_configured":  ErrTicketingNotConfigured,
	"empty_order":               ErrEmptyOrder,
	"invalid_quantity":          ErrInvalidQuantity,
	"invalid_configuration":     ErrInvalidConfiguration,
	"capacity_below_sold":       ErrCapacityBelowSold,
	"invalid_status_transition": ErrInvalidStatusTransition,
	"duplicate_code":            ErrDuplicateCode,
	"persistence_failed":        ErrPersistenceFailed,
}
