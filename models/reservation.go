package models

import (
	"time"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationPaid      ReservationStatus = "paid"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCheckedIn ReservationStatus = "checked_in"
)

// CountsAsRevenue reports whether a reservation in this status contributes to revenue.
func (s ReservationStatus) CountsAsRevenue() bool {
	return s == ReservationConfirmed || s == ReservationPaid
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type ReservationLine struct {
	TicketTypeID   string         `json:"ticket_type_id"`
	TicketTypeName string         `json:"ticket_type_name"`
	Category       TicketCategory `json:"category"`
	Quantity       int            `json:"quantity"`
	UnitPrice      Money          `json:"unit_price"`
	LineTotal      Money          `json:"line_total"`
	GuestNames     []string       `json:"guest_names,omitempty"`
}

type Reservation struct {
	ID              string            `json:"id"`
	EventID         string            `json:"event_id"`
	Code            string            `json:"code"`
	Lines           []ReservationLine `json:"lines"`
	TotalAmount     Money             `json:"total_amount"`
	Status          ReservationStatus `json:"status"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	Contact         ContactInfo       `json:"contact"`
	SpecialRequests string            `json:"special_requests,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	CheckedInAt     *time.Time        `json:"checked_in_at,omitempty"`
}

func (r *Reservation) TicketCount() int {
	total := 0
	for _, line := range r.Lines {
		total += line.Quantity
	}
	return total
}

// HoldsInventory reports whether the reservation still occupies ledger capacity.
func (r *Reservation) HoldsInventory() bool {
	return r.Status != ReservationCancelled
}

func (r *Reservation) Clone() *Reservation {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Lines = make([]ReservationLine, len(r.Lines))
	for i, line := range r.Lines {
		clone.Lines[i] = line
		if line.GuestNames != nil {
			clone.Lines[i].GuestNames = append([]string(nil), line.GuestNames...)
		}
	}
	if r.CancelledAt != nil {
		t := *r.CancelledAt
		clone.CancelledAt = &t
	}
	if r.CheckedInAt != nil {
		t := *r.CheckedInAt
		clone.CheckedInAt = &t
	}
	return &clone
}
