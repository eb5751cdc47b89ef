package models

import (
	"time"
)

// EventTicketConfiguration is one immutable version of an event's ticket catalog.
type EventTicketConfiguration struct {
	EventID            string       `json:"event_id"`
	Version            int          `json:"version"`
	TicketTypes        []TicketType `json:"ticket_types"`
	SalesStartDate     time.Time    `json:"sales_start_date"`
	SalesEndDate       time.Time    `json:"sales_end_date"`
	MaxTicketsPerOrder int          `json:"max_tickets_per_order"`
	RefundPolicy       string       `json:"refund_policy,omitempty"`
	Terms              string       `json:"terms,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// SalesOpen reports whether asOf falls inside [SalesStartDate, SalesEndDate).
func (c *EventTicketConfiguration) SalesOpen(asOf time.Time) bool {
	return !asOf.Before(c.SalesStartDate) && asOf.Before(c.SalesEndDate)
}

func (c *EventTicketConfiguration) TicketType(id string) (TicketType, bool) {
	for _, tt := range c.TicketTypes {
		if tt.ID == id {
			return tt, true
		}
	}
	return TicketType{}, false
}

// Listed returns the ticket types still offered for sale.
func (c *EventTicketConfiguration) Listed() []TicketType {
	listed := make([]TicketType, 0, len(c.TicketTypes))
	for _, tt := range c.TicketTypes {
		if tt.Listable() {
			listed = append(listed, tt)
		}
	}
	return listed
}

func (c *EventTicketConfiguration) Clone() *EventTicketConfiguration {
	if c == nil {
		return nil
	}
	clone := *c
	clone.TicketTypes = make([]TicketType, len(c.TicketTypes))
	for i, tt := range c.TicketTypes {
		clone.TicketTypes[i] = tt.Clone()
	}
	return &clone
}
