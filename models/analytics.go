package models

import (
	"time"
)

type TicketTypeStats struct {
	EventID      string         `json:"event_id"`
	TicketTypeID string         `json:"ticket_type_id"`
	Name         string         `json:"name"`
	Category     TicketCategory `json:"category"`
	Capacity     int            `json:"capacity"`
	Sold         int            `json:"sold"`
	Remaining    int            `json:"remaining"`
	Revenue      Money          `json:"revenue"`
	Retired      bool           `json:"retired,omitempty"`
}

type AnalyticsSnapshot struct {
	EventID                 string                    `json:"event_id,omitempty"` // empty for all events
	GeneratedAt             time.Time                 `json:"generated_at"`
	TotalRevenue            Money                     `json:"total_revenue"`
	TicketsSold             int                       `json:"tickets_sold"`
	TotalCapacity           int                       `json:"total_capacity"`
	SellThrough             float64                   `json:"sell_through"`
	ReservationCount        int                       `json:"reservation_count"`
	RevenueReservationCount int                       `json:"revenue_reservation_count"`
	AverageOrderValue       Money                     `json:"average_order_value"`
	StatusBreakdown         map[ReservationStatus]int `json:"status_breakdown"`
	PaymentStatusBreakdown  map[PaymentStatus]int     `json:"payment_status_breakdown"`
	VIPRevenue              Money                     `json:"vip_revenue"`
	RegularRevenue          Money                     `json:"regular_revenue"`
	TicketsSoldByCategory   map[TicketCategory]int    `json:"tickets_sold_by_category"`
	TicketTypes             []TicketTypeStats         `json:"ticket_types"`
}
