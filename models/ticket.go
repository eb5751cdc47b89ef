package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketCategory string

const (
	CategoryRegular TicketCategory = "regular"
	CategoryVIP     TicketCategory = "vip"
)

type GroupDiscount struct {
	MinQuantity     int             `json:"min_quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

type TicketType struct {
	ID                string          `json:"id"`
	EventID           string          `json:"event_id"`
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Category          TicketCategory  `json:"category"`
	Price             Money           `json:"price"`
	MaxQuantity       int             `json:"max_quantity"`
	CurrentSold       int             `json:"current_sold"` // projection of the inventory ledger
	IsActive          bool            `json:"is_active"`
	EarlyBirdPrice    *Money          `json:"early_bird_price,omitempty"`
	EarlyBirdDeadline *time.Time      `json:"early_bird_deadline,omitempty"`
	GroupDiscounts    []GroupDiscount `json:"group_discounts,omitempty"`
	Benefits          []string        `json:"benefits,omitempty"`
	Priority          int             `json:"priority"`
	Retired           bool            `json:"retired,omitempty"` // dropped by a later configuration, kept for existing reservations
}

func (t TicketType) IsVIP() bool {
	return t.Category == CategoryVIP
}

// Listable reports whether the type can be offered for new sales.
func (t TicketType) Listable() bool {
	return !t.Retired
}

func (t TicketType) Remaining() int {
	if t.Retired || t.CurrentSold >= t.MaxQuantity {
		return 0
	}
	return t.MaxQuantity - t.CurrentSold
}

func (t TicketType) Clone() TicketType {
	c := t
	if t.EarlyBirdPrice != nil {
		p := *t.EarlyBirdPrice
		c.EarlyBirdPrice = &p
	}
	if t.EarlyBirdDeadline != nil {
		d := *t.EarlyBirdDeadline
		c.EarlyBirdDeadline = &d
	}
	if t.GroupDiscounts != nil {
		c.GroupDiscounts = append([]GroupDiscount(nil), t.GroupDiscounts...)
	}
	if t.Benefits != nil {
		c.Benefits = append([]string(nil), t.Benefits...)
	}
	return c
}
