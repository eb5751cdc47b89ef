package catalog

import (
	"fmt"
	"strconv"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

type TicketTypeInput struct {
	ID                string                 `json:"id,omitempty" validate:"omitempty,max=64"`
	Name              string                 `json:"name" validate:"required,max=120"`
	Description       string                 `json:"description,omitempty" validate:"max=2000"`
	Price             models.Money           `json:"price" validate:"gte=0"`
	MaxQuantity       int                    `json:"max_quantity" validate:"gte=0"`
	IsActive          *bool                  `json:"is_active,omitempty"`
	EarlyBirdPrice    *models.Money          `json:"early_bird_price,omitempty" validate:"required_with=EarlyBirdDeadline"`
	EarlyBirdDeadline *time.Time             `json:"early_bird_deadline,omitempty" validate:"required_with=EarlyBirdPrice"`
	GroupDiscounts    []models.GroupDiscount `json:"group_discounts,omitempty"`
	Benefits          []string               `json:"benefits,omitempty"`
	Priority          int                    `json:"priority"`
}

// ConfigureInput carries everything needed to (re)configure ticketing for one event.
type ConfigureInput struct {
	EventID            string            `json:"event_id" validate:"required"`
	RegularTickets     []TicketTypeInput `json:"regular_tickets" validate:"dive"`
	VIPPackages        []TicketTypeInput `json:"vip_packages" validate:"dive"`
	SalesStart         time.Time         `json:"sales_start"`
	SalesEnd           time.Time         `json:"sales_end"`
	MaxTicketsPerOrder int               `json:"max_tickets_per_order" validate:"gte=1"`
	RefundPolicy       string            `json:"refund_policy,omitempty"`
	Terms              string            `json:"terms,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", status.ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}

// Validate checks structural constraints with validator tags and the
// cross-field business rules the tags cannot express.
func Validate(in ConfigureInput) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidConfiguration, err)
	}
	if in.SalesStart.IsZero() || in.SalesEnd.IsZero() {
		return invalid("sales window start and end are required")
	}
	if !in.SalesStart.Before(in.SalesEnd) {
		return invalid("sales start %s must be before sales end %s",
			in.SalesStart.Format(time.RFC3339), in.SalesEnd.Format(time.RFC3339))
	}
	if len(in.RegularTickets)+len(in.VIPPackages) == 0 {
		return invalid("at least one ticket type is required")
	}

	for _, tt := range append(append([]TicketTypeInput(nil), in.RegularTickets...), in.VIPPackages...) {
		if err := validateTicketType(tt); err != nil {
			return err
		}
	}
	return nil
}

func validateTicketType(tt TicketTypeInput) error {
	if tt.EarlyBirdPrice != nil {
		if *tt.EarlyBirdPrice < 0 {
			return invalid("%s: early-bird price must not be negative", tt.Name)
		}
		if *tt.EarlyBirdPrice > tt.Price {
			return invalid("%s: early-bird price %s exceeds base price %s", tt.Name, tt.EarlyBirdPrice, tt.Price)
		}
	}

	hundred := decimal.NewFromInt(100)
	for _, d := range tt.GroupDiscounts {
		if d.MinQuantity < 2 {
			return invalid("%s: group discount minimum quantity must be at least 2", tt.Name)
		}
		if !d.DiscountPercent.IsPositive() || d.DiscountPercent.GreaterThanOrEqual(hundred) {
			return invalid("%s: group discount percent %s must be between 0 and 100", tt.Name, d.DiscountPercent)
		}
	}
	return nil
}

// buildTicketTypes turns validated input into ticket types with stable ids.
// Blank ids are derived from the name, so re-sending the same names keeps
// the same identities (and therefore the same sold counts).
func buildTicketTypes(in ConfigureInput) ([]models.TicketType, error) {
	types := make([]models.TicketType, 0, len(in.RegularTickets)+len(in.VIPPackages))
	seen := make(map[string]bool)

	add := func(tt TicketTypeInput, category models.TicketCategory) error {
		id := tt.ID
		if id == "" {
			base := slug.Make(tt.Name)
			if base == "" {
				return invalid("ticket type %q has no usable id", tt.Name)
			}
			id = base
			for n := 2; seen[id]; n++ {
				id = base + "-" + strconv.Itoa(n)
			}
		} else if seen[id] {
			return invalid("duplicate ticket type id %q", id)
		}
		seen[id] = true

		active := true
		if tt.IsActive != nil {
			active = *tt.IsActive
		}

		t := models.TicketType{
			ID:             id,
			EventID:        in.EventID,
			Name:           tt.Name,
			Description:    tt.Description,
			Category:       category,
			Price:          tt.Price,
			MaxQuantity:    tt.MaxQuantity,
			IsActive:       active,
			GroupDiscounts: append([]models.GroupDiscount(nil), tt.GroupDiscounts...),
			Benefits:       append([]string(nil), tt.Benefits...),
			Priority:       tt.Priority,
		}
		if tt.EarlyBirdPrice != nil {
			p, d := *tt.EarlyBirdPrice, *tt.EarlyBirdDeadline
			t.EarlyBirdPrice, t.EarlyBirdDeadline = &p, &d
		}
		types = append(types, t)
		return nil
	}

	for _, tt := range in.RegularTickets {
		if err := add(tt, models.CategoryRegular); err != nil {
			return nil, err
		}
	}
	for _, tt := range in.VIPPackages {
		if err := add(tt, models.CategoryVIP); err != nil {
			return nil, err
		}
	}
	return types, nil
}
