// Package pricing computes the effective unit price of a ticket type.
//
// Rules are applied in a fixed order and never stacked:
//  1. an early-bird price replaces the base price while asOf <= deadline;
//  2. VIP ticket types take the single best group discount unlocked by the
//     requested quantity, applied to the price from step 1;
//  3. the result is rounded half-up to the minor currency unit.
package pricing

import (
	"time"

	"ticket-engine/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Quote struct {
	UnitPrice       models.Money    `json:"unit_price"`
	BasePrice       models.Money    `json:"base_price"`
	EarlyBird       bool            `json:"early_bird"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

func (q Quote) Discounted() bool {
	return q.DiscountPercent.IsPositive()
}

// ResolvePrice returns the unit price for quantity tickets of tt bought at asOf.
// Callers must have rejected inactive types and non-positive quantities.
func ResolvePrice(tt models.TicketType, quantity int, asOf time.Time) models.Money {
	return Resolve(tt, quantity, asOf).UnitPrice
}

func Resolve(tt models.TicketType, quantity int, asOf time.Time) Quote {
	q := Quote{BasePrice: tt.Price, UnitPrice: tt.Price}

	if tt.EarlyBirdPrice != nil && tt.EarlyBirdDeadline != nil && !asOf.After(*tt.EarlyBirdDeadline) {
		q.UnitPrice = *tt.EarlyBirdPrice
		q.EarlyBird = true
	}

	if !tt.IsVIP() {
		return q
	}

	best, ok := BestGroupDiscount(tt.GroupDiscounts, quantity)
	if !ok {
		return q
	}

	factor := hundred.Sub(best.DiscountPercent).Div(hundred)
	q.UnitPrice = models.Money(decimal.NewFromInt(int64(q.UnitPrice)).Mul(factor).Round(0).IntPart())
	q.DiscountPercent = best.DiscountPercent
	return q
}

// BestGroupDiscount picks the highest percentage among discounts unlocked by quantity.
func BestGroupDiscount(discounts []models.GroupDiscount, quantity int) (models.GroupDiscount, bool) {
	var (
		best  models.GroupDiscount
		found bool
	)
	for _, d := range discounts {
		if d.MinQuantity > quantity {
			continue
		}
		if !found || d.DiscountPercent.GreaterThan(best.DiscountPercent) {
			best = d
			found = true
		}
	}
	return best, found
}
