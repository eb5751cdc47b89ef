package services

import (
	"context"
	"time"

	"ticket-engine/internal/ledger"
	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/shopspring/decimal"
)

type AnalyticsService struct {
	Dependencies
}

func NewAnalyticsService(deps Dependencies) *AnalyticsService {
	return &AnalyticsService{Dependencies: deps.withDefaults()}
}

// GetAnalytics rolls up sales for one event, or for every event when eventID
// is empty. Ticket counts and revenue both come from one reservation
// listing; the ledger only supplies capacities. Nothing is modified.
func (s *AnalyticsService) GetAnalytics(ctx context.Context, eventID string) (*models.AnalyticsSnapshot, error) {
	var configs []*models.EventTicketConfiguration
	if eventID == "" {
		configs = s.Catalog.List()
	} else {
		cfg, err := s.Catalog.Get(eventID)
		if err != nil {
			return nil, status.Reject(status.ErrTicketingNotConfigured, "")
		}
		configs = []*models.EventTicketConfiguration{cfg}
	}

	positions := s.Ledger.Snapshot(eventID)

	var reservations []*models.Reservation
	err := s.guarded(ctx, func(ctx context.Context) error {
		var err error
		reservations, err = s.Store.ListReservations(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, persistenceFailed(err)
	}

	return Aggregate(eventID, s.Clock.Now(), configs, positions, reservations), nil
}

// Aggregate computes an analytics snapshot from already loaded state.
// Sold counts are taken from reservations that still hold inventory, not
// from positions, so they always agree with the revenue figures.
func Aggregate(eventID string, at time.Time, configs []*models.EventTicketConfiguration, positions []ledger.Position, reservations []*models.Reservation) *models.AnalyticsSnapshot {
	snap := &models.AnalyticsSnapshot{
		EventID:                eventID,
		GeneratedAt:            at,
		StatusBreakdown:        make(map[models.ReservationStatus]int),
		PaymentStatusBreakdown: make(map[models.PaymentStatus]int),
		TicketsSoldByCategory:  make(map[models.TicketCategory]int),
		TicketTypes:            make([]models.TicketTypeStats, 0, len(positions)),
	}

	types := make(map[ledger.Key]models.TicketType)
	for _, cfg := range configs {
		for _, tt := range cfg.TicketTypes {
			types[ledgerKey(cfg.EventID, tt.ID)] = tt
		}
	}

	held := heldQuantities(reservations)
	revenueByType := make(map[ledger.Key]models.Money)
	for _, r := range reservations {
		snap.ReservationCount++
		snap.StatusBreakdown[r.Status]++
		snap.PaymentStatusBreakdown[r.PaymentStatus]++

		if !r.Status.CountsAsRevenue() {
			continue
		}
		snap.RevenueReservationCount++
		snap.TotalRevenue += r.TotalAmount
		for _, line := range r.Lines {
			revenueByType[ledgerKey(r.EventID, line.TicketTypeID)] += line.LineTotal
			if line.Category == models.CategoryVIP {
				snap.VIPRevenue += line.LineTotal
			} else {
				snap.RegularRevenue += line.LineTotal
			}
		}
	}

	for _, p := range positions {
		tt := types[p.Key]
		sold := held[p.Key]
		capacity := p.Capacity
		remaining := 0
		switch {
		case p.Retired:
			capacity = sold
		case capacity > sold:
			remaining = capacity - sold
		}

		snap.TicketsSold += sold
		snap.TotalCapacity += capacity
		if tt.Category != "" {
			snap.TicketsSoldByCategory[tt.Category] += sold
		}
		snap.TicketTypes = append(snap.TicketTypes, models.TicketTypeStats{
			EventID:      p.Key.EventID,
			TicketTypeID: p.Key.TicketTypeID,
			Name:         tt.Name,
			Category:     tt.Category,
			Capacity:     capacity,
			Sold:         sold,
			Remaining:    remaining,
			Revenue:      revenueByType[p.Key],
			Retired:      p.Retired,
		})
	}

	if snap.TotalCapacity > 0 {
		snap.SellThrough = decimal.NewFromInt(int64(snap.TicketsSold)).
			Div(decimal.NewFromInt(int64(snap.TotalCapacity))).
			Round(4).
			InexactFloat64()
	}
	if snap.RevenueReservationCount > 0 {
		snap.AverageOrderValue = models.MoneyFromDecimal(
			snap.TotalRevenue.Decimal().Div(decimal.NewFromInt(int64(snap.RevenueReservationCount))),
		)
	}
	return snap
}
