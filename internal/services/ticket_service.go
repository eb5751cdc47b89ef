package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-engine/internal/catalog"
	"ticket-engine/internal/pricing"
	"ticket-engine/internal/status"
	"ticket-engine/models"
)

// ConfigureTicketsRequest carries an organizer's full ticket setup for one
// event: regular tickets, VIP packages, sales window and order rules.
type ConfigureTicketsRequest = catalog.ConfigureInput

type TicketTypeRequest = catalog.TicketTypeInput

type TicketService struct {
	Dependencies
}

func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{Dependencies: deps.withDefaults()}
}

// ConfigureTickets installs a new version of an event's ticket configuration.
// The ledger is reshaped before the version becomes visible, so a capacity
// below tickets already sold leaves the previous version in place.
func (s *TicketService) ConfigureTickets(ctx context.Context, req ConfigureTicketsRequest) (*models.EventTicketConfiguration, error) {
	if err := s.requireEvent(ctx, req.EventID); err != nil {
		return nil, err
	}

	next, previous, err := s.Catalog.Replace(req, s.Clock.Now(), func(next *models.EventTicketConfiguration) error {
		return s.Ledger.Apply(next.EventID, ledgerSpecs(next, nil))
	})
	if err != nil {
		slog.Warn("Ticket configuration rejected", "event_id", req.EventID, "error", err)
		return nil, err
	}

	err = s.guarded(ctx, func(ctx context.Context) error {
		return s.Store.SaveConfiguration(ctx, next)
	})
	if err != nil {
		s.rollback(next, previous)
		slog.Error("Failed to persist ticket configuration", "error", err, "event_id", next.EventID, "version", next.Version)
		return nil, persistenceFailed(err)
	}

	slog.Info("Tickets configured", "event_id", next.EventID, "version", next.Version, "ticket_types", len(next.TicketTypes))
	logNotifyError(s.Notifier.NotifyConfiguration(ctx, next), "event_id", next.EventID)
	return withSold(s.Ledger, next), nil
}

// rollback reinstates previous after next could not be stored. Ticket types
// that only next introduced are retired in the ledger; tickets admitted on
// them in the meantime stay counted until their reservations are cancelled.
func (s *TicketService) rollback(next, previous *models.EventTicketConfiguration) {
	if !s.Catalog.Revert(next.EventID, next.Version, previous) {
		slog.Warn("Configuration changed concurrently, skipping rollback", "event_id", next.EventID, "version", next.Version)
		return
	}

	restore := &models.EventTicketConfiguration{EventID: next.EventID}
	if previous != nil {
		restore = previous.Clone()
	}
	for _, tt := range next.TicketTypes {
		if _, ok := restore.TicketType(tt.ID); ok {
			continue
		}
		retired := tt.Clone()
		retired.Retired = true
		retired.IsActive = false
		restore.TicketTypes = append(restore.TicketTypes, retired)
	}
	if err := s.Ledger.Apply(restore.EventID, ledgerSpecs(restore, nil)); err != nil {
		slog.Error("Failed to restore ledger after rollback", "error", err, "event_id", restore.EventID)
	}
}

// GetConfiguration returns the current configuration with sold counts.
func (s *TicketService) GetConfiguration(ctx context.Context, eventID string) (*models.EventTicketConfiguration, error) {
	cfg, err := s.Catalog.Get(eventID)
	if err != nil {
		return nil, status.Reject(status.ErrTicketingNotConfigured, "")
	}
	return withSold(s.Ledger, cfg), nil
}

type TicketAvailability struct {
	TicketTypeID string                `json:"ticket_type_id"`
	Name         string                `json:"name"`
	Category     models.TicketCategory `json:"category"`
	Capacity     int                   `json:"capacity"`
	Sold         int                   `json:"sold"`
	Remaining    int                   `json:"remaining"`
	IsActive     bool                  `json:"is_active"`
	Benefits     []string              `json:"benefits,omitempty"`
	Price        pricing.Quote         `json:"price"`
}

type Availability struct {
	EventID            string               `json:"event_id"`
	Version            int                  `json:"version"`
	AsOf               time.Time            `json:"as_of"`
	SalesOpen          bool                 `json:"sales_open"`
	SalesStartDate     time.Time            `json:"sales_start_date"`
	SalesEndDate       time.Time            `json:"sales_end_date"`
	MaxTicketsPerOrder int                  `json:"max_tickets_per_order"`
	TicketTypes        []TicketAvailability `json:"ticket_types"`
}

// GetAvailability lists every sellable ticket type with what is left and the
// single-ticket price at asOf. A zero asOf means now.
func (s *TicketService) GetAvailability(ctx context.Context, eventID string, asOf time.Time) (*Availability, error) {
	if asOf.IsZero() {
		asOf = s.Clock.Now()
	}
	cfg, err := s.Catalog.Get(eventID)
	if err != nil {
		return nil, status.Reject(status.ErrTicketingNotConfigured, "")
	}

	positions := make(map[string]int)
	for _, p := range s.Ledger.Snapshot(eventID) {
		positions[p.Key.TicketTypeID] = p.Sold
	}

	av := &Availability{
		EventID:            cfg.EventID,
		Version:            cfg.Version,
		AsOf:               asOf,
		SalesOpen:          cfg.SalesOpen(asOf),
		SalesStartDate:     cfg.SalesStartDate,
		SalesEndDate:       cfg.SalesEndDate,
		MaxTicketsPerOrder: cfg.MaxTicketsPerOrder,
		TicketTypes:        make([]TicketAvailability, 0, len(cfg.TicketTypes)),
	}
	for _, tt := range cfg.Listed() {
		tt.CurrentSold = positions[tt.ID]
		av.TicketTypes = append(av.TicketTypes, TicketAvailability{
			TicketTypeID: tt.ID,
			Name:         tt.Name,
			Category:     tt.Category,
			Capacity:     tt.MaxQuantity,
			Sold:         tt.CurrentSold,
			Remaining:    tt.Remaining(),
			IsActive:     tt.IsActive,
			Benefits:     tt.Benefits,
			Price:        pricing.Resolve(tt, 1, asOf),
		})
	}
	return av, nil
}

// RestoreInventory rebuilds the catalog and ledger from the store. Sold
// counts are recomputed from reservations that still hold tickets. Events
// whose stored capacity no longer covers their reservations are skipped and
// reported in the returned error.
func (s *TicketService) RestoreInventory(ctx context.Context) error {
	configs, err := s.Store.ListConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("load configurations: %w", err)
	}
	reservations, err := s.Store.ListReservations(ctx, "")
	if err != nil {
		return fmt.Errorf("load reservations: %w", err)
	}

	held := heldQuantities(reservations)
	var errs []error
	for _, cfg := range configs {
		specs := ledgerSpecs(cfg, held)
		for _, tt := range cfg.TicketTypes {
			delete(held, ledgerKey(cfg.EventID, tt.ID))
		}
		if err := s.Ledger.Apply(cfg.EventID, specs); err != nil {
			slog.Error("Failed to restore event inventory", "error", err, "event_id", cfg.EventID)
			errs = append(errs, fmt.Errorf("restore %s: %w", cfg.EventID, err))
			continue
		}
		s.Catalog.Restore(cfg)
	}
	for key, quantity := range held {
		slog.Warn("Reservations reference an unknown ticket type", "event_id", key.EventID, "ticket_type_id", key.TicketTypeID, "quantity", quantity)
	}

	slog.Info("Inventory restored", "events", len(configs)-len(errs), "reservations", len(reservations))
	return errors.Join(errs...)
}
