package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ticket-engine/internal/catalog"
	"ticket-engine/internal/events"
	"ticket-engine/internal/ledger"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/status"
	"ticket-engine/internal/store"
	"ticket-engine/models"
	"ticket-engine/monitoring"
	"ticket-engine/utils"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

const defaultPersistenceTimeout = 5 * time.Second

// Dependencies are shared by the ticket, reservation and analytics services.
// Catalog, Ledger, Store and Events are required.
type Dependencies struct {
	Catalog  *catalog.Catalog
	Ledger   *ledger.Ledger
	Store    store.Store
	Events   events.Directory
	Notifier notify.Notifier
	Monitor  *monitoring.Monitor
	Breaker  *utils.CircuitBreaker
	Clock    Clock

	// PersistenceTimeout bounds every store call made after admission.
	PersistenceTimeout time.Duration
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Breaker == nil {
		d.Breaker = utils.NewCircuitBreaker("store")
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	if d.PersistenceTimeout <= 0 {
		d.PersistenceTimeout = defaultPersistenceTimeout
	}
	return d
}

// guarded runs fn against the store through the circuit breaker with the
// persistence timeout applied. Domain errors returned by fn (not found,
// duplicate code, refused transitions) pass through without counting as
// store failures.
func (d Dependencies) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.PersistenceTimeout)
	defer cancel()

	var domainErr error
	_, err := d.Breaker.Execute(ctx, func() (any, error) {
		err := fn(ctx)
		if isDomainError(err) {
			domainErr = err
			return nil, nil
		}
		return nil, err
	})
	if err != nil {
		return err
	}
	return domainErr
}

func isDomainError(err error) bool {
	if err == nil {
		return false
	}
	var rejection *status.RejectionError
	return errors.As(err, &rejection) ||
		errors.Is(err, status.ErrReservationNotFound) ||
		errors.Is(err, status.ErrDuplicateCode) ||
		errors.Is(err, status.ErrInvalidStatusTransition)
}

func persistenceFailed(err error) error {
	return fmt.Errorf("%w: %v", status.ErrPersistenceFailed, err)
}

// requireEvent resolves the event through the directory.
func (d Dependencies) requireEvent(ctx context.Context, eventID string) error {
	exists, err := d.Events.EventExists(ctx, eventID)
	if err != nil {
		return fmt.Errorf("lookup event %s: %w", eventID, err)
	}
	if !exists {
		return status.Reject(status.ErrEventNotFound, "")
	}
	return nil
}

func ledgerKey(eventID, ticketTypeID string) ledger.Key {
	return ledger.Key{EventID: eventID, TicketTypeID: ticketTypeID}
}

// ledgerSpecs describes cfg's ticket types in ledger terms. sold seeds
// entries that do not exist yet and may be nil.
func ledgerSpecs(cfg *models.EventTicketConfiguration, sold map[ledger.Key]int) []ledger.Spec {
	specs := make([]ledger.Spec, 0, len(cfg.TicketTypes))
	for _, tt := range cfg.TicketTypes {
		specs = append(specs, ledger.Spec{
			TicketTypeID: tt.ID,
			Capacity:     tt.MaxQuantity,
			Active:       tt.IsActive,
			Retired:      tt.Retired,
			Sold:         sold[ledgerKey(cfg.EventID, tt.ID)],
		})
	}
	return specs
}

// withSold fills CurrentSold from the ledger.
func withSold(l *ledger.Ledger, cfg *models.EventTicketConfiguration) *models.EventTicketConfiguration {
	for i, tt := range cfg.TicketTypes {
		if p, ok := l.Position(ledgerKey(cfg.EventID, tt.ID)); ok {
			cfg.TicketTypes[i].CurrentSold = p.Sold
		}
	}
	return cfg
}

func logNotifyError(err error, args ...any) {
	if err != nil {
		slog.Warn("Failed to publish notification", append([]any{"error", err}, args...)...)
	}
}
