// Package store persists ticket configurations and reservations. The engine
// only talks to the Store interface; the in-memory and Redis backends are
// interchangeable.
package store

import (
	"context"

	"ticket-engine/models"
)

// UpdateFunc mutates a reservation in place. Returning changed=false leaves
// the stored record untouched.
type UpdateFunc func(r *models.Reservation) (changed bool, err error)

type Store interface {
	SaveConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error
	ListConfigurations(ctx context.Context) ([]*models.EventTicketConfiguration, error)

	// SaveReservation stores a new reservation. It fails with
	// status.ErrDuplicateCode when the code is already taken.
	SaveReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id string) (*models.Reservation, error)
	GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	// ListReservations returns reservations of one event, or all of them for an empty id.
	ListReservations(ctx context.Context, eventID string) ([]*models.Reservation, error)
	// UpdateReservation applies fn atomically with respect to other updates of the same reservation.
	UpdateReservation(ctx context.Context, id string, fn UpdateFunc) (*models.Reservation, bool, error)
}
