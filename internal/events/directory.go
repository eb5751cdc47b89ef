// Package events answers whether an event exists. Event records themselves
// are managed elsewhere; ticketing only needs the lookup.
package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

const eventsCollection = "events"

type Directory interface {
	EventExists(ctx context.Context, eventID string) (bool, error)
}

// RecordDirectory looks events up in the PocketBase events collection.
type RecordDirectory struct {
	app core.App
}

func NewRecordDirectory(app core.App) *RecordDirectory {
	return &RecordDirectory{app: app}
}

func (d *RecordDirectory) EventExists(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}

	var row struct {
		ID string `db:"id"`
	}
	err := d.app.DB().
		Select("id").
		From(eventsCollection).
		Where(dbx.HashExp{"id": eventID}).
		Limit(1).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup event %s: %w", eventID, err)
	}
	return row.ID != "", nil
}

// StaticDirectory is an in-memory directory, used in tests and when the
// engine runs without a PocketBase database.
type StaticDirectory struct {
	mu     sync.RWMutex
	events map[string]bool
	// AllowAll makes every non-empty id exist.
	AllowAll bool
}

func NewStaticDirectory(eventIDs ...string) *StaticDirectory {
	d := &StaticDirectory{events: make(map[string]bool, len(eventIDs))}
	for _, id := range eventIDs {
		d.events[id] = true
	}
	return d
}

func (d *StaticDirectory) Add(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events[eventID] = true
}

func (d *StaticDirectory) EventExists(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, nil
	}
	if d.AllowAll {
		return true, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.events[eventID], nil
}
