// Package catalog holds the current ticket configuration of every event.
// Each configuration is an immutable version; replacing it produces a new
// version merged with the previous one by ticket type id.
package catalog

import (
	"sort"
	"sync"
	"time"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

type Catalog struct {
	mu      sync.RWMutex
	configs map[string]*models.EventTicketConfiguration
}

func New() *Catalog {
	return &Catalog{configs: make(map[string]*models.EventTicketConfiguration)}
}

// Get returns a copy of the event's current configuration.
func (c *Catalog) Get(eventID string) (*models.EventTicketConfiguration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.configs[eventID]
	if !ok {
		return nil, status.ErrTicketingNotConfigured
	}
	return cfg.Clone(), nil
}

// Listable returns the ticket type if it can still be sold. Retired and
// unknown types are both reported as unknown.
func (c *Catalog) Listable(eventID, ticketTypeID string) (models.TicketType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.configs[eventID]
	if !ok {
		return models.TicketType{}, status.ErrTicketingNotConfigured
	}
	tt, ok := cfg.TicketType(ticketTypeID)
	if !ok || !tt.Listable() {
		return models.TicketType{}, status.Reject(status.ErrUnknownTicketType, ticketTypeID)
	}
	return tt.Clone(), nil
}

func (c *Catalog) List() []*models.EventTicketConfiguration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	configs := make([]*models.EventTicketConfiguration, 0, len(c.configs))
	for _, cfg := range c.configs {
		configs = append(configs, cfg.Clone())
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].EventID < configs[j].EventID })
	return configs
}

// Replace builds the next version of an event's configuration and installs it.
// commit runs under the catalog lock before the new version becomes visible;
// if it fails the previous version stays in place. The previous version (nil
// on first configuration) is returned alongside the new one.
func (c *Catalog) Replace(in ConfigureInput, at time.Time, commit func(next *models.EventTicketConfiguration) error) (next, previous *models.EventTicketConfiguration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.configs[in.EventID]
	next, err = Merge(prev, in, at)
	if err != nil {
		return nil, nil, err
	}

	if commit != nil {
		if err := commit(next.Clone()); err != nil {
			return nil, nil, err
		}
	}

	c.configs[in.EventID] = next
	return next.Clone(), prev.Clone(), nil
}

// Revert reinstalls previous if the event is still at version current.
// A nil previous removes the event's configuration.
func (c *Catalog) Revert(eventID string, current int, previous *models.EventTicketConfiguration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, ok := c.configs[eventID]
	if !ok || cfg.Version != current {
		return false
	}
	if previous == nil {
		delete(c.configs, eventID)
	} else {
		c.configs[eventID] = previous.Clone()
	}
	return true
}

// Restore installs a configuration loaded from persistent storage as is.
func (c *Catalog) Restore(cfg *models.EventTicketConfiguration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configs[cfg.EventID] = cfg.Clone()
}

// Merge validates in and produces the version that follows previous.
// Ticket types are matched by id: ones missing from the new input are kept
// as retired so existing reservations never point at a vanished type.
func Merge(previous *models.EventTicketConfiguration, in ConfigureInput, at time.Time) (*models.EventTicketConfiguration, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	types, err := buildTicketTypes(in)
	if err != nil {
		return nil, err
	}

	next := &models.EventTicketConfiguration{
		EventID:            in.EventID,
		Version:            1,
		TicketTypes:        types,
		SalesStartDate:     in.SalesStart,
		SalesEndDate:       in.SalesEnd,
		MaxTicketsPerOrder: in.MaxTicketsPerOrder,
		RefundPolicy:       in.RefundPolicy,
		Terms:              in.Terms,
		CreatedAt:          at,
		UpdatedAt:          at,
	}

	if previous != nil {
		next.Version = previous.Version + 1
		next.CreatedAt = previous.CreatedAt

		present := make(map[string]bool, len(types))
		for _, tt := range types {
			present[tt.ID] = true
		}
		for _, old := range previous.TicketTypes {
			if present[old.ID] {
				continue
			}
			retired := old.Clone()
			retired.Retired = true
			retired.IsActive = false
			next.TicketTypes = append(next.TicketTypes, retired)
		}
	}

	SortTicketTypes(next.TicketTypes)
	return next, nil
}

// SortTicketTypes orders ticket types for display: priority, then id.
func SortTicketTypes(types []models.TicketType) {
	sort.SliceStable(types, func(i, j int) bool {
		if types[i].Priority != types[j].Priority {
			return types[i].Priority < types[j].Priority
		}
		return types[i].ID < types[j].ID
	})
}
