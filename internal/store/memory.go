package store

import (
	"context"
	"sort"
	"sync"

	"ticket-engine/internal/status"
	"ticket-engine/models"
)

type MemoryStore struct {
	mu           sync.RWMutex
	configs      map[string]*models.EventTicketConfiguration
	reservations map[string]*models.Reservation
	codes        map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:      make(map[string]*models.EventTicketConfiguration),
		reservations: make(map[string]*models.Reservation),
		codes:        make(map[string]string),
	}
}

func (s *MemoryStore) SaveConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.EventID] = cfg.Clone()
	return nil
}

func (s *MemoryStore) ListConfigurations(ctx context.Context) ([]*models.EventTicketConfiguration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]*models.EventTicketConfiguration, 0, len(s.configs))
	for _, cfg := range s.configs {
		configs = append(configs, cfg.Clone())
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].EventID < configs[j].EventID })
	return configs, nil
}

func (s *MemoryStore) SaveReservation(ctx context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.codes[r.Code]; ok && id != r.ID {
		return status.ErrDuplicateCode
	}
	s.reservations[r.ID] = r.Clone()
	s.codes[r.Code] = r.ID
	return nil
}

func (s *MemoryStore) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, status.ErrReservationNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[code]
	if !ok {
		return nil, status.ErrReservationNotFound
	}
	return s.reservations[id].Clone(), nil
}

func (s *MemoryStore) CodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.codes[code]
	return ok, nil
}

func (s *MemoryStore) ListReservations(ctx context.Context, eventID string) ([]*models.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		if eventID == "" || r.EventID == eventID {
			list = append(list, r.Clone())
		}
	}
	sortReservations(list)
	return list, nil
}

func (s *MemoryStore) UpdateReservation(ctx context.Context, id string, fn UpdateFunc) (*models.Reservation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.reservations[id]
	if !ok {
		return nil, false, status.ErrReservationNotFound
	}

	r := current.Clone()
	changed, err := fn(r)
	if err != nil {
		return current.Clone(), false, err
	}
	if changed {
		s.reservations[id] = r.Clone()
	}
	return r, changed, nil
}

func sortReservations(list []*models.Reservation) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
