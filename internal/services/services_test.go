package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ticket-engine/internal/catalog"
	"ticket-engine/internal/events"
	"ticket-engine/internal/ledger"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/store"
	"ticket-engine/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testEvent = "evt-1"

var (
	salesStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	salesEnd   = time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	midSales   = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// flakyStore fails selected writes to simulate an unavailable backend.
type flakyStore struct {
	*store.MemoryStore
	mu          sync.Mutex
	failSaves   bool
	failConfigs bool
}

var errBackendDown = errors.New("redis: connection refused")

func (s *flakyStore) setFailSaves(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaves = v
}

func (s *flakyStore) SaveReservation(ctx context.Context, r *models.Reservation) error {
	s.mu.Lock()
	fail := s.failSaves
	s.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return s.MemoryStore.SaveReservation(ctx, r)
}

func (s *flakyStore) SaveConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error {
	s.mu.Lock()
	fail := s.failConfigs
	s.mu.Unlock()
	if fail {
		return errBackendDown
	}
	return s.MemoryStore.SaveConfiguration(ctx, cfg)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyReservation(ctx context.Context, kind notify.Kind, r *models.Reservation) error {
	args := m.Called(kind, r.ID)
	return args.Error(0)
}

func (m *mockNotifier) NotifyConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error {
	args := m.Called(cfg.EventID)
	return args.Error(0)
}

type fixture struct {
	deps         Dependencies
	store        *flakyStore
	clock        *fakeClock
	directory    *events.StaticDirectory
	tickets      *TicketService
	reservations *ReservationService
	analytics    *AnalyticsService
}

func newFixture(t testing.TB) *fixture {
	t.Helper()

	f := &fixture{
		store:     &flakyStore{MemoryStore: store.NewMemoryStore()},
		clock:     &fakeClock{now: midSales},
		directory: events.NewStaticDirectory(testEvent),
	}
	f.deps = Dependencies{
		Catalog: catalog.New(),
		Ledger:  ledger.New(),
		Store:   f.store,
		Events:  f.directory,
		Clock:   f.clock,
	}
	f.rebuild()
	return f
}

func (f *fixture) rebuild() {
	f.tickets = NewTicketService(f.deps)
	f.reservations = NewReservationService(f.deps, ReservationOptions{})
	f.analytics = NewAnalyticsService(f.deps)
}

func boolPtr(b bool) *bool { return &b }

func moneyPtr(m models.Money) *models.Money { return &m }

func baseRequest() ConfigureTicketsRequest {
	return ConfigureTicketsRequest{
		EventID: testEvent,
		RegularTickets: []TicketTypeRequest{
			{ID: "general", Name: "General Admission", Price: 5000, MaxQuantity: 100, Priority: 2},
			{ID: "standing", Name: "Standing", Price: 3000, MaxQuantity: 50, Priority: 3},
			{ID: "balcony", Name: "Balcony", Price: 4000, MaxQuantity: 20, IsActive: boolPtr(false), Priority: 4},
		},
		VIPPackages: []TicketTypeRequest{
			{
				ID:          "vip-gold",
				Name:        "Gold",
				Price:       40000,
				MaxQuantity: 5,
				Priority:    1,
				Benefits:    []string{"lounge", "meet and greet"},
				GroupDiscounts: []models.GroupDiscount{
					{MinQuantity: 2, DiscountPercent: decimal.NewFromInt(10)},
					{MinQuantity: 4, DiscountPercent: decimal.NewFromInt(15)},
				},
			},
		},
		SalesStart:         salesStart,
		SalesEnd:           salesEnd,
		MaxTicketsPerOrder: 10,
		RefundPolicy:       "Refunds until 7 days before the event",
	}
}

func (f *fixture) configure(t testing.TB, mutate func(req *ConfigureTicketsRequest)) *models.EventTicketConfiguration {
	t.Helper()
	req := baseRequest()
	if mutate != nil {
		mutate(&req)
	}
	cfg, err := f.tickets.ConfigureTickets(context.Background(), req)
	require.NoError(t, err)
	return cfg
}

func guests(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "Guest " + string(rune('A'+i))
	}
	return names
}

func order(lines ...ReservationLineRequest) CreateReservationRequest {
	return CreateReservationRequest{
		EventID: testEvent,
		Lines:   lines,
		Contact: models.ContactInfo{Name: "Ada Lovelace", Email: "ada@example.com"},
	}
}

func line(ticketTypeID string, quantity int, guestNames ...string) ReservationLineRequest {
	return ReservationLineRequest{TicketTypeID: ticketTypeID, Quantity: quantity, GuestNames: guestNames}
}

func (f *fixture) sold(t *testing.T, ticketTypeID string) int {
	t.Helper()
	p, ok := f.deps.Ledger.Position(ledger.Key{EventID: testEvent, TicketTypeID: ticketTypeID})
	require.True(t, ok, "no ledger entry for %s", ticketTypeID)
	return p.Sold
}
