package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"ticket-engine/internal/ledger"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	ticketsRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickets_remaining",
			Help: "Tickets left per ticket type",
		},
		[]string{"event_id", "ticket_type_id"},
	)

	ticketsSold = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickets_sold",
			Help: "Tickets sold per ticket type",
		},
		[]string{"event_id", "ticket_type_id"},
	)

	reservationOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_operations_total",
			Help: "Total reservation operations",
		},
		[]string{"operation", "event_id", "status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "Whether the last Redis ping succeeded",
		},
	)

	admissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reservation_admission_duration_seconds",
			Help:    "Time spent validating, pricing and admitting a reservation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"event_id"},
	)
)

// InventorySource is the read side of the inventory ledger.
type InventorySource interface {
	Snapshot(eventID string) []ledger.Position
}

type Monitor struct {
	inventory InventorySource
	redis     *redis.Client
	interval  time.Duration
	scheduler gocron.Scheduler
}

// NewMonitor creates a monitor. redisClient may be nil when the engine runs
// on the in-memory store.
func NewMonitor(inventory InventorySource, redisClient *redis.Client, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{inventory: inventory, redis: redisClient, interval: interval}
}

// Start schedules periodic collection.
func (m *Monitor) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = s.NewJob(
		gocron.DurationJob(m.interval),
		gocron.NewTask(m.Collect),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.Shutdown()
		return err
	}

	m.scheduler = s
	s.Start()
	slog.Info("Metrics collection started", "interval", m.interval)
	return nil
}

func (m *Monitor) Shutdown() error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.Shutdown()
}

func (m *Monitor) Collect() {
	m.collectInventoryMetrics()
	m.collectGoroutineMetrics()
	m.collectRedisMetrics()
}

func (m *Monitor) collectInventoryMetrics() {
	if m.inventory == nil {
		return
	}
	for _, p := range m.inventory.Snapshot("") {
		ticketsRemaining.WithLabelValues(p.Key.EventID, p.Key.TicketTypeID).Set(float64(p.Remaining))
		ticketsSold.WithLabelValues(p.Key.EventID, p.Key.TicketTypeID).Set(float64(p.Sold))
	}
}

func (m *Monitor) collectGoroutineMetrics() {
	goroutineCount.Set(float64(runtime.NumGoroutine()))
}

func (m *Monitor) collectRedisMetrics() {
	if m.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := m.redis.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis ping failed", "error", err)
		redisUp.Set(0)
		return
	}
	redisUp.Set(1)
}

// TrackReservationOperation counts one reservation operation. status is
// "ok" or a rejection reason code. Safe on a nil Monitor.
func (m *Monitor) TrackReservationOperation(operation, eventID, status string) {
	reservationOperations.WithLabelValues(operation, eventID, status).Inc()
}

func (m *Monitor) TrackAdmission(eventID string, duration time.Duration) {
	admissionDuration.WithLabelValues(eventID).Observe(duration.Seconds())
}
