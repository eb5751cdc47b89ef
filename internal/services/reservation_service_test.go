package services

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ticket-engine/internal/notify"
	"ticket-engine/internal/status"
	"ticket-engine/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateReservation_Success(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	r, err := f.reservations.CreateReservation(context.Background(), order(
		line("general", 2),
		line("vip-gold", 4, guests(4)...),
	))
	require.NoError(t, err)

	assert.Regexp(t, `^TKT-[0-9A-F]{8}$`, r.Code)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.ReservationPending, r.Status)
	assert.Equal(t, models.PaymentPending, r.PaymentStatus)
	assert.Equal(t, midSales, r.CreatedAt)
	require.Len(t, r.Lines, 2)

	assert.Equal(t, models.Money(5000), r.Lines[0].UnitPrice)
	assert.Equal(t, models.Money(10000), r.Lines[0].LineTotal)
	assert.Equal(t, models.Money(34000), r.Lines[1].UnitPrice)
	assert.Equal(t, models.Money(136000), r.Lines[1].LineTotal)
	assert.Equal(t, models.Money(146000), r.TotalAmount)
	assert.Equal(t, "1460.00", r.TotalAmount.String())

	assert.Equal(t, 2, f.sold(t, "general"))
	assert.Equal(t, 4, f.sold(t, "vip-gold"))

	stored, err := f.reservations.GetReservationByCode(context.Background(), r.Code)
	require.NoError(t, err)
	assert.Equal(t, r.ID, stored.ID)
}

func TestCreateReservation_PricePrecedence(t *testing.T) {
	deadline := midSales.Add(24 * time.Hour)

	tests := []struct {
		name      string
		earlyBird bool
		quantity  int
		want      models.Money
	}{
		{"base price single ticket", false, 1, 40000},
		{"two tickets unlock ten percent", false, 2, 36000},
		{"four tickets take the best discount", false, 4, 34000},
		{"early bird replaces base before discount", true, 4, 29750},
		{"early bird alone", true, 1, 35000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.configure(t, func(req *ConfigureTicketsRequest) {
				if tt.earlyBird {
					req.VIPPackages[0].EarlyBirdPrice = moneyPtr(35000)
					req.VIPPackages[0].EarlyBirdDeadline = &deadline
				}
			})

			r, err := f.reservations.CreateReservation(context.Background(), order(
				line("vip-gold", tt.quantity, guests(tt.quantity)...),
			))
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Lines[0].UnitPrice)
			assert.Equal(t, tt.want.Mul(tt.quantity), r.TotalAmount)
		})
	}
}

func TestCreateReservation_EarlyBirdDeadlineInclusive(t *testing.T) {
	f := newFixture(t)
	deadline := midSales
	f.configure(t, func(req *ConfigureTicketsRequest) {
		req.RegularTickets[0].EarlyBirdPrice = moneyPtr(4000)
		req.RegularTickets[0].EarlyBirdDeadline = &deadline
	})

	r, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	require.NoError(t, err)
	assert.Equal(t, models.Money(4000), r.TotalAmount)

	f.clock.Set(deadline.Add(time.Nanosecond))
	r, err = f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	require.NoError(t, err)
	assert.Equal(t, models.Money(5000), r.TotalAmount)
}

func TestCreateReservation_RegularTicketsIgnoreGroupDiscounts(t *testing.T) {
	f := newFixture(t)
	f.configure(t, func(req *ConfigureTicketsRequest) {
		req.RegularTickets[0].GroupDiscounts = req.VIPPackages[0].GroupDiscounts
	})

	r, err := f.reservations.CreateReservation(context.Background(), order(line("general", 4)))
	require.NoError(t, err)
	assert.Equal(t, models.Money(5000), r.Lines[0].UnitPrice)
}

func TestCreateReservation_SalesWindow(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"before start", salesStart.Add(-time.Nanosecond), status.ErrSalesNotStarted},
		{"at start", salesStart, nil},
		{"just before end", salesEnd.Add(-time.Nanosecond), nil},
		{"at end", salesEnd, status.ErrSalesEnded},
		{"after end", salesEnd.Add(time.Hour), status.ErrSalesEnded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.configure(t, nil)
			f.clock.Set(tt.at)

			_, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.sold(t, "general"))
		})
	}
}

func TestCreateReservation_OrderLimit(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	_, err := f.reservations.CreateReservation(context.Background(), order(
		line("general", 6),
		line("standing", 5),
	))
	assert.ErrorIs(t, err, status.ErrOrderTooLarge)
	assert.Contains(t, err.Error(), "11 tickets requested, limit is 10")
	assert.Equal(t, 0, f.sold(t, "general"))
	assert.Equal(t, 0, f.sold(t, "standing"))

	_, err = f.reservations.CreateReservation(context.Background(), order(
		line("general", 5),
		line("standing", 5),
	))
	assert.NoError(t, err)
}

func TestCreateReservation_OversizedQuantities(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	_, err := f.reservations.CreateReservation(ctx, order(line("general", 1)))
	require.NoError(t, err)

	tests := []struct {
		name  string
		lines []ReservationLineRequest
	}{
		{"single line above limit", []ReservationLineRequest{line("general", 11)}},
		{"max int line", []ReservationLineRequest{line("general", math.MaxInt)}},
		{"max int line plus small line", []ReservationLineRequest{line("general", math.MaxInt), line("standing", 2)}},
		{"max int lines merged", []ReservationLineRequest{line("general", math.MaxInt), line("general", math.MaxInt)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reservations.CreateReservation(ctx, order(tt.lines...))
			assert.ErrorIs(t, err, status.ErrOrderTooLarge)
			assert.Equal(t, 1, f.sold(t, "general"))
			assert.Equal(t, 0, f.sold(t, "standing"))
		})
	}

	admitted := 0
	for i := 0; i < 20; i++ {
		if _, err := f.reservations.CreateReservation(ctx, order(line("general", 10))); err == nil {
			admitted += 10
		}
	}
	assert.Equal(t, 90, admitted)
	assert.Equal(t, 100, f.sold(t, "general"))
}

func TestCreateReservation_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   CreateReservationRequest
		want  error
		ident string
	}{
		{"empty order", order(), status.ErrEmptyOrder, ""},
		{"zero quantity", order(line("general", 0)), status.ErrInvalidQuantity, "general"},
		{"negative quantity", order(line("general", 2), line("standing", -1)), status.ErrInvalidQuantity, "standing"},
		{"unknown ticket type", order(line("platinum", 1)), status.ErrUnknownTicketType, "platinum"},
		{"inactive ticket type", order(line("balcony", 1)), status.ErrTicketTypeInactive, "balcony"},
		{"missing guest names", order(line("vip-gold", 2, "Ada")), status.ErrGuestNamesRequired, "vip-gold"},
		{"blank guest name", order(line("vip-gold", 2, "Ada", "  ")), status.ErrGuestNamesRequired, "vip-gold"},
		{"too many guest names", order(line("vip-gold", 1, "Ada", "Grace")), status.ErrGuestNamesRequired, "vip-gold"},
		{"unknown event", CreateReservationRequest{EventID: "evt-404", Lines: []ReservationLineRequest{line("general", 1)}}, status.ErrEventNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.configure(t, nil)

			_, err := f.reservations.CreateReservation(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)

			var rejection *status.RejectionError
			require.True(t, errors.As(err, &rejection))
			assert.Equal(t, tt.ident, rejection.TicketTypeID)
			assert.Equal(t, 0, f.sold(t, "general"))
		})
	}
}

func TestCreateReservation_NotConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	assert.ErrorIs(t, err, status.ErrTicketingNotConfigured)
}

func TestCreateReservation_MergesDuplicateLines(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	r, err := f.reservations.CreateReservation(context.Background(), order(
		line("vip-gold", 2, "Ada", "Grace"),
		line("general", 1),
		line("vip-gold", 2, "Alan", "Edsger"),
	))
	require.NoError(t, err)
	require.Len(t, r.Lines, 2)

	vip := r.Lines[0]
	assert.Equal(t, "vip-gold", vip.TicketTypeID)
	assert.Equal(t, 4, vip.Quantity)
	assert.Equal(t, []string{"Ada", "Grace", "Alan", "Edsger"}, vip.GuestNames)
	assert.Equal(t, models.Money(34000), vip.UnitPrice)
}

func TestCreateReservation_InsufficientInventory(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	_, err := f.reservations.CreateReservation(context.Background(), order(line("vip-gold", 3, guests(3)...)))
	require.NoError(t, err)

	_, err = f.reservations.CreateReservation(context.Background(), order(line("vip-gold", 3, guests(3)...)))
	require.ErrorIs(t, err, status.ErrInsufficientInventory)

	var rejection *status.RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "vip-gold", rejection.TicketTypeID)
	assert.Equal(t, 2, rejection.Remaining)
	assert.Contains(t, err.Error(), "only 2 tickets remain for vip-gold")
}

func TestCreateReservation_MultiLineAtomicity(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	_, err := f.reservations.CreateReservation(context.Background(), order(line("vip-gold", 4, guests(4)...)))
	require.NoError(t, err)

	// general and standing sort before vip-gold and are admitted first
	_, err = f.reservations.CreateReservation(context.Background(), order(
		line("vip-gold", 2, guests(2)...),
		line("general", 3),
		line("standing", 2),
	))
	require.ErrorIs(t, err, status.ErrInsufficientInventory)

	assert.Equal(t, 0, f.sold(t, "general"))
	assert.Equal(t, 0, f.sold(t, "standing"))
	assert.Equal(t, 4, f.sold(t, "vip-gold"))

	list, err := f.store.ListReservations(context.Background(), testEvent)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateReservation_NoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	const buyers = 200
	var (
		wg       sync.WaitGroup
		admitted atomic.Int32
		refused  atomic.Int32
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.CreateReservation(context.Background(), order(line("standing", 1)))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, status.ErrInsufficientInventory):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), admitted.Load())
	assert.Equal(t, int32(buyers-50), refused.Load())
	assert.Equal(t, 50, f.sold(t, "standing"))

	list, err := f.store.ListReservations(context.Background(), testEvent)
	require.NoError(t, err)
	assert.Len(t, list, 50)

	codes := make(map[string]bool)
	for _, r := range list {
		codes[r.Code] = true
	}
	assert.Len(t, codes, 50)
}

func TestCreateReservation_PersistenceFailureReleasesInventory(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	f.store.setFailSaves(true)

	_, err := f.reservations.CreateReservation(context.Background(), order(
		line("general", 2),
		line("vip-gold", 2, guests(2)...),
	))
	require.ErrorIs(t, err, status.ErrPersistenceFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, f.sold(t, "general"))
	assert.Equal(t, 0, f.sold(t, "vip-gold"))

	f.store.setFailSaves(false)
	_, err = f.reservations.CreateReservation(context.Background(), order(line("general", 2)))
	assert.NoError(t, err)
}

func TestCreateReservation_RetriesCodeCollisions(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)

	codes := []string{"TKT-AAAAAAAA", "TKT-AAAAAAAA", "TKT-BBBBBBBB"}
	var calls int
	f.reservations.newCode = func(int) (string, error) {
		code := codes[calls%len(codes)]
		calls++
		return code, nil
	}

	first, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	require.NoError(t, err)
	assert.Equal(t, "TKT-AAAAAAAA", first.Code)

	second, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	require.NoError(t, err)
	assert.Equal(t, "TKT-BBBBBBBB", second.Code)
	assert.Equal(t, 3, calls)
}

func TestCreateReservation_CodeSpaceExhausted(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	f.reservations.newCode = func(int) (string, error) { return "TKT-AAAAAAAA", nil }

	_, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	require.NoError(t, err)

	_, err = f.reservations.CreateReservation(context.Background(), order(line("general", 3)))
	require.ErrorIs(t, err, status.ErrPersistenceFailed)
	assert.Equal(t, 1, f.sold(t, "general"))
}

func TestCreateReservation_Notifies(t *testing.T) {
	f := newFixture(t)
	notifier := &mockNotifier{}
	notifier.On("NotifyConfiguration", testEvent).Return(nil)
	notifier.On("NotifyReservation", notify.ReservationCreated, mock.Anything).Return(errors.New("pubnub unavailable"))
	f.deps.Notifier = notifier
	f.rebuild()
	f.configure(t, nil)

	_, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1)))
	require.NoError(t, err, "notification failures never fail a reservation")
	notifier.AssertExpectations(t)
}

func TestCancelReservation_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	r, err := f.reservations.CreateReservation(ctx, order(line("general", 3), line("vip-gold", 2, guests(2)...)))
	require.NoError(t, err)

	cancelled, err := f.reservations.CancelReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, 0, f.sold(t, "general"))
	assert.Equal(t, 0, f.sold(t, "vip-gold"))

	// another buyer takes inventory; a repeated cancel must not free it
	_, err = f.reservations.CreateReservation(ctx, order(line("general", 3)))
	require.NoError(t, err)

	again, err := f.reservations.CancelReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCancelled, again.Status)
	assert.Equal(t, 3, f.sold(t, "general"))
}

func TestCancelReservation_Concurrent(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	keep, err := f.reservations.CreateReservation(ctx, order(line("general", 4)))
	require.NoError(t, err)
	r, err := f.reservations.CreateReservation(ctx, order(line("general", 5)))
	require.NoError(t, err)
	require.Equal(t, 9, f.sold(t, "general"))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reservations.CancelReservation(ctx, r.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, f.sold(t, "general"))
	still, err := f.reservations.GetReservation(ctx, keep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, still.Status)
}

func TestCancelReservation_Errors(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	_, err := f.reservations.CancelReservation(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrReservationNotFound)

	r, err := f.reservations.CreateReservation(ctx, order(line("general", 1)))
	require.NoError(t, err)
	_, err = f.reservations.MarkPaid(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.reservations.CheckIn(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.reservations.CancelReservation(ctx, r.ID)
	assert.ErrorIs(t, err, status.ErrInvalidStatusTransition)
	assert.Equal(t, 1, f.sold(t, "general"))
}

func TestReservationLifecycle(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	r, err := f.reservations.CreateReservation(ctx, order(line("general", 1)))
	require.NoError(t, err)

	_, err = f.reservations.CheckIn(ctx, r.ID)
	assert.ErrorIs(t, err, status.ErrInvalidStatusTransition, "pending reservations cannot check in")

	failed, err := f.reservations.MarkPaymentFailed(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, failed.Status)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)

	confirmed, err := f.reservations.ConfirmReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, confirmed.Status)

	again, err := f.reservations.ConfirmReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, again.Status)

	paid, err := f.reservations.MarkPaid(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPaid, paid.Status)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)

	_, err = f.reservations.ConfirmReservation(ctx, r.ID)
	assert.ErrorIs(t, err, status.ErrInvalidStatusTransition)
	_, err = f.reservations.MarkPaymentFailed(ctx, r.ID)
	assert.ErrorIs(t, err, status.ErrInvalidStatusTransition)

	f.clock.Set(midSales.Add(time.Hour))
	checkedIn, err := f.reservations.CheckIn(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationCheckedIn, checkedIn.Status)
	require.NotNil(t, checkedIn.CheckedInAt)
	assert.Equal(t, midSales.Add(time.Hour), *checkedIn.CheckedInAt)

	_, err = f.reservations.MarkPaid(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrReservationNotFound)
}

func TestCancelledReservationCannotBePaid(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	r, err := f.reservations.CreateReservation(ctx, order(line("general", 1)))
	require.NoError(t, err)
	_, err = f.reservations.CancelReservation(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.reservations.MarkPaid(ctx, r.ID)
	assert.ErrorIs(t, err, status.ErrInvalidStatusTransition)
}

func TestReservationQRCode(t *testing.T) {
	f := newFixture(t)
	f.configure(t, nil)
	ctx := context.Background()

	r, err := f.reservations.CreateReservation(ctx, order(line("general", 1)))
	require.NoError(t, err)

	png, err := f.reservations.ReservationQRCode(ctx, r.Code, 0)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = f.reservations.ReservationQRCode(ctx, "TKT-00000000", 128)
	assert.ErrorIs(t, err, status.ErrReservationNotFound)

	_, err = f.reservations.CancelReservation(ctx, r.ID)
	require.NoError(t, err)
	_, err = f.reservations.ReservationQRCode(ctx, r.Code, 128)
	assert.ErrorIs(t, err, status.ErrInvalidStatusTransition)
}

func BenchmarkCreateReservation(b *testing.B) {
	f := newFixture(b)
	f.configure(b, func(req *ConfigureTicketsRequest) {
		req.RegularTickets[0].MaxQuantity = b.N + 1
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.reservations.CreateReservation(context.Background(), order(line("general", 1))); err != nil {
			b.Fatal(err)
		}
	}
}
