package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"ticket-engine/internal/ledger"
	"ticket-engine/internal/notify"
	"ticket-engine/internal/pricing"
	"ticket-engine/internal/status"
	"ticket-engine/models"
	"ticket-engine/utils"

	"github.com/google/uuid"
)

const (
	defaultCodeLength   = 8
	defaultCodeAttempts = 5
	defaultQRSize       = 256
)

type ReservationLineRequest struct {
	TicketTypeID string   `json:"ticket_type_id"`
	Quantity     int      `json:"quantity"`
	GuestNames   []string `json:"guest_names,omitempty"`
}

type CreateReservationRequest struct {
	EventID         string                   `json:"event_id"`
	Lines           []ReservationLineRequest `json:"lines"`
	Contact         models.ContactInfo       `json:"contact"`
	SpecialRequests string                   `json:"special_requests,omitempty"`
}

type ReservationOptions struct {
	CodeLength   int
	CodeAttempts int
}

type ReservationService struct {
	Dependencies
	codeLength   int
	codeAttempts int
	newCode      func(length int) (string, error)
}

func NewReservationService(deps Dependencies, opts ReservationOptions) *ReservationService {
	if opts.CodeLength <= 0 {
		opts.CodeLength = defaultCodeLength
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = defaultCodeAttempts
	}
	return &ReservationService{
		Dependencies: deps.withDefaults(),
		codeLength:   opts.CodeLength,
		codeAttempts: opts.CodeAttempts,
		newCode:      utils.GenerateReservationCode,
	}
}

// pricedLine is a validated order line ready for admission.
type pricedLine struct {
	ticketType models.TicketType
	quantity   int
	guestNames []string
	quote      pricing.Quote
}

// CreateReservation validates, prices and admits an order, then persists the
// resulting pending reservation. Either every line is admitted or none is.
func (s *ReservationService) CreateReservation(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	started := time.Now()
	r, err := s.createReservation(ctx, req)
	s.Monitor.TrackAdmission(req.EventID, time.Since(started))
	if err != nil {
		s.Monitor.TrackReservationOperation("create", req.EventID, status.ReasonCode(err))
		slog.Info("Reservation rejected", "event_id", req.EventID, "reason", status.ReasonCode(err), "error", err)
		return nil, err
	}

	s.Monitor.TrackReservationOperation("create", r.EventID, "ok")
	slog.Info("Reservation created", "reservation_id", r.ID, "code", r.Code, "event_id", r.EventID, "tickets", r.TicketCount())
	logNotifyError(s.Notifier.NotifyReservation(ctx, notify.ReservationCreated, r), "reservation_id", r.ID)
	return r, nil
}

func (s *ReservationService) createReservation(ctx context.Context, req CreateReservationRequest) (*models.Reservation, error) {
	asOf := s.Clock.Now()

	if err := s.requireEvent(ctx, req.EventID); err != nil {
		return nil, err
	}
	cfg, err := s.Catalog.Get(req.EventID)
	if err != nil {
		return nil, status.Reject(status.ErrTicketingNotConfigured, "")
	}

	requested, err := mergeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	switch {
	case asOf.Before(cfg.SalesStartDate):
		return nil, status.Reject(status.ErrSalesNotStarted, "")
	case !asOf.Before(cfg.SalesEndDate):
		return nil, status.Reject(status.ErrSalesEnded, "")
	}

	total := 0
	for _, line := range requested {
		total = addSaturating(total, line.Quantity)
	}
	if total > cfg.MaxTicketsPerOrder {
		rej := status.Reject(status.ErrOrderTooLarge, "")
		rej.Detail = fmt.Sprintf("%d tickets requested, limit is %d", total, cfg.MaxTicketsPerOrder)
		return nil, rej
	}

	lines := make([]pricedLine, 0, len(requested))
	for _, line := range requested {
		tt, ok := cfg.TicketType(line.TicketTypeID)
		if !ok || !tt.Listable() {
			return nil, status.Reject(status.ErrUnknownTicketType, line.TicketTypeID)
		}
		if !tt.IsActive {
			return nil, status.Reject(status.ErrTicketTypeInactive, tt.ID)
		}
		if tt.IsVIP() && !guestNamesComplete(line.GuestNames, line.Quantity) {
			rej := status.Reject(status.ErrGuestNamesRequired, tt.ID)
			rej.Detail = fmt.Sprintf("%d names for %d tickets", len(line.GuestNames), line.Quantity)
			return nil, rej
		}
		lines = append(lines, pricedLine{
			ticketType: tt,
			quantity:   line.Quantity,
			guestNames: line.GuestNames,
			quote:      pricing.Resolve(tt, line.Quantity, asOf),
		})
	}

	if err := s.admit(req.EventID, lines); err != nil {
		return nil, err
	}

	r := buildReservation(req, lines, asOf)
	if err := s.persist(ctx, r); err != nil {
		s.release(r)
		slog.Error("Failed to persist reservation, inventory released", "error", err, "event_id", r.EventID, "reservation_id", r.ID)
		return nil, persistenceFailed(err)
	}
	return r, nil
}

// mergeLines rejects malformed lines and folds lines naming the same ticket
// type into one, keeping first-seen order. Merged quantities saturate at
// math.MaxInt.
func mergeLines(lines []ReservationLineRequest) ([]ReservationLineRequest, error) {
	if len(lines) == 0 {
		return nil, status.Reject(status.ErrEmptyOrder, "")
	}

	merged := make([]ReservationLineRequest, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, status.Reject(status.ErrInvalidQuantity, line.TicketTypeID)
		}
		if i, ok := index[line.TicketTypeID]; ok {
			merged[i].Quantity = addSaturating(merged[i].Quantity, line.Quantity)
			merged[i].GuestNames = append(merged[i].GuestNames, line.GuestNames...)
			continue
		}
		index[line.TicketTypeID] = len(merged)
		merged = append(merged, ReservationLineRequest{
			TicketTypeID: line.TicketTypeID,
			Quantity:     line.Quantity,
			GuestNames:   append([]string(nil), line.GuestNames...),
		})
	}
	return merged, nil
}

// addSaturating adds two non-negative quantities, capping at math.MaxInt.
func addSaturating(a, b int) int {
	if a > math.MaxInt-b {
		return math.MaxInt
	}
	return a + b
}

func guestNamesComplete(names []string, quantity int) bool {
	if len(names) != quantity {
		return false
	}
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			return false
		}
	}
	return true
}

// admit takes capacity for every line in ticket type id order. On the first
// refusal everything already taken is handed back.
func (s *ReservationService) admit(eventID string, lines []pricedLine) error {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return lines[order[a]].ticketType.ID < lines[order[b]].ticketType.ID
	})

	admitted := make([]int, 0, len(lines))
	for _, i := range order {
		line := lines[i]
		result := s.Ledger.TryAdmit(ledgerKey(eventID, line.ticketType.ID), line.quantity)
		if result.Admitted {
			admitted = append(admitted, i)
			continue
		}

		for _, j := range admitted {
			s.Ledger.Release(ledgerKey(eventID, lines[j].ticketType.ID), lines[j].quantity)
		}
		return &status.RejectionError{
			Reason:       result.Reason,
			TicketTypeID: line.ticketType.ID,
			Remaining:    result.Remaining,
		}
	}
	return nil
}

func buildReservation(req CreateReservationRequest, lines []pricedLine, at time.Time) *models.Reservation {
	r := &models.Reservation{
		ID:              uuid.NewString(),
		EventID:         req.EventID,
		Lines:           make([]models.ReservationLine, 0, len(lines)),
		Status:          models.ReservationPending,
		PaymentStatus:   models.PaymentPending,
		Contact:         req.Contact,
		SpecialRequests: req.SpecialRequests,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
	for _, line := range lines {
		lineTotal := line.quote.UnitPrice.Mul(line.quantity)
		var guests []string
		if len(line.guestNames) > 0 {
			guests = make([]string, len(line.guestNames))
			for i, name := range line.guestNames {
				guests[i] = strings.TrimSpace(name)
			}
		}
		r.Lines = append(r.Lines, models.ReservationLine{
			TicketTypeID:   line.ticketType.ID,
			TicketTypeName: line.ticketType.Name,
			Category:       line.ticketType.Category,
			Quantity:       line.quantity,
			UnitPrice:      line.quote.UnitPrice,
			LineTotal:      lineTotal,
			GuestNames:     guests,
		})
		r.TotalAmount += lineTotal
	}
	return r
}

// persist assigns a fresh code and saves r, retrying on code collisions.
func (s *ReservationService) persist(ctx context.Context, r *models.Reservation) error {
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.newCode(s.codeLength)
		if err != nil {
			return fmt.Errorf("generate reservation code: %w", err)
		}

		var taken bool
		err = s.guarded(ctx, func(ctx context.Context) error {
			var err error
			taken, err = s.Store.CodeExists(ctx, code)
			return err
		})
		if err != nil {
			return err
		}
		if taken {
			slog.Warn("Reservation code collision", "code", code, "attempt", attempt)
			continue
		}

		r.Code = code
		err = s.guarded(ctx, func(ctx context.Context) error {
			return s.Store.SaveReservation(ctx, r)
		})
		if errors.Is(err, status.ErrDuplicateCode) {
			slog.Warn("Reservation code claimed concurrently", "code", code, "attempt", attempt)
			continue
		}
		return err
	}
	r.Code = ""
	return fmt.Errorf("no unique reservation code after %d attempts: %w", s.codeAttempts, status.ErrDuplicateCode)
}

func (s *ReservationService) release(r *models.Reservation) {
	for _, line := range r.Lines {
		s.Ledger.Release(ledgerKey(r.EventID, line.TicketTypeID), line.Quantity)
	}
}

// CancelReservation cancels a reservation and returns its tickets to the
// ledger. Cancelling twice is a no-op; inventory is only released by the
// call that actually changed the status.
func (s *ReservationService) CancelReservation(ctx context.Context, id string) (*models.Reservation, error) {
	now := s.Clock.Now()
	r, changed, err := s.transition(ctx, id, func(r *models.Reservation) (bool, error) {
		switch r.Status {
		case models.ReservationCancelled:
			return false, nil
		case models.ReservationCheckedIn:
			return false, invalidTransition(r.Status, models.ReservationCancelled)
		}
		r.Status = models.ReservationCancelled
		r.PaymentStatus = models.PaymentRefunded
		r.CancelledAt = &now
		r.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		s.Monitor.TrackReservationOperation("cancel", "", status.ReasonCode(err))
		return nil, err
	}

	if changed {
		s.release(r)
		s.Monitor.TrackReservationOperation("cancel", r.EventID, "ok")
		slog.Info("Reservation cancelled", "reservation_id", r.ID, "event_id", r.EventID, "released", r.TicketCount())
		logNotifyError(s.Notifier.NotifyReservation(ctx, notify.ReservationCancelled, r), "reservation_id", r.ID)
	}
	return r, nil
}

// ConfirmReservation moves a pending reservation to confirmed.
func (s *ReservationService) ConfirmReservation(ctx context.Context, id string) (*models.Reservation, error) {
	now := s.Clock.Now()
	return s.update(ctx, "confirm", id, func(r *models.Reservation) (bool, error) {
		switch r.Status {
		case models.ReservationConfirmed:
			return false, nil
		case models.ReservationPending:
			r.Status = models.ReservationConfirmed
			r.UpdatedAt = now
			return true, nil
		}
		return false, invalidTransition(r.Status, models.ReservationConfirmed)
	})
}

// MarkPaid records a successful payment for a pending or confirmed reservation.
func (s *ReservationService) MarkPaid(ctx context.Context, id string) (*models.Reservation, error) {
	now := s.Clock.Now()
	return s.update(ctx, "pay", id, func(r *models.Reservation) (bool, error) {
		switch r.Status {
		case models.ReservationPaid:
			return false, nil
		case models.ReservationPending, models.ReservationConfirmed:
			r.Status = models.ReservationPaid
			r.PaymentStatus = models.PaymentPaid
			r.UpdatedAt = now
			return true, nil
		}
		return false, invalidTransition(r.Status, models.ReservationPaid)
	})
}

// MarkPaymentFailed records a failed payment attempt. The reservation keeps
// its tickets; cancelling it is a separate decision.
func (s *ReservationService) MarkPaymentFailed(ctx context.Context, id string) (*models.Reservation, error) {
	now := s.Clock.Now()
	return s.update(ctx, "payment_failed", id, func(r *models.Reservation) (bool, error) {
		if r.Status != models.ReservationPending && r.Status != models.ReservationConfirmed {
			return false, fmt.Errorf("%w: payment cannot fail for a %s reservation", status.ErrInvalidStatusTransition, r.Status)
		}
		if r.PaymentStatus == models.PaymentFailed {
			return false, nil
		}
		r.PaymentStatus = models.PaymentFailed
		r.UpdatedAt = now
		return true, nil
	})
}

// CheckIn admits the holders of a paid reservation at the door.
func (s *ReservationService) CheckIn(ctx context.Context, id string) (*models.Reservation, error) {
	now := s.Clock.Now()
	return s.update(ctx, "check_in", id, func(r *models.Reservation) (bool, error) {
		switch r.Status {
		case models.ReservationCheckedIn:
			return false, nil
		case models.ReservationPaid:
			r.Status = models.ReservationCheckedIn
			r.CheckedInAt = &now
			r.UpdatedAt = now
			return true, nil
		}
		return false, invalidTransition(r.Status, models.ReservationCheckedIn)
	})
}

func (s *ReservationService) update(ctx context.Context, operation, id string, fn func(r *models.Reservation) (bool, error)) (*models.Reservation, error) {
	r, changed, err := s.transition(ctx, id, fn)
	if err != nil {
		s.Monitor.TrackReservationOperation(operation, "", status.ReasonCode(err))
		return nil, err
	}
	if changed {
		s.Monitor.TrackReservationOperation(operation, r.EventID, "ok")
		slog.Info("Reservation updated", "reservation_id", r.ID, "status", r.Status, "payment_status", r.PaymentStatus)
		logNotifyError(s.Notifier.NotifyReservation(ctx, notify.ReservationUpdated, r), "reservation_id", r.ID)
	}
	return r, nil
}

func (s *ReservationService) transition(ctx context.Context, id string, fn func(r *models.Reservation) (bool, error)) (*models.Reservation, bool, error) {
	var (
		r       *models.Reservation
		changed bool
	)
	err := s.guarded(ctx, func(ctx context.Context) error {
		var err error
		r, changed, err = s.Store.UpdateReservation(ctx, id, fn)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			return nil, false, err
		}
		return nil, false, persistenceFailed(err)
	}
	return r, changed, nil
}

func invalidTransition(from, to models.ReservationStatus) error {
	return fmt.Errorf("%w: %s to %s", status.ErrInvalidStatusTransition, from, to)
}

func (s *ReservationService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	var r *models.Reservation
	err := s.guarded(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.Store.GetReservation(ctx, id)
		return err
	})
	return r, lookupError(err)
}

func (s *ReservationService) GetReservationByCode(ctx context.Context, code string) (*models.Reservation, error) {
	var r *models.Reservation
	err := s.guarded(ctx, func(ctx context.Context) error {
		var err error
		r, err = s.Store.GetReservationByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
		return err
	})
	return r, lookupError(err)
}

// ReservationQRCode renders the reservation code as a PNG for door scanning.
func (s *ReservationService) ReservationQRCode(ctx context.Context, code string, size int) ([]byte, error) {
	r, err := s.GetReservationByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if r.Status == models.ReservationCancelled {
		return nil, fmt.Errorf("%w: reservation %s is cancelled", status.ErrInvalidStatusTransition, r.Code)
	}
	if size <= 0 {
		size = defaultQRSize
	}
	png, err := utils.GenerateQRCode(r.Code, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

func lookupError(err error) error {
	if err == nil || errors.Is(err, status.ErrReservationNotFound) {
		return err
	}
	return persistenceFailed(err)
}

// heldQuantities sums the quantities still held by reservations, per ticket type.
func heldQuantities(reservations []*models.Reservation) map[ledger.Key]int {
	held := make(map[ledger.Key]int)
	for _, r := range reservations {
		if !r.HoldsInventory() {
			continue
		}
		for _, line := range r.Lines {
			held[ledgerKey(r.EventID, line.TicketTypeID)] += line.Quantity
		}
	}
	return held
}
