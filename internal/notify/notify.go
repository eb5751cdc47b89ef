// Package notify publishes reservation lifecycle messages to subscribers.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"ticket-engine/models"

	pubnub "github.com/pubnub/go"
)

type Kind string

const (
	ReservationCreated   Kind = "reservation_created"
	ReservationCancelled Kind = "reservation_cancelled"
	ReservationUpdated   Kind = "reservation_updated"
	TicketsConfigured    Kind = "tickets_configured"
)

type Notifier interface {
	NotifyReservation(ctx context.Context, kind Kind, r *models.Reservation) error
	NotifyConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error
}

// EventChannel is the channel every message about eventID is published on.
func EventChannel(eventID string) string {
	return fmt.Sprintf("event-%s", eventID)
}

// ReservationMessage is the payload sent for a reservation.
func ReservationMessage(kind Kind, r *models.Reservation) map[string]interface{} {
	return map[string]interface{}{
		"type":           string(kind),
		"reservation_id": r.ID,
		"event_id":       r.EventID,
		"code":           r.Code,
		"status":         string(r.Status),
		"payment_status": string(r.PaymentStatus),
		"tickets":        r.TicketCount(),
		"total_amount":   r.TotalAmount.String(),
	}
}

func ConfigurationMessage(cfg *models.EventTicketConfiguration) map[string]interface{} {
	types := make([]string, 0, len(cfg.TicketTypes))
	for _, tt := range cfg.Listed() {
		types = append(types, tt.ID)
	}
	return map[string]interface{}{
		"type":         string(TicketsConfigured),
		"event_id":     cfg.EventID,
		"version":      cfg.Version,
		"ticket_types": types,
	}
}

type publishFunc func(channel string, message interface{}) error

type PubNubNotifier struct {
	publish publishFunc
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		publish: func(channel string, message interface{}) error {
			_, _, err := pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			return err
		},
	}
}

func (n *PubNubNotifier) NotifyReservation(ctx context.Context, kind Kind, r *models.Reservation) error {
	if err := n.publish(EventChannel(r.EventID), ReservationMessage(kind, r)); err != nil {
		return fmt.Errorf("publish %s for %s: %w", kind, r.ID, err)
	}
	return nil
}

func (n *PubNubNotifier) NotifyConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error {
	if err := n.publish(EventChannel(cfg.EventID), ConfigurationMessage(cfg)); err != nil {
		return fmt.Errorf("publish configuration for %s: %w", cfg.EventID, err)
	}
	return nil
}

// Nop drops every message. Used when no PubNub keys are configured.
type Nop struct{}

func (Nop) NotifyReservation(ctx context.Context, kind Kind, r *models.Reservation) error {
	slog.Debug("Notification skipped", "type", kind, "reservation_id", r.ID)
	return nil
}

func (Nop) NotifyConfiguration(ctx context.Context, cfg *models.EventTicketConfiguration) error {
	return nil
}
