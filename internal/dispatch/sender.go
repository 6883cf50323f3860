package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/jredh-dev/smsbridge/internal/carrier"
	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/metrics"
)

// Sender is the outbound path: resolve the device, invoke the carrier, and
// record the delivery outcome against the conversation log.
type Sender struct {
	db      *database.DB
	gateway carrier.Sender
}

// NewSender wires the outbound path. gateway may be nil when the carrier is
// not configured; every Send then fails with ErrGatewayNotConfigured.
func NewSender(db *database.DB, gateway carrier.Sender) *Sender {
	return &Sender{db: db, gateway: gateway}
}

// Send dispatches one outbound message for the device identified by webhook
// and returns the carrier message id. Exactly one conversation log entry is
// written per gateway attempt, for both outcomes: status "sent" with the
// carrier id on success, status "error" with the carrier's message on
// failure. Pre-gateway failures (unknown device, no number, no credentials)
// write nothing.
//
// No retry is attempted; retry policy is a caller concern.
func (s *Sender) Send(ctx context.Context, webhook, contact, body string) (string, error) {
	device, err := s.db.DeviceByWebhook(webhook)
	if err != nil {
		return "", fmt.Errorf("%w: resolve device: %v", ErrStorageUnavailable, err)
	}
	if device == nil {
		return "", ErrDeviceNotFound
	}
	if device.Number == "" {
		return "", ErrNoNumberConfigured
	}
	if s.gateway == nil {
		return "", ErrGatewayNotConfigured
	}

	sid, sendErr := s.gateway.SendSMS(ctx, device.Number, contact, body)
	if sendErr != nil {
		metrics.OutboundErrorsTotal.Inc()
		log.Printf("dispatch: carrier rejected send for device %s: %v", webhook, sendErr)
		if _, err := s.db.RecordSent(webhook, contact, body, "", "error", sendErr.Error()); err != nil {
			log.Printf("dispatch: could not log failed send for device %s: %v", webhook, err)
		}
		return "", fmt.Errorf("%w: %v", ErrSendFailed, sendErr)
	}

	metrics.OutboundSentTotal.Inc()
	if _, err := s.db.RecordSent(webhook, contact, body, sid, "sent", ""); err != nil {
		// The message is already on the wire; losing the log entry is worth
		// a loud complaint but not a failure response.
		log.Printf("dispatch: could not log sent message %s for device %s: %v", sid, webhook, err)
	}
	return sid, nil
}
