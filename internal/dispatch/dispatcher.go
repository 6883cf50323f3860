// Package dispatch implements the message ingestion and routing pipeline:
// inbound events move received → logged → forwarded → processed, and the
// outbound path records delivery outcome against the same conversation log.
package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/jredh-dev/smsbridge/internal/carrier"
	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/metrics"
)

// Dispatcher drives the inbound pipeline. All collaborators are injected
// once at startup; there is no lazily initialized shared state.
type Dispatcher struct {
	db        *database.DB
	forwarder *Forwarder
	gateway   carrier.Sender
	autoReply string
}

// NewDispatcher wires the inbound pipeline. gateway may be nil when the
// carrier is not configured; autoReply may be empty to disable automatic
// acknowledgment replies.
func NewDispatcher(db *database.DB, forwarder *Forwarder, gateway carrier.Sender, autoReply string) *Dispatcher {
	return &Dispatcher{
		db:        db,
		forwarder: forwarder,
		gateway:   gateway,
		autoReply: autoReply,
	}
}

// HandleInbound runs the ingestion pipeline for one inbound message:
// resolve the device, log the event, forward the canonical payload
// best-effort, and mark the event processed. It returns the logged event id.
//
// Once the log write has succeeded the operation succeeds regardless of
// forwarding or mark-processed failures; those events stay discoverable via
// the unprocessed queue for out-of-band replay.
func (d *Dispatcher) HandleInbound(ctx context.Context, webhook, contact, body, raw string) (string, error) {
	eventID, _, err := d.ingest(ctx, webhook, contact, body, "", raw)
	return eventID, err
}

// HandleCarrierInbound is HandleInbound for carrier-originated delivery: it
// keeps the carrier message id on the event and, when an auto-reply is
// configured, synthesizes a reply through the gateway and records its
// outcome on the same event. The reply is fire-and-log: it runs after the
// primary log write and its failure never fails the inbound acknowledgment.
func (d *Dispatcher) HandleCarrierInbound(ctx context.Context, webhook, contact, body, messageSID, raw string) (string, error) {
	eventID, device, err := d.ingest(ctx, webhook, contact, body, messageSID, raw)
	if err != nil {
		return "", err
	}

	if d.autoReply != "" && d.gateway != nil && device.Number != "" {
		replySID, err := d.gateway.SendSMS(ctx, device.Number, contact, d.autoReply)
		if err != nil {
			log.Printf("dispatch: auto-reply for event %s failed: %v", eventID, err)
		} else if ok, err := d.db.RecordReplyOutcome(eventID, replySID); err != nil || !ok {
			// Raced delete or storage hiccup; the reply went out either way.
			log.Printf("dispatch: could not record reply outcome for event %s (ok=%v): %v", eventID, ok, err)
		}
	}

	return eventID, nil
}

func (d *Dispatcher) ingest(ctx context.Context, webhook, contact, body, externalID, raw string) (string, *database.Device, error) {
	device, err := d.db.DeviceByWebhook(webhook)
	if err != nil {
		return "", nil, fmt.Errorf("%w: resolve device: %v", ErrStorageUnavailable, err)
	}
	if device == nil {
		return "", nil, ErrDeviceNotFound
	}

	eventID, err := d.db.RecordReceived(&database.Message{
		DeviceWebhook:  webhook,
		ContactAccount: contact,
		Body:           body,
		ExternalID:     externalID,
		RawData:        raw,
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: record received: %v", ErrStorageUnavailable, err)
	}
	metrics.InboundReceivedTotal.Inc()

	if d.forwarder.Configured() {
		payload := NewCanonicalPayload(webhook, contact, body)
		if err := d.forwarder.Forward(ctx, payload); err != nil {
			// Local persistence already succeeded; the carrier must get its
			// acknowledgment no matter what the processor does.
			metrics.ForwardFailuresTotal.Inc()
			log.Printf("dispatch: forwarding event %s failed: %v", eventID, err)
		} else {
			metrics.InboundForwardedTotal.Inc()
		}
	}

	if ok, err := d.db.MarkProcessed(eventID); err != nil || !ok {
		log.Printf("dispatch: could not mark event %s processed (ok=%v): %v", eventID, ok, err)
	}

	return eventID, device, nil
}
