// smsbridge - SMS conversation mediation service
// Copyright (C) 2025  smsbridge contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/jredh-dev/smsbridge/internal/dispatch"
)

const (
	// OutboxTopic is where producers publish messages they want sent as SMS.
	OutboxTopic = "sms-outbox"

	// DLQTopic is where messages that exhaust all retries are written so they
	// can be inspected and replayed manually without blocking the main consumer.
	DLQTopic = "sms-dlq"

	// maxRetries is the number of delivery attempts before a message is
	// routed to the DLQ. Each attempt adds a short backoff.
	maxRetries = 3
)

// Producer publishes QueuedMessages to the sms-outbox topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Producer connected to the given Kafka brokers.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        OutboxTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Publish enqueues one message for asynchronous delivery.
func (p *Producer) Publish(ctx context.Context, msg QueuedMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.DeviceWebhook),
		Value: value,
	})
}

// Close releases the producer's Kafka resources.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads QueuedMessages from the sms-outbox topic and pushes them
// through the outbound send path. It commits Kafka offsets only after the
// send outcome has been recorded, providing at-least-once delivery.
//
// On repeated failure a message is forwarded to sms-dlq so the consumer can
// continue making progress without losing the problematic record.
// At-least-once (not exactly-once) is acceptable because SMS delivery is
// not idempotent at the carrier level regardless; producers use stable IDs
// so duplicates can be detected when replaying a partition.
type Consumer struct {
	reader *kafka.Reader
	dlq    *kafka.Writer
	sender *dispatch.Sender
}

// NewConsumer creates a Consumer connected to the given Kafka brokers.
func NewConsumer(brokers []string, sender *dispatch.Sender) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          OutboxTopic,
		GroupID:        "smsbridge-sms-sender",
		MinBytes:       1,
		MaxBytes:       1 << 20, // 1 MiB
		CommitInterval: 0,       // explicit commits only
		StartOffset:    kafka.LastOffset,
	})

	dlq := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}

	return &Consumer{
		reader: reader,
		dlq:    dlq,
		sender: sender,
	}
}

// Run consumes the outbox until ctx is cancelled. A message's offset is
// committed only after dispatch has settled it, either delivered or routed
// to the DLQ, so an interrupted delivery is redelivered on restart.
func (c *Consumer) Run(ctx context.Context) error {
	log.Printf("sms-sender: consuming from topic %q", OutboxTopic)

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.dispatch(ctx, m); err != nil {
			// The message is settled on the DLQ; commit past it so the
			// partition keeps moving.
			log.Printf("sms-sender: routed message key=%s to DLQ: %v", string(m.Key), err)
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			log.Printf("sms-sender: commit failed (message may be redelivered): %v", err)
		}
	}
}

// Close shuts down the reader and the DLQ writer.
func (c *Consumer) Close() error {
	rerr := c.reader.Close()
	werr := c.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// dispatch attempts to send msg up to maxRetries times with backoff.
// Permanent failures (unknown device, no number configured) skip retries
// and go straight to the DLQ; if all attempts fail the raw Kafka message is
// written to the DLQ either way.
func (c *Consumer) dispatch(ctx context.Context, m kafka.Message) error {
	var msg QueuedMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return c.sendToDLQ(ctx, m, fmt.Errorf("unmarshal: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		sid, err := c.sender.Send(ctx, msg.DeviceWebhook, msg.To, msg.Body)
		if err == nil {
			log.Printf("sms-sender: sent id=%s to=%s sid=%s (attempt %d)", msg.ID, msg.To, sid, attempt)
			return nil
		}
		lastErr = err

		log.Printf("sms-sender: attempt %d/%d failed for id=%s: %v", attempt, maxRetries, msg.ID, err)

		if permanent(err) {
			break
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt) * 2 * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return c.sendToDLQ(ctx, m, lastErr)
}

// permanent reports whether retrying the send could possibly succeed.
func permanent(err error) bool {
	return errors.Is(err, dispatch.ErrDeviceNotFound) ||
		errors.Is(err, dispatch.ErrNoNumberConfigured) ||
		errors.Is(err, dispatch.ErrGatewayNotConfigured)
}

// sendToDLQ copies the raw outbox record onto the dead-letter topic,
// untouched so it can be replayed verbatim, and hands reason back for the
// caller's log line.
func (c *Consumer) sendToDLQ(ctx context.Context, original kafka.Message, reason error) error {
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: original.Value,
	})
	if err != nil {
		log.Printf("sms-sender: CRITICAL - could not write to DLQ: %v", err)
	}
	return reason
}
