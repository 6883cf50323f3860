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

// Package outbox provides Kafka-queued outbound SMS delivery: producers
// publish messages to the sms-outbox topic and a consumer drives the
// outbound send path, with a dead-letter topic for poison messages.
package outbox

// QueuedMessage is the canonical schema for messages on the sms-outbox
// topic. Producers publish JSON-encoded QueuedMessages; the sms-sender
// consumer reads them and pushes them through the outbound send path.
//
// JSON schema:
//
//	{
//	  "id":             "550e8400-e29b-41d4-a716-446655440000",
//	  "device_webhook": "b3e9d7c2-…",
//	  "to":             "+15551234567",
//	  "body":           "hello world"
//	}
type QueuedMessage struct {
	// ID is a producer-generated UUID used for idempotency and correlation.
	// The consumer logs this value alongside the delivery outcome so
	// duplicate sends can be detected when replaying a partition.
	ID string `json:"id"`

	// DeviceWebhook is the routing key of the device that should send.
	DeviceWebhook string `json:"device_webhook"`

	// To is the E.164-formatted destination phone number.
	To string `json:"to"`

	// Body is the UTF-8 SMS message body.
	Body string `json:"body"`
}
