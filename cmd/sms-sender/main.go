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

// sms-sender is a long-running Kafka consumer that reads outbound SMS
// messages from the "sms-outbox" topic and delivers them through the
// carrier gateway, recording every outcome in the shared conversation log.
//
// Configuration is done entirely via environment variables so the binary
// runs identically in Docker, on bare metal, or in any CI environment:
//
//	KAFKA_BROKERS       comma-separated broker list, e.g. "kafka:9092"
//	TWILIO_ACCOUNT_SID  Twilio account SID (starts with "AC...")
//	TWILIO_AUTH_TOKEN   Twilio auth token
//	DB_PATH             path to the shared SQLite conversation log
package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jredh-dev/smsbridge/config"
	"github.com/jredh-dev/smsbridge/internal/carrier"
	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/dispatch"
	"github.com/jredh-dev/smsbridge/internal/metrics"
	"github.com/jredh-dev/smsbridge/internal/outbox"
)

func main() {
	cfg := config.Load()

	if cfg.Kafka.Brokers == "" {
		log.Fatal("sms-sender: KAFKA_BROKERS is not set")
	}
	if !cfg.Twilio.Configured() {
		log.Fatal("sms-sender: TWILIO_ACCOUNT_SID / TWILIO_AUTH_TOKEN are not set")
	}

	db, err := database.Open(cfg.DB.Path)
	if err != nil {
		log.Fatalf("sms-sender: open database: %v", err)
	}
	defer db.Close()

	metrics.Register()

	gateway := carrier.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
	sender := dispatch.NewSender(db, gateway)

	consumer := outbox.NewConsumer(strings.Split(cfg.Kafka.Brokers, ","), sender)
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Printf("sms-sender: error closing consumer: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("sms-sender: starting (brokers=%s)", cfg.Kafka.Brokers)
	if err := consumer.Run(ctx); err != nil {
		log.Fatalf("sms-sender: fatal error: %v", err)
	}
	log.Println("sms-sender: shutdown complete")
}
