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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jredh-dev/smsbridge/config"
	"github.com/jredh-dev/smsbridge/internal/carrier"
	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/dispatch"
	"github.com/jredh-dev/smsbridge/internal/handlers"
	"github.com/jredh-dev/smsbridge/internal/metrics"
	"github.com/jredh-dev/smsbridge/internal/outbox"
)

func main() {
	cfg := config.Load()

	// Initialize SQLite database.
	db, err := database.Open(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Carrier gateway. An unconfigured gateway still lets the storage-only
	// endpoints work; gateway-backed operations report "not configured".
	var gateway *carrier.Twilio
	var sender carrier.Sender
	if cfg.Twilio.Configured() {
		gateway = carrier.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken)
		sender = gateway
	} else {
		log.Println("WARNING: Twilio credentials not set - carrier operations disabled")
	}

	forwarder := dispatch.NewForwarder(cfg.Processor.Endpoint, cfg.Processor.Timeout)
	if forwarder.Configured() {
		log.Printf("Forwarding inbound messages to %s", cfg.Processor.Endpoint)
	}

	dispatcher := dispatch.NewDispatcher(db, forwarder, sender, cfg.Twilio.AutoReply)
	outboundSender := dispatch.NewSender(db, sender)

	// Kafka outbox producer, for the enqueue endpoint.
	var producer *outbox.Producer
	if cfg.Kafka.Brokers != "" {
		producer = outbox.NewProducer(strings.Split(cfg.Kafka.Brokers, ","))
		defer producer.Close()
	}

	metrics.Register()

	h := handlers.New(db, dispatcher, outboundSender, gateway, producer, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Carrier webhook (Twilio POSTs form data here).
	r.Post("/webhook/sms/{webhook}", h.CarrierWebhook)

	// Message pipeline.
	r.Route("/message", func(r chi.Router) {
		r.Post("/receive", h.ReceiveMessage)
		r.Post("/send", h.SendMessage)
		r.Post("/enqueue", h.EnqueueMessage)
		r.Get("/history/{webhook}/{contact}", h.History)
		r.Get("/unprocessed", h.Unprocessed)
	})

	// Device directory.
	r.Route("/device", func(r chi.Router) {
		r.Post("/create", h.CreateDevice)
		r.Get("/id/{id}", h.GetDeviceByID)
		r.Get("/{webhook}", h.GetDevice)
		r.Patch("/{webhook}", h.UpdateDevice)
		r.Delete("/{webhook}", h.DeleteDevice)
	})
	r.Get("/devices", h.ListDevices)

	// Carrier number inventory.
	r.Route("/phone-numbers", func(r chi.Router) {
		r.Post("/search", h.SearchNumbers)
		r.Get("/", h.ListNumbers)
		r.Post("/purchase", h.PurchaseNumber)
		r.Delete("/{sid}", h.ReleaseNumber)
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("smsbridge server starting on %s (env: %s)", addr, cfg.Server.Env)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
