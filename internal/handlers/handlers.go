package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jredh-dev/smsbridge/config"
	"github.com/jredh-dev/smsbridge/internal/carrier"
	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/dispatch"
	"github.com/jredh-dev/smsbridge/internal/outbox"
)

// Handler holds dependencies for HTTP handlers. Everything is injected at
// startup; gateway and producer may be nil when the carrier or Kafka are
// not configured.
type Handler struct {
	db         *database.DB
	dispatcher *dispatch.Dispatcher
	sender     *dispatch.Sender
	gateway    *carrier.Twilio
	producer   *outbox.Producer
	cfg        *config.Config
}

// New creates a new Handler.
func New(db *database.DB, dispatcher *dispatch.Dispatcher, sender *dispatch.Sender, gateway *carrier.Twilio, producer *outbox.Producer, cfg *config.Config) *Handler {
	return &Handler{
		db:         db,
		dispatcher: dispatcher,
		sender:     sender,
		gateway:    gateway,
		producer:   producer,
		cfg:        cfg,
	}
}

// --- helpers ---

func jsonOK(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// carrierReady reports whether gateway-backed endpoints can work, writing a
// structured "not configured" error when they cannot.
func (h *Handler) carrierReady(w http.ResponseWriter) bool {
	if h.gateway == nil || !h.gateway.Configured() {
		jsonError(w, "carrier not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}
