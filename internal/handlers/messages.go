package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/dispatch"
	"github.com/jredh-dev/smsbridge/internal/outbox"
)

type receiveReq struct {
	DeviceWebhook  string            `json:"device_webhook"`
	ContactAccount string            `json:"contact_account"`
	Message        string            `json:"message"`
	Extra          map[string]string `json:"extra,omitempty"` // channel-specific extension fields
}

// ReceiveMessage ingests an inbound message from a non-carrier source.
// POST /message/receive
func (h *Handler) ReceiveMessage(w http.ResponseWriter, r *http.Request) {
	var req receiveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceWebhook == "" || req.ContactAccount == "" {
		jsonError(w, "device_webhook and contact_account are required", http.StatusBadRequest)
		return
	}

	// The full request is kept verbatim as the audit blob.
	raw, _ := json.Marshal(req)

	_, err := h.dispatcher.HandleInbound(r.Context(), req.DeviceWebhook, req.ContactAccount, req.Message, string(raw))
	if err != nil {
		if errors.Is(err, dispatch.ErrDeviceNotFound) {
			jsonError(w, "device not found", http.StatusNotFound)
			return
		}
		log.Printf("handlers: receive failed for device %s: %v", req.DeviceWebhook, err)
		jsonError(w, "error processing message", http.StatusInternalServerError)
		return
	}

	jsonOK(w, http.StatusOK, map[string]string{"message": "received"})
}

// CarrierWebhook ingests a carrier-originated inbound SMS. Twilio POSTs
// form data; the response is empty TwiML so the carrier sends nothing back
// on its own — any auto-reply has already gone out through the REST API.
// POST /webhook/sms/{webhook}
func (h *Handler) CarrierWebhook(w http.ResponseWriter, r *http.Request) {
	webhook := chi.URLParam(r, "webhook")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := r.FormValue("Body")
	messageSID := r.FormValue("MessageSid")

	raw, _ := json.Marshal(map[string]string{
		"MessageSid": messageSID,
		"From":       from,
		"To":         r.FormValue("To"),
		"Body":       body,
		"NumMedia":   r.FormValue("NumMedia"),
	})

	_, err := h.dispatcher.HandleCarrierInbound(r.Context(), webhook, from, body, messageSID, string(raw))
	if err != nil {
		if errors.Is(err, dispatch.ErrDeviceNotFound) {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		log.Printf("handlers: carrier webhook failed for device %s: %v", webhook, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<Response></Response>`)
}

type sendReq struct {
	DeviceWebhook  string `json:"device_webhook"`
	ContactAccount string `json:"contact_account"`
	Message        string `json:"message"`
}

type sendResp struct {
	Success    bool   `json:"success"`
	MessageSID string `json:"message_sid,omitempty"`
	Error      string `json:"error,omitempty"`
}

// SendMessage dispatches one outbound SMS synchronously. Carrier rejections
// come back as a structured failure, never as an unhandled fault.
// POST /message/send
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceWebhook == "" || req.ContactAccount == "" || req.Message == "" {
		jsonError(w, "device_webhook, contact_account, and message are required", http.StatusBadRequest)
		return
	}

	sid, err := h.sender.Send(r.Context(), req.DeviceWebhook, req.ContactAccount, req.Message)
	switch {
	case err == nil:
		jsonOK(w, http.StatusOK, sendResp{Success: true, MessageSID: sid})
	case errors.Is(err, dispatch.ErrDeviceNotFound):
		jsonError(w, "device not found", http.StatusNotFound)
	case errors.Is(err, dispatch.ErrNoNumberConfigured):
		jsonError(w, "device has no number configured", http.StatusBadRequest)
	case errors.Is(err, dispatch.ErrGatewayNotConfigured):
		jsonError(w, "carrier not configured", http.StatusServiceUnavailable)
	case errors.Is(err, dispatch.ErrSendFailed):
		jsonOK(w, http.StatusOK, sendResp{Success: false, Error: err.Error()})
	default:
		log.Printf("handlers: send failed for device %s: %v", req.DeviceWebhook, err)
		jsonError(w, "error sending message", http.StatusInternalServerError)
	}
}

// EnqueueMessage publishes an outbound SMS to the Kafka outbox for
// asynchronous delivery by the sms-sender daemon.
// POST /message/enqueue
func (h *Handler) EnqueueMessage(w http.ResponseWriter, r *http.Request) {
	if h.producer == nil {
		jsonError(w, "outbox not configured", http.StatusServiceUnavailable)
		return
	}

	var req sendReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DeviceWebhook == "" || req.ContactAccount == "" || req.Message == "" {
		jsonError(w, "device_webhook, contact_account, and message are required", http.StatusBadRequest)
		return
	}

	msg := outbox.QueuedMessage{
		ID:            uuid.New().String(),
		DeviceWebhook: req.DeviceWebhook,
		To:            req.ContactAccount,
		Body:          req.Message,
	}
	if err := h.producer.Publish(r.Context(), msg); err != nil {
		log.Printf("handlers: enqueue failed for device %s: %v", req.DeviceWebhook, err)
		jsonError(w, "error enqueueing message", http.StatusInternalServerError)
		return
	}

	jsonOK(w, http.StatusAccepted, map[string]interface{}{"queued": true, "id": msg.ID})
}

// History returns the conversation between a device and a contact,
// newest first.
// GET /message/history/{webhook}/{contact}?limit=
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	webhook := chi.URLParam(r, "webhook")
	contact := chi.URLParam(r, "contact")

	limit := h.cfg.History.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > h.cfg.History.MaxLimit {
		limit = h.cfg.History.MaxLimit
	}

	msgs, err := h.db.Conversation(webhook, contact, limit)
	if err != nil {
		log.Printf("handlers: history query failed for device %s: %v", webhook, err)
		jsonError(w, "error fetching history", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*database.Message{}
	}
	jsonOK(w, http.StatusOK, msgs)
}

// Unprocessed returns inbound events that never reached the processed
// state, oldest first, for out-of-band replay.
// GET /message/unprocessed?device_webhook=
func (h *Handler) Unprocessed(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.db.Unprocessed(r.URL.Query().Get("device_webhook"))
	if err != nil {
		log.Printf("handlers: unprocessed query failed: %v", err)
		jsonError(w, "error fetching unprocessed messages", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []*database.Message{}
	}
	jsonOK(w, http.StatusOK, msgs)
}
