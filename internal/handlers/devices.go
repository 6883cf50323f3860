package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jredh-dev/smsbridge/internal/database"
)

type createDeviceReq struct {
	Name        string            `json:"device_name"`
	Description string            `json:"device_description"`
	Webhook     string            `json:"device_webhook,omitempty"` // optional: caller-chosen routing key
	Number      string            `json:"device_number,omitempty"`  // optional: explicit carrier number
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type createDeviceResp struct {
	Message  string `json:"message"`
	DeviceID string `json:"device_id"`
	Webhook  string `json:"device_webhook"`
	Number   string `json:"device_number,omitempty"`
}

// CreateDevice registers a new SMS channel. When no number is supplied and
// the carrier is configured, the first provisioned account number is
// assigned, matching the provisioning flow the carrier console expects.
// POST /device/create
func (h *Handler) CreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		jsonError(w, "device_name is required", http.StatusBadRequest)
		return
	}

	number := req.Number
	accountSID := ""
	if number == "" && h.gateway != nil && h.gateway.Configured() {
		numbers, err := h.gateway.ListNumbers(r.Context())
		if err != nil {
			log.Printf("handlers: listing carrier numbers failed: %v", err)
			jsonError(w, "error listing carrier numbers", http.StatusBadGateway)
			return
		}
		if len(numbers) == 0 {
			jsonError(w, "no carrier numbers available", http.StatusBadRequest)
			return
		}
		number = numbers[0].PhoneNumber
		accountSID = numbers[0].SID
	}

	device := &database.Device{
		Webhook:     req.Webhook,
		Name:        req.Name,
		Description: req.Description,
		Number:      number,
		AccountSID:  accountSID,
		Metadata:    req.Metadata,
	}
	webhook, err := h.db.CreateDevice(device)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateWebhook) {
			jsonError(w, "device_webhook already in use", http.StatusConflict)
			return
		}
		log.Printf("handlers: create device failed: %v", err)
		jsonError(w, "error creating device", http.StatusInternalServerError)
		return
	}

	jsonOK(w, http.StatusCreated, createDeviceResp{
		Message:  "device created",
		DeviceID: device.ID,
		Webhook:  webhook,
		Number:   device.Number,
	})
}

// GetDevice returns a device by routing key.
// GET /device/{webhook}
func (h *Handler) GetDevice(w http.ResponseWriter, r *http.Request) {
	device, err := h.db.DeviceByWebhook(chi.URLParam(r, "webhook"))
	if err != nil {
		log.Printf("handlers: get device failed: %v", err)
		jsonError(w, "error fetching device", http.StatusInternalServerError)
		return
	}
	if device == nil {
		jsonError(w, "device not found", http.StatusNotFound)
		return
	}
	jsonOK(w, http.StatusOK, device)
}

// GetDeviceByID returns a device by its internal id. Malformed ids are
// simply not found.
// GET /device/id/{id}
func (h *Handler) GetDeviceByID(w http.ResponseWriter, r *http.Request) {
	device, err := h.db.DeviceByID(chi.URLParam(r, "id"))
	if err != nil {
		log.Printf("handlers: get device by id failed: %v", err)
		jsonError(w, "error fetching device", http.StatusInternalServerError)
		return
	}
	if device == nil {
		jsonError(w, "device not found", http.StatusNotFound)
		return
	}
	jsonOK(w, http.StatusOK, device)
}

type updateDeviceReq struct {
	Name        *string           `json:"device_name"`
	Description *string           `json:"device_description"`
	Number      *string           `json:"device_number"`
	Status      *string           `json:"status"`
	Metadata    map[string]string `json:"metadata"`
}

// UpdateDevice applies a partial update to a device's mutable fields.
// PATCH /device/{webhook}
func (h *Handler) UpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Status != nil && *req.Status != database.StatusActive && *req.Status != database.StatusDisabled {
		jsonError(w, "status must be active or disabled", http.StatusBadRequest)
		return
	}

	modified, err := h.db.UpdateDevice(chi.URLParam(r, "webhook"), database.DeviceUpdate{
		Name:        req.Name,
		Description: req.Description,
		Number:      req.Number,
		Status:      req.Status,
		Metadata:    req.Metadata,
	})
	if err != nil {
		log.Printf("handlers: update device failed: %v", err)
		jsonError(w, "error updating device", http.StatusInternalServerError)
		return
	}
	if !modified {
		jsonError(w, "device not found", http.StatusNotFound)
		return
	}
	jsonOK(w, http.StatusOK, map[string]bool{"updated": true})
}

// DeleteDevice removes a device. Conversation log entries referencing it
// are kept.
// DELETE /device/{webhook}
func (h *Handler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.db.DeleteDevice(chi.URLParam(r, "webhook"))
	if err != nil {
		log.Printf("handlers: delete device failed: %v", err)
		jsonError(w, "error deleting device", http.StatusInternalServerError)
		return
	}
	if !deleted {
		jsonError(w, "device not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDevices returns registered devices with pagination.
// GET /devices?limit=&offset=
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	devices, err := h.db.ListDevices(limit, offset)
	if err != nil {
		log.Printf("handlers: list devices failed: %v", err)
		jsonError(w, "error listing devices", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []*database.Device{}
	}
	jsonOK(w, http.StatusOK, devices)
}
