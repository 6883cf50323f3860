package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jredh-dev/smsbridge/internal/carrier"
)

type searchNumbersReq struct {
	CountryCode string `json:"country_code"`
	AreaCode    string `json:"area_code,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// SearchNumbers lists purchasable numbers from the carrier pool.
// POST /phone-numbers/search
func (h *Handler) SearchNumbers(w http.ResponseWriter, r *http.Request) {
	if !h.carrierReady(w) {
		return
	}

	var req searchNumbersReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	numbers, err := h.gateway.SearchNumbers(r.Context(), req.CountryCode, req.AreaCode, req.Limit)
	if err != nil {
		log.Printf("handlers: number search failed: %v", err)
		jsonError(w, "error searching numbers", http.StatusBadGateway)
		return
	}
	if numbers == nil {
		numbers = []carrier.PhoneNumber{}
	}
	jsonOK(w, http.StatusOK, numbers)
}

// ListNumbers returns the numbers provisioned on the carrier account.
// GET /phone-numbers
func (h *Handler) ListNumbers(w http.ResponseWriter, r *http.Request) {
	if !h.carrierReady(w) {
		return
	}

	numbers, err := h.gateway.ListNumbers(r.Context())
	if err != nil {
		log.Printf("handlers: listing numbers failed: %v", err)
		jsonError(w, "error listing numbers", http.StatusBadGateway)
		return
	}
	if numbers == nil {
		numbers = []carrier.PhoneNumber{}
	}
	jsonOK(w, http.StatusOK, numbers)
}

type purchaseNumberReq struct {
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name,omitempty"`
}

type numberResp struct {
	Success     bool   `json:"success"`
	PhoneNumber string `json:"phone_number,omitempty"`
	SID         string `json:"sid,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PurchaseNumber buys a number from the available pool. Consumes carrier
// credits.
// POST /phone-numbers/purchase
func (h *Handler) PurchaseNumber(w http.ResponseWriter, r *http.Request) {
	if !h.carrierReady(w) {
		return
	}

	var req purchaseNumberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PhoneNumber == "" {
		jsonError(w, "phone_number is required", http.StatusBadRequest)
		return
	}

	purchased, err := h.gateway.PurchaseNumber(r.Context(), req.PhoneNumber, req.FriendlyName)
	if err != nil {
		jsonOK(w, http.StatusOK, numberResp{Success: false, Error: err.Error()})
		return
	}
	jsonOK(w, http.StatusOK, numberResp{
		Success:     true,
		PhoneNumber: purchased.PhoneNumber,
		SID:         purchased.SID,
	})
}

// ReleaseNumber removes a provisioned number from the carrier account.
// DELETE /phone-numbers/{sid}
func (h *Handler) ReleaseNumber(w http.ResponseWriter, r *http.Request) {
	if !h.carrierReady(w) {
		return
	}

	sid := chi.URLParam(r, "sid")
	if err := h.gateway.ReleaseNumber(r.Context(), sid); err != nil {
		jsonOK(w, http.StatusOK, numberResp{Success: false, Error: err.Error()})
		return
	}
	jsonOK(w, http.StatusOK, numberResp{Success: true, SID: sid})
}
