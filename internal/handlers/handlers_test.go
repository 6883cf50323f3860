package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jredh-dev/smsbridge/config"
	"github.com/jredh-dev/smsbridge/internal/carrier"
	"github.com/jredh-dev/smsbridge/internal/database"
	"github.com/jredh-dev/smsbridge/internal/dispatch"
)

// newTestRouter wires a router the same way cmd/server does, against a
// throwaway database. tw may be nil to exercise the carrier-less degraded
// mode.
func newTestRouter(t *testing.T, tw *carrier.Twilio) (chi.Router, *database.DB) {
	t.Helper()

	db, err := database.Open(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		History: config.HistoryConfig{DefaultLimit: 50, MaxLimit: 500},
	}

	var gw carrier.Sender
	if tw != nil {
		gw = tw
	}
	dispatcher := dispatch.NewDispatcher(db, dispatch.NewForwarder("", 0), gw, "")
	sender := dispatch.NewSender(db, gw)

	h := New(db, dispatcher, sender, tw, nil, cfg)

	r := chi.NewRouter()
	r.Post("/webhook/sms/{webhook}", h.CarrierWebhook)
	r.Route("/message", func(r chi.Router) {
		r.Post("/receive", h.ReceiveMessage)
		r.Post("/send", h.SendMessage)
		r.Post("/enqueue", h.EnqueueMessage)
		r.Get("/history/{webhook}/{contact}", h.History)
		r.Get("/unprocessed", h.Unprocessed)
	})
	r.Route("/device", func(r chi.Router) {
		r.Post("/create", h.CreateDevice)
		r.Get("/id/{id}", h.GetDeviceByID)
		r.Get("/{webhook}", h.GetDevice)
		r.Patch("/{webhook}", h.UpdateDevice)
		r.Delete("/{webhook}", h.DeleteDevice)
	})
	r.Get("/devices", h.ListDevices)

	return r, db
}

// twilioStub returns a Twilio client pointed at a local API stub. On send it
// answers with the given sid, or a carrier rejection when sid is empty.
func twilioStub(t *testing.T, sid string) *carrier.Twilio {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sid == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"` + sid + `","status":"queued"}`))
	}))
	t.Cleanup(srv.Close)
	return carrier.NewWithBaseURL("AC000", "token", srv.URL)
}

func doJSON(t *testing.T, r chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func mustCreateDevice(t *testing.T, r chi.Router, webhook, number string) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/device/create", map[string]interface{}{
		"device_name":    "Support",
		"device_webhook": webhook,
		"device_number":  number,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create device: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestSendMessage_LogsSingleSentEntry(t *testing.T) {
	router, db := newTestRouter(t, twilioStub(t, "SM001"))
	mustCreateDevice(t, router, "K1", "+18005550100")

	w := doJSON(t, router, http.MethodPost, "/message/send", map[string]string{
		"device_webhook":  "K1",
		"contact_account": "+15551234567",
		"message":         "Hello",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success    bool   `json:"success"`
		MessageSID string `json:"message_sid"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.MessageSID != "SM001" {
		t.Errorf("resp = %+v, want success with SM001", resp)
	}

	msgs, err := db.Conversation("K1", "+15551234567", 10)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly 1 log entry, got %d", len(msgs))
	}
	if msgs[0].Status != "sent" || msgs[0].ExternalID != "SM001" {
		t.Errorf("entry = (status=%q, external_id=%q), want (sent, SM001)", msgs[0].Status, msgs[0].ExternalID)
	}
}

func TestSendMessage_CarrierRejection(t *testing.T) {
	router, db := newTestRouter(t, twilioStub(t, ""))
	mustCreateDevice(t, router, "K1", "+18005550100")

	w := doJSON(t, router, http.MethodPost, "/message/send", map[string]string{
		"device_webhook":  "K1",
		"contact_account": "bogus",
		"message":         "Hello",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("rejections are structured failures, got status %d", w.Code)
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("resp = %+v, want success=false with an error message", resp)
	}

	msgs, err := db.Conversation("K1", "bogus", 10)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Status != "error" {
		t.Errorf("expected a single error entry, got %+v", msgs)
	}
	if len(msgs) == 1 && !strings.Contains(msgs[0].ErrorDetail, "21211") {
		t.Errorf("ErrorDetail = %q, want the carrier rejection message", msgs[0].ErrorDetail)
	}
}

func TestSendMessage_CarrierNotConfigured(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	mustCreateDevice(t, router, "K1", "+18005550100")

	w := doJSON(t, router, http.MethodPost, "/message/send", map[string]string{
		"device_webhook":  "K1",
		"contact_account": "+15551234567",
		"message":         "Hello",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestSendMessage_UnknownDevice(t *testing.T) {
	router, db := newTestRouter(t, twilioStub(t, "SM001"))

	w := doJSON(t, router, http.MethodPost, "/message/send", map[string]string{
		"device_webhook":  "K404",
		"contact_account": "+15551234567",
		"message":         "Hello",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	msgs, err := db.Conversation("K404", "+15551234567", 10)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected zero log entries, got %d", len(msgs))
	}
}

func TestReceiveMessage(t *testing.T) {
	router, db := newTestRouter(t, nil)
	mustCreateDevice(t, router, "K1", "+18005550100")

	w := doJSON(t, router, http.MethodPost, "/message/receive", map[string]string{
		"device_webhook":  "K1",
		"contact_account": "+15551234567",
		"message":         "Hi",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}

	msgs, err := db.Conversation("K1", "+15551234567", 10)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Direction != database.DirectionReceived {
		t.Fatalf("expected one received entry, got %+v", msgs)
	}
	if !msgs[0].Processed {
		t.Error("with no processor configured the event should still end processed")
	}
}

func TestReceiveMessage_UnknownDevice(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/message/receive", map[string]string{
		"device_webhook":  "K404",
		"contact_account": "+15551234567",
		"message":         "Hi",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestCarrierWebhook_RespondsEmptyTwiML(t *testing.T) {
	router, db := newTestRouter(t, nil)
	mustCreateDevice(t, router, "K1", "+18005550100")

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("To", "+18005550100")
	form.Set("Body", "Hi")
	form.Set("MessageSid", "SM123")

	req := httptest.NewRequest(http.MethodPost, "/webhook/sms/K1", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/xml" {
		t.Errorf("Content-Type = %q, want text/xml", ct)
	}
	if !strings.Contains(w.Body.String(), "<Response></Response>") {
		t.Errorf("body = %q, want empty TwiML response", w.Body.String())
	}

	msgs, err := db.Conversation("K1", "+15551234567", 10)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ExternalID != "SM123" {
		t.Fatalf("expected one entry carrying SM123, got %+v", msgs)
	}
}

func TestCarrierWebhook_UnknownDevice(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	form := url.Values{}
	form.Set("From", "+15551234567")
	form.Set("Body", "Hi")

	req := httptest.NewRequest(http.MethodPost, "/webhook/sms/K404", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHistory_NewestFirstWithLimit(t *testing.T) {
	router, db := newTestRouter(t, nil)
	mustCreateDevice(t, router, "K1", "+18005550100")

	now := time.Now().UTC().Truncate(time.Second)
	for i, body := range []string{"first", "second", "third"} {
		_, err := db.RecordReceived(&database.Message{
			DeviceWebhook:  "K1",
			ContactAccount: "+15551234567",
			Body:           body,
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordReceived: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/message/history/K1/+15551234567?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var msgs []*database.Message
	if err := json.NewDecoder(w.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(msgs))
	}
	if msgs[0].Body != "third" || msgs[1].Body != "second" {
		t.Errorf("order = (%q, %q), want newest first", msgs[0].Body, msgs[1].Body)
	}
}

func TestHistory_EmptyConversation(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/message/history/K1/+15551234567", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want an empty JSON array", got)
	}
}

func TestEnqueueMessage_OutboxNotConfigured(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/message/enqueue", map[string]string{
		"device_webhook":  "K1",
		"contact_account": "+15551234567",
		"message":         "Hello",
	})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestDeviceLifecycle(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	// Create.
	w := doJSON(t, router, http.MethodPost, "/device/create", map[string]string{
		"device_name":    "Support",
		"device_webhook": "K1",
		"device_number":  "+18005550100",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		DeviceID string `json:"device_id"`
		Webhook  string `json:"device_webhook"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Webhook != "K1" || created.DeviceID == "" {
		t.Fatalf("create response = %+v", created)
	}

	// Duplicate routing key is rejected.
	w = doJSON(t, router, http.MethodPost, "/device/create", map[string]string{
		"device_name":    "Other",
		"device_webhook": "K1",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create: status = %d, want 409", w.Code)
	}

	// Fetch by webhook and by id.
	for _, path := range []string{"/device/K1", "/device/id/" + created.DeviceID} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200", path, rec.Code)
		}
	}

	// Update mutable fields; routing key stays put.
	w = doJSON(t, router, http.MethodPatch, "/device/K1", map[string]string{
		"device_name": "Support v2",
		"status":      database.StatusDisabled,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update: status %d, body %s", w.Code, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/device/K1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var device database.Device
	if err := json.NewDecoder(rec.Body).Decode(&device); err != nil {
		t.Fatalf("decode device: %v", err)
	}
	if device.Name != "Support v2" || device.Status != database.StatusDisabled {
		t.Errorf("device after update = %+v", device)
	}
	if device.Webhook != "K1" {
		t.Errorf("routing key changed to %q", device.Webhook)
	}

	// Invalid status is rejected.
	w = doJSON(t, router, http.MethodPatch, "/device/K1", map[string]string{"status": "paused"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status: status = %d, want 400", w.Code)
	}

	// Delete, then the device is gone.
	req = httptest.NewRequest(http.MethodDelete, "/device/K1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/device/K1", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestCreateDevice_RequiresName(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/device/create", map[string]string{
		"device_description": "no name",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestListDevices(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	mustCreateDevice(t, router, "K1", "+18005550100")
	mustCreateDevice(t, router, "K2", "+18005550101")

	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var devices []*database.Device
	if err := json.NewDecoder(w.Body).Decode(&devices); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("expected 2 devices, got %d", len(devices))
	}
}
