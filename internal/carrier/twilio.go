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

// Package carrier talks to the Twilio REST API for sending SMS and managing
// the account's phone number inventory.
package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioBaseURL = "https://api.twilio.com"

// ErrNotConfigured is returned by every gateway operation when carrier
// credentials are absent. Callers report it as a config error instead of
// crashing.
var ErrNotConfigured = errors.New("carrier credentials not configured")

// Sender is the interface any SMS backend must implement. Keeping it minimal
// means backends are trivially swappable without touching the dispatch layer.
type Sender interface {
	// SendSMS dispatches one message and returns the carrier-assigned
	// message id.
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

// Twilio sends outbound SMS and manages numbers via the Twilio REST API
// using stdlib net/http only — no SDK dependency. The SDK pulls in a large
// dependency tree for what is three form-encoded endpoints.
type Twilio struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// New creates a Twilio gateway. Empty credentials yield a client whose every
// call fails with ErrNotConfigured; the service still starts and serves the
// storage-only endpoints.
func New(accountSID, authToken string) *Twilio {
	return &Twilio{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    twilioBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithBaseURL is New with an overridable API root, used by tests to point
// the client at a local stub.
func NewWithBaseURL(accountSID, authToken, baseURL string) *Twilio {
	t := New(accountSID, authToken)
	t.baseURL = strings.TrimRight(baseURL, "/")
	return t
}

// Configured reports whether carrier credentials are present.
func (t *Twilio) Configured() bool {
	return t.accountSID != "" && t.authToken != ""
}

// twilioMessage captures just the response fields we care about.
type twilioMessage struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// twilioError is the error body Twilio returns on non-2xx status.
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendSMS dispatches one message through POST /Messages.json and returns the
// carrier message SID. It returns a non-nil error if the HTTP request fails
// or Twilio reports a non-2xx status; the caller decides how to record the
// outcome.
func (t *Twilio) SendSMS(ctx context.Context, from, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	var msg twilioMessage
	if err := t.do(ctx, http.MethodPost, "/Messages.json", form, &msg); err != nil {
		return "", err
	}
	return msg.SID, nil
}

// do issues one authenticated API call and decodes the response into out.
func (t *Twilio) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	if !t.Configured() {
		return ErrNotConfigured
	}

	endpoint := t.baseURL + "/2010-04-01/Accounts/" + t.accountSID + path

	var reqBody io.Reader
	if form != nil {
		reqBody = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", strings.ToLower(method), err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var terr twilioError
		if err := json.Unmarshal(respBody, &terr); err == nil && terr.Message != "" {
			return fmt.Errorf("twilio error %d: %s", terr.Code, terr.Message)
		}
		return fmt.Errorf("twilio returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
