package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// forwardAttempts pins the single-attempt, no-retry forwarding policy.
// Recovery for dropped events goes through the unprocessed queue, not
// through retries on the webhook path.
const forwardAttempts = 1

// defaultForwardTimeout bounds how long a forwarding attempt may hold up the
// inbound acknowledgment.
const defaultForwardTimeout = 10 * time.Second

// Forwarder delivers canonical payloads to the external conversation
// processor. An empty endpoint disables forwarding entirely.
type Forwarder struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
}

// NewForwarder creates a Forwarder for the given endpoint. timeout <= 0
// falls back to the default bound.
func NewForwarder(endpoint string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = defaultForwardTimeout
	}
	return &Forwarder{
		endpoint:   endpoint,
		timeout:    timeout,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Configured reports whether an external processor endpoint is set.
func (f *Forwarder) Configured() bool {
	return f != nil && f.endpoint != ""
}

// Forward posts the payload to the processor. It makes exactly
// forwardAttempts attempts and returns a non-nil error on timeout,
// connection failure, or non-2xx status. The caller owns the isolation
// policy; Forward never swallows.
func (f *Forwarder) Forward(ctx context.Context, payload CanonicalPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < forwardAttempts; attempt++ {
		lastErr = f.post(ctx, body)
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("processor returned %d", resp.StatusCode)
	}
	return nil
}
