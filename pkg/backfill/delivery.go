package backfill

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"
)

const (
	// ingestPath is the fixed sub-path appended to the configured endpoint.
	ingestPath = "/v1/logs"

	// maxErrorLen bounds stored error messages so oversized response bodies
	// never flood the final report.
	maxErrorLen = 500

	baseBackoff = time.Second
)

// DeliveryResponse is the slice of the backend's 2xx response body we read.
// Processed is only used for display; the schema is otherwise unvalidated.
type DeliveryResponse struct {
	Processed int `json:"processed"`
}

// DeliveryResult is the terminal state of one batch delivery.
type DeliveryResult struct {
	Success  bool
	Attempts int
	Error    string
}

// Sender performs one network delivery of a payload.
type Sender func(ctx context.Context, payload *Payload) (*DeliveryResponse, error)

// statusRe extracts the embedded 3-digit HTTP status from an error message.
// The "status NNN" embedding is the contract with NewHTTPSender below; if the
// transport changes how it signals status codes this must change in lockstep.
var statusRe = regexp.MustCompile(`status (\d{3})`)

// IsRetryableError reports whether a delivery error is worth retrying.
// 429 and 5xx are retryable; other 4xx are permanent client errors. Errors
// without an extractable status (network-level failures) fail open toward
// retrying.
func IsRetryableError(err error) bool {
	m := statusRe.FindStringSubmatch(err.Error())
	if m == nil {
		return true
	}

	code, convErr := strconv.Atoi(m[1])
	if convErr != nil {
		return true
	}

	if code == http.StatusTooManyRequests {
		return true
	}
	if code >= 400 && code < 500 {
		return false
	}
	return true
}

// TruncateError bounds an error message for storage and display.
func TruncateError(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	return msg[:maxErrorLen] + "..."
}

// Deliverer is the retry state machine over a single payload. It knows
// nothing about batching or file I/O. Sleep is injectable so tests can
// observe backoff without waiting.
type Deliverer struct {
	Send        Sender
	Sleep       func(time.Duration)
	MaxAttempts int
}

// DeliverWithRetry drives one payload to a terminal state: success, permanent
// failure on a non-retryable error, or permanent failure after MaxAttempts
// retryable failures. Backoff doubles from one second between attempts.
func (d *Deliverer) DeliverWithRetry(ctx context.Context, payload *Payload) DeliveryResult {
	sleep := d.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= d.MaxAttempts; attempt++ {
		_, err := d.Send(ctx, payload)
		if err == nil {
			return DeliveryResult{Success: true, Attempts: attempt}
		}

		lastErr = err
		if !IsRetryableError(err) {
			return DeliveryResult{
				Attempts: attempt,
				Error:    TruncateError(err.Error()),
			}
		}

		if attempt < d.MaxAttempts {
			sleep(baseBackoff * (1 << (attempt - 1)))
		}
	}

	return DeliveryResult{
		Attempts: d.MaxAttempts,
		Error:    TruncateError(lastErr.Error()),
	}
}

// CheckEndpoint verifies the backend accepts deliveries by POSTing one empty
// payload. Used by setup and status; a failure here is reported, not retried.
func CheckEndpoint(ctx context.Context, endpoint, apiKey string) error {
	send := NewHTTPSender(endpoint, apiKey)
	_, err := send(ctx, BuildPayload(nil, PayloadOptions{CostMultiplier: 1}))
	return err
}

// NewHTTPSender returns a Sender that POSTs payloads to the backend's
// ingestion endpoint. Non-2xx responses become errors embedding the status
// code in the format IsRetryableError depends on.
func NewHTTPSender(endpoint, apiKey string) Sender {
	client := &http.Client{Timeout: 30 * time.Second}
	url := endpoint + ingestPath

	return func(ctx context.Context, payload *Payload) (*DeliveryResponse, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("sending payload: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, respBody)
		}

		delivered := &DeliveryResponse{}
		if err := json.NewDecoder(resp.Body).Decode(delivered); err != nil {
			// Display-only field; an unparseable success body is still a success.
			return &DeliveryResponse{}, nil
		}

		return delivered, nil
	}
}
