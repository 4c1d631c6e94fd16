package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/snaplink/hookrelay/db"
)

// Envelope is the stable JSON shape carried over the wire to every
// destination, regardless of event kind or platform.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
	TeamID    string          `json:"teamId"`
	WebhookID string          `json:"webhookId"`
}

// NewEnvelope builds the wire envelope for a single dispatch.
func NewEnvelope(eventKind, tenantID, webhookID string, data json.RawMessage, occurredAt time.Time) Envelope {
	return Envelope{
		Event:     eventKind,
		Data:      data,
		Timestamp: occurredAt.UTC().Format(time.RFC3339),
		TeamID:    tenantID,
		WebhookID: webhookID,
	}
}

// reservedHeaders can never be overridden by a subscription's extra_headers;
// they carry delivery metadata the receiver depends on for verification.
var reservedHeaders = map[string]bool{
	"content-type":        true,
	"x-webhook-signature": true,
	"x-webhook-id":        true,
	"x-webhook-event":     true,
	"x-timestamp":         true,
	"x-webhook-test":      true,
}

// sign computes the hex-encoded HMAC-SHA256 of body using secret, in the
// "sha256=<hex>" form receivers expect.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// platformHeaders returns small additive headers identifying the source
// platform to low-code automation receivers, which otherwise have no
// reliable way to distinguish one webhook integration from another.
func platformHeaders(platform string) map[string]string {
	switch strings.ToLower(platform) {
	case "make":
		return map[string]string{"X-Make-Request": "true"}
	case "n8n":
		return map[string]string{"X-N8N-Request": "true"}
	default:
		return nil
	}
}

// buildRequest constructs the signed outbound POST for envelope. isTest
// adds the X-Webhook-Test marker header for manual test deliveries, which
// is otherwise identical in construction to a normal fan-out delivery.
func buildRequest(ctx context.Context, sub db.Subscription, envelope Envelope, isTest bool) (*http.Request, []byte, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: marshaling envelope: %v", ErrMalformedEvent, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.TargetURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("building delivery request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", sign(sub.Secret, body))
	req.Header.Set("X-Webhook-Id", UuidToString(sub.ID))
	req.Header.Set("X-Webhook-Event", envelope.Event)
	req.Header.Set("X-Timestamp", envelope.Timestamp)
	if isTest {
		req.Header.Set("X-Webhook-Test", "true")
	}

	for k, v := range platformHeaders(sub.Platform) {
		req.Header.Set(k, v)
	}

	if len(sub.ExtraHeaders) > 0 {
		var extra map[string]string
		if err := json.Unmarshal(sub.ExtraHeaders, &extra); err == nil {
			for k, v := range extra {
				if reservedHeaders[strings.ToLower(k)] {
					continue
				}
				req.Header.Set(k, v)
			}
		}
	}

	return req, body, nil
}

// sanitizeError truncates an error description to a bounded length so a
// misbehaving endpoint can't grow last_error without bound.
func sanitizeError(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
	const maxLen = 500
	if len(s) > maxLen {
		return s[:maxLen]
	}
	return s
}

// doDeliver performs a single HTTP delivery attempt with no internal retry.
// Success is any 2xx status code. Returns the outcome, the response status
// code (0 when no response arrived), the elapsed wall time, and a sanitized
// failure description (empty on success).
func doDeliver(ctx context.Context, client *http.Client, sub db.Subscription, envelope Envelope, timeout time.Duration, isTest bool) (bool, int, time.Duration, string) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, _, err := buildRequest(ctx, sub, envelope, isTest)
	if err != nil {
		return false, 0, 0, sanitizeError(err.Error())
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return false, 0, elapsed, sanitizeError(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	elapsed = time.Since(start)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, resp.StatusCode, elapsed, ""
	}
	return false, resp.StatusCode, elapsed, sanitizeError(fmt.Sprintf("destination returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)))
}

// Dispatch delivers one event to one subscription and records the outcome
// against the subscription's success/failure counters. This is the only
// delivery path the Event Router drives — there is no internal retry; a
// failed delivery is terminal from the Delivery Engine's point of view.
func Dispatch(ctx context.Context, a *Application, sub db.Subscription, envelope Envelope) bool {
	logger := slog.Default().With(
		"subscription_id", UuidToString(sub.ID),
		"tenant_id", sub.TenantID,
		"event", envelope.Event,
	)

	timeout := time.Duration(a.Config.DeliveryTimeoutMS) * time.Millisecond
	succeeded, statusCode, _, shortErr := doDeliver(ctx, a.HTTPClient, sub, envelope, timeout, false)

	now := pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
	if succeeded {
		logger.Info("delivery succeeded", "status_code", statusCode)
		if err := a.Subscriptions.RecordSuccess(ctx, sub.ID, now); err != nil {
			logger.Error("failed to record delivery success", "error", err)
		}
		return true
	}

	logger.Warn("delivery failed", "status_code", statusCode, "error", shortErr)
	if err := a.Subscriptions.RecordFailure(ctx, sub.ID, now, shortErr); err != nil {
		logger.Error("failed to record delivery failure", "error", err)
	}
	return false
}

// testBanner is the fixed message carried in a manual test delivery's data,
// so receivers can recognize a test hit without inspecting headers.
const testBanner = "this is a test event from hookrelay"

// TestDeliveryResult is the outcome of a manual test delivery.
type TestDeliveryResult struct {
	Succeeded    bool   `json:"success"`
	StatusCode   int    `json:"statusCode,omitempty"`
	ResponseTime int64  `json:"responseTime"`
	Error        string `json:"error,omitempty"`
}

// TestDelivery sends a synthetic envelope to a subscription's target without
// touching its success/failure counters — it exists purely for operators to
// verify a destination is reachable and signature-compatible.
func TestDelivery(ctx context.Context, a *Application, sub db.Subscription) TestDeliveryResult {
	data, _ := json.Marshal(map[string]any{"test": true, "message": testBanner})
	envelope := NewEnvelope(sub.EventKind, sub.TenantID, UuidToString(sub.ID), data, time.Now())

	timeout := time.Duration(a.Config.TestDeliveryTimeoutMS) * time.Millisecond
	succeeded, statusCode, elapsed, shortErr := doDeliver(ctx, a.HTTPClient, sub, envelope, timeout, true)

	return TestDeliveryResult{
		Succeeded:    succeeded,
		StatusCode:   statusCode,
		ResponseTime: elapsed.Milliseconds(),
		Error:        shortErr,
	}
}
