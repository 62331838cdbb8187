// Package webhook notifies HTTP endpoints about audit results.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradelab/draudit/pkg/logging"
	"github.com/tradelab/draudit/pkg/model"
)

// EventType names an event that can trigger a webhook.
type EventType string

const (
	EventAuditAccepted EventType = "audit.accepted"
	EventAuditRejected EventType = "audit.rejected"
)

// SignatureHeader carries the HMAC-SHA256 of the body when a secret is set.
const SignatureHeader = "X-Draudit-Signature"

// Event is the JSON body posted to the hook.
type Event struct {
	Event     EventType           `json:"event"`
	Timestamp string              `json:"timestamp"`
	Run       string              `json:"run,omitempty"`
	Summary   *model.AuditSummary `json:"summary,omitempty"`
}

// Config configures a single hook.
type Config struct {
	URL        string
	Secret     string
	Events     []EventType
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
}

// Client sends events synchronously with retries.
type Client struct {
	config Config
	http   *http.Client
	now    func() time.Time
}

// NewClient creates a client. A zero Timeout means 10s, a zero RetryDelay 1s.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Client{
		config: cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

// Enabled reports whether a URL is configured.
func (c *Client) Enabled() bool {
	return c.config.URL != ""
}

// Matches reports whether the hook subscribes to event. An empty event
// list subscribes to everything.
func (c *Client) Matches(event EventType) bool {
	if len(c.config.Events) == 0 {
		return true
	}
	for _, e := range c.config.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// NotifyAudit posts audit.accepted or audit.rejected for s.
func (c *Client) NotifyAudit(ctx context.Context, s *model.AuditSummary) error {
	event := EventAuditRejected
	if s.Accepted {
		event = EventAuditAccepted
	}
	return c.Send(ctx, Event{Event: event, Run: s.Run, Summary: s})
}

// Send posts event if the hook is enabled and subscribed to it.
func (c *Client) Send(ctx context.Context, event Event) error {
	if !c.Enabled() || !c.Matches(event.Event) {
		return nil
	}
	if event.Timestamp == "" {
		event.Timestamp = c.now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}
		if lastErr = c.post(ctx, event.Event, payload); lastErr == nil {
			logging.Debug("webhook delivered", map[string]any{"event": string(event.Event), "attempt": attempt + 1})
			return nil
		}
		logging.Warn("webhook attempt failed", map[string]any{"event": string(event.Event), "attempt": attempt + 1, "error": lastErr.Error()})
	}
	return fmt.Errorf("webhook %s: %w", event.Event, lastErr)
}

func (c *Client) post(ctx context.Context, event EventType, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "draudit-webhook/1.0")
	req.Header.Set("X-Draudit-Event", string(event))
	if c.config.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(payload, c.config.Secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, bytes.TrimSpace(body))
}

// Sign returns "sha256=<hex hmac>" of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
