package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelab/draudit/pkg/model"
	"github.com/tradelab/draudit/pkg/webhook"
)

func summary(accepted bool) *model.AuditSummary {
	return &model.AuditSummary{
		Run:              "r1",
		Mode:             model.ModeStrictCore,
		TotalRecords:     2,
		Matched:          2,
		Accepted:         accepted,
		OffendingRecords: []model.OffendingRecord{},
	}
}

func TestNotifyAudit_Accepted(t *testing.T) {
	var got webhook.Event
	var header string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get("X-Draudit-Event")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := webhook.NewClient(webhook.Config{URL: srv.URL})
	require.NoError(t, c.NotifyAudit(context.Background(), summary(true)))

	assert.Equal(t, webhook.EventAuditAccepted, got.Event)
	assert.Equal(t, "audit.accepted", header)
	assert.Equal(t, "r1", got.Run)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.Matched)
	assert.NotEmpty(t, got.Timestamp)
}

func TestNotifyAudit_RejectedFilteredOut(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := webhook.NewClient(webhook.Config{URL: srv.URL, Events: []webhook.EventType{webhook.EventAuditAccepted}})
	require.NoError(t, c.NotifyAudit(context.Background(), summary(false)))
	assert.Zero(t, calls.Load())
}

func TestSend_Disabled(t *testing.T) {
	c := webhook.NewClient(webhook.Config{})
	assert.False(t, c.Enabled())
	assert.NoError(t, c.NotifyAudit(context.Background(), summary(true)))
}

func TestSend_Signature(t *testing.T) {
	var body []byte
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get(webhook.SignatureHeader)
	}))
	defer srv.Close()

	c := webhook.NewClient(webhook.Config{URL: srv.URL, Secret: "s3cret"})
	require.NoError(t, c.NotifyAudit(context.Background(), summary(false)))

	assert.Contains(t, sig, "sha256=")
	assert.True(t, webhook.Verify(body, "s3cret", sig))
	assert.False(t, webhook.Verify(body, "other", sig))
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := webhook.NewClient(webhook.Config{URL: srv.URL, MaxRetries: 3, RetryDelay: time.Millisecond})
	require.NoError(t, c.NotifyAudit(context.Background(), summary(true)))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSend_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := webhook.NewClient(webhook.Config{URL: srv.URL, MaxRetries: 1, RetryDelay: time.Millisecond})
	err := c.NotifyAudit(context.Background(), summary(true))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int32(2), calls.Load())
}

func TestSend_CancelledBetweenRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := webhook.NewClient(webhook.Config{URL: srv.URL, MaxRetries: 5, RetryDelay: time.Hour})
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := c.NotifyAudit(ctx, summary(true))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatches_Wildcard(t *testing.T) {
	c := webhook.NewClient(webhook.Config{URL: "http://example.invalid", Events: []webhook.EventType{"*"}})
	assert.True(t, c.Matches(webhook.EventAuditRejected))
}
