package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/target/jobtrack/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{RoutingKey: "  "}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
	c, err := NewClient(Config{RoutingKey: "rk"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.endpoint != APIEndpoint || c.source != "jobtrack" {
		t.Fatalf("expected defaults, got endpoint=%q source=%q", c.endpoint, c.source)
	}
}

func TestBuildEvent(t *testing.T) {
	c, err := NewClient(Config{RoutingKey: "rk", Component: "worker"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	evt := c.buildEvent(notify.RecordFailurePayload{
		RecordID:   "rec-1",
		Kind:       "export",
		Label:      "export #rec-1",
		Phase:      "post-run",
		Severity:   "CRITICAL",
		OccurredAt: at,
		Metadata:   map[string]string{"matched_rows": "0", "kind": "shadowed"},
	})

	if evt["dedup_key"] != "export:rec-1" || evt["event_action"] != "trigger" || evt["routing_key"] != "rk" {
		t.Fatalf("unexpected envelope: %v", evt)
	}
	body, ok := evt["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload map")
	}
	if body["summary"] != "Job record export #rec-1 failed" {
		t.Fatalf("unexpected summary: %v", body["summary"])
	}
	if body["severity"] != "critical" || body["component"] != "worker" {
		t.Fatalf("unexpected severity/component: %v/%v", body["severity"], body["component"])
	}
	if body["timestamp"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp: %v", body["timestamp"])
	}
	details, ok := body["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom_details map")
	}
	if details["kind"] != "export" || details["matched_rows"] != "0" || details["phase"] != "post-run" {
		t.Fatalf("unexpected details: %v", details)
	}
}

func TestSendRecordFailure(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := NewClient(Config{RoutingKey: "rk", Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SendRecordFailure(context.Background(), notify.RecordFailurePayload{RecordID: "r", Kind: "k"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["dedup_key"] != "k:r" {
		t.Fatalf("unexpected request body: %v", got)
	}

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusBadRequest)
	}))
	defer failing.Close()
	c, err = NewClient(Config{RoutingKey: "rk", Endpoint: failing.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.SendRecordFailure(context.Background(), notify.RecordFailurePayload{RecordID: "r"}); err == nil {
		t.Fatal("expected error from rejected event")
	}
}
