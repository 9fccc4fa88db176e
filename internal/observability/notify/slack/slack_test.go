package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/target/jobtrack/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
	if _, err := NewClient(Config{WebhookURL: "https://hooks.example.com/x", RecordURLPrefix: "records"}); err == nil {
		t.Fatal("expected error for relative record url prefix")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.RecordFailurePayload{
		RecordID:   "rec-1",
		Kind:       "export",
		Label:      "export #rec-1",
		Handle:     "h-9",
		Actor:      "alice",
		Error:      "disk <full>",
		ErrorClass: "os_patherror",
		Metadata:   map[string]string{"zone": "b", "attempt": "1"},
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}
	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	for _, want := range []string{
		"Job record failed", "`export #rec-1`", "Kind: export", "Handle: h-9", "Submitted by: alice",
		"disk &lt;full&gt;", "os_patherror", "Severity: critical",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("message text missing %q: %s", want, text)
		}
	}
	if strings.Index(text, "attempt: 1") > strings.Index(text, "zone: b") {
		t.Fatalf("expected metadata keys sorted: %s", text)
	}
}

func TestFormatMessageRecordLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:      "https://hooks.slack.com/services/test",
		RecordURLPrefix: "https://ops.example.com/records",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, _ := client.formatMessage(notify.RecordFailurePayload{RecordID: "rec-123"})["text"].(string)
	expected := "<https://ops.example.com/records/rec-123|rec-123>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected record link %q in text: %s", expected, text)
	}
}

func TestSendRecordFailureRetries(t *testing.T) {
	var hits int
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&last); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendRecordFailure(context.Background(), notify.RecordFailurePayload{RecordID: "rec-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 2 {
		t.Fatalf("expected one retry, got %d requests", hits)
	}
	if last["username"] != "jobtrack" {
		t.Fatalf("expected default username, got %v", last["username"])
	}
}
