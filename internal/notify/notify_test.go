package notify_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zsprackett/claude-usage/internal/notify"
	"github.com/zsprackett/claude-usage/internal/usage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNtfyNotification(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	n := notify.New(notify.Config{
		Enabled: true,
		NtfyURL: srv.URL + "/test-topic",
	}, discardLogger())

	n.Notify(notify.Alert{Quota: "session", Remaining: 12, Reset: "16:00", Tier: "Max"})

	if received == nil {
		t.Fatal("no POST received")
	}
	if received["title"] != "Claude Max session quota low" {
		t.Errorf("unexpected title: %v", received["title"])
	}
	if received["message"] != "session quota at 12% remaining, resets 16:00" {
		t.Errorf("unexpected message: %v", received["message"])
	}
}

func TestWebhookPayload(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type: %q", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	n := notify.New(notify.Config{Enabled: true, Webhook: srv.URL}, discardLogger())
	n.Notify(notify.Alert{Quota: "weekly", Remaining: 3})

	if received["quota"] != "weekly" || received["remaining"] != float64(3) {
		t.Errorf("got %v", received)
	}
	if _, ok := received["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestNotify_WebhookErrorLogged(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Invalid URL forces a POST error.
	n := notify.New(notify.Config{Enabled: true, Webhook: "http://127.0.0.1:1"}, logger)
	n.Notify(notify.Alert{Quota: "session", Remaining: 5})

	if !strings.Contains(buf.String(), "webhook") {
		t.Errorf("expected warn log mentioning webhook, got: %q", buf.String())
	}
}

func TestNotify_DisabledNoOp(t *testing.T) {
	n := notify.New(notify.Config{Enabled: false}, discardLogger())
	// Must not panic.
	n.Notify(notify.Alert{Quota: "session"})

	var nilNotifier *notify.Notifier
	if nilNotifier.Enabled() {
		t.Error("nil notifier reports enabled")
	}
}

func TestLowQuota(t *testing.T) {
	healthy := usage.Snapshot{SessionPercent: usage.Int(60), WeeklyPercent: usage.Int(40)}
	low := usage.Snapshot{
		SessionPercent: usage.Int(10),
		WeeklyPercent:  usage.Int(35),
		SessionReset:   usage.String("4pm"),
		AccountTier:    usage.String("Pro"),
	}

	alerts := notify.LowQuota(&healthy, low, 20)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %+v", alerts)
	}
	a := alerts[0]
	if a.Quota != "session" || a.Remaining != 10 || a.Reset != "4pm" || a.Tier != "Pro" {
		t.Errorf("got %+v", a)
	}

	// Still low on the next poll: no repeat.
	if again := notify.LowQuota(&low, low, 20); len(again) != 0 {
		t.Errorf("expected no repeat alert, got %+v", again)
	}

	// No previous snapshot counts as healthy.
	if first := notify.LowQuota(nil, low, 20); len(first) != 1 {
		t.Errorf("expected alert without history, got %+v", first)
	}

	// A failed previous poll does not suppress the alert.
	failed := usage.Failed("timeout")
	if after := notify.LowQuota(&failed, low, 20); len(after) != 1 {
		t.Errorf("expected alert after failed poll, got %+v", after)
	}

	if errAlerts := notify.LowQuota(nil, usage.Failed("x"), 20); errAlerts != nil {
		t.Errorf("error snapshot must not alert, got %+v", errAlerts)
	}
}
