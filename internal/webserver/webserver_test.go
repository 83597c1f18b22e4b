package webserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/events"
	"github.com/zsprackett/claude-usage/internal/format"
	"github.com/zsprackett/claude-usage/internal/usage"
	"github.com/zsprackett/claude-usage/internal/webserver"
)

func intp(v int) *int       { return &v }
func strp(v string) *string { return &v }

func newTestServer(t *testing.T, cfg webserver.Config, refresh webserver.RefreshFunc) (*webserver.Server, *db.DB) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return webserver.New(store, cfg, refresh, logger), store
}

func seed(t *testing.T, store *db.DB, tsMs int64, session int) int64 {
	t.Helper()
	id, err := store.InsertUsage(tsMs, usage.Snapshot{
		SessionPercent: intp(session),
		WeeklyPercent:  intp(60),
		SessionReset:   strp("4pm (America/Los_Angeles)"),
		AccountTier:    strp("Pro"),
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func get(h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", target, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, store := newTestServer(t, webserver.Config{}, nil)
	store.Touch()
	w := get(srv.Handler(), "/healthz")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("status: %v", resp["status"])
	}
	if ms, _ := resp["last_poll_ms"].(float64); ms == 0 {
		t.Errorf("expected last_poll_ms to be set, got %v", resp["last_poll_ms"])
	}
}

func TestLatestUsage_Empty(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	w := get(srv.Handler(), "/api/usage")
	if w.Code != 404 {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLatestUsage(t *testing.T) {
	srv, store := newTestServer(t, webserver.Config{}, nil)
	seed(t, store, 1000, 80)
	id := seed(t, store, 2000, 70)

	w := get(srv.Handler(), "/api/usage")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec db.UsageRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.ID != id || rec.TsMs != 2000 || *rec.Snapshot.SessionPercent != 70 {
		t.Errorf("got %+v", rec)
	}
}

func TestUsageHistory(t *testing.T) {
	srv, store := newTestServer(t, webserver.Config{}, nil)
	for i := range 5 {
		seed(t, store, int64(1000*(i+1)), 90-i)
	}

	w := get(srv.Handler(), "/api/usage/history?limit=3")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Records []db.UsageRecord `json:"records"`
	}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(resp.Records))
	}
	if resp.Records[0].TsMs != 5000 {
		t.Errorf("expected newest first, got ts %d", resp.Records[0].TsMs)
	}
}

func TestUsageHistory_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	w := get(srv.Handler(), "/api/usage/history")
	if !strings.Contains(w.Body.String(), `"records":[]`) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestUsageHistory_BadLimit(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	for _, limit := range []string{"0", "-1", "abc"} {
		w := get(srv.Handler(), "/api/usage/history?limit="+limit)
		if w.Code != 400 {
			t.Errorf("limit=%s: expected 400, got %d", limit, w.Code)
		}
	}
}

func TestWaybarEndpoint(t *testing.T) {
	srv, store := newTestServer(t, webserver.Config{}, nil)
	seed(t, store, 1000, 74)

	w := get(srv.Handler(), "/api/waybar")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out format.WaybarOutput
	json.NewDecoder(w.Body).Decode(&out)
	if out.Percentage != 74 || out.Class != format.ClassGood {
		t.Errorf("got %+v", out)
	}
}

func TestWaybarEndpoint_NoData(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	var out format.WaybarOutput
	json.NewDecoder(get(srv.Handler(), "/api/waybar").Body).Decode(&out)
	if out.Class != format.ClassUnknown {
		t.Errorf("expected unknown class, got %+v", out)
	}
}

func TestRefresh(t *testing.T) {
	called := false
	refresh := func(ctx context.Context) (db.UsageRecord, error) {
		called = true
		return db.UsageRecord{ID: 7, TsMs: 1234}, nil
	}
	srv, _ := newTestServer(t, webserver.Config{}, refresh)

	req := httptest.NewRequest("POST", "/api/usage/refresh", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != 200 || !called {
		t.Fatalf("expected 200 and refresh call, got %d called=%v", w.Code, called)
	}
	var rec db.UsageRecord
	json.NewDecoder(w.Body).Decode(&rec)
	if rec.ID != 7 {
		t.Errorf("got %+v", rec)
	}
}

func TestRefresh_Errors(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/refresh", nil))
	if w.Code != 501 {
		t.Errorf("nil refresh: expected 501, got %d", w.Code)
	}

	failing := func(ctx context.Context) (db.UsageRecord, error) {
		return db.UsageRecord{}, errors.New("boom")
	}
	srv, _ = newTestServer(t, webserver.Config{}, failing)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/usage/refresh", nil))
	if w.Code != 500 || !strings.Contains(w.Body.String(), "boom") {
		t.Errorf("failing refresh: got %d %s", w.Code, w.Body.String())
	}
}

func TestStaticIndex(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	w := get(srv.Handler(), "/")
	if w.Code != 200 || !strings.Contains(w.Body.String(), "<title>Claude usage</title>") {
		t.Errorf("got %d", w.Code)
	}
}

func TestJWTMiddleware(t *testing.T) {
	secret := "test-secret"
	srv, store := newTestServer(t, webserver.Config{JWTSecret: secret}, nil)
	seed(t, store, 1000, 50)
	h := srv.Handler()

	if w := get(h, "/healthz"); w.Code != 200 {
		t.Errorf("healthz should be public, got %d", w.Code)
	}
	if w := get(h, "/api/usage"); w.Code != 401 {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := get(h, "/api/usage", "Authorization", "Bearer garbage"); w.Code != 401 {
		t.Errorf("expected 401 for bad token, got %d", w.Code)
	}

	token, _ := webserver.IssueAccessToken(secret, "waybar", time.Hour)
	if w := get(h, "/api/usage", "Authorization", "Bearer "+token); w.Code != 200 {
		t.Errorf("expected 200 with header token, got %d", w.Code)
	}
	if w := get(h, "/api/waybar?token="+token); w.Code != 200 {
		t.Errorf("expected 200 with query token, got %d", w.Code)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e events.Event
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return e
}

func TestWebsocket_SnapshotThenBroadcast(t *testing.T) {
	srv, store := newTestServer(t, webserver.Config{}, nil)
	id := seed(t, store, 1000, 74)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readEvent(t, conn)
	if first.Type != events.Snapshot || first.Record == nil || first.Record.ID != id {
		t.Fatalf("first event: %+v", first)
	}

	// The client is registered before the snapshot is written, so this
	// broadcast cannot be missed.
	srv.Broadcast(events.Event{Type: events.QuotaLow, Quota: "session", Remaining: intp(12)})
	next := readEvent(t, conn)
	if next.Type != events.QuotaLow || next.Quota != "session" || *next.Remaining != 12 {
		t.Errorf("broadcast event: %+v", next)
	}
}

func TestBroadcast_NoClients(t *testing.T) {
	srv, _ := newTestServer(t, webserver.Config{}, nil)
	srv.Broadcast(events.Event{Type: events.Snapshot})
}
