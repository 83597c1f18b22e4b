package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/events"
	"github.com/zsprackett/claude-usage/internal/format"
	"github.com/zsprackett/claude-usage/internal/usage"
)

const (
	defaultHistoryLimit = 48
	maxHistoryLimit     = 1000
)

type Config struct {
	Port int
	Host string
	// JWTSecret enables bearer-token auth on every route except /healthz.
	JWTSecret string
	TLS       TLSConfig
}

// RefreshFunc runs a probe immediately and returns the stored record.
type RefreshFunc func(ctx context.Context) (db.UsageRecord, error)

type Server struct {
	store   *db.DB
	cfg     Config
	refresh RefreshFunc
	logger  *slog.Logger
	mu      sync.Mutex
	clients map[chan events.Event]struct{}
}

// New returns a Server. refresh may be nil, which disables
// POST /api/usage/refresh.
func New(store *db.DB, cfg Config, refresh RefreshFunc, logger *slog.Logger) *Server {
	return &Server{
		store:   store,
		cfg:     cfg,
		refresh: refresh,
		logger:  logger,
		clients: make(map[chan events.Event]struct{}),
	}
}

// Broadcast implements events.Broadcaster.
func (s *Server) Broadcast(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Server) addClient(ch chan events.Event) {
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(ch chan events.Event) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/usage", s.handleLatest)
	mux.HandleFunc("GET /api/usage/history", s.handleHistory)
	mux.HandleFunc("POST /api/usage/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/waybar", s.handleWaybar)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /events", s.handleSSE)
	mux.Handle("GET /", http.FileServer(staticFiles()))
	if s.cfg.JWTSecret == "" {
		return mux
	}
	return jwtMiddleware(s.cfg.JWTSecret, []string{"/healthz"}, mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	tlsCfg, err := buildTLS(s.cfg.TLS)
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), TLSConfig: tlsCfg, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("webserver listening", "addr", addr, "auth", s.cfg.JWTSecret != "", "tls", tlsCfg != nil)
		var err error
		if tlsCfg != nil {
			// Certificates come from TLSConfig.
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"status":       "ok",
		"last_poll_ms": s.store.LastModified(),
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.GetLatestUsage()
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if latest == nil {
		writeError(w, 404, "no usage recorded yet")
		return
	}
	writeJSON(w, 200, latest)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, 400, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.store.GetUsageHistory(limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if records == nil {
		records = []db.UsageRecord{}
	}
	writeJSON(w, 200, map[string]any{"records": records})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresh == nil {
		writeError(w, 501, "refresh not available")
		return
	}
	rec, err := s.refresh(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, rec)
}

// handleWaybar serves the latest record in the status-bar format, so a bar
// on another machine can curl it.
func (s *Server) handleWaybar(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.GetLatestUsage()
	if err != nil {
		writeJSON(w, 200, format.Waybar(usage.Failed(err.Error())))
		return
	}
	var snap usage.Snapshot
	if latest != nil {
		snap = latest.Snapshot
	}
	writeJSON(w, 200, format.Waybar(snap))
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", 500)
		return
	}

	ch := make(chan events.Event, 16)
	s.addClient(ch)
	defer s.removeClient(ch)

	writeSSE(w, flusher, s.snapshotEvent())

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-ch:
			writeSSE(w, flusher, e)
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, f http.Flusher, e events.Event) {
	data, _ := json.Marshal(e)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

// snapshotEvent is the first event every streaming client receives.
func (s *Server) snapshotEvent() events.Event {
	e := events.Event{Type: events.Snapshot}
	if latest, err := s.store.GetLatestUsage(); err == nil {
		e.Record = latest
	}
	return e
}
