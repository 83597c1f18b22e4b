package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/zsprackett/claude-usage/internal/config"
	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/events"
	"github.com/zsprackett/claude-usage/internal/format"
	"github.com/zsprackett/claude-usage/internal/notify"
	"github.com/zsprackett/claude-usage/internal/probe"
	"github.com/zsprackett/claude-usage/internal/ui"
	"github.com/zsprackett/claude-usage/internal/usagepoller"
	"github.com/zsprackett/claude-usage/internal/webserver"
)

func (c cli) flagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet("claude-usage "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	path := fs.String("config", config.DefaultPath(), "path to the config file")
	return fs, path
}

// parse returns -1 when the caller should carry on, otherwise an exit code.
func parse(fs *flag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	return -1
}

func (c cli) history(args []string) int {
	fs, cfgPath := c.flagSet("history")
	limit := fs.Int("n", 20, "number of records to show")
	asJSON := fs.Bool("json", false, "print records as JSON")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if *limit <= 0 {
		fmt.Fprintln(c.stderr, "-n must be positive")
		return 2
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return c.errorf("load config: %v", err)
	}
	store, err := openDB(cfg.History.DBPath)
	if err != nil {
		return c.errorf("open history: %v", err)
	}
	defer store.Close()

	records, err := store.GetUsageHistory(*limit)
	if err != nil {
		return c.errorf("read history: %v", err)
	}
	if *asJSON {
		if records == nil {
			records = []db.UsageRecord{}
		}
		enc := json.NewEncoder(c.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return c.errorf("%v", err)
		}
		return 0
	}
	fmt.Fprintln(c.stdout, format.History(records, time.Now(), terminalWidth(c.stdout)))
	return 0
}

// terminalWidth is 0 (no truncation) unless w is a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// daemon holds what watch, serve and top share: config, logging, the
// history store and a poller.
type daemon struct {
	cfg    config.Config
	store  *db.DB
	poller *usagepoller.Poller
	logger *slog.Logger
	close  func()
}

func (c cli) newDaemon(cfgPath string, mirror io.Writer, interval time.Duration, b events.Broadcaster) (*daemon, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if interval <= 0 {
		interval = cfg.PollInterval()
	}
	logger, closer := initLogger(cfg, mirror)
	store, err := openDB(cfg.History.DBPath)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	prober := probe.New(probe.Options{Command: cfg.Command, Timeout: cfg.TimeoutDuration(), Logger: logger})
	notifier := notify.New(notify.Config{
		Enabled:   cfg.Notifications.Enabled,
		Threshold: cfg.Notifications.Threshold,
		Desktop:   cfg.Notifications.Desktop,
		Webhook:   cfg.Notifications.Webhook,
		NtfyURL:   cfg.Notifications.NtfyURL,
	}, logger)
	poller := usagepoller.New(prober, store, usagepoller.Options{
		Interval:    interval,
		Keep:        cfg.History.Keep,
		Notifier:    notifier,
		Broadcaster: b,
	}, logger)
	logger.Info("poller configured", "interval", interval, "command", cfg.Command, "notify", notifier.Enabled())

	return &daemon{
		cfg:    cfg,
		store:  store,
		poller: poller,
		logger: logger,
		close: func() {
			store.Close()
			closer.Close()
		},
	}, nil
}

func (c cli) watch(ctx context.Context, args []string) int {
	fs, cfgPath := c.flagSet("watch")
	outFormat := fs.String("format", "", "output format: waybar, json or plain (default from config)")
	interval := fs.Duration("interval", 0, "time between probes (default from config)")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if *outFormat != "" && !config.ValidFormat(*outFormat) {
		fmt.Fprintf(c.stderr, "invalid -format %q\n", *outFormat)
		return 2
	}

	p := &printer{w: c.stdout, format: *outFormat}
	d, err := c.newDaemon(*cfgPath, c.stderr, *interval, p)
	if err != nil {
		return c.errorf("%v", err)
	}
	defer d.close()
	if p.format == "" {
		p.format = d.cfg.Format
	}

	d.poller.Start()
	<-ctx.Done()
	d.poller.Stop()
	return 0
}

// printer writes every recorded snapshot to w, one per line for waybar and
// json so a status bar can read the stream continuously.
type printer struct {
	mu     sync.Mutex
	w      io.Writer
	format string
}

func (p *printer) Broadcast(e events.Event) {
	if e.Type != events.SnapshotRecorded || e.Record == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := e.Record.Snapshot
	switch p.format {
	case "plain":
		fmt.Fprintf(p.w, "%s\n\n", format.Plain(s))
	case "json":
		data, _ := json.Marshal(s)
		fmt.Fprintf(p.w, "%s\n", data)
	default:
		data, _ := format.WaybarJSON(s)
		fmt.Fprintf(p.w, "%s\n", data)
	}
}

func (c cli) serve(ctx context.Context, args []string) int {
	fs, cfgPath := c.flagSet("serve")
	host := fs.String("host", "", "listen address (default from config)")
	port := fs.Int("port", 0, "listen port (default from config)")
	if code := parse(fs, args); code >= 0 {
		return code
	}

	hub := &relay{}
	d, err := c.newDaemon(*cfgPath, c.stderr, 0, hub)
	if err != nil {
		return c.errorf("%v", err)
	}
	defer d.close()

	wcfg := webserver.Config{
		Host:      d.cfg.Webserver.Host,
		Port:      d.cfg.Webserver.Port,
		JWTSecret: d.cfg.Webserver.Auth.JWTSecret,
		TLS: webserver.TLSConfig{
			Mode:     d.cfg.Webserver.TLS.Mode,
			CertFile: d.cfg.Webserver.TLS.CertFile,
			KeyFile:  d.cfg.Webserver.TLS.KeyFile,
			CacheDir: d.cfg.Webserver.TLS.CacheDir,
		},
	}
	if *host != "" {
		wcfg.Host = *host
	}
	if *port > 0 {
		wcfg.Port = *port
	}
	logger := d.logger
	if wcfg.JWTSecret == "" && !isLoopback(wcfg.Host) {
		logger.Warn("serving without auth on a non-loopback address; run `claude-usage token` to enable it", "host", wcfg.Host)
	}

	srv := webserver.New(d.store, wcfg, d.poller.PollOnce, logger)
	hub.set(srv)

	d.poller.Start()
	defer d.poller.Stop()
	if err := srv.Run(ctx); err != nil {
		return c.errorf("webserver: %v", err)
	}
	return 0
}

// relay forwards events to a broadcaster that is created after the poller.
type relay struct {
	mu   sync.RWMutex
	next events.Broadcaster
}

func (r *relay) set(b events.Broadcaster) {
	r.mu.Lock()
	r.next = b
	r.mu.Unlock()
}

func (r *relay) Broadcast(e events.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.next != nil {
		r.next.Broadcast(e)
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c cli) top(ctx context.Context, args []string) int {
	fs, cfgPath := c.flagSet("top")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return c.errorf("top needs an interactive terminal")
	}

	// The TUI owns the terminal, so logs go to the file only.
	hub := &relay{}
	d, err := c.newDaemon(*cfgPath, nil, 0, hub)
	if err != nil {
		return c.errorf("%v", err)
	}
	defer d.close()

	app := ui.NewApp(d.store, d.poller.PollOnce, d.logger)
	hub.set(app)

	d.poller.Start()
	defer d.poller.Stop()
	if err := app.Run(ctx); err != nil {
		return c.errorf("%v", err)
	}
	return 0
}

func (c cli) token(args []string) int {
	fs, cfgPath := c.flagSet("token")
	ttl := fs.Duration("ttl", 0, "token lifetime (default from config, 720h)")
	if code := parse(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(c.stderr, "usage: claude-usage token [flags] [subject]")
		return 2
	}
	subject := "cli"
	if fs.NArg() == 1 {
		subject = fs.Arg(0)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return c.errorf("load config: %v", err)
	}
	if err := config.EnsureJWTSecret(*cfgPath, &cfg); err != nil {
		return c.errorf("persist jwt secret: %v", err)
	}
	lifetime := cfg.TokenTTL()
	if *ttl > 0 {
		lifetime = *ttl
	}
	tok, err := webserver.IssueAccessToken(cfg.Webserver.Auth.JWTSecret, subject, lifetime)
	if err != nil {
		return c.errorf("issue token: %v", err)
	}
	fmt.Fprintln(c.stdout, tok)
	return 0
}
