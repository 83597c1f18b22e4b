package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zsprackett/claude-usage/internal/applog"
	"github.com/zsprackett/claude-usage/internal/config"
	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/probe"
	"github.com/zsprackett/claude-usage/internal/statuscmd"
	"github.com/zsprackett/claude-usage/internal/usage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type cli struct {
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	c := cli{stdout: os.Stdout, stderr: os.Stderr}
	code := c.run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func (c cli) run(ctx context.Context, args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "history":
			return c.history(args[1:])
		case "watch":
			return c.watch(ctx, args[1:])
		case "serve":
			return c.serve(ctx, args[1:])
		case "top":
			return c.top(ctx, args[1:])
		case "token":
			return c.token(args[1:])
		}
	}
	return statuscmd.Run(ctx, args, statuscmd.Deps{
		Stdout:  c.stdout,
		Stderr:  c.stderr,
		Version: version,
		Setup:   setupStatus,
	})
}

func (c cli) errorf(format string, args ...any) int {
	fmt.Fprintf(c.stderr, "error: "+format+"\n", args...)
	return 1
}

// setupStatus wires the one-shot status command from the config file.
func setupStatus(opts *statuscmd.Options) (statuscmd.Env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return statuscmd.Env{}, fmt.Errorf("load config: %w", err)
	}
	if opts.Format == "" {
		opts.Format = cfg.Format
	}
	if opts.Timeout == 0 {
		opts.Timeout = cfg.TimeoutDuration()
	}

	// A status bar runs this every few seconds; stderr stays quiet.
	logger, closer := initLogger(cfg, nil)
	env := statuscmd.Env{
		Fetcher: probe.New(probe.Options{Command: cfg.Command, Timeout: opts.Timeout, Logger: logger}),
		Logger:  logger,
		Close:   func() { closer.Close() },
	}
	if !cfg.History.Enabled || opts.DumpRaw || opts.DumpParsed {
		return env, nil
	}

	store, err := openDB(cfg.History.DBPath)
	if err != nil {
		logger.Warn("history disabled for this run", "err", err)
		return env, nil
	}
	env.Record = func(s usage.Snapshot) error {
		if _, err := store.InsertUsage(time.Now().UnixMilli(), s); err != nil {
			return err
		}
		if _, err := store.PruneUsage(cfg.History.Keep); err != nil {
			return err
		}
		return store.Touch()
	}
	env.Close = func() {
		store.Close()
		closer.Close()
	}
	return env, nil
}

// initLogger sets up file logging. When the log directory is unusable it
// falls back to mirror alone, or to discarding everything.
func initLogger(cfg config.Config, mirror io.Writer) (*slog.Logger, io.Closer) {
	logger, closer, err := applog.Init(applog.InitConfig{
		LogDir:   cfg.LogDir,
		LogLevel: cfg.LogLevel,
		Mirror:   mirror,
	})
	if err == nil {
		return logger, closer
	}
	out := io.Discard
	if mirror != nil {
		out = mirror
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: applog.ParseLevel(cfg.LogLevel)}))
	logger.Warn("could not init log file", "err", err)
	return logger, io.NopCloser(nil)
}

func openDB(path string) (*db.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	store, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
