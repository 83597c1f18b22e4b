// Package statuscmd implements the default one-shot command: probe the CLI,
// parse its output and print the result in the requested format.
package statuscmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/zsprackett/claude-usage/internal/config"
	"github.com/zsprackett/claude-usage/internal/format"
	"github.com/zsprackett/claude-usage/internal/probe"
	"github.com/zsprackett/claude-usage/internal/usage"
)

// Fetcher returns the raw CLI output. *probe.Prober implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Options are the parsed command-line flags. Zero values mean "use the
// configured default".
type Options struct {
	Format     string
	Timeout    time.Duration
	DumpRaw    bool
	DumpParsed bool
	ConfigPath string
}

// Env is what Setup hands back once configuration is loaded.
type Env struct {
	Fetcher Fetcher
	Logger  *slog.Logger
	// Record stores a snapshot in the history; nil when history is off.
	Record func(usage.Snapshot) error
	Close  func()
}

type Deps struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Version string
	// Setup loads configuration, fills unset fields of opts and builds the
	// pipeline.
	Setup func(opts *Options) (Env, error)
}

// Run executes the command and returns the process exit code.
func Run(ctx context.Context, args []string, d Deps) int {
	var opts Options
	var timeoutSecs int
	var showVersion bool

	fs := flag.NewFlagSet("claude-usage", flag.ContinueOnError)
	fs.SetOutput(d.Stderr)
	fs.StringVar(&opts.Format, "format", "", "output format: waybar, json or plain (default from config, waybar)")
	fs.IntVar(&timeoutSecs, "timeout", 0, "seconds to wait for the CLI (default from config, 15)")
	fs.BoolVar(&opts.DumpRaw, "dump-raw", false, "print the raw CLI output and exit")
	fs.BoolVar(&opts.DumpParsed, "dump-parsed", false, "print the parsed snapshot as JSON and exit")
	fs.StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "path to the config file")
	fs.BoolVar(&showVersion, "version", false, "print the version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(d.Stderr, "unexpected argument %q\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	if showVersion {
		fmt.Fprintf(d.Stdout, "claude-usage %s\n", d.Version)
		return 0
	}
	if opts.Format != "" && !config.ValidFormat(opts.Format) {
		fmt.Fprintf(d.Stderr, "invalid --format %q: must be one of %s\n", opts.Format, strings.Join(config.Formats, ", "))
		return 2
	}
	if timeoutSecs < 0 {
		fmt.Fprintln(d.Stderr, "--timeout must be positive")
		return 2
	}
	opts.Timeout = time.Duration(timeoutSecs) * time.Second

	env, err := d.Setup(&opts)
	if opts.Format == "" {
		opts.Format = "waybar"
	}
	if env.Logger == nil {
		env.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err != nil {
		env.Logger.Error("setup failed", "err", err)
		return fail(d, opts, Env{Logger: env.Logger}, "Unexpected error: "+err.Error())
	}
	if env.Close != nil {
		defer env.Close()
	}

	code, err := runPipeline(ctx, d, opts, env)
	if err != nil {
		env.Logger.Warn("usage query failed", "err", err)
		return fail(d, opts, env, failureMessage(err))
	}
	return code
}

// runPipeline runs fetch, parse and format. Panics are returned as errors.
func runPipeline(ctx context.Context, d Deps, opts Options, env Env) (code int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	raw, err := env.Fetcher.Fetch(ctx)
	if err != nil {
		return 1, err
	}
	if opts.DumpRaw {
		fmt.Fprintln(d.Stdout, raw)
		return 0, nil
	}

	snap := usage.Parse(raw)
	env.Logger.Debug("usage parsed", "has_data", snap.HasData())
	if opts.DumpParsed {
		b, err := format.JSON(snap)
		if err != nil {
			return 1, err
		}
		fmt.Fprintln(d.Stdout, string(b))
		return 0, nil
	}

	record(env.Logger, env.Record, snap)
	if err := write(d.Stdout, opts.Format, snap); err != nil {
		return 1, err
	}
	return 0, nil
}

// failureMessage keeps the probe's own wording for known failures and marks
// everything else as unexpected.
func failureMessage(err error) string {
	for _, known := range []error{probe.ErrNotFound, probe.ErrTimeout, probe.ErrExited, probe.ErrInteraction} {
		if errors.Is(err, known) {
			return err.Error()
		}
	}
	return "Unexpected error: " + err.Error()
}

func fail(d Deps, opts Options, env Env, msg string) int {
	snap := usage.Failed(msg)
	record(env.Logger, env.Record, snap)
	if opts.Format == "waybar" {
		if b, err := format.WaybarJSON(snap); err == nil {
			fmt.Fprintln(d.Stdout, string(b))
		}
		return 1
	}
	fmt.Fprintln(d.Stderr, "Error: "+msg)
	return 1
}

func record(logger *slog.Logger, rec func(usage.Snapshot) error, snap usage.Snapshot) {
	if rec == nil {
		return
	}
	if err := rec(snap); err != nil {
		logger.Warn("could not record usage snapshot", "err", err)
	}
}

func write(w io.Writer, f string, snap usage.Snapshot) error {
	switch f {
	case "json":
		b, err := format.JSON(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "plain":
		_, err := fmt.Fprintln(w, format.Plain(snap))
		return err
	default:
		b, err := format.WaybarJSON(snap)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}
}
