// Package probe drives the interactive claude CLI inside a pseudo-terminal
// and captures the text of its usage and status screens.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/zsprackett/claude-usage/internal/screen"
)

const (
	DefaultCommand = "claude"
	DefaultTimeout = 15 * time.Second

	// maxConfirms bounds how many startup questions are auto-accepted.
	maxConfirms = 3
)

// Timing holds the fixed pauses of a probe run.
type Timing struct {
	Settle     time.Duration // after the prompt appears and after typing the command
	Render     time.Duration // after the usage screen starts drawing
	TabSettle  time.Duration // before and after waiting for the status tab
	StatusWait time.Duration // upper bound for the status tab to appear
	Keystroke  time.Duration // between shutdown keystrokes
	ExitWait   time.Duration // grace period before the process is killed
}

// DefaultTiming is tuned for the real CLI.
func DefaultTiming() Timing {
	return Timing{
		Settle:     300 * time.Millisecond,
		Render:     1500 * time.Millisecond,
		TabSettle:  500 * time.Millisecond,
		StatusWait: 3 * time.Second,
		Keystroke:  100 * time.Millisecond,
		ExitWait:   5 * time.Second,
	}
}

type Options struct {
	Command string
	Timeout time.Duration
	Layout  *screen.Layout
	Timing  Timing
	Logger  *slog.Logger
	// Env is appended to the inherited environment.
	Env []string
}

type Prober struct {
	command string
	timeout time.Duration
	layout  screen.Layout
	timing  Timing
	logger  *slog.Logger
	env     []string
}

func New(opts Options) *Prober {
	p := &Prober{
		command: opts.Command,
		timeout: opts.Timeout,
		timing:  opts.Timing,
		logger:  opts.Logger,
		env:     opts.Env,
	}
	if p.command == "" {
		p.command = DefaultCommand
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if opts.Layout != nil {
		p.layout = *opts.Layout
	} else {
		p.layout = screen.Default()
	}
	if p.timing == (Timing{}) {
		p.timing = DefaultTiming()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// Fetch runs the CLI once and returns the raw output of its usage screen
// followed by its status tab. The process is shut down before Fetch
// returns, whatever the outcome.
func (p *Prober) Fetch(ctx context.Context) (string, error) {
	path, err := exec.LookPath(p.command)
	if err != nil {
		p.logger.Debug("claude executable not found", "command", p.command, "err", err)
		return "", ErrNotFound
	}

	logger := p.logger.With("run", uuid.NewString())
	env := append(os.Environ(), "TERM=dumb")
	env = append(env, p.env...)

	s, err := startSession(path, env)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInteraction, err)
	}
	logger.Debug("probe started", "command", path, "pid", s.cmd.Process.Pid)
	defer p.shutdown(s, logger)

	if err := p.waitReady(ctx, s); err != nil {
		logger.Debug("probe startup failed", "err", err, "tail", screen.Tail(s.all(), 10))
		return "", err
	}
	if err := sleep(ctx, p.timing.Settle); err != nil {
		return "", err
	}

	usageMark := s.mark()
	if err := p.send(s, p.layout.UsageCommand+screen.KeyEnter); err != nil {
		return "", err
	}
	if err := sleep(ctx, p.timing.Settle); err != nil {
		return "", err
	}
	// A second Enter accepts the command if autocomplete is showing.
	if err := p.send(s, screen.KeyEnter); err != nil {
		return "", err
	}
	if _, err := s.waitFor(ctx, p.layout.UsageShown, usageMark, p.timeout); err != nil {
		logger.Debug("usage screen not shown", "err", err, "tail", screen.Tail(s.all(), 10))
		return "", p.waitError(err, "to show usage")
	}
	if err := sleep(ctx, p.timing.Render); err != nil {
		return "", err
	}
	usageText := s.since(usageMark)

	statusMark := s.mark()
	if err := p.send(s, screen.KeyTab); err != nil {
		return "", err
	}
	if err := sleep(ctx, p.timing.TabSettle); err != nil {
		return "", err
	}
	if _, err := s.waitFor(ctx, p.layout.StatusShown, statusMark, p.timing.StatusWait); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		logger.Debug("status tab not shown", "err", err)
	}
	if err := sleep(ctx, p.timing.TabSettle); err != nil {
		return "", err
	}
	statusText := s.since(statusMark)

	logger.Debug("probe captured output", "usage_bytes", len(usageText), "status_bytes", len(statusText))
	return usageText + "\n" + statusText, nil
}

// waitReady waits for the input prompt, answering startup questions on the
// way.
func (p *Prober) waitReady(ctx context.Context, s *session) error {
	patterns := make([]*regexp.Regexp, 0, len(p.layout.Ready)+len(p.layout.Confirm))
	patterns = append(patterns, p.layout.Ready...)
	patterns = append(patterns, p.layout.Confirm...)
	pos := 0
	for range maxConfirms + 1 {
		i, err := s.waitFor(ctx, patterns, pos, p.timeout)
		if err != nil {
			return p.waitError(err, "to start")
		}
		if i < len(p.layout.Ready) {
			return nil
		}
		pos = s.mark()
		if err := p.send(s, p.layout.Accept+screen.KeyEnter); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: too many startup prompts", ErrInteraction)
}

func (p *Prober) waitError(err error, what string) error {
	switch {
	case errors.Is(err, ErrTimeout):
		return fmt.Errorf("%w %s (waited %s)", ErrTimeout, what, p.timeout)
	case errors.Is(err, ErrExited):
		return ErrExited
	default:
		return err
	}
}

func (p *Prober) send(s *session, text string) error {
	if err := s.send(text); err != nil {
		return fmt.Errorf("%w: write: %v", ErrInteraction, err)
	}
	return nil
}

// shutdown asks the CLI to leave, then kills it if it is still running.
func (p *Prober) shutdown(s *session, logger *slog.Logger) {
	defer s.close()
	if !s.exited() {
		for _, key := range []string{screen.KeyEscape, p.layout.ExitCommand + screen.KeyEnter, screen.KeyEnter} {
			if err := s.send(key); err != nil {
				break
			}
			time.Sleep(p.timing.Keystroke)
		}
	}
	if s.waitExit(p.timing.ExitWait) {
		logger.Debug("probe exited", "err", s.waitErr)
		return
	}
	logger.Debug("probe did not exit, killing")
	s.kill()
}
