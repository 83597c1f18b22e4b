package probe

import "errors"

// Sentinel errors returned by Fetch. Callers test with errors.Is; the
// wrapped message carries the detail.
var (
	// ErrNotFound indicates the claude executable is not on PATH.
	ErrNotFound = errors.New("Claude CLI not found. Install it with: npm install -g @anthropic-ai/claude-code")

	// ErrTimeout indicates an expected screen did not appear in time.
	ErrTimeout = errors.New("timeout waiting for Claude CLI")

	// ErrExited indicates the process ended before the usage screen was read.
	ErrExited = errors.New("Claude CLI exited unexpectedly")

	// ErrInteraction covers pty and write failures.
	ErrInteraction = errors.New("failed to interact with Claude CLI")
)
