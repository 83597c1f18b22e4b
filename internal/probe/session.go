package probe

import (
	"context"
	"os"
	"os/exec"
	"regexp"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/zsprackett/claude-usage/internal/screen"
)

const maxOutputBytes = 1 << 20

// session is one running CLI attached to a pty. A single goroutine copies
// pty output into output; another reaps the process.
type session struct {
	mu      sync.Mutex
	output  []byte
	written int // total bytes ever read, including trimmed ones

	cmd     *exec.Cmd
	ptmx    *os.File
	done    chan struct{}
	waitErr error
	poll    time.Duration
}

func startSession(path string, env []string) (*session, error) {
	cmd := exec.Command(path)
	cmd.Env = env
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 50, Cols: 120})
	if err != nil {
		return nil, err
	}
	s := &session{
		cmd:  cmd,
		ptmx: ptmx,
		done: make(chan struct{}),
		poll: 50 * time.Millisecond,
	}
	go s.readLoop()
	go func() {
		s.waitErr = cmd.Wait()
		close(s.done)
	}()
	return s, nil
}

func (s *session) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			s.appendOutput(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (s *session) appendOutput(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written += len(chunk)
	s.output = append(s.output, chunk...)
	if over := len(s.output) - maxOutputBytes; over > 0 {
		s.output = append([]byte(nil), s.output[over:]...)
	}
}

// mark returns a position in the output stream for use with since.
func (s *session) mark() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// since returns everything read after pos.
func (s *session) since(pos int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := len(s.output) - (s.written - pos)
	if start < 0 {
		start = 0
	}
	return string(s.output[start:])
}

func (s *session) all() string {
	return s.since(0)
}

func (s *session) send(text string) error {
	_, err := s.ptmx.Write([]byte(text))
	return err
}

func (s *session) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// waitFor polls the output written after pos until one of patterns matches
// and returns the index of the earliest match. It fails with ErrTimeout,
// ErrExited or the context's error.
func (s *session) waitFor(ctx context.Context, patterns []*regexp.Regexp, pos int, timeout time.Duration) (int, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if i := screen.Match(patterns, screen.StripANSI(s.since(pos))); i >= 0 {
			return i, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-s.done:
			// The reader may still be draining the last bytes.
			time.Sleep(s.poll)
			if i := screen.Match(patterns, screen.StripANSI(s.since(pos))); i >= 0 {
				return i, nil
			}
			return -1, ErrExited
		case <-deadline.C:
			return -1, ErrTimeout
		case <-ticker.C:
		}
	}
}

func (s *session) waitExit(timeout time.Duration) bool {
	select {
	case <-s.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *session) kill() {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.done
}

func (s *session) close() {
	if s == nil || s.ptmx == nil {
		return
	}
	_ = s.ptmx.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
