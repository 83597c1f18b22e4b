package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/zsprackett/claude-usage/internal/usage"
)

// Config holds notification settings.
type Config struct {
	Enabled   bool   `json:"enabled"`
	Threshold int    `json:"threshold"`
	Desktop   bool   `json:"desktop"`
	Webhook   string `json:"webhook"`
	NtfyURL   string `json:"ntfy"`
}

// Alert describes one quota that fell below the threshold.
type Alert struct {
	Quota     string // "session", "weekly" or "opus"
	Remaining int
	Reset     string
	Tier      string
}

func (a Alert) Message() string {
	msg := fmt.Sprintf("%s quota at %d%% remaining", a.Quota, a.Remaining)
	if a.Reset != "" {
		msg += ", resets " + a.Reset
	}
	return msg
}

// LowQuota returns an alert for every quota that is below threshold in cur
// but was not in prev. A nil prev treats every quota as previously healthy.
// Error snapshots never alert.
func LowQuota(prev *usage.Snapshot, cur usage.Snapshot, threshold int) []Alert {
	if cur.HasError() {
		return nil
	}
	tier := ""
	if cur.AccountTier != nil {
		tier = *cur.AccountTier
	}
	quotas := []struct {
		name  string
		get   func(usage.Snapshot) *int
		reset *string
	}{
		{"session", func(s usage.Snapshot) *int { return s.SessionPercent }, cur.SessionReset},
		{"weekly", func(s usage.Snapshot) *int { return s.WeeklyPercent }, cur.WeeklyReset},
		{"opus", func(s usage.Snapshot) *int { return s.OpusPercent }, nil},
	}

	var alerts []Alert
	for _, q := range quotas {
		now := q.get(cur)
		if now == nil || *now >= threshold {
			continue
		}
		if prev != nil && !prev.HasError() {
			if before := q.get(*prev); before != nil && *before < threshold {
				continue
			}
		}
		a := Alert{Quota: q.name, Remaining: *now, Tier: tier}
		if q.reset != nil {
			a.Reset = *q.reset
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// Notifier fires system notifications and optional webhook POSTs.
type Notifier struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client
}

// New returns a Notifier with the given config.
func New(cfg Config, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *Notifier) Enabled() bool {
	return n != nil && n.cfg.Enabled
}

func (n *Notifier) Threshold() int {
	return n.cfg.Threshold
}

// Notify delivers a low-quota alert on every configured channel.
func (n *Notifier) Notify(a Alert) {
	if !n.Enabled() {
		return
	}

	if n.cfg.Desktop {
		n.sendSystemNotification(a.Message())
	}
	if n.cfg.Webhook != "" {
		n.sendWebhook(a)
	}
	if n.cfg.NtfyURL != "" {
		n.sendNtfy(a)
	}
}

func (n *Notifier) sendSystemNotification(msg string) {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		script := fmt.Sprintf(`display notification %q with title "claude-usage"`, msg)
		cmd = exec.Command("osascript", "-e", script)
	} else {
		cmd = exec.Command("notify-send", "--urgency=critical", "claude-usage", msg)
	}
	if err := cmd.Run(); err != nil {
		n.logger.Warn("desktop notification failed", "err", err)
	}
}

type webhookPayload struct {
	Quota     string `json:"quota"`
	Remaining int    `json:"remaining"`
	Reset     string `json:"reset,omitempty"`
	Tier      string `json:"tier,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (n *Notifier) sendWebhook(a Alert) {
	payload := webhookPayload{
		Quota:     a.Quota,
		Remaining: a.Remaining,
		Reset:     a.Reset,
		Tier:      a.Tier,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	n.post("webhook", n.cfg.Webhook, payload)
}

type ntfyPayload struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Priority int      `json:"priority"`
	Tags     []string `json:"tags"`
}

func (n *Notifier) sendNtfy(a Alert) {
	title := fmt.Sprintf("Claude %s quota low", a.Quota)
	if a.Tier != "" {
		title = fmt.Sprintf("Claude %s %s quota low", a.Tier, a.Quota)
	}
	payload := ntfyPayload{
		Title:    title,
		Message:  a.Message(),
		Priority: 4,
		Tags:     []string{"warning"},
	}
	n.post("ntfy", n.cfg.NtfyURL, payload)
}

func (n *Notifier) post(channel, url string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, err := n.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		n.logger.Warn(channel+" notification failed", "err", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.logger.Warn(channel+" notification rejected", "status", resp.StatusCode)
	}
}
