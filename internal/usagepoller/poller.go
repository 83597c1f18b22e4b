package usagepoller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsprackett/claude-usage/internal/db"
	"github.com/zsprackett/claude-usage/internal/events"
	"github.com/zsprackett/claude-usage/internal/notify"
	"github.com/zsprackett/claude-usage/internal/usage"
)

// Fetcher returns raw CLI output. *probe.Prober implements it.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Poller probes the CLI on a fixed interval, stores every result and
// announces it.
type Poller struct {
	fetcher     Fetcher
	store       *db.DB
	interval    time.Duration
	keep        int
	notifier    *notify.Notifier
	broadcaster events.Broadcaster
	stop        chan struct{}
	done        chan struct{}
	stopOnce    sync.Once
	started     bool
	logger      *slog.Logger

	mu   sync.Mutex // serializes polls
	last *usage.Snapshot
}

type Options struct {
	Interval time.Duration
	Keep     int
	Notifier *notify.Notifier
	// Broadcaster may be nil.
	Broadcaster events.Broadcaster
}

func New(fetcher Fetcher, store *db.DB, opts Options, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher:     fetcher,
		store:       store,
		interval:    opts.Interval,
		keep:        opts.Keep,
		notifier:    opts.Notifier,
		broadcaster: opts.Broadcaster,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start polls immediately, then once per interval until Stop. Stop also
// cancels a probe that is still running.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.started = true
	go func() {
		<-p.stop
		cancel()
	}()
	go func() {
		defer close(p.done)
		defer cancel()
		p.PollOnce(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.PollOnce(ctx)
			case <-p.stop:
				return
			}
		}
	}()
}

// Stop cancels the loop and waits until it has returned, so a probe in
// flight has finished shutting the CLI down. It is safe to call more than
// once and before Start.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	if p.started {
		<-p.done
	}
}

// PollOnce runs one probe, records the result and fires notifications.
// Failures are recorded as error snapshots, except cancellation of ctx,
// which records nothing. The stored record is returned.
func (p *Poller) PollOnce(ctx context.Context) (db.UsageRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var snap usage.Snapshot
	raw, err := p.fetcher.Fetch(ctx)
	if ctx.Err() != nil {
		// Shutting down; a cancelled probe says nothing about usage.
		return db.UsageRecord{}, ctx.Err()
	}
	if err != nil {
		p.logger.Debug("usage poll failed", "err", err)
		snap = usage.Failed(err.Error())
	} else {
		snap = usage.Parse(raw)
		snap.RawText = ""
	}

	rec := db.UsageRecord{TsMs: time.Now().UnixMilli(), Snapshot: snap}
	id, err := p.store.InsertUsage(rec.TsMs, snap)
	if err != nil {
		p.logger.Warn("usage snapshot insert failed", "err", err)
		return rec, err
	}
	rec.ID = id
	if n, err := p.store.PruneUsage(p.keep); err != nil {
		p.logger.Warn("usage snapshot prune failed", "err", err)
	} else if n > 0 {
		p.logger.Debug("pruned usage snapshots", "removed", n)
	}
	if err := p.store.Touch(); err != nil {
		p.logger.Debug("touch failed", "err", err)
	}

	p.alert(snap)
	p.broadcast(events.Event{Type: events.SnapshotRecorded, Record: &rec})

	if !snap.HasError() {
		p.last = &snap
	}
	return rec, nil
}

func (p *Poller) alert(snap usage.Snapshot) {
	if !p.notifier.Enabled() {
		return
	}
	prev := p.last
	if prev == nil {
		prev = p.previousFromStore()
	}
	for _, a := range notify.LowQuota(prev, snap, p.notifier.Threshold()) {
		p.logger.Info("quota low", "quota", a.Quota, "remaining", a.Remaining)
		p.notifier.Notify(a)
		p.broadcast(events.Event{Type: events.QuotaLow, Quota: a.Quota, Remaining: usage.Int(a.Remaining)})
	}
}

// previousFromStore returns the newest successful snapshot before the one
// just inserted, so a restart does not repeat an alert.
func (p *Poller) previousFromStore() *usage.Snapshot {
	history, err := p.store.GetUsageHistory(10)
	if err != nil {
		return nil
	}
	for _, r := range history[min(1, len(history)):] {
		if !r.Snapshot.HasError() {
			s := r.Snapshot
			return &s
		}
	}
	return nil
}

func (p *Poller) broadcast(e events.Event) {
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(e)
	}
}
