package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pumpwatch/pumpwatch/pkg/log"
	"github.com/pumpwatch/pumpwatch/pkg/portal"
	"github.com/pumpwatch/pumpwatch/pkg/storage"
	"github.com/pumpwatch/pumpwatch/pkg/types"
)

// poller drives the scan loop: one portal cycle per interval, results
// latched for the API and pushed to metrics and storage. A failed cycle
// keeps the previous snapshot visible alongside the error.
type poller struct {
	source    portal.Source
	storage   storage.Database
	metrics   *metrics
	interval  time.Duration
	retention time.Duration

	mu       sync.RWMutex
	last     types.SensorSnapshot
	lastErr  error
	lastPoll time.Time
}

func newPoller(src portal.Source, db storage.Database, m *metrics, settings types.Settings) *poller {
	settings = settings.Normalize()
	return &poller{
		source:    src,
		storage:   db,
		metrics:   m,
		interval:  settings.ScanInterval,
		retention: settings.HistoryRetention,
	}
}

// run blocks until the context is canceled. The first cycle fires
// immediately so the API has data as soon as the portal answers.
func (p *poller) run(ctx context.Context) {
	ctx = log.Component(ctx, "poller")
	log.Ctx(ctx).InfoContext(ctx, "starting poll loop", slog.Duration("interval", p.interval))

	p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Ctx(ctx).InfoContext(ctx, "stopping poll loop")
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *poller) cycle(ctx context.Context) {
	snap, err := p.source.CurrentSnapshot(ctx)

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.lastErr = err
	if err == nil {
		p.last = snap
	}
	p.mu.Unlock()

	if err != nil {
		p.metrics.observeFailure()
		log.Ctx(ctx).ErrorContext(ctx, "poll cycle failed", slog.Any("error", err))
		return
	}

	p.metrics.observe(snap)
	log.Ctx(ctx).DebugContext(ctx, "poll cycle complete", slog.Int("readings", len(snap.Readings)))

	p.persist(ctx, snap)
}

func (p *poller) persist(ctx context.Context, snap types.SensorSnapshot) {
	if p.storage == nil {
		return
	}
	if err := p.storage.InsertSnapshot(ctx, snap); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to persist snapshot", slog.Any("error", err))
		return
	}
	if p.retention <= 0 {
		return
	}
	n, err := p.storage.PruneBefore(ctx, snap.TakenAt.Add(-p.retention))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to prune history", slog.Any("error", err))
		return
	}
	if n > 0 {
		log.Ctx(ctx).DebugContext(ctx, "pruned old snapshots", slog.Int64("count", n))
	}
}

// latest returns the most recent successful snapshot plus the outcome of
// the most recent cycle, which may be an error even when a snapshot exists.
func (p *poller) latest() (types.SensorSnapshot, time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last, p.lastPoll, p.lastErr
}
