package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/jsamuel1/agi-diy/internal/message"
	"github.com/jsamuel1/agi-diy/internal/registry"
)

const (
	DefaultReapInterval = 10 * time.Second
	DefaultStaleAfter   = 30 * time.Second
)

// Reaper periodically evicts peers that have gone quiet. Only one Reaper
// should run against a registry.
type Reaper struct {
	registry    *registry.Registry
	broadcaster *Broadcaster
	logger      *slog.Logger
	interval    time.Duration
	staleAfter  time.Duration
	now         func() time.Time
}

// NewReaper creates a reaper. Non-positive durations fall back to the defaults.
func NewReaper(reg *registry.Registry, b *Broadcaster, logger *slog.Logger, interval, staleAfter time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reaper{
		registry:    reg,
		broadcaster: b,
		logger:      logger,
		interval:    interval,
		staleAfter:  staleAfter,
		now:         time.Now,
	}
}

// SetClock replaces the time source used by Run.
func (r *Reaper) SetClock(now func() time.Time) {
	r.now = now
}

// Run sweeps the registry every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reaper started", "interval", r.interval, "stale_after", r.staleAfter)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

// Sweep evicts every peer last seen more than staleAfter before now,
// announces each departure to the remaining peers and returns the evicted ids.
func (r *Reaper) Sweep(now time.Time) []string {
	cutoff := now.Add(-r.staleAfter)
	var stale []registry.Peer
	for _, p := range r.registry.Snapshot() {
		if p.LastSeen.Before(cutoff) {
			stale = append(stale, p)
		}
	}

	evicted := make([]string, 0, len(stale))
	for _, p := range stale {
		// freshness is re-checked under the registry lock
		if !r.registry.RemoveIfStale(p.ID, p.Conn, cutoff) {
			continue
		}
		_ = p.Conn.Close()
		evicted = append(evicted, p.ID)
		r.logger.Info("reaped stale peer", "peer_id", p.ID, "last_seen", p.LastSeen)
	}

	for _, id := range evicted {
		r.broadcaster.Announce(message.Offline(id, now), id)
	}
	return evicted
}
