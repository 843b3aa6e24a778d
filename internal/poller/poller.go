package poller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"golddesk/internal/snapshot"
)

// Fetcher produces one snapshot per call.
type Fetcher interface {
	FetchAll(ctx context.Context) *snapshot.Snapshot
}

// Poller triggers a fetch at a fixed interval and hands each snapshot to
// Publish. A tick that arrives while a fetch is still in flight is
// skipped rather than queued, so a persistently slow upstream can never
// accumulate tasks.
type Poller struct {
	Fetcher  Fetcher
	Interval time.Duration
	Publish  func(*snapshot.Snapshot)
	Log      *logrus.Logger
}

// Run blocks until ctx is done. The first fetch fires immediately; the
// display surface should not wait a full interval for its first data.
func (p *Poller) Run(ctx context.Context) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}

	inflight := make(chan struct{}, 1)
	fire := func() {
		select {
		case inflight <- struct{}{}:
		default:
			log.Debug("fetch still in flight, skipping tick")
			return
		}
		go func() {
			defer func() { <-inflight }()
			snap := p.Fetcher.FetchAll(ctx)
			if snap == nil {
				return
			}
			if p.Publish != nil {
				p.Publish(snap)
			}
		}()
	}

	fire()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}
