package poller

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"golddesk/internal/snapshot"
)

type fakeFetcher struct {
	calls atomic.Int64
	delay time.Duration
}

func (f *fakeFetcher) FetchAll(ctx context.Context) *snapshot.Snapshot {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
	}
	return snapshot.New()
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPoller_PublishesEachCycle(t *testing.T) {
	f := &fakeFetcher{}
	var published atomic.Int64

	ctx, cancel := context.WithTimeout(context.Background(), 220*time.Millisecond)
	defer cancel()
	p := &Poller{
		Fetcher:  f,
		Interval: 50 * time.Millisecond,
		Publish:  func(s *snapshot.Snapshot) { published.Add(1) },
		Log:      quietLogger(),
	}
	p.Run(ctx)

	// immediate fire + ~4 ticks; allow scheduling slack
	time.Sleep(20 * time.Millisecond)
	require.GreaterOrEqual(t, published.Load(), int64(3))
	require.Equal(t, f.calls.Load(), published.Load())
}

func TestPoller_SkipsTicksWhileFetchInFlight(t *testing.T) {
	// each fetch spans several intervals; overlapping ticks must be
	// dropped, not queued
	f := &fakeFetcher{delay: 120 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	p := &Poller{
		Fetcher:  f,
		Interval: 20 * time.Millisecond,
		Log:      quietLogger(),
	}
	p.Run(ctx)
	time.Sleep(150 * time.Millisecond)

	// ~12 ticks elapsed but at most one fetch per 120ms window
	require.LessOrEqual(t, f.calls.Load(), int64(4))
	require.GreaterOrEqual(t, f.calls.Load(), int64(1))
}
