package fees

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mbd888/aw3econ/internal/metrics"
)

// Timer periodically purges quotes that expired more than retention ago.
type Timer struct {
	store     QuoteStore
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	running   atomic.Bool
}

// NewTimer creates a new quote purge timer.
func NewTimer(store QuoteStore, retention time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		store:     store,
		interval:  time.Minute,
		retention: retention,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the purge loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safePurge(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safePurge(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in quote timer", "panic", fmt.Sprint(r))
		}
	}()
	t.purge(ctx, time.Now())
}

func (t *Timer) purge(ctx context.Context, now time.Time) {
	n, err := t.store.DeleteExpired(ctx, now.Add(-t.retention))
	if err != nil {
		t.logger.Warn("failed to purge expired quotes", "error", err)
		return
	}
	if n > 0 {
		metrics.QuotesPurgedTotal.Add(float64(n))
		t.logger.Info("purged expired quotes", "count", n)
	}
}
