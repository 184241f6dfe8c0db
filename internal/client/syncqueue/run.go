package syncqueue

import (
	"context"
	"time"
)

// Run processes the queue immediately, then on every tick of
// Options.Interval and every value received from triggers (for example the
// connectivity watcher). It returns nil when ctx is cancelled.
func (m *Manager) Run(ctx context.Context, triggers <-chan struct{}) error {
	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	m.runOnce(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.runOnce(ctx, "tick")
		case _, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			m.runOnce(ctx, "trigger")
		}
	}
}

func (m *Manager) runOnce(ctx context.Context, reason string) {
	if _, err := m.Process(ctx); err != nil && ctx.Err() == nil {
		m.log.Error(ctx, "queue pass failed", "reason", reason, "error", err)
	}
}
