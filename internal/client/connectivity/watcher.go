// Package connectivity tracks whether the backend is reachable and signals
// the sync loop when it comes back.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Emitter interface {
	Emit(ctx context.Context, e notify.Event)
}

type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

type Watcher struct {
	pinger   Pinger
	emitter  Emitter
	log      logging.Logger
	interval time.Duration
	timeout  time.Duration

	mu       sync.Mutex
	mode     Mode
	triggers chan struct{}
}

func NewWatcher(p Pinger, e Emitter, interval, timeout time.Duration, log logging.Logger) *Watcher {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Watcher{
		pinger:   p,
		emitter:  e,
		log:      log.With("module", "connectivity"),
		interval: interval,
		timeout:  timeout,
		mode:     ModeUnknown,
		triggers: make(chan struct{}, 1),
	}
}

// Triggers fires once for every transition to online. Pending signals are
// coalesced.
func (w *Watcher) Triggers() <-chan struct{} {
	return w.triggers
}

func (w *Watcher) Mode() Mode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Check pings the backend once and records the result.
func (w *Watcher) Check(ctx context.Context) Mode {
	pctx, cancel := context.WithTimeout(ctx, w.timeout)
	err := w.pinger.Ping(pctx)
	cancel()

	next := ModeOnline
	if err != nil {
		next = ModeOffline
	}

	w.mu.Lock()
	prev := w.mode
	w.mode = next
	w.mu.Unlock()

	if prev == next {
		return next
	}
	w.log.Info(ctx, "connectivity changed", "from", prev, "to", next)
	if next == ModeOnline {
		select {
		case w.triggers <- struct{}{}:
		default:
		}
	}
	if w.emitter != nil {
		w.emitter.Emit(ctx, notify.Event{Kind: notify.KindConnectivity, Online: next == ModeOnline})
	}
	return next
}

// Run checks immediately and then on every tick until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.Check(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.Check(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}
