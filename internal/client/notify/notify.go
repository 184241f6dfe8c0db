// Package notify delivers sync engine events to whatever surfaces them:
// the log, in-process subscribers such as the CLI badge, and optionally an
// AMQP exchange watched by a back office.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/logging"
)

type Kind string

const (
	KindEscalated        Kind = "escalated"
	KindConflictDetected Kind = "conflict_detected"
	KindConflictResolved Kind = "conflict_resolved"
	KindSealed           Kind = "sealed"
	KindCountsChanged    Kind = "counts_changed"
	KindConnectivity     Kind = "connectivity"
	KindRescueRestored   Kind = "rescue_restored"
)

// Counts is the badge state shown next to every event.
type Counts struct {
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	Conflicts int `json:"conflicts"`
}

type Event struct {
	Kind       Kind      `json:"kind"`
	At         time.Time `json:"at"`
	ActionID   string    `json:"actionId,omitempty"`
	ActionType string    `json:"actionType,omitempty"`
	EntityID   string    `json:"entityId,omitempty"`
	Message    string    `json:"message,omitempty"`
	Online     bool      `json:"online,omitempty"`
	Counts     Counts    `json:"counts"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Log writes events to a logger. Escalations and conflicts are warnings.
type Log struct {
	log logging.Logger
}

func NewLog(l logging.Logger) *Log {
	return &Log{log: l.With("module", "notify")}
}

func (n *Log) Notify(ctx context.Context, e Event) {
	args := []any{"kind", e.Kind, "pending", e.Counts.Pending, "failed", e.Counts.Failed, "conflicts", e.Counts.Conflicts}
	if e.ActionID != "" {
		args = append(args, "action", e.ActionID, "type", e.ActionType)
	}
	if e.EntityID != "" {
		args = append(args, "entity", e.EntityID)
	}
	if e.Message != "" {
		args = append(args, "detail", e.Message)
	}
	switch e.Kind {
	case KindEscalated, KindConflictDetected:
		n.log.Warn(ctx, "sync needs attention", args...)
	default:
		n.log.Debug(ctx, "sync event", args...)
	}
}

// Broadcaster fans events out to subscribers. Slow subscribers lose events
// rather than stalling the queue.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered channel and a function that unsubscribes and
// closes it.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(_ context.Context, e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Multi sends every event to each notifier in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}
