// Package syncqueue delivers queued local mutations to the backend at least
// once. Actions run in insertion order within an entity lane; lanes are
// independent. Each action is a persistent work item moving through
// Pending -> InFlight -> {Synced | Retrying | Escalated}.
package syncqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/google/uuid"
)

// Store is the unit-of-work boundary the manager needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, r *store.Repos) error) error
	Repos() *store.Repos
}

// Result is what a handler reports after a remote call returned.
type Result struct {
	// Park keeps the action pending instead of removing it; the lane stays
	// blocked until whatever Commit recorded (usually a conflict) is cleared.
	Park bool
	// Commit runs in the transaction that removes or parks the action.
	Commit func(ctx context.Context, r *store.Repos) error
	// Event is emitted once the transaction has committed.
	Event *notify.Event
}

// HandlerFunc performs the remote side of one action. ctx is detached from
// the caller's cancellation and bounded by Options.CallTimeout.
type HandlerFunc func(ctx context.Context, a *models.QueueAction) (Result, error)

type Options struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	CallTimeout time.Duration
	Interval    time.Duration
	Clock       func() time.Time
}

const (
	DefaultMaxRetries  = 5
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 5 * time.Minute
	DefaultCallTimeout = 15 * time.Second
	DefaultInterval    = 30 * time.Second
)

func (o *Options) defaults() {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Manager owns the queue of one device store. Create one per store; there
// is no package-level state.
type Manager struct {
	store    Store
	opts     Options
	notifier notify.Notifier
	log      logging.Logger

	mu       sync.Mutex // serialises Process
	handlers map[models.ActionType]HandlerFunc
}

func NewManager(s Store, opts Options, n notify.Notifier, log logging.Logger) *Manager {
	opts.defaults()
	if n == nil {
		n = notify.Nop{}
	}
	return &Manager{
		store:    s,
		opts:     opts,
		notifier: n,
		log:      log.With("module", "syncqueue"),
		handlers: make(map[models.ActionType]HandlerFunc),
	}
}

// Register installs the handler for an action type, replacing any previous
// one. Register before the first Process call.
func (m *Manager) Register(t models.ActionType, h HandlerFunc) {
	m.handlers[t] = h
}

// Enqueue appends an action inside the caller's transaction and marks the
// affected record pending.
func (m *Manager) Enqueue(ctx context.Context, r *store.Repos, t models.ActionType, entityID string, payload any) (*models.QueueAction, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("enqueue: unknown action type %q", t)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	now := m.opts.Clock().UTC()
	a := &models.QueueAction{
		ID:        uuid.NewString(),
		Type:      t,
		EntityID:  entityID,
		Payload:   raw,
		State:     models.StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Queue.Insert(ctx, a); err != nil {
		return nil, err
	}
	status := domain.SyncPending
	if a.Type != models.ActionUploadPhoto {
		// An escalation holds the lane, so the record keeps showing failed.
		n, err := r.Failed.CountByEntity(ctx, t.Kind(), entityID)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			status = domain.SyncFailed
		}
	}
	if err := markRecord(ctx, r, a, status); err != nil {
		return nil, err
	}
	m.log.Debug(ctx, "action enqueued", "action", a.ID, "type", t, "entity", entityID)
	return a, nil
}

// Backoff returns the delay before the given retry.
func (m *Manager) Backoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := m.opts.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= m.opts.MaxDelay {
			return m.opts.MaxDelay
		}
	}
	return min(d, m.opts.MaxDelay)
}

// markRecord sets the sync status of the record an action mutates. Photo
// uploads track the photo, everything else the job or contact.
func markRecord(ctx context.Context, r *store.Repos, a *models.QueueAction, s domain.SyncStatus) error {
	var err error
	switch {
	case a.Type == models.ActionUploadPhoto:
		var p models.PhotoPayload
		if err = a.Decode(&p); err != nil {
			return err
		}
		err = r.Photos.SetSyncStatus(ctx, p.PhotoID, s)
	case a.Type.Kind() == models.EntityContact:
		err = r.Contacts.SetSyncStatus(ctx, a.EntityID, s)
	default:
		err = r.Jobs.SetSyncStatus(ctx, a.EntityID, s)
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

// Counts returns the badge numbers.
func (m *Manager) Counts(ctx context.Context) (notify.Counts, error) {
	r := m.store.Repos()
	var (
		c   notify.Counts
		err error
	)
	if c.Pending, err = r.Queue.Count(ctx); err != nil {
		return c, err
	}
	if c.Failed, err = r.Failed.CountOpen(ctx); err != nil {
		return c, err
	}
	if c.Conflicts, err = r.Conflicts.CountUnresolved(ctx); err != nil {
		return c, err
	}
	return c, nil
}

func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	return m.store.Repos().Queue.Count(ctx)
}

func (m *Manager) FailedCount(ctx context.Context) (int, error) {
	return m.store.Repos().Failed.CountOpen(ctx)
}

// Emit sends an event stamped with the current counts.
func (m *Manager) Emit(ctx context.Context, e notify.Event) {
	if e.At.IsZero() {
		e.At = m.opts.Clock().UTC()
	}
	c, err := m.Counts(ctx)
	if err != nil {
		m.log.Warn(ctx, "count queue for event", "error", err)
	}
	e.Counts = c
	m.notifier.Notify(ctx, e)
}
