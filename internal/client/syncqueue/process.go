package syncqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// Report summarises one Process pass.
type Report struct {
	Attempted int
	Synced    int
	Retried   int
	Escalated int
	Parked    int
	Blocked   int
}

func (r Report) Changed() bool {
	return r.Synced+r.Retried+r.Escalated+r.Parked > 0
}

// Process makes one pass over the queue in insertion order. An action is
// skipped when an earlier action of its lane is unfinished or escalated, when
// it is waiting out its backoff, or when its job has an unresolved conflict.
// Delivery failures are recorded on the action; only local store errors are
// returned.
func (m *Manager) Process(ctx context.Context) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var rep Report
	r := m.store.Repos()

	// Anything still in flight here was interrupted by a crash.
	if n, err := r.Queue.RecoverInFlight(ctx, m.opts.Clock().UTC()); err != nil {
		return rep, err
	} else if n > 0 {
		m.log.Warn(ctx, "recovered interrupted actions", "count", n)
	}

	actions, err := r.Queue.List(ctx)
	if err != nil {
		return rep, err
	}
	conflicted, err := m.conflictedJobs(ctx, r)
	if err != nil {
		return rep, err
	}
	blocked, err := escalatedLanes(ctx, r)
	if err != nil {
		return rep, err
	}

	for _, a := range actions {
		if ctx.Err() != nil {
			break
		}
		lane := a.EntityKey()
		if blocked[lane] {
			rep.Blocked++
			continue
		}
		if a.Type.Kind() == models.EntityJob && conflicted[a.EntityID] {
			blocked[lane] = true
			rep.Blocked++
			continue
		}
		if a.NextAttemptAt != nil && a.NextAttemptAt.After(m.opts.Clock()) {
			blocked[lane] = true
			rep.Blocked++
			continue
		}

		rep.Attempted++
		outcome, err := m.deliver(ctx, a)
		if err != nil {
			return rep, err
		}
		switch outcome {
		case models.StateSynced:
			rep.Synced++
		case models.StateRetrying:
			rep.Retried++
			blocked[lane] = true
		case models.StateEscalated:
			rep.Escalated++
			blocked[lane] = true
		case models.StatePending:
			rep.Parked++
			blocked[lane] = true
			conflicted[a.EntityID] = true
		}
	}

	if rep.Changed() {
		m.Emit(ctx, notify.Event{Kind: notify.KindCountsChanged})
	}
	if rep.Attempted > 0 {
		m.log.Info(ctx, "queue pass finished",
			"attempted", rep.Attempted, "synced", rep.Synced, "retried", rep.Retried,
			"escalated", rep.Escalated, "parked", rep.Parked, "blocked", rep.Blocked)
	}
	return rep, nil
}

// escalatedLanes returns the lanes held by an escalated action. They stay
// closed until the action is retried.
func escalatedLanes(ctx context.Context, r *store.Repos) (map[string]bool, error) {
	failed, err := r.Failed.List(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(failed))
	for _, f := range failed {
		out[f.EntityKey()] = true
	}
	return out, nil
}

func (m *Manager) conflictedJobs(ctx context.Context, r *store.Repos) (map[string]bool, error) {
	open, err := r.Conflicts.ListUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(open))
	for _, c := range open {
		out[c.JobID] = true
	}
	return out, nil
}

// deliver runs one action and persists its next state, which it returns.
func (m *Manager) deliver(ctx context.Context, a *models.QueueAction) (models.QueueState, error) {
	// Once started, an action runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := m.log.With("action", a.ID, "type", a.Type, "entity", a.EntityID)
	r := m.store.Repos()

	if err := models.Move(a, models.StateInFlight); err != nil {
		return "", err
	}
	a.UpdatedAt = m.opts.Clock().UTC()
	if err := r.Queue.Update(ctx, a); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Cancelled between listing and delivery.
			return "", nil
		}
		return "", err
	}

	h, ok := m.handlers[a.Type]
	if !ok {
		return m.escalate(ctx, a, common.NewValidationError(fmt.Sprintf("no handler for %s", a.Type)))
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	res, callErr := h(callCtx, a)
	cancel()

	switch {
	case callErr == nil && res.Park:
		log.Info(ctx, "action parked")
		err := m.store.WithTx(ctx, func(ctx context.Context, tx *store.Repos) error {
			if res.Commit != nil {
				if err := res.Commit(ctx, tx); err != nil {
					return err
				}
			}
			if err := models.Move(a, models.StatePending); err != nil {
				return err
			}
			a.UpdatedAt = m.opts.Clock().UTC()
			return tx.Queue.Update(ctx, a)
		})
		if err != nil {
			return "", err
		}
		m.emitResult(ctx, res)
		return models.StatePending, nil

	case callErr == nil:
		err := m.store.WithTx(ctx, func(ctx context.Context, tx *store.Repos) error {
			if res.Commit != nil {
				if err := res.Commit(ctx, tx); err != nil {
					return err
				}
			}
			if err := models.Move(a, models.StateSynced); err != nil {
				return err
			}
			if err := tx.Queue.Delete(ctx, a.ID); err != nil {
				return err
			}
			return markLaneSynced(ctx, tx, a)
		})
		if err != nil {
			return "", err
		}
		log.Debug(ctx, "action synced")
		m.emitResult(ctx, res)
		return models.StateSynced, nil

	case common.IsRetryable(callErr):
		a.RetryCount++
		if a.RetryCount > m.opts.MaxRetries {
			return m.escalate(ctx, a, fmt.Errorf("retries exhausted: %w", callErr))
		}
		next := m.opts.Clock().UTC().Add(m.Backoff(a.RetryCount))
		if err := models.Move(a, models.StateRetrying); err != nil {
			return "", err
		}
		a.NextAttemptAt = &next
		a.LastError = callErr.Error()
		a.UpdatedAt = m.opts.Clock().UTC()
		if err := r.Queue.Update(ctx, a); err != nil {
			return "", err
		}
		log.Warn(ctx, "action failed, will retry", "retry", a.RetryCount, "next_attempt", next, "error", callErr)
		return models.StateRetrying, nil

	default:
		return m.escalate(ctx, a, callErr)
	}
}

func (m *Manager) emitResult(ctx context.Context, res Result) {
	if res.Event != nil {
		m.Emit(ctx, *res.Event)
	}
}

// markLaneSynced marks the job or contact synced once nothing else is
// queued or escalated for it.
func markLaneSynced(ctx context.Context, r *store.Repos, a *models.QueueAction) error {
	kind := a.Type.Kind()
	n, err := r.Queue.CountByEntity(ctx, kind, a.EntityID)
	if err != nil || n > 0 {
		return err
	}
	if n, err = r.Failed.CountByEntity(ctx, kind, a.EntityID); err != nil || n > 0 {
		return err
	}
	if kind == models.EntityContact {
		err = r.Contacts.SetSyncStatus(ctx, a.EntityID, domain.SyncSynced)
	} else {
		err = r.Jobs.SetSyncStatus(ctx, a.EntityID, domain.SyncSynced)
	}
	if errors.Is(err, common.ErrorNotFound) {
		return nil
	}
	return err
}

// escalate moves an action into the failed queue. The insert is keyed by the
// action id, so an escalation is recorded and announced at most once.
func (m *Manager) escalate(ctx context.Context, a *models.QueueAction, cause error) (models.QueueState, error) {
	if err := models.Move(a, models.StateEscalated); err != nil {
		return "", err
	}
	now := m.opts.Clock().UTC()
	a.LastError = cause.Error()

	var inserted bool
	err := m.store.WithTx(ctx, func(ctx context.Context, tx *store.Repos) error {
		var err error
		inserted, err = tx.Failed.Insert(ctx, &models.FailedAction{
			ID:         a.ID,
			Type:       a.Type,
			EntityID:   a.EntityID,
			Payload:    a.Payload,
			RetryCount: a.RetryCount,
			LastError:  a.LastError,
			CreatedAt:  a.CreatedAt,
			FailedAt:   now,
		})
		if err != nil {
			return err
		}
		if err := tx.Queue.Delete(ctx, a.ID); err != nil {
			return err
		}
		return markRecord(ctx, tx, a, domain.SyncFailed)
	})
	if err != nil {
		return "", err
	}

	m.log.Error(ctx, "action escalated", "action", a.ID, "type", a.Type, "entity", a.EntityID, "retries", a.RetryCount, "error", cause)
	if inserted {
		m.Emit(ctx, notify.Event{
			Kind:       notify.KindEscalated,
			ActionID:   a.ID,
			ActionType: string(a.Type),
			EntityID:   a.EntityID,
			Message:    a.LastError,
		})
	}
	return models.StateEscalated, nil
}
