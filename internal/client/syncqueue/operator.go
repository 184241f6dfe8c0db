package syncqueue

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/notify"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// List returns the queued actions in delivery order.
func (m *Manager) List(ctx context.Context) ([]*models.QueueAction, error) {
	return m.store.Repos().Queue.List(ctx)
}

// ListFailed returns escalated actions, oldest first.
func (m *Manager) ListFailed(ctx context.Context, includeAcknowledged bool) ([]*models.FailedAction, error) {
	return m.store.Repos().Failed.List(ctx, includeAcknowledged)
}

// Cancel drops a queued action that has not been attempted yet. Once an
// action is in flight or backing off it runs to completion.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	err := m.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		a, err := r.Queue.Get(ctx, id)
		if err != nil {
			return err
		}
		if a.State != models.StatePending {
			return fmt.Errorf("action %s is %s: %w", id, a.State, common.ErrNotCancellable)
		}
		return r.Queue.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	m.log.Info(ctx, "action cancelled", "action", id)
	m.Emit(ctx, notify.Event{Kind: notify.KindCountsChanged, ActionID: id})
	return nil
}

// RetryFailed puts an escalated action back in the queue with a fresh retry
// budget, ahead of anything queued for the same entity since it failed.
func (m *Manager) RetryFailed(ctx context.Context, id string) error {
	err := m.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		f, err := r.Failed.Get(ctx, id)
		if err != nil {
			return err
		}
		a := &models.QueueAction{
			ID:        f.ID,
			Type:      f.Type,
			EntityID:  f.EntityID,
			Payload:   f.Payload,
			State:     models.StateEscalated,
			CreatedAt: f.CreatedAt,
			UpdatedAt: m.opts.Clock().UTC(),
		}
		if err := models.Move(a, models.StatePending); err != nil {
			return err
		}
		if err := r.Queue.InsertAhead(ctx, a); err != nil {
			return err
		}
		if err := r.Failed.Delete(ctx, id); err != nil {
			return err
		}
		return markRecord(ctx, r, a, domain.SyncPending)
	})
	if err != nil {
		return err
	}
	m.log.Info(ctx, "escalated action requeued", "action", id)
	m.Emit(ctx, notify.Event{Kind: notify.KindCountsChanged, ActionID: id})
	return nil
}

// AcknowledgeFailed clears an escalation from the failed badge without
// retrying it.
func (m *Manager) AcknowledgeFailed(ctx context.Context, id string) error {
	if err := m.store.Repos().Failed.Acknowledge(ctx, id); err != nil {
		return err
	}
	m.Emit(ctx, notify.Event{Kind: notify.KindCountsChanged, ActionID: id})
	return nil
}
