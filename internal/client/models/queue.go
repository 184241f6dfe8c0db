// Package models defines the device-side records persisted next to jobs:
// queued actions, escalations, conflicts, drafts and the rescue payload.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

type ActionType string

const (
	ActionCreateJob        ActionType = "CREATE_JOB"
	ActionUpdateJob        ActionType = "UPDATE_JOB"
	ActionCreateClient     ActionType = "CREATE_CLIENT"
	ActionUpdateClient     ActionType = "UPDATE_CLIENT"
	ActionCreateTechnician ActionType = "CREATE_TECHNICIAN"
	ActionUpdateTechnician ActionType = "UPDATE_TECHNICIAN"
	ActionUploadPhoto      ActionType = "UPLOAD_PHOTO"
	ActionSealJob          ActionType = "SEAL_JOB"
)

// EntityKind groups action types by the record they mutate. Ordering and
// blocking in the queue are per (kind, entity id).
type EntityKind string

const (
	EntityJob     EntityKind = "job"
	EntityContact EntityKind = "contact"
)

func (a ActionType) Kind() EntityKind {
	switch a {
	case ActionCreateClient, ActionUpdateClient, ActionCreateTechnician, ActionUpdateTechnician:
		return EntityContact
	default:
		return EntityJob
	}
}

// Types lists the action types that mutate records of kind k.
func (k EntityKind) Types() []ActionType {
	var out []ActionType
	for _, t := range []ActionType{ActionCreateJob, ActionUpdateJob, ActionCreateClient, ActionUpdateClient,
		ActionCreateTechnician, ActionUpdateTechnician, ActionUploadPhoto, ActionSealJob} {
		if t.Kind() == k {
			out = append(out, t)
		}
	}
	return out
}

func (a ActionType) Valid() bool {
	switch a {
	case ActionCreateJob, ActionUpdateJob, ActionCreateClient, ActionUpdateClient,
		ActionCreateTechnician, ActionUpdateTechnician, ActionUploadPhoto, ActionSealJob:
		return true
	}
	return false
}

// ContactAction picks the create or update action for a contact kind.
func ContactAction(kind domain.ContactKind, create bool) ActionType {
	switch {
	case kind == domain.ContactTechnician && create:
		return ActionCreateTechnician
	case kind == domain.ContactTechnician:
		return ActionUpdateTechnician
	case create:
		return ActionCreateClient
	default:
		return ActionUpdateClient
	}
}

type QueueState string

const (
	StatePending   QueueState = "pending"
	StateInFlight  QueueState = "in_flight"
	StateRetrying  QueueState = "retrying"
	StateSynced    QueueState = "synced"
	StateEscalated QueueState = "escalated"
)

var queueMoves = map[QueueState][]QueueState{
	StatePending:   {StateInFlight},
	StateRetrying:  {StateInFlight},
	StateInFlight:  {StateSynced, StateRetrying, StateEscalated, StatePending},
	StateEscalated: {StatePending},
}

// CanMove reports whether a queue item may go from one state to another.
// InFlight back to Pending happens when an action is parked on a conflict.
func CanMove(from, to QueueState) bool {
	for _, s := range queueMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

func Move(a *QueueAction, to QueueState) error {
	if !CanMove(a.State, to) {
		return fmt.Errorf("queue action %s: illegal move %s -> %s", a.ID, a.State, to)
	}
	a.State = to
	return nil
}

// QueueAction is one durable unit of offline work. Seq preserves insertion
// order; ID doubles as the idempotency key sent to the backend.
type QueueAction struct {
	Seq           int64           `json:"seq"`
	ID            string          `json:"id"`
	Type          ActionType      `json:"type"`
	EntityID      string          `json:"entityId"`
	Payload       json.RawMessage `json:"payload"`
	State         QueueState      `json:"state"`
	RetryCount    int             `json:"retryCount"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// EntityKey identifies the ordering lane of the action.
func (a *QueueAction) EntityKey() string {
	return string(a.Type.Kind()) + ":" + a.EntityID
}

// Decode unmarshals the payload into v.
func (a *QueueAction) Decode(v any) error {
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", a.Type, err)
	}
	return nil
}

// FailedAction is an escalated queue action waiting for an operator.
type FailedAction struct {
	ID           string          `json:"id"`
	Type         ActionType      `json:"type"`
	EntityID     string          `json:"entityId"`
	Payload      json.RawMessage `json:"payload"`
	RetryCount   int             `json:"retryCount"`
	LastError    string          `json:"lastError"`
	CreatedAt    time.Time       `json:"createdAt"`
	FailedAt     time.Time       `json:"failedAt"`
	Acknowledged bool            `json:"acknowledged"`
}

// EntityKey is the lane the action blocks until it is retried.
func (f *FailedAction) EntityKey() string {
	return string(f.Type.Kind()) + ":" + f.EntityID
}

type JobPayload struct {
	Job              *domain.Job `json:"job"`
	ResolvesConflict bool        `json:"resolvesConflict,omitempty"`
}

type ContactPayload struct {
	Contact *domain.Contact `json:"contact"`
}

type PhotoPayload struct {
	PhotoID     string `json:"photoId"`
	ContentType string `json:"contentType"`
}

type SealPayload struct {
	EvidenceHash string `json:"evidenceHash"`
	Snapshot     []byte `json:"snapshot"`
}
