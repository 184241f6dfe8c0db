package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/google/uuid"
)

type ContactService interface {
	Save(ctx context.Context, c *domain.Contact) (*domain.Contact, error)
	Get(ctx context.Context, id string) (*domain.Contact, error)
	List(ctx context.Context, workspaceID string, kind domain.ContactKind) ([]*domain.Contact, error)
}

type contactService struct {
	store  syncqueue.Store
	queue  *syncqueue.Manager
	remote client.Client
	now    func() time.Time
}

// NewContactService builds the service and registers the client and
// technician handlers on q.
func NewContactService(s syncqueue.Store, q *syncqueue.Manager, remote client.Client, now func() time.Time) ContactService {
	if now == nil {
		now = time.Now
	}
	svc := &contactService{store: s, queue: q, remote: remote, now: now}
	for _, t := range []models.ActionType{
		models.ActionCreateClient, models.ActionUpdateClient,
		models.ActionCreateTechnician, models.ActionUpdateTechnician,
	} {
		q.Register(t, svc.deliver)
	}
	return svc
}

func validateContact(c *domain.Contact) error {
	var reasons []string
	if strings.TrimSpace(c.WorkspaceID) == "" {
		reasons = append(reasons, "workspace is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		reasons = append(reasons, "name is required")
	}
	if _, err := domain.ParseContactKind(string(c.Kind)); err != nil {
		reasons = append(reasons, err.Error())
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			reasons = append(reasons, "email is malformed")
		}
	}
	if len(reasons) > 0 {
		return common.NewValidationError(reasons...)
	}
	return nil
}

// Save creates the contact when its ID is new and updates it otherwise.
func (s *contactService) Save(ctx context.Context, c *domain.Contact) (*domain.Contact, error) {
	if err := validateContact(c); err != nil {
		return nil, err
	}
	saved := *c
	if saved.ID == "" {
		saved.ID = uuid.NewString()
	}
	saved.SyncStatus = domain.SyncPending
	saved.UpdatedAt = s.now().UTC()

	err := s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		_, err := r.Contacts.Get(ctx, saved.ID)
		create := errors.Is(err, common.ErrorNotFound)
		if err != nil && !create {
			return err
		}
		if err := r.Contacts.Save(ctx, &saved); err != nil {
			return err
		}
		_, err = s.queue.Enqueue(ctx, r, models.ContactAction(saved.Kind, create), saved.ID, models.ContactPayload{Contact: &saved})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

func (s *contactService) Get(ctx context.Context, id string) (*domain.Contact, error) {
	return s.store.Repos().Contacts.Get(ctx, id)
}

func (s *contactService) List(ctx context.Context, workspaceID string, kind domain.ContactKind) ([]*domain.Contact, error) {
	return s.store.Repos().Contacts.List(ctx, workspaceID, kind)
}

func (s *contactService) deliver(ctx context.Context, a *models.QueueAction) (syncqueue.Result, error) {
	var p models.ContactPayload
	if err := a.Decode(&p); err != nil || p.Contact == nil {
		return syncqueue.Result{}, common.NewValidationError("contact payload is empty or malformed")
	}
	if _, err := s.remote.UpsertContact(ctx, a.ID, p.Contact); err != nil {
		return syncqueue.Result{}, err
	}
	return syncqueue.Result{}, nil
}
