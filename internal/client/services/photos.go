package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/client/client"
	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/client/store"
	"github.com/dmitrijs2005/fieldseal/internal/client/syncqueue"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/logging"
	"github.com/dmitrijs2005/fieldseal/internal/netx"
	"github.com/dmitrijs2005/fieldseal/internal/rpc"
	"github.com/google/uuid"
)

type NewPhoto struct {
	JobID   string
	Path    string
	Type    domain.PhotoType
	TakenAt time.Time
	GPS     *domain.GPS
}

type PhotoService interface {
	Add(ctx context.Context, p NewPhoto) (*domain.Photo, error)
	List(ctx context.Context, jobID string) ([]domain.Photo, error)
}

type photoService struct {
	store  syncqueue.Store
	queue  *syncqueue.Manager
	remote client.Client
	http   *http.Client
	log    logging.Logger
	now    func() time.Time
}

// NewPhotoService builds the service and registers the UPLOAD_PHOTO handler
// on q. Binaries are PUT to presigned URLs with hc.
func NewPhotoService(s syncqueue.Store, q *syncqueue.Manager, remote client.Client, hc *http.Client, log logging.Logger, now func() time.Time) PhotoService {
	if hc == nil {
		hc = http.DefaultClient
	}
	if now == nil {
		now = time.Now
	}
	svc := &photoService{store: s, queue: q, remote: remote, http: hc, log: log.With("module", "photos"), now: now}
	q.Register(models.ActionUploadPhoto, svc.deliver)
	return svc
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Add records a captured photo and queues its upload on the job's lane, so it
// is delivered after the job itself and before any seal.
func (s *photoService) Add(ctx context.Context, np NewPhoto) (*domain.Photo, error) {
	typ, err := domain.ParsePhotoType(string(np.Type))
	if err != nil {
		return nil, common.NewValidationError(err.Error())
	}
	path, err := filepath.Abs(np.Path)
	if err != nil {
		return nil, err
	}
	hash, _, err := hashFile(path)
	if err != nil {
		return nil, common.NewValidationError(fmt.Sprintf("photo file: %v", err))
	}
	takenAt := np.TakenAt
	if takenAt.IsZero() {
		takenAt = s.now()
	}
	p := &domain.Photo{
		ID:          uuid.NewString(),
		JobID:       np.JobID,
		TakenAt:     takenAt.UTC(),
		GPS:         np.GPS,
		Type:        typ,
		LocalRef:    path,
		ContentHash: hash,
		SyncStatus:  domain.SyncPending,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, r *store.Repos) error {
		queued, err := r.Queue.HasType(ctx, models.ActionSealJob, np.JobID)
		if err != nil {
			return err
		}
		if queued {
			return fmt.Errorf("job %s is read-only: %w", np.JobID, common.ErrSealQueued)
		}
		if err := r.Photos.Add(ctx, p); err != nil {
			return err
		}
		_, err = s.queue.Enqueue(ctx, r, models.ActionUploadPhoto, np.JobID, models.PhotoPayload{
			PhotoID:     p.ID,
			ContentType: contentType(path),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "photo captured", "job", np.JobID, "photo", p.ID)
	return p, nil
}

func (s *photoService) List(ctx context.Context, jobID string) ([]domain.Photo, error) {
	return s.store.Repos().Photos.ListByJob(ctx, jobID)
}

// uploadError classifies a failed PUT. Server-side and throttling statuses
// are retried; other statuses mean the URL or payload is unusable.
func uploadError(err error) error {
	var ue *netx.UploadError
	if errors.As(err, &ue) {
		if ue.Retryable() {
			return fmt.Errorf("%w: %w", common.ErrTransientNetwork, err)
		}
		return common.NewValidationError(err.Error())
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrTransientNetwork, err)
}

func (s *photoService) deliver(ctx context.Context, a *models.QueueAction) (syncqueue.Result, error) {
	var pl models.PhotoPayload
	if err := a.Decode(&pl); err != nil {
		return syncqueue.Result{}, common.NewValidationError(err.Error())
	}
	photo, err := s.store.Repos().Photos.Get(ctx, pl.PhotoID)
	if err != nil {
		return syncqueue.Result{}, common.NewValidationError(err.Error())
	}
	if photo.SyncStatus == domain.SyncSynced && photo.RemoteURL != "" {
		return syncqueue.Result{}, nil
	}

	hash, size, err := hashFile(photo.LocalRef)
	if err != nil {
		return syncqueue.Result{}, common.NewValidationError(fmt.Sprintf("photo %s: %v", photo.ID, err))
	}
	if hash != photo.ContentHash {
		return syncqueue.Result{}, common.NewValidationError(fmt.Sprintf("photo %s changed on disk after capture", photo.ID))
	}

	up, err := s.remote.RequestPhotoUpload(ctx, &rpc.RequestPhotoUploadRequest{
		JobID:       photo.JobID,
		PhotoID:     photo.ID,
		ContentHash: hash,
		ContentType: pl.ContentType,
		Size:        size,
	})
	if err != nil {
		return syncqueue.Result{}, err
	}
	if !up.AlreadyUploaded {
		f, err := os.Open(photo.LocalRef)
		if err != nil {
			return syncqueue.Result{}, common.NewValidationError(err.Error())
		}
		err = netx.UploadToPresignedURL(ctx, s.http, up.UploadURL, f, size, pl.ContentType)
		f.Close()
		if err != nil {
			return syncqueue.Result{}, uploadError(err)
		}
	}

	remoteURL, err := s.remote.ConfirmPhotoUpload(ctx, up.StorageKey, photo)
	if err != nil {
		return syncqueue.Result{}, err
	}
	return syncqueue.Result{
		Commit: func(ctx context.Context, r *store.Repos) error {
			return r.Photos.MarkUploaded(ctx, photo.ID, remoteURL, hash)
		},
	}, nil
}
