package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/dbx"
	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/dmitrijs2005/fieldseal/internal/evidence"
	"github.com/dmitrijs2005/fieldseal/internal/server/auth"
	sc "github.com/dmitrijs2005/fieldseal/internal/server/config"
	"github.com/dmitrijs2005/fieldseal/internal/server/models"
	"github.com/dmitrijs2005/fieldseal/internal/server/repositories/repomanager"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in)
	}
)

// UploadTicket tells a device where to PUT photo bytes. URL is empty when the
// same content is already stored.
type UploadTicket struct {
	StorageKey      string
	URL             string
	AlreadyUploaded bool
}

// PhotoService hands out presigned S3 URLs for photo blobs and records their
// metadata once the device confirms an upload.
type PhotoService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
}

func NewPhotoService(db *sql.DB, m repomanager.RepositoryManager, cfg *sc.Config) *PhotoService {
	return &PhotoService{db: db, repomanager: m, config: cfg}
}

func PhotoKey(jobID, photoID string) string {
	return "photos/" + jobID + "/" + photoID
}

func (s *PhotoService) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}
	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	}), nil
}

func (s *PhotoService) expiry() time.Duration {
	if s.config.PresignExpiry > 0 {
		return s.config.PresignExpiry
	}
	return 15 * time.Minute
}

// mutableJob loads the job for a photo operation and rejects foreign and
// sealed jobs.
func (s *PhotoService) mutableJob(ctx context.Context, db dbx.DBTX, p auth.Principal, jobID string) error {
	stored, err := s.repomanager.Jobs(db).Get(ctx, jobID)
	if err != nil {
		return err
	}
	if stored.Job.WorkspaceID != p.WorkspaceID {
		return common.ErrorNotFound
	}
	return stored.Job.EnsureMutable()
}

func (s *PhotoService) RequestUpload(ctx context.Context, p auth.Principal, jobID, photoID, contentHash, contentType string) (*UploadTicket, error) {
	if jobID == "" || photoID == "" {
		return nil, common.NewValidationError("job id and photo id are required")
	}
	if !evidence.ValidHash(contentHash) {
		return nil, common.NewValidationError("content hash must be 64 lowercase hex characters")
	}
	if err := s.mutableJob(ctx, s.db, p, jobID); err != nil {
		return nil, err
	}

	key := PhotoKey(jobID, photoID)
	existing, err := s.repomanager.Photos(s.db).Get(ctx, photoID)
	switch {
	case errors.Is(err, common.ErrorNotFound):
	case err != nil:
		return nil, err
	case existing.JobID != jobID:
		return nil, common.NewValidationError(fmt.Sprintf("photo %s belongs to another job", photoID))
	case existing.Uploaded && existing.ContentHash == contentHash:
		return &UploadTicket{StorageKey: key, AlreadyUploaded: true}, nil
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}
	in := &s3.PutObjectInput{Bucket: aws.String(s.config.S3Bucket), Key: aws.String(key)}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	req, err := presignPutObject(newS3PresignClient(client), ctx, in, s3.WithPresignExpires(s.expiry()))
	if err != nil {
		return nil, err
	}
	return &UploadTicket{StorageKey: key, URL: req.URL}, nil
}

// ConfirmUpload checks that the object exists and records the photo as
// uploaded. It returns the remote URL devices store on the photo.
func (s *PhotoService) ConfirmUpload(ctx context.Context, p auth.Principal, storageKey string, photo *domain.Photo) (string, error) {
	if photo == nil || photo.ID == "" || photo.JobID == "" {
		return "", common.NewValidationError("photo id and job id are required")
	}
	if storageKey != PhotoKey(photo.JobID, photo.ID) {
		return "", common.NewValidationError(fmt.Sprintf("storage key %q does not match photo", storageKey))
	}
	if !evidence.ValidHash(photo.ContentHash) {
		return "", common.NewValidationError("content hash must be 64 lowercase hex characters")
	}
	if _, err := domain.ParsePhotoType(string(photo.Type)); err != nil {
		return "", common.NewValidationError(err.Error())
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}
	_, err = headObject(client, ctx, &s3.HeadObjectInput{Bucket: aws.String(s.config.S3Bucket), Key: aws.String(storageKey)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return "", common.NewValidationError("photo bytes were not uploaded")
		}
		return "", fmt.Errorf("%w: head object: %v", common.ErrTransientNetwork, err)
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.mutableJob(ctx, tx, p, photo.JobID); err != nil {
			return err
		}
		repo := s.repomanager.Photos(tx)
		obj := &models.PhotoObject{
			ID:          photo.ID,
			JobID:       photo.JobID,
			Type:        photo.Type,
			TakenAt:     photo.TakenAt,
			GPS:         photo.GPS,
			ContentHash: photo.ContentHash,
			StorageKey:  storageKey,
		}
		if err := repo.Upsert(ctx, obj); err != nil {
			return err
		}
		return repo.MarkUploaded(ctx, photo.ID)
	})
	if err != nil {
		return "", err
	}
	return RemoteURL(s.config.S3Bucket, storageKey), nil
}

// PresignedGetURL returns a short-lived download link for an uploaded photo.
func (s *PhotoService) PresignedGetURL(ctx context.Context, storageKey string) (string, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}
	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.S3Bucket),
		Key:    aws.String(storageKey),
	}, s3.WithPresignExpires(s.expiry()))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
