// Package evidencestore retains canonical seal snapshots in a MinIO bucket
// so seals can be re-verified independently of the database.
package evidencestore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// objectClient is the part of *minio.Client the store uses.
type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (io.ReadCloser, error)
}

type minioClient struct {
	*minio.Client
}

func (c minioClient) GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.Client.GetObject(ctx, bucket, object, opts)
}

type Store struct {
	client objectClient
	bucket string
	region string
}

func New(o Options) (*Store, error) {
	client, err := minio.New(o.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.AccessKey, o.SecretKey, ""),
		Secure: o.UseSSL,
		Region: o.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Store{client: minioClient{client}, bucket: o.Bucket, region: o.Region}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

func SnapshotKey(workspaceID, jobID string) string {
	return "seals/" + workspaceID + "/" + jobID + ".json"
}

func (s *Store) PutSnapshot(ctx context.Context, workspaceID, jobID string, snapshot []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, SnapshotKey(workspaceID, jobID),
		bytes.NewReader(snapshot), int64(len(snapshot)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns common.ErrorNotFound when no snapshot was retained.
func (s *Store) GetSnapshot(ctx context.Context, workspaceID, jobID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, SnapshotKey(workspaceID, jobID), minio.GetObjectOptions{})
	if err != nil {
		return nil, mapErr(err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapErr(err)
	}
	return data, nil
}

func mapErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return common.ErrorNotFound
	}
	return fmt.Errorf("failed to read snapshot: %w", err)
}
