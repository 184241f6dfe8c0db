package evidencestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newFake() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.failPut != nil {
		return minio.UploadInfo{}, f.failPut
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[bucket+"/"+object] = data
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, bucket, object string, _ minio.GetObjectOptions) (io.ReadCloser, error) {
	data, ok := f.objects[bucket+"/"+object]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestSnapshotKey(t *testing.T) {
	assert.Equal(t, "seals/ws-1/j1.json", SnapshotKey("ws-1", "j1"))
}

func TestEnsureBucket_CreatesOnce(t *testing.T) {
	f := newFake()
	s := &Store{client: f, bucket: "seals"}

	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.True(t, f.buckets["seals"])
	require.NoError(t, s.EnsureBucket(context.Background()))
}

func TestPutAndGetSnapshot(t *testing.T) {
	f := newFake()
	s := &Store{client: f, bucket: "seals"}
	ctx := context.Background()

	require.NoError(t, s.PutSnapshot(ctx, "ws-1", "j1", []byte(`{"version":1}`)))
	assert.Equal(t, "application/json", f.types["seals/seals/ws-1/j1.json"])

	got, err := s.GetSnapshot(ctx, "ws-1", "j1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":1}`, string(got))

	_, err = s.GetSnapshot(ctx, "ws-1", "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestPutSnapshot_Error(t *testing.T) {
	f := newFake()
	f.failPut = errors.New("disk full")
	s := &Store{client: f, bucket: "seals"}

	err := s.PutSnapshot(context.Background(), "ws-1", "j1", []byte("{}"))
	require.ErrorContains(t, err, "disk full")
}

func TestNew_BuildsClient(t *testing.T) {
	s, err := New(Options{Endpoint: "127.0.0.1:9000", AccessKey: "a", SecretKey: "b", Bucket: "seals", Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "seals", s.bucket)
}
