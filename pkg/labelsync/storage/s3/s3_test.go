package s3

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

func TestS3Backend_BasicConfiguration(t *testing.T) {
	t.Run("EmptyBucket", func(t *testing.T) {
		_, err := New(Config{Region: "us-east-1"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket name is required")
	})

	t.Run("DefaultRegion", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
		})
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", backend.config.Region)
		assert.Equal(t, "test-bucket", backend.Bucket())
		assert.Equal(t, "s3", backend.Provider())
	})

	t.Run("PresignEndpointDefaultsToEndpoint", func(t *testing.T) {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			Endpoint:        "qc-minio:9000",
			UsePathStyle:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "http://qc-minio:9000", backend.config.Endpoint)
		assert.Equal(t, "http://qc-minio:9000", backend.config.PresignEndpoint)
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"", false, ""},
		{"qc-minio:9000", false, "http://qc-minio:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"http://172.17.0.1:9000/", false, "http://172.17.0.1:9000"},
		{" https://minio.local ", false, "https://minio.local"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeEndpoint(tt.in, tt.useSSL), tt.in)
	}
}

// Presigning never touches the network, so the host embedded in the URL can
// be checked without a running server.
func TestS3Backend_PresignUsesPresignEndpoint(t *testing.T) {
	backend, err := New(Config{
		Bucket:          "qc-images",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Endpoint:        "http://qc-minio:9000",
		PresignEndpoint: "http://172.17.0.1:9000",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	req, err := backend.presignClient.PresignGetObject(context.Background(), getInput("qc-images", "acme/widget/widget/abcd1234_a.jpg"))
	require.NoError(t, err)

	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	assert.Equal(t, "172.17.0.1:9000", u.Host)
	assert.Equal(t, "/qc-images/acme/widget/widget/abcd1234_a.jpg", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestS3Backend_WrapClassifiesErrors(t *testing.T) {
	b := &Backend{bucket: "b"}

	notFound := b.wrap("head", "k", &smithy.GenericAPIError{Code: "NotFound"})
	assert.True(t, errors.Is(notFound, labelsync.ErrNotFound))
	var storageErr *labelsync.StorageError
	require.True(t, errors.As(notFound, &storageErr))
	assert.Equal(t, "head", storageErr.Op)
	assert.Equal(t, "k", storageErr.Key)

	noSuchKey := b.wrap("download", "k", &smithy.GenericAPIError{Code: "NoSuchKey"})
	assert.True(t, errors.Is(noSuchKey, labelsync.ErrNotFound))

	denied := b.wrap("upload", "k", &smithy.GenericAPIError{Code: "AccessDenied"})
	assert.False(t, errors.Is(denied, labelsync.ErrNotFound))
	assert.False(t, errors.Is(denied, labelsync.ErrUnavailable))

	unreachable := b.wrap("upload", "k", fmt.Errorf("dial tcp: connection refused"))
	assert.True(t, errors.Is(unreachable, labelsync.ErrUnavailable))
}

func TestS3Backend_UploadRejectsMalformedChecksum(t *testing.T) {
	backend, err := New(Config{
		Bucket:          "test-bucket",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        "http://127.0.0.1:1",
	})
	require.NoError(t, err)

	err = backend.Upload(context.Background(), bytes.NewReader([]byte("x")), labelsync.UploadParams{
		ObjectKey: "k",
		Checksum:  "not-hex",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid checksum")
}

func TestS3Backend_ServerSideEncryption(t *testing.T) {
	newBackend := func(t *testing.T, algorithm, keyID string) *Backend {
		backend, err := New(Config{
			Bucket:          "test-bucket",
			AccessKeyID:     "test-key",
			SecretAccessKey: "test-secret",
			Endpoint:        "http://127.0.0.1:1",
			EnableSSE:       algorithm != "",
			SSEAlgorithm:    algorithm,
			SSEKMSKeyID:     keyID,
		})
		require.NoError(t, err)
		return backend
	}
	params := labelsync.UploadParams{ObjectKey: "k"}

	t.Run("Disabled", func(t *testing.T) {
		input, err := newBackend(t, "", "").putInput(bytes.NewReader(nil), params)
		require.NoError(t, err)
		assert.Empty(t, input.ServerSideEncryption)
		assert.Nil(t, input.SSEKMSKeyId)
	})

	t.Run("AES256", func(t *testing.T) {
		input, err := newBackend(t, SSEAlgorithmAES256, "").putInput(bytes.NewReader(nil), params)
		require.NoError(t, err)
		assert.Equal(t, types.ServerSideEncryptionAes256, input.ServerSideEncryption)
		assert.Nil(t, input.SSEKMSKeyId)
	})

	t.Run("KMS", func(t *testing.T) {
		input, err := newBackend(t, SSEAlgorithmKMS, "key-1").putInput(bytes.NewReader(nil), params)
		require.NoError(t, err)
		assert.Equal(t, types.ServerSideEncryptionAwsKms, input.ServerSideEncryption)
		assert.Equal(t, "key-1", aws.ToString(input.SSEKMSKeyId))
	})

	t.Run("UnknownAlgorithm", func(t *testing.T) {
		_, err := New(Config{Bucket: "test-bucket", EnableSSE: true, SSEAlgorithm: "rot13"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported SSE algorithm")
	})
}

// Integration tests against an S3-compatible server such as MinIO
func TestS3Backend_Integration(t *testing.T) {
	endpoint := os.Getenv("LABELSYNC_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping S3 integration test. Set LABELSYNC_TEST_S3_ENDPOINT to run.")
	}

	backend, err := New(Config{
		Region:                 "us-east-1",
		Bucket:                 fmt.Sprintf("labelsync-test-%d", time.Now().UnixNano()),
		AccessKeyID:            envOr("LABELSYNC_TEST_S3_ACCESS_KEY", "minioadmin"),
		SecretAccessKey:        envOr("LABELSYNC_TEST_S3_SECRET_KEY", "minioadmin"),
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	key := "acme/widget/widget/abcd1234_a.jpg"
	content := []byte("integration image bytes")
	sum := md5.Sum(content)

	t.Run("UploadAndMeta", func(t *testing.T) {
		err := backend.Upload(ctx, bytes.NewReader(content), labelsync.UploadParams{
			ObjectKey: key,
			MimeType:  "image/jpeg",
			Size:      int64(len(content)),
			Checksum:  hex.EncodeToString(sum[:]),
		})
		require.NoError(t, err)

		meta, err := backend.GetObjectMeta(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), meta.Size)
		assert.Equal(t, "image/jpeg", meta.ContentType)
	})

	t.Run("Download", func(t *testing.T) {
		reader, err := backend.Download(ctx, key)
		require.NoError(t, err)
		defer reader.Close()
		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, content, data)
	})

	t.Run("ChecksumMismatch", func(t *testing.T) {
		wrong := md5.Sum([]byte("something else"))
		err := backend.Upload(ctx, bytes.NewReader(content), labelsync.UploadParams{
			ObjectKey: "acme/widget/widget/bad.jpg",
			Size:      int64(len(content)),
			Checksum:  hex.EncodeToString(wrong[:]),
		})
		require.Error(t, err)
		_, err = backend.GetObjectMeta(ctx, "acme/widget/widget/bad.jpg")
		assert.True(t, errors.Is(err, labelsync.ErrNotFound))
	})

	t.Run("PresignAndList", func(t *testing.T) {
		u, err := backend.PresignGet(ctx, key, time.Hour)
		require.NoError(t, err)
		assert.Contains(t, u, "X-Amz-Signature")

		_, err = backend.PresignGet(ctx, "acme/missing.jpg", time.Hour)
		assert.True(t, errors.Is(err, labelsync.ErrNotFound))

		objects, err := backend.List(ctx, "acme/")
		require.NoError(t, err)
		require.Len(t, objects, 1)
		assert.Equal(t, key, objects[0].Key)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, key))
		err := backend.Delete(ctx, key)
		assert.True(t, errors.Is(err, labelsync.ErrNotFound))
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
