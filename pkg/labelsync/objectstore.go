package labelsync

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/tendant/qc-labelsync/pkg/labelsync/objectkey"
)

// DefaultMimeType is used when an upload does not name one
const DefaultMimeType = "image/jpeg"

// PutRequest contains parameters for storing an image
type PutRequest struct {
	Data        io.Reader
	CompanyName string
	ProductName string
	StepName    string
	FileName    string
	MimeType    string
}

// ObjectInfo is one entry of an object listing
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// ObjectStore stores image payloads under catalog-derived keys on top of a
// BlobStore backend.
type ObjectStore struct {
	blob      BlobStore
	generator objectkey.Generator
}

// ObjectStoreOption configures an ObjectStore
type ObjectStoreOption func(*ObjectStore)

// WithKeyGenerator replaces the default catalog key generator
func WithKeyGenerator(g objectkey.Generator) ObjectStoreOption {
	return func(s *ObjectStore) {
		s.generator = g
	}
}

// NewObjectStore creates an ObjectStore backed by blob
func NewObjectStore(blob BlobStore, opts ...ObjectStoreOption) *ObjectStore {
	s := &ObjectStore{
		blob:      blob,
		generator: objectkey.NewCatalogGenerator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bucket returns the bucket of the underlying backend
func (s *ObjectStore) Bucket() string { return s.blob.Bucket() }

// Put stores the payload under a freshly generated key. The payload is read
// once; size and checksum describe exactly the bytes handed to the backend.
func (s *ObjectStore) Put(ctx context.Context, req PutRequest) (string, ImageMetadata, error) {
	if req.Data == nil {
		return "", ImageMetadata{}, fmt.Errorf("%w: image data is required", ErrInvalidState)
	}

	key, err := s.generator.GenerateKey(objectkey.KeyMetadata{
		CompanyName: req.CompanyName,
		ProductName: req.ProductName,
		StepName:    req.StepName,
		FileName:    req.FileName,
	})
	if err != nil {
		return "", ImageMetadata{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	data, err := io.ReadAll(req.Data)
	if err != nil {
		return "", ImageMetadata{}, fmt.Errorf("failed to read image data: %w", err)
	}

	sum := md5.Sum(data)
	checksum := hex.EncodeToString(sum[:])

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	err = s.blob.Upload(ctx, bytes.NewReader(data), UploadParams{
		ObjectKey: key,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		Checksum:  checksum,
		Metadata: map[string]string{
			"company": req.CompanyName,
			"product": req.ProductName,
			"step":    req.StepName,
		},
	})
	if err != nil {
		return "", ImageMetadata{}, err
	}

	return key, ImageMetadata{
		ObjectKey: key,
		Bucket:    s.blob.Bucket(),
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		Checksum:  checksum,
		Provider:  s.blob.Provider(),
	}, nil
}

// PresignedURL returns a time-limited read URL for an existing object
func (s *ObjectStore) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("%w: expiry must be positive", ErrInvalidState)
	}
	return s.blob.PresignGet(ctx, key, ttl)
}

func (s *ObjectStore) Delete(ctx context.Context, key string) error {
	return s.blob.Delete(ctx, key)
}

func (s *ObjectStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.blob.Download(ctx, key)
}

// List enumerates every object under prefix
func (s *ObjectStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	objects, err := s.blob.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	infos := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		infos = append(infos, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			ETag:         obj.ETag,
		})
	}
	return infos, nil
}

// Stats counts the objects in the bucket and their total size
func (s *ObjectStore) Stats(ctx context.Context) (StorageStats, error) {
	objects, err := s.blob.List(ctx, "")
	if err != nil {
		return StorageStats{}, err
	}
	stats := StorageStats{Bucket: s.blob.Bucket(), ObjectCount: len(objects)}
	for _, obj := range objects {
		stats.TotalBytes += obj.Size
	}
	stats.TotalMB = math.Round(float64(stats.TotalBytes)/(1024*1024)*100) / 100
	return stats, nil
}

// ErrChecksumMismatch is returned by VerifyChecksum when the stored bytes
// no longer match the recorded digest.
var ErrChecksumMismatch = errors.New("stored object checksum mismatch")

// VerifyChecksum recomputes the MD5 of the stored object and compares it
// with checksum.
func (s *ObjectStore) VerifyChecksum(ctx context.Context, key, checksum string) error {
	reader, err := s.blob.Download(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	h := md5.New()
	if _, err := io.Copy(h, reader); err != nil {
		return &StorageError{Backend: s.blob.Provider(), Key: key, Op: "verify", Err: err}
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != checksum {
		return fmt.Errorf("%w: key %s has %s, expected %s", ErrChecksumMismatch, key, got, checksum)
	}
	return nil
}
