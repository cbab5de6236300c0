package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

type object struct {
	data         []byte
	mimeType     string
	lastModified time.Time
	etag         string
	metadata     map[string]string
}

// Backend is an in-memory implementation of the labelsync.BlobStore interface
type Backend struct {
	mu        sync.RWMutex
	bucket    string
	urlPrefix string
	objects   map[string]*object
	now       func() time.Time
}

// Option configures the in-memory backend
type Option func(*Backend)

// WithBucket sets the reported bucket name (default "memory")
func WithBucket(bucket string) Option {
	return func(b *Backend) { b.bucket = bucket }
}

// WithURLPrefix sets the base of generated read URLs (default "memory://")
func WithURLPrefix(prefix string) Option {
	return func(b *Backend) { b.urlPrefix = strings.TrimRight(prefix, "/") }
}

// New creates a new in-memory storage backend
func New(opts ...Option) *Backend {
	b := &Backend{
		bucket:    "memory",
		urlPrefix: "memory:/",
		objects:   make(map[string]*object),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Bucket() string   { return b.bucket }
func (b *Backend) Provider() string { return "memory" }

// Upload uploads content directly
func (b *Backend) Upload(ctx context.Context, reader io.Reader, params labelsync.UploadParams) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if params.Size > 0 && int64(len(data)) != params.Size {
		return fmt.Errorf("short upload for %s: got %d bytes, want %d", params.ObjectKey, len(data), params.Size)
	}

	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	if params.Checksum != "" && params.Checksum != etag {
		return fmt.Errorf("checksum mismatch for %s", params.ObjectKey)
	}

	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	metadata := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.objects[params.ObjectKey] = &object{
		data:         data,
		mimeType:     mimeType,
		lastModified: b.now(),
		etag:         etag,
		metadata:     metadata,
	}
	return nil
}

// Download downloads content directly
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, labelsync.ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return labelsync.ErrNotFound
	}

	delete(b.objects, objectKey)
	return nil
}

// GetObjectMeta retrieves metadata for an object in memory
func (b *Backend) GetObjectMeta(ctx context.Context, objectKey string) (*labelsync.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, labelsync.ErrNotFound
	}
	meta := obj.meta(objectKey)
	return &meta, nil
}

// PresignGet returns a pseudo URL carrying the expiry. It is only
// meaningful to consumers that understand the memory:// scheme.
func (b *Backend) PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error) {
	b.mu.RLock()
	_, exists := b.objects[objectKey]
	b.mu.RUnlock()
	if !exists {
		return "", labelsync.ErrNotFound
	}

	expires := b.now().Add(ttl).Unix()
	return fmt.Sprintf("%s/%s/%s?expires=%d", b.urlPrefix, b.bucket, (&url.URL{Path: objectKey}).EscapedPath(), expires), nil
}

// List returns every object under prefix in key order
func (b *Backend) List(ctx context.Context, prefix string) ([]labelsync.ObjectMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []labelsync.ObjectMeta
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			result = append(result, obj.meta(key))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (o *object) meta(key string) labelsync.ObjectMeta {
	metadata := make(map[string]string, len(o.metadata)+1)
	for k, v := range o.metadata {
		metadata[k] = v
	}
	metadata["mime_type"] = o.mimeType
	return labelsync.ObjectMeta{
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.mimeType,
		LastModified: o.lastModified,
		ETag:         o.etag,
		Metadata:     metadata,
	}
}
