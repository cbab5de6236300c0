package labelsync

import (
	"context"
	"io"
	"time"
)

// BlobStore defines the interface for storage backends
type BlobStore interface {
	// Upload stores exactly the bytes read from reader under params.ObjectKey
	Upload(ctx context.Context, reader io.Reader, params UploadParams) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content. Returns ErrNotFound for unknown keys.
	Delete(ctx context.Context, objectKey string) error

	// GetObjectMeta retrieves metadata for an object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)

	// PresignGet returns a time-limited read URL for an object
	PresignGet(ctx context.Context, objectKey string, ttl time.Duration) (string, error)

	// List enumerates every object under prefix once
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)

	// Bucket returns the bucket objects are stored in
	Bucket() string

	// Provider names the backend implementation, e.g. "s3" or "memory"
	Provider() string
}

// UploadParams contains parameters for uploading an object
type UploadParams struct {
	ObjectKey string
	MimeType  string
	Size      int64
	Checksum  string // hex MD5 of the payload
	Metadata  map[string]string
}

// AnnotationClient is the contract of the external annotation service.
// The service is untrusted and may already contain duplicates.
type AnnotationClient interface {
	ListProjects(ctx context.Context) ([]ExternalProject, error)
	CreateProject(ctx context.Context, spec ProjectSpec) (ExternalProject, error)
	DeleteProject(ctx context.Context, projectID int64) error
	ListTasks(ctx context.Context, projectID int64) ([]ExternalTask, error)
	ImportTasks(ctx context.Context, projectID int64, tasks []TaskData) error
	DeleteTask(ctx context.Context, taskID int64) error
}

// CatalogStore is the narrow view of the catalog this package needs
type CatalogStore interface {
	GetProduct(ctx context.Context, productID int64) (*Product, error)
	ListProducts(ctx context.Context) ([]*Product, error)

	CreateImage(ctx context.Context, image *ImageRecord) error
	GetImage(ctx context.Context, imageID int64) (*ImageRecord, error)
	DeleteImage(ctx context.Context, imageID int64) error
	ListImages(ctx context.Context, productID int64) ([]*ImageRecord, error)
	// ListOrphanImages returns image records whose product no longer exists
	ListOrphanImages(ctx context.Context) ([]*ImageRecord, error)
}

// Observer receives notifications about mirroring and repair activity
type Observer interface {
	ProjectCreated(title string)
	TasksImported(projectID int64, count int)
	DuplicateDeleted(kind string)
	DeleteFailed(kind string)
	ReconcileFinished(duration time.Duration, result ReconcileResult)
	ImageUploaded(meta ImageMetadata)
}

// Duplicate kinds reported to an Observer
const (
	KindProject = "project"
	KindTask    = "task"
)
