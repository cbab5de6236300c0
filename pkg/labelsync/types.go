package labelsync

import (
	"time"
)

// ImageMetadata describes a stored image. It is created together with the
// upload and never changed afterwards.
type ImageMetadata struct {
	ObjectKey string `json:"object_key"`
	Bucket    string `json:"bucket"`
	SizeBytes int64  `json:"size_bytes"`
	MimeType  string `json:"mime_type"`
	Checksum  string `json:"checksum"` // hex MD5 of the uploaded bytes
	Provider  string `json:"provider"`
}

// ObjectMeta contains metadata about an object in storage
type ObjectMeta struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
	Metadata     map[string]string
}

// StorageStats summarizes the contents of the bucket
type StorageStats struct {
	Bucket      string  `json:"bucket_name"`
	ObjectCount int     `json:"total_objects"`
	TotalBytes  int64   `json:"total_size_bytes"`
	TotalMB     float64 `json:"total_size_mb"`
}

// ExternalProject is a project as listed by the annotation service.
// Title is its identity for deduplication.
type ExternalProject struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	LabelConfig    string `json:"label_config,omitempty"`
	TaskCount      int    `json:"task_number,omitempty"`
	AnnotatedCount int    `json:"num_tasks_with_annotations,omitempty"`
}

// ProjectSpec is the payload used to create a project
type ProjectSpec struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	LabelConfig string `json:"label_config,omitempty"`
}

// ExternalTask is a task as listed by the annotation service. Within a
// project Data.ImageFilename is its identity for deduplication.
type ExternalTask struct {
	ID        int64    `json:"id"`
	ProjectID int64    `json:"project,omitempty"`
	Data      TaskData `json:"data"`
}

// TaskData is the task payload sent on import
type TaskData struct {
	ImageURL      string `json:"image_url"`
	ImageFilename string `json:"image_filename"`
	Product       string `json:"product,omitempty"`
	Company       string `json:"company,omitempty"`
	FileSize      int64  `json:"file_size,omitempty"`
	UploadDate    string `json:"upload_date,omitempty"`
}

// StoredImage is an image in the object store that should be represented
// by exactly one task.
type StoredImage struct {
	ObjectKey    string
	Size         int64
	LastModified time.Time
	CompanyName  string
	ProductName  string
}

// EnsureResult is returned by Syncer.EnsureProject
type EnsureResult struct {
	Project    ExternalProject  `json:"project"`
	Created    bool             `json:"created"`
	Labels     []string         `json:"labels"`
	ProjectURL string           `json:"project_url,omitempty"`
	Cleanup    *ReconcileResult `json:"cleanup,omitempty"`
}

// ImportResult is returned by Syncer.ImportImages
type ImportResult struct {
	Imported   int              `json:"imported_count"`
	TotalFound int              `json:"total_images_found"`
	Skipped    int              `json:"skipped_count"`
	ProjectURL string           `json:"project_url,omitempty"`
	Cleanup    *ReconcileResult `json:"cleanup,omitempty"`
}

// ReconcileResult is returned by Syncer.Reconcile
type ReconcileResult struct {
	DeletedProjects int      `json:"deleted_projects"`
	DeletedTasks    int      `json:"deleted_tasks"`
	Details         []string `json:"details,omitempty"`
}

// Company is a catalog company
type Company struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Product is a catalog product joined with its company and class labels
type Product struct {
	ID          int64    `json:"id"`
	CompanyID   int64    `json:"company_id"`
	CompanyName string   `json:"company_name"`
	Name        string   `json:"name"`
	ClassLabels []string `json:"classes"`
}

// ImageRecord is the catalog row owning a stored image
type ImageRecord struct {
	ID        int64         `json:"id"`
	ProductID int64         `json:"product_id"`
	FileName  string        `json:"filename"`
	Metadata  ImageMetadata `json:"metadata"`
	CreatedAt time.Time     `json:"timestamp"`
}

// ProductProject reports whether a catalog product already has its
// annotation project.
type ProductProject struct {
	ProductID          int64    `json:"product_id"`
	ProductName        string   `json:"product_name"`
	CompanyName        string   `json:"company_name"`
	ProjectTitle       string   `json:"project_name"`
	Classes            []string `json:"classes"`
	HasClasses         bool     `json:"has_classes"`
	HasExistingProject bool     `json:"has_existing_project"`
	ProjectID          *int64   `json:"project_id"`
	ProjectURL         *string  `json:"project_url"`
	TaskCount          int      `json:"task_count"`
	AnnotatedCount     int      `json:"annotated_count"`
}

// ExistingProjectsReport is returned by Syncer.ExistingProjects
type ExistingProjectsReport struct {
	Products              []ProductProject `json:"products"`
	TotalExistingProjects int              `json:"total_existing_projects"`
}
