package labelsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tendant/qc-labelsync/pkg/labelsync/objectkey"
)

// DefaultPresignTTL is the lifetime of image URLs handed to the annotation service
const DefaultPresignTTL = 24 * time.Hour

// ShortTitleSuffix is appended to product names below the service's minimum title length
const ShortTitleSuffix = "_QC_Project"

const minTitleLength = 3

// ProjectTitle derives the annotation project title of a product
func ProjectTitle(productName string) string {
	title := strings.TrimSpace(productName)
	if utf8.RuneCountInString(title) < minTitleLength {
		return title + ShortTitleSuffix
	}
	return title
}

// Syncer mirrors catalog intent into the annotation service and repairs the
// duplicates the service accumulates.
type Syncer struct {
	client     AnnotationClient
	store      *ObjectStore
	catalog    CatalogStore
	observer   Observer
	logger     *slog.Logger
	presignTTL time.Duration
	projectURL string
	now        func() time.Time

	// shared by clones made with ForClient
	titleLocks   *keyLocker
	projectLocks *keyLocker
}

// SyncerOption configures a Syncer
type SyncerOption func(*Syncer)

// WithObjectStore sets the store images are listed and presigned from
func WithObjectStore(store *ObjectStore) SyncerOption {
	return func(s *Syncer) {
		s.store = store
	}
}

// WithCatalog sets the catalog products are looked up in
func WithCatalog(catalog CatalogStore) SyncerOption {
	return func(s *Syncer) {
		s.catalog = catalog
	}
}

func WithObserver(observer Observer) SyncerOption {
	return func(s *Syncer) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func WithLogger(logger *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPresignTTL sets the lifetime of imported image URLs
func WithPresignTTL(ttl time.Duration) SyncerOption {
	return func(s *Syncer) {
		s.presignTTL = ttl
	}
}

// WithProjectURL sets the browser-facing base URL used to link projects,
// e.g. "http://localhost:8081".
func WithProjectURL(base string) SyncerOption {
	return func(s *Syncer) {
		s.projectURL = strings.TrimRight(base, "/")
	}
}

// NewSyncer creates a Syncer using client for every annotation call
func NewSyncer(client AnnotationClient, opts ...SyncerOption) (*Syncer, error) {
	if client == nil {
		return nil, errors.New("annotation client is required")
	}
	s := &Syncer{
		client:       client,
		observer:     NoopObserver{},
		logger:       slog.Default(),
		presignTTL:   DefaultPresignTTL,
		now:          time.Now,
		titleLocks:   newKeyLocker(),
		projectLocks: newKeyLocker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.presignTTL <= 0 {
		return nil, fmt.Errorf("presign TTL must be positive, got %s", s.presignTTL)
	}
	return s, nil
}

// ForClient returns a Syncer that talks through client, typically one
// carrying a caller's own token. Calls for the same title or project are
// serialized across all clones, each running with its own client.
func (s *Syncer) ForClient(client AnnotationClient) *Syncer {
	clone := *s
	clone.client = client
	return &clone
}

// ProjectURL links a project in the annotation service UI, or "" when no
// base URL is configured.
func (s *Syncer) ProjectURL(projectID int64) string {
	if s.projectURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/projects/%d", s.projectURL, projectID)
}

// EnsureProject returns the project titled title, creating it with one
// label per class when none exists. An existing project is returned as is,
// even when labels changed since it was created.
func (s *Syncer) EnsureProject(ctx context.Context, title string, labels []string) (EnsureResult, error) {
	if strings.TrimSpace(title) == "" {
		return EnsureResult{}, fmt.Errorf("%w: project title is empty", ErrInvalidState)
	}
	unlock, err := s.titleLocks.Lock(ctx, title)
	if err != nil {
		return EnsureResult{}, err
	}
	defer unlock()
	return s.ensureProject(ctx, title, labels)
}

func (s *Syncer) ensureProject(ctx context.Context, title string, labels []string) (EnsureResult, error) {
	projects, err := s.client.ListProjects(ctx)
	if err != nil {
		s.logger.Warn("failed to list projects, creating without duplicate check", "title", title, "err", err)
	} else if existing, ok := canonicalProject(projects, title); ok {
		s.logger.Info("project already exists", "title", title, "project_id", existing.ID)
		return EnsureResult{Project: existing, Labels: labels, ProjectURL: s.ProjectURL(existing.ID)}, nil
	}

	if len(labels) == 0 {
		return EnsureResult{}, fmt.Errorf("%w: %q", ErrNoLabels, title)
	}

	project, err := s.client.CreateProject(ctx, ProjectSpec{
		Title:       title,
		Description: fmt.Sprintf("Quality control project for %s", title),
		LabelConfig: LabelConfig(labels),
	})
	if err != nil {
		return EnsureResult{}, fmt.Errorf("create project %q: %w", title, err)
	}
	s.logger.Info("created project", "title", title, "project_id", project.ID, "labels", len(labels))
	s.observer.ProjectCreated(title)

	cleanup := s.followUp(ctx)

	// The follow-up pass removes the new project again when a concurrent
	// writer created an older one with the same title.
	if cleanup != nil && cleanup.DeletedProjects > 0 {
		if projects, err := s.client.ListProjects(ctx); err == nil {
			if canonical, ok := canonicalProject(projects, title); ok {
				project = canonical
			}
		}
	}

	return EnsureResult{
		Project:    project,
		Created:    true,
		Labels:     labels,
		ProjectURL: s.ProjectURL(project.ID),
		Cleanup:    cleanup,
	}, nil
}

// EnsureProductProject ensures the project of a catalog product
func (s *Syncer) EnsureProductProject(ctx context.Context, productID int64) (EnsureResult, error) {
	if s.catalog == nil {
		return EnsureResult{}, fmt.Errorf("%w: no catalog configured", ErrInvalidState)
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return EnsureResult{}, fmt.Errorf("get product %d: %w", productID, err)
	}
	return s.EnsureProject(ctx, ProjectTitle(product.Name), product.ClassLabels)
}

// ImportImages creates one task per image whose filename is not yet
// present in the project. Existing tasks are never re-imported, even when
// the stored bytes changed.
func (s *Syncer) ImportImages(ctx context.Context, projectID int64, images []StoredImage) (ImportResult, error) {
	unlock, err := s.projectLocks.Lock(ctx, strconv.FormatInt(projectID, 10))
	if err != nil {
		return ImportResult{}, err
	}
	defer unlock()
	return s.importImages(ctx, projectID, images)
}

func (s *Syncer) importImages(ctx context.Context, projectID int64, images []StoredImage) (ImportResult, error) {
	if s.store == nil {
		return ImportResult{}, fmt.Errorf("%w: no object store configured", ErrInvalidState)
	}

	result := ImportResult{TotalFound: len(images), ProjectURL: s.ProjectURL(projectID)}
	if len(images) == 0 {
		return result, nil
	}

	payload := make([]TaskData, 0, len(images))
	seen := make(map[string]bool, len(images))
	for _, image := range images {
		filename := objectkey.BaseName(image.ObjectKey)
		if seen[filename] {
			continue
		}
		url, err := s.store.PresignedURL(ctx, image.ObjectKey, s.presignTTL)
		if err != nil {
			s.logger.Error("failed to generate image URL", "key", image.ObjectKey, "err", err)
			continue
		}
		seen[filename] = true
		payload = append(payload, taskData(image, filename, url))
	}
	if len(payload) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no accessible URLs for %d images", ErrUnavailable, len(images))
	}

	existing := make(map[string]bool)
	tasks, err := s.client.ListTasks(ctx, projectID)
	if err != nil {
		s.logger.Warn("failed to list existing tasks, importing without duplicate check", "project_id", projectID, "err", err)
	}
	for _, task := range tasks {
		if task.Data.ImageFilename != "" {
			existing[task.Data.ImageFilename] = true
		}
	}

	pending := payload[:0]
	for _, data := range payload {
		if !existing[data.ImageFilename] {
			pending = append(pending, data)
		}
	}
	result.Skipped = len(images) - len(pending)

	if len(pending) == 0 {
		s.logger.Info("all images already imported", "project_id", projectID, "images", len(images))
		return result, nil
	}

	if err := s.client.ImportTasks(ctx, projectID, pending); err != nil {
		return ImportResult{}, fmt.Errorf("import %d tasks into project %d: %w", len(pending), projectID, err)
	}
	result.Imported = len(pending)
	s.logger.Info("imported tasks", "project_id", projectID, "imported", result.Imported, "skipped", result.Skipped)
	s.observer.TasksImported(projectID, result.Imported)

	result.Cleanup = s.followUp(ctx)
	return result, nil
}

// ImportProductImages imports every stored image of a catalog product
func (s *Syncer) ImportProductImages(ctx context.Context, projectID, productID int64) (ImportResult, error) {
	if s.catalog == nil || s.store == nil {
		return ImportResult{}, fmt.Errorf("%w: catalog and object store are required", ErrInvalidState)
	}
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return ImportResult{}, fmt.Errorf("get product %d: %w", productID, err)
	}

	objects, err := s.store.List(ctx, objectkey.ProductPrefix(product.CompanyName, product.Name))
	if err != nil {
		return ImportResult{}, fmt.Errorf("list images of product %d: %w", productID, err)
	}
	if len(objects) == 0 {
		return ImportResult{}, fmt.Errorf("%w: no images found for product %q", ErrNotFound, product.Name)
	}

	images := make([]StoredImage, 0, len(objects))
	for _, obj := range objects {
		images = append(images, StoredImage{
			ObjectKey:    obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			CompanyName:  product.CompanyName,
			ProductName:  product.Name,
		})
	}
	return s.ImportImages(ctx, projectID, images)
}

func taskData(image StoredImage, filename, url string) TaskData {
	data := TaskData{
		ImageURL:      url,
		ImageFilename: filename,
		Product:       image.ProductName,
		Company:       image.CompanyName,
		FileSize:      image.Size,
	}
	if !image.LastModified.IsZero() {
		data.UploadDate = image.LastModified.UTC().Format(time.RFC3339)
	}
	return data
}

// followUp runs a reconciliation pass after a mutation. Its failure never
// fails the mutation.
func (s *Syncer) followUp(ctx context.Context) *ReconcileResult {
	result, err := s.Reconcile(ctx)
	if err != nil {
		s.logger.Warn("follow-up reconciliation failed", "err", err)
	}
	return &result
}

// TestConnection checks the client's token by listing projects and
// returns how many are visible.
func (s *Syncer) TestConnection(ctx context.Context) (int, error) {
	projects, err := s.client.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	return len(projects), nil
}

// ExistingProjects matches every catalog product with the canonical
// project of its derived title.
func (s *Syncer) ExistingProjects(ctx context.Context) (ExistingProjectsReport, error) {
	if s.catalog == nil {
		return ExistingProjectsReport{}, fmt.Errorf("%w: no catalog configured", ErrInvalidState)
	}
	projects, err := s.client.ListProjects(ctx)
	if err != nil {
		return ExistingProjectsReport{}, err
	}
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return ExistingProjectsReport{}, fmt.Errorf("list products: %w", err)
	}

	report := ExistingProjectsReport{
		Products:              make([]ProductProject, 0, len(products)),
		TotalExistingProjects: len(projects),
	}
	for _, product := range products {
		title := ProjectTitle(product.Name)
		entry := ProductProject{
			ProductID:    product.ID,
			ProductName:  product.Name,
			CompanyName:  product.CompanyName,
			ProjectTitle: title,
			Classes:      product.ClassLabels,
			HasClasses:   len(product.ClassLabels) > 0,
		}
		if entry.Classes == nil {
			entry.Classes = []string{}
		}
		if project, ok := canonicalProject(projects, title); ok {
			id := project.ID
			entry.HasExistingProject = true
			entry.ProjectID = &id
			entry.TaskCount = project.TaskCount
			entry.AnnotatedCount = project.AnnotatedCount
			if url := s.ProjectURL(id); url != "" {
				entry.ProjectURL = &url
			}
		}
		report.Products = append(report.Products, entry)
	}
	return report, nil
}
