package labelsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/qc-labelsync/pkg/labelsync/objectkey"
)

// DefaultAccessTTL is the lifetime of image URLs handed to catalog clients
const DefaultAccessTTL = time.Hour

// UploadRequest contains parameters for uploading a product image
type UploadRequest struct {
	ProductID int64
	FileName  string
	MimeType  string
	Data      io.Reader
}

// DeleteResult reports how far an image deletion got
type DeleteResult struct {
	StorageDeleted bool `json:"storage_deleted"`
}

// ImageView is an image record with a time-limited URL
type ImageView struct {
	ImageRecord
	AccessURL string `json:"access_url,omitempty"`
}

// OrphanCleanupResult is returned by ImageService.CleanupOrphans
type OrphanCleanupResult struct {
	DeletedCount int      `json:"deleted_count"`
	Errors       []string `json:"errors,omitempty"`
}

// ImageService keeps catalog image records and stored objects together
type ImageService struct {
	store    *ObjectStore
	catalog  CatalogStore
	observer Observer
	logger   *slog.Logger
}

// NewImageService creates an ImageService. observer and logger may be nil.
func NewImageService(store *ObjectStore, catalog CatalogStore, observer Observer, logger *slog.Logger) (*ImageService, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageService{store: store, catalog: catalog, observer: observer, logger: logger}, nil
}

// Upload stores the image under its product, using the product name as
// the step, and records it in the catalog. The stored object is removed
// again when the record cannot be written.
func (s *ImageService) Upload(ctx context.Context, req UploadRequest) (*ImageRecord, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", req.ProductID, err)
	}

	key, meta, err := s.store.Put(ctx, PutRequest{
		Data:        req.Data,
		CompanyName: product.CompanyName,
		ProductName: product.Name,
		StepName:    product.Name,
		FileName:    req.FileName,
		MimeType:    req.MimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = objectkey.BaseName(key)
	}
	record := &ImageRecord{
		ProductID: product.ID,
		FileName:  fileName,
		Metadata:  meta,
	}
	if err := s.catalog.CreateImage(ctx, record); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to remove object after catalog failure", "key", key, "err", delErr)
		}
		return nil, fmt.Errorf("record image: %w", err)
	}

	s.logger.Info("uploaded image", "image_id", record.ID, "key", key, "size", meta.SizeBytes)
	s.observer.ImageUploaded(meta)
	return record, nil
}

// Delete removes the stored object and the catalog record. A storage
// failure is logged and the record is deleted regardless.
func (s *ImageService) Delete(ctx context.Context, imageID int64) (DeleteResult, error) {
	record, err := s.catalog.GetImage(ctx, imageID)
	if err != nil {
		return DeleteResult{}, err
	}

	result := DeleteResult{StorageDeleted: s.deleteObject(ctx, record)}
	if err := s.catalog.DeleteImage(ctx, imageID); err != nil {
		return result, fmt.Errorf("delete image record %d: %w", imageID, err)
	}
	return result, nil
}

func (s *ImageService) deleteObject(ctx context.Context, record *ImageRecord) bool {
	key := record.Metadata.ObjectKey
	if key == "" {
		return true
	}
	err := s.store.Delete(ctx, key)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotFound):
		s.logger.Debug("stored object already gone", "image_id", record.ID, "key", key)
		return true
	default:
		s.logger.Warn("failed to delete stored object, deleting record anyway", "image_id", record.ID, "key", key, "err", err)
		return false
	}
}

// AccessURL returns a time-limited URL for the image
func (s *ImageService) AccessURL(ctx context.Context, imageID int64, ttl time.Duration) (string, error) {
	record, err := s.catalog.GetImage(ctx, imageID)
	if err != nil {
		return "", err
	}
	return s.store.PresignedURL(ctx, record.Metadata.ObjectKey, ttl)
}

// ListProductImages returns the images of a product. Images whose URL
// cannot be generated are listed without one.
func (s *ImageService) ListProductImages(ctx context.Context, productID int64, ttl time.Duration) ([]ImageView, error) {
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	records, err := s.catalog.ListImages(ctx, productID)
	if err != nil {
		return nil, err
	}
	views := make([]ImageView, 0, len(records))
	for _, record := range records {
		view := ImageView{ImageRecord: *record}
		if url, err := s.store.PresignedURL(ctx, record.Metadata.ObjectKey, ttl); err == nil {
			view.AccessURL = url
		} else {
			s.logger.Warn("failed to generate image URL", "image_id", record.ID, "err", err)
		}
		views = append(views, view)
	}
	return views, nil
}

// CleanupOrphans deletes the images whose product no longer exists
func (s *ImageService) CleanupOrphans(ctx context.Context) (OrphanCleanupResult, error) {
	orphans, err := s.catalog.ListOrphanImages(ctx)
	if err != nil {
		return OrphanCleanupResult{}, fmt.Errorf("list orphaned images: %w", err)
	}

	var result OrphanCleanupResult
	for _, record := range orphans {
		s.deleteObject(ctx, record)
		if err := s.catalog.DeleteImage(ctx, record.ID); err != nil {
			s.logger.Warn("failed to delete orphaned image", "image_id", record.ID, "err", err)
			result.Errors = append(result.Errors, fmt.Sprintf("image %d: %v", record.ID, err))
			continue
		}
		result.DeletedCount++
	}
	if result.DeletedCount > 0 {
		s.logger.Info("cleaned up orphaned images", "deleted", result.DeletedCount)
	}
	return result, nil
}

// Stats summarizes the object store
func (s *ImageService) Stats(ctx context.Context) (StorageStats, error) {
	return s.store.Stats(ctx)
}
