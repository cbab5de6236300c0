package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

const maxUploadMemory = 32 << 20

// ImageURLResponse is the response body for GetImageURL
type ImageURLResponse struct {
	ImageID   int64  `json:"image_id"`
	URL       string `json:"url"`
	ExpiresIn int64  `json:"expires_in"`
}

// DeleteImageResponse is the response body for DeleteImage
type DeleteImageResponse struct {
	Message string `json:"message"`
	labelsync.DeleteResult
}

// UploadImage stores a multipart "image" file for the form's product_id
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		h.renderError(w, r, "Invalid upload", badRequest(err.Error()))
		return
	}
	productID, err := strconv.ParseInt(r.FormValue("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		h.renderError(w, r, "Invalid upload", badRequest("product_id is required"))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.renderError(w, r, "Invalid upload", badRequest("image file is required"))
		return
	}
	defer file.Close()

	record, err := h.images.Upload(r.Context(), labelsync.UploadRequest{
		ProductID: productID,
		FileName:  header.Filename,
		MimeType:  header.Header.Get("Content-Type"),
		Data:      file,
	})
	if err != nil {
		h.renderError(w, r, "Failed to upload image", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, record)
}

// GetImageURL returns a presigned URL valid for ?expires= seconds
func (h *Handler) GetImageURL(w http.ResponseWriter, r *http.Request) {
	imageID, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, "Invalid image ID", err)
		return
	}
	ttl, err := expiresParam(r, labelsync.DefaultAccessTTL)
	if err != nil {
		h.renderError(w, r, "Invalid expiry", err)
		return
	}

	url, err := h.images.AccessURL(r.Context(), imageID, ttl)
	if err != nil {
		h.renderError(w, r, "Failed to generate image URL", err)
		return
	}
	render.JSON(w, r, ImageURLResponse{ImageID: imageID, URL: url, ExpiresIn: int64(ttl.Seconds())})
}

// DeleteImage removes an image record. Storage failures do not fail the request.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, "Invalid image ID", err)
		return
	}

	result, err := h.images.Delete(r.Context(), imageID)
	if err != nil {
		h.renderError(w, r, "Failed to delete image", err)
		return
	}
	render.JSON(w, r, DeleteImageResponse{Message: "Image deleted successfully", DeleteResult: result})
}

// ListProductImages lists a product's images with access URLs
func (h *Handler) ListProductImages(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "id")
	if err != nil {
		h.renderError(w, r, "Invalid product ID", err)
		return
	}
	ttl, err := expiresParam(r, labelsync.DefaultAccessTTL)
	if err != nil {
		h.renderError(w, r, "Invalid expiry", err)
		return
	}

	images, err := h.images.ListProductImages(r.Context(), productID, ttl)
	if err != nil {
		h.renderError(w, r, "Failed to list images", err)
		return
	}
	render.JSON(w, r, images)
}

// CleanupOrphanedImages deletes images whose product is gone
func (h *Handler) CleanupOrphanedImages(w http.ResponseWriter, r *http.Request) {
	result, err := h.images.CleanupOrphans(r.Context())
	if err != nil {
		h.renderError(w, r, "Failed to clean up orphaned images", err)
		return
	}
	render.JSON(w, r, result)
}

// StorageStats summarizes the bucket
func (h *Handler) StorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.images.Stats(r.Context())
	if err != nil {
		h.renderError(w, r, "Failed to get storage stats", err)
		return
	}
	render.JSON(w, r, stats)
}

func expiresParam(r *http.Request, fallback time.Duration) (time.Duration, error) {
	raw := r.URL.Query().Get("expires")
	if raw == "" {
		return fallback, nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, badRequest("expires must be a positive number of seconds")
	}
	return time.Duration(seconds) * time.Second, nil
}
