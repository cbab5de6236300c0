package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

// EnsureProjectRequest is the request body for creating a product's project
type EnsureProjectRequest struct {
	ProductID int64 `json:"product_id"`
}

// ImportRequest is the request body for importing a product's images
type ImportRequest struct {
	ProjectID int64 `json:"project_id"`
	ProductID int64 `json:"product_id"`
}

// ConnectionResponse is the response body of a connection test
type ConnectionResponse struct {
	Success      bool `json:"success"`
	ProjectCount int  `json:"project_count"`
}

// EnsureProjectResponse is the response body for EnsureProject
type EnsureProjectResponse struct {
	labelsync.EnsureResult
	ProjectID   int64  `json:"project_id"`
	ProjectName string `json:"project_name"`
}

// TestConnection lists projects with the caller's token
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	count, err := h.syncerFor(r).TestConnection(r.Context())
	if err != nil {
		h.renderError(w, r, "Annotation service connection failed", err)
		return
	}
	render.JSON(w, r, ConnectionResponse{Success: true, ProjectCount: count})
}

// EnsureProject returns the product's project, creating it when missing
func (h *Handler) EnsureProject(w http.ResponseWriter, r *http.Request) {
	var req EnsureProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.renderError(w, r, "Invalid request body", badRequest(err.Error()))
		return
	}
	if req.ProductID <= 0 {
		h.renderError(w, r, "Invalid request body", badRequest("product_id is required"))
		return
	}

	result, err := h.syncerFor(r).EnsureProductProject(r.Context(), req.ProductID)
	if err != nil {
		h.renderError(w, r, "Failed to ensure project", err)
		return
	}

	if result.Created {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, EnsureProjectResponse{
		EnsureResult: result,
		ProjectID:    result.Project.ID,
		ProjectName:  result.Project.Title,
	})
}

// ImportImages imports every stored image of a product into a project
func (h *Handler) ImportImages(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.renderError(w, r, "Invalid request body", badRequest(err.Error()))
		return
	}
	if req.ProjectID <= 0 || req.ProductID <= 0 {
		h.renderError(w, r, "Invalid request body", badRequest("project_id and product_id are required"))
		return
	}

	result, err := h.syncerFor(r).ImportProductImages(r.Context(), req.ProjectID, req.ProductID)
	if err != nil {
		h.renderError(w, r, "Failed to import images", err)
		return
	}
	render.JSON(w, r, result)
}

// CleanupDuplicates runs a reconciliation pass on demand
func (h *Handler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncerFor(r).Reconcile(r.Context())
	if err != nil {
		h.renderError(w, r, "Failed to clean up duplicates", err)
		return
	}
	render.JSON(w, r, result)
}

// ExistingProjects matches catalog products with existing projects
func (h *Handler) ExistingProjects(w http.ResponseWriter, r *http.Request) {
	report, err := h.syncerFor(r).ExistingProjects(r.Context())
	if err != nil {
		h.renderError(w, r, "Failed to list existing projects", err)
		return
	}
	render.JSON(w, r, report)
}
