package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
)

// TokenHeader carries a caller's annotation service token when the
// Authorization header is taken by something else.
const TokenHeader = "X-Annotation-Token"

// ClientFactory returns an annotation client acting with token
type ClientFactory func(token string) labelsync.AnnotationClient

// Handler serves the annotation and image endpoints
type Handler struct {
	syncer    *labelsync.Syncer
	images    *labelsync.ImageService
	clientFor ClientFactory
	logger    *slog.Logger
}

// Option configures a Handler
type Option func(*Handler)

// WithClientFactory makes requests that carry a token talk to the
// annotation service with that token instead of the service token.
func WithClientFactory(f ClientFactory) Option {
	return func(h *Handler) {
		h.clientFor = f
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a new handler
func NewHandler(syncer *labelsync.Syncer, images *labelsync.ImageService, opts ...Option) *Handler {
	h := &Handler{
		syncer: syncer,
		images: images,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for annotation sync and image management
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/annotation", func(r chi.Router) {
		r.Post("/test-connection", h.TestConnection)
		r.Post("/projects", h.EnsureProject)
		r.Post("/import", h.ImportImages)
		r.Post("/cleanup-duplicates", h.CleanupDuplicates)
		r.Get("/existing-projects", h.ExistingProjects)
	})

	r.Post("/images", h.UploadImage)
	r.Get("/images/{id}/url", h.GetImageURL)
	r.Delete("/images/{id}", h.DeleteImage)
	r.Get("/products/{id}/images", h.ListProductImages)

	r.Post("/cleanup/orphaned-images", h.CleanupOrphanedImages)
	r.Get("/storage/stats", h.StorageStats)

	return r
}

// syncerFor returns the Syncer acting with the caller's token, or the
// service Syncer when the request carries none.
func (h *Handler) syncerFor(r *http.Request) *labelsync.Syncer {
	token := requestToken(r)
	if token == "" || h.clientFor == nil {
		return h.syncer
	}
	return h.syncer.ForClient(h.clientFor(token))
}

func requestToken(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(TokenHeader)); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "Token") {
		return strings.TrimSpace(token)
	}
	return ""
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

const kindBadRequest = "bad_request"

var errBadRequest = errors.New("bad request")

// StatusFor maps an error to the HTTP status reported to clients
func StatusFor(err error) int {
	if errors.Is(err, errBadRequest) {
		return http.StatusBadRequest
	}
	switch labelsync.ErrorKind(err) {
	case labelsync.KindNotFound:
		return http.StatusNotFound
	case labelsync.KindInvalidState:
		return http.StatusBadRequest
	case labelsync.KindUnauthorized:
		return http.StatusUnauthorized
	case labelsync.KindForbidden:
		return http.StatusForbidden
	case labelsync.KindRejected:
		return http.StatusBadGateway
	case labelsync.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := StatusFor(err)
	kind := labelsync.ErrorKind(err)
	if errors.Is(err, errBadRequest) {
		kind = kindBadRequest
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", r.URL.Path, "err", err)
	} else {
		h.logger.Warn(msg, "path", r.URL.Path, "status", status, "err", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error(), Kind: kind})
}

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Is(target error) bool { return target == errBadRequest }

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid " + name + ": " + raw)
	}
	return id, nil
}
