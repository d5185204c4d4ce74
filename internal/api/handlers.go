// Package api exposes HTTP handlers for the run log.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"example.com/runlog/internal/auth"
	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/export"
	"example.com/runlog/internal/observability"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures optional Handler behaviour.
type Option func(*Handler)

// WithLogger sets the logger used for server-side failures.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock overrides the time source used to name exports.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", healthz)
	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", h.listRuns)
		r.Post("/", h.createRun)
		r.Get("/export", h.exportRuns)
		r.Get("/{id}", h.getRun)
		r.Put("/{id}", h.updateRun)
		r.Delete("/{id}", h.deleteRun)
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// authorize resolves the owner for the request and checks scope. Write
// access implies read access.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (string, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok || claims.Subject == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return "", false
	}
	if !claims.HasScope(scope) && !(scope == auth.ScopeRunsRead && claims.HasScope(auth.ScopeRunsWrite)) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return "", false
	}
	return claims.Subject, true
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeRunsRead)
	if !ok {
		return
	}

	spec, err := domain.ParseSortSpec(r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	runs, err := h.service.ListRuns(r.Context(), owner, spec)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	items := make([]RunView, 0, len(runs))
	for _, run := range runs {
		items = append(items, toRunView(run))
	}
	writeJSON(w, http.StatusOK, ListRunsResponse{Items: items, Columns: columnViews()})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeRunsRead)
	if !ok {
		return
	}

	run, err := h.service.GetRun(r.Context(), owner, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunView(*run))
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeRunsWrite)
	if !ok {
		return
	}

	input, ok := decodeRunInput(w, r)
	if !ok {
		return
	}

	run, err := h.service.CreateRun(r.Context(), owner, input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusCreated, toRunView(*run))
}

func (h *Handler) updateRun(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeRunsWrite)
	if !ok {
		return
	}

	input, ok := decodeRunInput(w, r)
	if !ok {
		return
	}

	run, err := h.service.UpdateRun(r.Context(), owner, chi.URLParam(r, "id"), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunView(*run))
}

func (h *Handler) deleteRun(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeRunsWrite)
	if !ok {
		return
	}

	if err := h.service.DeleteRun(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exportRuns serves the owner's runs as a Markdown attachment. An empty log
// produces 204 and no file.
func (h *Handler) exportRuns(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeRunsRead)
	if !ok {
		return
	}

	spec, err := domain.ParseSortSpec(r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	runs, err := h.service.ListRuns(r.Context(), owner, spec)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if len(runs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	content := export.ToMarkdown(runs)
	if err := export.Download(w, content, export.Filename(h.now())); err != nil {
		h.logger.Warn("export download interrupted", zap.String("user_id", owner), zap.Error(err))
		return
	}
	observability.RecordExport(len(runs))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		writeValidationError(w, validation.Fields)
	case errors.Is(err, domain.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "not_found", "run not found")
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
	default:
		h.logger.Error("run service failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
