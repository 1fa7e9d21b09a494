package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/domains/branches/be/service"
	"github.com/queuex-cloud/queuex/platform/go/logging"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// Handler exposes branch database lifecycle under a company. Mounted at
// /companies/{companySlug}/branches behind the super-admin auth middleware.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs the handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("branches service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the branch endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Delete("/{branchSlug}", h.remove)
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companySlug := chi.URLParam(r, "companySlug")

	var body struct {
		Slug    string `json:"slug"`
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "branch name is required")
		return
	}

	cfg, err := h.svc.Provision(r.Context(), companySlug, body.Slug, body.Name, body.Address)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"company":  companySlug,
		"branch":   body.Slug,
		"database": cfg.Database,
	})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	companySlug := chi.URLParam(r, "companySlug")
	branchSlug := chi.URLParam(r, "branchSlug")

	if err := h.svc.Remove(r.Context(), companySlug, branchSlug); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromRequest(r, h.logger)

	var provErr *tenant.ProvisioningError
	var downErr *tenant.TeardownError

	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tenant.ErrNotFound):
		writeError(w, http.StatusNotFound, "company not found")
	case errors.As(err, &provErr):
		logger.Error("branch provisioning failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database provisioning failed")
	case errors.As(err, &downErr):
		logger.Error("branch teardown failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database teardown failed")
	default:
		logger.Error("branch request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
