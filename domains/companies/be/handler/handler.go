package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/domains/companies/be/service"
	"github.com/queuex-cloud/queuex/platform/go/logging"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

// Handler exposes the company-management surface. Mounted behind the
// super-admin auth middleware.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs the handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("companies service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the company endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{slug}", h.getBySlug)
	r.Patch("/{id}", h.update)
	r.Delete("/{slug}", h.delete)
	return r
}

type companyPayload struct {
	ID        uuid.UUID `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Address   *string   `json:"address,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	Website   *string   `json:"website,omitempty"`
	IsActive  bool      `json:"isActive"`
	DBName    string    `json:"dbName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toPayload(c service.Company) companyPayload {
	return companyPayload{
		ID:        c.ID,
		Slug:      c.Slug,
		Name:      c.Name,
		Address:   c.Address,
		Phone:     c.Phone,
		Email:     c.Email,
		Website:   c.Website,
		IsActive:  c.IsActive,
		DBName:    c.DBConfig.Database,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug    string  `json:"slug"`
		Name    string  `json:"name"`
		Address *string `json:"address"`
		Phone   *string `json:"phone"`
		Email   *string `json:"email"`
		Website *string `json:"website"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	created, err := h.svc.Create(r.Context(), service.CreateInput{
		Slug:    body.Slug,
		Name:    body.Name,
		Address: body.Address,
		Phone:   body.Phone,
		Email:   body.Email,
		Website: body.Website,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPayload(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	activeOnly := r.URL.Query().Get("active") == "true"

	result, err := h.svc.List(r.Context(), service.ListOptions{
		Page:       page,
		PageSize:   size,
		ActiveOnly: activeOnly,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	payload := struct {
		Companies  []companyPayload `json:"companies"`
		Page       int              `json:"page"`
		PageSize   int              `json:"pageSize"`
		TotalItems int              `json:"totalItems"`
		TotalPages int              `json:"totalPages"`
	}{
		Companies:  make([]companyPayload, 0, len(result.Companies)),
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	}
	for _, c := range result.Companies {
		payload.Companies = append(payload.Companies, toPayload(c))
	}

	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) getBySlug(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(c))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid company id")
		return
	}

	var body service.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	updated, err := h.svc.Update(r.Context(), id, body)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPayload(updated))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "slug")); err != nil {
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
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "company not found")
	case errors.Is(err, service.ErrConflictSlug):
		writeError(w, http.StatusConflict, "company slug already exists")
	case errors.Is(err, service.ErrHasDependents):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &provErr):
		logger.Error("company provisioning failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database provisioning failed")
	case errors.As(err, &downErr):
		logger.Error("company teardown failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database teardown failed")
	default:
		logger.Error("company request failed", zap.Error(err))
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
