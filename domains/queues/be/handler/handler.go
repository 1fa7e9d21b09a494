package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/queuex-cloud/queuex/platform/go/logging"
	"github.com/queuex-cloud/queuex/platform/go/persistence"
	"github.com/queuex-cloud/queuex/platform/go/tenant"
	tenantmw "github.com/queuex-cloud/queuex/platform/go/tenant/middleware"
)

// Handler serves queue tickets out of the resolved tenant's database. It is
// the canonical consumer of the request-scoped DB accessor: resolver attaches
// the tenant, the guard enforces it, and every query runs on the borrowed
// handle.
type Handler struct {
	db     *tenantmw.DBAccessor
	logger *zap.Logger
}

// New constructs the handler.
func New(db *tenantmw.DBAccessor, logger *zap.Logger) *Handler {
	if db == nil {
		panic("queues handler requires db accessor")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, logger: logger}
}

// Routes mounts the queue endpoints; callers wrap them with RequireTenant.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.enqueue)
	return r
}

type queuePayload struct {
	ID         string    `json:"id"`
	Number     int       `json:"number"`
	Status     string    `json:"status"`
	Priority   int       `json:"priority"`
	CustomerID *string   `json:"customerId,omitempty"`
	ServiceID  string    `json:"serviceId"`
	BranchID   string    `json:"branchId"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	pool, err := h.db.DB(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	rows, err := pool.Query(r.Context(), `
        SELECT "id", "number", "status", "priority", "customerId", "serviceId",
               "branchId", "notes", "createdAt", "updatedAt"
        FROM "queues"
        ORDER BY "createdAt" DESC
        LIMIT 100
    `)
	if err != nil {
		h.writeAccessError(w, r, persistence.UnavailableError(err))
		return
	}
	defer rows.Close()

	queues := make([]queuePayload, 0)
	for rows.Next() {
		var q queuePayload
		if err := rows.Scan(&q.ID, &q.Number, &q.Status, &q.Priority, &q.CustomerID,
			&q.ServiceID, &q.BranchID, &q.Notes, &q.CreatedAt, &q.UpdatedAt); err != nil {
			h.writeAccessError(w, r, err)
			return
		}
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		h.writeAccessError(w, r, persistence.UnavailableError(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"queues": queues})
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	pool, err := h.db.DB(r)
	if err != nil {
		h.writeAccessError(w, r, err)
		return
	}

	var body struct {
		ServiceID  string  `json:"serviceId"`
		BranchID   string  `json:"branchId"`
		CustomerID *string `json:"customerId"`
		Priority   int     `json:"priority"`
		Notes      *string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ServiceID == "" || body.BranchID == "" {
		writeError(w, http.StatusBadRequest, "serviceId and branchId are required")
		return
	}
	if body.Priority <= 0 {
		body.Priority = 1
	}

	q := queuePayload{
		ID:         uuid.NewString(),
		Status:     "WAITING",
		Priority:   body.Priority,
		CustomerID: body.CustomerID,
		ServiceID:  body.ServiceID,
		BranchID:   body.BranchID,
		Notes:      body.Notes,
		CreatedAt:  time.Now().UTC(),
	}
	q.UpdatedAt = q.CreatedAt

	err = pool.QueryRow(r.Context(), `
        INSERT INTO "queues" ("id", "number", "status", "priority", "customerId",
                              "serviceId", "branchId", "notes", "createdAt", "updatedAt")
        VALUES ($1,
                (SELECT COALESCE(MAX("number"), 0) + 1 FROM "queues" WHERE "branchId" = $6),
                $2, $3, $4, $5, $6, $7, $8, $8)
        RETURNING "number"
    `, q.ID, q.Status, q.Priority, q.CustomerID, q.ServiceID, q.BranchID, q.Notes, q.CreatedAt).Scan(&q.Number)
	if err != nil {
		h.writeAccessError(w, r, persistence.UnavailableError(err))
		return
	}

	writeJSON(w, http.StatusCreated, q)
}

func (h *Handler) writeAccessError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.FromRequest(r, h.logger)

	switch {
	case errors.Is(err, tenant.ErrContextMissing):
		writeError(w, http.StatusBadRequest, tenant.ErrContextMissing.Error())
	case errors.Is(err, tenant.ErrDatabaseUnavailable):
		logger.Error("tenant database unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, tenant.ErrDatabaseUnavailable.Error())
	default:
		logger.Error("queue request failed", zap.Error(err))
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
