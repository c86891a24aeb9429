// Package handler exposes the domain lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"relaypad/internal/domains/service"
	"relaypad/internal/platform/middleware"
	"relaypad/internal/registry"
	dErrors "relaypad/pkg/domain-errors"
	"relaypad/pkg/hostname"
	"relaypad/pkg/requestcontext"
)

// Service defines the interface for domain lifecycle operations.
type Service interface {
	Add(ctx context.Context, domain, projectID string) (*service.AddResult, error)
	Verify(ctx context.Context, domain string) (*service.VerifyResult, error)
	Status(ctx context.Context, domain string) (*service.StatusResult, error)
	List(ctx context.Context, projectID string) ([]*registry.DomainRecord, error)
	Remove(ctx context.Context, domain string) error
}

// Handler handles domain lifecycle endpoints.
type Handler struct {
	domains     Service
	logger      *slog.Logger
	orgResolver middleware.OrgResolver
}

// New creates a domain Handler.
func New(domains Service, logger *slog.Logger, orgResolver middleware.OrgResolver) *Handler {
	return &Handler{
		domains:     domains,
		logger:      logger,
		orgResolver: orgResolver,
	}
}

// Register registers the domain routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	domainRouter := chi.NewRouter()
	domainRouter.Use(middleware.Recovery(h.logger))
	domainRouter.Use(middleware.RequestID)
	domainRouter.Use(middleware.Logger(h.logger))
	domainRouter.Use(middleware.Timeout(30 * time.Second))
	domainRouter.Use(middleware.ContentTypeJSON)
	domainRouter.Use(middleware.RequireOrg(h.orgResolver, h.logger))
	domainRouter.Post("/domains", h.handleAdd)
	domainRouter.Get("/domains", h.handleList)
	domainRouter.Post("/domains/{domain}/verify", h.handleVerify)
	domainRouter.Get("/domains/{domain}/status", h.handleStatus)
	domainRouter.Delete("/domains/{domain}", h.handleRemove)

	r.Mount("/", domainRouter)
}

type addRequest struct {
	Domain    string `json:"domain"`
	ProjectID string `json:"project_id"`
}

type listItem struct {
	Domain    string                `json:"domain"`
	Status    registry.DomainStatus `json:"status"`
	IsActive  bool                  `json:"is_active"`
	TenantID  string                `json:"tenant_id,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type removeResponse struct {
	Domain  string `json:"domain"`
	Deleted bool   `json:"deleted"`
	Message string `json:"message"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.ProjectID == "" {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "project_id is required"))
		return
	}

	result, err := h.domains.Add(ctx, req.Domain, req.ProjectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusCreated, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.domains.Verify(ctx, chi.URLParam(r, "domain"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, result)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.domains.Status(ctx, chi.URLParam(r, "domain"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		h.writeError(ctx, w, dErrors.New(dErrors.CodeBadRequest, "project_id is required"))
		return
	}

	records, err := h.domains.List(ctx, projectID)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}

	items := make([]listItem, 0, len(records))
	for _, rec := range records {
		items = append(items, listItem{
			Domain:    rec.Domain,
			Status:    rec.Status,
			IsActive:  rec.Status == registry.StatusActive,
			TenantID:  rec.TenantID,
			CreatedAt: rec.CreatedAt,
		})
	}
	h.writeJSON(ctx, w, http.StatusOK, items)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domain := hostname.Normalize(chi.URLParam(r, "domain"))

	if err := h.domains.Remove(ctx, domain); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, removeResponse{
		Domain:  domain,
		Deleted: true,
		Message: "domain removed",
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response",
			"error", err, "request_id", requestcontext.RequestID(ctx))
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := dErrors.CodeFor(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "request failed",
			"error", err, "request_id", requestcontext.RequestID(ctx))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": dErrors.MessageFor(err),
	})
}
