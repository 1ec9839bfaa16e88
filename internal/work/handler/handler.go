// Package handler exposes work queue operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"casework/internal/platform/middleware"
	"casework/internal/work/models"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/platform/httputil"
)

// Service defines the work queue operations the handler needs.
type Service interface {
	Assign(ctx context.Context, id domain.WorkItemID, userID, userName string) (*models.WorkItem, error)
	Unassign(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error)
	StartReview(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error)
	SubmitForApproval(ctx context.Context, id domain.WorkItemID, notes string) (*models.WorkItem, error)
	Approve(ctx context.Context, id domain.WorkItemID, notes string) (*models.WorkItem, error)
	Decline(ctx context.Context, id domain.WorkItemID, reason string) (*models.WorkItem, error)
	CompleteDirectly(ctx context.Context, id domain.WorkItemID, notes string) (*models.WorkItem, error)
	MarkForRefresh(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error)
	AddComment(ctx context.Context, id domain.WorkItemID, body string) (*models.WorkItem, error)
	GetWorkItem(ctx context.Context, id domain.WorkItemID) (*models.WorkItem, error)
	GetWorkItemByApplication(ctx context.Context, applicationID domain.CaseID) (*models.WorkItem, error)
	ListWorkItems(ctx context.Context, filter models.ListFilter) ([]*models.WorkItem, error)
}

// Handler handles work queue endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator middleware.TokenValidator
}

// New creates a work queue Handler.
func New(service Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator,
	}
}

// Register adds the work queue routes to the chi router. Routes are
// registered in a group so other handlers can share the same router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Get("/work-items", h.handleList)
		r.Get("/work-items/{id}", h.handleGet)
		r.Get("/cases/{caseID}/work-item", h.handleGetByCase)
		r.Post("/work-items/{id}/assign", h.handleAssign)
		r.Post("/work-items/{id}/unassign", h.handleUnassign)
		r.Post("/work-items/{id}/start-review", h.handleStartReview)
		r.Post("/work-items/{id}/submit-for-approval", h.handleSubmitForApproval)
		r.Post("/work-items/{id}/approve", h.handleApprove)
		r.Post("/work-items/{id}/decline", h.handleDecline)
		r.Post("/work-items/{id}/complete", h.handleComplete)
		r.Post("/work-items/{id}/refresh", h.handleMarkForRefresh)
		r.Post("/work-items/{id}/comments", h.handleAddComment)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.ListFilter{
		Status:      models.Status(query.Get("status")),
		AssignedTo:  query.Get("assigned_to"),
		OverdueOnly: query.Get("overdue") == "true",
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid limit"))
			return
		}
		filter.Limit = limit
	}
	items, err := h.service.ListWorkItems(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*models.WorkItem{}
	}
	httputil.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseWorkItemID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	item, err := h.service.GetWorkItem(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleGetByCase(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetWorkItemByApplication(r.Context(), domain.CaseID(chi.URLParam(r, "caseID")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

type assignRequest struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseWorkItemID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	item, err := h.service.Assign(r.Context(), id, req.UserID, req.UserName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleUnassign(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(ctx context.Context, id domain.WorkItemID, _ string) (*models.WorkItem, error) {
		return h.service.Unassign(ctx, id)
	}, "")
}

func (h *Handler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(ctx context.Context, id domain.WorkItemID, _ string) (*models.WorkItem, error) {
		return h.service.StartReview(ctx, id)
	}, "")
}

func (h *Handler) handleSubmitForApproval(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.SubmitForApproval, "notes")
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Approve, "notes")
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.Decline, "reason")
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.CompleteDirectly, "notes")
}

func (h *Handler) handleMarkForRefresh(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, func(ctx context.Context, id domain.WorkItemID, _ string) (*models.WorkItem, error) {
		return h.service.MarkForRefresh(ctx, id)
	}, "")
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.service.AddComment, "body")
}

// command is the shared path for transition endpoints whose body carries at
// most one string field.
func (h *Handler) command(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id domain.WorkItemID, arg string) (*models.WorkItem, error), field string) {
	id, err := domain.ParseWorkItemID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var arg string
	if field != "" && r.ContentLength > 0 {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
		arg = body[field]
	}
	item, err := fn(r.Context(), id, arg)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, item)
}
