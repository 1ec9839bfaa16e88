// Package handler exposes risk assessment operations over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"casework/internal/platform/middleware"
	"casework/internal/risk/models"
	"casework/pkg/domain"
	dErrors "casework/pkg/domain-errors"
	"casework/pkg/platform/httputil"
)

// Service defines the assessment operations the handler needs.
type Service interface {
	CreateAssessment(ctx context.Context, caseID domain.CaseID, partnerID domain.PartnerID) (*models.RiskAssessment, error)
	AddRiskFactor(ctx context.Context, id domain.AssessmentID, factorType, level string, score float64, description, source string) (*models.RiskAssessment, error)
	UpdateRiskFactor(ctx context.Context, id domain.AssessmentID, factorID uuid.UUID, level string, score float64, description string) (*models.RiskAssessment, error)
	SetManualRiskLevel(ctx context.Context, id domain.AssessmentID, level, justification string) (*models.RiskAssessment, error)
	ClearManualOverride(ctx context.Context, id domain.AssessmentID) (*models.RiskAssessment, error)
	CompleteAssessment(ctx context.Context, id domain.AssessmentID, notes string) (*models.RiskAssessment, error)
	RejectAssessment(ctx context.Context, id domain.AssessmentID, reason string) (*models.RiskAssessment, error)
	UpdateNotes(ctx context.Context, id domain.AssessmentID, notes string) (*models.RiskAssessment, error)
	GetAssessment(ctx context.Context, id domain.AssessmentID) (*models.RiskAssessment, error)
	GetAssessmentByCase(ctx context.Context, caseID domain.CaseID) (*models.RiskAssessment, error)
}

// Handler handles risk assessment endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator middleware.TokenValidator
}

// New creates a risk assessment Handler.
func New(service Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator,
	}
}

// Register adds the risk assessment routes to the chi router. Routes are
// registered in a group so other handlers can share the same router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Post("/risk-assessments", h.handleCreate)
		r.Get("/risk-assessments/{id}", h.handleGet)
		r.Get("/cases/{caseID}/risk-assessment", h.handleGetByCase)
		r.Post("/risk-assessments/{id}/factors", h.handleAddFactor)
		r.Put("/risk-assessments/{id}/factors/{factorID}", h.handleUpdateFactor)
		r.Put("/risk-assessments/{id}/override", h.handleSetOverride)
		r.Delete("/risk-assessments/{id}/override", h.handleClearOverride)
		r.Post("/risk-assessments/{id}/complete", h.handleComplete)
		r.Post("/risk-assessments/{id}/reject", h.handleReject)
		r.Put("/risk-assessments/{id}/notes", h.handleUpdateNotes)
	})
}

type createRequest struct {
	CaseID    string `json:"case_id"`
	PartnerID string `json:"partner_id"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	a, err := h.service.CreateAssessment(r.Context(), domain.CaseID(req.CaseID), domain.PartnerID(req.PartnerID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.GetAssessment(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleGetByCase(w http.ResponseWriter, r *http.Request) {
	caseID := domain.CaseID(chi.URLParam(r, "caseID"))
	a, err := h.service.GetAssessmentByCase(r.Context(), caseID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type addFactorRequest struct {
	Type        string  `json:"type"`
	Level       string  `json:"level"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
	Source      string  `json:"source,omitempty"`
}

func (h *Handler) handleAddFactor(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req addFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	a, err := h.service.AddRiskFactor(r.Context(), id, req.Type, req.Level, req.Score, req.Description, req.Source)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type updateFactorRequest struct {
	Level       string  `json:"level"`
	Score       float64 `json:"score"`
	Description string  `json:"description"`
}

func (h *Handler) handleUpdateFactor(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	factorID, err := uuid.Parse(chi.URLParam(r, "factorID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid factor id"))
		return
	}
	var req updateFactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	a, err := h.service.UpdateRiskFactor(r.Context(), id, factorID, req.Level, req.Score, req.Description)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type overrideRequest struct {
	Level         string `json:"level"`
	Justification string `json:"justification"`
}

func (h *Handler) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	a, err := h.service.SetManualRiskLevel(r.Context(), id, req.Level, req.Justification)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.service.ClearManualOverride(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type completeRequest struct {
	Notes string `json:"notes,omitempty"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req completeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	a, err := h.service.CompleteAssessment(r.Context(), id, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	a, err := h.service.RejectAssessment(r.Context(), id, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

type notesRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseAssessmentID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	a, err := h.service.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}
