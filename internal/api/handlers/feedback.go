package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/domain"
)

// FeedbackStore persists user corrections.
type FeedbackStore interface {
	Create(ctx context.Context, f *domain.Feedback) error
	GetByID(ctx context.Context, id string) (*domain.Feedback, error)
	UpdateStatus(ctx context.Context, id string, status domain.FeedbackStatus, reviewedBy, adminNotes string) error
	ListPending(ctx context.Context) ([]*domain.Feedback, error)
}

// Promoter moves approved corrections into and out of the admin-reviewed
// knowledge base tier.
type Promoter interface {
	Promote(ctx context.Context, feedbackID string) (int, error)
	Retract(ctx context.Context, feedbackID, reviewedBy string) (int64, error)
	RebuildSecondary(ctx context.Context) (int, error)
}

// FeedbackHandler serves correction submission and the admin review flow.
type FeedbackHandler struct {
	store    FeedbackStore
	promoter Promoter
}

func NewFeedbackHandler(store FeedbackStore, promoter Promoter) *FeedbackHandler {
	return &FeedbackHandler{store: store, promoter: promoter}
}

type SubmitFeedbackRequest struct {
	OriginalQuestion string `json:"original_question"`
	OriginalAnswer   string `json:"original_answer"`
	CorrectedAnswer  string `json:"corrected_answer"`
}

type FeedbackResponse struct {
	ID               string `json:"id"`
	Department       string `json:"department"`
	UserID           string `json:"user_id"`
	OriginalQuestion string `json:"original_question"`
	OriginalAnswer   string `json:"original_answer"`
	CorrectedAnswer  string `json:"corrected_answer"`
	AdminNotes       string `json:"admin_notes,omitempty"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	ReviewedAt       string `json:"reviewed_at,omitempty"`
	ReviewedBy       string `json:"reviewed_by,omitempty"`
}

func feedbackToResponse(f *domain.Feedback) *FeedbackResponse {
	resp := &FeedbackResponse{
		ID:               f.ID,
		Department:       f.Department,
		UserID:           f.UserID,
		OriginalQuestion: f.OriginalQuestion,
		OriginalAnswer:   f.OriginalAnswer,
		CorrectedAnswer:  f.CorrectedAnswer,
		AdminNotes:       f.AdminNotes,
		Status:           string(f.Status),
		CreatedAt:        f.CreatedAt.UTC().Format(time.RFC3339),
		ReviewedBy:       f.ReviewedBy,
	}
	if f.ReviewedAt != nil {
		resp.ReviewedAt = f.ReviewedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Submit records a user correction for admin review.
func (h *FeedbackHandler) Submit(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feedback := &domain.Feedback{
		ID:               uuid.NewString(),
		UserID:           principal.UserID,
		Department:       principal.Department,
		OriginalQuestion: req.OriginalQuestion,
		OriginalAnswer:   req.OriginalAnswer,
		CorrectedAnswer:  req.CorrectedAnswer,
		Status:           domain.FeedbackStatusPending,
		CreatedAt:        time.Now().UTC(),
	}

	if err := domain.ValidateFeedback(feedback); err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.store.Create(r.Context(), feedback); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, feedbackToResponse(feedback))
}

// ListPending returns corrections awaiting review, oldest first.
func (h *FeedbackHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.ListPending(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]*FeedbackResponse, 0, len(pending))
	for _, f := range pending {
		resp = append(resp, feedbackToResponse(f))
	}

	api.Success(w, http.StatusOK, resp)
}

type ReviewFeedbackRequest struct {
	AdminNotes string `json:"admin_notes,omitempty"`
}

// Approve marks a correction approved and promotes it into the
// admin-reviewed tier.
func (h *FeedbackHandler) Approve(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ReviewFeedbackRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.store.UpdateStatus(r.Context(), id, domain.FeedbackStatusApproved, principal.UserID, req.AdminNotes); err != nil {
		api.HandleError(w, err)
		return
	}

	chunks, err := h.promoter.Promote(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{
		"chunks_created": chunks,
		"vectors_stored": chunks,
	})
}

// Reject marks a correction rejected; nothing reaches the knowledge base.
func (h *FeedbackHandler) Reject(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ReviewFeedbackRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.Error(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := h.store.UpdateStatus(r.Context(), id, domain.FeedbackStatusRejected, principal.UserID, req.AdminNotes); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"status": "rejected"})
}

// Retract withdraws a previously promoted correction from the knowledge
// base.
func (h *FeedbackHandler) Retract(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	deleted, err := h.promoter.Retract(r.Context(), id, principal.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int64{"chunks_deleted": deleted})
}

// Rebuild wipes and re-promotes the whole admin-reviewed tier.
func (h *FeedbackHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.promoter.RebuildSecondary(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int{"chunks_created": chunks})
}
