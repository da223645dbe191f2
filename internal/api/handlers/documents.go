package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/pagination"
	"github.com/ragdesk/ragdesk/internal/service"
)

const defaultListLimit = 20

// IngestorService stores and removes knowledge base documents synchronously.
type IngestorService interface {
	ReplaceDocument(ctx context.Context, in service.IngestInput) (*service.IngestResult, error)
	DeleteDocument(ctx context.Context, department, documentName string) (int64, error)
}

// CatalogService reports on stored documents.
type CatalogService interface {
	Stats(ctx context.Context) ([]*service.TierStats, error)
	ListDocuments(ctx context.Context, department, cursor string, limit int) (*pagination.PageResult[*service.DocumentInfo], error)
}

// DocumentSpool holds raw document text for async ingestion.
type DocumentSpool interface {
	PutDocument(ctx context.Context, key, content string) error
}

// IngestJobStore creates and reads async ingest jobs.
type IngestJobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
}

// DocumentHandler serves document upload, listing, and deletion.
type DocumentHandler struct {
	ingest  IngestorService
	catalog CatalogService
	spool   DocumentSpool
	jobs    IngestJobStore
}

func NewDocumentHandler(ingest IngestorService, catalog CatalogService, spool DocumentSpool, jobs IngestJobStore) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, catalog: catalog, spool: spool, jobs: jobs}
}

type UploadDocumentRequest struct {
	DocumentName string `json:"document_name"`
	DocumentType string `json:"document_type,omitempty"`
	AccessLevel  string `json:"access_level,omitempty"`
	IsCrossDept  bool   `json:"is_cross_dept,omitempty"`
	Content      string `json:"content"`
}

func (h *DocumentHandler) parseUpload(r *http.Request) (middleware.Principal, UploadDocumentRequest, string, bool) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		return principal, UploadDocumentRequest{}, "unauthorized", false
	}

	var req UploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return principal, req, "invalid request body", false
	}
	if req.DocumentName == "" {
		return principal, req, "document_name is required", false
	}
	if req.Content == "" {
		return principal, req, "content is required", false
	}
	if req.AccessLevel == "" {
		req.AccessLevel = string(domain.AccessEmployee)
	}
	if _, err := domain.ParseAccessLevel(req.AccessLevel); err != nil {
		return principal, req, "invalid access level", false
	}
	if req.DocumentType == "" {
		req.DocumentType = "text"
	}

	return principal, req, "", true
}

// Upload ingests a document synchronously, replacing any previous version.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, req, msg, ok := h.parseUpload(r)
	if !ok {
		status := http.StatusBadRequest
		if msg == "unauthorized" {
			status = http.StatusUnauthorized
		}
		api.Error(w, status, msg)
		return
	}

	result, err := h.ingest.ReplaceDocument(r.Context(), service.IngestInput{
		Department:   principal.Department,
		DocumentName: req.DocumentName,
		DocumentType: req.DocumentType,
		AccessLevel:  domain.AccessLevel(req.AccessLevel),
		IsCrossDept:  req.IsCrossDept,
		Content:      req.Content,
		UploadedBy:   principal.UserID,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, result)
}

type IngestJobResponse struct {
	ID           string `json:"id"`
	DocumentName string `json:"document_name"`
	Status       string `json:"status"`
	Retries      int32  `json:"retries"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
	ProcessedAt  string `json:"processed_at,omitempty"`
}

func jobToResponse(job *domain.IngestJob) *IngestJobResponse {
	resp := &IngestJobResponse{
		ID:           job.ID,
		DocumentName: job.DocumentName,
		Status:       string(job.Status),
		Retries:      job.Retries,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt.UTC().Format(time.RFC3339),
	}
	if job.ProcessedAt != nil {
		resp.ProcessedAt = job.ProcessedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// Enqueue spools the document text to object storage and queues an async
// ingest job for the background worker.
func (h *DocumentHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	principal, req, msg, ok := h.parseUpload(r)
	if !ok {
		status := http.StatusBadRequest
		if msg == "unauthorized" {
			status = http.StatusUnauthorized
		}
		api.Error(w, status, msg)
		return
	}

	jobID := uuid.NewString()
	job := &domain.IngestJob{
		ID:           jobID,
		Department:   principal.Department,
		DocumentName: req.DocumentName,
		DocumentType: req.DocumentType,
		AccessLevel:  domain.AccessLevel(req.AccessLevel),
		IsCrossDept:  req.IsCrossDept,
		StorageKey:   "ingest/" + principal.Department + "/" + jobID,
		Status:       domain.IngestJobStatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	if err := h.spool.PutDocument(r.Context(), job.StorageKey, req.Content); err != nil {
		api.HandleError(w, domain.NewStorageError("failed to spool document", err))
		return
	}

	if err := h.jobs.Create(r.Context(), job); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, jobToResponse(job))
}

// GetJob reports async ingest job status.
func (h *DocumentHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, jobToResponse(job))
}

// List returns the caller department's documents, newest first, with keyset
// pagination.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.catalog.ListDocuments(r.Context(), principal.Department, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, page)
}

// Delete removes a document and all of its chunks.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	deleted, err := h.ingest.DeleteDocument(r.Context(), principal.Department, name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]int64{"chunks_deleted": deleted})
}

// Stats reports per-department, per-tier document and chunk counts.
func (h *DocumentHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.catalog.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}
