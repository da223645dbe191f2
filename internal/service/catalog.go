package service

import (
	"context"
	"time"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/pagination"
)

// TierStats aggregates per-department, per-tier knowledge base counts.
type TierStats struct {
	Department string            `json:"department"`
	SourceTier domain.SourceTier `json:"source_tier"`
	Documents  int64             `json:"documents"`
	Chunks     int64             `json:"chunks"`
}

// DocumentInfo summarizes one stored document for admin listings.
type DocumentInfo struct {
	DocumentName string             `json:"document_name"`
	DocumentType string             `json:"document_type"`
	Department   string             `json:"department"`
	AccessLevel  domain.AccessLevel `json:"access_level"`
	IsCrossDept  bool               `json:"is_cross_dept"`
	Chunks       int64              `json:"chunks"`
	UploadedAt   time.Time          `json:"uploaded_at"`
}

// CatalogRepository defines the read-side interface for knowledge base
// inventory queries
type CatalogRepository interface {
	Stats(ctx context.Context) ([]*TierStats, error)
	ListDocuments(ctx context.Context, department string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*DocumentInfo], error)
}

// CatalogService exposes knowledge base inventory to handlers and the
// admin CLI.
type CatalogService struct {
	repo CatalogRepository
}

func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) Stats(ctx context.Context) ([]*TierStats, error) {
	return s.repo.Stats(ctx)
}

func (s *CatalogService) ListDocuments(ctx context.Context, department, cursor string, limit int) (*pagination.PageResult[*DocumentInfo], error) {
	decoded, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDocuments(ctx, department, decoded, limit)
}
