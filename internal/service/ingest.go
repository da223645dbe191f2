package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/telemetry"
)

// IngestInput describes one document to ingest into the primary tier.
type IngestInput struct {
	Department   string
	DocumentName string
	DocumentType string
	AccessLevel  domain.AccessLevel
	IsCrossDept  bool
	Content      string
	UploadedBy   string
}

// IngestResult reports what an ingestion produced.
type IngestResult struct {
	Department   string `json:"department"`
	DocumentName string `json:"document_name"`
	ChunksTotal  int    `json:"chunks_total"`
	ChunksStored int    `json:"chunks_stored"`
	Replaced     int64  `json:"replaced"`
}

// IngestService chunks, embeds, and stores documents in the primary tier.
type IngestService struct {
	chunks   ChunkWriteRepository
	embed    EmbeddingClient
	sessions *SessionCache
	chunkCfg ChunkConfig
	embedDim int
}

func NewIngestService(chunks ChunkWriteRepository, embed EmbeddingClient, sessions *SessionCache, embedDim int) *IngestService {
	return &IngestService{
		chunks:   chunks,
		embed:    embed,
		sessions: sessions,
		chunkCfg: DefaultChunkConfig(),
		embedDim: embedDim,
	}
}

func (s *IngestService) validate(in IngestInput) error {
	if strings.TrimSpace(in.Department) == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "department is required")
	}
	if strings.TrimSpace(in.DocumentName) == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "document name is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "content is required")
	}
	if err := in.AccessLevel.Validate(); err != nil {
		return err
	}
	return nil
}

// IngestDocument chunks and embeds the document, then stores it in the
// primary tier. Affected department sessions are evicted so new content
// is visible immediately.
func (s *IngestService) IngestDocument(ctx context.Context, in IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.document", telemetry.SpanAttributes{
		Department:   in.Department,
		DocumentName: in.DocumentName,
		Operation:    "ingest",
	})
	defer span.End()

	if err := s.validate(in); err != nil {
		return nil, err
	}

	docType := in.DocumentType
	if docType == "" {
		docType = "text"
	}

	parts := chunkText(in.Content, s.chunkCfg)
	if len(parts) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "document produced no chunks")
	}

	now := time.Now().UTC()
	chunks := make([]*domain.DocumentChunk, 0, len(parts))
	for _, part := range parts {
		embedding, err := s.embed.GenerateEmbedding(ctx, part)
		if err != nil {
			return nil, domain.NewEmbeddingError(err)
		}

		c := &domain.DocumentChunk{
			ID:           uuid.NewString(),
			Department:   in.Department,
			Content:      part,
			Embedding:    embedding,
			AccessLevel:  in.AccessLevel,
			SourceTier:   domain.TierPrimary,
			IsCrossDept:  in.IsCrossDept,
			DocumentName: in.DocumentName,
			DocumentType: docType,
			ContentHash:  contentHash(part),
			UploadedBy:   in.UploadedBy,
			CreatedAt:    now,
		}
		if err := domain.ValidateChunk(c, s.embedDim); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}

	stored, err := s.chunks.InsertBatch(ctx, chunks)
	if err != nil {
		return nil, err
	}

	s.sessions.EvictDepartment(in.Department)
	log.Printf("Ingested document %s into %s (%d/%d chunks stored)",
		in.DocumentName, in.Department, stored, len(parts))

	return &IngestResult{
		Department:   in.Department,
		DocumentName: in.DocumentName,
		ChunksTotal:  len(parts),
		ChunksStored: stored,
	}, nil
}

// ReplaceDocument deletes any existing chunks for the document, then
// ingests the new content.
func (s *IngestService) ReplaceDocument(ctx context.Context, in IngestInput) (*IngestResult, error) {
	if err := s.validate(in); err != nil {
		return nil, err
	}

	deleted, err := s.chunks.DeleteByDocument(ctx, in.Department, in.DocumentName)
	if err != nil {
		return nil, err
	}

	res, err := s.IngestDocument(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("replace %s: %w", in.DocumentName, err)
	}
	res.Replaced = deleted
	return res, nil
}

// DeleteDocument removes every chunk of the named document from the
// department's primary tier.
func (s *IngestService) DeleteDocument(ctx context.Context, department, documentName string) (int64, error) {
	deleted, err := s.chunks.DeleteByDocument(ctx, department, documentName)
	if err != nil {
		return 0, err
	}
	if deleted == 0 {
		return 0, domain.ErrDocumentNotFound
	}

	s.sessions.EvictDepartment(department)
	log.Printf("Deleted document %s from %s (%d chunks)", documentName, department, deleted)
	return deleted, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
