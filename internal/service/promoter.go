package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/telemetry"
)

// InheritContext carries the access scoping a promoted chunk inherits from
// its department's existing primary documents.
type InheritContext struct {
	AccessLevel domain.AccessLevel
	IsCrossDept bool
}

// ChunkWriteRepository defines the write-side interface for chunk storage
type ChunkWriteRepository interface {
	InsertBatch(ctx context.Context, chunks []*domain.DocumentChunk) (int, error)
	DeleteByDocument(ctx context.Context, department, documentName string) (int64, error)
	DeleteByFeedback(ctx context.Context, feedbackID string) (int64, error)
	DeleteSecondary(ctx context.Context) (int64, error)
	FindInheritContext(ctx context.Context, department string) (*InheritContext, error)
}

// FeedbackRepository defines the interface for feedback persistence
type FeedbackRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Feedback, error)
	UpdateStatus(ctx context.Context, id string, status domain.FeedbackStatus, reviewedBy, adminNotes string) error
	ListApproved(ctx context.Context) ([]*domain.Feedback, error)
}

// FeedbackPromoter turns approved feedback into admin-reviewed knowledge
// base chunks and retracts them when a correction is withdrawn.
type FeedbackPromoter struct {
	chunks   ChunkWriteRepository
	feedback FeedbackRepository
	embed    EmbeddingClient
	sessions *SessionCache
	chunkCfg ChunkConfig
}

func NewFeedbackPromoter(chunks ChunkWriteRepository, feedback FeedbackRepository, embed EmbeddingClient, sessions *SessionCache) *FeedbackPromoter {
	return &FeedbackPromoter{
		chunks:   chunks,
		feedback: feedback,
		embed:    embed,
		sessions: sessions,
		chunkCfg: DefaultChunkConfig(),
	}
}

// Promote inserts the approved feedback's corrected answer into the
// admin-reviewed tier. Access scoping is inherited from the department's
// existing documents, falling back to employee level, department only.
func (p *FeedbackPromoter) Promote(ctx context.Context, feedbackID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "promoter.promote", telemetry.SpanAttributes{
		Operation: "promote_feedback",
	})
	defer span.End()

	fb, err := p.feedback.GetByID(ctx, feedbackID)
	if err != nil {
		return 0, err
	}
	if !fb.IsApproved() {
		return 0, domain.ErrFeedbackNotApproved
	}

	accessLevel := domain.AccessEmployee
	isCrossDept := false
	inherit, err := p.chunks.FindInheritContext(ctx, fb.Department)
	if err != nil {
		return 0, err
	}
	if inherit != nil {
		accessLevel = inherit.AccessLevel
		isCrossDept = inherit.IsCrossDept
	}

	doc := buildCorrectionDocument(fb)
	parts := chunkText(doc, p.chunkCfg)

	now := time.Now().UTC()
	chunks := make([]*domain.DocumentChunk, 0, len(parts))
	for _, part := range parts {
		embedding, err := p.embed.GenerateEmbedding(ctx, part)
		if err != nil {
			return 0, domain.NewEmbeddingError(err)
		}
		chunks = append(chunks, &domain.DocumentChunk{
			ID:           uuid.NewString(),
			Department:   fb.Department,
			Content:      part,
			Embedding:    embedding,
			AccessLevel:  accessLevel,
			SourceTier:   domain.TierSecondary,
			IsCrossDept:  isCrossDept,
			DocumentName: "feedback_" + fb.ID,
			DocumentType: "qa_pair",
			FeedbackID:   fb.ID,
			UploadedBy:   fb.ReviewedBy,
			CreatedAt:    now,
		})
	}

	inserted, err := p.chunks.InsertBatch(ctx, chunks)
	if err != nil {
		return 0, err
	}

	p.sessions.EvictDepartment(fb.Department)
	log.Printf("Promoted feedback %s to knowledge base (%d chunks, department %s)", fb.ID, inserted, fb.Department)
	return inserted, nil
}

// Retract removes every chunk promoted from the given feedback and marks
// the feedback retracted. Retraction is keyed strictly by feedback id so
// unrelated knowledge is never touched.
func (p *FeedbackPromoter) Retract(ctx context.Context, feedbackID, reviewedBy string) (int64, error) {
	fb, err := p.feedback.GetByID(ctx, feedbackID)
	if err != nil {
		return 0, err
	}

	deleted, err := p.chunks.DeleteByFeedback(ctx, fb.ID)
	if err != nil {
		return 0, err
	}
	if err := p.feedback.UpdateStatus(ctx, fb.ID, domain.FeedbackStatusRetracted, reviewedBy, fb.AdminNotes); err != nil {
		return deleted, err
	}

	p.sessions.EvictDepartment(fb.Department)
	log.Printf("Retracted feedback %s from knowledge base (%d chunks deleted)", fb.ID, deleted)
	return deleted, nil
}

// RebuildSecondary wipes the admin-reviewed tier and re-promotes every
// approved feedback from scratch. Used after bulk review or model changes.
func (p *FeedbackPromoter) RebuildSecondary(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "promoter.rebuild", telemetry.SpanAttributes{
		Operation: "rebuild_secondary",
	})
	defer span.End()

	approved, err := p.feedback.ListApproved(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := p.chunks.DeleteSecondary(ctx); err != nil {
		return 0, err
	}

	total := 0
	for _, fb := range approved {
		n, err := p.Promote(ctx, fb.ID)
		if err != nil {
			return total, fmt.Errorf("re-promote feedback %s: %w", fb.ID, err)
		}
		total += n
	}
	log.Printf("Rebuilt admin-reviewed tier: %d feedback entries, %d chunks", len(approved), total)
	return total, nil
}

// buildCorrectionDocument renders an approved correction as a retrievable
// Q&A document. The incorrect answer is kept so the corrected form ranks
// for the same phrasings.
func buildCorrectionDocument(fb *domain.Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", fb.OriginalQuestion)
	fmt.Fprintf(&b, "Correct Answer: %s\n\n", fb.CorrectedAnswer)
	fmt.Fprintf(&b, "Previous Answer (incorrect): %s\n", fb.OriginalAnswer)
	if fb.AdminNotes != "" {
		fmt.Fprintf(&b, "\nReviewer Notes: %s\n", fb.AdminNotes)
	}
	return b.String()
}
