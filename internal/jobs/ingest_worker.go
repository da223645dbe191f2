package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/service"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3

	// claimBatchSize caps how many jobs one poll claims.
	claimBatchSize = 25
)

// IngestJobRepository defines the interface for ingest job persistence
type IngestJobRepository interface {
	// ClaimPending retrieves and claims pending ingest jobs, oldest first
	ClaimPending(ctx context.Context, limit int) ([]*domain.IngestJob, error)

	// UpdateStatus updates the status of an ingest job
	UpdateStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// DocumentSpool fetches and removes spooled document text by storage key.
type DocumentSpool interface {
	FetchDocument(ctx context.Context, key string) (string, error)
	DeleteObject(ctx context.Context, key string) error
}

// Ingestor chunks, embeds, and stores a document.
type Ingestor interface {
	ReplaceDocument(ctx context.Context, in service.IngestInput) (*service.IngestResult, error)
}

// IngestWorker drains the ingest job queue
type IngestWorker struct {
	repo   IngestJobRepository
	spool  DocumentSpool
	ingest Ingestor
}

// NewIngestWorker creates a new IngestWorker instance
func NewIngestWorker(repo IngestJobRepository, spool DocumentSpool, ingest Ingestor) *IngestWorker {
	return &IngestWorker{
		repo:   repo,
		spool:  spool,
		ingest: ingest,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestWorker) ProcessJobs(ctx context.Context) error {
	jobs, err := w.repo.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	log.Printf("Processing %d pending ingest jobs", len(jobs))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			log.Printf("Error processing job %s: %v", job.ID, err)
		}
	}

	return nil
}

func (w *IngestWorker) processJob(ctx context.Context, job *domain.IngestJob) error {
	log.Printf("Processing job %s for document %s/%s", job.ID, job.Department, job.DocumentName)

	content, err := w.spool.FetchDocument(ctx, job.StorageKey)
	if err != nil {
		return w.handleJobFailure(ctx, job, fmt.Errorf("fetch document: %w", err))
	}

	result, err := w.ingest.ReplaceDocument(ctx, service.IngestInput{
		Department:   job.Department,
		DocumentName: job.DocumentName,
		DocumentType: job.DocumentType,
		AccessLevel:  job.AccessLevel,
		IsCrossDept:  job.IsCrossDept,
		Content:      content,
	})
	if err != nil {
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	// The spooled payload is only needed until the document is stored. A
	// failed delete leaves a stray object but never fails the job.
	if err := w.spool.DeleteObject(ctx, job.StorageKey); err != nil {
		log.Printf("Job %s: failed to delete spooled document %s: %v", job.ID, job.StorageKey, err)
	}

	log.Printf("Job %s completed: %d chunks stored", job.ID, result.ChunksStored)
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *IngestWorker) handleJobFailure(ctx context.Context, job *domain.IngestJob, jobErr error) error {
	log.Printf("Job %s failed: %v", job.ID, jobErr)

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Printf("Job %s exceeded max retries (%d), marking as failed", job.ID, MaxRetries)
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	log.Printf("Job %s will be retried (attempt %d/%d)", job.ID, job.Retries+1, MaxRetries)
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateStatus(ctx, job.ID, domain.IngestJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
