package domain

import (
	"fmt"
	"time"
)

// IngestJobStatus represents the status of a document ingestion job.
type IngestJobStatus string

const (
	IngestJobStatusPending    IngestJobStatus = "pending"
	IngestJobStatusProcessing IngestJobStatus = "processing"
	IngestJobStatusCompleted  IngestJobStatus = "completed"
	IngestJobStatusFailed     IngestJobStatus = "failed"
)

// IngestJob represents an async document ingestion job. The raw document text
// is spooled to object storage under StorageKey and fetched at processing time.
type IngestJob struct {
	ID           string
	Department   string
	DocumentName string
	DocumentType string
	AccessLevel  AccessLevel
	IsCrossDept  bool
	StorageKey   string
	Status       IngestJobStatus
	Retries      int32
	Error        string
	CreatedAt    time.Time
	ProcessedAt  *time.Time
}

// ValidateIngestJob validates an IngestJob instance.
func ValidateIngestJob(j *IngestJob) error {
	if j == nil {
		return fmt.Errorf("ingest job cannot be nil")
	}
	if j.ID == "" {
		return fmt.Errorf("ingest job ID is required")
	}
	if j.Department == "" {
		return fmt.Errorf("ingest job department is required")
	}
	if j.DocumentName == "" {
		return fmt.Errorf("ingest job document name is required")
	}
	if j.StorageKey == "" {
		return fmt.Errorf("ingest job storage key is required")
	}
	if !isValidIngestJobStatus(j.Status) {
		return fmt.Errorf("ingest job status is invalid: %s", j.Status)
	}
	if j.Retries < 0 {
		return fmt.Errorf("ingest job retries cannot be negative")
	}
	return nil
}

func isValidIngestJobStatus(s IngestJobStatus) bool {
	switch s {
	case IngestJobStatusPending, IngestJobStatusProcessing,
		IngestJobStatusCompleted, IngestJobStatusFailed:
		return true
	}
	return false
}
