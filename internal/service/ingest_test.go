package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func validIngestInput() IngestInput {
	return IngestInput{
		Department:   "hr",
		DocumentName: "handbook.pdf",
		DocumentType: "pdf",
		AccessLevel:  domain.AccessEmployee,
		Content:      "Employees receive 25 vacation days per year.",
		UploadedBy:   "admin-1",
	}
}

func TestIngestService_IngestDocument(t *testing.T) {
	chunks := new(MockChunkWriteRepo)
	embed := new(MockEmbeddingClient)
	sessions := NewSessionCache(4, time.Minute)
	svc := NewIngestService(chunks, embed, sessions, 2)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)

	var captured []*domain.DocumentChunk
	chunks.On("InsertBatch", mock.Anything, mock.MatchedBy(func(cs []*domain.DocumentChunk) bool {
		captured = cs
		return true
	})).Return(1, nil)

	sessions.GetOrCreate(SessionKey{UserID: "u1", SessionID: "s1"}, deptAnswerer("hr"))
	sessions.GetOrCreate(SessionKey{UserID: "u2", SessionID: "s1"}, deptAnswerer("finance"))

	res, err := svc.IngestDocument(context.Background(), validIngestInput())

	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksTotal)
	assert.Equal(t, 1, res.ChunksStored)

	require.Len(t, captured, 1)
	c := captured[0]
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, domain.TierPrimary, c.SourceTier)
	assert.Equal(t, domain.AccessEmployee, c.AccessLevel)
	assert.Equal(t, "handbook.pdf", c.DocumentName)
	assert.Len(t, c.ContentHash, 64)
	assert.Empty(t, c.FeedbackID)

	// Only the hr session is dropped.
	assert.Equal(t, 1, sessions.Len())
}

func TestIngestService_IngestDocument_Validation(t *testing.T) {
	svc := NewIngestService(new(MockChunkWriteRepo), new(MockEmbeddingClient), NewSessionCache(4, time.Minute), 2)

	tests := []struct {
		name   string
		mutate func(*IngestInput)
	}{
		{"missing department", func(in *IngestInput) { in.Department = " " }},
		{"missing document name", func(in *IngestInput) { in.DocumentName = "" }},
		{"missing content", func(in *IngestInput) { in.Content = "\n" }},
		{"bad access level", func(in *IngestInput) { in.AccessLevel = "director" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validIngestInput()
			tt.mutate(&in)

			_, err := svc.IngestDocument(context.Background(), in)

			var domainErr *domain.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, domain.ErrCodeValidation, domainErr.Code)
		})
	}
}

func TestIngestService_IngestDocument_DimensionMismatch(t *testing.T) {
	chunks := new(MockChunkWriteRepo)
	embed := new(MockEmbeddingClient)
	svc := NewIngestService(chunks, embed, NewSessionCache(4, time.Minute), 1536)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)

	_, err := svc.IngestDocument(context.Background(), validIngestInput())

	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	chunks.AssertNotCalled(t, "InsertBatch", mock.Anything, mock.Anything)
}

func TestIngestService_ReplaceDocument(t *testing.T) {
	chunks := new(MockChunkWriteRepo)
	embed := new(MockEmbeddingClient)
	svc := NewIngestService(chunks, embed, NewSessionCache(4, time.Minute), 2)

	chunks.On("DeleteByDocument", mock.Anything, "hr", "handbook.pdf").Return(int64(3), nil)
	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)
	chunks.On("InsertBatch", mock.Anything, mock.Anything).Return(1, nil)

	res, err := svc.ReplaceDocument(context.Background(), validIngestInput())

	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Replaced)
	assert.Equal(t, 1, res.ChunksStored)
}

func TestIngestService_DeleteDocument_NotFound(t *testing.T) {
	chunks := new(MockChunkWriteRepo)
	svc := NewIngestService(chunks, new(MockEmbeddingClient), NewSessionCache(4, time.Minute), 2)

	chunks.On("DeleteByDocument", mock.Anything, "hr", "ghost.pdf").Return(int64(0), nil)

	_, err := svc.DeleteDocument(context.Background(), "hr", "ghost.pdf")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestIngestService_LongDocumentIsChunked(t *testing.T) {
	chunks := new(MockChunkWriteRepo)
	embed := new(MockEmbeddingClient)
	svc := NewIngestService(chunks, embed, NewSessionCache(4, time.Minute), 2)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1, 0.2}, nil)

	var captured []*domain.DocumentChunk
	chunks.On("InsertBatch", mock.Anything, mock.MatchedBy(func(cs []*domain.DocumentChunk) bool {
		captured = cs
		return true
	})).Return(0, nil)

	in := validIngestInput()
	in.Content = strings.Repeat("Travel expenses must be filed within 30 days. ", 60)

	res, err := svc.IngestDocument(context.Background(), in)

	require.NoError(t, err)
	assert.Greater(t, res.ChunksTotal, 1)
	assert.Equal(t, res.ChunksTotal, len(captured))
	embed.AssertNumberOfCalls(t, "GenerateEmbedding", res.ChunksTotal)
}
