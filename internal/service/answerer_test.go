package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEmbeddingClient mocks the embedding client
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockCompletionClient mocks the completion client
type MockCompletionClient struct {
	mock.Mock
}

func (m *MockCompletionClient) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

// MockRetriever mocks the retriever
type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) Search(ctx context.Context, p SearchParams) ([]*RetrievalHit, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*RetrievalHit), args.Error(1)
}

func hrAnswerer(embed EmbeddingClient, llm CompletionClient, retriever Retriever) *Answerer {
	return NewAnswerer(embed, llm, retriever, AnswererConfig{
		Department:   "hr",
		AccessLevels: []domain.AccessLevel{domain.AccessPublic, domain.AccessEmployee},
	})
}

func primaryHit(id, doc, content string, score float32) *RetrievalHit {
	return &RetrievalHit{
		Chunk: &ChunkCandidate{
			ID: id, Content: content, Department: "hr",
			SourceTier: domain.TierPrimary, DocumentName: doc,
		},
		CombinedScore: score,
	}
}

func TestAnswerer_Ask_Answered(t *testing.T) {
	embed := new(MockEmbeddingClient)
	llm := new(MockCompletionClient)
	retriever := new(MockRetriever)
	a := hrAnswerer(embed, llm, retriever)

	embedding := []float32{0.1, 0.2}
	embed.On("GenerateEmbedding", mock.Anything, "How many vacation days do I get?").Return(embedding, nil)
	retriever.On("Search", mock.Anything, mock.MatchedBy(func(p SearchParams) bool {
		return p.Department == "hr" && len(p.AccessLevels) == 2
	})).Return([]*RetrievalHit{
		primaryHit("c1", "handbook.pdf", "Employees receive 25 vacation days.", 0.85),
	}, nil)
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Employees receive 25 vacation days.")
	})).Return("You get 25 vacation days per year.", nil)

	answer, err := a.Ask(context.Background(), "How many vacation days do I get?")

	require.NoError(t, err)
	assert.Equal(t, AnswerKindAnswered, answer.Kind)
	assert.Equal(t, "You get 25 vacation days per year.", answer.Text)
	assert.Equal(t, []string{"handbook.pdf (HR)"}, answer.Sources)
	require.Len(t, a.History(), 1)
	assert.Equal(t, "How many vacation days do I get?", a.History()[0].Question)
}

func TestAnswerer_Ask_LowConfidenceNeverCallsCompletion(t *testing.T) {
	embed := new(MockEmbeddingClient)
	llm := new(MockCompletionClient)
	retriever := new(MockRetriever)
	a := hrAnswerer(embed, llm, retriever)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	retriever.On("Search", mock.Anything, mock.Anything).Return([]*RetrievalHit{
		primaryHit("c1", "handbook.pdf", "unrelated", 0.55),
		primaryHit("c2", "handbook.pdf", "unrelated", 0.4),
	}, nil)

	answer, err := a.Ask(context.Background(), "What is the quantum flux capacitance?")

	require.NoError(t, err)
	assert.Equal(t, AnswerKindLowConfidence, answer.Kind)
	assert.Equal(t, LowConfidenceText, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, a.History())
	llm.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
	// One retrieval for the question plus the retry.
	retriever.AssertNumberOfCalls(t, "Search", 2)
}

func TestAnswerer_Ask_HistoryWindowIsFIFO(t *testing.T) {
	embed := new(MockEmbeddingClient)
	llm := new(MockCompletionClient)
	retriever := new(MockRetriever)
	a := hrAnswerer(embed, llm, retriever)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	retriever.On("Search", mock.Anything, mock.Anything).Return([]*RetrievalHit{
		primaryHit("c1", "handbook.pdf", "some content", 0.9),
	}, nil)
	llm.On("Complete", mock.Anything, mock.Anything).Return("an answer", nil)

	for i := 0; i < 6; i++ {
		_, err := a.Ask(context.Background(), fmt.Sprintf("question %d about onboarding", i))
		require.NoError(t, err)
	}

	history := a.History()
	require.Len(t, history, 5)
	assert.Equal(t, "question 1 about onboarding", history[0].Question)
	assert.Equal(t, "question 5 about onboarding", history[4].Question)

	a.ClearHistory()
	assert.Empty(t, a.History())
}

func TestAnswerer_Ask_RewriteFailureFallsBack(t *testing.T) {
	embed := new(MockEmbeddingClient)
	llm := new(MockCompletionClient)
	retriever := new(MockRetriever)
	a := hrAnswerer(embed, llm, retriever)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return([]float32{0.1}, nil)
	retriever.On("Search", mock.Anything, mock.Anything).Return([]*RetrievalHit{
		primaryHit("c1", "handbook.pdf", "remote work content", 0.9),
	}, nil)
	llm.On("Complete", mock.Anything, mock.Anything).Return("first answer", nil).Once()

	_, err := a.Ask(context.Background(), "What is the remote work policy?")
	require.NoError(t, err)

	// Rewrite attempt fails; the original question is used as-is.
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "conversation history")
	})).Return("", errors.New("rate limited")).Once()
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Question: Does it apply to managers?")
	})).Return("second answer", nil).Once()

	answer, err := a.Ask(context.Background(), "Does it apply to managers?")
	require.NoError(t, err)
	assert.Equal(t, "second answer", answer.Text)
	embed.AssertCalled(t, "GenerateEmbedding", mock.Anything, "Does it apply to managers?")
}

func TestAnswerer_Ask_RetriesWithOriginalQuestion(t *testing.T) {
	embed := new(MockEmbeddingClient)
	llm := new(MockCompletionClient)
	retriever := new(MockRetriever)
	a := hrAnswerer(embed, llm, retriever)

	rewriteEmbedding := []float32{0.9}
	originalEmbedding := []float32{0.1}

	embed.On("GenerateEmbedding", mock.Anything, "What is the notice period for him?").Return(rewriteEmbedding, nil)
	embed.On("GenerateEmbedding", mock.Anything, "Does he need to give notice?").Return(originalEmbedding, nil)
	retriever.On("Search", mock.Anything, mock.Anything).Return([]*RetrievalHit{
		primaryHit("c1", "handbook.pdf", "offboarding", 0.3),
	}, nil).Once()
	retriever.On("Search", mock.Anything, mock.Anything).Return([]*RetrievalHit{
		primaryHit("c2", "handbook.pdf", "Notice period is 30 days.", 0.8),
	}, nil).Once()

	// Seed history directly so the rewrite path activates.
	a.history = append(a.history, Turn{Question: "Who handles offboarding?", Answer: "The HR operations team."})

	llm.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "conversation history")
	})).Return("What is the notice period for him?", nil).Once()
	llm.On("Complete", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Notice period is 30 days.")
	})).Return("30 days of notice are required.", nil).Once()

	answer, err := a.Ask(context.Background(), "Does he need to give notice?")

	require.NoError(t, err)
	assert.Equal(t, AnswerKindAnswered, answer.Kind)
	assert.Equal(t, "30 days of notice are required.", answer.Text)
	embed.AssertCalled(t, "GenerateEmbedding", mock.Anything, "Does he need to give notice?")
	retriever.AssertNumberOfCalls(t, "Search", 2)
}

func TestAnswerer_Ask_EmbeddingErrorSurfaces(t *testing.T) {
	embed := new(MockEmbeddingClient)
	llm := new(MockCompletionClient)
	retriever := new(MockRetriever)
	a := hrAnswerer(embed, llm, retriever)

	embed.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))

	answer, err := a.Ask(context.Background(), "What is the travel policy?")

	assert.Nil(t, answer)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeEmbedding, domainErr.Code)
}

func TestSourceLabels(t *testing.T) {
	hits := []*RetrievalHit{
		primaryHit("c1", "handbook.pdf", "x", 0.9),
		primaryHit("c2", "handbook.pdf", "y", 0.85),
		{Chunk: &ChunkCandidate{ID: "s1", Department: "hr", SourceTier: domain.TierSecondary, FeedbackID: "fb-1"}, CombinedScore: 0.8},
		primaryHit("c3", "benefits.md", "z", 0.75),
	}

	labels := sourceLabels(hits)

	// Duplicate document collapsed, capped at three.
	assert.Equal(t, []string{
		"handbook.pdf (HR)",
		"Admin-reviewed knowledge (HR)",
		"benefits.md (HR)",
	}, labels)
}

func TestContainsReference(t *testing.T) {
	assert.True(t, containsReference("What is his start date?"))
	assert.True(t, containsReference("Tell me more about the candidate"))
	assert.False(t, containsReference("What is this policy?"))
	assert.False(t, containsReference("History of the company"))
}
