package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockOpenAIAPI) CreateCompletion(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func testClient(api API) *Client {
	return &Client{
		api:             api,
		dimensions:      DefaultEmbeddingDimensions,
		embedTimeout:    defaultEmbedTimeout,
		completeTimeout: defaultCompleteTimeout,
		newBackOff:      func() backoff.BackOff { return &backoff.ZeroBackOff{} },
	}
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	ctx := context.Background()
	text := "This is a test document about the vacation policy."
	expectedEmbedding := make([]float32, 1536)
	for i := range expectedEmbedding {
		expectedEmbedding[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", mock.Anything, text).Return(expectedEmbedding, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, 1536)
	assert.Equal(t, expectedEmbedding, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	client := NewClient("")

	embedding, err := client.GenerateEmbedding(context.Background(), "")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_GenerateEmbedding_RetriesThenFails(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	apiErr := errors.New("API rate limit exceeded")
	mockAPI.On("CreateEmbeddings", mock.Anything, "Test text").Return(nil, apiErr)

	embedding, err := client.GenerateEmbedding(context.Background(), "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
	// Initial attempt plus the bounded retries.
	mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", maxRetries+1)
}

func TestClient_GenerateEmbedding_RecoversAfterTransientError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	embedding := make([]float32, 1536)
	mockAPI.On("CreateEmbeddings", mock.Anything, "Test text").
		Return(nil, errors.New("temporary")).Once()
	mockAPI.On("CreateEmbeddings", mock.Anything, "Test text").
		Return(embedding, nil).Once()

	got, err := client.GenerateEmbedding(context.Background(), "Test text")

	assert.NoError(t, err)
	assert.Len(t, got, 1536)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	wrongEmbedding := make([]float32, 512)
	mockAPI.On("CreateEmbeddings", mock.Anything, "Test text").Return(wrongEmbedding, nil)

	embedding, err := client.GenerateEmbedding(context.Background(), "Test text")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, ErrWrongDimensions)
	mockAPI.AssertExpectations(t)
}

func TestClient_Complete_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	mockAPI.On("CreateCompletion", mock.Anything, "Answer this question").
		Return("Here is the answer.", nil)

	out, err := client.Complete(context.Background(), "Answer this question")

	assert.NoError(t, err)
	assert.Equal(t, "Here is the answer.", out)
	mockAPI.AssertExpectations(t)
}

func TestClient_Complete_EmptyPrompt(t *testing.T) {
	client := NewClient("")

	out, err := client.Complete(context.Background(), "")

	assert.Error(t, err)
	assert.Empty(t, out)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_Complete_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := testClient(mockAPI)

	mockAPI.On("CreateCompletion", mock.Anything, "prompt").Return("", errors.New("boom"))

	out, err := client.Complete(context.Background(), "prompt")

	assert.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, err.Error(), "failed to create completion")
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key"})

	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultEmbeddingDimensions, client.dimensions)
	assert.Equal(t, defaultEmbedTimeout, client.embedTimeout)
	assert.Equal(t, defaultCompleteTimeout, client.completeTimeout)
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientFromEnv_WithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	client, err := NewClientFromEnv()

	assert.NotNil(t, client)
	assert.NoError(t, err)
}
