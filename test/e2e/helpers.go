//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragdesk/ragdesk/internal/api/handlers"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/jobs"
	"github.com/ragdesk/ragdesk/internal/repository"
	"github.com/ragdesk/ragdesk/internal/server"
	"github.com/ragdesk/ragdesk/internal/service"
	"github.com/ragdesk/ragdesk/internal/storage"
	"github.com/ragdesk/ragdesk/internal/testutil"
)

const embedDim = 1536

// Identity is the gateway-asserted principal sent as request headers.
type Identity struct {
	UserID      string
	Department  string
	AccessLevel string
}

func Employee(dept string) Identity {
	return Identity{UserID: "user-" + dept, Department: dept, AccessLevel: "employee"}
}

func Manager(dept string) Identity {
	return Identity{UserID: "mgr-" + dept, Department: dept, AccessLevel: "manager"}
}

// E2ETestEnv holds all resources needed for E2E tests.
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	MinIOC       *testutil.MinIOContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Worker       *jobs.Worker
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E environment: pgvector Postgres, MinIO,
// deterministic fake model client, and the HTTP server on a free port.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	minioC := testutil.NewMinIOContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        minioC.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     minioC.AccessKey,
		SecretAccessKey: minioC.SecretKey,
		Bucket:          "ragdesk-e2e",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser, worker := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		MinIOC:       minioC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Worker:       worker,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources.
func (e *E2ETestEnv) Cleanup() {
	if e.Worker != nil {
		e.Worker.Stop()
	}
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.MinIOC != nil {
		e.MinIOC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// APIResponse represents a standard API response envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

func (e *E2ETestEnv) Get(path string, id Identity) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, id)
}

func (e *E2ETestEnv) Post(path string, body interface{}, id Identity) (*APIResponse, error) {
	return e.doRequest("POST", path, body, id)
}

func (e *E2ETestEnv) Delete(path string, id Identity) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, id)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, id Identity) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if id.UserID != "" {
		req.Header.Set("X-User-ID", id.UserID)
		req.Header.Set("X-Department", id.Department)
		req.Header.Set("X-Access-Level", id.AccessLevel)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// fakeModelClient produces deterministic bag-of-words embeddings so documents
// and queries sharing vocabulary score high without a live model provider.
type fakeModelClient struct{}

func (fakeModelClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, embedDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,:;!?()[]\"'")
		if len(word) <= 2 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%embedDim] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (fakeModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	return "Based on the department knowledge base, employees receive 25 vacation days per year.", nil
}

// startServer wires the full stack with the fake model client and starts the
// HTTP server.
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func(), *jobs.Worker) {
	model := fakeModelClient{}

	chunkRepo := repository.NewChunkRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	ingestJobRepo := repository.NewIngestJobRepository(pool)

	sessions := service.NewSessionCache(64, 5*time.Minute)
	retriever := service.NewHybridRetriever(chunkRepo)
	ingestSvc := service.NewIngestService(chunkRepo, model, sessions, embedDim)
	catalogSvc := service.NewCatalogService(chunkRepo)
	promoter := service.NewFeedbackPromoter(chunkRepo, feedbackRepo, model, sessions)

	// Bag-of-words vectors overlap far less than dense model embeddings, so
	// the gates run at a low floor here.
	buildAnswerer := func(p middleware.Principal) *service.Answerer {
		return service.NewAnswerer(model, model, retriever, service.AnswererConfig{
			Department:          p.Department,
			AccessLevels:        domain.LevelsUpTo(p.AccessLevel),
			MinSimilarity:       0.2,
			SimilarityThreshold: 0.2,
		})
	}

	ingestWorker := jobs.NewWorker("ingest", jobs.NewIngestWorker(ingestJobRepo, s3Client, ingestSvc), 250*time.Millisecond)
	go ingestWorker.Start(context.Background())

	router := server.NewRouter(server.RouterConfig{
		ChatHandler:     handlers.NewChatHandler(sessions, buildAnswerer),
		SearchHandler:   handlers.NewSearchHandler(model, retriever),
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, catalogSvc, s3Client, ingestJobRepo),
		FeedbackHandler: handlers.NewFeedbackHandler(feedbackRepo, promoter),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	closer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}

	return serverURL, closer, ingestWorker
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
