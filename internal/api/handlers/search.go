package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ragdesk/ragdesk/internal/api"
	"github.com/ragdesk/ragdesk/internal/api/middleware"
	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/service"
)

const maxSearchLimit = 20

// SearchHandler exposes raw scoped retrieval, without the conversational
// layer on top.
type SearchHandler struct {
	embed     service.EmbeddingClient
	retriever service.Retriever
}

func NewSearchHandler(embed service.EmbeddingClient, retriever service.Retriever) *SearchHandler {
	return &SearchHandler{embed: embed, retriever: retriever}
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchHitResponse struct {
	ChunkID       string  `json:"chunk_id"`
	Content       string  `json:"content"`
	DocumentName  string  `json:"document_name"`
	Department    string  `json:"department"`
	SourceTier    string  `json:"source_tier"`
	VectorScore   float32 `json:"vector_score"`
	KeywordScore  float32 `json:"keyword_score"`
	CombinedScore float32 `json:"combined_score"`
}

type SearchResponse struct {
	Hits []*SearchHitResponse `json:"hits"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.Limit <= 0 || req.Limit > maxSearchLimit {
		req.Limit = maxSearchLimit
	}

	hits, err := h.search(r.Context(), principal, req)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{Hits: make([]*SearchHitResponse, 0, len(hits))}
	for _, hit := range hits {
		resp.Hits = append(resp.Hits, &SearchHitResponse{
			ChunkID:       hit.Chunk.ID,
			Content:       hit.Chunk.Content,
			DocumentName:  hit.Chunk.DocumentName,
			Department:    hit.Chunk.Department,
			SourceTier:    string(hit.Chunk.SourceTier),
			VectorScore:   hit.VectorScore,
			KeywordScore:  hit.KeywordScore,
			CombinedScore: hit.CombinedScore,
		})
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *SearchHandler) search(ctx context.Context, principal middleware.Principal, req SearchRequest) ([]*service.RetrievalHit, error) {
	vector, err := h.embed.GenerateEmbedding(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	return h.retriever.Search(ctx, service.SearchParams{
		QueryVector:  vector,
		QueryText:    req.Query,
		K:            req.Limit,
		Department:   principal.Department,
		AccessLevels: domain.LevelsUpTo(principal.AccessLevel),
	})
}
