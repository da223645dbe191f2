package service

import (
	"context"
	"sort"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultSimilarityThreshold gates the primary -> secondary tier fallback.
	DefaultSimilarityThreshold float32 = 0.7
	// DefaultHybridAlpha weights vector similarity against keyword matching.
	DefaultHybridAlpha float32 = 0.7

	defaultSearchK      = 5
	candidateMultiplier = 2
)

// ChunkQuery scopes a single store search to one tier, one department, and a
// set of readable access levels.
type ChunkQuery struct {
	Tier         domain.SourceTier
	Department   string
	AccessLevels []domain.AccessLevel
	Limit        int
}

// ChunkCandidate is a stored chunk returned by one side of the hybrid search,
// scored on that side only.
type ChunkCandidate struct {
	ID           string
	Content      string
	Department   string
	AccessLevel  domain.AccessLevel
	SourceTier   domain.SourceTier
	IsCrossDept  bool
	DocumentName string
	DocumentType string
	FeedbackID   string
	VectorScore  float32
	KeywordScore float32
}

// RetrievalHit is a fused, ranked retrieval result. Hits are ephemeral and
// never persisted.
type RetrievalHit struct {
	Chunk         *ChunkCandidate
	VectorScore   float32
	KeywordScore  float32
	CombinedScore float32
}

// SearchParams carries one retrieval request. Zero-valued tuning fields fall
// back to defaults.
type SearchParams struct {
	QueryVector         []float32
	QueryText           string
	K                   int
	SimilarityThreshold float32
	HybridAlpha         float32
	Department          string
	AccessLevels        []domain.AccessLevel
}

// ChunkSearchRepository is the store interface the retriever searches against.
type ChunkSearchRepository interface {
	VectorSearch(ctx context.Context, embedding []float32, q ChunkQuery) ([]*ChunkCandidate, error)
	KeywordSearch(ctx context.Context, keywords []string, q ChunkQuery) ([]*ChunkCandidate, error)
}

// HybridRetriever performs two-tier hybrid retrieval: vector and keyword
// search fused by weighted score, searching the secondary knowledge base only
// when the primary tier's best combined score falls below the threshold.
type HybridRetriever struct {
	repo ChunkSearchRepository
}

func NewHybridRetriever(repo ChunkSearchRepository) *HybridRetriever {
	return &HybridRetriever{repo: repo}
}

// Search runs the full retrieval pipeline and returns up to K hits ranked by
// combined score descending, chunk id ascending on ties. Storage errors abort
// the search.
func (r *HybridRetriever) Search(ctx context.Context, p SearchParams) ([]*RetrievalHit, error) {
	ctx, span := telemetry.StartSpan(ctx, "HybridRetriever.Search", telemetry.SpanAttributes{
		Department: p.Department,
		Operation:  "search",
	})
	defer span.End()

	if p.K <= 0 {
		p.K = defaultSearchK
	}
	if p.SimilarityThreshold <= 0 {
		p.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if p.HybridAlpha <= 0 {
		p.HybridAlpha = DefaultHybridAlpha
	}
	if len(p.AccessLevels) == 0 {
		p.AccessLevels = []domain.AccessLevel{domain.AccessPublic}
	}

	keywords := ExtractKeywords(p.QueryText)

	primary, err := r.searchTier(ctx, p, keywords, domain.TierPrimary)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	// Inclusive gate: a sufficiently confident primary answer means the
	// secondary tier is never consulted.
	if maxCombinedScore(primary) >= p.SimilarityThreshold {
		return rankHits(primary, p.K), nil
	}

	secondary, err := r.searchTier(ctx, p, keywords, domain.TierSecondary)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	return rankHits(append(primary, secondary...), p.K), nil
}

// searchTier fans out the vector and keyword sub-searches for one tier and
// fuses the candidate sets. The sub-searches are independent reads and run
// concurrently.
func (r *HybridRetriever) searchTier(ctx context.Context, p SearchParams, keywords []string, tier domain.SourceTier) ([]*RetrievalHit, error) {
	query := ChunkQuery{
		Tier:         tier,
		Department:   p.Department,
		AccessLevels: p.AccessLevels,
		Limit:        p.K * candidateMultiplier,
	}

	var vectorResults, keywordResults []*ChunkCandidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := r.repo.VectorSearch(gctx, p.QueryVector, query)
		if err != nil {
			return err
		}
		vectorResults = results
		return nil
	})
	if len(keywords) > 0 {
		g.Go(func() error {
			results, err := r.repo.KeywordSearch(gctx, keywords, query)
			if err != nil {
				return err
			}
			keywordResults = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectorOnly := len(keywords) == 0
	return fuseCandidates(vectorResults, keywordResults, p.HybridAlpha, vectorOnly), nil
}

// fusionCandidate accumulates per-side scores for one chunk id. Explicit
// fields instead of a loose map keep the fusion algebra checkable.
type fusionCandidate struct {
	chunk        *ChunkCandidate
	vectorScore  float32
	keywordScore float32
}

// fuseCandidates unions the two candidate sets by chunk id and computes
// combined = alpha*vector + (1-alpha)*keyword, with a missing side scoring 0.
// In vector-only mode the combined score is the raw cosine similarity.
func fuseCandidates(vectorResults, keywordResults []*ChunkCandidate, alpha float32, vectorOnly bool) []*RetrievalHit {
	candidates := make(map[string]*fusionCandidate, len(vectorResults)+len(keywordResults))

	for _, c := range vectorResults {
		if c == nil {
			continue
		}
		cand, ok := candidates[c.ID]
		if !ok {
			cand = &fusionCandidate{chunk: c}
			candidates[c.ID] = cand
		}
		if c.VectorScore > cand.vectorScore {
			cand.vectorScore = c.VectorScore
		}
	}
	for _, c := range keywordResults {
		if c == nil {
			continue
		}
		cand, ok := candidates[c.ID]
		if !ok {
			cand = &fusionCandidate{chunk: c}
			candidates[c.ID] = cand
		}
		if c.KeywordScore > cand.keywordScore {
			cand.keywordScore = c.KeywordScore
		}
	}

	hits := make([]*RetrievalHit, 0, len(candidates))
	for _, cand := range candidates {
		combined := alpha*cand.vectorScore + (1-alpha)*cand.keywordScore
		if vectorOnly {
			combined = cand.vectorScore
		}
		hits = append(hits, &RetrievalHit{
			Chunk:         cand.chunk,
			VectorScore:   cand.vectorScore,
			KeywordScore:  cand.keywordScore,
			CombinedScore: combined,
		})
	}
	return hits
}

// rankHits sorts by combined score descending with chunk id ascending as the
// deterministic tie-break, then truncates to k.
func rankHits(hits []*RetrievalHit, k int) []*RetrievalHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].CombinedScore != hits[j].CombinedScore {
			return hits[i].CombinedScore > hits[j].CombinedScore
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func maxCombinedScore(hits []*RetrievalHit) float32 {
	var max float32
	for _, h := range hits {
		if h.CombinedScore > max {
			max = h.CombinedScore
		}
	}
	return max
}
