package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/ragdesk/ragdesk/internal/domain"
)

// DefaultMinSimilarity is the confidence gate below which no answer is
// generated.
const DefaultMinSimilarity float32 = 0.6

// LowConfidenceText is the fixed response returned when no retrieved chunk
// clears the confidence gate. It is deterministic: the completion model is
// never consulted below threshold.
const LowConfidenceText = "I don't have confident information to answer that question accurately. " +
	"Try rephrasing with different keywords, or ask an administrator to add the relevant documentation."

// AnswerKind distinguishes a generated answer from the low-confidence
// terminal outcome, so callers never have to sniff answer text.
type AnswerKind string

const (
	AnswerKindAnswered      AnswerKind = "answered"
	AnswerKindLowConfidence AnswerKind = "low_confidence"
)

// Answer is the outcome of one Ask call.
type Answer struct {
	Kind    AnswerKind
	Text    string
	Sources []string
}

// Turn is one question/answer exchange in a session's history window.
type Turn struct {
	Question string
	Answer   string
}

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CompletionClient defines the interface for single-shot text completion
type CompletionClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Retriever defines the retrieval interface the answerer depends on
type Retriever interface {
	Search(ctx context.Context, p SearchParams) ([]*RetrievalHit, error)
}

// AnswererConfig tunes a session's answerer. Zero values fall back to
// defaults.
type AnswererConfig struct {
	Department          string
	AccessLevels        []domain.AccessLevel
	MinSimilarity       float32
	SimilarityThreshold float32
	HybridAlpha         float32
	ContextDocs         int
	HistoryLimit        int
}

func (c *AnswererConfig) applyDefaults() {
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = DefaultMinSimilarity
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if c.HybridAlpha <= 0 {
		c.HybridAlpha = DefaultHybridAlpha
	}
	if c.ContextDocs <= 0 {
		c.ContextDocs = 3
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 5
	}
	if len(c.AccessLevels) == 0 {
		c.AccessLevels = []domain.AccessLevel{domain.AccessPublic}
	}
}

// Answerer holds the conversational state for a single session: a bounded
// FIFO history window plus the department and access scope of the principal.
// One answerer serves one session; calls are serialized.
type Answerer struct {
	mu        sync.Mutex
	embed     EmbeddingClient
	llm       CompletionClient
	retriever Retriever
	cfg       AnswererConfig
	history   []Turn
}

func NewAnswerer(embed EmbeddingClient, llm CompletionClient, retriever Retriever, cfg AnswererConfig) *Answerer {
	cfg.applyDefaults()
	return &Answerer{
		embed:     embed,
		llm:       llm,
		retriever: retriever,
		cfg:       cfg,
	}
}

// Department returns the department this session's answerer is scoped to.
func (a *Answerer) Department() string {
	return a.cfg.Department
}

// History returns a copy of the current history window, oldest first.
func (a *Answerer) History() []Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Turn, len(a.history))
	copy(out, a.history)
	return out
}

// ClearHistory empties the session history. Idempotent.
func (a *Answerer) ClearHistory() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// Ask answers one question against the knowledge base. Below the confidence
// gate it returns the fixed low-confidence answer without invoking the
// completion model; that outcome is a valid result, not an error.
func (a *Answerer) Ask(ctx context.Context, question string) (*Answer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	searchQuestion := a.rewriteWithContext(ctx, question)

	hits, err := a.retrieveConfident(ctx, searchQuestion)
	if err != nil {
		return nil, err
	}

	// The rewritten form can drift off-corpus; one retry with the user's
	// original words before giving up.
	if len(hits) == 0 {
		hits, err = a.retrieveConfident(ctx, question)
		if err != nil {
			return nil, err
		}
	}

	if len(hits) == 0 {
		return &Answer{Kind: AnswerKindLowConfidence, Text: LowConfidenceText}, nil
	}

	if len(hits) > a.cfg.ContextDocs {
		hits = hits[:a.cfg.ContextDocs]
	}

	prompt := a.buildAnswerPrompt(question, hits)
	text, err := a.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, domain.NewCompletionError(err)
	}
	text = strings.TrimSpace(text)

	answer := &Answer{
		Kind:    AnswerKindAnswered,
		Text:    text,
		Sources: sourceLabels(hits),
	}

	a.history = append(a.history, Turn{Question: question, Answer: text})
	if len(a.history) > a.cfg.HistoryLimit {
		a.history = a.history[len(a.history)-a.cfg.HistoryLimit:]
	}

	return answer, nil
}

// retrieveConfident embeds the question, retrieves hybrid hits, and keeps
// only those at or above the confidence gate.
func (a *Answerer) retrieveConfident(ctx context.Context, question string) ([]*RetrievalHit, error) {
	embedding, err := a.embed.GenerateEmbedding(ctx, question)
	if err != nil {
		return nil, domain.NewEmbeddingError(err)
	}

	hits, err := a.retriever.Search(ctx, SearchParams{
		QueryVector:         embedding,
		QueryText:           question,
		K:                   a.cfg.ContextDocs * 2,
		SimilarityThreshold: a.cfg.SimilarityThreshold,
		HybridAlpha:         a.cfg.HybridAlpha,
		Department:          a.cfg.Department,
		AccessLevels:        a.cfg.AccessLevels,
	})
	if err != nil {
		return nil, err
	}

	confident := hits[:0]
	for _, h := range hits {
		if h.CombinedScore >= a.cfg.MinSimilarity {
			confident = append(confident, h)
		}
	}
	return confident, nil
}

// rewriteWithContext resolves pronouns and references against recent turns by
// asking the completion model for a standalone form. Rewriting is best
// effort: any failure falls back to the original question.
func (a *Answerer) rewriteWithContext(ctx context.Context, question string) string {
	if len(a.history) == 0 || !containsReference(question) {
		return question
	}

	recent := a.history
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}

	var b strings.Builder
	b.WriteString("Given this conversation history:\n")
	for _, turn := range recent {
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", turn.Question, turn.Answer)
	}
	fmt.Fprintf(&b, "\nCurrent question: %s\n\n", question)
	b.WriteString("If the current question contains pronouns or references to the previous context, " +
		"rewrite it as a standalone question with full context. Otherwise return it unchanged. " +
		"Return ONLY the rewritten question, nothing else.")

	rewritten, err := a.llm.Complete(ctx, b.String())
	if err != nil {
		return question
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question
	}
	return rewritten
}

func (a *Answerer) buildAnswerPrompt(question string, hits []*RetrievalHit) string {
	var b strings.Builder
	b.WriteString("You are a professional assistant answering questions from internal documents.\n\n")

	if len(a.history) > 0 {
		last := a.history[len(a.history)-1]
		fmt.Fprintf(&b, "Previous conversation:\nQ: %s\nA: %s\n\n", last.Question, last.Answer)
	}

	b.WriteString("Context:\n")
	for i, h := range hits {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(h.Chunk.Content)
	}

	fmt.Fprintf(&b, "\n\nQuestion: %s\n\n", question)
	b.WriteString("Instructions:\n" +
		"- Answer directly and naturally using only the context above\n" +
		"- Do not say \"based on the context\" or \"according to the documents\"\n" +
		"- If the answer is not in the context, say \"I don't know\"\n" +
		"- Keep answers brief and specific\n\n" +
		"Answer:")
	return b.String()
}

const maxSourceLabels = 3

// sourceLabels builds up to three deduplicated attributions. Primary chunks
// cite the source document; secondary chunks cite admin-reviewed knowledge.
func sourceLabels(hits []*RetrievalHit) []string {
	labels := make([]string, 0, maxSourceLabels)
	seen := make(map[string]struct{}, maxSourceLabels)
	for _, h := range hits {
		dept := strings.ToUpper(h.Chunk.Department)
		var label string
		if h.Chunk.SourceTier == domain.TierSecondary {
			label = fmt.Sprintf("Admin-reviewed knowledge (%s)", dept)
		} else {
			label = fmt.Sprintf("%s (%s)", h.Chunk.DocumentName, dept)
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
		if len(labels) == maxSourceLabels {
			break
		}
	}
	return labels
}

// referencePronouns are single words that signal the question leans on
// earlier turns.
var referencePronouns = map[string]struct{}{
	"he": {}, "she": {}, "his": {}, "her": {}, "him": {},
	"they": {}, "them": {}, "their": {}, "it": {}, "its": {},
}

// referencePhrases are multi-word references matched as substrings.
var referencePhrases = []string{"the candidate", "that person", "the same"}

func containsReference(question string) bool {
	lower := strings.ToLower(question)
	for _, phrase := range referencePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := referencePronouns[w]; ok {
			return true
		}
	}
	return false
}
