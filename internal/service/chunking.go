package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how documents are split before embedding.
type ChunkConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for document chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars:  800,
		MinChars:  200,
		Overlap:   100,
		MaxChunks: 64,
	}
}

// chunkText splits text into overlapping chunks, preferring paragraph
// breaks, then sentence ends, then any whitespace as cut points.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			end = findCut(runes, minCut, end)
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// findCut scans backward from end to minCut for the best split point:
// a paragraph break beats a sentence end beats plain whitespace.
func findCut(runes []rune, minCut, end int) int {
	sentenceCut := 0
	spaceCut := 0
	for i := end; i > minCut; i-- {
		r := runes[i-1]
		if r == '\n' {
			if i > 1 && runes[i-2] == '\n' {
				return i
			}
			if spaceCut == 0 {
				spaceCut = i
			}
			continue
		}
		if sentenceCut == 0 && i < len(runes) && isSentenceEnd(r) && unicode.IsSpace(runes[i]) {
			sentenceCut = i
		}
		if spaceCut == 0 && unicode.IsSpace(r) {
			spaceCut = i
		}
	}
	if sentenceCut > 0 {
		return sentenceCut
	}
	if spaceCut > 0 {
		return spaceCut
	}
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
