package service

import (
	"context"
	"sort"
)

// CrossEncoderProvider scores (query, passage) pairs, one score per passage
// in input order. Implementations call out to a hosted cross-encoder model.
type CrossEncoderProvider interface {
	Rerank(ctx context.Context, query string, passages []string) ([]float64, error)
}

// ScoredPassage pairs a passage's identity with its cross-encoder score.
type ScoredPassage struct {
	ChunkID string
	Score   float64
}

// CrossEncoderReranker scores fetched raw line ranges for privacy-mode
// repos, where search-time ranking could only use the vector score.
type CrossEncoderReranker struct {
	provider CrossEncoderProvider
}

// NewCrossEncoderReranker builds a CrossEncoderReranker over provider.
func NewCrossEncoderReranker(provider CrossEncoderProvider) *CrossEncoderReranker {
	return &CrossEncoderReranker{provider: provider}
}

// Rerank scores each (query, text) pair and returns chunkIDs sorted by
// score descending, stable on ties.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, chunkIDs []string, texts []string) ([]ScoredPassage, error) {
	scores, err := r.provider.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}

	results := make([]ScoredPassage, len(chunkIDs))
	for i, id := range chunkIDs {
		var score float64
		if i < len(scores) {
			score = scores[i]
		}
		results[i] = ScoredPassage{ChunkID: id, Score: score}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}
