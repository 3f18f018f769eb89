package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// ErrEmbedFailed and ErrVectorUnavailable let callers distinguish why Search
// failed. A lexical-store failure is never returned as an error: it degrades
// the query to vector-only (see Search).
var (
	ErrEmbedFailed       = errors.New("query embedding failed")
	ErrVectorUnavailable = errors.New("vector backend unavailable")
)

// QueryEmbedder embeds query text into a dense vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex is the subset of the vector store the search engine needs.
type VectorIndex interface {
	Ensure(ctx context.Context, tenantID string) error
	Upsert(ctx context.Context, tenantID string, chunks []model.ChunkMeta) error
	Search(ctx context.Context, tenantID string, vector []float32, repoID string, topK int, filters SearchFilters) ([]VectorHit, error)
}

// LexicalIndex is the subset of the lexical store the search engine needs.
type LexicalIndex interface {
	Ensure(ctx context.Context, tenantID string) error
	BulkUpsert(ctx context.Context, tenantID string, chunks []model.ChunkMeta) error
	BM25(ctx context.Context, tenantID string, repoID string, query string, topK int, filters SearchFilters) ([]LexicalHit, error)
}

// SearchFilters narrows both vector and lexical search to a repo subset.
type SearchFilters struct {
	Lang         string
	DirHint      string
	ExcludeTests bool
}

// SearchParams is one /search request, already validated.
type SearchParams struct {
	TenantID string
	RepoID   string
	Query    string
	TopK     int
	Filters  SearchFilters
	Alpha    float64
	Beta     float64
}

// SearchOutcome is the Hybrid Search Engine's result: hits truncated to
// TopK, and a debug trace of up to max(TopK, 30) candidates for the search log.
type SearchOutcome struct {
	Hits  []model.SearchHit
	Debug []model.DebugRecord
}

// HybridSearchEngine fans out to the vector and lexical stores, fuses scores,
// optionally applies the learned ranker, and returns ranked hits. It holds no
// per-request mutable state: alpha/beta are threaded through SearchParams.
type HybridSearchEngine struct {
	embedder       QueryEmbedder
	vectors        VectorIndex
	lexical        LexicalIndex
	fuser          *Fuser
	ranker         *LearnedRanker
	topKVector     int
	topKBM25       int
	privacyRepoIDs map[string]bool
}

// NewHybridSearchEngine builds the engine. ranker may be nil (no learned reranking).
func NewHybridSearchEngine(embedder QueryEmbedder, vectors VectorIndex, lexical LexicalIndex, fuser *Fuser, ranker *LearnedRanker, topKVector, topKBM25 int, privacyRepoIDs map[string]bool) *HybridSearchEngine {
	return &HybridSearchEngine{
		embedder: embedder, vectors: vectors, lexical: lexical, fuser: fuser, ranker: ranker,
		topKVector: topKVector, topKBM25: topKBM25, privacyRepoIDs: privacyRepoIDs,
	}
}

// Search embeds the query, fans out, fuses, optionally reranks, and returns
// up to p.TopK hits plus a debug trace of up to max(p.TopK, 30) candidates.
//
// A lexical backend failure never fails the request: it degrades the query
// to vector-only (lexicalHits is dropped and every candidate's bnorm is set
// to 0 after fusion). A vector backend failure is fatal, since vector recall
// is the engine's primary signal.
func (e *HybridSearchEngine) Search(ctx context.Context, p SearchParams) (*SearchOutcome, error) {
	vec, err := e.embedder.Embed(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("service.HybridSearchEngine.Search: %w: %w", ErrEmbedFailed, err)
	}

	skipLexical := e.privacyRepoIDs[p.RepoID]

	var vectorHits []VectorHit
	var lexicalHits []LexicalHit
	var lexicalErr error

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.vectors.Search(gCtx, p.TenantID, vec, p.RepoID, e.topKVector, p.Filters)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrVectorUnavailable, err)
		}
		vectorHits = hits
		return nil
	})

	var lexicalWG sync.WaitGroup
	if !skipLexical {
		lexicalWG.Add(1)
		go func() {
			defer lexicalWG.Done()
			hits, err := e.lexical.BM25(ctx, p.TenantID, p.RepoID, p.Query, e.topKBM25, p.Filters)
			if err != nil {
				lexicalErr = err
				return
			}
			lexicalHits = hits
		}()
	}

	vectorErr := g.Wait()
	lexicalWG.Wait()
	if vectorErr != nil {
		return nil, fmt.Errorf("service.HybridSearchEngine.Search: %w", vectorErr)
	}
	if lexicalErr != nil {
		slog.Warn("lexical backend failed, degrading to vector-only search",
			"error", lexicalErr, "tenant_id", p.TenantID, "repo_id", p.RepoID)
		lexicalHits = nil
	}

	candidates := e.fuser.Fuse(vectorHits, lexicalHits, p.Alpha, p.Beta)
	if lexicalErr != nil {
		for i := range candidates {
			candidates[i].Fused -= p.Beta * candidates[i].NormalizedLexical
			candidates[i].NormalizedLexical = 0
		}
	}

	debugCap := p.TopK
	if debugCap < 30 {
		debugCap = 30
	}
	if debugCap > len(candidates) {
		debugCap = len(candidates)
	}
	debugCandidates := candidates[:debugCap]

	anyText := false
	for _, c := range debugCandidates {
		if c.Payload != nil && c.Payload.Text != "" {
			anyText = true
			break
		}
	}

	ranked := debugCandidates
	if e.ranker != nil && e.ranker.Available() && anyText {
		ranked = e.ranker.Rerank(debugCandidates)
	}

	topK := p.TopK
	if topK > len(ranked) {
		topK = len(ranked)
	}
	hits := make([]model.SearchHit, 0, topK)
	for _, c := range ranked[:topK] {
		hits = append(hits, toSearchHit(c, skipLexical))
	}

	debug := make([]model.DebugRecord, 0, len(debugCandidates))
	for _, c := range debugCandidates {
		debug = append(debug, model.DebugRecord{
			ChunkID: c.ChunkID, Fused: c.Fused, VNorm: c.NormalizedVector,
			BNorm: c.NormalizedLexical, Span: c.LineSpanLength, Depth: c.PathDepth,
		})
	}

	return &SearchOutcome{Hits: hits, Debug: debug}, nil
}

func toSearchHit(c model.HybridCandidate, privacyMode bool) model.SearchHit {
	hit := model.SearchHit{ChunkID: c.ChunkID, Score: c.Fused}
	if c.Payload != nil {
		hit.PathTokens = c.Payload.PathTokens
		hit.LineSpan = [2]int{c.Payload.LineStart, c.Payload.LineEnd}
		hit.RepoID = c.Payload.RepoID
		if !privacyMode && c.Payload.Text != "" {
			text := c.Payload.Text
			hit.Preview = &text
		}
	}
	return hit
}
