package service

import (
	"math"
	"sort"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// degenerateEpsilon is the min-max spread below which a score set is treated
// as uninformative and every normalized value collapses to 0.5.
const degenerateEpsilon = 1e-9

// Fuser combines vector and lexical scores into a single ranking. It holds no
// per-request state — alpha/beta are passed into Fuse on every call so the
// A/B override never mutates shared fields.
type Fuser struct {
	RRFK int
}

// NewFuser builds a Fuser with the given Reciprocal Rank Fusion constant.
func NewFuser(rrfK int) *Fuser {
	return &Fuser{RRFK: rrfK}
}

// VectorHit is one result returned by the vector index adapter.
type VectorHit struct {
	ChunkID string
	Score   float64
	Payload *model.ChunkMeta
}

// LexicalHit is one result returned by the lexical index adapter.
type LexicalHit struct {
	ChunkID string
	Score   float64
	Payload *model.ChunkMeta
}

// Fuse builds the candidate set from the union of vector and lexical hits,
// normalizes each score independently by min-max, combines them with the
// given weights, and falls back to Reciprocal Rank Fusion when both backends
// returned no scores at all. The result is sorted by fused score descending,
// stable on ties.
func (f *Fuser) Fuse(vectorHits []VectorHit, lexicalHits []LexicalHit, alpha, beta float64) []model.HybridCandidate {
	order := make([]string, 0, len(vectorHits)+len(lexicalHits))
	seen := make(map[string]bool)
	vecByID := make(map[string]VectorHit, len(vectorHits))
	lexByID := make(map[string]LexicalHit, len(lexicalHits))

	for _, h := range vectorHits {
		vecByID[h.ChunkID] = h
		if !seen[h.ChunkID] {
			seen[h.ChunkID] = true
			order = append(order, h.ChunkID)
		}
	}
	for _, h := range lexicalHits {
		lexByID[h.ChunkID] = h
		if !seen[h.ChunkID] {
			seen[h.ChunkID] = true
			order = append(order, h.ChunkID)
		}
	}

	if len(order) == 0 {
		return nil
	}

	rawVec := make([]float64, len(order))
	rawLex := make([]float64, len(order))
	for i, id := range order {
		if h, ok := vecByID[id]; ok {
			rawVec[i] = h.Score
		}
		if h, ok := lexByID[id]; ok {
			rawLex[i] = h.Score
		}
	}

	hasAnyScore := false
	for i := range order {
		if rawVec[i] != 0 || rawLex[i] != 0 {
			hasAnyScore = true
			break
		}
	}

	vnorm := normalize(rawVec)
	bnorm := normalize(rawLex)

	candidates := make([]model.HybridCandidate, len(order))
	for i, id := range order {
		var payload *model.ChunkMeta
		if h, ok := vecByID[id]; ok && h.Payload != nil {
			payload = h.Payload
		} else if h, ok := lexByID[id]; ok && h.Payload != nil {
			payload = h.Payload
		}

		fused := alpha*vnorm[i] + beta*bnorm[i]
		candidates[i] = model.HybridCandidate{
			ChunkID:           id,
			VectorScore:       rawVec[i],
			LexicalScore:      rawLex[i],
			NormalizedVector:  vnorm[i],
			NormalizedLexical: bnorm[i],
			Fused:             fused,
			Payload:           payload,
		}
		if payload != nil {
			candidates[i].PathDepth = len(payload.PathTokens)
			candidates[i].LineSpanLength = lineSpan(payload.LineStart, payload.LineEnd)
		}
	}

	if !hasAnyScore {
		f.applyRRF(candidates, vectorHits, lexicalHits)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Fused > candidates[j].Fused
	})

	return candidates
}

// applyRRF adds Reciprocal Rank Fusion scores onto Fused. Only reached when
// there are candidates but every raw vector and lexical score is exactly 0;
// empty result lists return from Fuse before this point.
func (f *Fuser) applyRRF(candidates []model.HybridCandidate, vectorHits []VectorHit, lexicalHits []LexicalHit) {
	byID := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byID[c.ChunkID] = i
	}
	for rank, h := range vectorHits {
		if i, ok := byID[h.ChunkID]; ok {
			candidates[i].Fused += 1.0 / float64(f.RRFK+rank+1)
		}
	}
	for rank, h := range lexicalHits {
		if i, ok := byID[h.ChunkID]; ok {
			candidates[i].Fused += 1.0 / float64(f.RRFK+rank+1)
		}
	}
}

// normalize applies min-max normalization. A degenerate spread (max-min below
// degenerateEpsilon) maps every value to 0.5.
func normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo < degenerateEpsilon {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

func lineSpan(start, end int) int {
	if end-start < 0 {
		return 0
	}
	return end - start
}
