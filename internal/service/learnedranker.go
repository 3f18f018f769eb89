package service

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// learnedRankerArtifact is the on-disk format produced by the offline
// training script: a logistic model over the five fusion features
// [fused, vnorm, bnorm, span, depth]. Go has no joblib/pickle reader, so the
// artifact is serialized as JSON instead of the original pickle format.
type learnedRankerArtifact struct {
	Weights [5]float64 `json:"weights"`
	Bias    float64    `json:"bias"`
}

// LearnedRanker is a read-only scorer loaded once at startup. A nil or
// unavailable ranker means the engine skips rescoring.
type LearnedRanker struct {
	artifact *learnedRankerArtifact
}

// LoadLearnedRanker reads the ranker artifact from path. An empty path or a
// missing file yields an unavailable ranker rather than an error, matching
// the read-only, best-effort nature of the offline model.
func LoadLearnedRanker(path string) (*LearnedRanker, error) {
	if path == "" {
		return &LearnedRanker{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &LearnedRanker{}, nil
		}
		return nil, err
	}
	var artifact learnedRankerArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, err
	}
	return &LearnedRanker{artifact: &artifact}, nil
}

// Available reports whether a ranker artifact was loaded.
func (r *LearnedRanker) Available() bool {
	return r != nil && r.artifact != nil
}

// Rerank scores each candidate's feature vector [fused, vnorm, bnorm, span,
// depth] with the learned model and re-sorts by the resulting score,
// descending and stable.
func (r *LearnedRanker) Rerank(candidates []model.HybridCandidate) []model.HybridCandidate {
	out := make([]model.HybridCandidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Fused = r.score(out[i])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Fused > out[j].Fused
	})
	return out
}

func (r *LearnedRanker) score(c model.HybridCandidate) float64 {
	features := [5]float64{c.Fused, c.NormalizedVector, c.NormalizedLexical, float64(c.LineSpanLength), float64(c.PathDepth)}
	var z float64
	for i, f := range features {
		z += r.artifact.Weights[i] * f
	}
	z += r.artifact.Bias
	return sigmoid(z)
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
