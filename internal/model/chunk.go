package model

// ChunkMeta is a chunk of source code submitted by a client for indexing.
// Exactly one of Text or Vector is set, depending on PrivacyMode.
type ChunkMeta struct {
	ChunkID     string    `json:"chunk_id"`
	TenantID    string    `json:"tenant_id"`
	RepoID      string    `json:"repo_id"`
	Lang        string    `json:"lang,omitempty"`
	PathTokens  []string  `json:"path_tokens"`
	RelPath     string    `json:"rel_path,omitempty"`
	LineStart   int       `json:"line_start"`
	LineEnd     int       `json:"line_end"`
	IsTest      bool      `json:"is_test,omitempty"`
	TokenCount  int       `json:"token_count,omitempty"`
	PrivacyMode bool      `json:"privacy_mode,omitempty"`
	Text        string    `json:"text,omitempty"`
	Vector      []float32 `json:"vector,omitempty"`
}

// Tenant holds the accepted API keys for a single tenant.
type Tenant struct {
	ID   string
	Keys map[string]bool
}

// Salt is one entry in a tenant's rotation ledger. The current salt is the
// entry with the maximum Ver.
type Salt struct {
	Ver   int    `json:"ver"`
	Value string `json:"value"`
}

// HybridCandidate is a transient per-query scoring record, discarded at the
// end of the request except when serialized into the search log.
type HybridCandidate struct {
	ChunkID           string
	VectorScore       float64
	LexicalScore      float64
	NormalizedVector  float64
	NormalizedLexical float64
	Fused             float64
	PathDepth         int
	LineSpanLength    int
	Payload           *ChunkMeta
}

// SearchHit is the shape returned to clients for each ranked candidate.
type SearchHit struct {
	ChunkID    string   `json:"chunk_id"`
	Score      float64  `json:"score"`
	PathTokens []string `json:"path_tokens"`
	LineSpan   [2]int   `json:"line_span"`
	RepoID     string   `json:"repo_id"`
	Preview    *string  `json:"preview"`
}

// DebugRecord is the per-candidate trace persisted into the search log.
type DebugRecord struct {
	ChunkID string  `json:"chunk_id"`
	Fused   float64 `json:"fused"`
	VNorm   float64 `json:"vnorm"`
	BNorm   float64 `json:"bnorm"`
	Span    int     `json:"span"`
	Depth   int     `json:"depth"`
}

// Bucket is the deterministic A/B assignment derived from a search id.
type Bucket string

const (
	BucketControl Bucket = "control"
	BucketVariant Bucket = "variant"
)

// SearchEvent is the persistent append-only record written to search_log.jsonl
// for every non-cached search.
type SearchEvent struct {
	SearchID  string        `json:"search_id"`
	TenantID  string        `json:"tenant_id"`
	RepoID    string        `json:"repo_id"`
	Query     string        `json:"query"`
	Timestamp int64         `json:"timestamp"`
	Bucket    Bucket        `json:"bucket"`
	Candidates []DebugRecord `json:"candidates"`
}

// FeedbackEvent is the persistent append-only record written to feedback_log.jsonl.
type FeedbackEvent struct {
	SearchID       string `json:"search_id"`
	ClickedChunkID string `json:"clicked_chunk_id"`
	Grade          int    `json:"grade"`
	Timestamp      int64  `json:"timestamp"`
}
