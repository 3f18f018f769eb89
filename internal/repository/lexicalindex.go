package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	opensearchapi "github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// LexicalIndex implements service.LexicalIndex against OpenSearch, one index
// per tenant named "<base>_<tenant>". The mapping is bit-exact across
// tenants for reproducible scoring.
type LexicalIndex struct {
	client   *opensearchapi.Client
	baseName string
}

// NewLexicalIndex creates a LexicalIndex backed by an OpenSearch client.
func NewLexicalIndex(client *opensearchapi.Client, baseIndex string) *LexicalIndex {
	return &LexicalIndex{client: client, baseName: baseIndex}
}

var _ service.LexicalIndex = (*LexicalIndex)(nil)

func (l *LexicalIndex) indexFor(tenantID string) string {
	if tenantID == "" || tenantID == "default" {
		return l.baseName
	}
	return l.baseName + "_" + tenantID
}

// indexMapping is the exact analyzer and field mapping required for
// reproducible BM25 scoring across tenants.
const indexMapping = `{
	"settings": {
		"number_of_shards": 1,
		"number_of_replicas": 0,
		"analysis": {
			"filter": {
				"code_edge_ngram": {
					"type": "edge_ngram",
					"min_gram": 2,
					"max_gram": 20
				}
			},
			"analyzer": {
				"code_text": {
					"type": "custom",
					"tokenizer": "standard",
					"filter": ["lowercase", "word_delimiter_graph", "asciifolding", "code_edge_ngram"]
				},
				"path_analyzer": {
					"type": "custom",
					"tokenizer": "path_hierarchy",
					"filter": ["lowercase"]
				}
			}
		}
	},
	"mappings": {
		"properties": {
			"repo_id":     {"type": "keyword"},
			"chunk_id":    {"type": "keyword"},
			"path_tokens": {"type": "keyword"},
			"lang":        {"type": "keyword"},
			"rel_path": {
				"type": "text",
				"analyzer": "path_analyzer",
				"fields": {"keyword": {"type": "keyword"}}
			},
			"line_start": {"type": "integer"},
			"line_end":   {"type": "integer"},
			"text": {
				"type": "text",
				"analyzer": "code_text",
				"search_analyzer": "standard"
			}
		}
	}
}`

// Ensure creates the tenant's index with the bit-exact mapping if absent.
func (l *LexicalIndex) Ensure(ctx context.Context, tenantID string) error {
	name := l.indexFor(tenantID)
	existsResp, err := l.client.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Index: []string{name}})
	if err == nil && existsResp != nil && existsResp.StatusCode == 200 {
		return nil
	}

	_, err = l.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: name,
		Body:  strings.NewReader(indexMapping),
	})
	if err != nil {
		return fmt.Errorf("repository.LexicalIndex.Ensure: create index %s: %w", name, err)
	}
	slog.Info("lexical index created", "index", name)
	return nil
}

type lexicalDoc struct {
	RepoID     string   `json:"repo_id"`
	ChunkID    string   `json:"chunk_id"`
	PathTokens []string `json:"path_tokens"`
	Lang       string   `json:"lang,omitempty"`
	RelPath    string   `json:"rel_path,omitempty"`
	LineStart  int      `json:"line_start"`
	LineEnd    int      `json:"line_end"`
	Text       string   `json:"text"`
}

// BulkUpsert indexes the given chunks via the OpenSearch bulk API.
func (l *LexicalIndex) BulkUpsert(ctx context.Context, tenantID string, chunks []model.ChunkMeta) error {
	if len(chunks) == 0 {
		return nil
	}
	name := l.indexFor(tenantID)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, c := range chunks {
		meta := map[string]any{"index": map[string]any{"_index": name, "_id": c.ChunkID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("repository.LexicalIndex.BulkUpsert: encode meta: %w", err)
		}
		doc := lexicalDoc{
			RepoID: c.RepoID, ChunkID: c.ChunkID, PathTokens: c.PathTokens,
			Lang: c.Lang, RelPath: c.RelPath, LineStart: c.LineStart, LineEnd: c.LineEnd,
			Text: c.Text,
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("repository.LexicalIndex.BulkUpsert: encode doc: %w", err)
		}
	}

	resp, err := l.client.Bulk(ctx, opensearchapi.BulkReq{Body: bytes.NewReader(buf.Bytes())})
	if err != nil {
		return fmt.Errorf("repository.LexicalIndex.BulkUpsert: %w", err)
	}
	if resp.Errors {
		return fmt.Errorf("repository.LexicalIndex.BulkUpsert: one or more items failed")
	}
	return nil
}

// BM25 runs a filtered match query scoped to repoID, returning up to topK hits.
func (l *LexicalIndex) BM25(ctx context.Context, tenantID string, repoID string, query string, topK int, filters SearchFilters) ([]service.LexicalHit, error) {
	must := []map[string]any{
		{"match": map[string]any{"text": query}},
		{"term": map[string]any{"repo_id": repoID}},
	}
	if filters.Lang != "" {
		must = append(must, map[string]any{"term": map[string]any{"lang": filters.Lang}})
	}
	if filters.DirHint != "" {
		must = append(must, map[string]any{"prefix": map[string]any{"rel_path.keyword": filters.DirHint}})
	}
	var mustNot []map[string]any
	if filters.ExcludeTests {
		mustNot = append(mustNot, map[string]any{"wildcard": map[string]any{"rel_path.keyword": "*test*"}})
	}

	body := map[string]any{
		"size": topK,
		"query": map[string]any{
			"bool": map[string]any{
				"must":     must,
				"must_not": mustNot,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("repository.LexicalIndex.BM25: encode query: %w", err)
	}

	resp, err := l.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{l.indexFor(tenantID)},
		Body:    &buf,
	})
	if err != nil {
		return nil, fmt.Errorf("repository.LexicalIndex.BM25: %w", err)
	}

	hits := make([]service.LexicalHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var doc lexicalDoc
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, fmt.Errorf("repository.LexicalIndex.BM25: decode hit: %w", err)
		}
		hits = append(hits, service.LexicalHit{
			ChunkID: doc.ChunkID,
			Score:   h.Score,
			Payload: &model.ChunkMeta{
				ChunkID: doc.ChunkID, RepoID: doc.RepoID, PathTokens: doc.PathTokens,
				Lang: doc.Lang, RelPath: doc.RelPath, LineStart: doc.LineStart, LineEnd: doc.LineEnd,
				Text: doc.Text,
			},
		})
	}
	return hits, nil
}

