package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

const (
	vectorDistance = qdrant.Distance_Cosine
	hnswM          = 32
	hnswEfConstruct = 128
)

// VectorIndex implements service.VectorIndex against Qdrant, one collection
// per tenant named "<base>_<tenant>".
type VectorIndex struct {
	client     *qdrant.Client
	baseName   string
	dimensions uint64
}

// NewVectorIndex creates a VectorIndex backed by a Qdrant gRPC client.
func NewVectorIndex(client *qdrant.Client, baseCollection string, dimensions int) *VectorIndex {
	return &VectorIndex{client: client, baseName: baseCollection, dimensions: uint64(dimensions)}
}

var _ service.VectorIndex = (*VectorIndex)(nil)

func (v *VectorIndex) collectionFor(tenantID string) string {
	if tenantID == "" || tenantID == "default" {
		return v.baseName
	}
	return v.baseName + "_" + tenantID
}

// Ensure creates the tenant's collection if it does not already exist, with
// cosine distance and HNSW parameters m=32, ef_construct=128.
func (v *VectorIndex) Ensure(ctx context.Context, tenantID string) error {
	name := v.collectionFor(tenantID)
	exists, err := v.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("repository.VectorIndex.Ensure: %w", err)
	}
	if exists {
		return nil
	}

	err = v.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     v.dimensions,
			Distance: vectorDistance,
		}),
		HnswConfig: &qdrant.HnswConfigDiff{
			M:            qdrant.PtrOf(uint64(hnswM)),
			EfConstruct:  qdrant.PtrOf(uint64(hnswEfConstruct)),
		},
	})
	if err != nil {
		return fmt.Errorf("repository.VectorIndex.Ensure: create collection %s: %w", name, err)
	}
	slog.Info("vector collection created", "collection", name)
	return nil
}

// Upsert writes points for the given chunks into the tenant's collection.
func (v *VectorIndex) Upsert(ctx context.Context, tenantID string, chunks []model.ChunkMeta) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Vector) == 0 {
			continue
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(chunkPointID(c.ChunkID)),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: payloadFor(c),
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := v.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: v.collectionFor(tenantID),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("repository.VectorIndex.Upsert: %w", err)
	}
	return nil
}

// SearchFilters narrows a vector search to a repo, optional language, and
// optional directory/test exclusions. It is the engine's own filter type, so
// the adapters' method sets match service.VectorIndex and service.LexicalIndex.
type SearchFilters = service.SearchFilters

// Search runs a filtered ANN search scoped to repoID, returning up to topK hits.
func (v *VectorIndex) Search(ctx context.Context, tenantID string, vector []float32, repoID string, topK int, filters SearchFilters) ([]service.VectorHit, error) {
	ef := uint64(64)
	if want := uint64(topK * 2); want > ef {
		ef = want
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("repo_id", repoID),
	}
	if filters.Lang != "" {
		must = append(must, qdrant.NewMatch("lang", filters.Lang))
	}
	if filters.DirHint != "" {
		must = append(must, qdrant.NewMatchText("rel_path", filters.DirHint))
	}
	var mustNot []*qdrant.Condition
	if filters.ExcludeTests {
		mustNot = append(mustNot, qdrant.NewMatchText("rel_path", "test"))
	}

	resp, err := v.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: v.collectionFor(tenantID),
		Query:          qdrant.NewQuery(vector...),
		Filter: &qdrant.Filter{
			Must:    must,
			MustNot: mustNot,
		},
		Limit:       qdrant.PtrOf(uint64(topK)),
		WithPayload: qdrant.NewWithPayload(true),
		Params: &qdrant.SearchParams{
			HnswEf: qdrant.PtrOf(ef),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository.VectorIndex.Search: %w", err)
	}

	hits := make([]service.VectorHit, 0, len(resp))
	for _, p := range resp {
		chunkID, payload := chunkFromPayload(p.GetPayload())
		hits = append(hits, service.VectorHit{
			ChunkID: chunkID,
			Score:   float64(p.GetScore()),
			Payload: payload,
		})
	}
	return hits, nil
}

func payloadFor(c model.ChunkMeta) map[string]*qdrant.Value {
	tokens := make([]*qdrant.Value, len(c.PathTokens))
	for i, t := range c.PathTokens {
		tokens[i] = qdrant.NewValueString(t)
	}
	payload := map[string]*qdrant.Value{
		"chunk_id":    qdrant.NewValueString(c.ChunkID),
		"repo_id":     qdrant.NewValueString(c.RepoID),
		"path_tokens": qdrant.NewValueList(tokens),
		"line_start":  qdrant.NewValueInt(int64(c.LineStart)),
		"line_end":    qdrant.NewValueInt(int64(c.LineEnd)),
	}
	if c.Lang != "" {
		payload["lang"] = qdrant.NewValueString(c.Lang)
	}
	if c.RelPath != "" {
		payload["rel_path"] = qdrant.NewValueString(c.RelPath)
	}
	return payload
}

func chunkFromPayload(payload map[string]*qdrant.Value) (string, *model.ChunkMeta) {
	get := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	chunkID := get("chunk_id")
	meta := &model.ChunkMeta{
		ChunkID:   chunkID,
		RepoID:    get("repo_id"),
		Lang:      get("lang"),
		RelPath:   get("rel_path"),
		LineStart: int(payload["line_start"].GetIntegerValue()),
		LineEnd:   int(payload["line_end"].GetIntegerValue()),
	}
	if v, ok := payload["path_tokens"]; ok && v.GetListValue() != nil {
		for _, item := range v.GetListValue().Values {
			meta.PathTokens = append(meta.PathTokens, item.GetStringValue())
		}
	}
	return chunkID, meta
}

// chunkPointID derives a stable numeric point id from an opaque chunk id so
// re-upserts under the same chunk_id overwrite the same point.
func chunkPointID(chunkID string) uint64 {
	var h uint64 = 14695981039346656037
	for _, b := range []byte(chunkID) {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// IsNotFound reports whether err indicates the collection/point was absent.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
