package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPCrossEncoder calls a hosted cross-encoder inference endpoint that
// accepts {query, passages} and returns {scores}. Implements
// service.CrossEncoderProvider.
type HTTPCrossEncoder struct {
	url    string
	client *http.Client
}

// NewHTTPCrossEncoder builds an HTTPCrossEncoder against the given
// inference URL.
func NewHTTPCrossEncoder(url string) *HTTPCrossEncoder {
	return &HTTPCrossEncoder{url: url, client: http.DefaultClient}
}

type crossEncoderRequest struct {
	Query    string   `json:"query"`
	Passages []string `json:"passages"`
}

type crossEncoderResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank posts (query, passages) to the inference endpoint and returns the
// per-passage scores in input order.
func (h *HTTPCrossEncoder) Rerank(ctx context.Context, query string, passages []string) ([]float64, error) {
	body, err := json.Marshal(crossEncoderRequest{Query: query, Passages: passages})
	if err != nil {
		return nil, fmt.Errorf("providers.HTTPCrossEncoder.Rerank: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("providers.HTTPCrossEncoder.Rerank: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("providers.HTTPCrossEncoder.Rerank: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("providers.HTTPCrossEncoder.Rerank: status %d: %s", resp.StatusCode, raw)
	}

	var out crossEncoderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("providers.HTTPCrossEncoder.Rerank: decode: %w", err)
	}
	return out.Scores, nil
}
