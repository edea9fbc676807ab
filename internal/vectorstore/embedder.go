// Package vectorstore provides the embedding client and vector-store facade
// the pipeline uses to turn templated text into vectors and to query/persist
// those vectors across the log, prototype, and template collection families.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pulsecorr/internal/config"
)

// Embedder turns text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type httpEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewHTTPEmbedder builds an Embedder backed by an OpenAI-compatible REST
// embeddings endpoint.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) Embedder {
	return &httpEmbedder{cfg: cfg, client: http.DefaultClient}
}

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *httpEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("vectorstore: no texts to embed")
	}
	body, err := json.Marshal(embedReq{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, err
	}

	timeout := e.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := e.cfg.BaseURL + e.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if e.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	} else if e.cfg.APIHeader != "" {
		req.Header.Set(e.cfg.APIHeader, e.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: read embed response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("vectorstore: embed endpoint %s: %s", resp.Status, string(respBytes))
	}

	var er embedResp
	if err := json.Unmarshal(respBytes, &er); err != nil {
		n := len(respBytes)
		if n > 200 {
			n = 200
		}
		return nil, fmt.Errorf("vectorstore: parse embed response (input count %d, body %q): %w", len(texts), respBytes[:n], err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("vectorstore: embed count mismatch: got %d, want %d", len(er.Data), len(texts))
	}

	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// CheckReachability sends a minimal probe request to confirm the embedding
// endpoint is configured correctly and reachable.
func CheckReachability(ctx context.Context, e Embedder) error {
	if _, err := e.Embed(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("vectorstore: embedding endpoint unreachable: %w", err)
	}
	return nil
}
