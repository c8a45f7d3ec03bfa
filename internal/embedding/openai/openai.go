package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"pdfchat/internal/provider"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-3-small"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	connector *provider.Connector
	model     string
	hasKey    bool
	keyEnv    string
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
// A missing key is not an error here; the provider rejects the first call.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	key := os.Getenv(cfg.APIKeyEnv)
	return &Client{
		connector: provider.NewConnector(cfg.BaseURL,
			provider.WithRequestTimeout(cfg.Timeout),
			provider.WithAuthToken(key),
			provider.WithRequestLogging(),
		),
		model:  cfg.Model,
		hasKey: key != "",
		keyEnv: cfg.APIKeyEnv,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns one vector per input text in input order. Each call is a
// single request; batching is the caller's concern.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out embeddingResponse
	err := c.connector.DoRequest(ctx, http.MethodPost, "/embeddings",
		embeddingRequest{Input: texts, Model: c.model}, &out)
	if err != nil {
		var httpErr *provider.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized && !c.hasKey {
			return nil, fmt.Errorf("embeddings: %w (is %s set?)", err, c.keyEnv)
		}
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d inputs", len(out.Data), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for _, item := range out.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("embeddings: index %d out of range", item.Index)
		}
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("embeddings: empty vector at index %d", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embeddings: missing vector for input %d", i)
		}
	}
	return vectors, nil
}
