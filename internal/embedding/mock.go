// Package embedding holds embedder decorators and a deterministic test embedder.
package embedding

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. The
// same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64

	mu  sync.Mutex
	err error
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) Name() string { return "mock" }

// FailWith makes subsequent calls return err. A nil err clears the failure.
func (e *MockEmbedder) FailWith(err error) {
	e.mu.Lock()
	e.err = err
	e.mu.Unlock()
}

// Calls returns how many times Embed was invoked.
func (e *MockEmbedder) Calls() int64 { return e.calls.Load() }

func (e *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	e.calls.Add(1)
	ctxzap.Debug(ctx, "[MOCK] embedding texts", zap.Int("count", len(texts)))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *MockEmbedder) vector(text string) []float64 {
	h := hashString(text)
	emb := make([]float64, e.dimensions)
	var sum float64
	for i := range emb {
		emb[i] = math.Sin(float64(h*(i+1)))*0.1 + 0.01
		sum += emb[i] * emb[i]
	}
	// Normalize to unit length for cosine similarity
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= norm
		}
	}
	return emb
}

func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h % 1_000_003
}
