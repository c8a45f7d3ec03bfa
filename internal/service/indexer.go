package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore/memory"
)

const DefaultBatchSize = 100

// Indexer embeds chunks and builds an immutable vector index from them.
type Indexer struct {
	embedder  domain.Embedder
	batchSize int
}

func NewIndexer(embedder domain.Embedder, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{embedder: embedder, batchSize: batchSize}
}

// Build embeds chunks in batches and returns the index together with the
// embedder instance that queries against it must use. Corpus-fitted
// embedders are fitted on the chunk texts first. Every failure is an
// *domain.IndexBuildError.
func (ix *Indexer) Build(ctx context.Context, chunks []domain.Chunk, progress domain.ProgressFunc) (*memory.Index, domain.Embedder, error) {
	if len(chunks) == 0 {
		return nil, nil, &domain.IndexBuildError{Err: errors.New("document produced no chunks")}
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	embedder := ix.embedder
	if fitter, ok := embedder.(domain.CorpusFitter); ok {
		fitted, err := fitter.Fit(texts)
		if err != nil {
			return nil, nil, &domain.IndexBuildError{Err: fmt.Errorf("fit %s: %w", embedder.Name(), err)}
		}
		embedder = fitted
	}

	logger := ctxzap.Extract(ctx)
	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += ix.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, &domain.IndexBuildError{Err: err}
		}
		end := min(start+ix.batchSize, len(texts))
		batch, err := embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, nil, &domain.IndexBuildError{Err: err}
		}
		if len(batch) != end-start {
			return nil, nil, &domain.IndexBuildError{
				Err: fmt.Errorf("embedder returned %d vectors for %d chunks", len(batch), end-start),
			}
		}
		vectors = append(vectors, batch...)
		logger.Debug("embedded batch", zap.Int("done", end), zap.Int("total", len(texts)))
		if progress != nil {
			progress(end, len(texts))
		}
	}

	index, err := memory.Build(chunks, vectors)
	if err != nil {
		return nil, nil, &domain.IndexBuildError{Err: err}
	}
	return index, embedder, nil
}
