package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
)

// TextExtractor reads the plain text and page count of a document.
type TextExtractor interface {
	Extract(path string) (string, int, error)
}

// Options tunes retrieval, generation and the document summary.
type Options struct {
	TopK                int
	QueryCacheTTL       time.Duration
	CondenseQuestion    bool
	SummaryMaxSentences int
}

// RAGServiceImpl turns a PDF path into a ready-to-query chain.
type RAGServiceImpl struct {
	extractor  TextExtractor
	chunker    domain.Chunker
	indexer    *Indexer
	summarizer domain.Summarizer
	generator  *Generator
	opts       Options
}

func NewRAGService(
	extractor TextExtractor,
	chunker domain.Chunker,
	indexer *Indexer,
	summarizer domain.Summarizer,
	completer domain.Completer,
	opts Options,
) *RAGServiceImpl {
	return &RAGServiceImpl{
		extractor:  extractor,
		chunker:    chunker,
		indexer:    indexer,
		summarizer: summarizer,
		generator:  NewGenerator(completer, opts.CondenseQuestion),
		opts:       opts,
	}
}

// Load extracts, chunks and indexes the document at path. Nothing is shared
// with previously loaded documents. The summary is best effort. Logging goes
// to the logger carried by ctx.
func (s *RAGServiceImpl) Load(ctx context.Context, path string, progress domain.ProgressFunc) (*domain.LoadResult, error) {
	started := time.Now()
	logger := ctxzap.Extract(ctx)

	text, pages, err := s.extractor.Extract(path)
	if err != nil {
		return nil, err
	}
	doc := domain.Document{
		ID:      uuid.NewString(),
		Path:    path,
		Content: text,
		Pages:   pages,
	}

	chunks := s.chunker.Chunk(doc)
	logger.Info("document chunked",
		zap.String("document_id", doc.ID),
		zap.Int("pages", pages),
		zap.Int("chunks", len(chunks)),
	)

	index, embedder, err := s.indexer.Build(ctx, chunks, progress)
	if err != nil {
		return nil, err
	}

	summary := ""
	if s.summarizer != nil {
		summary, err = s.summarizer.Summarize(text, s.opts.SummaryMaxSentences)
		if err != nil {
			logger.Warn("summary failed", zap.Error(err))
			summary = ""
		}
	}

	retriever := NewRetriever(index, embedder, s.opts.QueryCacheTTL)
	chain := NewRetrievalChain(retriever, s.generator, s.opts.TopK)

	logger.Info("index ready",
		zap.String("document_id", doc.ID),
		zap.String("embedder", embedder.Name()),
		zap.Duration("elapsed", time.Since(started)),
	)
	return &domain.LoadResult{
		Document: doc,
		Chain:    chain,
		Chunks:   index.Len(),
		Summary:  summary,
	}, nil
}
