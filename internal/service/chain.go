package service

import (
	"context"
	"strings"

	"pdfchat/internal/domain"
)

// RetrievalChain answers questions about one indexed document.
type RetrievalChain struct {
	retriever *Retriever
	generator *Generator
	topK      int
}

var _ domain.Chain = (*RetrievalChain)(nil)

func NewRetrievalChain(retriever *Retriever, generator *Generator, topK int) *RetrievalChain {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &RetrievalChain{retriever: retriever, generator: generator, topK: topK}
}

// Answer condenses the question against history when enabled, retrieves the
// nearest chunks and generates a grounded answer.
func (c *RetrievalChain) Answer(ctx context.Context, query string, history []domain.Turn) (*domain.AnswerResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	standalone, err := c.generator.Standalone(ctx, query, history)
	if err != nil {
		return nil, err
	}
	sources, err := c.retriever.Retrieve(ctx, standalone, c.topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(sources))
	for i, s := range sources {
		chunks[i] = s.Chunk
	}
	answer, err := c.generator.Generate(ctx, standalone, chunks, history)
	if err != nil {
		return nil, err
	}
	return &domain.AnswerResult{
		Answer:             answer,
		StandaloneQuestion: standalone,
		Sources:            sources,
	}, nil
}
