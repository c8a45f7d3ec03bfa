package vectorstore

import "pdfchat/internal/domain"

// Index is a read-only similarity index over one document's chunks.
type Index interface {
	Search(vector []float64, topK int) ([]domain.SearchResult, error)
	Chunks() []domain.Chunk
	Len() int
}
