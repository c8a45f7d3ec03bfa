package memory

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"pdfchat/internal/domain"
	"pdfchat/internal/vectorstore"
)

// Index is an immutable in-memory vector index using brute-force cosine
// similarity. It is safe for concurrent searches.
type Index struct {
	dimension int
	vectors   [][]float64
	norms     []float64
	chunks    []domain.Chunk
}

var _ vectorstore.Index = (*Index)(nil)

// Build copies chunks and vectors into a new index. All vectors must share
// one non-zero dimension.
func Build(chunks []domain.Chunk, vectors [][]float64) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to index")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("invalid dimension")
	}

	idx := &Index{
		dimension: dim,
		vectors:   make([][]float64, len(vectors)),
		norms:     make([]float64, len(vectors)),
		chunks:    append([]domain.Chunk(nil), chunks...),
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d dimension mismatch: %d != %d", i, len(v), dim)
		}
		idx.vectors[i] = append([]float64(nil), v...)
		idx.norms[i] = norm(v)
	}
	return idx, nil
}

func (x *Index) Dimension() int { return x.dimension }

func (x *Index) Len() int { return len(x.chunks) }

// Chunks returns a copy of the indexed chunks in document order.
func (x *Index) Chunks() []domain.Chunk {
	return append([]domain.Chunk(nil), x.chunks...)
}

// Search returns up to topK chunks ordered by descending cosine similarity.
// Equal scores keep document order.
func (x *Index) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("query dimension mismatch: %d != %d", len(vector), x.dimension)
	}
	if topK <= 0 {
		return nil, nil
	}
	qn := norm(vector)

	results := make([]domain.SearchResult, len(x.vectors))
	for i, v := range x.vectors {
		score := 0.0
		if qn > 0 && x.norms[i] > 0 {
			score = dot(v, vector) / (qn * x.norms[i])
		}
		results[i] = domain.SearchResult{Chunk: x.chunks[i], Score: score}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}
