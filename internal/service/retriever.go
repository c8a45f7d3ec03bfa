package service

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"pdfchat/internal/domain"
	"pdfchat/internal/embedding"
	"pdfchat/internal/vectorstore"
)

const DefaultTopK = 4

// Retriever finds the chunks of one index nearest to a query.
type Retriever struct {
	index    vectorstore.Index
	embedder domain.Embedder
}

// NewRetriever binds an index to the embedder it was built with. Query
// vectors are cached for cacheTTL; zero disables the cache.
func NewRetriever(index vectorstore.Index, embedder domain.Embedder, cacheTTL time.Duration) *Retriever {
	return &Retriever{
		index:    index,
		embedder: embedding.NewCachedEmbedder(embedder, cacheTTL),
	}
}

// Retrieve returns up to k results ordered by non-increasing score. A
// non-positive k means DefaultTopK.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vecs))
	}
	vec := vecs[0]

	if isZero(vec) {
		ctxzap.Debug(ctx, "query shares no terms with the index, using lexical overlap")
		return lexicalSearch(r.index.Chunks(), query, k), nil
	}
	res, err := r.index.Search(vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	allZero := true
	for _, sr := range res {
		if sr.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return lexicalSearch(r.index.Chunks(), query, k), nil
	}
	ctxzap.Debug(ctx, "retrieved chunks", zap.Int("count", len(res)))
	return res, nil
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

func lexicalSearch(chunks []domain.Chunk, query string, topK int) []domain.SearchResult {
	qset := toTokenSet(query)
	out := make([]domain.SearchResult, len(chunks))
	for i, ch := range chunks {
		out[i] = domain.SearchResult{Chunk: ch, Score: overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > len(out) {
		topK = len(out)
	}
	return out[:topK]
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct tokens.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := toTokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
