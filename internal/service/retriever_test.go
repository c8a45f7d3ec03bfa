package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pdfchat/internal/domain"
	"pdfchat/internal/embedding"
	"pdfchat/internal/embedding/tfidf"
)

func buildChunks(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{DocumentID: "d", ChunkID: fmt.Sprintf("d:%d", i), Index: i, Text: t}
	}
	return out
}

func TestRetrieve_atMostKNonIncreasing(t *testing.T) {
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("section %d talks about topic%d and shared words", i, i%3)
	}
	index, emb, err := NewIndexer(embedding.NewMockEmbedder(32), 3).Build(context.Background(), buildChunks(texts...), nil)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRetriever(index, emb, 0)
	for _, q := range []string{"topic1", "shared words", "unrelated"} {
		res, err := r.Retrieve(context.Background(), q, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != DefaultTopK {
			t.Errorf("%q: got %d results", q, len(res))
		}
		for i := 1; i < len(res); i++ {
			if res[i].Score > res[i-1].Score {
				t.Errorf("%q: scores increase at %d", q, i)
			}
		}
	}
}

func TestRetrieve_smallIndex(t *testing.T) {
	index, emb, err := NewIndexer(embedding.NewMockEmbedder(8), 0).Build(context.Background(), buildChunks("one", "two"), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := NewRetriever(index, emb, 0).Retrieve(context.Background(), "one", 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Errorf("got %d results, want 2", len(res))
	}
}

func TestRetrieve_cachesQueryVectors(t *testing.T) {
	inner := embedding.NewMockEmbedder(8)
	index, emb, err := NewIndexer(inner, 0).Build(context.Background(), buildChunks("a", "b"), nil)
	if err != nil {
		t.Fatal(err)
	}
	before := inner.Calls()
	r := NewRetriever(index, emb, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := r.Retrieve(context.Background(), "same question", 2); err != nil {
			t.Fatal(err)
		}
	}
	if got := inner.Calls() - before; got != 1 {
		t.Errorf("query embedded %d times, want 1", got)
	}
}

func TestRetrieve_lexicalFallbackOnZeroVector(t *testing.T) {
	chunks := buildChunks(
		"alpha beta gamma",
		"delta epsilon",
		"zeta eta theta",
	)
	index, emb, err := NewIndexer(tfidf.NewEmbedder(), 0).Build(context.Background(), chunks, nil)
	if err != nil {
		t.Fatal(err)
	}
	// "the" is a stopword, so the TF-IDF query vector is all zeros.
	res, err := NewRetriever(index, emb, 0).Retrieve(context.Background(), "the", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results", len(res))
	}
	if res[0].Chunk.Index != 0 || res[1].Chunk.Index != 1 {
		t.Errorf("ties should keep document order: %+v", res)
	}
}

func TestOverlapOchiai(t *testing.T) {
	q := toTokenSet("launch code")
	if got := overlapOchiai(q, "the launch code is 7341"); got <= overlapOchiai(q, "launch window") {
		t.Errorf("full overlap should score higher, got %f", got)
	}
	if overlapOchiai(q, "") != 0 {
		t.Error("empty text must score 0")
	}
}

func TestIndexer_rejectsEmptyAndMismatchedBatches(t *testing.T) {
	_, _, err := NewIndexer(embedding.NewMockEmbedder(4), 0).Build(context.Background(), nil, nil)
	var buildErr *domain.IndexBuildError
	if !errors.As(err, &buildErr) {
		t.Errorf("empty chunks: got %v", err)
	}

	_, _, err = NewIndexer(shortEmbedder{}, 0).Build(context.Background(), buildChunks("a", "b"), nil)
	if !errors.As(err, &buildErr) {
		t.Errorf("short batch: got %v", err)
	}
}

func TestIndexer_batchesAndReportsProgress(t *testing.T) {
	inner := embedding.NewMockEmbedder(4)
	texts := make([]string, 7)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	var seen []int
	index, _, err := NewIndexer(inner, 3).Build(context.Background(), buildChunks(texts...), func(done, total int) {
		if total != 7 {
			t.Errorf("total = %d", total)
		}
		seen = append(seen, done)
	})
	if err != nil {
		t.Fatal(err)
	}
	if index.Len() != 7 || inner.Calls() != 3 {
		t.Errorf("len=%d calls=%d", index.Len(), inner.Calls())
	}
	if fmt.Sprint(seen) != "[3 6 7]" {
		t.Errorf("progress = %v", seen)
	}
}

func TestIndexer_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewIndexer(embedding.NewMockEmbedder(4), 0).Build(ctx, buildChunks("a"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

type shortEmbedder struct{}

func (shortEmbedder) Name() string { return "short" }

func (shortEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	return [][]float64{{1}}, nil
}
