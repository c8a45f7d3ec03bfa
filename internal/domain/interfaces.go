package domain

import "context"

// Document is a loaded PDF together with its extracted plain text.
type Document struct {
	ID      string
	Path    string
	Content string
	Pages   int
}

// Chunk is a bounded window of a document's text used as the unit of retrieval.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Text       string
	Index      int
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Turn is one completed question/answer exchange.
type Turn struct {
	Question string
	Answer   string
}

// AnswerResult is the outcome of answering a single question.
type AnswerResult struct {
	Answer string
	// StandaloneQuestion is the question used for retrieval. It equals the
	// asked question unless it was condensed against the history.
	StandaloneQuestion string
	Sources            []SearchResult
}

// LoadResult describes a document that was indexed and is ready for questions.
type LoadResult struct {
	Document Document
	Chain    Chain
	Chunks   int
	Summary  string
}

// ProgressFunc reports indexing progress as processed/total chunks.
type ProgressFunc func(done, total int)

// Embedder converts text into numeric vectors.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// CorpusFitter is implemented by embedders that must learn from the indexed
// corpus before use. Fit returns a new embedder and leaves the receiver untouched.
type CorpusFitter interface {
	Fit(corpus []string) (Embedder, error)
}

// Completer produces a chat completion for a prompt following prior turns.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string, history []Turn) (string, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) []Chunk
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Chain answers questions about a single indexed document.
type Chain interface {
	Answer(ctx context.Context, query string, history []Turn) (*AnswerResult, error)
}
