package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"pdfchat/internal/domain"
)

const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 150
)

// defaultSeparators are tried in order: paragraphs, lines, words, then a hard
// cut between characters.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text into windows of at most size runes, preferring
// paragraph, line and word boundaries, with up to overlap runes shared between
// neighbouring chunks.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

func NewRecursiveChunker(size, overlap int) *RecursiveChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: defaultSeparators}
}

func (c *RecursiveChunker) Size() int    { return c.size }
func (c *RecursiveChunker) Overlap() int { return c.overlap }

// Chunk splits the document content and assigns stable chunk IDs.
func (c *RecursiveChunker) Chunk(document domain.Document) []domain.Chunk {
	texts := c.Split(document.Content)
	chunks := make([]domain.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, domain.Chunk{
			DocumentID: document.ID,
			ChunkID:    document.ID + ":" + strconv.Itoa(i),
			Text:       text,
			Index:      i,
		})
	}
	return chunks
}

// Split returns the chunk texts for text. Blank input yields no chunks.
func (c *RecursiveChunker) Split(text string) []string {
	return c.split(text, c.separators)
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	separator := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			separator = s
			break
		}
		if strings.Contains(text, s) {
			separator = s
			rest = separators[i+1:]
			break
		}
	}

	var final, good []string
	for _, piece := range splitKeepSeparator(text, separator) {
		if runeLen(piece) < c.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, c.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				final = append(final, t)
			}
		} else {
			final = append(final, c.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, c.merge(good)...)
	}
	return final
}

// merge packs consecutive pieces into chunks no longer than size, carrying
// trailing pieces of up to overlap runes into the next chunk.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (total+n > c.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

// splitKeepSeparator splits text on sep and re-attaches sep to the start of
// every piece after the first. An empty sep splits into single runes.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, len(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
