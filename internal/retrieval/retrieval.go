// Package retrieval builds an in-memory, embedding-indexed view of a paged
// document and answers top-k similarity queries against it.
package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/storytrace/internal/embed"
	"github.com/dshills/storytrace/internal/schema"
)

// Default chunking parameters, in characters.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 200
)

// Chunk is a window of page text tagged with its source page.
type Chunk struct {
	Page int
	Text string
}

// Hit is a retrieved chunk with its cosine similarity to the query.
type Hit struct {
	Page  int
	Text  string
	Score float64
}

// Chunks splits each page into overlapping windows of size characters, each
// starting overlap characters before the previous one ended. The final
// window of a page ends exactly at the page end. Empty pages yield nothing.
func Chunks(pages []schema.Page, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	for _, p := range pages {
		text := []rune(p.Text)
		for i := 0; i < len(text); {
			j := min(len(text), i+size)
			chunks = append(chunks, Chunk{Page: p.Number, Text: string(text[i:j])})
			if j == len(text) {
				break
			}
			i = j - overlap
		}
	}
	return chunks
}

// Index holds chunks and their embeddings. It is built once per run and is
// read-only afterwards.
type Index struct {
	embedder embed.Embedder
	chunks   []Chunk
	vecs     [][]float32
}

// Build embeds every chunk in one bulk call and returns the index.
func Build(ctx context.Context, e embed.Embedder, chunks []Chunk) (*Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := e.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedding chunks: got %d vectors for %d chunks", len(vecs), len(chunks))
	}
	return &Index{embedder: e, chunks: chunks, vecs: vecs}, nil
}

// Len returns the number of indexed chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Retrieve returns the topK chunks most similar to query, by descending
// score. Equal scores keep chunk order.
func (ix *Index) Retrieve(ctx context.Context, query string, topK int) ([]Hit, error) {
	q, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits := make([]Hit, len(ix.chunks))
	for i, c := range ix.chunks {
		hits[i] = Hit{Page: c.Page, Text: c.Text, Score: embed.Cosine(q, ix.vecs[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if topK >= 0 && topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}
