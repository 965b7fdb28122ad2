package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultLexicalDims is the vector width of NewLexical when none is given.
const DefaultLexicalDims = 512

var lexicalToken = regexp.MustCompile(`[a-z0-9]+`)

// Lexical is an offline embedder that hashes lowercased word tokens into a
// fixed-width term-frequency vector. Identical token multisets embed to
// identical vectors, so it is deterministic and needs no network.
type Lexical struct {
	dims int
}

// NewLexical returns a Lexical embedder producing dims-wide vectors.
func NewLexical(dims int) *Lexical {
	if dims <= 0 {
		dims = DefaultLexicalDims
	}
	return &Lexical{dims: dims}
}

// EmbedDocuments embeds each text independently.
func (l *Lexical) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = l.vector(t)
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (l *Lexical) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return l.vector(text), nil
}

func (l *Lexical) vector(text string) []float32 {
	v := make([]float32, l.dims)
	for _, tok := range lexicalToken.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		v[h.Sum32()%uint32(l.dims)]++
	}
	return v
}
