// Package embed turns text into vectors for retrieval, duplicate detection
// and regulatory clause matching.
package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when an embedding provider cannot be constructed.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder embeds documents in bulk and single queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// New parses an embedder name and returns the matching Embedder.
// Supported forms: "openai:<model>", "lexical" and "lexical:<dims>".
func New(name string) (Embedder, error) {
	kind, arg, _ := strings.Cut(name, ":")
	switch kind {
	case "openai":
		if arg == "" {
			return nil, fmt.Errorf("%w: openai embedder needs a model (e.g. openai:text-embedding-3-small)", ErrUnavailable)
		}
		return NewOpenAI(arg)
	case "lexical":
		dims := DefaultLexicalDims
		if arg != "" {
			n, err := strconv.Atoi(arg)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: invalid lexical dimensions %q", ErrUnavailable, arg)
			}
			dims = n
		}
		return NewLexical(dims), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder %q: supported embedders are openai, lexical", ErrUnavailable, name)
	}
}

// Cosine returns the cosine similarity of a and b. A zero-norm vector, or
// vectors of different length, score 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
