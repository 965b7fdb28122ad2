package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestCosine_ZeroNormIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Cosine([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, Cosine([]float32{1, 2, 3}, []float32{0, 0, 0}))
	assert.Equal(t, 0.0, Cosine(nil, nil))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
}

func TestLexical_Deterministic(t *testing.T) {
	l := NewLexical(64)
	ctx := context.Background()

	vecs, err := l.EmbedDocuments(ctx, []string{"Audit trail for chart edits", "audit TRAIL for chart edits!", "encrypt data at rest"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], 64)
	assert.InDelta(t, 1.0, Cosine(vecs[0], vecs[1]), 1e-9)
	assert.Less(t, Cosine(vecs[0], vecs[2]), 1.0)

	q, err := l.EmbedQuery(ctx, "Audit trail for chart edits")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], q)
}

func TestLexical_EmptyTextIsZeroVector(t *testing.T) {
	q, err := NewLexical(8).EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), q)
}

func TestNew(t *testing.T) {
	e, err := New("lexical")
	require.NoError(t, err)
	assert.IsType(t, &Lexical{}, e)

	e, err = New("lexical:32")
	require.NoError(t, err)
	assert.Equal(t, 32, e.(*Lexical).dims)

	_, err = New("lexical:zero")
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = New("vertex:text-embedding-005")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewOpenAI_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New("openai:text-embedding-3-small")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenAI_EmbedDocumentsOrdersByIndex(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotModel = body.Model

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	orig := openaiBaseURL
	SetOpenAIBaseURL(srv.URL)
	t.Cleanup(func() { SetOpenAIBaseURL(orig) })
	t.Setenv("OPENAI_API_KEY", "test-key")

	e, err := NewOpenAI("text-embedding-3-small")
	require.NoError(t, err)
	vecs, err := e.EmbedDocuments(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-3-small", gotModel)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAI_HTTPErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	orig := openaiBaseURL
	SetOpenAIBaseURL(srv.URL)
	t.Cleanup(func() { SetOpenAIBaseURL(orig) })
	t.Setenv("OPENAI_API_KEY", "test-key")

	e, err := NewOpenAI("text-embedding-3-small")
	require.NoError(t, err)
	_, err = e.EmbedQuery(context.Background(), "q")
	assert.Error(t, err)
}
