package semantic

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HendryAvila/sage/internal/config"
)

func TestHashEmbedder_DeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Load configuration from YAML files")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Load configuration from YAML files")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_RelatedTextScoresHigher(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "parse config file")
	related, _ := e.Embed(ctx, "the config file loader reads yaml")
	unrelated, _ := e.Embed(ctx, "chocolate cake recipe")

	sr, err := CosineSimilarity(q, related)
	require.NoError(t, err)
	su, err := CosineSimilarity(q, unrelated)
	require.NoError(t, err)
	assert.Greater(t, sr, su)
}

func TestHashEmbedder_SplitsIdentifiers(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "config")
	ident, _ := e.Embed(ctx, "parseConfigFile")

	s, err := CosineSimilarity(q, ident)
	require.NoError(t, err)
	assert.Greater(t, s, 0.0)
}

func TestHashEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	v, err := NewHashEmbedder(0).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 256)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestCosineSimilarity(t *testing.T) {
	s, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s, 1e-9)

	s, err = CosineSimilarity([]float32{1, 0}, []float32{0, 0})
	require.NoError(t, err)
	assert.Zero(t, s)

	_, err = CosineSimilarity([]float32{1}, []float32{1, 2})
	assert.Error(t, err)
}

func TestNewEmbedder(t *testing.T) {
	e, err := NewEmbedder(config.Embedding{Provider: "local", Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())

	e, err = NewEmbedder(config.Embedding{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama:embeddinggemma", e.Name())

	_, err = NewEmbedder(config.Embedding{Provider: "genai"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewEmbedder(config.Embedding{Provider: "word2vec"})
	assert.Error(t, err)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.5, 0.25}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic")
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.5, 0.25}, vecs[1])
}

func TestOllamaEmbedder_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "missing").Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
