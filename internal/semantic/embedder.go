package semantic

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/HendryAvila/sage/internal/config"
)

// ErrNotConfigured marks a provider that lacks required credentials or
// endpoints. Callers treat it as reduced-capability mode, not a crash.
var ErrNotConfigured = errors.New("semantic: embedding provider not configured")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for several texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the dimensionality of produced vectors.
	Dimensions() int
	// Name identifies the engine in logs.
	Name() string
}

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg config.Embedding) (Embedder, error) {
	switch cfg.Provider {
	case "", "local":
		return NewHashEmbedder(cfg.Dimensions), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaEndpoint, cfg.OllamaModel), nil
	case "genai":
		return NewGenAIEmbedder(context.Background(), cfg.APIKey, cfg.GenAIModel)
	default:
		return nil, fmt.Errorf("semantic: unsupported embedding provider %q (use local, ollama or genai)", cfg.Provider)
	}
}

// ─── Cosine ──────────────────────────────────────────────────────────────────

// CosineSimilarity returns the cosine of the angle between a and b, in [-1,1].
// Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// ─── HashEmbedder ────────────────────────────────────────────────────────────

// HashEmbedder is a deterministic, offline embedder based on feature hashing
// of lowercased word and identifier-part tokens. It gives lexical rather than
// semantic similarity and needs no credentials, so retrieval keeps working
// when no embedding service is configured.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a HashEmbedder. dims <= 0 defaults to 256.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	counts := make(map[string]int)
	for _, tok := range hashTokens(text) {
		counts[tok]++
	}
	vec := make([]float32, e.dims)
	for tok, n := range counts {
		h := fnv.New32a()
		h.Write([]byte(tok))
		// Sublinear term frequency keeps boilerplate from dominating.
		vec[h.Sum32()%uint32(e.dims)] += float32(1 + math.Log(float64(n)))
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) Dimensions() int { return e.dims }

func (e *HashEmbedder) Name() string { return fmt.Sprintf("local:hash-%d", e.dims) }

// hashTokens splits text into lowercase words and also emits camelCase and
// snake_case parts, so "parseConfigFile" matches a query for "config".
func hashTokens(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	var out []string
	for _, w := range words {
		lw := strings.ToLower(w)
		if len(lw) < 2 || stopwords[lw] {
			continue
		}
		out = append(out, lw)
		parts := splitIdentifier(w)
		if len(parts) > 1 {
			for _, p := range parts {
				if len(p) >= 2 && !stopwords[p] {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

func splitIdentifier(w string) []string {
	var (
		parts []string
		cur   []rune
	)
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	rs := []rune(w)
	for i, r := range rs {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(rs[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true, "that": true,
	"is": true, "are": true, "to": true, "of": true, "in": true, "on": true, "an": true,
	"it": true, "be": true, "as": true, "by": true, "or": true, "at": true, "if": true,
	"what": true, "does": true, "do": true, "my": true, "how": true,
}
