package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// Feature weights for the hash-based embedding. Word features carry most
// of the signal; character trigrams add tolerance for typos and inflection.
const (
	tokenWeight   = 0.7
	trigramWeight = 0.3
)

// StaticEmbedder produces deterministic embeddings by hashing word and
// character-trigram features into a fixed-width vector. It captures no
// semantics, but it works offline with zero dependencies, which makes it
// the fallback when no Ollama server is reachable and the workhorse for
// tests.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a hash-based embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates a deterministic embedding for the text.
// Empty or whitespace-only input yields the zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, StaticDimensions)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for _, tok := range tokens {
		vec[hashToIndex(tok, StaticDimensions)] += tokenWeight
		for _, tri := range trigrams(tok) {
			vec[hashToIndex(tri, StaticDimensions)] += trigramWeight
		}
	}

	return normalizeVector(vec), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the fixed vector width.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName returns the static model identifier.
func (e *StaticEmbedder) ModelName() string {
	return "static-hash-256"
}

// Available always reports true; the static embedder has no dependencies.
func (e *StaticEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// tokenize lowercases the text and splits it into alphanumeric runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// trigrams returns the character 3-grams of a token. Tokens shorter than
// three runes contribute themselves as a single feature.
func trigrams(token string) []string {
	runes := []rune(token)
	if len(runes) < 3 {
		return []string{token}
	}
	grams := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+3]))
	}
	return grams
}

// hashToIndex maps a feature string onto a vector slot via FNV-64.
func hashToIndex(s string, dims int) int {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(dims))
}
