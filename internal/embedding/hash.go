package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEngine produces deterministic pseudo-embeddings from token hashes.
// It is not a semantic model: it exists so retrieval degrades gracefully
// to lexical similarity when no embedding backend is reachable. Identical
// texts always map to identical vectors.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hash engine with the given dimensionality.
func NewHashEngine(dims int) *HashEngine {
	if dims <= 0 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed generates a deterministic embedding for text.
func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)

	tokens := tokenize(text)
	for i, tok := range tokens {
		bump(vec, tok, 1.0)
		// Bigrams carry a little word-order signal.
		if i+1 < len(tokens) {
			bump(vec, tok+" "+tokens[i+1], 0.5)
		}
	}

	normalize(vec)
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *HashEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the dimensionality of embeddings.
func (e *HashEngine) Dimensions() int {
	return e.dims
}

// Name returns the engine name.
func (e *HashEngine) Name() string {
	return "hash"
}

func (e *HashEngine) String() string { return e.Name() }

func bump(vec []float32, token string, weight float32) {
	h := fnv.New32a()
	h.Write([]byte(token))
	idx := int(h.Sum32()) % len(vec)
	if idx < 0 {
		idx += len(vec)
	}
	// Sign derived from a second hash bit keeps the vector roughly
	// zero-centered, which avoids every pair of texts looking similar.
	if h.Sum32()&1 == 0 {
		vec[idx] += weight
	} else {
		vec[idx] -= weight
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		return
	}
	mag := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= mag
	}
}
