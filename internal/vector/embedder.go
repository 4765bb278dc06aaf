package vector

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEmbedder embeds text by feature-hashing tokens and token pairs
// into a fixed-width vector. It is deterministic and dependency-free,
// which makes semantic search usable out of the box and exactly
// reproducible in tests. Scores reflect token overlap rather than
// meaning; swap in a model-backed Embedder for real semantics.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder returns an embedder producing dim-wide vectors
// (DefaultDimension when dim <= 0).
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &LocalEmbedder{dim: dim}
}

// Dimension returns the width of produced vectors.
func (e *LocalEmbedder) Dimension() int {
	return e.dim
}

// Embed produces an L2-normalized embedding of text. Empty or
// token-free text yields the zero vector, which scores 0 against
// everything.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vec, nil
	}

	for i, tok := range tokens {
		e.addFeature(vec, tok)
		if i+1 < len(tokens) {
			e.addFeature(vec, tok+" "+tokens[i+1])
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// addFeature hashes one feature into its bucket. The highest hash bit
// picks the sign so colliding features cancel rather than pile up.
func (e *LocalEmbedder) addFeature(vec []float32, feature string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum32()
	idx := int(sum % uint32(e.dim))
	if sum&0x80000000 != 0 {
		vec[idx]--
	} else {
		vec[idx]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Cosine returns the cosine similarity of two vectors, 0 when either
// is zero-length or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
