package embed

import (
	"context"
	"fmt"
	"hash/fnv"
)

// DefaultNgramDim is the vector width of the n-gram encoder.
const DefaultNgramDim = 512

// NgramEncoder hashes character trigrams of each word into a fixed number of
// buckets. It needs no model files and is used when no ONNX model is
// configured.
type NgramEncoder struct {
	dim int
}

// NewNgramEncoder returns an encoder producing vectors of width dim.
func NewNgramEncoder(dim int) *NgramEncoder {
	if dim <= 0 {
		dim = DefaultNgramDim
	}
	return &NgramEncoder{dim: dim}
}

// Encode returns the L2-normalised trigram histogram of text.
func (e *NgramEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dim)
	for _, word := range splitWords(Normalize(text)) {
		runes := []rune("^" + word + "$")
		for i := 0; i+3 <= len(runes); i++ {
			vec[bucket(string(runes[i:i+3]), e.dim)]++
		}
		// Whole-word feature so short tokens still overlap.
		vec[bucket("w:"+word, e.dim)] += 2
	}
	l2Normalize(vec)
	return vec, nil
}

// ModelID identifies the encoder in cache keys.
func (e *NgramEncoder) ModelID() string {
	return fmt.Sprintf("ngram-%d", e.dim)
}

// Close is a no-op.
func (e *NgramEncoder) Close() error { return nil }

func bucket(s string, dim int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(dim))
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	for _, r := range s {
		if isWordRune(r) {
			cur = append(cur, r)
			continue
		}
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}

func isWordRune(r rune) bool {
	return r == '\'' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127
}
