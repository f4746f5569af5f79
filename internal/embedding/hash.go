// ABOUTME: Deterministic feature-hashing embedder that needs no network
// ABOUTME: Token and bigram hashes are folded into signed buckets and L2-normalized

package embedding

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/crypto/blake2b"
)

// HashEngine embeds text by hashing its tokens into a fixed number of buckets.
// Texts sharing words land close together, which is enough for analogy recall
// when no embedding service is configured.
type HashEngine struct {
	dims int
}

// NewHashEngine creates a hashing embedder with dims buckets (default 256).
func NewHashEngine(dims int) *HashEngine {
	if dims < 1 {
		dims = 256
	}
	return &HashEngine{dims: dims}
}

// Embed implements Engine.
func (e *HashEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return nil, fmt.Errorf("nothing to embed")
	}

	vec := make([]float64, e.dims)
	add := func(feature string, weight float64) {
		sum := blake2b.Sum256([]byte(feature))
		h := binary.LittleEndian.Uint64(sum[:8])
		bucket := int(h % uint64(e.dims))
		if sum[8]&1 == 1 {
			weight = -weight
		}
		vec[bucket] += weight
	}
	for i, tok := range tokens {
		add(tok, 1)
		if i > 0 {
			add(tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dims)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// Dimensions implements Engine.
func (e *HashEngine) Dimensions() int { return e.dims }

// Name implements Engine.
func (e *HashEngine) Name() string { return "hash" }
