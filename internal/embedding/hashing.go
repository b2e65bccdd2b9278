package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
)

const DefaultHashingDimension = 384

// Hashing is an offline embedder: each lowercased word and word bigram is
// hashed into a signed bucket and the result is scaled to unit length.
// Identical text always gives an identical vector.
type Hashing struct {
	dim int
}

func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = DefaultHashingDimension
	}
	return &Hashing{dim: dim}
}

func (h *Hashing) Model() string {
	return fmt.Sprintf("hashing-%d", h.dim)
}

func (h *Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc := make([]float64, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, w := range words {
		h.add(acc, w, 1)
		if i > 0 {
			h.add(acc, words[i-1]+" "+w, 0.5)
		}
	}

	if norm := floats.Norm(acc, 2); norm > 0 {
		floats.Scale(1/norm, acc)
	}

	out := make([]float32, h.dim)
	for i, v := range acc {
		out[i] = float32(v)
	}
	return out, nil
}

func (h *Hashing) add(acc []float64, feature string, weight float64) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()

	bucket := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	acc[bucket] += weight
}
