package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const stemLength = 6

// HashProvider is a deterministic offline provider: words are lower-cased,
// cut to a short stem and hashed into a fixed number of buckets. Texts that
// share words land close together, which is enough for tests and dry runs.
type HashProvider struct {
	dimensions int
}

func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

func (p *HashProvider) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if r := []rune(w); len(r) > stemLength {
			w = string(r[:stemLength])
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(p.dimensions)]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum == 0 {
		// keep the vector usable for cosine similarity
		vec[0] = 1
		return vec, nil
	}
	norm := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= norm
	}
	return vec, nil
}
