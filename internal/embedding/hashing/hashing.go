package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDimension matches the sentence-transformer models usually paired with
// the default index configuration.
const DefaultDimension = 384

// Embedder maps text into a fixed number of buckets using signed feature hashing
// over unigrams and adjacent word pairs. It needs no corpus preparation, so the
// same text always yields the same vector regardless of what was ingested before.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewEmbedder creates a hashing embedder producing vectors of the given dimension.
func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes one L2-normalised vector per input text.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) []float64 {
	vec := make([]float64, e.dimension)
	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return vec
	}
	tf := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		tf[tok]++
		if i > 0 {
			tf[tokens[i-1]+" "+tok]++
		}
	}
	for feature, count := range tf {
		idx, sign := e.bucket(feature)
		// Sublinear TF dampens repeated terms
		vec[idx] += sign * (1 + math.Log(float64(count)))
	}
	// L2 normalize
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func (e *Embedder) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dimension)), sign
}

func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "how", "why", "when", "where", "does", "do", "did",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
