// Package extractive answers without a language model by quoting the context
// sentences that best match the question.
package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"librarian/internal/domain"
)

// NotFound is returned when no context sentence shares a content word with the question.
const NotFound = "The answer isn't in the provided context."

var (
	tokenPattern    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// Generator ranks context sentences by question-term overlap, weighted by how
// rare each term is within the context.
type Generator struct {
	maxSentences int
	stopwords    map[string]struct{}
}

func New(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Generator{maxSentences: maxSentences, stopwords: defaultStopwords()}
}

func (g *Generator) Name() string { return "extractive" }

func (g *Generator) Generate(ctx context.Context, question, retrieved string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.Wrap(domain.ErrGeneration, "extractive generate", err)
	}
	var sentences []string
	for _, s := range sentencePattern.FindAllString(retrieved, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return NotFound, nil
	}

	terms := map[string]struct{}{}
	for _, tok := range g.tokens(question) {
		terms[tok] = struct{}{}
	}

	// Document frequency of each term across sentences.
	df := map[string]float64{}
	for _, sent := range sentences {
		seen := map[string]struct{}{}
		for _, tok := range g.tokens(sent) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, 0, len(sentences))
	n := float64(len(sentences))
	for i, sent := range sentences {
		toks := g.tokens(sent)
		s := 0.0
		for _, tok := range toks {
			if _, ok := terms[tok]; ok {
				s += math.Log(1 + n/df[tok])
			}
		}
		if s == 0 {
			continue
		}
		// Normalize by sentence length to avoid bias
		s /= math.Sqrt(float64(len(toks)))
		scores = append(scores, scored{i, s})
	}
	if len(scores) == 0 {
		return NotFound, nil
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	k := min(g.maxSentences, len(scores))

	// Keep original order among selected
	selected := make([]int, k)
	for i := range k {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, k)
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

func (g *Generator) tokens(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, ok := g.stopwords[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "whose", "when", "where", "why", "how", "do", "does", "did", "i", "you", "my", "your", "me", "tell",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
