// Package retriever turns a question into the relevant context for answering it.
package retriever

import (
	"context"
	"strings"

	"librarian/internal/domain"
	"librarian/internal/embedding"
)

const (
	DefaultTopK      = 5
	DefaultThreshold = 0.4
)

// Retriever embeds questions and looks them up in a vector index.
type Retriever struct {
	embedder domain.Embedder
	index    domain.VectorIndex
}

func New(embedder domain.Embedder, index domain.VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Retrieve returns the context built from the topK nearest chunks scoring
// strictly above threshold. An empty context is a normal outcome; errors
// are reserved for embedding and index failures.
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, threshold float64) (domain.RetrievalContext, error) {
	vec, err := embedding.EmbedOne(ctx, r.embedder, question)
	if err != nil {
		return domain.RetrievalContext{}, domain.Wrap(domain.ErrEmbedding, "retrieve", err)
	}
	matches, err := r.index.Query(ctx, vec, topK)
	if err != nil {
		return domain.RetrievalContext{}, domain.Wrap(domain.ErrIndex, "retrieve", err)
	}
	return BuildContext(FilterMatches(matches, threshold)), nil
}

// FilterMatches keeps matches with score strictly greater than threshold,
// preserving their order.
func FilterMatches(matches []domain.Match, threshold float64) []domain.Match {
	kept := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		if m.Score > threshold {
			kept = append(kept, m)
		}
	}
	return kept
}

// BuildContext concatenates match texts, each followed by a blank line, and
// collects distinct sources in first-seen order.
func BuildContext(matches []domain.Match) domain.RetrievalContext {
	var b strings.Builder
	var sources []string
	seen := map[string]struct{}{}
	for _, m := range matches {
		b.WriteString(m.Metadata.Text)
		b.WriteString("\n\n")
		if _, ok := seen[m.Metadata.Source]; !ok {
			seen[m.Metadata.Source] = struct{}{}
			sources = append(sources, m.Metadata.Source)
		}
	}
	return domain.RetrievalContext{Text: b.String(), Sources: sources}
}
