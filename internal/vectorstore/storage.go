// Package vectorstore holds helpers shared by the VectorIndex adapters.
package vectorstore

import (
	"math"
	"sort"

	"librarian/internal/domain"
)

// CheckDimension rejects vectors whose length differs from the index dimension.
func CheckDimension(op string, dimension int, vectors ...[]float64) error {
	if dimension <= 0 {
		return domain.Errorf(domain.ErrIndex, op, "index not initialised")
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return domain.Errorf(domain.ErrIndex, op, "vector %d has dimension %d, index expects %d", i, len(v), dimension)
		}
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 if either is a zero vector.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// RankTopK scores every record against query and returns the best topK
// matches by descending score. Records with equal scores keep their input order.
func RankTopK(records []domain.Record, query []float64, topK int) []domain.Match {
	matches := make([]domain.Match, len(records))
	for i, r := range records {
		matches[i] = domain.Match{ID: r.ID, Score: Cosine(query, r.Vector), Metadata: r.Metadata}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches
}
