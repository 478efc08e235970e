package memory

import (
	"context"
	"sync"

	"librarian/internal/domain"
	"librarian/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
// Records are kept in first-insertion order so equal scores rank deterministically.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	order     []string
	records   map[string]domain.Record
}

func NewStorage() *Storage { return &Storage{records: make(map[string]domain.Record)} }

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "memory init", "invalid dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension && len(s.records) > 0 {
		return domain.Errorf(domain.ErrIndex, "memory init", "index holds %d-dimensional vectors, cannot switch to %d", s.dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

// Upsert validates every vector before applying any of them.
func (s *Storage) Upsert(_ context.Context, records []domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vectors := make([][]float64, len(records))
	for i, r := range records {
		vectors[i] = r.Vector
	}
	if err := vectorstore.CheckDimension("memory upsert", s.dimension, vectors...); err != nil {
		return err
	}
	for _, r := range records {
		if _, ok := s.records[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		r.Vector = append([]float64(nil), r.Vector...)
		s.records[r.ID] = r
	}
	return nil
}

func (s *Storage) Query(_ context.Context, vector []float64, topK int) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := vectorstore.CheckDimension("memory query", s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	all := make([]domain.Record, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, s.records[id])
	}
	return vectorstore.RankTopK(all, vector, topK), nil
}

func (s *Storage) DeleteDocument(_ context.Context, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	for _, id := range s.order {
		if s.records[id].Metadata.Source == source {
			delete(s.records, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

// Len returns the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns a stored record by id.
func (s *Storage) Get(id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *Storage) Ping(context.Context) error { return nil }
