// Package embedding owns the process-wide embedding model and its adapters.
package embedding

import (
	"context"
	"sync"

	"librarian/internal/domain"
)

// Loader constructs and warms up an embedding model.
type Loader func(ctx context.Context) (domain.Embedder, error)

// Shared is a lazily loaded embedding model reused for the life of the process.
//
// The model is loaded on the first Embed call. A load failure is remembered and
// returned to every later caller; it is never retried. Shared is safe for
// concurrent use. When serialize is set, calls into the model are funnelled
// through a single slot for runtimes that cannot embed concurrently.
type Shared struct {
	load      Loader
	name      string
	dimension int
	serialize bool

	once  sync.Once
	model domain.Embedder
	err   error
	slot  sync.Mutex
}

// Option configures a Shared embedder.
type Option func(*Shared)

// WithSerializedAccess allows only one Embed call into the model at a time.
func WithSerializedAccess() Option {
	return func(s *Shared) { s.serialize = true }
}

// NewShared wraps load. name and dimension come from configuration; every
// vector the model returns must have exactly dimension entries.
func NewShared(name string, dimension int, load Loader, opts ...Option) *Shared {
	s := &Shared{load: load, name: name, dimension: dimension}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Static wraps an already constructed model.
func Static(model domain.Embedder, opts ...Option) *Shared {
	return NewShared(model.Name(), model.Dimension(), func(context.Context) (domain.Embedder, error) {
		return model, nil
	}, opts...)
}

func (s *Shared) Name() string   { return s.name }
func (s *Shared) Dimension() int { return s.dimension }

// Load forces model initialisation and returns the (cached) load error.
func (s *Shared) Load(ctx context.Context) error {
	_, err := s.get(ctx)
	return err
}

func (s *Shared) get(ctx context.Context) (domain.Embedder, error) {
	s.once.Do(func() {
		if s.dimension <= 0 {
			s.err = domain.Errorf(domain.ErrConfiguration, "load embedder", "embedding dimension must be > 0, got %d", s.dimension)
			return
		}
		model, err := s.load(ctx)
		if err != nil {
			s.err = domain.Wrap(domain.ErrEmbedding, "load embedder "+s.name, err)
			return
		}
		if d := model.Dimension(); d > 0 && d != s.dimension {
			s.err = domain.Errorf(domain.ErrConfiguration, "load embedder "+s.name, "model dimension %d does not match configured dimension %d", d, s.dimension)
			return
		}
		s.model = model
	})
	return s.model, s.err
}

// Embed returns one vector per text, in input order.
func (s *Shared) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	model, err := s.get(ctx)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	if s.serialize {
		s.slot.Lock()
		defer s.slot.Unlock()
	}
	vectors, err := model.Embed(ctx, texts)
	if err != nil {
		return nil, domain.Wrap(domain.ErrEmbedding, "embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, domain.Errorf(domain.ErrEmbedding, "embed", "model returned %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != s.dimension {
			return nil, domain.Errorf(domain.ErrEmbedding, "embed", "vector %d has dimension %d, want %d", i, len(v), s.dimension)
		}
	}
	return vectors, nil
}

// Ping reports whether the model loaded.
func (s *Shared) Ping(ctx context.Context) error { return s.Load(ctx) }

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float64, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, domain.Errorf(domain.ErrEmbedding, "embed", "expected 1 vector, got %d", len(vectors))
	}
	return vectors[0], nil
}
