package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
)

func newTestStorage(t *testing.T, dim int) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := NewStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Init(context.Background(), dim))
	return s, path
}

func rec(id, source string, chunk int, vec ...float64) domain.Record {
	return domain.Record{ID: id, Vector: vec, Metadata: domain.Metadata{Text: "text of " + id, Source: source, ChunkID: chunk}}
}

func TestStorage_UpsertQueryDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, 2)

	require.NoError(t, s.Upsert(ctx, []domain.Record{
		rec("a_0", "a", 0, 1, 0),
		rec("a_1", "a", 1, 1, 1),
		rec("b_0", "b", 0, 0, 1),
	}))

	matches, err := s.Query(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a_0", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, domain.Metadata{Text: "text of a_0", Source: "a", ChunkID: 0}, matches[0].Metadata)
	assert.Equal(t, "a_1", matches[1].ID)

	require.NoError(t, s.DeleteDocument(ctx, "a"))
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorage_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, 2)

	require.NoError(t, s.Upsert(ctx, []domain.Record{rec("a_0", "a", 0, 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.Record{rec("a_0", "a", 0, 0, 1)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	matches, err := s.Query(ctx, []float64{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestStorage_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, 3)

	err := s.Upsert(ctx, []domain.Record{rec("x", "d", 0, 1, 2)})
	assert.True(t, errors.Is(err, domain.ErrIndex))

	_, err = s.Query(ctx, []float64{1}, 1)
	assert.True(t, errors.Is(err, domain.ErrIndex))
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStorage(t, 2)
	require.NoError(t, s.Upsert(ctx, []domain.Record{rec("a_0", "a", 0, 0.6, 0.8)}))
	require.NoError(t, s.Close())

	reopened, err := NewStorage(path)
	require.NoError(t, err)
	defer reopened.Close()

	err = reopened.Init(ctx, 4)
	assert.True(t, errors.Is(err, domain.ErrConfiguration), "stored dimension must win over a different configured one")

	require.NoError(t, reopened.Init(ctx, 2))
	matches, err := reopened.Query(ctx, []float64{0.6, 0.8}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a_0", matches[0].ID)
}

func TestStorage_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStorage(t, 2)
	require.NoError(t, s.Upsert(ctx, []domain.Record{
		rec("first", "d", 0, 1, 0),
		rec("second", "d", 1, 2, 0),
	}))
	matches, err := s.Query(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "first", matches[0].ID)
	assert.Equal(t, "second", matches[1].ID)
}

func TestVectorEncoding(t *testing.T) {
	v := []float64{0, -1.5, 3.25e-9, 42}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
}
