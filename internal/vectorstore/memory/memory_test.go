package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
)

func rec(id, source string, vec ...float64) domain.Record {
	return domain.Record{ID: id, Vector: vec, Metadata: domain.Metadata{Text: id, Source: source}}
}

func TestStorage_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))

	require.NoError(t, s.Upsert(ctx, []domain.Record{
		rec("a_0", "a", 1, 0),
		rec("b_0", "b", 0, 1),
		rec("c_0", "c", 1, 1),
	}))

	matches, err := s.Query(ctx, []float64{0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a_0", matches[0].ID)
	assert.Equal(t, "c_0", matches[1].ID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.Equal(t, "a", matches[0].Metadata.Source)
}

func TestStorage_UpsertOverwritesByID(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))

	require.NoError(t, s.Upsert(ctx, []domain.Record{rec("a_0", "a", 1, 0)}))
	require.NoError(t, s.Upsert(ctx, []domain.Record{rec("a_0", "a", 0, 1)}))

	assert.Equal(t, 1, s.Len())
	got, ok := s.Get("a_0")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1}, got.Vector)
}

func TestStorage_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 3))

	err := s.Upsert(ctx, []domain.Record{rec("ok", "d", 1, 2, 3), rec("bad", "d", 1, 2)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrIndex))
	assert.Equal(t, 0, s.Len(), "a rejected batch must not be partially applied")

	_, err = s.Query(ctx, []float64{1, 2}, 5)
	assert.True(t, errors.Is(err, domain.ErrIndex))
}

func TestStorage_QueryBeforeInit(t *testing.T) {
	_, err := NewStorage().Query(context.Background(), []float64{1}, 1)
	assert.True(t, errors.Is(err, domain.ErrIndex))
}

func TestStorage_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Record{
		rec("a_0", "a", 1, 0),
		rec("a_1", "a", 1, 0),
		rec("b_0", "b", 0, 1),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "a"))

	assert.Equal(t, 1, s.Len())
	matches, err := s.Query(ctx, []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b_0", matches[0].ID)
}

func TestStorage_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Record{
		rec("first", "d", 1, 0),
		rec("second", "d", 2, 0),
		rec("third", "d", 3, 0),
	}))

	matches, err := s.Query(ctx, []float64{1, 0}, 3)
	require.NoError(t, err)
	ids := []string{matches[0].ID, matches[1].ID, matches[2].ID}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestStorage_InitRejectsDimensionChange(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.Record{rec("a_0", "a", 1, 0)}))

	assert.Error(t, s.Init(ctx, 4))
	assert.NoError(t, s.Init(ctx, 2))
}
