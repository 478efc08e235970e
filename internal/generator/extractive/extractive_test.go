package extractive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
)

const notes = `The reactor was commissioned in 1974.
Its cooling system uses heavy water. Staff rotate every twelve hours.

The cooling pumps were replaced in 2009 after an inspection.`

func TestGenerator_PicksMatchingSentences(t *testing.T) {
	g := New(2)
	answer, err := g.Generate(context.Background(), "When were the cooling pumps replaced?", notes)
	require.NoError(t, err)
	assert.Contains(t, answer, "The cooling pumps were replaced in 2009 after an inspection.")
	assert.NotContains(t, answer, "Staff rotate")
}

func TestGenerator_KeepsOriginalOrder(t *testing.T) {
	g := New(2)
	answer, err := g.Generate(context.Background(), "cooling system pumps", notes)
	require.NoError(t, err)
	assert.Equal(t, "Its cooling system uses heavy water. The cooling pumps were replaced in 2009 after an inspection.", answer)
}

func TestGenerator_NoOverlap(t *testing.T) {
	answer, err := New(3).Generate(context.Background(), "What is the capital of Peru?", notes)
	require.NoError(t, err)
	assert.Equal(t, NotFound, answer)

	answer, err = New(3).Generate(context.Background(), "anything", "  ")
	require.NoError(t, err)
	assert.Equal(t, NotFound, answer)
}

func TestGenerator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(1).Generate(ctx, "q", notes)
	assert.True(t, errors.Is(err, domain.ErrGeneration))
}
