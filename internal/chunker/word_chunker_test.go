package chunker

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/domain"
)

func numberedWords(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return words
}

func TestChunk_ThousandWords(t *testing.T) {
	words := numberedWords(1000)
	c := NewDefault()

	chunks := c.Chunk(strings.Join(words, " "))

	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Join(words[0:800], " "), chunks[0])
	assert.Equal(t, strings.Join(words[700:1000], " "), chunks[1])
}

func TestChunk_EmptyInput(t *testing.T) {
	c := NewDefault()
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk("   \n\t  "))
}

func TestChunk_ShortTailKept(t *testing.T) {
	c, err := New(3, 1)
	require.NoError(t, err)

	chunks := c.Chunk("a b c d e f")
	assert.Equal(t, []string{"a b c", "c d e", "e f"}, chunks)
}

func TestChunk_CollapsesWhitespace(t *testing.T) {
	c, err := New(4, 0)
	require.NoError(t, err)

	chunks := c.Chunk("  alpha\tbeta\n\ngamma   delta epsilon ")
	assert.Equal(t, []string{"alpha beta gamma delta", "epsilon"}, chunks)
}

func TestChunk_ReconstructsTokens(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		size := rng.Intn(20) + 1
		overlap := rng.Intn(size)
		words := numberedWords(rng.Intn(120))

		c, err := New(size, overlap)
		require.NoError(t, err)
		chunks := c.Chunk(strings.Join(words, " "))

		var rebuilt []string
		for i, ch := range chunks {
			tokens := strings.Fields(ch)
			require.LessOrEqual(t, len(tokens), size)
			if i == 0 {
				rebuilt = append(rebuilt, tokens...)
				continue
			}
			rebuilt = append(rebuilt, tokens[overlap:]...)
		}
		if len(words) == 0 {
			assert.Empty(t, rebuilt)
			continue
		}
		assert.Equal(t, words, rebuilt, "size=%d overlap=%d n=%d", size, overlap, len(words))
	}
}

func TestChunk_Deterministic(t *testing.T) {
	text := strings.Join(numberedWords(2500), " ")
	c := NewDefault()
	assert.Equal(t, c.Chunk(text), c.Chunk(text))
}

func TestNew_InvalidParameters(t *testing.T) {
	cases := []struct {
		size, overlap int
	}{
		{0, 0},
		{-5, 0},
		{10, 10},
		{10, 11},
		{10, -1},
	}
	for _, tc := range cases {
		_, err := New(tc.size, tc.overlap)
		require.Error(t, err, "size=%d overlap=%d", tc.size, tc.overlap)
		assert.True(t, errors.Is(err, domain.ErrConfiguration))
	}
}

func TestChunkDocument_StableIDs(t *testing.T) {
	c, err := New(5, 2)
	require.NoError(t, err)
	text := strings.Join(numberedWords(12), " ")

	first := c.ChunkDocument("doc1", text)
	second := c.ChunkDocument("doc1", text)

	require.Equal(t, first, second)
	require.Len(t, first, 4)
	for i, ch := range first {
		assert.Equal(t, fmt.Sprintf("doc1_%d", i), ch.ID())
		assert.Equal(t, "doc1", ch.SourceDocument)
	}
}
