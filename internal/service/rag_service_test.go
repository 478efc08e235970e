package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarian/internal/chunker"
	"librarian/internal/domain"
	"librarian/internal/embedding/hashing"
	"librarian/internal/extract"
	"librarian/internal/vectorstore/memory"
)

// scriptedEmbedder maps texts to vectors with a caller-supplied function.
type scriptedEmbedder struct {
	dim int
	fn  func(string) []float64
	err error
}

func (e *scriptedEmbedder) Name() string   { return "scripted" }
func (e *scriptedEmbedder) Dimension() int { return e.dim }
func (e *scriptedEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = e.fn(t)
	}
	return out, nil
}

type countingGenerator struct {
	calls   int
	answer  string
	err     error
	context string
}

func (g *countingGenerator) Generate(_ context.Context, _, retrieved string) (string, error) {
	g.calls++
	g.context = retrieved
	return g.answer, g.err
}

type failingPinger struct{ countingGenerator }

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func words(prefix string, n int) string {
	ws := make([]string, n)
	for i := range ws {
		ws[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(ws, " ")
}

func newHashingService(t *testing.T, gen domain.AnswerGenerator) (*RAGService, *memory.Storage) {
	t.Helper()
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewDefault(), hashing.NewEmbedder(256), store, gen, extract.New(), DefaultOptions())
	return svc, store
}

func TestAnswer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	topicA := []float64{0.7, 0, math.Sqrt(1 - 0.49)}
	unrelated := []float64{0.2, 0, math.Sqrt(1 - 0.04)}
	emb := &scriptedEmbedder{dim: 3, fn: func(text string) []float64 {
		switch {
		case strings.HasPrefix(text, "w0 "):
			return []float64{1, 0, 0}
		case strings.HasPrefix(text, "w700 "):
			return []float64{0, 1, 0}
		case text == "tell me about topic A":
			return topicA
		default:
			return unrelated
		}
	}}
	gen := &countingGenerator{answer: "Topic A is described in doc1."}
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewDefault(), emb, store, gen, extract.New(), DefaultOptions())

	n, err := svc.Ingest(ctx, "doc1", words("w", 850))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	answer, err := svc.Answer(ctx, "tell me about topic A")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1"}, answer.Sources)
	assert.NotEmpty(t, answer.Text)
	assert.Equal(t, 1, gen.calls)
	assert.True(t, strings.HasPrefix(gen.context, "w0 w1 "))
	assert.True(t, strings.HasSuffix(gen.context, "w799\n\n"), "only chunk 0 clears the threshold")

	answer, err = svc.Answer(ctx, "what is the weather in Lisbon")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantInformation, answer.Text)
	assert.Empty(t, answer.Sources)
	assert.Equal(t, 1, gen.calls, "generator must not be called without context")
}

func TestIngest_IdempotentReingest(t *testing.T) {
	ctx := context.Background()
	svc, store := newHashingService(t, &countingGenerator{})
	text := words("token", 1000)

	_, err := svc.Ingest(ctx, "doc", text)
	require.NoError(t, err)
	first := map[string][]float64{}
	for _, id := range []string{"doc_0", "doc_1"} {
		r, ok := store.Get(id)
		require.True(t, ok)
		first[id] = r.Vector
	}

	_, err = svc.Ingest(ctx, "doc", text)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	for id, vec := range first {
		r, ok := store.Get(id)
		require.True(t, ok)
		assert.Equal(t, vec, r.Vector)
	}
}

func TestIngest_ShrinkingDocumentLeavesNoStaleRecords(t *testing.T) {
	ctx := context.Background()
	svc, store := newHashingService(t, &countingGenerator{})

	n, err := svc.Ingest(ctx, "doc", words("a", 1600))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = svc.Ingest(ctx, "other", words("b", 10))
	require.NoError(t, err)

	n, err = svc.Ingest(ctx, "doc", words("c", 100))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 2, store.Len())
	_, ok := store.Get("doc_1")
	assert.False(t, ok)
	_, ok = store.Get("other_0")
	assert.True(t, ok)
}

func TestIngest_EmptyTextRemovesDocument(t *testing.T) {
	ctx := context.Background()
	svc, store := newHashingService(t, &countingGenerator{})

	_, err := svc.Ingest(ctx, "doc", "some words here")
	require.NoError(t, err)
	n, err := svc.Ingest(ctx, "doc", "   ")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, store.Len())
}

func TestIngest_EmbeddingFailureKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	emb := &scriptedEmbedder{dim: 2, fn: func(string) []float64 { return []float64{1, 0} }}
	store := memory.NewStorage()
	svc := NewRAGService(chunker.NewDefault(), emb, store, &countingGenerator{}, extract.New(), DefaultOptions())

	_, err := svc.Ingest(ctx, "doc", "first version")
	require.NoError(t, err)

	emb.err = errors.New("model unavailable")
	_, err = svc.Ingest(ctx, "doc", "second version")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmbedding))
	assert.Equal(t, 1, store.Len())
}

func TestIngest_RejectsEmptyDocumentID(t *testing.T) {
	svc, _ := newHashingService(t, &countingGenerator{})
	_, err := svc.Ingest(context.Background(), " ", "text")
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestAnswer_GenerationFailureIsDistinct(t *testing.T) {
	ctx := context.Background()
	gen := &countingGenerator{err: errors.New("ollama unreachable")}
	svc, _ := newHashingService(t, gen)

	_, err := svc.Ingest(ctx, "guide", "Raft elects a leader with randomized election timeouts.")
	require.NoError(t, err)

	answer, err := svc.Answer(ctx, "Raft elects a leader with randomized election timeouts?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGeneration))
	assert.Empty(t, answer.Text)
	assert.Equal(t, 1, gen.calls)
}

func TestAnswer_BlankQuestion(t *testing.T) {
	gen := &countingGenerator{}
	svc, _ := newHashingService(t, gen)

	answer, err := svc.Answer(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, NoRelevantInformation, answer.Text)
	assert.Zero(t, gen.calls)
}

func TestInit_RejectsInvalidTopK(t *testing.T) {
	svc := NewRAGService(chunker.NewDefault(), hashing.NewEmbedder(8), memory.NewStorage(), &countingGenerator{}, extract.New(), Options{TopK: 0, Threshold: 0.4})
	assert.True(t, errors.Is(svc.Init(context.Background()), domain.ErrConfiguration))
}

func TestIngestFiles_ReportsPerFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(words("a", 20)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte(words("b", 900)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.xlsx"), []byte("binary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.png"), []byte("png"), 0o644))

	svc, store := newHashingService(t, &countingGenerator{})
	report := svc.IngestFiles(ctx, []string{
		filepath.Join(dir, "*"),
		filepath.Join(dir, "c.xlsx"),
		filepath.Join(dir, "missing.txt"),
	}, extract.IsSupported)

	require.Len(t, report.Succeeded, 2)
	assert.Equal(t, "a.txt", report.Succeeded[0].DocumentID)
	assert.Equal(t, 1, report.Succeeded[0].Chunks)
	assert.Equal(t, "b.txt", report.Succeeded[1].DocumentID)
	assert.Equal(t, 2, report.Succeeded[1].Chunks)
	assert.Equal(t, 3, report.TotalChunks())
	assert.Equal(t, 3, store.Len())

	require.Len(t, report.Failed, 2)
	assert.Equal(t, filepath.Join(dir, "c.xlsx"), report.Failed[0].Path)
	assert.Equal(t, filepath.Join(dir, "missing.txt"), report.Failed[1].Path)
	assert.Error(t, report.Err())
}

func TestStatus(t *testing.T) {
	svc, _ := newHashingService(t, &failingPinger{})

	statuses := svc.Status(context.Background())
	require.Len(t, statuses, 3)
	assert.Equal(t, "embedder (hashing)", statuses[0].Name)
	assert.True(t, statuses[0].Healthy)
	assert.True(t, statuses[1].Healthy)
	assert.False(t, statuses[2].Healthy)
	assert.Contains(t, statuses[2].Detail, "connection refused")
}
