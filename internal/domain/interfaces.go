package domain

import (
	"context"
	"strconv"
	"strings"
)

// Chunk is a contiguous word window of a source document.
type Chunk struct {
	Text           string
	SourceDocument string
	SequenceIndex  int
}

// ID returns the stable chunk identifier used as the record key in the index.
func (c Chunk) ID() string {
	return ChunkID(c.SourceDocument, c.SequenceIndex)
}

// ChunkID builds the identifier of the idx-th chunk of a document.
func ChunkID(source string, idx int) string {
	return source + "_" + strconv.Itoa(idx)
}

// Metadata is stored alongside every vector.
type Metadata struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	ChunkID int    `json:"chunk_id"`
}

// Record is the persisted unit submitted to a VectorIndex.
type Record struct {
	ID       string
	Vector   []float64
	Metadata Metadata
}

// Match is a single nearest-neighbour result. Score is cosine similarity.
type Match struct {
	ID       string
	Score    float64
	Metadata Metadata
}

// RetrievalContext aggregates the matches that survived relevance filtering.
type RetrievalContext struct {
	Text    string
	Sources []string
}

// Empty reports whether nothing relevant was retrieved.
func (r RetrievalContext) Empty() bool { return r.Text == "" }

// Answer is the grounded response to a question.
type Answer struct {
	Text    string
	Sources []string
}

// Format renders the answer text followed by its citations.
func (a Answer) Format() string {
	if len(a.Sources) == 0 {
		return a.Text
	}
	return a.Text + "\n\nSources: " + strings.Join(a.Sources, ", ")
}

// Chunker splits raw text into overlapping word windows.
type Chunker interface {
	Chunk(text string) []string
}

// Embedder converts text into fixed-dimension vectors, one per input, in order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex persists vectors and answers nearest-neighbour queries by cosine similarity.
type VectorIndex interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, records []Record) error
	Query(ctx context.Context, vector []float64, topK int) ([]Match, error)
	DeleteDocument(ctx context.Context, source string) error
}

// AnswerGenerator produces an answer to question using only the retrieved context.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, retrieved string) (string, error)
}

// TextExtractor turns a document on disk into raw text.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Pinger is implemented by collaborators that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}
