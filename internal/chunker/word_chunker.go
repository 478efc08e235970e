package chunker

import (
	"strings"

	"librarian/internal/domain"
)

const (
	DefaultChunkSize = 800
	DefaultOverlap   = 100
)

// WordChunker splits text into overlapping windows of whitespace-delimited words.
type WordChunker struct {
	chunkSize int
	overlap   int
}

// New validates the window parameters. overlap must be in [0, chunkSize) so
// the window always advances.
func New(chunkSize, overlap int) (*WordChunker, error) {
	if chunkSize <= 0 {
		return nil, domain.Errorf(domain.ErrConfiguration, "chunker", "chunk size must be > 0, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, domain.Errorf(domain.ErrConfiguration, "chunker", "overlap must be >= 0 and < chunk size %d, got %d", chunkSize, overlap)
	}
	return &WordChunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// NewDefault returns a chunker with 800-word windows and 100 words of overlap.
func NewDefault() *WordChunker {
	return &WordChunker{chunkSize: DefaultChunkSize, overlap: DefaultOverlap}
}

func (c *WordChunker) ChunkSize() int { return c.chunkSize }
func (c *WordChunker) Overlap() int   { return c.overlap }

// Chunk returns the window texts in order. The last window may be shorter
// than the chunk size. Empty or whitespace-only input yields no chunks.
func (c *WordChunker) Chunk(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	step := c.chunkSize - c.overlap

	var chunks []string
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[i:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// ChunkDocument chunks text and tags every window with its document and position.
func (c *WordChunker) ChunkDocument(documentID, text string) []domain.Chunk {
	texts := c.Chunk(text)
	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{
			Text:           t,
			SourceDocument: documentID,
			SequenceIndex:  i,
		}
	}
	return chunks
}
