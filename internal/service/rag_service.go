package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"librarian/internal/domain"
	"librarian/internal/logging"
	"librarian/internal/retriever"
)

// NoRelevantInformation is the answer given when nothing in the index
// scores above the similarity threshold.
const NoRelevantInformation = "No relevant information found in your documents."

// Options are the retrieval knobs of the query path.
type Options struct {
	TopK      int
	Threshold float64
}

// DefaultOptions returns topK 5 and threshold 0.4.
func DefaultOptions() Options {
	return Options{TopK: retriever.DefaultTopK, Threshold: retriever.DefaultThreshold}
}

// RAGService wires chunking, embedding, indexing and generation into the
// ingest and answer operations.
type RAGService struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     domain.VectorIndex
	retriever *retriever.Retriever
	generator domain.AnswerGenerator
	extractor domain.TextExtractor
	opts      Options

	initMu sync.Mutex
	ready  bool
}

func NewRAGService(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, generator domain.AnswerGenerator, extractor domain.TextExtractor, opts Options) *RAGService {
	return &RAGService{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		retriever: retriever.New(embedder, index),
		generator: generator,
		extractor: extractor,
		opts:      opts,
	}
}

// Options returns the retrieval options in effect.
func (s *RAGService) Options() Options { return s.opts }

// Init prepares the index for vectors of the embedder's dimension. It is
// called implicitly by Ingest and Answer; a failed Init is retried on the
// next call.
func (s *RAGService) Init(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.ready {
		return nil
	}
	if s.opts.TopK <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "init", "topK must be positive, got %d", s.opts.TopK)
	}
	dim := s.embedder.Dimension()
	if dim <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "init", "embedder %s reports invalid dimension %d", s.embedder.Name(), dim)
	}
	if err := s.index.Init(ctx, dim); err != nil {
		return domain.Wrap(domain.ErrIndex, "init", err)
	}
	s.ready = true
	return nil
}

// Ingest replaces every record of documentID with the chunks of rawText and
// returns how many were stored. Embedding happens before anything is
// deleted, so an embedding failure leaves the previous version in place.
func (s *RAGService) Ingest(ctx context.Context, documentID, rawText string) (int, error) {
	const op = "ingest"
	if strings.TrimSpace(documentID) == "" {
		return 0, domain.Errorf(domain.ErrConfiguration, op, "document id must not be empty")
	}
	if err := s.Init(ctx); err != nil {
		return 0, err
	}
	started := time.Now()

	chunks := s.chunker.Chunk(rawText)
	var vectors [][]float64
	if len(chunks) > 0 {
		var err error
		vectors, err = s.embedder.Embed(ctx, chunks)
		if err != nil {
			return 0, domain.Wrap(domain.ErrEmbedding, op+" "+documentID, err)
		}
		if len(vectors) != len(chunks) {
			return 0, domain.Errorf(domain.ErrEmbedding, op+" "+documentID, "embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}
	}

	records := make([]domain.Record, len(chunks))
	for i, text := range chunks {
		records[i] = domain.Record{
			ID:     domain.ChunkID(documentID, i),
			Vector: vectors[i],
			Metadata: domain.Metadata{
				Text:    text,
				Source:  documentID,
				ChunkID: i,
			},
		}
	}

	if err := s.index.DeleteDocument(ctx, documentID); err != nil {
		return 0, domain.Wrap(domain.ErrIndex, op+" "+documentID, err)
	}
	if len(records) > 0 {
		if err := s.index.Upsert(ctx, records); err != nil {
			return 0, domain.Wrap(domain.ErrIndex, op+" "+documentID, err)
		}
	}
	logging.Event("ingest", "%s: %d chunks in %s", documentID, len(records), time.Since(started).Round(time.Millisecond))
	return len(records), nil
}

// IngestResult describes one successfully ingested file.
type IngestResult struct {
	Path       string
	DocumentID string
	Chunks     int
}

// IngestFailure describes a path that could not be ingested.
type IngestFailure struct {
	Path string
	Err  error
}

// IngestReport separates the files that were ingested from those that failed.
type IngestReport struct {
	Succeeded []IngestResult
	Failed    []IngestFailure
}

// TotalChunks sums the chunks of all succeeded files.
func (r IngestReport) TotalChunks() int {
	n := 0
	for _, s := range r.Succeeded {
		n += s.Chunks
	}
	return n
}

// Err joins all failures, or returns nil when every file succeeded.
func (r IngestReport) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", f.Path, f.Err))
	}
	return errors.Join(errs...)
}

// IngestFiles ingests every file matched by the given paths or glob patterns.
// The document id of a file is its base name. One file failing does not stop
// the others.
func (s *RAGService) IngestFiles(ctx context.Context, patterns []string, supported func(string) bool) IngestReport {
	var report IngestReport
	for _, path := range expand(patterns, supported, &report) {
		if err := ctx.Err(); err != nil {
			report.Failed = append(report.Failed, IngestFailure{Path: path, Err: err})
			continue
		}
		text, err := s.extractor.Extract(ctx, path)
		if err != nil {
			logging.Event("ingest", "%s: %v", path, err)
			report.Failed = append(report.Failed, IngestFailure{Path: path, Err: err})
			continue
		}
		id := filepath.Base(path)
		n, err := s.Ingest(ctx, id, text)
		if err != nil {
			logging.Event("ingest", "%s: %v", path, err)
			report.Failed = append(report.Failed, IngestFailure{Path: path, Err: err})
			continue
		}
		report.Succeeded = append(report.Succeeded, IngestResult{Path: path, DocumentID: id, Chunks: n})
	}
	return report
}

// expand resolves glob patterns and keeps the files accepted by supported.
// A pattern that matches nothing is kept as a literal path so the missing
// file shows up as a failure.
func expand(patterns []string, supported func(string) bool, report *IngestReport) []string {
	var paths []string
	seen := map[string]struct{}{}
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			report.Failed = append(report.Failed, IngestFailure{Path: p, Err: err})
			continue
		}
		explicit := matches == nil
		if explicit {
			matches = []string{p}
		}
		found := false
		for _, m := range matches {
			if !explicit && supported != nil && !supported(m) {
				continue
			}
			if !explicit && isDir(m) {
				continue
			}
			found = true
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			paths = append(paths, m)
		}
		if !found {
			report.Failed = append(report.Failed, IngestFailure{Path: p, Err: errors.New("no supported documents matched")})
		}
	}
	return paths
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Answer retrieves context for question and asks the generator to answer
// from it. When nothing relevant is retrieved the fixed
// NoRelevantInformation answer is returned and the generator is not called.
func (s *RAGService) Answer(ctx context.Context, question string) (domain.Answer, error) {
	const op = "answer"
	if strings.TrimSpace(question) == "" {
		return domain.Answer{Text: NoRelevantInformation}, nil
	}
	if err := s.Init(ctx); err != nil {
		return domain.Answer{}, err
	}
	started := time.Now()

	rc, err := s.retriever.Retrieve(ctx, question, s.opts.TopK, s.opts.Threshold)
	if err != nil {
		return domain.Answer{}, err
	}
	if rc.Empty() {
		logging.Event("answer", "no match above %.2f for %q", s.opts.Threshold, question)
		return domain.Answer{Text: NoRelevantInformation}, nil
	}

	text, err := s.generator.Generate(ctx, question, rc.Text)
	if err != nil {
		return domain.Answer{}, domain.Wrap(domain.ErrGeneration, op, err)
	}
	logging.Event("answer", "%d sources in %s", len(rc.Sources), time.Since(started).Round(time.Millisecond))
	return domain.Answer{Text: text, Sources: rc.Sources}, nil
}

// ComponentStatus is the health of one collaborator.
type ComponentStatus struct {
	Name    string
	Healthy bool
	Detail  string
}

// Status pings every collaborator that supports it.
func (s *RAGService) Status(ctx context.Context) []ComponentStatus {
	components := []struct {
		name string
		c    any
	}{
		{"embedder", s.embedder},
		{"vector index", s.index},
		{"generator", s.generator},
	}
	out := make([]ComponentStatus, 0, len(components))
	for _, c := range components {
		st := ComponentStatus{Name: c.name}
		if n, ok := c.c.(interface{ Name() string }); ok {
			st.Name = c.name + " (" + n.Name() + ")"
		}
		p, ok := c.c.(domain.Pinger)
		if !ok {
			st.Healthy, st.Detail = true, "no health check"
			out = append(out, st)
			continue
		}
		if err := p.Ping(ctx); err != nil {
			st.Detail = err.Error()
		} else {
			st.Healthy, st.Detail = true, "ok"
		}
		out = append(out, st)
	}
	return out
}
