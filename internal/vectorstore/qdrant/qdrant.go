package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"librarian/internal/domain"
	"librarian/internal/vectorstore"
)

// pointNamespace seeds the name-based UUIDs that Qdrant requires as point IDs.
var pointNamespace = uuid.MustParse("6f1c1c8e-4b7a-4d1e-9a53-3c1f5a2b9e10")

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps a record id onto the UUID stored in Qdrant.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// Init creates the collection if it does not exist and verifies its vector size otherwise.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "qdrant init", "invalid dimension %d", dimension)
	}
	var info collectionInfo
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	switch {
	case err == nil:
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return domain.Errorf(domain.ErrConfiguration, "qdrant init", "collection %s has vector size %d, configured dimension is %d", s.collection, size, dimension)
		}
	case status == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return domain.Wrap(domain.ErrIndex, "qdrant init", err)
		}
		// Payload index so delete-by-source does not scan the collection.
		idx := map[string]any{"field_name": "source", "field_schema": "keyword"}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), idx, nil); err != nil {
			return domain.Wrap(domain.ErrIndex, "qdrant init", err)
		}
	default:
		return domain.Wrap(domain.ErrIndex, "qdrant init", err)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	vectors := make([][]float64, len(records))
	for i, r := range records {
		vectors[i] = r.Vector
	}
	if err := vectorstore.CheckDimension("qdrant upsert", s.dimension, vectors...); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     PointID(r.ID),
			"vector": r.Vector,
			"payload": map[string]any{
				"record_id": r.ID,
				"source":    r.Metadata.Source,
				"chunk_id":  r.Metadata.ChunkID,
				"text":      r.Metadata.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return domain.Wrap(domain.ErrIndex, "qdrant upsert", err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.Match, error) {
	if err := vectorstore.CheckDimension("qdrant query", s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				RecordID string `json:"record_id"`
				Source   string `json:"source"`
				ChunkID  int    `json:"chunk_id"`
				Text     string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, domain.Wrap(domain.ErrIndex, "qdrant query", err)
	}
	matches := make([]domain.Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, domain.Match{
			ID:    r.Payload.RecordID,
			Score: r.Score,
			Metadata: domain.Metadata{
				Text:    r.Payload.Text,
				Source:  r.Payload.Source,
				ChunkID: r.Payload.ChunkID,
			},
		})
	}
	return matches, nil
}

// DeleteDocument removes every point whose payload source equals source.
func (s *Storage) DeleteDocument(ctx context.Context, source string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "source", "match": map[string]any{"value": source}},
			},
		},
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil); err != nil {
		return domain.Wrap(domain.ErrIndex, "qdrant delete "+source, err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	return err
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

// do sends a JSON request and decodes the response into out when non-nil.
// The returned status is 0 when the request never got a response.
func (s *Storage) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s %s", method, url, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: decode response: %w", method, url, err)
		}
	}
	return resp.StatusCode, nil
}
