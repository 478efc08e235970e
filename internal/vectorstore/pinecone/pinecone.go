// Package pinecone is a REST client for a Pinecone serverless index.
//
// The control plane (api.pinecone.io) is used to resolve or create the index;
// every data operation then goes to the index host it returns.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"librarian/internal/domain"
	"librarian/internal/vectorstore"
)

const (
	DefaultControlURL = "https://api.pinecone.io"
	DefaultIndex      = "alex-librarian"
	apiVersion        = "2024-07"

	DefaultReadyTimeout = 3 * time.Minute

	upsertBatch = 100
	deleteBatch = 1000
)

type Config struct {
	APIKey string
	Index  string
	// Host is the index data-plane URL. When empty it is looked up (and the
	// index created if missing) through ControlURL.
	Host       string
	ControlURL string
	Namespace  string
	Cloud      string
	Region     string
	Timeout    time.Duration
	// ReadyPoll is the interval between readiness checks after creating an index.
	ReadyPoll time.Duration
	// ReadyTimeout bounds the wait for an index to become ready.
	ReadyTimeout time.Duration
}

type Storage struct {
	cfg       Config
	host      string
	dimension int
	client    *http.Client
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.APIKey == "" {
		return nil, domain.Errorf(domain.ErrConfiguration, "pinecone", "API key not set (PINECONE_API_KEY)")
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.ControlURL == "" {
		cfg.ControlURL = DefaultControlURL
	}
	if cfg.Cloud == "" {
		cfg.Cloud = "aws"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ReadyPoll == 0 {
		cfg.ReadyPoll = time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}
	return &Storage{
		cfg:    cfg,
		host:   normalizeHost(cfg.Host),
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func normalizeHost(h string) string {
	h = strings.TrimRight(h, "/")
	if h != "" && !strings.HasPrefix(h, "http://") && !strings.HasPrefix(h, "https://") {
		h = "https://" + h
	}
	return h
}

func notReady(index string, last indexDescription, err error) error {
	state := last.Status.State
	if state == "" {
		state = "unknown"
	}
	return domain.Wrap(domain.ErrIndex, "pinecone wait for index", fmt.Errorf("index %s not ready (state %s): %w", index, state, err))
}

type indexDescription struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Host      string `json:"host"`
	Status    struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

// Init resolves the index host, creating a cosine index of the given
// dimension when none exists, and checks the index dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "pinecone init", "invalid dimension %d", dimension)
	}
	if s.host == "" {
		desc, err := s.ensureIndex(ctx, dimension)
		if err != nil {
			return err
		}
		s.host = normalizeHost(desc.Host)
	}

	var stats struct {
		Dimension int `json:"dimension"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.host+"/describe_index_stats", map[string]any{}, &stats); err != nil {
		return domain.Wrap(domain.ErrIndex, "pinecone init", err)
	}
	if stats.Dimension != 0 && stats.Dimension != dimension {
		return domain.Errorf(domain.ErrConfiguration, "pinecone init", "index %s has dimension %d, configured dimension is %d", s.cfg.Index, stats.Dimension, dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) ensureIndex(ctx context.Context, dimension int) (indexDescription, error) {
	describeURL := s.cfg.ControlURL + "/indexes/" + url.PathEscape(s.cfg.Index)
	var desc indexDescription
	status, err := s.do(ctx, http.MethodGet, describeURL, nil, &desc)
	if err == nil && desc.Status.Ready {
		return desc, nil
	}
	if err != nil && status != http.StatusNotFound {
		return desc, domain.Wrap(domain.ErrIndex, "pinecone describe index", err)
	}
	if status == http.StatusNotFound {
		body := map[string]any{
			"name":      s.cfg.Index,
			"dimension": dimension,
			"metric":    "cosine",
			"spec": map[string]any{
				"serverless": map[string]any{"cloud": s.cfg.Cloud, "region": s.cfg.Region},
			},
		}
		if _, err := s.do(ctx, http.MethodPost, s.cfg.ControlURL+"/indexes", body, nil); err != nil {
			return desc, domain.Wrap(domain.ErrIndex, "pinecone create index", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	ticker := time.NewTicker(s.cfg.ReadyPoll)
	defer ticker.Stop()
	last := desc
	for {
		desc = indexDescription{}
		if _, err := s.do(waitCtx, http.MethodGet, describeURL, nil, &desc); err != nil {
			if waitCtx.Err() != nil {
				return last, notReady(s.cfg.Index, last, waitCtx.Err())
			}
			return desc, domain.Wrap(domain.ErrIndex, "pinecone describe index", err)
		}
		if desc.Status.Ready {
			return desc, nil
		}
		last = desc
		select {
		case <-waitCtx.Done():
			return last, notReady(s.cfg.Index, last, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

type vector struct {
	ID       string          `json:"id"`
	Values   []float64       `json:"values"`
	Metadata domain.Metadata `json:"metadata"`
}

// metadataWire mirrors domain.Metadata; Pinecone returns every number as a float.
type metadataWire struct {
	Text    string  `json:"text"`
	Source  string  `json:"source"`
	ChunkID float64 `json:"chunk_id"`
}

func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	vectors := make([][]float64, len(records))
	for i, r := range records {
		vectors[i] = r.Vector
	}
	if err := vectorstore.CheckDimension("pinecone upsert", s.dimension, vectors...); err != nil {
		return err
	}
	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		batch := make([]vector, 0, end-start)
		for _, r := range records[start:end] {
			batch = append(batch, vector{ID: r.ID, Values: r.Vector, Metadata: r.Metadata})
		}
		body := map[string]any{"vectors": batch, "namespace": s.cfg.Namespace}
		if _, err := s.do(ctx, http.MethodPost, s.host+"/vectors/upsert", body, nil); err != nil {
			return domain.Wrap(domain.ErrIndex, "pinecone upsert", err)
		}
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, vec []float64, topK int) ([]domain.Match, error) {
	if err := vectorstore.CheckDimension("pinecone query", s.dimension, vec); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":          vec,
		"topK":            topK,
		"includeMetadata": true,
		"namespace":       s.cfg.Namespace,
	}
	var resp struct {
		Matches []struct {
			ID       string       `json:"id"`
			Score    float64      `json:"score"`
			Metadata metadataWire `json:"metadata"`
		} `json:"matches"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.host+"/query", body, &resp); err != nil {
		return nil, domain.Wrap(domain.ErrIndex, "pinecone query", err)
	}
	matches := make([]domain.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		matches = append(matches, domain.Match{
			ID:    m.ID,
			Score: m.Score,
			Metadata: domain.Metadata{
				Text:    m.Metadata.Text,
				Source:  m.Metadata.Source,
				ChunkID: int(m.Metadata.ChunkID),
			},
		})
	}
	return matches, nil
}

// DeleteDocument lists record ids by the "<source>_" prefix and deletes the
// ones that belong to source. Serverless indexes do not support delete by
// metadata filter.
func (s *Storage) DeleteDocument(ctx context.Context, source string) error {
	prefix := source + "_"
	var ids []string
	token := ""
	for {
		q := url.Values{"prefix": {prefix}}
		if s.cfg.Namespace != "" {
			q.Set("namespace", s.cfg.Namespace)
		}
		if token != "" {
			q.Set("paginationToken", token)
		}
		var page struct {
			Vectors []struct {
				ID string `json:"id"`
			} `json:"vectors"`
			Pagination *struct {
				Next string `json:"next"`
			} `json:"pagination"`
		}
		if _, err := s.do(ctx, http.MethodGet, s.host+"/vectors/list?"+q.Encode(), nil, &page); err != nil {
			return domain.Wrap(domain.ErrIndex, "pinecone list "+source, err)
		}
		for _, v := range page.Vectors {
			if ownedBy(v.ID, prefix) {
				ids = append(ids, v.ID)
			}
		}
		if page.Pagination == nil || page.Pagination.Next == "" {
			break
		}
		token = page.Pagination.Next
	}

	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		body := map[string]any{"ids": ids[start:end], "namespace": s.cfg.Namespace}
		if _, err := s.do(ctx, http.MethodPost, s.host+"/vectors/delete", body, nil); err != nil {
			return domain.Wrap(domain.ErrIndex, "pinecone delete "+source, err)
		}
	}
	return nil
}

// ownedBy reports whether id is prefix followed only by a chunk number,
// so deleting "a" leaves "a_b_0" alone.
func ownedBy(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}

func (s *Storage) Ping(ctx context.Context) error {
	if s.host == "" {
		_, err := s.do(ctx, http.MethodGet, s.cfg.ControlURL+"/indexes/"+url.PathEscape(s.cfg.Index), nil, nil)
		return err
	}
	_, err := s.do(ctx, http.MethodPost, s.host+"/describe_index_stats", map[string]any{}, nil)
	return err
}

func (s *Storage) do(ctx context.Context, method, u string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Pinecone-API-Version", apiVersion)
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("pinecone %s %s failed: %s %s", method, u, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("pinecone %s %s: decode response: %w", method, u, err)
		}
	}
	return resp.StatusCode, nil
}
