// Package sqlite is a persistent VectorIndex backed by a single SQLite file.
// Queries are brute-force cosine scans, which is adequate for a personal
// document library of a few thousand chunks.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	_ "modernc.org/sqlite"

	"librarian/internal/domain"
	"librarian/internal/vectorstore"
)

// Storage is a SQLite-backed vector index.
type Storage struct {
	db        *sql.DB
	path      string
	dimension int
}

// NewStorage opens (creating if needed) the database at path.
func NewStorage(path string) (*Storage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrIndex, "sqlite open", err)
	}
	s := &Storage{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, domain.Wrap(domain.ErrIndex, "sqlite open", err)
	}
	return s, nil
}

func (s *Storage) migrate() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("pragma failed: %w", err)
		}
	}
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id        TEXT PRIMARY KEY,
			source    TEXT NOT NULL,
			chunk_id  INTEGER NOT NULL,
			text      TEXT NOT NULL,
			embedding BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);
		CREATE TABLE IF NOT EXISTS index_meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}
	return nil
}

// Init records the index dimension on first use and rejects a different one afterwards.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return domain.Errorf(domain.ErrConfiguration, "sqlite init", "invalid dimension %d", dimension)
	}
	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM index_meta WHERE key = 'dimension'").Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx, "INSERT INTO index_meta (key, value) VALUES ('dimension', ?)", strconv.Itoa(dimension)); err != nil {
			return domain.Wrap(domain.ErrIndex, "sqlite init", err)
		}
	case err != nil:
		return domain.Wrap(domain.ErrIndex, "sqlite init", err)
	default:
		existing, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return domain.Errorf(domain.ErrIndex, "sqlite init", "corrupt dimension %q", stored)
		}
		if existing != dimension {
			return domain.Errorf(domain.ErrConfiguration, "sqlite init", "%s was built with %d-dimensional vectors, configured dimension is %d", s.path, existing, dimension)
		}
	}
	s.dimension = dimension
	return nil
}

// Upsert writes all records in one transaction.
func (s *Storage) Upsert(ctx context.Context, records []domain.Record) error {
	vectors := make([][]float64, len(records))
	for i, r := range records {
		vectors[i] = r.Vector
	}
	if err := vectorstore.CheckDimension("sqlite upsert", s.dimension, vectors...); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.ErrIndex, "sqlite upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (id, source, chunk_id, text, embedding) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			chunk_id = excluded.chunk_id,
			text = excluded.text,
			embedding = excluded.embedding`)
	if err != nil {
		return domain.Wrap(domain.ErrIndex, "sqlite upsert", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Metadata.Source, r.Metadata.ChunkID, r.Metadata.Text, encodeVector(r.Vector)); err != nil {
			return domain.Wrap(domain.ErrIndex, "sqlite upsert "+r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.ErrIndex, "sqlite upsert", err)
	}
	return nil
}

// Query scans all records in insertion order and returns the topK best matches.
func (s *Storage) Query(ctx context.Context, vector []float64, topK int) ([]domain.Match, error) {
	if err := vectorstore.CheckDimension("sqlite query", s.dimension, vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, source, chunk_id, text, embedding FROM records ORDER BY rowid")
	if err != nil {
		return nil, domain.Wrap(domain.ErrIndex, "sqlite query", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var r domain.Record
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Metadata.Source, &r.Metadata.ChunkID, &r.Metadata.Text, &blob); err != nil {
			return nil, domain.Wrap(domain.ErrIndex, "sqlite query", err)
		}
		r.Vector = decodeVector(blob)
		if len(r.Vector) != s.dimension {
			return nil, domain.Errorf(domain.ErrIndex, "sqlite query", "stored record %s has dimension %d, index expects %d", r.ID, len(r.Vector), s.dimension)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.ErrIndex, "sqlite query", err)
	}
	return vectorstore.RankTopK(records, vector, topK), nil
}

func (s *Storage) DeleteDocument(ctx context.Context, source string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE source = ?", source); err != nil {
		return domain.Wrap(domain.ErrIndex, "sqlite delete "+source, err)
	}
	return nil
}

// Count returns the number of stored records.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n); err != nil {
		return 0, domain.Wrap(domain.ErrIndex, "sqlite count", err)
	}
	return n, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float64 {
	v := make([]float64, len(b)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return v
}
