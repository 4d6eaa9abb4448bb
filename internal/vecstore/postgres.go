package vecstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres is a Store backed by Postgres with the pgvector extension.
// The embedding column is typed vector(n), so one store instance serves one
// dimensionality; this matches the invariant that the encoder model is never
// switched without a rebuild.
type Postgres struct {
	pool      *pgxpool.Pool
	dimension int
}

// OpenPostgres connects to Postgres at dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, dimension int) (*Postgres, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("store dimension must be positive, got %d", dimension)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	store := &Postgres{pool: pool, dimension: dimension}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return store, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS collections (
  id         bigserial PRIMARY KEY,
  name       text NOT NULL UNIQUE,
  dimension  int NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS records (
  collection_id bigint NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
  record_id     text NOT NULL,
  number        int NOT NULL,
  title         text NOT NULL,
  url           text,
  state         text,
  embedding     vector(%d) NOT NULL,
  created_at    timestamptz NOT NULL DEFAULT now(),
  PRIMARY KEY (collection_id, record_id)
);
CREATE INDEX IF NOT EXISTS records_embedding_idx ON records USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`, s.dimension)
	_, err := s.pool.Exec(ctx, ddl)
	return err
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

// ResetCollection destroys any prior collection of the same name and creates
// a fresh empty one.
func (s *Postgres) ResetCollection(ctx context.Context, name string, dimension int) (*Collection, error) {
	if dimension != s.dimension {
		return nil, fmt.Errorf("%w: store is configured for dimension %d, got %d",
			ErrDimensionMismatch, s.dimension, dimension)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM collections WHERE name = $1`, name); err != nil {
		return nil, fmt.Errorf("dropping collection %q: %w", name, err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO collections (name, dimension) VALUES ($1, $2) RETURNING id`,
		name, dimension).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing collection reset: %w", err)
	}

	return &Collection{Name: name, Dimension: dimension, id: id}, nil
}

// EnsureCollection opens the named collection, creating it if absent.
func (s *Postgres) EnsureCollection(ctx context.Context, name string, dimension int) (*Collection, error) {
	col, err := s.OpenCollection(ctx, name)
	if err == nil {
		if col.Dimension != dimension {
			return nil, fmt.Errorf("%w: collection %q has dimension %d, want %d",
				ErrDimensionMismatch, name, col.Dimension, dimension)
		}
		return col, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if dimension != s.dimension {
		return nil, fmt.Errorf("%w: store is configured for dimension %d, got %d",
			ErrDimensionMismatch, s.dimension, dimension)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO collections (name, dimension) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING`, name, dimension)
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}
	return s.OpenCollection(ctx, name)
}

// OpenCollection opens an existing collection, or fails with ErrNotFound.
func (s *Postgres) OpenCollection(ctx context.Context, name string) (*Collection, error) {
	var col Collection
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, dimension FROM collections WHERE name = $1`, name).
		Scan(&col.id, &col.Name, &col.Dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}
	return &col, nil
}

// Insert adds records append-only in chunks. ON CONFLICT DO NOTHING gives
// first-write-wins semantics under concurrent inserters.
func (s *Postgres) Insert(ctx context.Context, col *Collection, records []Record) error {
	records = dedupeByID(records)

	for _, r := range records {
		if len(r.Vector) != col.Dimension {
			return fmt.Errorf("%w: record %s has %d dimensions, collection %q wants %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), col.Name, col.Dimension)
		}
	}

	for start := 0; start < len(records); start += insertChunkSize {
		end := min(start+insertChunkSize, len(records))
		if err := s.insertChunk(ctx, col, records[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) insertChunk(ctx context.Context, col *Collection, chunk []Record) error {
	batch := &pgx.Batch{}
	for _, r := range chunk {
		batch.Queue(`
			INSERT INTO records (collection_id, record_id, number, title, url, state, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (collection_id, record_id) DO NOTHING`,
			col.id, r.ID, r.Number, truncateTitle(r.Title), r.URL, r.State, pgvector.NewVector(r.Vector))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunk {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting records into %q: %w", col.Name, err)
		}
	}
	return nil
}

// GetByID retrieves one record, or fails with ErrNotFound.
func (s *Postgres) GetByID(ctx context.Context, col *Collection, id string) (*Record, error) {
	var r Record
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, `
		SELECT record_id, number, title, url, state, embedding
		FROM records WHERE collection_id = $1 AND record_id = $2`,
		col.id, id).
		Scan(&r.ID, &r.Number, &r.Title, &r.URL, &r.State, &vec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("record %s in collection %q: %w", id, col.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	r.Vector = vec.Slice()
	return &r, nil
}

// GetAll retrieves every stored vector and its issue number.
func (s *Postgres) GetAll(ctx context.Context, col *Collection) ([][]float32, []int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT number, embedding FROM records WHERE collection_id = $1`, col.id)
	if err != nil {
		return nil, nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var vectors [][]float32
	var numbers []int
	for rows.Next() {
		var number int
		var vec pgvector.Vector
		if err := rows.Scan(&number, &vec); err != nil {
			return nil, nil, fmt.Errorf("scanning record: %w", err)
		}
		vectors = append(vectors, vec.Slice())
		numbers = append(numbers, number)
	}
	return vectors, numbers, rows.Err()
}

// Nearest returns up to k hits by ascending cosine distance using the
// pgvector <=> operator.
func (s *Postgres) Nearest(ctx context.Context, col *Collection, query []float32, k int) ([]Hit, error) {
	if len(query) != col.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q wants %d",
			ErrDimensionMismatch, len(query), col.Name, col.Dimension)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT record_id, number, title, url, state, embedding <=> $1 AS distance
		FROM records WHERE collection_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(query), col.id, k)
	if err != nil {
		return nil, fmt.Errorf("querying nearest neighbors: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var distance float64
		if err := rows.Scan(&h.ID, &h.Number, &h.Title, &h.URL, &h.State, &distance); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		h.Distance = float32(distance)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Compile-time check that *Postgres satisfies the Store interface.
var _ Store = (*Postgres)(nil)
