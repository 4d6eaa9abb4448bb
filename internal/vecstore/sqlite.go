package vecstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

const currentVersion = 1

// SQLite is a Store backed by a single SQLite database file. Nearest-neighbor
// search is an exact brute-force scan, which is fine up to tens of thousands
// of issues per collection.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func OpenSQLite(path string) (*SQLite, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: serializes writes and keeps :memory: databases
	// from silently forking per connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &SQLite{db: sqlDB}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := s.migrateV1(); err != nil {
			return err
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion)); err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}
	return nil
}

func (s *SQLite) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS collections (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			dimension INTEGER NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
			record_id TEXT NOT NULL,
			number INTEGER NOT NULL,
			title TEXT NOT NULL,
			url TEXT,
			state TEXT,
			vector BLOB NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection_id, record_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection_id)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}

// ResetCollection destroys any prior collection of the same name and creates
// a fresh empty one.
func (s *SQLite) ResetCollection(ctx context.Context, name string, dimension int) (*Collection, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("collection dimension must be positive, got %d", dimension)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// ON DELETE CASCADE removes the records.
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return nil, fmt.Errorf("dropping collection %q: %w", name, err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?)`, name, dimension)
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting collection id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing collection reset: %w", err)
	}

	return &Collection{Name: name, Dimension: dimension, id: id}, nil
}

// EnsureCollection opens the named collection, creating it if absent.
func (s *SQLite) EnsureCollection(ctx context.Context, name string, dimension int) (*Collection, error) {
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

	if dimension <= 0 {
		return nil, fmt.Errorf("collection dimension must be positive, got %d", dimension)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?)
		 ON CONFLICT(name) DO NOTHING`, name, dimension)
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Lost a creation race; the winner's row is authoritative.
		return s.OpenCollection(ctx, name)
	}

	return s.OpenCollection(ctx, name)
}

// OpenCollection opens an existing collection, or fails with ErrNotFound.
func (s *SQLite) OpenCollection(ctx context.Context, name string) (*Collection, error) {
	var col Collection
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, dimension FROM collections WHERE name = ?`, name).
		Scan(&col.id, &col.Name, &col.Dimension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("collection %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("opening collection %q: %w", name, err)
	}
	return &col, nil
}

// Insert adds records append-only in chunks. Existing record IDs are skipped
// (INSERT OR IGNORE), so re-ingestion is idempotent and concurrent inserters
// racing on one ID deterministically keep the first write.
func (s *SQLite) Insert(ctx context.Context, col *Collection, records []Record) error {
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

func (s *SQLite) insertChunk(ctx context.Context, col *Collection, chunk []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO records (collection_id, record_id, number, title, url, state, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range chunk {
		_, err := stmt.ExecContext(ctx,
			col.id, r.ID, r.Number, truncateTitle(r.Title), r.URL, r.State, encodeVector(r.Vector))
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves one record, or fails with ErrNotFound.
func (s *SQLite) GetByID(ctx context.Context, col *Collection, id string) (*Record, error) {
	var r Record
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT record_id, number, title, url, state, vector
		FROM records WHERE collection_id = ? AND record_id = ?`,
		col.id, id).
		Scan(&r.ID, &r.Number, &r.Title, &r.URL, &r.State, &blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s in collection %q: %w", id, col.Name, ErrNotFound)
		}
		return nil, fmt.Errorf("getting record %s: %w", id, err)
	}
	r.Vector = decodeVector(blob)
	return &r, nil
}

// GetAll retrieves every stored vector and its issue number.
func (s *SQLite) GetAll(ctx context.Context, col *Collection) ([][]float32, []int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT number, vector FROM records WHERE collection_id = ?`, col.id)
	if err != nil {
		return nil, nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var vectors [][]float32
	var numbers []int
	for rows.Next() {
		var number int
		var blob []byte
		if err := rows.Scan(&number, &blob); err != nil {
			return nil, nil, fmt.Errorf("scanning record: %w", err)
		}
		vectors = append(vectors, decodeVector(blob))
		numbers = append(numbers, number)
	}
	return vectors, numbers, rows.Err()
}

// Nearest performs an exact scan over the collection and returns up to k hits
// by ascending cosine distance. The record_id primary key guarantees no
// duplicate IDs in the result.
func (s *SQLite) Nearest(ctx context.Context, col *Collection, query []float32, k int) ([]Hit, error) {
	if len(query) != col.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection %q wants %d",
			ErrDimensionMismatch, len(query), col.Name, col.Dimension)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, number, title, url, state, vector
		FROM records WHERE collection_id = ?`, col.id)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		if err := rows.Scan(&h.ID, &h.Number, &h.Title, &h.URL, &h.State, &blob); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}

		dist, err := CosineDistance(query, decodeVector(blob))
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", h.ID, err)
		}
		h.Distance = dist
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Compile-time check that *SQLite satisfies the Store interface.
var _ Store = (*SQLite)(nil)
