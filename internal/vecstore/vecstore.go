// Package vecstore provides persistent, named collections of issue embedding
// vectors with nearest-neighbor search by cosine distance. Two backends are
// available: SQLite (exact brute-force scan, zero setup) and Postgres with
// pgvector (approximate index, for large collections).
package vecstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates a missing collection or record.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates a vector whose dimensionality does not
	// match the collection's.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Record is the persisted unit: an issue's embedding plus the metadata needed
// to present a duplicate candidate without a second lookup.
type Record struct {
	ID     string
	Number int
	Title  string
	URL    string
	State  string
	Vector []float32
}

// Hit is a single nearest-neighbor result. Distance is cosine distance:
// 0 means identical direction, 2 means opposite.
type Hit struct {
	ID       string
	Distance float32
	Number   int
	Title    string
	URL      string
	State    string
}

// Collection is a handle to a named collection. All records in one collection
// share Dimension.
type Collection struct {
	Name      string
	Dimension int

	id int64 // backend row id
}

// Store is a persistent vector index holding named collections.
//
// Queries (GetByID, GetAll, Nearest) are independent reads and may run
// concurrently without coordination. Insert is append-only with
// first-write-wins conflict resolution, so concurrent inserters racing on the
// same new ID deterministically leave exactly one record.
type Store interface {
	// ResetCollection destroys any existing collection of the same name and
	// creates a fresh empty one. Callers must intend a full rebuild.
	ResetCollection(ctx context.Context, name string, dimension int) (*Collection, error)

	// EnsureCollection opens the named collection, creating it if absent.
	// Never destroys data. Fails if an existing collection has a different
	// dimension.
	EnsureCollection(ctx context.Context, name string, dimension int) (*Collection, error)

	// OpenCollection opens an existing collection, or fails with ErrNotFound.
	OpenCollection(ctx context.Context, name string) (*Collection, error)

	// Insert adds records append-only: IDs already present in the collection
	// are skipped, and duplicate IDs within the batch are dropped after the
	// first occurrence. Insertion is chunked to bound per-call payload size.
	Insert(ctx context.Context, col *Collection, records []Record) error

	// GetByID retrieves one record, or fails with ErrNotFound.
	GetByID(ctx context.Context, col *Collection, id string) (*Record, error)

	// GetAll retrieves every stored vector and its issue number. Order is
	// unspecified.
	GetAll(ctx context.Context, col *Collection) ([][]float32, []int, error)

	// Nearest returns up to k hits ordered by ascending cosine distance,
	// with no duplicate IDs.
	Nearest(ctx context.Context, col *Collection, query []float32, k int) ([]Hit, error)

	Close() error
}

const (
	// insertChunkSize bounds the number of records per insert statement.
	insertChunkSize = 100

	// maxTitleLen bounds stored titles; full bodies are never persisted.
	maxTitleLen = 500
)

// RecordID derives the stable record identifier for an issue number.
func RecordID(number int) string {
	return fmt.Sprintf("issue_%d", number)
}

// CollectionName derives a collection name from a repository identifier,
// e.g. "microsoft/vscode" becomes "microsoft_vscode".
func CollectionName(repo string) string {
	return strings.ReplaceAll(repo, "/", "_")
}

// dedupeByID drops batch-internal duplicates, keeping the first occurrence.
func dedupeByID(records []Record) []Record {
	seen := make(map[string]struct{}, len(records))
	unique := records[:0:0]
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}

// truncateTitle enforces the stored-title bound.
func truncateTitle(title string) string {
	if len(title) > maxTitleLen {
		return title[:maxTitleLen]
	}
	return title
}
