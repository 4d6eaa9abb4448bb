package vecstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(number int, vec []float32) Record {
	return Record{
		ID:     RecordID(number),
		Number: number,
		Title:  fmt.Sprintf("Issue %d", number),
		URL:    fmt.Sprintf("https://example.com/issues/%d", number),
		State:  "open",
		Vector: vec,
	}
}

func TestOpenCollection_NotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.OpenCollection(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResetCollection_DestroysPriorContents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 3)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}
	if err := store.Insert(ctx, col, []Record{testRecord(1, []float32{1, 0, 0})}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	col2, err := store.ResetCollection(ctx, "repo", 3)
	if err != nil {
		t.Fatalf("resetting collection: %v", err)
	}

	if _, err := store.GetByID(ctx, col2, RecordID(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected prior record to be gone, got %v", err)
	}
}

func TestEnsureCollection_PreservesContents(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.EnsureCollection(ctx, "repo", 3)
	if err != nil {
		t.Fatalf("ensuring collection: %v", err)
	}
	if err := store.Insert(ctx, col, []Record{testRecord(1, []float32{1, 0, 0})}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	col2, err := store.EnsureCollection(ctx, "repo", 3)
	if err != nil {
		t.Fatalf("re-ensuring collection: %v", err)
	}
	if _, err := store.GetByID(ctx, col2, RecordID(1)); err != nil {
		t.Errorf("expected record to survive EnsureCollection, got %v", err)
	}
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.EnsureCollection(ctx, "repo", 3); err != nil {
		t.Fatalf("ensuring collection: %v", err)
	}
	if _, err := store.EnsureCollection(ctx, "repo", 5); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInsert_SkipsExistingIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	first := testRecord(7, []float32{1, 0})
	if err := store.Insert(ctx, col, []Record{first}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// Same ID with a different title: the existing record must be preserved.
	second := testRecord(7, []float32{0, 1})
	second.Title = "changed title"
	if err := store.Insert(ctx, col, []Record{second}); err != nil {
		t.Fatalf("second insert: %v", err)
	}

	got, err := store.GetByID(ctx, col, RecordID(7))
	if err != nil {
		t.Fatalf("getting record: %v", err)
	}
	if got.Title != first.Title {
		t.Errorf("existing record was overwritten: title = %q", got.Title)
	}
	if got.Vector[0] != 1 {
		t.Errorf("existing vector was overwritten: %v", got.Vector)
	}
}

func TestInsert_DedupesWithinBatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	a := testRecord(3, []float32{1, 0})
	a.Title = "first occurrence"
	b := testRecord(3, []float32{0, 1})
	b.Title = "later duplicate"

	if err := store.Insert(ctx, col, []Record{a, b}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	got, err := store.GetByID(ctx, col, RecordID(3))
	if err != nil {
		t.Fatalf("getting record: %v", err)
	}
	if got.Title != "first occurrence" {
		t.Errorf("first occurrence should win, got title %q", got.Title)
	}

	_, numbers, err := store.GetAll(ctx, col)
	if err != nil {
		t.Fatalf("getting all: %v", err)
	}
	if len(numbers) != 1 {
		t.Errorf("expected exactly 1 record, got %d", len(numbers))
	}
}

func TestInsert_ChunksLargeBatches(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	records := make([]Record, 250)
	for i := range records {
		records[i] = testRecord(i+1, []float32{float32(i), 1})
	}
	if err := store.Insert(ctx, col, records); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	_, numbers, err := store.GetAll(ctx, col)
	if err != nil {
		t.Fatalf("getting all: %v", err)
	}
	if len(numbers) != 250 {
		t.Errorf("expected 250 records, got %d", len(numbers))
	}
}

func TestInsert_DimensionMismatch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 3)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	err = store.Insert(ctx, col, []Record{testRecord(1, []float32{1, 0})})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestInsert_TruncatesLongTitles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 1)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	r := testRecord(1, []float32{1})
	for len(r.Title) <= maxTitleLen {
		r.Title += r.Title
	}
	if err := store.Insert(ctx, col, []Record{r}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	got, err := store.GetByID(ctx, col, RecordID(1))
	if err != nil {
		t.Fatalf("getting record: %v", err)
	}
	if len(got.Title) != maxTitleLen {
		t.Errorf("expected stored title of %d chars, got %d", maxTitleLen, len(got.Title))
	}
}

func TestGetByID_NotFound(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	_, err = store.GetByID(ctx, col, RecordID(99))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAll_ReturnsVectorsAndNumbers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	records := []Record{
		testRecord(1, []float32{1, 0}),
		testRecord(2, []float32{0, 1}),
		testRecord(3, []float32{1, 1}),
	}
	if err := store.Insert(ctx, col, records); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	vectors, numbers, err := store.GetAll(ctx, col)
	if err != nil {
		t.Fatalf("getting all: %v", err)
	}
	if len(vectors) != 3 || len(numbers) != 3 {
		t.Fatalf("expected 3 vectors and numbers, got %d and %d", len(vectors), len(numbers))
	}

	seen := make(map[int]bool)
	for _, n := range numbers {
		seen[n] = true
	}
	for _, want := range []int{1, 2, 3} {
		if !seen[want] {
			t.Errorf("issue %d missing from GetAll", want)
		}
	}
}

func TestNearest_OrdersByAscendingDistance(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	records := []Record{
		testRecord(1, []float32{1, 0}),    // identical direction to query
		testRecord(2, []float32{1, 1}),    // 45 degrees
		testRecord(3, []float32{0, 1}),    // orthogonal
		testRecord(4, []float32{-1, 0.1}), // nearly opposite
	}
	if err := store.Insert(ctx, col, records); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	hits, err := store.Nearest(ctx, col, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("expected 4 hits, got %d", len(hits))
	}

	wantOrder := []int{1, 2, 3, 4}
	for i, want := range wantOrder {
		if hits[i].Number != want {
			t.Errorf("hit %d: expected issue %d, got %d", i, want, hits[i].Number)
		}
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("hits not sorted ascending at %d", i)
		}
	}
	if math.Abs(float64(hits[0].Distance)) > 1e-6 {
		t.Errorf("self-identical vector should have distance ~0, got %f", hits[0].Distance)
	}
}

func TestNearest_CapsAtK(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	for i := 1; i <= 5; i++ {
		r := testRecord(i, []float32{float32(i), 1})
		if err := store.Insert(ctx, col, []Record{r}); err != nil {
			t.Fatalf("inserting: %v", err)
		}
	}

	hits, err := store.Nearest(ctx, col, []float32{1, 1}, 2)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("expected 2 hits, got %d", len(hits))
	}
}

func TestNearest_FewerRecordsThanK(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}
	if err := store.Insert(ctx, col, []Record{testRecord(1, []float32{1, 0})}); err != nil {
		t.Fatalf("inserting: %v", err)
	}

	hits, err := store.Nearest(ctx, col, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("expected 1 hit, got %d", len(hits))
	}
}

func TestNearest_NoDuplicateIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	col, err := store.ResetCollection(ctx, "repo", 2)
	if err != nil {
		t.Fatalf("creating collection: %v", err)
	}

	// Insert the same issue twice across separate calls.
	for i := 0; i < 2; i++ {
		if err := store.Insert(ctx, col, []Record{testRecord(1, []float32{1, 0})}); err != nil {
			t.Fatalf("inserting: %v", err)
		}
	}

	hits, err := store.Nearest(ctx, col, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	seen := make(map[string]bool)
	for _, h := range hits {
		if seen[h.ID] {
			t.Errorf("duplicate ID %s in results", h.ID)
		}
		seen[h.ID] = true
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	colA, err := store.ResetCollection(ctx, "repo-a", 2)
	if err != nil {
		t.Fatalf("creating collection a: %v", err)
	}
	colB, err := store.ResetCollection(ctx, "repo-b", 2)
	if err != nil {
		t.Fatalf("creating collection b: %v", err)
	}

	if err := store.Insert(ctx, colA, []Record{testRecord(1, []float32{1, 0})}); err != nil {
		t.Fatalf("inserting into a: %v", err)
	}

	if _, err := store.GetByID(ctx, colB, RecordID(1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("record from collection a visible in b: %v", err)
	}

	hits, err := store.Nearest(ctx, colB, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("nearest in b: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected empty collection b, got %d hits", len(hits))
	}
}
