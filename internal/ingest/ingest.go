// Package ingest bulk-indexes issues into a vector store collection:
// normalize, encode in batches, insert append-only.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alexburke/dupfinder/internal/encoder"
	"github.com/alexburke/dupfinder/internal/github"
	"github.com/alexburke/dupfinder/internal/normalize"
	"github.com/alexburke/dupfinder/internal/retry"
	"github.com/alexburke/dupfinder/internal/vecstore"
)

// Failure records one issue that could not be indexed.
type Failure struct {
	Number int
	Err    error
}

// Report summarizes an indexing run. Failures are isolated per issue and
// reported rather than aborting the run or being dropped.
type Report struct {
	Total    int
	Indexed  int
	Failures []Failure
}

// Indexer ingests issues into vector store collections.
type Indexer struct {
	encoder     *encoder.Encoder
	store       vecstore.Store
	logger      *slog.Logger
	batchSize   int
	maxAttempts int
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger sets the logger used for progress reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) { ix.logger = logger }
}

// WithBatchSize sets how many issues are encoded per provider call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) { ix.batchSize = n }
}

// WithMaxAttempts sets the retry budget for each encoding batch.
func WithMaxAttempts(n int) Option {
	return func(ix *Indexer) { ix.maxAttempts = n }
}

// New creates an Indexer.
func New(enc *encoder.Encoder, store vecstore.Store, opts ...Option) *Indexer {
	ix := &Indexer{
		encoder:     enc,
		store:       store,
		logger:      slog.Default(),
		batchSize:   32,
		maxAttempts: retry.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.batchSize <= 0 {
		ix.batchSize = 32
	}
	return ix
}

// Rebuild destroys any existing collection of the given name and indexes the
// issues into a fresh one. Prior contents are irreversibly lost.
func (ix *Indexer) Rebuild(ctx context.Context, collection string, issues []github.Issue) (*Report, error) {
	col, err := ix.store.ResetCollection(ctx, collection, ix.encoder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("resetting collection %q: %w", collection, err)
	}
	return ix.index(ctx, col, issues)
}

// Update indexes issues into the collection, creating it if absent. Already
// indexed issues are skipped (append-only), so repeated runs are idempotent.
func (ix *Indexer) Update(ctx context.Context, collection string, issues []github.Issue) (*Report, error) {
	col, err := ix.store.EnsureCollection(ctx, collection, ix.encoder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("ensuring collection %q: %w", collection, err)
	}
	return ix.index(ctx, col, issues)
}

func (ix *Indexer) index(ctx context.Context, col *vecstore.Collection, issues []github.Issue) (*Report, error) {
	report := &Report{Total: len(issues)}

	for start := 0; start < len(issues); start += ix.batchSize {
		end := min(start+ix.batchSize, len(issues))
		batch := issues[start:end]

		records, failures := ix.encodeBatch(ctx, batch)
		report.Failures = append(report.Failures, failures...)

		if len(records) == 0 {
			continue
		}

		// A store failure here is an outage, not a per-issue problem; abort
		// with the partial report.
		if err := ix.store.Insert(ctx, col, records); err != nil {
			return report, fmt.Errorf("inserting into collection %q: %w", col.Name, err)
		}
		report.Indexed += len(records)

		ix.logger.Debug("indexed batch",
			"collection", col.Name,
			"progress", fmt.Sprintf("%d/%d", end, len(issues)),
		)
	}

	if len(report.Failures) > 0 {
		ix.logger.Warn("some issues failed to index",
			"collection", col.Name,
			"failed", len(report.Failures),
			"indexed", report.Indexed,
		)
	}
	return report, nil
}

// encodeBatch embeds one batch of issues. The batch call is retried on
// transient failures; if it still fails, issues are encoded one by one so a
// single bad input cannot sink its whole batch.
func (ix *Indexer) encodeBatch(ctx context.Context, issues []github.Issue) ([]vecstore.Record, []Failure) {
	texts := normalize.PreprocessBatch(issues)

	var vectors [][]float32
	err := retry.Do(ctx, ix.maxAttempts, func() error {
		var encodeErr error
		vectors, encodeErr = ix.encoder.EncodeBatch(ctx, texts)
		return encodeErr
	})
	if err == nil {
		return buildRecords(issues, vectors), nil
	}

	ix.logger.Warn("batch encoding failed, falling back to per-issue encoding", "error", err)

	var records []vecstore.Record
	var failures []Failure
	for i, issue := range issues {
		vec, err := ix.encoder.Encode(ctx, texts[i])
		if err != nil {
			failures = append(failures, Failure{Number: issue.Number, Err: err})
			continue
		}
		records = append(records, newRecord(issue, vec))
	}
	return records, failures
}

func buildRecords(issues []github.Issue, vectors [][]float32) []vecstore.Record {
	records := make([]vecstore.Record, len(issues))
	for i, issue := range issues {
		records[i] = newRecord(issue, vectors[i])
	}
	return records
}

func newRecord(issue github.Issue, vec []float32) vecstore.Record {
	return vecstore.Record{
		ID:     vecstore.RecordID(issue.Number),
		Number: issue.Number,
		Title:  issue.Title,
		URL:    issue.URL,
		State:  issue.State,
		Vector: vec,
	}
}
