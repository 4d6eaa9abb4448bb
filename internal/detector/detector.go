// Package detector turns nearest-neighbor hits into duplicate verdicts. It
// owns the score policy: similarity is defined as 1 - cosine distance, the
// threshold is an inclusive lower bound, and an issue never matches itself
// when queried by number.
package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexburke/dupfinder/internal/encoder"
	"github.com/alexburke/dupfinder/internal/normalize"
	"github.com/alexburke/dupfinder/internal/vecstore"
)

// ErrInvalidArgument indicates a threshold or result count outside its domain.
var ErrInvalidArgument = errors.New("invalid argument")

// Defaults for callers that don't care to pick.
const (
	DefaultThreshold = float32(0.5)
	DefaultTopK      = 10
)

// Duplicate is a ranked duplicate candidate.
//
// Similarity is 1 - cosine distance. Cosine distance ranges over [0, 2], so
// similarity can be negative for near-opposite vectors; values are reported
// as computed, never clamped.
type Duplicate struct {
	Number     int     `json:"issue_number"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Similarity float32 `json:"similarity"`
}

// Detector finds likely duplicates of an issue by embedding-space proximity.
type Detector struct {
	encoder *encoder.Encoder
	store   vecstore.Store
}

// New creates a Detector over the given encoder and store.
func New(enc *encoder.Encoder, store vecstore.Store) *Detector {
	return &Detector{encoder: enc, store: store}
}

// FindDuplicates returns indexed issues likely to be duplicates of the given
// raw text, ranked by descending similarity. Hits below threshold are
// dropped; a hit exactly at threshold is kept.
//
// Fails with ErrInvalidArgument for threshold outside [0, 1] or k < 1, and
// with vecstore.ErrNotFound if the collection does not exist. Encoder and
// store failures propagate unmodified; they are never masked as "no
// duplicates found".
func (d *Detector) FindDuplicates(ctx context.Context, collection, text string, threshold float32, k int) ([]Duplicate, error) {
	if err := validateArgs(threshold, k); err != nil {
		return nil, err
	}

	col, err := d.store.OpenCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	vec, err := d.encoder.Encode(ctx, normalize.Clean(text))
	if err != nil {
		return nil, fmt.Errorf("encoding query text: %w", err)
	}

	hits, err := d.store.Nearest(ctx, col, vec, k)
	if err != nil {
		return nil, err
	}

	duplicates := make([]Duplicate, 0, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		if sim < threshold {
			continue
		}
		duplicates = append(duplicates, Duplicate{
			Number:     h.Number,
			Title:      h.Title,
			URL:        h.URL,
			Similarity: sim,
		})
	}
	return duplicates, nil
}

// FindDuplicatesByNumber is like FindDuplicates but queries by an issue
// already in the collection, reusing its stored embedding instead of calling
// the encoder. The issue itself is excluded from the results.
//
// Fails with vecstore.ErrNotFound if the issue was never indexed.
func (d *Detector) FindDuplicatesByNumber(ctx context.Context, collection string, number int, threshold float32, k int) ([]Duplicate, error) {
	if err := validateArgs(threshold, k); err != nil {
		return nil, err
	}

	col, err := d.store.OpenCollection(ctx, collection)
	if err != nil {
		return nil, err
	}

	self, err := d.store.GetByID(ctx, col, vecstore.RecordID(number))
	if err != nil {
		return nil, err
	}

	// One extra neighbor compensates for dropping the issue itself.
	hits, err := d.store.Nearest(ctx, col, self.Vector, k+1)
	if err != nil {
		return nil, err
	}

	duplicates := make([]Duplicate, 0, min(len(hits), k))
	for _, h := range hits {
		if h.ID == self.ID {
			continue
		}
		sim := 1 - h.Distance
		if sim < threshold {
			continue
		}
		duplicates = append(duplicates, Duplicate{
			Number:     h.Number,
			Title:      h.Title,
			URL:        h.URL,
			Similarity: sim,
		})
		if len(duplicates) >= k {
			break
		}
	}
	return duplicates, nil
}

func validateArgs(threshold float32, k int) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [0, 1], got %g", ErrInvalidArgument, threshold)
	}
	if k < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidArgument, k)
	}
	return nil
}
