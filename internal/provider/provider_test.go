package provider

import (
	"context"
	"errors"
	"testing"
)

type sequentialStub struct {
	failOn string
}

func (s *sequentialStub) Embed(_ context.Context, text string) ([]float32, error) {
	if text == s.failOn {
		return nil, errors.New("bad input")
	}
	return []float32{float32(len(text))}, nil
}

func TestEmbedBatchSequential(t *testing.T) {
	vecs, err := EmbedBatchSequential(context.Background(), &sequentialStub{}, []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatchSequential: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vector %d = %v, want [%f]", i, vecs[i], want)
		}
	}
}

func TestEmbedBatchSequential_StopsOnError(t *testing.T) {
	_, err := EmbedBatchSequential(context.Background(), &sequentialStub{failOn: "bb"}, []string{"a", "bb", "ccc"})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestEmbedBatchSequential_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EmbedBatchSequential(ctx, &sequentialStub{}, []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultDimension(t *testing.T) {
	cases := []struct {
		model string
		want  int
	}{
		{"text-embedding-3-small", 1536},
		{"text-embedding-ada-002", 1536},
		{"text-embedding-3-large", 3072},
		{"nomic-embed-text", 768},
		{"mxbai-embed-large", 1024},
		{"some-unknown-model", 0},
	}
	for _, tc := range cases {
		if got := DefaultDimension(tc.model); got != tc.want {
			t.Errorf("DefaultDimension(%q) = %d, want %d", tc.model, got, tc.want)
		}
	}
}
