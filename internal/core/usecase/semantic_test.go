package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

func TestSemanticRetrieveTagsSource(t *testing.T) {
	index := &vectorIndexFake{results: []domain.RetrievalResult{hit("A", "a", ""), hit("B", "b", "")}}
	r := NewSemanticRetriever(&embedderFake{vector: []float32{1}}, index, nil, time.Second, nil)

	got := r.Retrieve(context.Background(), "q", 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if index.limit != 10 {
		t.Fatalf("expected default k=10, got %d", index.limit)
	}
	for _, res := range got {
		if res.Source != domain.SourceSemantic {
			t.Fatalf("expected semantic source, got %q", res.Source)
		}
	}
}

func TestSemanticRetrieveDegradesToEmpty(t *testing.T) {
	cases := map[string]*SemanticRetriever{
		"embed error": NewSemanticRetriever(&embedderFake{err: errors.New("down")}, &vectorIndexFake{}, nil, time.Second, nil),
		"index error": NewSemanticRetriever(&embedderFake{vector: []float32{1}}, &vectorIndexFake{err: errors.New("404")}, nil, time.Second, nil),
		"empty index": NewSemanticRetriever(&embedderFake{vector: []float32{1}}, &vectorIndexFake{}, nil, time.Second, nil),
	}
	for name, r := range cases {
		got := r.Retrieve(context.Background(), "q", 5)
		if got == nil || len(got) != 0 {
			t.Fatalf("%s: expected empty non-nil result, got %v", name, got)
		}
	}
}

func TestSemanticRetrieveUsesCache(t *testing.T) {
	embedder := &embedderFake{vector: []float32{0.5}}
	cache := &cacheFake{}
	r := NewSemanticRetriever(embedder, &vectorIndexFake{}, cache, time.Second, nil)

	r.Retrieve(context.Background(), "who is kitty", 3)
	r.Retrieve(context.Background(), "who is kitty", 3)
	if len(embedder.queries) != 1 {
		t.Fatalf("expected one embedding call, got %d", len(embedder.queries))
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}
}

func TestSemanticRetrieveIgnoresCacheErrors(t *testing.T) {
	embedder := &embedderFake{vector: []float32{0.5}}
	index := &vectorIndexFake{results: []domain.RetrievalResult{hit("A", "a", "")}}
	r := NewSemanticRetriever(embedder, index, &cacheFake{getErr: errors.New("redis down")}, time.Second, nil)

	if got := r.Retrieve(context.Background(), "q", 3); len(got) != 1 {
		t.Fatalf("expected retrieval despite cache error, got %d", len(got))
	}
}
