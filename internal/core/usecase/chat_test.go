package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

type recordingMetrics struct {
	mu         sync.Mutex
	stages     map[string]int
	fallbacks  map[string]int
	candidates map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{stages: map[string]int{}, fallbacks: map[string]int{}, candidates: map[string]int{}}
}

func (m *recordingMetrics) ObserveStage(stage string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages[stage]++
}

func (m *recordingMetrics) IncFallback(stage, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[stage+"/"+reason]++
}

func (m *recordingMetrics) ObserveCandidates(stage string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[stage] = count
}

type chatFixture struct {
	gen      *scriptedGenerator
	lexical  *lexicalFake
	vectors  *vectorIndexFake
	encoder  *keywordEncoder
	metrics  *recordingMetrics
	useCase  *ChatUseCase
	embedder *embedderFake
}

func newChatFixture(lexical, semantic []domain.RetrievalResult) *chatFixture {
	f := &chatFixture{
		gen:      &scriptedGenerator{jsonReply: `{"aggregated_question": "How did you meet Peter"}`, textReply: "I met Peter in the Annex."},
		lexical:  &lexicalFake{results: lexical},
		vectors:  &vectorIndexFake{results: semantic},
		encoder:  &keywordEncoder{},
		metrics:  newRecordingMetrics(),
		embedder: &embedderFake{vector: []float32{1, 0}},
	}
	f.useCase = NewChatUseCase(
		NewQueryAggregator(f.gen, time.Second, f.metrics),
		f.lexical,
		NewSemanticRetriever(f.embedder, f.vectors, nil, time.Second, f.metrics),
		NewRanker(f.encoder, 20, 5),
		NewResponseComposer(rendererFake{}, f.gen, time.Second),
		RetrievalLimits{LexicalTopK: 10, SemanticTopK: 10},
		f.metrics,
	)
	return f
}

func TestReplyResolvesPronounBeforeRetrieval(t *testing.T) {
	f := newChatFixture(
		[]domain.RetrievalResult{hit("Peter", "I met peter van pels when his family arrived", domain.SourceLexical)},
		nil,
	)

	answer, err := f.useCase.Reply(context.Background(), domain.ConversationContext{
		PriorQuestions: []string{"Who is Peter?"},
		Current:        "How did you meet him?",
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if answer.Query != "How did you meet Peter" {
		t.Fatalf("expected aggregated query, got %q", answer.Query)
	}
	if f.lexical.query != "How did you meet Peter" || f.embedder.queries[0] != "How did you meet Peter" {
		t.Fatalf("retrievers did not receive aggregated query: %q / %v", f.lexical.query, f.embedder.queries)
	}
	if f.encoder.queries[0] != "How did you meet Peter" {
		t.Fatalf("cross-encoder did not receive aggregated query: %v", f.encoder.queries)
	}
	if answer.Response != "I met Peter in the Annex." {
		t.Fatalf("unexpected response %q", answer.Response)
	}
	if !strings.Contains(f.gen.textPrompts[0], "Entry 1:\n I met peter") {
		t.Fatalf("generation prompt missing excerpts: %q", f.gen.textPrompts[0])
	}
	for _, stage := range []string{"aggregate", "lexical", "semantic", "rerank", "compose"} {
		if f.metrics.stages[stage] != 1 {
			t.Fatalf("expected stage %s observed once, got %d", stage, f.metrics.stages[stage])
		}
	}
}

func TestReplySurfacesSemanticOnlyMatch(t *testing.T) {
	lexical := []domain.RetrievalResult{
		hit("Entry 1", "we ate potatoes again", domain.SourceLexical),
		hit("Entry 2", "the weather was grey", domain.SourceLexical),
	}
	semantic := []domain.RetrievalResult{
		hit("Entry 9", "how did you meet peter: he arrived with his parents", ""),
	}
	f := newChatFixture(lexical, semantic)

	answer, err := f.useCase.Reply(context.Background(), domain.ConversationContext{
		PriorQuestions: []string{"Who is Peter?"},
		Current:        "How did you meet him?",
	})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if len(answer.Excerpts) != 3 {
		t.Fatalf("expected fused set of 3, got %d", len(answer.Excerpts))
	}
	if answer.Excerpts[0].Chunk.Title != "Entry 9" {
		t.Fatalf("expected semantic-only match first, got %q", answer.Excerpts[0].Chunk.Title)
	}
}

func TestReplyWithEmptyIndexesStillAnswers(t *testing.T) {
	f := newChatFixture(nil, nil)
	f.vectors.err = errors.New("collection not found")

	answer, err := f.useCase.Reply(context.Background(), domain.ConversationContext{Current: "hello"})
	if err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	if len(answer.Excerpts) != 0 {
		t.Fatalf("expected no excerpts, got %d", len(answer.Excerpts))
	}
	if f.encoder.calls != 0 {
		t.Fatalf("expected no cross-encoder call, got %d", f.encoder.calls)
	}
	if f.metrics.fallbacks["semantic/index_error"] != 1 {
		t.Fatalf("expected semantic fallback to be counted, got %v", f.metrics.fallbacks)
	}
	if len(f.gen.jsonPrompts) != 0 {
		t.Fatalf("expected aggregation skipped without history")
	}
}

func TestReplyRejectsBlankQuestion(t *testing.T) {
	f := newChatFixture(nil, nil)
	_, err := f.useCase.Reply(context.Background(), domain.ConversationContext{Current: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestReplyFailsWhenRerankFails(t *testing.T) {
	f := newChatFixture([]domain.RetrievalResult{hit("A", "a", domain.SourceLexical)}, nil)
	f.encoder.err = errors.New("tei down")

	_, err := f.useCase.Reply(context.Background(), domain.ConversationContext{Current: "q"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if len(f.gen.textPrompts) != 0 {
		t.Fatalf("expected generation skipped after rerank failure")
	}
}

func TestSearchExcerptsAppliesLimit(t *testing.T) {
	lexical := []domain.RetrievalResult{
		hit("A", "kitty", domain.SourceLexical),
		hit("B", "kitty kitty", domain.SourceLexical),
		hit("C", "nothing", domain.SourceLexical),
	}
	f := newChatFixture(lexical, nil)

	got, err := f.useCase.SearchExcerpts(context.Background(), "kitty", 2)
	if err != nil {
		t.Fatalf("SearchExcerpts() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 excerpts, got %d", len(got))
	}
	if len(f.gen.jsonPrompts)+len(f.gen.textPrompts) != 0 {
		t.Fatalf("expected no model calls for excerpt search")
	}
}
