package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

func TestAggregateResolvesPronounFromHistory(t *testing.T) {
	gen := &scriptedGenerator{jsonReply: `{"aggregated_question": "How did you meet Peter"}`}
	agg := NewQueryAggregator(gen, time.Second, nil)

	got := agg.Aggregate(context.Background(), domain.ConversationContext{
		PriorQuestions: []string{"Who is Peter?"},
		Current:        "How did you meet him?",
	})
	if got != "How did you meet Peter" {
		t.Fatalf("unexpected aggregated query %q", got)
	}
	if len(gen.jsonPrompts) != 1 || !strings.Contains(gen.jsonPrompts[0], "1. Who is Peter?") {
		t.Fatalf("expected numbered history in prompt, got %v", gen.jsonPrompts)
	}
}

func TestAggregateSkipsModelWithoutHistory(t *testing.T) {
	gen := &scriptedGenerator{jsonReply: `{"aggregated_question": "other"}`}
	agg := NewQueryAggregator(gen, time.Second, nil)

	got := agg.Aggregate(context.Background(), domain.ConversationContext{
		PriorQuestions: []string{"  "},
		Current:        " What is your favourite book? ",
	})
	if got != " What is your favourite book? " {
		t.Fatalf("expected current question unchanged, got %q", got)
	}
	if len(gen.jsonPrompts) != 0 {
		t.Fatalf("expected no model call, got %d", len(gen.jsonPrompts))
	}
}

func TestAggregateFallsBackToCurrentQuestion(t *testing.T) {
	cases := map[string]*scriptedGenerator{
		"model error":   {jsonErr: errors.New("boom")},
		"not json":      {jsonReply: "How did you meet Peter"},
		"missing field": {jsonReply: `{"question": "x"}`},
		"blank field":   {jsonReply: `{"aggregated_question": "   "}`},
		"timeout":       {blockJSON: true},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			agg := NewQueryAggregator(gen, 20*time.Millisecond, nil)
			got := agg.Aggregate(context.Background(), domain.ConversationContext{
				PriorQuestions: []string{"Who is Peter?"},
				Current:        "How did you meet him? ",
			})
			if got != "How did you meet him? " {
				t.Fatalf("expected fallback to current question, got %q", got)
			}
		})
	}
}

func TestAggregateAcceptsFencedJSON(t *testing.T) {
	gen := &scriptedGenerator{jsonReply: "```json\n{\"aggregated_question\": \"When did Margot get the call-up\"}\n```"}
	agg := NewQueryAggregator(gen, time.Second, nil)

	got := agg.Aggregate(context.Background(), domain.ConversationContext{
		PriorQuestions: []string{"Tell me about Margot"},
		Current:        "When did she get the call-up?",
	})
	if got != "When did Margot get the call-up" {
		t.Fatalf("unexpected aggregated query %q", got)
	}
}
