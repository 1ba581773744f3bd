package mcpadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

type chatFake struct {
	got domain.ConversationContext
	err error
}

func (f *chatFake) Reply(_ context.Context, conv domain.ConversationContext) (*domain.ChatAnswer, error) {
	f.got = conv
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ChatAnswer{Response: "Dear Kitty, Peter is kind.", Query: conv.Current}, nil
}

type searchFake struct {
	gotLimit int
	results  []domain.RankedResult
}

func (f *searchFake) SearchExcerpts(_ context.Context, _ string, limit int) ([]domain.RankedResult, error) {
	f.gotLimit = limit
	return f.results, nil
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatalf("expected content in tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestAskDiaryPassesConversation(t *testing.T) {
	chat := &chatFake{}
	res, err := handleAskDiary(chat)(context.Background(), callRequest("ask_diary", map[string]any{
		"question":           "Do you like him?",
		"previous_questions": []any{"Who is Peter?"},
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if got := resultText(t, res); got != "Dear Kitty, Peter is kind." {
		t.Fatalf("unexpected answer %q", got)
	}
	if chat.got.Current != "Do you like him?" || len(chat.got.PriorQuestions) != 1 || chat.got.PriorQuestions[0] != "Who is Peter?" {
		t.Fatalf("unexpected conversation %+v", chat.got)
	}
}

func TestAskDiaryRequiresQuestion(t *testing.T) {
	res, err := handleAskDiary(&chatFake{})(context.Background(), callRequest("ask_diary", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing question")
	}
}

func TestAskDiaryReportsPipelineFailure(t *testing.T) {
	chat := &chatFake{err: domain.WrapError(domain.ErrTemporary, "rerank", errors.New("tei down"))}
	res, err := handleAskDiary(chat)(context.Background(), callRequest("ask_diary", map[string]any{"question": "hi"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "tei down") {
		t.Fatalf("expected tool error with cause")
	}
}

func TestSearchDiaryClampsLimitAndFormats(t *testing.T) {
	search := &searchFake{results: []domain.RankedResult{{
		Chunk: domain.Chunk{
			Title:          "SUNDAY, JUNE 14, 1942",
			Text:           "I got my diary today.",
			PeopleInvolved: []string{"Margot"},
		},
		RelevanceScore: 4.2,
	}}}

	res, err := handleSearchDiary(search)(context.Background(), callRequest("search_diary", map[string]any{
		"query": "diary birthday",
		"limit": float64(500),
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if search.gotLimit != maxSearchLimit {
		t.Fatalf("expected limit clamped to %d, got %d", maxSearchLimit, search.gotLimit)
	}
	text := resultText(t, res)
	for _, want := range []string{"SUNDAY, JUNE 14, 1942", "People: Margot", "I got my diary today."} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in %q", want, text)
		}
	}
}

func TestSearchDiaryDefaultsLimit(t *testing.T) {
	search := &searchFake{}
	res, err := handleSearchDiary(search)(context.Background(), callRequest("search_diary", map[string]any{"query": "kitty"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if search.gotLimit != defaultSearchLimit {
		t.Fatalf("expected default limit, got %d", search.gotLimit)
	}
	if !strings.Contains(resultText(t, res), "No diary entries") {
		t.Fatalf("expected empty result message")
	}
}

func TestNewServerBuilds(t *testing.T) {
	if NewServer(&chatFake{}, &searchFake{}, "test") == nil {
		t.Fatalf("expected server")
	}
}
