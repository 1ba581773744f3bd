package mcpadapter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

// NewServer exposes the chat pipeline as MCP tools.
func NewServer(chat ports.ChatService, search ports.ExcerptSearcher, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"diary-persona-chat",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.AddTool(askDiaryTool(), handleAskDiary(chat))
	s.AddTool(searchDiaryTool(), handleSearchDiary(search))
	return s
}

func askDiaryTool() mcp.Tool {
	return mcp.NewTool("ask_diary",
		mcp.WithDescription("Ask the diary author a question and get a first-person answer grounded in diary entries"),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The current question"),
		),
		mcp.WithArray("previous_questions",
			mcp.WithStringItems(),
			mcp.Description("Earlier questions in this conversation, oldest first"),
		),
	)
}

func searchDiaryTool() mcp.Tool {
	return mcp.NewTool("search_diary",
		mcp.WithDescription("Find the diary entries most relevant to a query without generating an answer"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum entries to return (default: %d, max: %d)", defaultSearchLimit, maxSearchLimit)),
		),
	)
}

func handleAskDiary(chat ports.ChatService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := request.RequireString("question")
		if err != nil || strings.TrimSpace(question) == "" {
			return mcp.NewToolResultError("question parameter is required"), nil
		}

		answer, err := chat.Reply(ctx, domain.ConversationContext{
			PriorQuestions: request.GetStringSlice("previous_questions", nil),
			Current:        question,
		})
		if err != nil {
			slog.Error("mcp_ask_diary_failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("ask_diary failed: %v", err)), nil
		}
		return mcp.NewToolResultText(answer.Response), nil
	}
}

func handleSearchDiary(search ports.ExcerptSearcher) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query parameter is required"), nil
		}

		limit := request.GetInt("limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}

		results, err := search.SearchExcerpts(ctx, query, limit)
		if err != nil {
			slog.Error("mcp_search_diary_failed", "error", err)
			return mcp.NewToolResultError(fmt.Sprintf("search_diary failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResults(query, results)), nil
	}
}

func formatResults(query string, results []domain.RankedResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("No diary entries match %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d diary entries for %q.\n", len(results), query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n## %d. %s (score %.3f)\n", i+1, r.Chunk.Title, r.RelevanceScore)
		if len(r.Chunk.PeopleInvolved) > 0 {
			fmt.Fprintf(&b, "People: %s\n", strings.Join(r.Chunk.PeopleInvolved, ", "))
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(r.Chunk.Text))
		b.WriteString("\n")
	}
	return b.String()
}
