package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

const aggregationFewShots = `Example 1:
Previous questions:
1. Who is Peter?
Current question: How did you meet him?
Output: {"aggregated_question": "How did you meet Peter"}

Example 2:
Previous questions:
1. What was life like in the Secret Annex?
2. Who lived there with you?
Current question: Did you get along with them?
Output: {"aggregated_question": "Did you get along with the people who lived with you in the Secret Annex"}

Example 3:
Previous questions:
1. Tell me about your father.
Current question: What is your favourite book?
Output: {"aggregated_question": "What is your favourite book"}`

// QueryAggregator rewrites a follow-up question into a standalone query
// using the prior questions of the conversation.
type QueryAggregator struct {
	generator ports.TextGenerator
	timeout   time.Duration
	metrics   PipelineMetrics
}

func NewQueryAggregator(generator ports.TextGenerator, timeout time.Duration, metrics PipelineMetrics) *QueryAggregator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if metrics == nil {
		metrics = noopPipelineMetrics{}
	}
	return &QueryAggregator{
		generator: generator,
		timeout:   timeout,
		metrics:   metrics,
	}
}

// Aggregate never fails: every model problem falls back to the current question.
func (a *QueryAggregator) Aggregate(ctx context.Context, conv domain.ConversationContext) string {
	current := conv.Current
	prior := nonBlank(conv.PriorQuestions)
	if len(prior) == 0 || a.generator == nil {
		return current
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.generator.GenerateJSON(callCtx, buildAggregationPrompt(prior, strings.TrimSpace(current)))
	if err != nil {
		return a.fallback(current, "model_error", err)
	}

	var payload struct {
		AggregatedQuestion *string `json:"aggregated_question"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return a.fallback(current, "invalid_json", err)
	}
	if payload.AggregatedQuestion == nil {
		return a.fallback(current, "missing_field", nil)
	}
	aggregated := strings.TrimSpace(*payload.AggregatedQuestion)
	if aggregated == "" {
		return a.fallback(current, "blank_field", nil)
	}
	return aggregated
}

func (a *QueryAggregator) fallback(current, reason string, err error) string {
	a.metrics.IncFallback("aggregate", reason)
	attrs := []any{"reason", reason}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	slog.Warn("query_aggregation_fallback", attrs...)
	return current
}

func buildAggregationPrompt(prior []string, current string) string {
	var b strings.Builder
	b.WriteString("You rewrite the user's latest question so it can be understood without the conversation.\n")
	b.WriteString("Resolve pronouns and references using the previous questions. ")
	b.WriteString("If the latest question does not depend on them, return it unchanged.\n")
	b.WriteString(`Respond with JSON only: {"aggregated_question": "<standalone question>"}`)
	b.WriteString("\n\n")
	b.WriteString(aggregationFewShots)
	b.WriteString("\n\nNow rewrite:\nPrevious questions:\n")
	for i, q := range prior {
		fmt.Fprintf(&b, "%d. %s\n", i+1, q)
	}
	fmt.Fprintf(&b, "Current question: %s\nOutput:", current)
	return b.String()
}

// extractJSONObject trims code fences and surrounding prose some models add.
func extractJSONObject(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}

func nonBlank(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
