// Package llm holds prompt and parsing helpers shared by the model providers.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

const maxSummarySnippet = 8000

// BuildSummaryPrompt asks for a short description and the people named in a diary chunk.
func BuildSummaryPrompt(text string) string {
	snippet := text
	if len(snippet) > maxSummarySnippet {
		snippet = snippet[:maxSummarySnippet]
	}

	return `You summarize diary entries for a search index.
Return strict JSON object with keys:
description (string, 2-4 sentences on what happens and how the writer feels),
people_involved (array of strings, names of people mentioned; empty array if none).
No markdown, no extra keys.

Entry:
` + snippet
}

// ParseSummary decodes the model output. people_involved may be an array or a comma separated string.
func ParseSummary(raw string) (domain.ChunkSummary, error) {
	var payload struct {
		Description    string          `json:"description"`
		PeopleInvolved json.RawMessage `json:"people_involved"`
	}
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &payload); err != nil {
		return domain.ChunkSummary{}, fmt.Errorf("parse summary json: %w", err)
	}

	summary := domain.ChunkSummary{Description: strings.TrimSpace(payload.Description)}
	if len(payload.PeopleInvolved) == 0 || string(payload.PeopleInvolved) == "null" {
		return summary, nil
	}

	var list []string
	if err := json.Unmarshal(payload.PeopleInvolved, &list); err == nil {
		summary.PeopleInvolved = domain.NormalizePeople(strings.Join(list, ","))
		return summary, nil
	}
	var joined string
	if err := json.Unmarshal(payload.PeopleInvolved, &joined); err != nil {
		return domain.ChunkSummary{}, fmt.Errorf("parse people_involved: %w", err)
	}
	summary.PeopleInvolved = domain.NormalizePeople(joined)
	return summary, nil
}

func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
