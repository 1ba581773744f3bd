package domain

import (
	"regexp"
	"strings"
)

// Chunk is one diary-derived document unit. Title is unique within the corpus.
type Chunk struct {
	Title          string   `json:"chunk_title"`
	Text           string   `json:"chunk_text"`
	Description    string   `json:"description,omitempty"`
	PeopleInvolved []string `json:"people_involved,omitempty"`
}

type RetrievalSource string

const (
	SourceLexical  RetrievalSource = "lexical"
	SourceSemantic RetrievalSource = "semantic"
)

// RetrievalResult is a transient hit produced by one of the retrievers.
type RetrievalResult struct {
	Chunk  Chunk           `json:"chunk"`
	Score  float64         `json:"score"`
	Source RetrievalSource `json:"source"`
}

// RankedResult is a chunk scored by the cross-encoder for a single query.
type RankedResult struct {
	Chunk          Chunk   `json:"chunk"`
	RelevanceScore float64 `json:"relevance_score"`
}

// ConversationContext carries the prior questions and the current one.
// The core keeps no session state; callers supply it on every request.
type ConversationContext struct {
	PriorQuestions []string `json:"prior_questions"`
	Current        string   `json:"current"`
}

type ChatAnswer struct {
	Response string         `json:"response"`
	Query    string         `json:"query"`
	Excerpts []RankedResult `json:"excerpts,omitempty"`
}

var historyNumbering = regexp.MustCompile(`^\s*\d+\s*[.)]\s*`)

// ParseHistory splits a "1. question\n2. question" history into questions.
func ParseHistory(serialized string) []string {
	if strings.TrimSpace(serialized) == "" {
		return nil
	}
	lines := strings.Split(serialized, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		q := strings.TrimSpace(historyNumbering.ReplaceAllString(line, ""))
		if q == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

// NormalizePeople splits a comma separated people list and drops blanks.
func NormalizePeople(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ChunkSummary is the model-produced metadata for a chunk.
type ChunkSummary struct {
	Description    string   `json:"description"`
	PeopleInvolved []string `json:"people_involved"`
}
