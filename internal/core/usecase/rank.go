package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

// Ranker fuses retriever outputs and orders them with a cross-encoder.
type Ranker struct {
	encoder ports.CrossEncoder
	topN    int
	limit   int
}

func NewRanker(encoder ports.CrossEncoder, topN, limit int) *Ranker {
	if topN <= 0 {
		topN = 20
	}
	if limit <= 0 {
		limit = 5
	}
	if limit > topN {
		limit = topN
	}
	return &Ranker{
		encoder: encoder,
		topN:    topN,
		limit:   limit,
	}
}

// Rank returns at most limit results in non-increasing relevance order.
func (r *Ranker) Rank(ctx context.Context, query string, lexical, semantic []domain.RetrievalResult) ([]domain.RankedResult, error) {
	candidates := FuseCandidates(lexical, semantic)
	if len(candidates) == 0 {
		return []domain.RankedResult{}, nil
	}

	if r.encoder == nil {
		return nil, domain.WrapError(domain.ErrTemporary, "rerank candidates", errNoCrossEncoder)
	}

	texts := make([]string, len(candidates))
	for i, chunk := range candidates {
		texts[i] = chunk.Text
	}
	scores, err := r.encoder.Score(ctx, query, texts)
	if err != nil {
		if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrUpstreamTimeout) {
			return nil, err
		}
		return nil, domain.WrapError(domain.ErrTemporary, "rerank candidates", err)
	}
	if len(scores) != len(candidates) {
		return nil, domain.WrapError(
			domain.ErrTemporary,
			"rerank candidates",
			fmt.Errorf("scores/candidates mismatch: %d/%d", len(scores), len(candidates)),
		)
	}

	ranked := make([]domain.RankedResult, len(candidates))
	for i, chunk := range candidates {
		ranked[i] = domain.RankedResult{Chunk: chunk, RelevanceScore: scores[i]}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	if len(ranked) > r.topN {
		ranked = ranked[:r.topN]
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		for i, item := range ranked {
			slog.Debug("rerank_candidate", "rank", i+1, "title", item.Chunk.Title, "score", item.RelevanceScore)
		}
	}
	if len(ranked) > r.limit {
		ranked = ranked[:r.limit]
	}
	return ranked, nil
}

// FuseCandidates concatenates lexical then semantic hits and dedups them by title.
// A title keeps the position where it was first seen and the chunk seen last.
func FuseCandidates(lexical, semantic []domain.RetrievalResult) []domain.Chunk {
	position := make(map[string]int, len(lexical)+len(semantic))
	out := make([]domain.Chunk, 0, len(lexical)+len(semantic))
	for _, group := range [][]domain.RetrievalResult{lexical, semantic} {
		for _, hit := range group {
			if idx, ok := position[hit.Chunk.Title]; ok {
				out[idx] = hit.Chunk
				continue
			}
			position[hit.Chunk.Title] = len(out)
			out = append(out, hit.Chunk)
		}
	}
	return out
}

// FormatExcerpts renders ranked chunks as numbered "Entry n:" blocks.
func FormatExcerpts(ranked []domain.RankedResult) string {
	if len(ranked) == 0 {
		return ""
	}
	blocks := make([]string, len(ranked))
	for i, item := range ranked {
		blocks[i] = fmt.Sprintf("Entry %d:\n %s", i+1, item.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n")
}

var errNoCrossEncoder = errors.New("cross-encoder is not configured")
