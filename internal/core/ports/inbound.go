package ports

import (
	"context"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

// ChatService is the inbound contract for answering a question in the diary author's voice.
type ChatService interface {
	Reply(ctx context.Context, conv domain.ConversationContext) (*domain.ChatAnswer, error)
}

// ExcerptSearcher exposes fused and re-ranked retrieval without generation.
type ExcerptSearcher interface {
	SearchExcerpts(ctx context.Context, query string, limit int) ([]domain.RankedResult, error)
}

// CorpusLoader is the inbound contract for the offline corpus load.
type CorpusLoader interface {
	Load(ctx context.Context, chunks []domain.Chunk) (int, error)
}

// ChunkIndexer is the inbound contract for asynchronous vector indexing of one chunk.
type ChunkIndexer interface {
	IndexByTitle(ctx context.Context, title string) error
}
