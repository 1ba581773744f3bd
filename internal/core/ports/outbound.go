package ports

import (
	"context"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

// ChunkRepository persists the chunk corpus keyed by title.
type ChunkRepository interface {
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error
	ListChunks(ctx context.Context) ([]domain.Chunk, error)
	GetByTitle(ctx context.Context, title string) (*domain.Chunk, error)
	SaveSummary(ctx context.Context, title, description string, people []string) error
}

// LexicalIndex ranks corpus chunks by term statistics.
type LexicalIndex interface {
	Search(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error)
	Size() int
}

// VectorIndex stores chunk description embeddings with the chunk as payload.
type VectorIndex interface {
	Upsert(ctx context.Context, chunk domain.Chunk, vector []float32) error
	Search(ctx context.Context, vector []float32, k int) ([]domain.RetrievalResult, error)
}

// Embedder builds vectors for descriptions and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache memoizes query embeddings.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// CrossEncoder scores (query, document) pairs jointly. Scores come back in input order.
type CrossEncoder interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// TextGenerator is the language-model boundary used for aggregation and generation.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// ChunkSummarizer produces the description and people list for a chunk.
type ChunkSummarizer interface {
	Summarize(ctx context.Context, text string) (domain.ChunkSummary, error)
}

// MessageQueue publishes/consumes chunk indexing events.
type MessageQueue interface {
	PublishChunkIndexRequested(ctx context.Context, title string) error
	SubscribeChunkIndexRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// PromptRenderer renders the persona generation prompt.
type PromptRenderer interface {
	Render(question, excerpts string) (string, error)
}
