package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

// IndexChunkUseCase summarizes a chunk when needed and writes its
// description embedding into the vector index.
type IndexChunkUseCase struct {
	repo       ports.ChunkRepository
	summarizer ports.ChunkSummarizer
	embedder   ports.Embedder
	vectorDB   ports.VectorIndex
}

func NewIndexChunkUseCase(
	repo ports.ChunkRepository,
	summarizer ports.ChunkSummarizer,
	embedder ports.Embedder,
	vectorDB ports.VectorIndex,
) *IndexChunkUseCase {
	return &IndexChunkUseCase{
		repo:       repo,
		summarizer: summarizer,
		embedder:   embedder,
		vectorDB:   vectorDB,
	}
}

func (uc *IndexChunkUseCase) IndexByTitle(ctx context.Context, title string) error {
	chunk, err := uc.repo.GetByTitle(ctx, title)
	if err != nil {
		return fmt.Errorf("fetch chunk by title: %w", err)
	}

	if strings.TrimSpace(chunk.Description) == "" {
		uc.summarize(ctx, chunk)
	}

	vector, err := uc.embed(ctx, embeddingDocument(*chunk))
	if err != nil {
		return err
	}

	if err := uc.vectorDB.Upsert(ctx, *chunk, vector); err != nil {
		return fmt.Errorf("upsert chunk vector: %w", err)
	}
	return nil
}

// summarize leaves the description blank when the model fails.
func (uc *IndexChunkUseCase) summarize(ctx context.Context, chunk *domain.Chunk) {
	if uc.summarizer == nil {
		return
	}
	summary, err := uc.summarizer.Summarize(ctx, chunk.Text)
	if err != nil {
		slog.Warn("chunk_summary_failed", "title", chunk.Title, "error", err.Error())
		return
	}

	chunk.Description = strings.TrimSpace(summary.Description)
	if len(summary.PeopleInvolved) > 0 {
		chunk.PeopleInvolved = summary.PeopleInvolved
	}
	if err := uc.repo.SaveSummary(ctx, chunk.Title, chunk.Description, chunk.PeopleInvolved); err != nil {
		slog.Warn("chunk_summary_save_failed", "title", chunk.Title, "error", err.Error())
	}
}

func (uc *IndexChunkUseCase) embed(ctx context.Context, document string) ([]float32, error) {
	vectors, err := uc.embedder.Embed(ctx, []string{document})
	if err != nil {
		return nil, fmt.Errorf("embed description: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"embed description",
			fmt.Errorf("expected 1 vector, got %d", len(vectors)),
		)
	}
	return vectors[0], nil
}

// embeddingDocument is the description, or the chunk text when no description exists.
func embeddingDocument(chunk domain.Chunk) string {
	if desc := strings.TrimSpace(chunk.Description); desc != "" {
		return desc
	}
	return strings.TrimSpace(chunk.Title + "\n" + chunk.Text)
}
