package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

// LoadCorpusUseCase stores prepared chunks and requests their vector indexing.
type LoadCorpusUseCase struct {
	repo  ports.ChunkRepository
	queue ports.MessageQueue
}

func NewLoadCorpusUseCase(repo ports.ChunkRepository, queue ports.MessageQueue) *LoadCorpusUseCase {
	return &LoadCorpusUseCase{
		repo:  repo,
		queue: queue,
	}
}

// Load upserts chunks in order and publishes one indexing event per title.
// It returns the number of published events.
func (uc *LoadCorpusUseCase) Load(ctx context.Context, chunks []domain.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "load corpus", errors.New("no chunks to load"))
	}

	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		chunks[i].Title = strings.TrimSpace(chunks[i].Title)
		title := chunks[i].Title
		if title == "" {
			return 0, domain.WrapError(domain.ErrInvalidInput, "load corpus", fmt.Errorf("chunk %d has an empty title", i+1))
		}
		if _, ok := seen[title]; ok {
			return 0, domain.WrapError(domain.ErrInvalidInput, "load corpus", fmt.Errorf("duplicate chunk title %q", title))
		}
		seen[title] = struct{}{}
	}

	if err := uc.repo.UpsertChunks(ctx, chunks); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}

	published := 0
	if uc.queue == nil {
		return published, nil
	}
	for _, chunk := range chunks {
		if err := uc.queue.PublishChunkIndexRequested(ctx, chunk.Title); err != nil {
			return published, fmt.Errorf("publish index event for %q: %w", chunk.Title, err)
		}
		published++
	}
	return published, nil
}
