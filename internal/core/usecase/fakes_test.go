package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

type scriptedGenerator struct {
	mu          sync.Mutex
	jsonReply   string
	jsonErr     error
	textReply   string
	textErr     error
	blockJSON   bool
	jsonPrompts []string
	textPrompts []string
}

func (f *scriptedGenerator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.jsonPrompts = append(f.jsonPrompts, prompt)
	f.mu.Unlock()
	if f.blockJSON {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	return f.jsonReply, nil
}

func (f *scriptedGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.textPrompts = append(f.textPrompts, prompt)
	f.mu.Unlock()
	if f.textErr != nil {
		return "", f.textErr
	}
	return f.textReply, nil
}

type embedderFake struct {
	mu      sync.Mutex
	vector  []float32
	err     error
	queries []string
	batches [][]string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, texts)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type vectorIndexFake struct {
	results  []domain.RetrievalResult
	err      error
	limit    int
	upserted []domain.Chunk
	vectors  [][]float32
}

func (f *vectorIndexFake) Upsert(_ context.Context, chunk domain.Chunk, vector []float32) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, chunk)
	f.vectors = append(f.vectors, vector)
	return nil
}

func (f *vectorIndexFake) Search(_ context.Context, _ []float32, k int) ([]domain.RetrievalResult, error) {
	f.limit = k
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.RetrievalResult, len(f.results))
	copy(out, f.results)
	return out, nil
}

type lexicalFake struct {
	results []domain.RetrievalResult
	query   string
}

func (f *lexicalFake) Search(_ context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	f.query = query
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *lexicalFake) Size() int { return len(f.results) }

// keywordEncoder scores a document by how many query words it contains.
type keywordEncoder struct {
	calls    int
	err      error
	truncate bool
	queries  []string
}

func (f *keywordEncoder) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	f.calls++
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	words := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		lower := strings.ToLower(doc)
		for _, w := range words {
			if strings.Contains(lower, w) {
				scores[i]++
			}
		}
	}
	if f.truncate && len(scores) > 0 {
		scores = scores[:len(scores)-1]
	}
	return scores, nil
}

type cacheFake struct {
	values map[string][]float32
	getErr error
	sets   int
}

func (f *cacheFake) Get(_ context.Context, key string) ([]float32, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *cacheFake) Set(_ context.Context, key string, vector []float32) error {
	if f.values == nil {
		f.values = map[string][]float32{}
	}
	f.values[key] = vector
	f.sets++
	return nil
}

type rendererFake struct{}

func (rendererFake) Render(question, excerpts string) (string, error) {
	return "Q=" + question + "\nE=" + excerpts, nil
}

type chunkRepoFake struct {
	chunks    map[string]domain.Chunk
	upserted  []domain.Chunk
	upsertErr error
	summaries map[string]domain.ChunkSummary
}

func (f *chunkRepoFake) UpsertChunks(_ context.Context, chunks []domain.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *chunkRepoFake) ListChunks(context.Context) ([]domain.Chunk, error) {
	out := make([]domain.Chunk, 0, len(f.chunks))
	for _, c := range f.chunks {
		out = append(out, c)
	}
	return out, nil
}

func (f *chunkRepoFake) GetByTitle(_ context.Context, title string) (*domain.Chunk, error) {
	c, ok := f.chunks[title]
	if !ok {
		return nil, domain.WrapError(domain.ErrChunkNotFound, "get chunk", errors.New(title))
	}
	return &c, nil
}

func (f *chunkRepoFake) SaveSummary(_ context.Context, title, description string, people []string) error {
	if f.summaries == nil {
		f.summaries = map[string]domain.ChunkSummary{}
	}
	f.summaries[title] = domain.ChunkSummary{Description: description, PeopleInvolved: people}
	return nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishChunkIndexRequested(_ context.Context, title string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, title)
	return nil
}

func (f *queueFake) SubscribeChunkIndexRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

type summarizerFake struct {
	summary domain.ChunkSummary
	err     error
	calls   int
}

func (f *summarizerFake) Summarize(context.Context, string) (domain.ChunkSummary, error) {
	f.calls++
	if f.err != nil {
		return domain.ChunkSummary{}, f.err
	}
	return f.summary, nil
}

func hit(title, text string, source domain.RetrievalSource) domain.RetrievalResult {
	return domain.RetrievalResult{
		Chunk:  domain.Chunk{Title: title, Text: text},
		Source: source,
	}
}
