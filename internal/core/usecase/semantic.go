package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

// SemanticRetriever finds chunks whose description embedding is close to the query.
// Every failure degrades to an empty result so lexical retrieval can still answer.
type SemanticRetriever struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	cache    ports.EmbeddingCache
	timeout  time.Duration
	metrics  PipelineMetrics
}

func NewSemanticRetriever(
	embedder ports.Embedder,
	index ports.VectorIndex,
	cache ports.EmbeddingCache,
	timeout time.Duration,
	metrics PipelineMetrics,
) *SemanticRetriever {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = noopPipelineMetrics{}
	}
	return &SemanticRetriever{
		embedder: embedder,
		index:    index,
		cache:    cache,
		timeout:  timeout,
		metrics:  metrics,
	}
}

func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, k int) []domain.RetrievalResult {
	if k <= 0 {
		k = 10
	}
	query = strings.TrimSpace(query)
	if query == "" || r.embedder == nil || r.index == nil {
		return []domain.RetrievalResult{}
	}

	vector, err := r.embedQuery(ctx, query)
	if err != nil {
		r.metrics.IncFallback("semantic", "embed_error")
		slog.Warn("semantic_retrieval_degraded", "reason", "embed_error", "error", err.Error())
		return []domain.RetrievalResult{}
	}

	results, err := r.index.Search(ctx, vector, k)
	if err != nil {
		r.metrics.IncFallback("semantic", "index_error")
		slog.Warn("semantic_retrieval_degraded", "reason", "index_error", "error", err.Error())
		return []domain.RetrievalResult{}
	}
	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Source = domain.SourceSemantic
	}
	return results
}

func (r *SemanticRetriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if r.cache != nil {
		vector, ok, err := r.cache.Get(ctx, query)
		if err != nil {
			slog.Warn("embedding_cache_get_failed", "error", err.Error())
		} else if ok && len(vector) > 0 {
			return vector, nil
		}
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vector, err := r.embedder.EmbedQuery(embedCtx, query)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, query, vector); err != nil {
			slog.Warn("embedding_cache_set_failed", "error", err.Error())
		}
	}
	return vector, nil
}
