package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

const tracerName = "github.com/kirillkom/diary-persona-chat/internal/core/usecase"

type RetrievalLimits struct {
	LexicalTopK  int
	SemanticTopK int
}

// ChatUseCase runs aggregation, hybrid retrieval, re-ranking and generation for one turn.
type ChatUseCase struct {
	aggregator *QueryAggregator
	lexical    ports.LexicalIndex
	semantic   *SemanticRetriever
	ranker     *Ranker
	composer   *ResponseComposer
	limits     RetrievalLimits
	metrics    PipelineMetrics
	tracer     trace.Tracer
}

func NewChatUseCase(
	aggregator *QueryAggregator,
	lexical ports.LexicalIndex,
	semantic *SemanticRetriever,
	ranker *Ranker,
	composer *ResponseComposer,
	limits RetrievalLimits,
	metrics PipelineMetrics,
) *ChatUseCase {
	if limits.LexicalTopK <= 0 {
		limits.LexicalTopK = 10
	}
	if limits.SemanticTopK <= 0 {
		limits.SemanticTopK = 10
	}
	if metrics == nil {
		metrics = noopPipelineMetrics{}
	}
	return &ChatUseCase{
		aggregator: aggregator,
		lexical:    lexical,
		semantic:   semantic,
		ranker:     ranker,
		composer:   composer,
		limits:     limits,
		metrics:    metrics,
		tracer:     otel.Tracer(tracerName),
	}
}

func (uc *ChatUseCase) Reply(ctx context.Context, conv domain.ConversationContext) (*domain.ChatAnswer, error) {
	if strings.TrimSpace(conv.Current) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat reply", errors.New("query is required"))
	}

	ctx, span := uc.tracer.Start(ctx, "chat.reply")
	defer span.End()

	var query string
	_ = uc.stage(ctx, "aggregate", func(ctx context.Context) error {
		query = uc.aggregator.Aggregate(ctx, conv)
		return nil
	})
	span.SetAttributes(attribute.String("chat.query", query))

	ranked, err := uc.retrieveAndRank(ctx, query)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	var response string
	err = uc.stage(ctx, "compose", func(ctx context.Context) error {
		var composeErr error
		response, composeErr = uc.composer.Compose(ctx, query, FormatExcerpts(ranked))
		return composeErr
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	return &domain.ChatAnswer{
		Response: response,
		Query:    query,
		Excerpts: ranked,
	}, nil
}

// SearchExcerpts runs retrieval and re-ranking only.
func (uc *ChatUseCase) SearchExcerpts(ctx context.Context, query string, limit int) ([]domain.RankedResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search excerpts", errors.New("query is required"))
	}

	ctx, span := uc.tracer.Start(ctx, "chat.search_excerpts")
	defer span.End()

	ranked, err := uc.retrieveAndRank(ctx, query)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (uc *ChatUseCase) retrieveAndRank(ctx context.Context, query string) ([]domain.RankedResult, error) {
	var lexical, semantic []domain.RetrievalResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return uc.stage(gctx, "lexical", func(ctx context.Context) error {
			results, err := uc.lexical.Search(ctx, query, uc.limits.LexicalTopK)
			if err != nil {
				return err
			}
			lexical = results
			return nil
		})
	})
	g.Go(func() error {
		return uc.stage(gctx, "semantic", func(ctx context.Context) error {
			semantic = uc.semantic.Retrieve(ctx, query, uc.limits.SemanticTopK)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "lexical retrieval", err)
	}
	uc.metrics.ObserveCandidates("lexical", len(lexical))
	uc.metrics.ObserveCandidates("semantic", len(semantic))

	var ranked []domain.RankedResult
	err := uc.stage(ctx, "rerank", func(ctx context.Context) error {
		var rankErr error
		ranked, rankErr = uc.ranker.Rank(ctx, query, lexical, semantic)
		return rankErr
	})
	if err != nil {
		return nil, err
	}
	uc.metrics.ObserveCandidates("rerank", len(ranked))
	return ranked, nil
}

func (uc *ChatUseCase) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := uc.tracer.Start(ctx, "chat."+name)
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	uc.metrics.ObserveStage(name, time.Since(started), err)
	if err != nil {
		recordSpanError(span, err)
	}
	return err
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
