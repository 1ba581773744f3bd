package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
	"github.com/kirillkom/diary-persona-chat/internal/core/usecase"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/cache"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/lexical/bm25"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/queue/nats"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/rerank/tei"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/resilience"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/diary-persona-chat/internal/observability/metrics"
	"github.com/kirillkom/diary-persona-chat/internal/persona"
)

// ChatApp serves question answering. The corpus and lexical index are built
// once and shared read-only by all requests.
type ChatApp struct {
	Config config.Config

	Chat    *usecase.ChatUseCase
	Lexical *bm25.Index
	Metrics *metrics.HTTPServerMetrics
	Persona *persona.Pack

	closeFn func()
}

// WorkerApp consumes chunk index events.
type WorkerApp struct {
	Config config.Config

	Queue   *nats.Queue
	IndexUC ports.ChunkIndexer
	Metrics *metrics.WorkerMetrics

	closeFn func()
}

// CorpusApp loads and exports the chunk corpus.
type CorpusApp struct {
	Config config.Config

	Repo   *postgres.ChunkRepository
	LoadUC ports.CorpusLoader

	closeFn func()
}

type modelClients struct {
	embedder   ports.Embedder
	generator  ports.TextGenerator
	summarizer ports.ChunkSummarizer
	embedModel string
}

func NewChat(ctx context.Context, cfg config.Config, service string) (*ChatApp, error) {
	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = db.Close() }}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	chunks, err := repo.ListChunks(ctx)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	minChunks := cfg.CorpusMinChunks
	if minChunks < 1 {
		minChunks = 1
	}
	if len(chunks) < minChunks {
		closeAll()
		return nil, domain.WrapError(domain.ErrCorpusEmpty, "load corpus", fmt.Errorf("found %d chunks, need at least %d", len(chunks), minChunks))
	}
	lexical := bm25.New(chunks)

	pack, err := persona.Load(cfg.PersonaFile)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load persona: %w", err)
	}

	executor := resilience.NewExecutor(resilience.InteractiveConfig())
	models, err := newModelClients(ctx, cfg, executor)
	if err != nil {
		closeAll()
		return nil, err
	}

	embedder := ports.Embedder(cache.NewCoalescingEmbedder(models.embedder))
	var embedCache ports.EmbeddingCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("init embedding cache: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		embedCache = cache.NewEmbeddingCache(rdb, models.embedModel, cfg.EmbedCacheTTL)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	httpMetrics.SetCorpusSize(lexical.Size())

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	reranker := tei.New(cfg.RerankerURL, cfg.RerankTimeout, executor)

	chat := usecase.NewChatUseCase(
		usecase.NewQueryAggregator(models.generator, cfg.AggregationTimeout, httpMetrics),
		lexical,
		usecase.NewSemanticRetriever(embedder, vectorDB, embedCache, cfg.EmbedTimeout, httpMetrics),
		usecase.NewRanker(reranker, cfg.RerankTopN, cfg.ExcerptLimit),
		usecase.NewResponseComposer(pack, models.generator, cfg.GenerationTimeout),
		usecase.RetrievalLimits{
			LexicalTopK:  cfg.LexicalTopK,
			SemanticTopK: cfg.SemanticTopK,
		},
		httpMetrics,
	)

	slog.Info("chat_pipeline_ready",
		"chunks", lexical.Size(),
		"provider", cfg.LLMProvider,
		"embed_model", models.embedModel,
		"reranker_model", cfg.RerankerModel,
		"persona", pack.Name,
		"embedding_cache", embedCache != nil,
	)

	return &ChatApp{
		Config:  cfg,
		Chat:    chat,
		Lexical: lexical,
		Metrics: httpMetrics,
		Persona: pack,
		closeFn: closeAll,
	}, nil
}

func NewWorker(ctx context.Context, cfg config.Config, service string) (*WorkerApp, error) {
	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(resilience.BatchConfig(
		cfg.IndexRetryMaxAttempts,
		cfg.IndexRetryInitialBackoff,
		cfg.IndexRetryMaxBackoff,
	))
	models, err := newModelClients(ctx, cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
		QueueLagObserver: func(lag time.Duration) {
			workerMetrics.ObserveQueueLag(service, lag)
		},
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	indexUC := usecase.NewIndexChunkUseCase(repo, models.summarizer, models.embedder, vectorDB)

	return &WorkerApp{
		Config:  cfg,
		Queue:   queue,
		IndexUC: indexUC,
		Metrics: workerMetrics,
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

// NewCorpus opens the chunk store. With publish set, loaded titles are
// announced on NATS for the indexing worker.
func NewCorpus(ctx context.Context, cfg config.Config, publish bool) (*CorpusApp, error) {
	db, repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var queue ports.MessageQueue
	closeFn := func() { _ = db.Close() }
	if publish {
		q, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		queue = q
		closeFn = func() {
			if err := q.Flush(5 * time.Second); err != nil {
				slog.Warn("nats_flush_failed", "error", err)
			}
			q.Close()
			_ = db.Close()
		}
	}

	return &CorpusApp{
		Config:  cfg,
		Repo:    repo,
		LoadUC:  usecase.NewLoadCorpusUseCase(repo, queue),
		closeFn: closeFn,
	}, nil
}

func (a *ChatApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func (a *WorkerApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func (a *CorpusApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openRepository(ctx context.Context, cfg config.Config) (*sql.DB, *postgres.ChunkRepository, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewChunkRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, repo, nil
}

func newModelClients(ctx context.Context, cfg config.Config, executor *resilience.Executor) (modelClients, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
		return modelClients{
			embedder:   ollama.NewEmbedder(client),
			generator:  ollama.NewGenerator(client),
			summarizer: ollama.NewSummarizer(client),
			embedModel: "ollama:" + cfg.OllamaEmbedModel,
		}, nil
	case "gemini":
		client, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.GeminiAPIKey,
			GenModel:    cfg.GeminiGenModel,
			EmbedModel:  cfg.GeminiEmbedModel,
			Temperature: cfg.GeminiTemperature,
			EmbedDims:   int32(cfg.GeminiEmbedDims),
		}, executor)
		if err != nil {
			return modelClients{}, fmt.Errorf("init gemini: %w", err)
		}
		return modelClients{
			embedder:   gemini.NewEmbedder(client),
			generator:  gemini.NewGenerator(client),
			summarizer: gemini.NewSummarizer(client),
			embedModel: "gemini:" + cfg.GeminiEmbedModel,
		}, nil
	default:
		return modelClients{}, domain.WrapError(domain.ErrInvalidInput, "select llm provider", fmt.Errorf("unknown provider %q", cfg.LLMProvider))
	}
}

// NewSummarizer builds the chunk summarizer for offline corpus preparation.
func NewSummarizer(ctx context.Context, cfg config.Config) (ports.ChunkSummarizer, error) {
	executor := resilience.NewExecutor(resilience.BatchConfig(
		cfg.IndexRetryMaxAttempts,
		cfg.IndexRetryInitialBackoff,
		cfg.IndexRetryMaxBackoff,
	))
	models, err := newModelClients(ctx, cfg, executor)
	if err != nil {
		return nil, err
	}
	return models.summarizer, nil
}
