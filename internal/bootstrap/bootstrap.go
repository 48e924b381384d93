package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/culture-relevance/internal/config"
	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
	"github.com/kirillkom/culture-relevance/internal/core/usecase"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/encoder"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/encyclopedia/wikipedia"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/queue/nats"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/resilience"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/sessioncache"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/culture-relevance/internal/observability/metrics"
)

const modelCheckTimeout = 5 * time.Second

type Options struct {
	Service string
	// Registerer receives the pipeline collectors; nil disables them.
	Registerer prometheus.Registerer
	// ConnectQueue opens the NATS connection used by analysis jobs.
	ConnectQueue bool
}

type App struct {
	Config config.Config
	Lists  domain.CultureLists

	Queue     *nats.Queue
	Senses    *postgres.SenseRepository
	Index     *qdrant.Client
	Storage   ports.ObjectStorage
	Artifacts ports.ArtifactStore

	PipelineUC *usecase.PipelineUseCase
	BatchUC    *usecase.BatchUseCase
	JobUC      *usecase.JobUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	lists, err := config.LoadCultureLists(cfg.CultureListsPath)
	if err != nil {
		return nil, err
	}

	var observer ports.PipelineObserver
	resilienceCfg := resilience.DefaultConfig()
	if opts.Registerer != nil {
		pipelineMetrics := metrics.NewPipelineMetrics(opts.Service, opts.Registerer)
		observer = pipelineMetrics
		resilienceCfg.OnStateChange = pipelineMetrics.ObserveBreakerState
	}
	executor := resilience.NewExecutor(resilienceCfg)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	senses := postgres.NewSenseRepository(db)

	storage, err := localfs.New(cfg.ArtifactPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	artifacts, err := localfs.NewArtifactStore(cfg.ArtifactPath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init artifact store: %w", err)
	}

	var queue *nats.Queue
	if opts.ConnectQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
	}

	ollamaClient := ollama.New(cfg.OllamaURL, executor)
	checkJudgmentModels(ctx, ollamaClient, cfg.JudgmentModels)

	index := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
	encyclopedia := wikipedia.New(wikipedia.Config{
		URLTemplate:       cfg.WikipediaURLTemplate,
		UserAgent:         cfg.WikipediaUserAgent,
		RequestsPerSecond: cfg.WikipediaRPS,
		Burst:             cfg.FetchWorkers,
	}, executor)

	retriever := usecase.NewVisualRetriever(encoder.New(cfg.EncoderURL, executor), index, senses)
	disambiguator := usecase.NewSenseDisambiguator(senses, cfg.SenseBatchSize)
	fetcher := usecase.NewEnrichmentFetcher(senses, usecase.DefaultResolutionStrategies(encyclopedia), cfg.FetchWorkers)
	scorer := usecase.NewRelevanceScorer(ollama.NewJudge(ollamaClient), usecase.ContextConfig{
		MultiPages: cfg.MultiContextPages,
	})

	pipelineCfg := usecase.PipelineConfig{
		NeighborCount:        cfg.NeighborCount,
		MaxPages:             cfg.MaxWikiPages,
		JudgmentModels:       domain.JudgmentModels(cfg.JudgmentModels),
		DefaultJudgmentModel: cfg.DefaultJudgmentModel,
	}
	cache := sessioncache.New(sessioncache.Config{
		TTL:        cfg.SessionTTL,
		MaxEntries: cfg.SessionMaxEntries,
	})

	pipelineUC := usecase.NewPipelineUseCase(retriever, disambiguator, fetcher, scorer, cache, artifacts, observer, pipelineCfg)
	batchUC := usecase.NewBatchUseCase(retriever, disambiguator, fetcher, scorer, pipelineCfg)

	app := &App{
		Config:     cfg,
		Lists:      lists,
		Senses:     senses,
		Index:      index,
		Storage:    storage,
		Artifacts:  artifacts,
		PipelineUC: pipelineUC,
		BatchUC:    batchUC,
		closeFn: func() {
			if queue != nil {
				queue.Close()
			}
			_ = db.Close()
		},
	}
	if queue != nil {
		app.Queue = queue
		app.JobUC = usecase.NewJobUseCase(pipelineUC, storage, queue, lists, pipelineCfg.JudgmentModels, pipelineCfg.DefaultJudgmentModel)
	}
	return app, nil
}

// checkJudgmentModels only warns: the backend may pull models after startup.
func checkJudgmentModels(ctx context.Context, client *ollama.Client, models map[string]string) {
	checkCtx, cancel := context.WithTimeout(ctx, modelCheckTimeout)
	defer cancel()

	tags := make([]string, 0, len(models))
	for _, tag := range models {
		tags = append(tags, tag)
	}
	missing, err := client.MissingModels(checkCtx, tags)
	if err != nil {
		slog.Warn("judgment_backend_unreachable", "error", err)
		return
	}
	if len(missing) > 0 {
		slog.Warn("judgment_models_missing", "tags", missing)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
