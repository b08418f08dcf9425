package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/compliance-analyzer/internal/config"
	"github.com/kirillkom/compliance-analyzer/internal/core/ports"
	"github.com/kirillkom/compliance-analyzer/internal/core/usecase"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/catalog"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/chunking"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/docx"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/llm/openai"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/lock"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/lock/redislock"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search/memory"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search/qdrant"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/search/typesense"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/compliance-analyzer/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue    ports.AnalysisQueue
	Catalog  *catalog.Catalog
	Chunker  *chunking.Splitter
	Search   ports.SearchIndex
	Metrics  *metrics.AnalysisMetrics
	Sessions *usecase.SessionUseCase
	Analyzer *usecase.ComplianceOrchestrator
	Uploader *usecase.UploadDocumentUseCase
	Enqueuer *usecase.EnqueueAnalysisUseCase

	closeFn func()
}

// New wires the full pipeline. Analysis metrics are registered on registerer
// when it is not nil.
func New(ctx context.Context, cfg config.Config, service string, registerer prometheus.Registerer) (*App, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	closers = append(closers, func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		closeAll()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	checklists, err := catalog.Load(cfg.CatalogDir)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	var analysisMetrics *metrics.AnalysisMetrics
	if registerer != nil {
		analysisMetrics = metrics.NewAnalysisMetrics(service, registerer)
	}
	onBreakerChange := func(operation, from, to string) {
		if analysisMetrics != nil {
			analysisMetrics.BreakerStateChange(operation, from, to)
		}
	}
	onRetry := func(operation string, attempt int, rateLimited bool) {
		if analysisMetrics != nil {
			analysisMetrics.RecordRetry(operation, attempt, rateLimited)
		}
	}

	queueExecutorCfg := resilience.DefaultConfig()
	queueExecutorCfg.OnStateChange = onBreakerChange
	queueExecutorCfg.OnRetry = onRetry
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Name:               service,
		ResilienceExecutor: resilience.NewExecutor(queueExecutorCfg),
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	closers = append(closers, queue.Close)

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, closeLocker)

	searchIndex := newSearchIndex(cfg, analysisMetrics)
	gateway := newGateway(cfg, analysisMetrics, onBreakerChange, onRetry)
	if !gateway.Configured() {
		slog.Warn("llm_not_configured", "hint", "set LLM_ENDPOINTS")
	}

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.ChunkMinSize)
	extractors := extractor.NewRouter(
		storage,
		pdf.NewParser(),
		docx.NewParser(),
		spreadsheet.NewParser(),
		plaintext.NewParser(),
	)

	sessionRepo := postgres.NewSessionRepository(db)

	var (
		analysisObserver usecase.AnalysisObserver
		runObserver      usecase.RunObserver
	)
	if analysisMetrics != nil {
		analysisObserver = analysisMetrics
		runObserver = analysisMetrics
	}

	engine := usecase.NewAnalysisEngine(gateway, searchIndex, usecase.EngineConfig{
		BatchSize:   cfg.AnalysisBatchSize,
		TopK:        cfg.AnalysisContextTopK,
		Concurrency: cfg.AnalysisConcurrency,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}, analysisObserver)

	orchestrator := usecase.NewComplianceOrchestrator(usecase.OrchestratorDeps{
		Sessions:  sessionRepo,
		Progress:  postgres.NewProgressRepository(db),
		Cache:     postgres.NewCacheRepository(db),
		Results:   postgres.NewResultRepository(db),
		Storage:   storage,
		Extractor: extractors,
		Chunker:   chunker,
		Search:    searchIndex,
		Catalog:   checklists,
		Locker:    locker,
		Engine:    engine,
		Observer:  runObserver,
	})

	return &App{
		Config:  cfg,
		Queue:   queue,
		Catalog: checklists,
		Chunker: chunker,
		Search:  searchIndex,
		Metrics: analysisMetrics,

		Sessions: usecase.NewSessionUseCase(sessionRepo, searchIndex, checklists),
		Analyzer: orchestrator,
		Uploader: usecase.NewUploadDocumentUseCase(storage, extractors),
		Enqueuer: usecase.NewEnqueueAnalysisUseCase(sessionRepo, queue),

		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// WatchCatalog hot-reloads the catalog until ctx is done when enabled.
func (a *App) WatchCatalog(ctx context.Context) {
	if !a.Config.CatalogWatch {
		return
	}
	go func() {
		if err := a.Catalog.Watch(ctx); err != nil {
			slog.Error("catalog_watch_failed", "dir", a.Catalog.Dir(), "error", err)
		}
	}()
}

func newLocker(ctx context.Context, cfg config.Config) (ports.AnalysisLocker, func(), error) {
	if cfg.RedisAddr == "" {
		slog.Info("analysis_lock_local", "wait", cfg.LockWait.String())
		return lock.NewKeyed(cfg.LockWait), func() {}, nil
	}
	client, err := redislock.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("init redis lock: %w", err)
	}
	locker := redislock.New(client, redislock.Options{
		TTL:  cfg.LockTTL,
		Wait: cfg.LockWait,
	})
	return locker, func() { _ = client.Close() }, nil
}

func newSearchIndex(cfg config.Config, observer *metrics.AnalysisMetrics) ports.SearchIndex {
	var remote ports.SearchIndex
	switch cfg.SearchBackend {
	case "typesense":
		remote = typesense.New(cfg.TypesenseURL, cfg.TypesenseAPIKey, cfg.TypesenseCollection)
	case "qdrant":
		remote = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantAPIKey)
	}
	var hits search.HitObserver
	if observer != nil {
		hits = observer
	}
	slog.Info("search_backend_selected", "backend", cfg.SearchBackend)
	return search.NewFallback(cfg.SearchBackend, remote, memory.NewWithLimit(cfg.LocalIndexMaxSessions), hits)
}

func newGateway(
	cfg config.Config,
	observer *metrics.AnalysisMetrics,
	onBreakerChange func(operation, from, to string),
	onRetry func(operation string, attempt int, rateLimited bool),
) *openai.Gateway {
	kind := openai.EndpointKind(cfg.LLMProvider)
	fallbackDeployment := cfg.LLMFallbackDeployment
	if fallbackDeployment == "" {
		fallbackDeployment = cfg.LLMDeployment
	}

	executorCfg := resilience.LLMConfig(cfg.LLMMaxRetries, cfg.LLMRetryDelay)
	executorCfg.OnStateChange = onBreakerChange
	executorCfg.OnRetry = onRetry

	var llmObserver openai.Observer
	if observer != nil {
		llmObserver = observer
	}
	return openai.NewGateway(openai.GatewayConfig{
		Primary:           endpoints(kind, cfg.LLMEndpoints, cfg.LLMAPIKeys, cfg.LLMDeployment, cfg.LLMAPIVersion),
		Fallback:          endpoints(kind, cfg.LLMFallbackEndpoints, cfg.LLMFallbackAPIKeys, fallbackDeployment, cfg.LLMAPIVersion),
		Temperature:       cfg.LLMTemperature,
		MaxTokens:         cfg.LLMMaxTokens,
		MaxRetries:        cfg.LLMMaxRetries,
		RetryDelay:        cfg.LLMRetryDelay,
		RequestsPerSecond: cfg.LLMRequestsPerSecond,
		Timeout:           cfg.LLMTimeout,
	}, nil, resilience.NewExecutor(executorCfg), llmObserver)
}

// endpoints pairs urls with keys by position; a single key is shared by all urls.
func endpoints(kind openai.EndpointKind, urls, keys []string, deployment, apiVersion string) []openai.Endpoint {
	out := make([]openai.Endpoint, 0, len(urls))
	for i, url := range urls {
		key := ""
		switch {
		case i < len(keys):
			key = keys[i]
		case len(keys) == 1:
			key = keys[0]
		}
		out = append(out, openai.Endpoint{
			Kind:       kind,
			URL:        url,
			APIKey:     key,
			Deployment: deployment,
			APIVersion: apiVersion,
		})
	}
	return out
}
