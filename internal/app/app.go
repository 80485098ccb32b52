package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"CurateAI/internal/config"
	"CurateAI/internal/infrastructure/assets"
	"CurateAI/internal/infrastructure/embedding"
	"CurateAI/internal/infrastructure/llm"
	"CurateAI/internal/infrastructure/notify"
	"CurateAI/internal/infrastructure/parser"
	"CurateAI/internal/infrastructure/scheduler"
	"CurateAI/internal/infrastructure/storage"
	"CurateAI/internal/logging"
	"CurateAI/internal/ports"
	"CurateAI/internal/redundancy"
	"CurateAI/internal/scanner"
	"CurateAI/internal/stage"
	"CurateAI/internal/usecase"
)

// Application wires configuration to adapters, the run coordinator, and
// lifecycle orchestration.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	coordinator *usecase.Coordinator
	scheduler   *usecase.Scheduler
	store       ports.RunStore
	db          *sql.DB
	dryRun      bool
}

// New builds a runnable application instance. With dryRun the pipeline
// executes against in-memory storage and skips delivery and indexing,
// leaving no trace behind.
func New(cfg config.Config, baseLogger *slog.Logger, dryRun bool) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	registry := scanner.NewRegistry()
	registry.Register(parser.NewArxivScanner(nil, baseLogger.With("component", "scanner.arxiv")))
	registry.Register(parser.NewBlogScanner(nil, baseLogger.With("component", "scanner.blog")))

	source := parser.NewStrategySource(registry, cfg.Sites, baseLogger.With("component", "source"))

	var (
		scorer    ports.TopicScorer
		generator ports.AngleGenerator
	)
	if cfg.LLM.APIKey != "" {
		client := llm.NewClient(cfg.LLM)
		scorer = client
		generator = client
	}

	var embedder ports.Embedder
	if cfg.Embedding.Endpoint != "" {
		embedder = embedding.NewClient(cfg.Embedding.Endpoint, cfg.Embedding.Model,
			cfg.Embedding.APIKey, cfg.Embedding.Dimension)
	} else {
		embedder = embedding.NewHashEmbedder(cfg.Embedding.Dimension)
	}

	indexDir := cfg.Embedding.IndexDir
	if dryRun {
		indexDir = ""
	}
	index, err := embedding.NewChromemIndex(indexDir)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}

	var (
		store ports.RunStore
		db    *sql.DB
	)
	if dryRun {
		store = storage.NewMemoryStore()
	} else {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		store = storage.NewPostgresRepository(db)
	}

	var notifier ports.Notifier
	if cfg.Notifications.Slack.WebhookURL != "" {
		notifier = notify.NewNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	opts := cfg.Options()
	engine := redundancy.NewEngine(embedder, index, opts,
		baseLogger.With("component", "redundancy"))

	stages := []stage.Stage{
		stage.NewScout(source),
		stage.NewRelevance(scorer),
		stage.NewInsight(generator),
		stage.NewEditor(),
		stage.NewAssetCurator(assets.NewCollector(nil)),
		stage.NewRedundancyChecker(engine),
	}

	coordinator := usecase.NewCoordinator(usecase.CoordinatorDeps{
		Store:    store,
		Index:    index,
		Notifier: notifier,
		Stages:   stages,
		Options:  opts,
		Channel:  notify.Channel,
		Logger:   baseLogger.With("component", "coordinator"),
	})

	cron := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location())

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		coordinator: coordinator,
		scheduler:   usecase.NewScheduler(cron, coordinator),
		store:       store,
		db:          db,
		dryRun:      dryRun,
	}, nil
}

// prepare brings persistent state up to date before any run executes:
// schema migration and reconciliation of runs a crashed process left
// non-terminal.
func (a *Application) prepare(ctx context.Context) error {
	if repo, ok := a.store.(*storage.PostgresRepository); ok {
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	reconciled, err := a.store.ReconcileInterrupted(ctx, time.Now().In(a.cfg.Scheduler.Location()))
	if err != nil {
		return fmt.Errorf("reconcile interrupted runs: %w", err)
	}
	if reconciled > 0 {
		a.logger.Warn("reconciled interrupted runs", "count", reconciled)
	}
	return nil
}

// Run performs a single pipeline execution and exits.
func (a *Application) Run(ctx context.Context) error {
	if err := a.prepare(ctx); err != nil {
		return err
	}

	_, err := a.coordinator.Execute(ctx, a.dryRun)
	return err
}

// RunScheduled starts the cron loop and blocks until the context is
// canceled, then tears the scheduler down.
func (a *Application) RunScheduled(ctx context.Context) error {
	if err := a.prepare(ctx); err != nil {
		return err
	}

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression)

	<-ctx.Done()
	return a.scheduler.Stop(context.Background())
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
