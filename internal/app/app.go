package app

import (
	"context"
	"fmt"
	"log/slog"

	"SignalScanner/internal/analyze"
	"SignalScanner/internal/classify"
	"SignalScanner/internal/config"
	"SignalScanner/internal/digest"
	"SignalScanner/internal/infrastructure/content"
	"SignalScanner/internal/infrastructure/llm"
	"SignalScanner/internal/infrastructure/scheduler"
	"SignalScanner/internal/infrastructure/scrape"
	"SignalScanner/internal/infrastructure/storage"
	"SignalScanner/internal/infrastructure/telegram"
	"SignalScanner/internal/logging"
	"SignalScanner/internal/ports"
	"SignalScanner/internal/project"
	"SignalScanner/internal/source"
	"SignalScanner/internal/usecase"
)

// Application wires config to adapters, use cases, and lifecycle.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	Projects  *project.Registry
	Store     *storage.PostgresRepository
	Scanner   *usecase.Scanner
	Digests   *usecase.DigestRunner
	Bookmarks *usecase.Bookmarks

	scheduled *usecase.ScheduledScans
	closeDB   func() error
}

// New builds a runnable application instance from configuration.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store, err := storage.NewPostgresRepository(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	projects := project.NewRegistry(cfg.Projects.Dir)

	completer := llm.NewAnthropicClient(cfg.Anthropic)
	batcher := classify.NewBatcher(completer, projects, completer.Model(), logging.Component(baseLogger, "classify"))
	engine := analyze.NewEngine(store, cfg.Scan.BatchSize, cfg.Scan.UnitCostUSD, logging.Component(baseLogger, "analyze"))

	sources := source.NewRegistry()
	sources.Register(scrape.NewRedditSource(nil, cfg.Scan.UserAgent))
	sources.Register(scrape.NewHackerNewsSource(nil))
	sources.Register(scrape.NewRSSSource(nil, cfg.Scan.UserAgent))

	scanner := usecase.NewScanner(usecase.ScannerDeps{
		Sources:    sources,
		Classifier: batcher,
		Engine:     engine,
		Logger:     logging.Component(baseLogger, "scan"),
	})

	fetcher := content.NewFetcher(nil, cfg.Scan.UserAgent)
	generator := digest.NewGenerator(store, completer, projects, fetcher, cfg.Digest.OutputDir, logging.Component(baseLogger, "digest"))

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}
	digests := usecase.NewDigestRunner(generator, notifier, logging.Component(baseLogger, "digest"))

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval)
	scheduled := usecase.NewScheduledScans(driver, scanner, projects, cfg.Scan.DefaultLimit, logging.Component(baseLogger, "scheduler"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		Projects:  projects,
		Store:     store,
		Scanner:   scanner,
		Digests:   digests,
		Bookmarks: usecase.NewBookmarks(store, cfg.Digest.OutputDir),
		scheduled: scheduled,
		closeDB:   db.Close,
	}, nil
}

// Config exposes the effective configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// RunScheduled starts recurring scans and blocks until the context ends.
func (a *Application) RunScheduled(ctx context.Context) error {
	if err := a.scheduled.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	return a.scheduled.Stop(context.Background())
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.closeDB == nil {
		return nil
	}
	return a.closeDB()
}
