package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/totoufu/archi-input/internal/config"
	"github.com/totoufu/archi-input/internal/infrastructure/fetcher"
	"github.com/totoufu/archi-input/internal/infrastructure/gemini"
	"github.com/totoufu/archi-input/internal/infrastructure/imagestore"
	"github.com/totoufu/archi-input/internal/infrastructure/scheduler"
	"github.com/totoufu/archi-input/internal/infrastructure/storage"
	"github.com/totoufu/archi-input/internal/infrastructure/telegram"
	"github.com/totoufu/archi-input/internal/logging"
	"github.com/totoufu/archi-input/internal/server"
	"github.com/totoufu/archi-input/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// Application wires configuration to the storage, model gateway, API
// server, and digest lifecycle.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	db     *sql.DB
	srv    *http.Server
	digest *usecase.Digest
}

// New builds a runnable application instance. It opens the database and
// runs pending migrations before any handler is mounted.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.Migrate(ctx, db, logging.Component(baseLogger, "migrate")); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	repo := storage.NewPostgresRepository(db)

	images, err := imagestore.New(cfg.Images.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("image store: %w", err)
	}

	pages := fetcher.New(cfg.Scraper, logging.Component(baseLogger, "fetcher"))
	gateway := gemini.NewClient(cfg.Gemini, logging.Component(baseLogger, "gemini"))
	analyzer := usecase.NewAnalyzer(pages, gateway, repo, logging.Component(baseLogger, "analyzer"))

	api := server.NewServer(repo, analyzer, images, cfg.Digest.Location(), logging.Component(baseLogger, "server"))

	var digest *usecase.Digest
	notifier := telegram.NewNotifier(cfg.Digest.Telegram)
	if notifier.Configured() {
		digest = usecase.NewDigest(
			scheduler.NewDailyScheduler(),
			repo,
			notifier,
			cfg.Digest.Location(),
			logging.Component(baseLogger, "digest"),
		)
	}

	return &Application{
		cfg:    cfg,
		logger: baseLogger,
		db:     db,
		srv:    &http.Server{Addr: cfg.Server.Addr, Handler: api.Router()},
		digest: digest,
	}, nil
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (a *Application) Run(ctx context.Context) error {
	if a.digest != nil {
		if err := a.digest.Start(ctx); err != nil {
			return fmt.Errorf("start digest: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.cfg.Server.Addr)
		errCh <- a.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.digest != nil {
		if err := a.digest.Stop(shutdownCtx); err != nil {
			a.logger.Warn("digest stop failed", "error", err)
		}
	}
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("database close failed", "error", err)
	}

	return nil
}
