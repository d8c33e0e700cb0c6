// Package server initializes and runs the sync server: it opens the
// database, applies migrations, wires the sync pipeline and serves the
// HTTP API until the process is signalled to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/akarpov87/taskhive/internal/logging"
	"github.com/akarpov87/taskhive/internal/server/config"
	"github.com/akarpov87/taskhive/internal/server/extract"
	"github.com/akarpov87/taskhive/internal/server/httpapi"
	"github.com/akarpov87/taskhive/internal/server/migrations"
	"github.com/akarpov87/taskhive/internal/server/perm"
	"github.com/akarpov87/taskhive/internal/server/reconcile"
	"github.com/akarpov87/taskhive/internal/server/services"
	"github.com/akarpov87/taskhive/internal/server/store"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	router http.Handler
}

func NewApp(cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := runMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	rows := store.NewPostgres(db)
	evaluator := perm.NewEvaluator(rows, logger)
	extractor := extract.NewExtractor(rows, logger)
	reconciler := reconcile.NewReconciler(rows, evaluator, logger)

	syncSvc := services.NewSyncService(reconciler, extractor, logger)
	attachSvc := services.NewAttachmentService(rows, evaluator, cfg, logger)

	handler := httpapi.NewHandler(syncSvc, attachSvc)
	router := httpapi.NewRouter([]byte(cfg.SecretKey), handler, logger)

	return &App{config: cfg, logger: logger, db: db, router: router}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, err.Error())
		}
	}()

	app.logger.Info(ctx, "HTTP server listening", "addr", app.config.EndpointAddrHTTP)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
