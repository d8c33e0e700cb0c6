// Package cli wires the client pieces into the taskhive-sync command: it
// opens the local database, builds the sync orchestrator and either runs a
// single sync cycle or keeps syncing on a timer until the process is
// signalled to stop.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarpov87/taskhive/internal/client/config"
	"github.com/akarpov87/taskhive/internal/client/storage"
	"github.com/akarpov87/taskhive/internal/client/syncer"
	"github.com/akarpov87/taskhive/internal/client/transport"
	"github.com/akarpov87/taskhive/internal/logging"
)

type App struct {
	config *config.Config
	logger logging.Logger
	repos  *storage.Repositories
	client transport.Client
	syncer *syncer.Orchestrator
}

func NewApp(c *config.Config) (*App, error) {

	ctx := context.Background()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	repos, err := storage.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	client := transport.NewHTTPClient(c.ServerEndpointAddr, c.AuthToken)
	o := syncer.NewOrchestrator(client, repos, c.SchemaVersion, c.PendingThreshold, logger)

	return &App{config: c, logger: logger, repos: repos, client: client, syncer: o}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run performs one sync cycle and prints the resulting state. In watch mode
// it instead keeps a cycle running every SyncInterval until the process is
// signalled.
func (app *App) Run(ctx context.Context) {
	defer app.close(ctx)

	if app.config.Reset {
		if err := app.syncer.Reset(ctx); err != nil {
			app.logger.Error(ctx, "reset failed", "error", err.Error())
			return
		}
		app.logger.Info(ctx, "local sync state wiped")
	}

	if app.config.Watch {
		app.watch(ctx)
		return
	}

	if err := app.syncer.Trigger(ctx); err != nil {
		app.logger.Error(ctx, "sync failed", "error", err.Error())
	}
	app.printStatus(ctx)
}

func (app *App) watch(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := app.client.Ping(pingCtx); err != nil {
		app.logger.Warn(ctx, "server unreachable, cycles will retry", "error", err.Error())
	}
	cancel()

	if err := app.syncer.Trigger(ctx); err != nil {
		app.logger.Warn(ctx, "initial sync failed", "error", err.Error())
	}

	app.logger.Info(ctx, "watching", "interval", app.config.SyncInterval.String())
	app.syncer.Run(ctx, app.config.SyncInterval)
}

func (app *App) printStatus(ctx context.Context) {
	st, err := app.syncer.Status(ctx)
	if err != nil {
		app.logger.Error(ctx, "status error", "error", err.Error())
		return
	}
	fmt.Printf("state: %s\npending: %d\nlast pulled at: %d\n", st.State, st.Pending, st.LastPulledAt)
}

func (app *App) close(ctx context.Context) {
	if err := app.client.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	if err := app.repos.DB.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
