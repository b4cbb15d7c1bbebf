// Package app wires the configuration store, ledger, report sink and
// executor into one application instance for the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/attachflow/attachflow/internal/config"
	"github.com/attachflow/attachflow/internal/email"
	"github.com/attachflow/attachflow/internal/executor"
	"github.com/attachflow/attachflow/internal/ledger"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/report"
	"github.com/attachflow/attachflow/internal/types"
)

// App is one configured application instance.
type App struct {
	logger    *slog.Logger
	configDir string
	store     *config.Store
	ledger    ledger.Ledger
	sink      report.Sink
	executor  *executor.Executor
}

// New loads the configuration directory and opens the ledger.
func New(configDir string, logger *slog.Logger) (*App, error) {
	store, err := config.Load(configDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load configs: %w", err)
	}
	settings := store.Settings()

	led, err := ledger.OpenSQLite(settings.Ledger.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	var sink report.Sink
	if settings.Reports.Enabled {
		sink, err = report.NewFileSink(settings.Reports.StoragePath, logger)
		if err != nil {
			led.Close()
			return nil, fmt.Errorf("failed to create report sink: %w", err)
		}
	}

	return &App{
		logger:    logger,
		configDir: configDir,
		store:     store,
		ledger:    led,
		sink:      sink,
		executor:  executor.New(store, led, sink, logger),
	}, nil
}

// Close releases the ledger.
func (a *App) Close() error {
	return a.ledger.Close()
}

// Settings returns the loaded engine settings.
func (a *App) Settings() *types.Settings {
	return a.store.Settings()
}

// RunRule executes one rule by name.
func (a *App) RunRule(ctx context.Context, name string, force bool) (*models.RunReport, error) {
	return a.executor.RunRule(ctx, name, executor.Options{Force: force})
}

// RunRules executes the named rules, or all enabled rules when names is
// empty.
func (a *App) RunRules(ctx context.Context, names []string, force bool) []*models.RunReport {
	return a.executor.RunAll(ctx, names, executor.Options{Force: force})
}

// Watch runs the rules once, then re-runs them whenever the configuration
// directory changes, reloading the configuration each time. Returns when ctx
// is cancelled.
func (a *App) Watch(ctx context.Context, names []string, force bool) error {
	watcher, err := config.StartWatcher(a.configDir, a.logger)
	if err != nil {
		return fmt.Errorf("failed to start config watcher: %w", err)
	}
	defer watcher.Stop()

	a.RunRules(ctx, names, force)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-watcher.ReloadChan():
			if !ok {
				return nil
			}
			a.logger.Info("re-running rules after configuration change")
			if err := a.reload(); err != nil {
				a.logger.Error("failed to reload configuration", "error", err)
				continue
			}
			a.RunRules(ctx, names, force)
		}
	}
}

func (a *App) reload() error {
	store, err := config.Load(a.configDir, a.logger)
	if err != nil {
		return err
	}
	a.store = store
	a.executor = executor.New(store, a.ledger, a.sink, a.logger)
	return nil
}

// TestConnection connects to the account, authenticates and lists folders.
func (a *App) TestConnection(ctx context.Context, accountName string) ([]string, error) {
	return a.ListFolders(ctx, accountName)
}

// ListFolders lists the account's mailbox folders.
func (a *App) ListFolders(ctx context.Context, accountName string) ([]string, error) {
	account, err := a.store.Account(accountName)
	if err != nil {
		return nil, err
	}

	client, err := email.NewClient(account, a.logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Close()

	return client.ListFolders(ctx)
}

// Forget removes one processed record so the message can be reprocessed.
func (a *App) Forget(ctx context.Context, account, folder, uid string) error {
	return a.ledger.Forget(ctx, ledger.Key{Account: account, Folder: folder, UID: uid})
}
