// Package daemon wires the long-running process: the state ledger, the sync
// coordinator, the interval scheduler and the HTTP server, with one shutdown
// path for all of them.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/shelfmark/shelfsync/internal/config"
	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/server"
	"github.com/shelfmark/shelfsync/internal/sync"
	"github.com/shelfmark/shelfsync/internal/utils"
)

type Daemon struct {
	cfg       *config.Config
	store     *ledger.Store
	coord     *sync.Coordinator
	scheduler *sync.Scheduler
	server    *server.Server
}

func New(cfg *config.Config) (*Daemon, error) {
	if err := utils.EnsureDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := ledger.Open(cfg.StateDBPath())
	if err != nil {
		return nil, err
	}
	store.SetDefaults(cfg.LedgerDefaults())
	if err := store.Bootstrap(); err != nil {
		store.Close()
		return nil, fmt.Errorf("bootstrap settings: %w", err)
	}

	coord := sync.NewCoordinator(store, cfg.APIBase)

	srv := server.New(fmt.Sprintf(":%d", store.AppPort()), &server.Deps{
		Store:   store,
		Coord:   coord,
		EnvFile: cfg.EnvFile,
	})

	return &Daemon{
		cfg:       cfg,
		store:     store,
		coord:     coord,
		scheduler: sync.NewScheduler(coord, store),
		server:    srv,
	}, nil
}

// Run starts the scheduler and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("shelfsync start",
		"datadir", d.cfg.DataDir,
		"library", filepath.Clean(d.store.LibraryDir()),
		"mode", d.store.Mode(),
	)

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	d.scheduler.Start(schedCtx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- d.server.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		slog.Info("received interrupt signal, stopping")
	case err := <-serverErr:
		if err != nil {
			stopScheduler()
			d.store.Close()
			return err
		}
	}

	// Stop the listener first so no new trigger can start a run, then let the
	// scheduler loop drain. An in-flight run is not interrupted.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.server.Stop(shutdownCtx); err != nil {
		slog.Error("server shutdown", "error", err)
	}

	stopScheduler()
	d.scheduler.Wait()

	return d.store.Close()
}
