// Package server exposes the sync engine over HTTP: the manual trigger, run
// status, runtime settings and book covers.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shelfmark/shelfsync/internal/ledger"
	"github.com/shelfmark/shelfsync/internal/sync"
)

// Deps is everything the handlers need.
type Deps struct {
	Store *ledger.Store
	Coord *sync.Coordinator

	// EnvFile is the managed env file rewritten on settings save; empty
	// disables the rewrite.
	EnvFile string
}

type Server struct {
	addr string
	http *http.Server
}

func New(addr string, deps *Deps) *Server {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: SetupRoutes(deps),
		// Timeouts to prevent slow client attacks. WriteTimeout is generous
		// because a manual trigger holds the request for the whole run.
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Minute,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return &Server{
		addr: addr,
		http: httpServer,
	}
}

func (s *Server) Start(ctx context.Context) error {
	slog.Info("server start", "addr", fmt.Sprintf("http://%s", s.addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	slog.Info("server stop")
	return s.http.Shutdown(ctx)
}
