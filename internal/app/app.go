// Package app encapsulates the bridge's components and lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fedbridge/internal/retention"
	"fedbridge/pkg/banner"
	"fedbridge/pkg/config"
	"fedbridge/pkg/intake"
	"fedbridge/pkg/keys"
	"fedbridge/pkg/logger"
	"fedbridge/pkg/store"
	"fedbridge/pkg/webmention"
)

// App wires the store, key store, intake pipeline, and HTTP server.
type App struct {
	cfg     *config.Config
	version string

	keys   *keys.Store
	disp   *webmention.Dispatcher
	intake *intake.Intake

	srv *http.Server
}

// New opens the store and builds the pipeline. It does not start the HTTP
// server; call Run to start it and block until shutdown.
func New(cfg *config.Config, version string) (*App, error) {
	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}

	ks := keys.New(nil)
	disp := webmention.NewDispatcher(nil, cfg.Bridge.UserAgent)
	in := intake.New(ks, disp)

	return &App{cfg: cfg, version: version, keys: ks, disp: disp, intake: in}, nil
}

// Run starts the retention runner and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.cfg.Addr(), a.cfg.Storage.DBPath, a.cfg.Bridge.Host, a.version)

	stopRetention, err := retention.Start(ctx, a.cfg.Retention)
	if err != nil {
		return err
	}
	defer stopRetention()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutCtx); err != nil {
			logger.Log.Warn("http_shutdown_error", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the store.
func (a *App) Close() error {
	return store.Close()
}
