package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipechat/pipechat-server/internal/auth"
	"github.com/pipechat/pipechat-server/internal/config"
	"github.com/pipechat/pipechat-server/internal/core"
	"github.com/pipechat/pipechat-server/internal/store"
	"github.com/pipechat/pipechat-server/internal/store/fsblob"
	"github.com/pipechat/pipechat-server/internal/store/sqlite"
	transporthttp "github.com/pipechat/pipechat-server/internal/transport/http"
	"github.com/pipechat/pipechat-server/internal/transport/tcp"
)

// App wires together the stores, the session table, and the transports.
type App struct {
	tcp             *tcp.Server
	ops             *stdhttp.Server
	table           *core.Table
	store           store.Store
	shutdownTimeout time.Duration
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	blobs, err := fsblob.New(cfg.FilesDir)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	logger.Info().Str("files_dir", cfg.FilesDir).Msg("blob store initialized")

	authService := auth.NewService(st)
	table := core.NewTable(cfg.WriteTimeout, logger)

	a := &App{
		tcp:             tcp.NewServer(cfg.Addr, table, authService, st, blobs, logger),
		table:           table,
		store:           st,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}
	if cfg.OpsAddr != "" {
		a.ops = transporthttp.NewServer(table, cfg, logger)
	}
	return a, nil
}

// Run starts the transports and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	if err := a.tcp.Listen(); err != nil {
		a.cleanup()
		return err
	}
	a.log.Info().Str("addr", a.tcp.Addr().String()).Msg("listening for clients")

	serverErr := make(chan error, 2)
	started := 1

	go func() {
		serverErr <- a.tcp.Serve(ctx)
	}()

	if a.ops != nil {
		started++
		a.log.Info().Str("addr", a.ops.Addr).Msg("ops server listening")
		go func() {
			if err := a.ops.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
				serverErr <- err
				return
			}
			serverErr <- nil
		}()
	}

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		if a.ops != nil {
			a.log.Info().Msg("shutting down ops server")
			if err := a.ops.Shutdown(shutdownCtx); err != nil {
				a.log.Warn().Err(err).Msg("ops server shutdown")
			}
		}

		var firstErr error
		for i := 0; i < started; i++ {
			if err := <-serverErr; err != nil && firstErr == nil {
				firstErr = err
			}
		}
		a.table.CloseAll()
		a.cleanup()
		return firstErr
	}
}

// cleanup closes the database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
