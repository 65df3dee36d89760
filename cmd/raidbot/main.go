package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"raidbot/internal/config"
	"raidbot/internal/constants"
	fxmodules "raidbot/internal/fx"
	"raidbot/internal/middleware"
	"raidbot/internal/server"
	"raidbot/internal/session"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
		fx.Invoke(runSessions),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	statusServer *server.StatusServer,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()

	path, handler := statusServer.Handler()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})

	mux.Handle(path, middleware.RequestID(logger)(c.Handler(handler)))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("status server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("status server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down status server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("status server shutdown failed")
			}

			if err := db.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing database connection")
			}
			logger.Info().Msg("status server stopped")
			return nil
		},
	})
}

// runSessions starts one session per target. When every session has
// stopped on its own the application shuts down.
func runSessions(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	runner *session.Runner,
	logger zerolog.Logger,
) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				err := runner.Run(ctx)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					logger.Error().Err(err).Msg("sessions stopped")
				}
				if err := shutdowner.Shutdown(); err != nil {
					logger.Warn().Err(err).Msg("failed to request shutdown")
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				logger.Info().Msg("sessions stopped gracefully")
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
