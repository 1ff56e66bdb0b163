package httpapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type AppOpts struct {
	Log             *slog.Logger
	Port            int
	ShutdownTimeout time.Duration
}

type App struct {
	AppOpts
	server *http.Server
}

func New(opts AppOpts, handler http.Handler) *App {
	wrapped := loggingMiddleware(opts.Log, recoveryMiddleware(opts.Log, handler))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: wrapped,
	}

	return &App{AppOpts: opts, server: server}
}

// MustRun runs the HTTP server and panics if any error occurs
func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpapp.Run"
	log := a.Log.With(slog.String("op", op), slog.Int("port", a.Port))

	log.Info("HTTP server is running", slog.String("addr", a.server.Addr))

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() error {
	const op = "httpapp.Stop"

	a.Log.With(slog.String("op", op), slog.Int("port", a.Port)).Info("stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
