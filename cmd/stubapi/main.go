// Command stubapi serves the in-memory debts backend for local development
// and end-to-end tests.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-envconfig"

	"debt-tracker/internal/stubapi"
	"debt-tracker/pkg/logging"
)

type config struct {
	Addr     string `env:"STUB_ADDR, default=:8000"`
	Secret   string `env:"STUB_SECRET, default=stub-backend-secret"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// SeedUsers creates accounts at startup, e.g. "alice:secret,bob:secret".
	SeedUsers map[string]string `env:"STUB_USERS"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Stub backend failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)
	logger := slog.Default()

	stub := stubapi.New(stubapi.WithSecret(cfg.Secret), stubapi.WithLogger(logger))
	for username, password := range cfg.SeedUsers {
		if _, err := stub.AddUser(username, username+"@example.com", password); err != nil {
			return err
		}
		logger.Info("Seeded user", "username", username)
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: stub, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Stub backend listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
