package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"debt-tracker/internal/api"
	"debt-tracker/internal/config"
	"debt-tracker/internal/handlers"
	"debt-tracker/internal/session"
	"debt-tracker/internal/storage"
	"debt-tracker/internal/storage/redisstore"
	"debt-tracker/pkg/logging"
)

const (
	cleanupInterval = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.LogLevel)
	logger := slog.Default()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.New(cfg.APIBaseURL, api.WithTimeout(cfg.RequestTimeout), api.WithLogger(logger))
	h := handlers.NewHandlers(client, store, cfg.TemplateDir, cfg.SecureCookie, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", srv.Addr, "api", cfg.APIBaseURL, "sessions", cfg.SessionBackend)
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

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore opens the configured session store. The SQLite store also gets a
// background loop purging rows idle for longer than the cookie lifetime.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		store, err := redisstore.Connect(ctx, redisstore.Config{
			Addr: cfg.Redis.Addr,
			DB:   cfg.Redis.DB,
			TTL:  session.CookieLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return store, nil
	default:
		db, err := storage.NewDB(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		go cleanIdleSessions(ctx, db, logger)
		return db, nil
	}
}

func cleanIdleSessions(ctx context.Context, db *storage.DB, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		n, err := db.CleanIdleSessions(ctx, session.CookieLifetime)
		if err != nil && ctx.Err() == nil {
			logger.Error("Failed to clean idle sessions", "error", err)
		} else if n > 0 {
			logger.Info("Cleaned idle sessions", "count", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func setupRouter(h *handlers.Handlers, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("GET /{$}", h.RegisterForm)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /login", h.LoginForm)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.HandleFunc("GET /dashboard", h.RequireAuth(h.Dashboard))
	mux.HandleFunc("POST /debts", h.RequireAuth(h.CreateDebt))
	mux.HandleFunc("POST /debts/{id}/pay", h.RequireAuth(h.PayDebt))
	mux.HandleFunc("POST /split", h.RequireAuth(h.Split))

	return mux
}
