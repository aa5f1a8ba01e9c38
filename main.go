package main

import (
	"context"
	"embed"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"todolist/internal/config"
	"todolist/internal/handlers"
	"todolist/internal/logging"
	"todolist/internal/store"
	"todolist/internal/tasks"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	envPath := flag.String("env-file", "", "path to a .env file")
	flag.Parse()

	// Configuration
	cfg, err := config.Load(*envPath, *configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("server failed")
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize store
	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.WithError(err).Warn("failed to close store")
		}
	}()

	svc := tasks.NewService(s,
		tasks.WithReorderConcurrency(cfg.ReorderConcurrency),
		tasks.WithLogger(logger),
	)

	static, err := staticFiles(cfg.StaticDir)
	if err != nil {
		return err
	}

	h := handlers.New(svc, s, logger)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(handlers.RouterOptions{Static: static, CORSOrigins: cfg.CORSOrigins}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", srv.Addr).Infof("Starting server on http://localhost%s", srv.Addr)
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Duration)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore opens the SQLite store and, when configured, wraps it in a Redis
// list cache.
func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (store.Store, error) {
	if err := ensureDataDir(cfg.DBPath); err != nil {
		return nil, err
	}

	db, err := store.OpenSQLite(cfg.DBDriver, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	logger.WithFields(log.Fields{"driver": cfg.DBDriver, "path": cfg.DBPath}).Info("database ready")

	if !cfg.CacheEnabled() {
		return db, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("redis unreachable, list cache will fall back to the database")
	}
	logger.WithField("ttl", cfg.CacheTTL.Duration).Info("redis list cache enabled")
	return store.NewCache(db, client, cfg.CacheTTL.Duration, logger), nil
}

// ensureDataDir creates the directory holding a file-backed database.
func ensureDataDir(dbPath string) error {
	if dbPath == ":memory:" || filepath.Dir(dbPath) == "." {
		return nil
	}
	return os.MkdirAll(filepath.Dir(dbPath), 0755)
}

// staticFiles returns the browser client, from dir when set or the embedded
// copy otherwise.
func staticFiles(dir string) (fs.FS, error) {
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
		return os.DirFS(dir), nil
	}
	return fs.Sub(staticFS, "static")
}
