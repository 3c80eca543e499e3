// Command ya-gateway exposes the request dispatcher over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Sternrassler/ya-request/pkg/dataset"
	"github.com/Sternrassler/ya-request/pkg/errcode"
	"github.com/Sternrassler/ya-request/pkg/logging"
	"github.com/Sternrassler/ya-request/pkg/request"
	"github.com/Sternrassler/ya-request/pkg/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var configFilenameFlag string

func init() {
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
}

func main() {
	flag.Parse()

	logger := logging.Setup(logging.ConfigFromEnv())

	cfg, err := loadConfig(configFilenameFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open store")
	}
	defer closeStore()

	g, err := newGateway(cfg, s, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create gateway")
	}

	if len(cfg.Warmup) > 0 {
		if err := g.warmup(ctx, cfg.Warmup); err != nil {
			logger.Warn().Err(err).Msg("Continuing without complete warmup")
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(g),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", srv.Addr).
		Str("backend", cfg.Backend.Origin).
		Int("endpoints", len(cfg.Endpoints)).
		Msg("Starting gateway")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	logger.Info().Msg("Gateway stopped")
}

// newGateway builds the dispatcher and binds the configured endpoints.
func newGateway(cfg Config, s store.Store, logger zerolog.Logger) (*gateway, error) {
	detector, err := cfg.Backend.environment()
	if err != nil {
		return nil, err
	}

	dcfg := request.DefaultConfig(cfg.Backend.Origin)
	dcfg.APIDomain = cfg.Backend.Domain
	dcfg.APIPrefix = cfg.Backend.Prefix
	dcfg.Environment = detector
	if cfg.Backend.Timeout > 0 {
		dcfg.HTTPClient = &http.Client{Timeout: cfg.Backend.Timeout}
	}
	if cfg.ErrorCodes != "" {
		table, err := errcode.Load(cfg.ErrorCodes)
		if err != nil {
			return nil, err
		}
		dcfg.ErrorCodes = table
	}

	d, err := request.New(dcfg)
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}

	g := &gateway{
		dispatcher: d,
		endpoints:  make(map[string]*dataset.Endpoint, len(cfg.Endpoints)),
		timeout:    cfg.Backend.Timeout,
		logger:     logger.With().Str("component", "gateway").Logger(),
	}
	for _, ec := range cfg.Endpoints {
		ep, err := dataset.Bind(d, ec.Path, dataset.Config{
			Strict:        ec.Strict,
			Cache:         ec.Cache,
			Persist:       ec.Persist,
			Prefer:        ec.Prefer,
			HistoryLength: ec.HistoryLength,
			Store:         s,
		})
		if err != nil {
			return nil, fmt.Errorf("bind endpoint %s: %w", ec.Path, err)
		}
		g.endpoints[ec.Path] = ep
	}
	return g, nil
}

// openStore picks the persistent backend from the environment:
// REDIS_URL selects Redis, SQLITE_PATH selects SQLite, otherwise memory.
func openStore(ctx context.Context, logger zerolog.Logger) (store.Store, func(), error) {
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts := &redis.Options{Addr: redisURL}
		if strings.Contains(redisURL, "://") {
			parsed, err := redis.ParseURL(redisURL)
			if err != nil {
				return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
			}
			opts = parsed
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Str("backend", "redis").Str("addr", opts.Addr).Msg("Connected to store")
		return store.NewRedis(redisClient, store.RedisOptions{}), func() { redisClient.Close() }, nil
	}

	if path := os.Getenv("SQLITE_PATH"); path != "" {
		s, err := store.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("backend", "sqlite").Str("path", path).Msg("Opened store")
		return s, func() { s.Close() }, nil
	}

	logger.Info().Str("backend", "memory").Msg("Using in-memory store")
	return store.NewMemory(), func() {}, nil
}
