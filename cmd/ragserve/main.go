package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/answer"
	"github.com/cortexa-labs/ragserve/internal/chunker"
	"github.com/cortexa-labs/ragserve/internal/config"
	"github.com/cortexa-labs/ragserve/internal/crawler"
	dbRedis "github.com/cortexa-labs/ragserve/internal/db/redis"
	"github.com/cortexa-labs/ragserve/internal/extract"
	"github.com/cortexa-labs/ragserve/internal/ingest"
	logpkg "github.com/cortexa-labs/ragserve/internal/logger"
	"github.com/cortexa-labs/ragserve/internal/memory"
	"github.com/cortexa-labs/ragserve/internal/metrics"
	chiTransport "github.com/cortexa-labs/ragserve/internal/transport/chi"
	openaiProvider "github.com/cortexa-labs/ragserve/internal/transport/openai"
	"github.com/cortexa-labs/ragserve/internal/vectorstore"
	"github.com/cortexa-labs/ragserve/internal/vectorstore/embcache"
	"github.com/cortexa-labs/ragserve/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting ragserve API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("data_root", cfg.Storage.DataRoot),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register pipeline metrics explicitly (no init())
	metrics.Register()

	// Embedder chain: OpenAI -> Cached
	baseEmbedder := openaiProvider.NewEmbedder(&openaiProvider.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	embedder := embcache.New(baseEmbedder, store, cfg.Storage.KeyPrefix, metrics.EmbeddingCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	chatAPIKey := cfg.LLM.APIKey
	if chatAPIKey == "" {
		chatAPIKey = cfg.Embedding.APIKey
	}
	chatModel := openaiProvider.NewChatModel(&openaiProvider.ChatConfig{
		APIKey:  chatAPIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Logger:  logger,
	})

	tenantStore := vectorstore.New(
		store, embedder, cfg.Storage.KeyPrefix, cfg.Embedding.Dimensions,
		vectorstore.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		},
		logger,
	)

	memoryManager := memory.New(time.Duration(cfg.Memory.IdleTTLSec)*time.Second, logger)

	splitter, err := chunker.New(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		logger.Fatal("Failed to create chunker", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Crawler.FetchTimeoutSec) * time.Second}

	registry := extract.NewRegistry(logger)
	fetcher := extract.NewFetcher(httpClient, registry, cfg.Storage.DataRoot,
		int64(cfg.Crawler.MaxBodyBytes), logger)

	ingestSvc := ingest.New(registry, fetcher, splitter, tenantStore,
		ingest.NewCleanStore(cfg.Storage.DataRoot), cfg.Storage.DataRoot, logger)

	siteCrawler := crawler.New(httpClient, ingestSvc, memoryManager, cfg.Crawler.Workers, logger)

	answerSvc := answer.New(tenantStore, memoryManager, chatModel, chatModel, answer.DefaultTopK, logger)

	server := chiTransport.NewServer(ingestSvc, siteCrawler, answerSvc, memoryManager, store, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
