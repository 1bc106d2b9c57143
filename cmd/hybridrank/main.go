package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/config"
	"github.com/kailas-cloud/hybridrank/internal/db"
	dbRedis "github.com/kailas-cloud/hybridrank/internal/db/redis"
	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/domain/content"
	"github.com/kailas-cloud/hybridrank/internal/domain/ranking"
	logpkg "github.com/kailas-cloud/hybridrank/internal/logger"
	"github.com/kailas-cloud/hybridrank/internal/metrics"
	"github.com/kailas-cloud/hybridrank/internal/repository/embcache"
	grouprepo "github.com/kailas-cloud/hybridrank/internal/repository/group"
	intentrepo "github.com/kailas-cloud/hybridrank/internal/repository/intent"
	itemrepo "github.com/kailas-cloud/hybridrank/internal/repository/item"
	"github.com/kailas-cloud/hybridrank/internal/repository/qdrantindex"
	tenantrepo "github.com/kailas-cloud/hybridrank/internal/repository/tenant"
	"github.com/kailas-cloud/hybridrank/internal/textseg"
	chiTransport "github.com/kailas-cloud/hybridrank/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/hybridrank/internal/transport/openai"
	"github.com/kailas-cloud/hybridrank/internal/transport/rerankhttp"
	"github.com/kailas-cloud/hybridrank/internal/usecase/cacheadmin"
	embeddinguc "github.com/kailas-cloud/hybridrank/internal/usecase/embedding"
	"github.com/kailas-cloud/hybridrank/internal/usecase/groupiso"
	healthuc "github.com/kailas-cloud/hybridrank/internal/usecase/health"
	"github.com/kailas-cloud/hybridrank/internal/usecase/intentboost"
	"github.com/kailas-cloud/hybridrank/internal/usecase/rerank"
	"github.com/kailas-cloud/hybridrank/internal/usecase/retrieval"
	"github.com/kailas-cloud/hybridrank/internal/usecase/source"
	"github.com/kailas-cloud/hybridrank/internal/version"
)

func main() {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		panic("failed to load .env: " + err.Error())
	}

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting hybridrank API server",
		zap.String("build", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("vector_backend", cfg.VectorIndex.Backend),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:      cfg.Database.Addrs,
		Password:   cfg.Database.Password,
		ClientName: "hybridrank",
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.Register()

	embedTimeout, indexTimeout, rerankTimeout := cfg.Timeouts()
	rankCfg := cfg.RankingConfig()
	prefix := cfg.Storage.KeyPrefix
	dims := cfg.Embedding.Dimensions

	queryEmbedder := buildEmbedder(cfg, store, logger)
	logger.Info("Query embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", dims),
		zap.Bool("cache", cfg.Embedding.Cache.Enabled),
	)

	segmenter, err := textseg.New()
	if err != nil {
		logger.Fatal("Failed to load segmentation dictionary", zap.Error(err))
	}

	// Indexes
	knowledgeItems := itemrepo.New(store, content.KindKnowledge, prefix, dims)
	procedureItems := itemrepo.New(store, content.KindProcedure, prefix, dims).WithOwnedOnly()
	for _, repo := range []*itemrepo.Repo{knowledgeItems, procedureItems} {
		if err := repo.EnsureIndex(ctx); err != nil {
			logger.Fatal("Failed to ensure item index", zap.String("kind", string(repo.Kind())), zap.Error(err))
		}
	}

	health := healthuc.New(store, logger).WithCheck("embedding", healthChecker(queryEmbedder))

	var knowledgeIndex source.Index = knowledgeItems
	if cfg.VectorIndex.Backend == config.BackendQdrant {
		qc := cfg.VectorIndex.Qdrant
		client, err := qdrantindex.Dial(qdrantindex.Config{
			Host: qc.Host, Port: qc.Port, APIKey: qc.APIKey, UseTLS: qc.UseTLS,
		})
		if err != nil {
			logger.Fatal("Failed to connect to Qdrant", zap.Error(err))
		}
		defer func() { _ = client.Close() }()

		idx := qdrantindex.New(client, qc.Collection, content.KindKnowledge, dims)
		if err := idx.EnsureCollection(ctx); err != nil {
			logger.Fatal("Failed to ensure Qdrant collection", zap.Error(err))
		}
		knowledgeIndex = idx
		health.WithCheck("qdrant", healthuc.CheckerFunc(func(ctx context.Context) error {
			_, err := client.HealthCheck(ctx)
			return err //nolint:wrapcheck // reported by component name
		}))
		logger.Info("Knowledge vectors served by Qdrant", zap.String("collection", qc.Collection))
	}

	// Metadata caches
	tenants := tenantrepo.NewCached(tenantrepo.New(store, prefix))
	boosts := intentboost.New(rankCfg.Intent, intentrepo.New(store, prefix), logger)
	groups := grouprepo.New(store, procedureItems, prefix)

	// Ranking
	timeouts := retrieval.Timeouts{Embedding: embedTimeout, Index: indexTimeout}
	knowledgeSrc := source.NewKnowledge(knowledgeIndex)
	procedureSrc := source.NewProcedure(procedureItems)

	knowledge := retrieval.New[source.KnowledgeResult](
		knowledgeSrc, queryEmbedder, segmenter, boosts, tenants, rankCfg, logger,
	).WithTimeouts(timeouts)
	procedures := retrieval.New[source.ProcedureResult](
		procedureSrc, queryEmbedder, segmenter, boosts, tenants, rankCfg, logger,
	).WithTimeouts(timeouts)

	if cfg.Reranker.Enabled {
		client := rerankhttp.New(&rerankhttp.Config{
			URL:           cfg.Reranker.URL,
			Model:         cfg.Reranker.Model,
			Timeout:       rerankTimeout,
			RatePerSecond: cfg.Reranker.RatePerSec,
			Burst:         cfg.Reranker.Burst,
			Logger:        logger,
		})
		knowledge.WithReranker(newReranker(knowledgeSrc.Name(), client, rankCfg, rerankTimeout, logger))
		procedures.WithReranker(newReranker(procedureSrc.Name(), client, rankCfg, rerankTimeout, logger))
		health.WithCheck("reranker", client)
		logger.Info("Reranker enabled", zap.String("url", cfg.Reranker.URL))
	}

	logger.Info("Health checks registered", zap.Strings("components", health.Names()))

	resolver := groupiso.New(groups, queryEmbedder, boosts, tenants, rankCfg, logger).
		WithTimeouts(embedTimeout, indexTimeout)

	caches := cacheadmin.New(tenants, boosts, groups, logger)

	server := chiTransport.NewServer(
		knowledge, procedures, resolver, procedureSrc, caches, health,
		chiTransport.Defaults{
			Knowledge:  cfg.Retrieval.Knowledge.Query(),
			Procedures: cfg.Retrieval.Procedures.Query(),
		},
		logger,
	)

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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
func buildEmbedder(cfg config.Config, store db.KVStore, logger *zap.Logger) domain.Embedder {
	e := cfg.Embedding

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     e.APIKey,
		BaseURL:    e.BaseURL,
		Model:      e.Model,
		Dimensions: e.Dimensions,
		Provider:   e.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if e.Cache.Enabled {
		embedder = embcache.New(base, store, embcache.Options{
			Prefix: cfg.Storage.KeyPrefix,
			Model:  e.Model,
			TTL:    time.Duration(e.Cache.TTLSec) * time.Second,
		}, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, e.Provider, e.Model, logger)

	// Instruction prefix (outermost, so the cache key includes it)
	if e.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, e.QueryInstruction)
	}
	return embedder
}

func newReranker(
	name string, scorer domain.RerankScorer, cfg ranking.Config, timeout time.Duration, logger *zap.Logger,
) *rerank.Adapter {
	return rerank.New(name, scorer, cfg.Rerank, logger).WithTimeout(timeout)
}

// healthChecker returns nil when the embedder cannot report health.
func healthChecker(e domain.Embedder) healthuc.Checker {
	if hc, ok := e.(domain.HealthChecker); ok {
		return hc
	}
	return nil
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
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("tenant_id", chi.URLParamFromCtx(r.Context(), "tenantID")),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
				zap.String("embedding_tokens", ww.Header().Get("X-Embedding-Tokens")),
			)
		})
	}
}
