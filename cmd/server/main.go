// The server command loads an index and serves /search, /document, /stats,
// health probes, and Prometheus metrics over HTTP. Redis query caching and
// PostgreSQL query logging are enabled when configured and degrade
// gracefully when unavailable.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuqi-zhai/passagerank/internal/bm25"
	"github.com/yuqi-zhai/passagerank/internal/index"
	"github.com/yuqi-zhai/passagerank/internal/querylog"
	"github.com/yuqi-zhai/passagerank/internal/search"
	"github.com/yuqi-zhai/passagerank/internal/server"
	"github.com/yuqi-zhai/passagerank/pkg/config"
	"github.com/yuqi-zhai/passagerank/pkg/health"
	"github.com/yuqi-zhai/passagerank/pkg/logger"
	"github.com/yuqi-zhai/passagerank/pkg/metrics"
	"github.com/yuqi-zhai/passagerank/pkg/postgres"
	pkgredis "github.com/yuqi-zhai/passagerank/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search server",
		"port", cfg.Server.Port,
		"index_dir", cfg.Index.Dir,
	)

	reader, err := index.Open(cfg.Index.Dir, cfg.Index.DocTablePath)
	if err != nil {
		slog.Error("failed to load index", "error", err)
		os.Exit(1)
	}
	defer reader.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	evaluator := search.NewEvaluator(reader, bm25.Params{K1: cfg.Search.K1, B: cfg.Search.B})
	if m != nil {
		evaluator.SetMetrics(m)
	}

	var queryCache *search.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, query caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = search.NewQueryCache(redisClient, cfg.Redis)
			slog.Info("query cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var queryLog *querylog.Store
	var pgClient *postgres.Client
	if cfg.Postgres.Host != "" {
		pgClient, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, query logging disabled", "error", err)
		} else {
			defer pgClient.Close()
			queryLog = querylog.NewStore(pgClient)
			slog.Info("query log enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checker := health.NewChecker()
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		if reader.Stats.DocCount > 0 && reader.Lexicon.Len() > 0 {
			return health.ComponentHealth{
				Status:  health.StatusUp,
				Message: fmt.Sprintf("%d documents, %d terms", reader.Stats.DocCount, reader.Lexicon.Len()),
			}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "empty index"}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if pgClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := pgClient.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})

	var metricsShutdown func(context.Context) error
	if m != nil {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	h := server.New(evaluator, reader, queryCache, queryLog, m,
		search.ParseMode(cfg.Search.Mode), cfg.Search.TopK, cfg.Search.MaxTopK)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Routes(h, checker, m, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsShutdown != nil {
			if err := metricsShutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search server listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search server stopped")
}
