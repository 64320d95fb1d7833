package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "time/tzdata"

	"go.uber.org/zap"

	"github.com/fonsecaaso/shortlink/go-server/config"
	db "github.com/fonsecaaso/shortlink/go-server/internal/database"
	"github.com/fonsecaaso/shortlink/go-server/internal/metrics"
	"github.com/fonsecaaso/shortlink/go-server/internal/middleware"
	"github.com/fonsecaaso/shortlink/go-server/internal/observability"
	"github.com/fonsecaaso/shortlink/go-server/internal/repository"
	route "github.com/fonsecaaso/shortlink/go-server/internal/routes"
	"github.com/fonsecaaso/shortlink/go-server/internal/token"
)

const shutdownTimeout = 10 * time.Second

func main() {
	bootLogger := zap.Must(zap.NewProduction())
	defer bootLogger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger.Fatal("error loading configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, cfg)
	if err != nil {
		bootLogger.Fatal("observability failed to initialize", zap.Error(err))
	}
	logger := obs.Logger

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("store failed to initialize",
			zap.String("driver", cfg.StoreDriver),
			zap.Error(err),
		)
	}
	defer store.Close()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	defer limiter.Stop()

	metrics.StartSystemMetricsCollection(ctx)

	r := route.SetupRouter(route.Dependencies{
		Config:      cfg,
		Store:       store,
		Tokens:      token.NewManager(cfg.JWTSecret, cfg.JWTTTL),
		RateLimiter: limiter,
		OTelMetrics: obs.PrometheusHandler,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		bootLogger.Error("observability shutdown failed", zap.Error(err))
	}
}

// openStore connects the configured backend, applies the schema and puts the
// optional Redis link cache in front of it.
func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	logger := zap.L()

	redisClient, err := db.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if redisClient != nil {
		logger.Info("redis connection established")
	} else {
		logger.Info("REDIS_ADDR not set, link cache disabled")
	}

	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		sqlDB, err := db.NewSQLiteClient(ctx, cfg.SQLiteDSN)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := db.MigrateSQLite(ctx, sqlDB); err != nil {
				sqlDB.Close()
				return nil, err
			}
		}
		logger.Info("sqlite connection established")
		return repository.NewSQLiteStore(sqlDB, redisClient, cfg.LinkCacheTTL), nil

	default:
		if cfg.RunMigrations {
			if err := db.MigratePostgres(cfg.PostgresURL); err != nil {
				return nil, err
			}
		}
		pool, err := db.NewPostgresClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("postgres connection established")
		return repository.NewPostgresStore(pool, redisClient, cfg.LinkCacheTTL), nil
	}
}
