package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tourney-pipeline/api/swagger"
	"github.com/noah-isme/tourney-pipeline/internal/automation"
	"github.com/noah-isme/tourney-pipeline/internal/handler"
	"github.com/noah-isme/tourney-pipeline/internal/messaging"
	"github.com/noah-isme/tourney-pipeline/internal/middleware"
	"github.com/noah-isme/tourney-pipeline/internal/repository"
	"github.com/noah-isme/tourney-pipeline/internal/service"
	"github.com/noah-isme/tourney-pipeline/internal/upstream"
	"github.com/noah-isme/tourney-pipeline/internal/worker"
	"github.com/noah-isme/tourney-pipeline/pkg/cache"
	"github.com/noah-isme/tourney-pipeline/pkg/config"
	"github.com/noah-isme/tourney-pipeline/pkg/database"
	"github.com/noah-isme/tourney-pipeline/pkg/jobs"
	"github.com/noah-isme/tourney-pipeline/pkg/logger"
	corsmiddleware "github.com/noah-isme/tourney-pipeline/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tourney-pipeline/pkg/middleware/requestid"
)

// @title Tourney Pipeline Ops API
// @version 0.1.0
// @description Operational endpoints for the tournament ingestion, verification and stats pipeline
// @BasePath /
// @schemes http

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Sugar().Fatalw("processor stopped", "error", err)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer rdb.Close()

	metrics := service.NewMetricsService()

	bus, err := messaging.NewBus(messaging.Config{
		BufferSize:    cfg.Broker.BufferSize,
		MaxRetries:    cfg.Broker.MaxRetries,
		RetryInterval: cfg.Broker.RetryInterval,
	}, logr, metrics.Registry())
	if err != nil {
		return fmt.Errorf("create bus: %w", err)
	}

	client := upstream.NewRateLimited(upstream.NewHTTPClient(ctx, upstream.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		TokenURL:     cfg.Upstream.TokenURL,
		ClientID:     cfg.Upstream.ClientID,
		ClientSecret: cfg.Upstream.ClientSecret,
		Timeout:      cfg.Upstream.Timeout,
	}), cfg.Upstream.RequestsPerMinute, cfg.Upstream.Burst)

	matchRepo := repository.NewMatchRepository(db)
	beatmapRepo := repository.NewBeatmapRepository(db)
	playerRepo := repository.NewPlayerRepository(db)
	tournamentRepo := repository.NewTournamentRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	dedup := service.NewDedupService(repository.NewReservationRepository(rdb), service.DedupConfig{
		Enabled:    cfg.Dedup.Enabled,
		PendingTTL: cfg.Dedup.PendingTTL,
		MatchTTL:   cfg.Dedup.MatchTTL,
		BeatmapTTL: cfg.Dedup.BeatmapTTL,
		PlayerTTL:  cfg.Dedup.PlayerTTL,
	}, metrics, logr)

	var guard service.TriggerGuard
	if cfg.Automation.TriggerGuard == config.TriggerGuardMemory {
		logr.Warn("using in-memory automation trigger guard; run a single processor instance only")
		guard = service.NewMemoryTriggerGuard()
	} else {
		guard = repository.NewRedisTriggerGuard(rdb, cfg.Automation.TriggerTTL)
	}

	tracker := service.NewCompletionTracker(matchRepo, beatmapRepo, tournamentRepo, guard, bus, metrics,
		service.CompletionConfig{Concurrency: cfg.Automation.CompletionConcurrency}, logr)

	matchFetcher := service.NewMatchFetcher(client, matchRepo, beatmapRepo, playerRepo, tracker, dedup, bus, db, metrics, logr)
	beatmapFetcher := service.NewBeatmapFetcher(client, beatmapRepo, tracker, dedup, db, metrics, logr)
	playerFetcher := service.NewPlayerFetcher(client, playerRepo, dedup, db, metrics, logr)

	engineCfg := automation.DefaultConfig()
	if cfg.Automation.ScoreMinimum > 0 {
		engineCfg.ScoreMinimum = cfg.Automation.ScoreMinimum
	}
	verification := service.NewVerificationService(tournamentRepo, automation.NewEngine(engineCfg), db,
		service.VerificationConfig{MinVerifiedMatchRatio: cfg.Automation.MinVerifiedMatchRatio}, metrics, logr)

	statsSvc := service.NewStatsService(tournamentRepo, statsRepo, db, metrics, logr)
	statsWorker := service.NewStatsWorker(statsSvc, logr)
	statsQueue := jobs.NewQueue("tournament-stats", statsWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Stats.Workers,
		MaxRetries: cfg.Stats.Retries,
		RetryDelay: cfg.Stats.RetryDelay,
		Logger:     logr,
	})
	statsQueue.Start(ctx)
	defer statsQueue.Stop()

	consumers := worker.NewConsumers(matchFetcher, beatmapFetcher, playerFetcher, verification, tracker, validator.New(), logr)
	consumers.Register(bus)

	poisoned, err := bus.Subscribe(ctx, messaging.TopicPoison)
	if err != nil {
		return fmt.Errorf("subscribe poison topic: %w", err)
	}
	go consumers.WatchPoison(ctx, poisoned)

	busErr := make(chan error, 1)
	go func() { busErr <- bus.Run(ctx) }()
	defer bus.Close() //nolint:errcheck

	if cfg.Sweeper.Enabled {
		sweeper := service.NewSweeperService(matchRepo, beatmapRepo, tournamentRepo, bus, statsQueue, service.SweeperConfig{
			FetchInterval: cfg.Sweeper.FetchInterval,
			StatsInterval: cfg.Sweeper.StatsInterval,
			BatchSize:     cfg.Sweeper.BatchSize,
		}, logr)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop() //nolint:errcheck
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metrics))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	handler.RegisterRoutes(r, handler.Handlers{
		Metrics: handler.NewMetricsHandler(metrics, map[string]handler.ReadinessCheck{
			"postgres": db.PingContext,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}),
		Tournaments:  handler.NewTournamentOpsHandler(bus, tracker, statsQueue),
		Reservations: handler.NewReservationHandler(dedup),
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown requested")
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	case err := <-busErr:
		if err != nil {
			return fmt.Errorf("message router: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
