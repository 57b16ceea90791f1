// Package control wires the acquisition pipeline together and manages its
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/pressly/goose/v3"

	"github.com/socialpulse/harvester/internal/acquire/fallback"
	"github.com/socialpulse/harvester/internal/acquire/health"
	"github.com/socialpulse/harvester/internal/acquire/retry"
	"github.com/socialpulse/harvester/internal/acquire/scheduler"
	"github.com/socialpulse/harvester/internal/acquire/validate"
	"github.com/socialpulse/harvester/internal/acquire/writer"
	"github.com/socialpulse/harvester/internal/core/config"
	"github.com/socialpulse/harvester/internal/core/domain"
	"github.com/socialpulse/harvester/internal/core/watermark"
	"github.com/socialpulse/harvester/internal/core/worker"
	"github.com/socialpulse/harvester/internal/infra/backend"
	"github.com/socialpulse/harvester/internal/infra/backend/httpjson"
	redisclient "github.com/socialpulse/harvester/internal/infra/redis"
	"github.com/socialpulse/harvester/internal/infra/storage"
	"github.com/socialpulse/harvester/internal/infra/storage/memory"
	"github.com/socialpulse/harvester/internal/infra/storage/postgres"
)

// Harvester is the main application struct that manages the acquisition
// lifecycle.
type Harvester struct {
	cfg          *config.AppConfig
	scheduler    *scheduler.Scheduler
	orch         *fallback.Orchestrator
	marks        *watermark.Manager
	runs         storage.RunRepository
	pruner       *worker.Pruner
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancelBg context.CancelFunc
}

// New creates a Harvester with all dependencies initialized.
func New(cfg *config.AppConfig) (*Harvester, error) {
	h := &Harvester{cfg: cfg, log: slog.Default().With("component", "control")}

	// 1. Storage
	var postRepo storage.PostRepository
	var markRepo storage.WatermarkRepository
	var runRepo storage.RunRepository

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		h.db = db

		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		postRepo = postgres.NewPostRepo(db)
		markRepo = postgres.NewWatermarkRepo(db)
		runRepo = postgres.NewRunRepo(db)
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		postRepo = memory.NewPostRepo(store)
		markRepo = memory.NewWatermarkRepo(store)
		runRepo = memory.NewRunRepo(store)
		slog.Info("Using memory storage; records will not survive restarts")
	}
	h.runs = runRepo

	// 2. Optional seen-key cache
	var cache validate.SeenCache
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		h.redisClient = client
		cache = redisclient.NewSeenKeyCache(client)
		slog.Info("Seen-key cache enabled")
	}

	// 3. Backends in priority order
	registry := backend.NewRegistry()
	names := make([]string, 0, len(cfg.Acquisition.Backends))
	retryCfgs := make(map[string]retry.Config)
	for _, b := range cfg.Acquisition.Backends {
		adapter := httpjson.New(httpjson.Config{
			Name:    b.Name,
			BaseURL: b.URL,
			Timeout: b.Timeout.Std(),
		})
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		names = append(names, b.Name)
		if b.Retry.MaxAttempts > 0 || b.Retry.InitialDelay > 0 || b.Retry.MaxDelay > 0 {
			retryCfgs[b.Name] = retry.Config{
				MaxAttempts:  b.Retry.MaxAttempts,
				InitialDelay: b.Retry.InitialDelay.Std(),
				MaxDelay:     b.Retry.MaxDelay.Std(),
			}
		}
	}
	adapters, err := registry.Resolve(names)
	if err != nil {
		return nil, err
	}

	// 4. Acquisition pipeline
	h.orch = fallback.New(adapters, fallback.Config{
		Cooldown:     cfg.Acquisition.Cooldown.Std(),
		Retry:        retryCfgs,
		DefaultRetry: retry.DefaultConfig,
	})
	h.marks = watermark.NewManager(markRepo, cfg.Acquisition.Overlap.Std())
	validator := validate.NewValidator(cfg.Acquisition.ClockSkew.Std())
	dedup := validate.NewDeduplicator(postRepo, cache)
	w := writer.New(postRepo, h.marks)

	h.scheduler = scheduler.New(scheduler.Config{
		Account:       cfg.Acquisition.Account,
		Streams:       cfg.Acquisition.Streams,
		Limit:         cfg.Acquisition.Limit,
		SinceOverride: cfg.Acquisition.SinceTime(),
		Interval:      cfg.Acquisition.Interval.Std(),
	}, h.orch, validator, dedup, w, h.marks, runRepo)

	// 5. Health + retention
	monitor := health.NewMonitor(h.orch, h.marks, cfg.Acquisition.Account, cfg.Acquisition.Streams)
	h.healthServer = health.NewServer(monitor, cfg.Server.Port)
	h.pruner = worker.NewPruner(cfg.Retention.Runs.Std(), runRepo)

	return h, nil
}

// RunOnce executes a single acquisition cycle for every stream.
func (h *Harvester) RunOnce(ctx context.Context) ([]*domain.Run, error) {
	return h.scheduler.RunAll(ctx)
}

// Start launches the daemon loop and background workers.
func (h *Harvester) Start(ctx context.Context) error {
	bgCtx, cancel := context.WithCancel(ctx)
	h.cancelBg = cancel

	go func() {
		if err := h.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			h.log.Error("health server failed", "error", err)
		}
	}()
	go h.pruner.Start(bgCtx)
	if h.db != nil {
		h.db.StartMetricsCollector(bgCtx)
	}

	go func() {
		if err := h.scheduler.Loop(bgCtx); err != nil && bgCtx.Err() == nil {
			h.log.Error("scheduler loop exited", "error", err)
		}
	}()

	h.log.Info("harvester started",
		"account", h.cfg.Acquisition.Account,
		"streams", len(h.cfg.Acquisition.Streams),
		"backends", len(h.cfg.Acquisition.Backends))
	return nil
}

// Stop shuts everything down, waiting up to ctx's deadline.
func (h *Harvester) Stop(ctx context.Context) error {
	if h.cancelBg != nil {
		h.cancelBg()
	}
	if err := h.healthServer.Stop(ctx); err != nil {
		h.log.Warn("health server shutdown", "error", err)
	}
	if h.redisClient != nil {
		if err := h.redisClient.Close(); err != nil {
			h.log.Warn("redis shutdown", "error", err)
		}
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			return fmt.Errorf("close db: %w", err)
		}
	}
	h.log.Info("harvester stopped")
	return nil
}

// Watermarks returns the current watermark per configured stream, for the
// status command.
func (h *Harvester) Watermarks(ctx context.Context) (map[domain.StreamKey]*domain.Watermark, error) {
	out := make(map[domain.StreamKey]*domain.Watermark)
	for _, stream := range h.cfg.Acquisition.Streams {
		key := domain.StreamKey{Account: h.cfg.Acquisition.Account, Stream: stream}
		wm, err := h.marks.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		out[key] = wm
	}
	return out, nil
}

// RecentRuns returns the latest runs for one stream.
func (h *Harvester) RecentRuns(ctx context.Context, stream domain.StreamType, limit int) ([]*domain.Run, error) {
	key := domain.StreamKey{Account: h.cfg.Acquisition.Account, Stream: stream}
	return h.runs.Recent(ctx, key, limit)
}

// ResetWatermark clears one stream's watermark.
func (h *Harvester) ResetWatermark(ctx context.Context, stream domain.StreamType) error {
	key := domain.StreamKey{Account: h.cfg.Acquisition.Account, Stream: stream}
	return h.marks.Reset(ctx, key)
}

// Streams exposes the configured stream list.
func (h *Harvester) Streams() []domain.StreamType {
	return h.cfg.Acquisition.Streams
}
