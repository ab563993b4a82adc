package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vodeneev/dropalerts/internal/api"
	"github.com/Vodeneev/dropalerts/internal/enrich"
	"github.com/Vodeneev/dropalerts/internal/ledger"
	"github.com/Vodeneev/dropalerts/internal/pipeline"
	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/logging"
	"github.com/Vodeneev/dropalerts/internal/pkg/storage"
	"github.com/Vodeneev/dropalerts/internal/render"
	"github.com/Vodeneev/dropalerts/internal/surface"
)

const (
	defaultConfigPath = "configs/production.yaml"
	serviceName       = "drop-service"
)

func main() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	var configPath string
	flag.StringVar(&configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, logCloser, err := logging.SetupLogger(cfg.Logging, serviceName)
	if err != nil {
		log.Fatalf("Failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	loc, err := time.LoadLocation(cfg.Pipeline.DefaultTimezone)
	if err != nil {
		return fmt.Errorf("default timezone: %w", err)
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, err := storage.Open(openCtx, cfg.Storage, cfg.Tiers.Free.Caps())
	cancel()
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Storage ready", "driver", cfg.Storage.Driver)

	renderer := render.New(loc)
	bets := ledger.New(store, renderer, logger)

	var alerts pipeline.Surface
	var tg *surface.Telegram
	if cfg.Telegram.BotToken != "" {
		tg, err = surface.NewTelegram(cfg.Telegram, bets)
		if err != nil {
			return err
		}
		alerts = tg
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN is not set, alerts will only be logged")
		alerts = surface.NewLog(logger)
	}

	var enricher pipeline.Enricher
	if cfg.Enricher.BaseURL != "" {
		cache, err := newCache(ctx, cfg.Enricher, logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		enricher = enrich.NewClient(cfg.Enricher, cache)
		logger.Info("Odds enrichment enabled", "base_url", cfg.Enricher.BaseURL, "cache", cfg.Enricher.Cache)
	}

	hub := api.NewHub(cfg.HTTP.CORSOrigins, logger)
	metrics := pipeline.NewMetrics()
	pipe, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Store:      store,
		Renderer:   renderer,
		Surface:    alerts,
		Enricher:   enricher,
		Metrics:    metrics,
		Logger:     logger,
		OnAccepted: hub.Broadcast,
	})
	if err != nil {
		return err
	}
	pipe.Start(ctx)
	defer pipe.Stop()

	if tg != nil {
		tg.Start(ctx)
		defer tg.Stop()
	}

	srv := api.New(cfg.HTTP, api.Deps{
		Ingestor: pipe,
		Drops:    store,
		Ledger:   bets,
		Hub:      hub,
		Registry: metrics.Registry(),
		Logger:   logger,
		Location: loc,
	})
	return srv.Run(ctx)
}

// newCache picks the enrichment cache backend. The memory cache is swept
// once per TTL until ctx is done.
func newCache(ctx context.Context, cfg config.EnricherConfig, logger *slog.Logger) (storage.Cache, error) {
	if cfg.Cache == "redis" {
		c, err := storage.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, "dropalerts:")
		if err != nil {
			return nil, err
		}
		logger.Info("Using redis enrichment cache", "addr", cfg.Redis.Addr)
		return c, nil
	}

	c := storage.NewMemoryCache()
	interval := cfg.CacheTTL
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					logger.Debug("Enrichment cache swept", "evicted", n)
				}
			}
		}
	}()
	return c, nil
}
