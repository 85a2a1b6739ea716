package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"brandscan/internal/analyzer"
	"brandscan/internal/breaker"
	"brandscan/internal/cache"
	"brandscan/internal/config"
	"brandscan/internal/gateway"
	"brandscan/internal/llm"
	"brandscan/internal/opslog"
	"brandscan/internal/scan"
	"brandscan/internal/scheduler"
	"brandscan/internal/scraper"
	"brandscan/internal/summarize"
	"brandscan/internal/vision"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))

	for _, dir := range []string{cfg.Discovery.DataDir, cfg.Cache.Dir, filepath.Join(cfg.Discovery.DataDir, "screenshots")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create data directory %s: %v", dir, err)
		}
	}

	ops, err := opslog.Open(cfg.Discovery.DataDir)
	if err != nil {
		log.Fatalf("failed to open operational logs: %v", err)
	}
	defer ops.Close()

	var redisClient *redis.Client
	if cfg.Cache.RemoteEnabled && cfg.Redis.URL != "" {
		if opt, err := redis.ParseURL(cfg.Redis.URL); err == nil {
			redisClient = redis.NewClient(opt)
		} else {
			logger.Warn("ignoring invalid redis url", "error", err)
		}
	}

	breakerReg := breaker.NewRegistry(cfg.Breaker.Threshold, time.Duration(cfg.Breaker.CooldownSeconds)*time.Second)
	llmClient := llm.New(cfg.LLM, breakerReg)
	sched := scheduler.New(cfg.Scheduler.Concurrency, cfg.Scheduler.TPMLimit)
	cacheStore := cache.NewStore(cfg.Cache.Dir, time.Duration(cfg.Cache.TTLSeconds)*time.Second, redisClient)
	shotCache := cache.NewScreenshotCache(filepath.Join(cfg.Discovery.DataDir, "screenshots"))

	managed := scraper.NewHTTPStrategy(time.Duration(cfg.Scraper.TimeoutMs) * time.Millisecond)
	var browser scraper.Strategy
	if cfg.Rod.Enabled {
		browser = scraper.NewBrowserStrategy(time.Duration(cfg.Rod.ReadinessCapMs)*time.Millisecond, cfg.Rod.MaxScrollSteps)
	}
	fetcher := scraper.NewFetcher(managed, browser)

	waitTimeout := 30 * time.Second

	scanDeps := scan.Deps{
		Config:  cfg,
		Fetcher: fetcher,
		Analyzer: analyzer.Deps{
			Cache:         cacheStore,
			Scheduler:     sched,
			LLM:           llmClient,
			PromptVersion: cfg.Discovery.PromptVersion,
			WaitTimeout:   waitTimeout,
		},
		Vision: vision.Deps{
			Cache:         cacheStore,
			Scheduler:     sched,
			LLM:           llmClient,
			PromptVersion: cfg.Discovery.PromptVersion,
			WaitTimeout:   waitTimeout,
		},
		Summarize: summarize.Deps{
			LLM:           llmClient,
			PromptVersion: cfg.Discovery.PromptVersion,
		},
		PutShot: shotCache.Put,
	}

	srv := gateway.NewServer(cfg, scanDeps, shotCache, logger)

	logger.Info("starting brandscand", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := srv.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
