package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ScraperConfig configures the Fetcher's (C1) managed-scraper and
// fallback HTTP behavior.
type ScraperConfig struct {
	UserAgent            string `yaml:"userAgent"`
	TimeoutMs            int    `yaml:"timeoutMs"`
	ManagedScraperURL    string `yaml:"managedScraperURL"`
	ManagedScraperAPIKey string `yaml:"managedScraperAPIKey"`
	Country              string `yaml:"country"`
	LinksSameDomainOnly  bool   `yaml:"linksSameDomainOnly"`
	LinksMaxPerDocument  int    `yaml:"linksMaxPerDocument"`
}

// CrawlerConfig bounds the Link Discoverer (C2).
type CrawlerConfig struct {
	MaxLinksParsed int `yaml:"maxLinksParsed"`
}

type RobotsConfig struct {
	Respect bool `yaml:"respect"`
}

// RodConfig configures the Fetcher's headless-browser fallback stage.
type RodConfig struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutMs      int  `yaml:"timeoutMs"`
	MaxScrollSteps int  `yaml:"maxScrollSteps"`
	ScrollStepPx   int  `yaml:"scrollStepPx"`
	ReadinessCapMs int  `yaml:"readinessCapMs"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

// WorkerPoolConfig bounds bulk page-fetch concurrency (§5: 3-4 workers).
type WorkerPoolConfig struct {
	PageFetchConcurrency int `yaml:"pageFetchConcurrency"`
}

// LLMConfig names the three models in the cascade (§4.7) and the
// credentials used to reach them.
type LLMConfig struct {
	APIKey               string `yaml:"apiKey"`
	BaseURL              string `yaml:"baseURL"`
	PrimaryModel         string `yaml:"primaryModel"`
	FallbackModel        string `yaml:"fallbackModel"`
	FastModel            string `yaml:"fastModel"`
	ForceChatCompletions bool   `yaml:"forceChatCompletions"`
}

// SchedulerConfig configures the Scheduler (C9).
type SchedulerConfig struct {
	Concurrency int `yaml:"concurrency"`
	TPMLimit    int `yaml:"tpmLimit"`
}

// BreakerConfig configures the Circuit Breaker (C8).
type BreakerConfig struct {
	Threshold       int `yaml:"threshold"`
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

// CacheConfig configures the Cache (C11).
type CacheConfig struct {
	Dir           string `yaml:"dir"`
	TTLSeconds    int    `yaml:"ttlSeconds"`
	RemoteEnabled bool   `yaml:"remoteEnabled"`
}

// DiscoveryConfig holds the pipeline-wide tunables enumerated in §6.
type DiscoveryConfig struct {
	PromptVersion       string  `yaml:"promptVersion"`
	CorpusMaxChars      int     `yaml:"corpusMaxChars"`
	MaxPages            int     `yaml:"maxPages"`
	SeedHighSignalPages int     `yaml:"seedHighSignalPages"`
	NoveltyThreshold    float64 `yaml:"noveltyThreshold"`
	DataDir             string  `yaml:"dataDir"`
}

type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Scraper   ScraperConfig    `yaml:"scraper"`
	Crawler   CrawlerConfig    `yaml:"crawler"`
	Robots    RobotsConfig     `yaml:"robots"`
	Rod       RodConfig        `yaml:"rod"`
	Redis     RedisConfig      `yaml:"redis"`
	Worker    WorkerPoolConfig `yaml:"worker"`
	LLM       LLMConfig        `yaml:"llm"`
	Scheduler SchedulerConfig  `yaml:"scheduler"`
	Breaker   BreakerConfig    `yaml:"breaker"`
	Cache     CacheConfig      `yaml:"cache"`
	Discovery DiscoveryConfig  `yaml:"discovery"`
}

// Load reads path, expands ${VAR}/$VAR references against the process
// environment (so secrets like llm.apiKey never need to live in the
// file), and decodes the result over the defaults.
func Load(path string) *Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	expanded := os.Expand(string(raw), func(name string) string {
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ""
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	return cfg
}

// Default returns a Config populated with the defaults named in §6 of
// the specification, ready to be overridden by YAML or env.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Scraper: ScraperConfig{
			UserAgent: "Mozilla/5.0 (compatible; brandscan/1.0)",
			TimeoutMs: 120000,
		},
		Crawler: CrawlerConfig{MaxLinksParsed: 3000},
		Robots:  RobotsConfig{Respect: true},
		Rod: RodConfig{
			Enabled:        true,
			TimeoutMs:      75000,
			MaxScrollSteps: 12,
			ScrollStepPx:   800,
			ReadinessCapMs: 8000,
		},
		Worker: WorkerPoolConfig{PageFetchConcurrency: 4},
		LLM: LLMConfig{
			PrimaryModel:  "gpt-5",
			FallbackModel: "gpt-4o",
			FastModel:     "gpt-4o-mini",
		},
		Scheduler: SchedulerConfig{Concurrency: 2, TPMLimit: 80000},
		Breaker:   BreakerConfig{Threshold: 3, CooldownSeconds: 600},
		Cache:     CacheConfig{Dir: "./data/cache", TTLSeconds: 86400},
		Discovery: DiscoveryConfig{
			PromptVersion:       "1.0.0",
			CorpusMaxChars:      40000,
			MaxPages:            18,
			SeedHighSignalPages: 12,
			NoveltyThreshold:    0.12,
			DataDir:             "./data",
		},
	}
}

// Validate performs fail-fast sanity checks so obviously
// misconfigured deployments fail at startup rather than mid-scan.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.LLM.APIKey) == "" {
		return errors.New("llm.apiKey must be set")
	}
	if strings.TrimSpace(cfg.LLM.PrimaryModel) == "" ||
		strings.TrimSpace(cfg.LLM.FallbackModel) == "" ||
		strings.TrimSpace(cfg.LLM.FastModel) == "" {
		return errors.New("llm primary/fallback/fast models must all be set")
	}
	if cfg.Scheduler.Concurrency <= 0 {
		return errors.New("scheduler.concurrency must be positive")
	}
	if cfg.Scheduler.TPMLimit <= 0 {
		return errors.New("scheduler.tpmLimit must be positive")
	}
	if cfg.Breaker.Threshold <= 0 {
		return errors.New("breaker.threshold must be positive")
	}
	if cfg.Discovery.MaxPages <= 0 || cfg.Discovery.SeedHighSignalPages <= 0 {
		return errors.New("discovery.maxPages and seedHighSignalPages must be positive")
	}
	if cfg.Discovery.SeedHighSignalPages > cfg.Discovery.MaxPages {
		return fmt.Errorf("discovery.seedHighSignalPages (%d) exceeds maxPages (%d)", cfg.Discovery.SeedHighSignalPages, cfg.Discovery.MaxPages)
	}
	if cfg.Discovery.CorpusMaxChars <= 0 {
		return errors.New("discovery.corpusMaxChars must be positive")
	}
	if cfg.Discovery.NoveltyThreshold < 0 || cfg.Discovery.NoveltyThreshold > 1 {
		return errors.New("discovery.noveltyThreshold must be in [0,1]")
	}
	return nil
}
