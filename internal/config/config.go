// Package config provides configuration for the pipeline service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort    int    `yaml:"http_port"`
	PublicURL   string `yaml:"public_url"`
	AdminAPIKey string `yaml:"admin_api_key"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	Agent     AgentConfig     `yaml:"agent"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Sources   SourcesConfig   `yaml:"sources"`
	LLM       LLMConfig       `yaml:"llm"`
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// NotifyWebhookURL receives a summary after every finished run.
	NotifyWebhookURL string `yaml:"notify_webhook_url"`
	// NotifyAPIKey is sent as X-API-Key to NotifyWebhookURL. The
	// agent key is never reused for this third party.
	NotifyAPIKey string `yaml:"notify_api_key"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// AgentConfig configures the bridge to the external agent.
type AgentConfig struct {
	Transport       string        `yaml:"transport"` // webhook or websocket
	WebhookURL      string        `yaml:"webhook_url"`
	APIKey          string        `yaml:"api_key"`
	ChannelID       string        `yaml:"channel_id"`
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// PipelineConfig bounds runs and schedules them.
type PipelineConfig struct {
	MaxProducts        int           `yaml:"max_products"`
	MaxListings        int           `yaml:"max_listings"`
	SyncBatch          int           `yaml:"sync_batch"`
	ListingConcurrency int           `yaml:"listing_concurrency"`
	MinTrendScore      float64       `yaml:"min_trend_score"`
	DefaultListing     string        `yaml:"default_listing_status"`
	ScheduleInterval   time.Duration `yaml:"schedule_interval"`
}

// MarkupTier applies MarkupPercent to products costing up to MaxCostUSD.
// A zero MaxCostUSD matches any cost.
type MarkupTier struct {
	MaxCostUSD    float64 `yaml:"max_cost_usd"`
	MarkupPercent float64 `yaml:"markup_percent"`
}

// PricingConfig drives the pricing engine.
type PricingConfig struct {
	USDToAUD          float64      `yaml:"usd_to_aud"`
	MinProfitAUD      float64      `yaml:"min_profit_aud"`
	CompareMultiplier float64      `yaml:"compare_multiplier"`
	Tiers             []MarkupTier `yaml:"tiers"`
}

// SourcesConfig points the discovery and sourcing stages at their feeds.
type SourcesConfig struct {
	TrendFeedURL   string        `yaml:"trend_feed_url"`
	SupplierAPIURL string        `yaml:"supplier_api_url"`
	Timeout        time.Duration `yaml:"timeout"`
}

// LLMConfig configures the enrichment stage's model endpoint.
type LLMConfig struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

// WarehouseConfig configures the external_sync Postgres mirror.
type WarehouseConfig struct {
	DSN      string `yaml:"dsn"`
	Schema   string `yaml:"schema"`
	MaxConns int    `yaml:"max_conns"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPPort:    8080,
		DatabaseURL: "file:pipeline.db?cache=shared&mode=rwc",
		Agent: AgentConfig{
			Transport:       "webhook",
			ReplyTimeout:    60 * time.Second,
			DeliveryTimeout: 15 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxProducts:        50,
			MaxListings:        20,
			SyncBatch:          50,
			ListingConcurrency: 4,
			MinTrendScore:      50,
			DefaultListing:     "draft",
		},
		Pricing: PricingConfig{
			USDToAUD:          1.55,
			MinProfitAUD:      8.0,
			CompareMultiplier: 1.3,
			Tiers: []MarkupTier{
				{MaxCostUSD: 5, MarkupPercent: 120},
				{MaxCostUSD: 15, MarkupPercent: 80},
				{MaxCostUSD: 30, MarkupPercent: 60},
				{MaxCostUSD: 60, MarkupPercent: 45},
				{MarkupPercent: 35},
			},
		},
		Sources: SourcesConfig{Timeout: 15 * time.Second},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 400,
			Timeout:   60 * time.Second,
		},
		Warehouse: WarehouseConfig{Schema: "public", MaxConns: 2},
		LogLevel:  "info",
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnvInt("HTTP_PORT", cfg.HTTPPort)
	cfg.PublicURL = getEnv("PUBLIC_URL", cfg.PublicURL)
	cfg.AdminAPIKey = getEnv("ADMIN_API_KEY", cfg.AdminAPIKey)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.Agent.Transport = getEnv("AGENT_TRANSPORT", cfg.Agent.Transport)
	cfg.Agent.WebhookURL = getEnv("AGENT_WEBHOOK_URL", cfg.Agent.WebhookURL)
	cfg.Agent.APIKey = getEnv("AGENT_API_KEY", cfg.Agent.APIKey)
	cfg.Agent.ChannelID = getEnv("AGENT_CHANNEL_ID", cfg.Agent.ChannelID)
	cfg.Agent.ReplyTimeout = getEnvMillis("AGENT_REPLY_TIMEOUT_MS", cfg.Agent.ReplyTimeout)
	cfg.Agent.DeliveryTimeout = getEnvMillis("AGENT_DELIVERY_TIMEOUT_MS", cfg.Agent.DeliveryTimeout)

	cfg.Pipeline.MaxProducts = getEnvInt("MAX_PRODUCTS_PER_RUN", cfg.Pipeline.MaxProducts)
	cfg.Pipeline.MaxListings = getEnvInt("MAX_LISTINGS_PER_RUN", cfg.Pipeline.MaxListings)
	cfg.Pipeline.SyncBatch = getEnvInt("SYNC_BATCH", cfg.Pipeline.SyncBatch)
	cfg.Pipeline.ListingConcurrency = getEnvInt("LISTING_CONCURRENCY", cfg.Pipeline.ListingConcurrency)
	cfg.Pipeline.MinTrendScore = getEnvFloat("MIN_TREND_SCORE", cfg.Pipeline.MinTrendScore)
	cfg.Pipeline.DefaultListing = getEnv("DEFAULT_LISTING_STATUS", cfg.Pipeline.DefaultListing)
	cfg.Pipeline.ScheduleInterval = getEnvMillis("SCHEDULE_INTERVAL_MS", cfg.Pipeline.ScheduleInterval)

	cfg.Pricing.USDToAUD = getEnvFloat("USD_TO_AUD_RATE", cfg.Pricing.USDToAUD)
	cfg.Pricing.MinProfitAUD = getEnvFloat("MIN_PROFIT_AUD", cfg.Pricing.MinProfitAUD)

	cfg.Sources.TrendFeedURL = getEnv("TREND_FEED_URL", cfg.Sources.TrendFeedURL)
	cfg.Sources.SupplierAPIURL = getEnv("SUPPLIER_API_URL", cfg.Sources.SupplierAPIURL)

	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.Timeout = getEnvMillis("LLM_TIMEOUT_MS", cfg.LLM.Timeout)

	cfg.Warehouse.DSN = getEnv("WAREHOUSE_DSN", cfg.Warehouse.DSN)
	cfg.Warehouse.Schema = getEnv("WAREHOUSE_SCHEMA", cfg.Warehouse.Schema)

	cfg.NotifyWebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.NotifyWebhookURL)
	cfg.NotifyAPIKey = getEnv("NOTIFY_API_KEY", cfg.NotifyAPIKey)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Agent.Transport {
	case "webhook", "websocket":
	default:
		return fmt.Errorf("agent transport must be webhook or websocket, got %q", c.Agent.Transport)
	}
	if c.Agent.ReplyTimeout <= 0 {
		return fmt.Errorf("agent reply timeout must be positive")
	}
	if len(c.Pricing.Tiers) == 0 {
		return fmt.Errorf("at least one markup tier is required")
	}
	return nil
}

// CallbackURL is the address the agent posts replies to, empty when the
// public URL is unknown.
func (c *Config) CallbackURL() string {
	if c.PublicURL == "" {
		return ""
	}
	return strings.TrimSuffix(c.PublicURL, "/") + "/v1/agent/callback"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvMillis(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
