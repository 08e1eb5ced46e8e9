package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string `mapstructure:"PORT"`
	Environment string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	// Storage
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	MongoDBURL  string `mapstructure:"MONGODB_URL"`
	MongoDBName string `mapstructure:"MONGODB_DATABASE"`

	// OpenAI
	OpenAIAPIKey   string  `mapstructure:"OPENAI_API_KEY"`
	LLMModel       string  `mapstructure:"LLM_MODEL"`
	LLMTemperature float64 `mapstructure:"LLM_TEMPERATURE"`
	LLMTimeoutSec  int     `mapstructure:"LLM_TIMEOUT_SEC"`
	AICallDelayMS  int     `mapstructure:"AI_CALL_DELAY_MS"`

	// Record source
	SourceBaseURL      string `mapstructure:"SOURCE_BASE_URL"`
	SourceAPIKey       string `mapstructure:"SOURCE_API_KEY"`
	SourceClientID     string `mapstructure:"SOURCE_CLIENT_ID"`
	SourceClientSecret string `mapstructure:"SOURCE_CLIENT_SECRET"`
	SourceTokenURL     string `mapstructure:"SOURCE_TOKEN_URL"`
	SourceTimeoutSec   int    `mapstructure:"SOURCE_TIMEOUT_SEC"`

	// Sync
	SyncPageSize            int    `mapstructure:"SYNC_PAGE_SIZE"`
	SyncMaxPages            int    `mapstructure:"SYNC_MAX_PAGES"`
	SyncMaxRecords          int    `mapstructure:"SYNC_MAX_RECORDS"`
	SyncHeartbeatTimeoutSec int    `mapstructure:"SYNC_HEARTBEAT_TIMEOUT_SEC"`
	SyncIntervalSec         int    `mapstructure:"SYNC_INTERVAL_SEC"`
	SyncConnections         string `mapstructure:"SYNC_CONNECTIONS"`
	SyncParallelism         int    `mapstructure:"SYNC_PARALLELISM"`
	ClassifyBatchSize       int    `mapstructure:"CLASSIFY_BATCH_SIZE"`

	ConnectionDurationThresholdSec int `mapstructure:"CONNECTION_DURATION_THRESHOLD_SEC"`

	// Worker
	WorkerID         string `mapstructure:"WORKER_ID"`
	SchedulerEnabled bool   `mapstructure:"SCHEDULER_ENABLED"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("MONGODB_URL", "")
	v.SetDefault("MONGODB_DATABASE", "outreach")

	v.SetDefault("OPENAI_API_KEY", "")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TEMPERATURE", 0.1)
	v.SetDefault("LLM_TIMEOUT_SEC", 30)
	v.SetDefault("AI_CALL_DELAY_MS", 200)

	v.SetDefault("SOURCE_BASE_URL", "")
	v.SetDefault("SOURCE_API_KEY", "")
	v.SetDefault("SOURCE_CLIENT_ID", "")
	v.SetDefault("SOURCE_CLIENT_SECRET", "")
	v.SetDefault("SOURCE_TOKEN_URL", "")
	v.SetDefault("SOURCE_TIMEOUT_SEC", 30)

	v.SetDefault("SYNC_PAGE_SIZE", 100)
	v.SetDefault("SYNC_MAX_PAGES", 0)
	v.SetDefault("SYNC_MAX_RECORDS", 0)
	v.SetDefault("SYNC_HEARTBEAT_TIMEOUT_SEC", 600)
	v.SetDefault("SYNC_INTERVAL_SEC", 900)
	v.SetDefault("SYNC_CONNECTIONS", "")
	v.SetDefault("SYNC_PARALLELISM", 4)
	v.SetDefault("CLASSIFY_BATCH_SIZE", 50)

	v.SetDefault("CONNECTION_DURATION_THRESHOLD_SEC", 60)

	v.SetDefault("WORKER_ID", generateWorkerID())
	v.SetDefault("SCHEDULER_ENABLED", true)
}

// Load reads the environment, with an optional .env file underneath it.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig() // the file is optional

	defaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.SyncPageSize <= 0:
		return fmt.Errorf("SYNC_PAGE_SIZE must be positive, got %d", c.SyncPageSize)
	case c.SyncMaxPages < 0 || c.SyncMaxRecords < 0:
		return fmt.Errorf("SYNC_MAX_PAGES and SYNC_MAX_RECORDS must not be negative")
	case c.SyncHeartbeatTimeoutSec <= 0:
		return fmt.Errorf("SYNC_HEARTBEAT_TIMEOUT_SEC must be positive, got %d", c.SyncHeartbeatTimeoutSec)
	case c.ConnectionDurationThresholdSec < 0:
		return fmt.Errorf("CONNECTION_DURATION_THRESHOLD_SEC must not be negative")
	}
	return nil
}

// Connections returns the configured source connection ids.
func (c *Config) Connections() []string {
	var ids []string
	for _, id := range strings.Split(c.SyncConnections, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.SyncHeartbeatTimeoutSec) * time.Second
}

func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSec) * time.Second
}

func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

func (c *Config) AICallDelay() time.Duration {
	return time.Duration(c.AICallDelayMS) * time.Millisecond
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
