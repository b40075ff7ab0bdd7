package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/teamflow/internal/api"
	"github.com/dyluth/teamflow/internal/orchestrator"
	"github.com/dyluth/teamflow/internal/queue"
	"github.com/dyluth/teamflow/internal/service"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when none is given.
const DefaultPath = "teamflow.yml"

// Config represents the top-level teamflow.yml configuration
type Config struct {
	Version  string         `yaml:"version"`
	Redis    RedisConfig    `yaml:"redis"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Agent    AgentConfig    `yaml:"agent"`
	Worker   WorkerConfig   `yaml:"worker"`
	API      APIConfig      `yaml:"api"`
	Export   ExportConfig   `yaml:"export"`
}

// RedisConfig locates the run store.
type RedisConfig struct {
	URL        string `yaml:"url"`
	Namespace  string `yaml:"namespace,omitempty"`
	TTLSeconds int    `yaml:"ttl_seconds,omitempty"` // Lifetime of every run key (default: 21600)
}

// PipelineConfig specifies orchestrator behaviour
type PipelineConfig struct {
	ReviewEnabled      bool   `yaml:"review_enabled"`
	RevisionIterations *int   `yaml:"revision_iterations,omitempty"` // 0 disables the revision loop (default: 1)
	PromptDir          string `yaml:"prompt_dir,omitempty"`          // Overrides the embedded templates
}

// AgentConfig specifies the external generation command
type AgentConfig struct {
	Command        []string `yaml:"command"`
	Dir            string   `yaml:"dir,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	MaxRetries     *int     `yaml:"max_retries,omitempty"`
	LogPayloads    bool     `yaml:"log_payloads,omitempty"`
	LogMaxChars    int      `yaml:"log_max_chars,omitempty"`
}

// WorkerConfig sizes the chain worker pool
type WorkerConfig struct {
	Concurrency int    `yaml:"concurrency,omitempty"`
	HealthAddr  string `yaml:"health_addr,omitempty"`
}

// APIConfig specifies the HTTP transport
type APIConfig struct {
	Addr                 string  `yaml:"addr,omitempty"`
	StreamTimeoutSeconds float64 `yaml:"stream_timeout_seconds,omitempty"`
	PollIntervalSeconds  float64 `yaml:"poll_interval_seconds,omitempty"`
	RateLimit            float64 `yaml:"rate_limit,omitempty"` // Run creations per second per client
	RateLimitBurst       int     `yaml:"rate_limit_burst,omitempty"`
}

// ExportConfig specifies export renderings
type ExportConfig struct {
	SummaryLimit int `yaml:"summary_limit,omitempty"`
}

// Validate applies defaults and checks ranges
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}
	if _, err := redis.ParseURL(c.Redis.URL); err != nil {
		return fmt.Errorf("redis.url: %w", err)
	}
	if c.Redis.Namespace == "" {
		c.Redis.Namespace = "default"
	}
	if c.Redis.TTLSeconds == 0 {
		c.Redis.TTLSeconds = 21600
	}
	if c.Redis.TTLSeconds < 0 {
		return fmt.Errorf("redis.ttl_seconds must be > 0, got %d", c.Redis.TTLSeconds)
	}

	if c.Pipeline.RevisionIterations == nil {
		defaultIterations := 1
		c.Pipeline.RevisionIterations = &defaultIterations
	}
	if *c.Pipeline.RevisionIterations < 0 {
		return fmt.Errorf("pipeline.revision_iterations must be >= 0, got %d", *c.Pipeline.RevisionIterations)
	}
	if c.Pipeline.PromptDir != "" {
		if _, err := os.Stat(c.Pipeline.PromptDir); err != nil {
			return fmt.Errorf("pipeline.prompt_dir: %w", err)
		}
	}

	if c.Agent.TimeoutSeconds == 0 {
		c.Agent.TimeoutSeconds = 300
	}
	if c.Agent.TimeoutSeconds < 0 {
		return fmt.Errorf("agent.timeout_seconds must be > 0, got %d", c.Agent.TimeoutSeconds)
	}
	if c.Agent.MaxRetries == nil {
		defaultRetries := 2
		c.Agent.MaxRetries = &defaultRetries
	}
	if *c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent.max_retries must be >= 0, got %d", *c.Agent.MaxRetries)
	}
	if c.Agent.LogMaxChars <= 0 {
		c.Agent.LogMaxChars = 2000
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 2
	}
	if c.Worker.Concurrency < 0 {
		return fmt.Errorf("worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.HealthAddr == "" {
		c.Worker.HealthAddr = ":8081"
	}

	if c.API.Addr == "" {
		c.API.Addr = ":8080"
	}
	if c.API.StreamTimeoutSeconds <= 0 {
		c.API.StreamTimeoutSeconds = 60
	}
	if c.API.PollIntervalSeconds <= 0 {
		c.API.PollIntervalSeconds = 1
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = 5
	}
	if c.API.RateLimitBurst <= 0 {
		c.API.RateLimitBurst = 10
	}

	if c.Export.SummaryLimit <= 0 {
		c.Export.SummaryLimit = 5200
	}

	return nil
}

// ApplyEnv overrides file settings from the environment. getenv is usually os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := getenv("REDIS_TTL_SECONDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_TTL_SECONDS: %w", err)
		}
		c.Redis.TTLSeconds = n
	}
	if v := getenv("REVIEW_ENABLED"); v != "" {
		enabled, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("REVIEW_ENABLED: %w", err)
		}
		c.Pipeline.ReviewEnabled = enabled
	}
	if v := getenv("REVISION_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REVISION_ITERATIONS: %w", err)
		}
		c.Pipeline.RevisionIterations = &n
	}
	if v := getenv("SSE_STREAM_TIMEOUT_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SSE_STREAM_TIMEOUT_SECONDS: %w", err)
		}
		c.API.StreamTimeoutSeconds = f
	}
	if v := getenv("SSE_POLL_INTERVAL_SECONDS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("SSE_POLL_INTERVAL_SECONDS: %w", err)
		}
		c.API.PollIntervalSeconds = f
	}
	if v := getenv("TEAMFLOW_ADDR"); v != "" {
		c.API.Addr = v
	}
	return nil
}

// parseBool accepts the usual flag spellings, including yes/no and on/off.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

// Load reads teamflow.yml from path, applies environment overrides and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return finish(&config)
}

// FromEnv builds a configuration from defaults and the environment only.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(config *Config) (*Config, error) {
	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// RedisOptions parses the Redis URL.
func (c *Config) RedisOptions() (*redis.Options, error) {
	return redis.ParseURL(c.Redis.URL)
}

// TTL is the run key lifetime.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// OrchestratorConfig builds the immutable engine configuration.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		ReviewEnabled:      c.Pipeline.ReviewEnabled,
		RevisionIterations: *c.Pipeline.RevisionIterations,
		LogPayloads:        c.Agent.LogPayloads,
		LogMaxChars:        c.Agent.LogMaxChars,
	}
}

func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutSeconds) * time.Second
}

func (c *Config) PoolConfig() queue.PoolConfig {
	return queue.PoolConfig{Concurrency: c.Worker.Concurrency}
}

func (c *Config) APIConfig() api.Config {
	return api.Config{
		Addr:           c.API.Addr,
		StreamTimeout:  seconds(c.API.StreamTimeoutSeconds),
		StreamPoll:     seconds(c.API.PollIntervalSeconds),
		RateLimit:      c.API.RateLimit,
		RateLimitBurst: c.API.RateLimitBurst,
	}
}

func (c *Config) ServiceConfig() service.Config {
	return service.Config{SummaryLimit: c.Export.SummaryLimit}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
