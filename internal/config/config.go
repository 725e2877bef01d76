package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/PBLIZZ/MindfulCRM-sub000/internal/domain/cost"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/llm"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/orchestrator"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/ratelimit"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/scheduler"
	"github.com/PBLIZZ/MindfulCRM-sub000/internal/telemetry"
)

// PathEnv names the variable holding the optional config file path.
const PathEnv = "INSIGHT_CONFIG_PATH"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config defines server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Transport  TransportConfig  `yaml:"transport" toml:"transport"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	DB         DBConfig         `yaml:"db" toml:"db"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Provider   ProviderConfig   `yaml:"provider" toml:"provider"`
	Models     ModelsConfig     `yaml:"models" toml:"models"`
	Processing ProcessingConfig `yaml:"processing" toml:"processing"`
	Budget     BudgetConfig     `yaml:"budget" toml:"budget"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit" toml:"rate_limit"`
	Retry      RetryConfig      `yaml:"retry" toml:"retry"`
	Schedule   ScheduleConfig   `yaml:"schedule" toml:"schedule"`
	Telemetry  telemetry.Config `yaml:"telemetry" toml:"telemetry"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

type TransportConfig struct {
	// Mode is "stdio" or "http".
	Mode string `yaml:"mode" toml:"mode"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// DefaultUser owns requests when auth is disabled.
	DefaultUser string `yaml:"default_user" toml:"default_user"`
}

type DBConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	Path  string `yaml:"path" toml:"path"`
}

type ProviderConfig struct {
	// Name is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Name        string        `yaml:"name" toml:"name"`
	APIKey      string        `yaml:"api_key" toml:"api_key"`
	BaseURL     string        `yaml:"base_url" toml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens" toml:"max_tokens"`
	Temperature float64       `yaml:"temperature" toml:"temperature"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout"`
}

type ModelsConfig struct {
	Premium string          `yaml:"premium" toml:"premium"`
	Free    string          `yaml:"free" toml:"free"`
	Specs   []llm.ModelSpec `yaml:"specs" toml:"specs"`
}

type ProcessingConfig struct {
	Concurrency   int           `yaml:"concurrency" toml:"concurrency"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	BatchDelay    time.Duration `yaml:"batch_delay" toml:"batch_delay"`
	MaxBatchDelay time.Duration `yaml:"max_batch_delay" toml:"max_batch_delay"`
}

type BudgetConfig struct {
	DailyLimit       float64 `yaml:"daily_limit" toml:"daily_limit"`
	MonthlyLimit     float64 `yaml:"monthly_limit" toml:"monthly_limit"`
	WarningThreshold float64 `yaml:"warning_threshold" toml:"warning_threshold"`
}

type RateLimitConfig struct {
	MaxWait       time.Duration `yaml:"max_wait" toml:"max_wait"`
	MaxAttempts   int           `yaml:"max_attempts" toml:"max_attempts"`
	BulkThreshold int           `yaml:"bulk_threshold" toml:"bulk_threshold"`
	// IdleTTL is how long an unused per-user bucket is kept.
	IdleTTL time.Duration `yaml:"idle_ttl" toml:"idle_ttl"`
}

type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" toml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" toml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" toml:"multiplier"`
	MaxTries        uint          `yaml:"max_tries" toml:"max_tries"`
}

type ScheduleConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	// ReportSpec and PruneSpec are cron expressions.
	ReportSpec        string        `yaml:"report_spec" toml:"report_spec"`
	PruneSpec         string        `yaml:"prune_spec" toml:"prune_spec"`
	UsageRetention    time.Duration `yaml:"usage_retention" toml:"usage_retention"`
	ActivityRetention time.Duration `yaml:"activity_retention" toml:"activity_retention"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		Auth: AuthConfig{
			DefaultUser: "default",
		},
		DB: DBConfig{
			Path: "insight.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Provider: ProviderConfig{
			Name:        "openai",
			BaseURL:     "https://openrouter.ai/api/v1",
			MaxTokens:   1024,
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Models: ModelsConfig{
			Premium: llm.DefaultPremiumModel,
			Free:    llm.DefaultFreeModel,
		},
		Processing: ProcessingConfig{
			Concurrency:   5,
			BatchSize:     10,
			BatchDelay:    time.Second,
			MaxBatchDelay: 60 * time.Second,
		},
		Budget: BudgetConfig{
			DailyLimit:       1,
			MonthlyLimit:     20,
			WarningThreshold: 0.9,
		},
		RateLimit: RateLimitConfig{
			MaxWait:       60 * time.Second,
			MaxAttempts:   3,
			BulkThreshold: 10,
			IdleTTL:       24 * time.Hour,
		},
		Retry: RetryConfig{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2,
			MaxTries:        4,
		},
		Schedule: ScheduleConfig{
			Enabled:           true,
			ReportSpec:        "5 0 * * *",
			PruneSpec:         "30 3 * * *",
			UsageRetention:    90 * 24 * time.Hour,
			ActivityRetention: 30 * 24 * time.Hour,
		},
		Telemetry: telemetry.Config{
			ServiceName: "insight",
			SampleRate:  1,
		},
	}
}

// Load reads configuration from defaults, an optional file named by
// INSIGHT_CONFIG_PATH and INSIGHT_* environment variables, in that order.
func Load() (Config, error) {
	return LoadFile(os.Getenv(PathEnv))
}

// LoadFile is Load with an explicit file path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file type %q", ErrInvalid, filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("INSIGHT_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if err := envInt("INSIGHT_SERVER_PORT", &cfg.Server.Port); err != nil {
		return err
	}
	if mode := os.Getenv("INSIGHT_TRANSPORT_MODE"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if err := envBool("INSIGHT_AUTH_ENABLED", &cfg.Auth.Enabled); err != nil {
		return err
	}
	if dbPath := os.Getenv("INSIGHT_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("INSIGHT_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("INSIGHT_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}

	if name := os.Getenv("INSIGHT_PROVIDER"); name != "" {
		cfg.Provider.Name = name
	}
	if key := os.Getenv("INSIGHT_PROVIDER_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if baseURL := os.Getenv("INSIGHT_PROVIDER_BASE_URL"); baseURL != "" {
		cfg.Provider.BaseURL = baseURL
	}
	if model := os.Getenv("INSIGHT_PREMIUM_MODEL"); model != "" {
		cfg.Models.Premium = model
	}
	if model := os.Getenv("INSIGHT_FREE_MODEL"); model != "" {
		cfg.Models.Free = model
	}

	if err := envInt("INSIGHT_CONCURRENCY", &cfg.Processing.Concurrency); err != nil {
		return err
	}
	if err := envInt("INSIGHT_BATCH_SIZE", &cfg.Processing.BatchSize); err != nil {
		return err
	}
	if err := envDuration("INSIGHT_BATCH_DELAY", &cfg.Processing.BatchDelay); err != nil {
		return err
	}
	if err := envFloat("INSIGHT_DAILY_LIMIT", &cfg.Budget.DailyLimit); err != nil {
		return err
	}
	if err := envFloat("INSIGHT_MONTHLY_LIMIT", &cfg.Budget.MonthlyLimit); err != nil {
		return err
	}
	if endpoint := os.Getenv("INSIGHT_OTEL_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
		cfg.Telemetry.Enabled = true
	}

	// conventional provider variables as a last resort
	if cfg.Provider.APIKey == "" {
		switch cfg.Provider.Name {
		case "anthropic":
			cfg.Provider.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.Provider.APIKey = firstEnv("OPENROUTER_API_KEY", "OPENAI_API_KEY")
		}
	}
	return nil
}

// Validate checks values that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		return fmt.Errorf("%w: transport.mode must be stdio or http, got %q", ErrInvalid, c.Transport.Mode)
	}
	switch c.Provider.Name {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("%w: provider.name must be openai or anthropic, got %q", ErrInvalid, c.Provider.Name)
	}
	if c.Processing.Concurrency < 1 {
		return fmt.Errorf("%w: processing.concurrency must be at least 1", ErrInvalid)
	}
	if c.Processing.BatchSize < 1 {
		return fmt.Errorf("%w: processing.batch_size must be at least 1", ErrInvalid)
	}
	if c.Processing.BatchDelay < 0 {
		return fmt.Errorf("%w: processing.batch_delay must not be negative", ErrInvalid)
	}
	if c.Budget.DailyLimit < 0 || c.Budget.MonthlyLimit < 0 {
		return fmt.Errorf("%w: budget limits must not be negative", ErrInvalid)
	}
	if c.Budget.WarningThreshold <= 0 || c.Budget.WarningThreshold > 1 {
		return fmt.Errorf("%w: budget.warning_threshold must be in (0, 1]", ErrInvalid)
	}
	if c.Auth.Enabled && c.Transport.Mode == "stdio" {
		return fmt.Errorf("%w: auth requires the http transport", ErrInvalid)
	}
	return nil
}

// Catalog builds the model catalog from the models section.
func (c Config) Catalog() (*llm.Catalog, error) {
	specs := c.Models.Specs
	if len(specs) == 0 {
		specs = llm.DefaultModels()
	}
	catalog, err := llm.NewCatalog(c.Models.Premium, c.Models.Free, specs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return catalog, nil
}

// CostConfig maps the budget section onto the cost tracker.
func (c Config) CostConfig() cost.Config {
	return cost.Config{
		DefaultLimits: cost.BudgetLimits{
			DailyLimit:   c.Budget.DailyLimit,
			MonthlyLimit: c.Budget.MonthlyLimit,
		},
		WarningThreshold: c.Budget.WarningThreshold,
	}
}

// RateLimiterConfig maps the rate_limit section onto the limiter.
func (c Config) RateLimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxWait:       c.RateLimit.MaxWait,
		MaxAttempts:   c.RateLimit.MaxAttempts,
		BulkThreshold: c.RateLimit.BulkThreshold,
	}
}

// ProviderRetryConfig maps the retry section onto the retry decorator.
func (c Config) ProviderRetryConfig() llm.RetryConfig {
	return llm.RetryConfig{
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		Multiplier:      c.Retry.Multiplier,
		MaxTries:        c.Retry.MaxTries,
	}
}

// OrchestratorConfig maps the processing section onto run defaults.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		BatchSize:     c.Processing.BatchSize,
		BatchDelay:    c.Processing.BatchDelay,
		MaxBatchDelay: c.Processing.MaxBatchDelay,
	}
}

// SchedulerConfig maps the schedule section onto the cron jobs.
func (c Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		ReportSpec:        c.Schedule.ReportSpec,
		PruneSpec:         c.Schedule.PruneSpec,
		UsageRetention:    c.Schedule.UsageRetention,
		ActivityRetention: c.Schedule.ActivityRetention,
		LimiterIdleTTL:    c.RateLimit.IdleTTL,
	}
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envFloat(name string, dst *float64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envBool(name string, dst *bool) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = v
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}
