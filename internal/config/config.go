// Package config loads the pipeline core's configuration from a YAML file
// with environment-variable overrides, in the same load-then-validate shape
// used throughout this codebase: Load reads and parses, loadFromEnv patches
// in override values, validate rejects an unusable result before it ever
// reaches the orchestrator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the LLM Gateway (§4.3).
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxModelLen    int           `yaml:"max_model_len"`
	OutputReserve  int           `yaml:"output_reserve"`
	SafetyMargin   int           `yaml:"safety_margin"`
	Region         string        `yaml:"region"` // bedrock provider only
}

// AssetServiceConfig configures the Asset Context Provider (§4.2).
type AssetServiceConfig struct {
	URL       string        `yaml:"url"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CatalogConfig configures the Tool Catalog loader (§4.1).
type CatalogConfig struct {
	Source       string `yaml:"source"` // "sql" or "filesystem"
	DSN          string `yaml:"dsn"`
	CorpusDir    string `yaml:"corpus_dir"`
	WatchReload  bool   `yaml:"watch_reload"`
}

// ConversationConfig configures the Conversation Store (§4.4).
type ConversationConfig struct {
	MaxMessages int    `yaml:"max_messages"`
	RedisAddr   string `yaml:"redis_addr"`
}

// ResilienceConfig configures the shared Circuit Breaker + LRU Cache guards
// (§4.5).
type ResilienceConfig struct {
	FailureThreshold float64       `yaml:"failure_threshold"`
	CooldownPeriod   time.Duration `yaml:"cooldown_period"`
	MinRequests      int           `yaml:"min_requests"`
}

// PipelineConfig configures orchestrator-level knobs (§6).
type PipelineConfig struct {
	ConfidenceThreshold     float64       `yaml:"confidence_threshold"`
	MaxClarificationAttempts int          `yaml:"max_clarification_attempts"`
	MaxPlanSteps            int           `yaml:"max_plan_steps"`
	MaxSelectedTools        int           `yaml:"max_selected_tools"`
	StepConcurrencyCap      int           `yaml:"step_concurrency_cap"`
	Deadline                time.Duration `yaml:"deadline"`
	TieBreakEpsilon         float64       `yaml:"tie_break_epsilon"`
}

// NotificationsConfig configures the optional Slack approval notifier.
// Empty token disables notification entirely.
type NotificationsConfig struct {
	SlackToken   string `yaml:"slack_token"`
	SlackChannel string `yaml:"slack_channel"`
}

// PolicyConfig points at the Rego bundle backing risk/approval derivation.
type PolicyConfig struct {
	BundlePath string `yaml:"bundle_path"`
}

// ServerConfig configures the admin HTTP surface (healthz/metrics/debug).
type ServerConfig struct {
	AdminPort   string `yaml:"admin_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	AssetService AssetServiceConfig `yaml:"asset_service"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Conversation ConversationConfig `yaml:"conversation"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Policy        PolicyConfig        `yaml:"policy"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// Load reads path, applies environment overrides, defaults missing values,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)
	loadFromEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.AdminPort == "" {
		cfg.Server.AdminPort = "8090"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 30 * time.Second
	}
	if cfg.LLM.MaxModelLen == 0 {
		cfg.LLM.MaxModelLen = 8192
	}
	if cfg.LLM.OutputReserve == 0 {
		cfg.LLM.OutputReserve = 1024
	}
	if cfg.LLM.SafetyMargin == 0 {
		cfg.LLM.SafetyMargin = 256
	}
	if cfg.AssetService.CacheTTL == 0 {
		cfg.AssetService.CacheTTL = time.Hour
	}
	if cfg.AssetService.CacheSize == 0 {
		cfg.AssetService.CacheSize = 256
	}
	if cfg.AssetService.Timeout == 0 {
		cfg.AssetService.Timeout = 5 * time.Second
	}
	if cfg.Conversation.MaxMessages == 0 {
		cfg.Conversation.MaxMessages = 20
	}
	if cfg.Resilience.FailureThreshold == 0 {
		cfg.Resilience.FailureThreshold = 0.5
	}
	if cfg.Resilience.CooldownPeriod == 0 {
		cfg.Resilience.CooldownPeriod = 60 * time.Second
	}
	if cfg.Resilience.MinRequests == 0 {
		cfg.Resilience.MinRequests = 5
	}
	if cfg.Pipeline.ConfidenceThreshold == 0 {
		cfg.Pipeline.ConfidenceThreshold = 0.5
	}
	if cfg.Pipeline.MaxClarificationAttempts == 0 {
		cfg.Pipeline.MaxClarificationAttempts = 3
	}
	if cfg.Pipeline.MaxPlanSteps == 0 {
		cfg.Pipeline.MaxPlanSteps = 25
	}
	if cfg.Pipeline.MaxSelectedTools == 0 {
		cfg.Pipeline.MaxSelectedTools = 8
	}
	if cfg.Pipeline.StepConcurrencyCap == 0 {
		cfg.Pipeline.StepConcurrencyCap = 4
	}
	if cfg.Pipeline.Deadline == 0 {
		cfg.Pipeline.Deadline = 60 * time.Second
	}
	if cfg.Pipeline.TieBreakEpsilon == 0 {
		cfg.Pipeline.TieBreakEpsilon = 0.02
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func loadFromEnv(cfg *Config) {
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("LLM_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.Timeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("LLM_MAX_MODEL_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxModelLen = n
		}
	}
	if v := os.Getenv("LLM_OUTPUT_RESERVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.OutputReserve = n
		}
	}
	if v := os.Getenv("LLM_SAFETY_MARGIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.SafetyMargin = n
		}
	}
	if v := os.Getenv("ASSET_SERVICE_URL"); v != "" {
		cfg.AssetService.URL = v
	}
	if v := os.Getenv("ASSET_CACHE_TTL_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AssetService.CacheTTL = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("ASSET_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AssetService.CacheSize = n
		}
	}
	if v := os.Getenv("CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.ConfidenceThreshold = f
		}
	}
	if v := os.Getenv("MAX_CLARIFICATION_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxClarificationAttempts = n
		}
	}
	if v := os.Getenv("CONVERSATION_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Conversation.MaxMessages = n
		}
	}
	if v := os.Getenv("MAX_PLAN_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxPlanSteps = n
		}
	}
	if v := os.Getenv("MAX_SELECTED_TOOLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.MaxSelectedTools = n
		}
	}
	if v := os.Getenv("STEP_CONCURRENCY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.StepConcurrencyCap = n
		}
	}
	if v := os.Getenv("PIPELINE_DEADLINE_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Deadline = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SLACK_APPROVAL_TOKEN"); v != "" {
		cfg.Notifications.SlackToken = v
	}
	if v := os.Getenv("SLACK_APPROVAL_CHANNEL"); v != "" {
		cfg.Notifications.SlackChannel = v
	}
}

func validate(cfg *Config) error {
	if cfg.LLM.Provider == "" {
		return fmt.Errorf("llm.provider is required")
	}
	switch cfg.LLM.Provider {
	case "anthropic", "bedrock":
	default:
		return fmt.Errorf("llm.provider must be one of anthropic|bedrock, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.LLM.MaxModelLen <= cfg.LLM.OutputReserve+cfg.LLM.SafetyMargin {
		return fmt.Errorf("llm.max_model_len must exceed output_reserve+safety_margin")
	}
	if cfg.Pipeline.ConfidenceThreshold < 0 || cfg.Pipeline.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline.confidence_threshold must be in [0,1]")
	}
	if cfg.Pipeline.MaxClarificationAttempts < 1 {
		return fmt.Errorf("pipeline.max_clarification_attempts must be >= 1")
	}
	if cfg.Pipeline.StepConcurrencyCap < 1 {
		return fmt.Errorf("pipeline.step_concurrency_cap must be >= 1")
	}
	if cfg.Conversation.MaxMessages < 1 {
		return fmt.Errorf("conversation.max_messages must be >= 1")
	}
	if cfg.Catalog.Source != "sql" && cfg.Catalog.Source != "filesystem" {
		return fmt.Errorf("catalog.source must be one of sql|filesystem, got %q", cfg.Catalog.Source)
	}
	return nil
}
