package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the swing analysis server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	AI        AIConfig
	Frames    FramesConfig
	Analysis  AnalysisConfig
	Recovery  RecoveryConfig
	Queue     QueueConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	LogLevel           string
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	SQLitePath      string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AIConfig struct {
	Provider          string
	FallbackProvider  string
	InferenceTimeout  time.Duration
	MaxTokens         int
	RequestsPerSecond float64
	Burst             int
	Ollama            OllamaConfig
	VLLM              VLLMConfig
	OpenAI            OpenAIConfig
	Anthropic         AnthropicConfig
	Gemini            GeminiConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type FramesConfig struct {
	FetchTimeout time.Duration
	FetchRetries int
	MaxBytes     int64
}

type AnalysisConfig struct {
	MaxImagesPerCall int
	RunTimeout       time.Duration
	PromptsDir       string
}

type RecoveryConfig struct {
	MinRetryInterval time.Duration
}

type QueueConfig struct {
	Enabled     bool
	Key         string
	PollTimeout time.Duration
}

type TelemetryConfig struct {
	TracingEnabled bool
	OTLPEndpoint   string
	MetricsEnabled bool
	ServiceName    string
}

// MaxImagesCeiling is the largest batch size any supported provider accepts.
const MaxImagesCeiling = 20

var validProviders = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
	"gemini":    true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("SWING_PORT", 8080),
			Env:                envString("SWING_ENV", "development"),
			LogLevel:           envString("LOG_LEVEL", "info"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Database: DatabaseConfig{
			Driver:          envString("STORE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			SQLitePath:      os.Getenv("SQLITE_PATH"),
			MigrationsDir:   envString("MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			Provider:          os.Getenv("AI_PROVIDER"),
			FallbackProvider:  os.Getenv("AI_FALLBACK_PROVIDER"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			MaxTokens:         envInt("AI_MAX_TOKENS", 1500),
			RequestsPerSecond: envFloat("AI_REQUESTS_PER_SECOND", 1.0),
			Burst:             envInt("AI_BURST", 1),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llava"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
			Gemini: GeminiConfig{
				APIKey: os.Getenv("GEMINI_API_KEY"),
				Model:  envString("GEMINI_MODEL", "gemini-2.5-flash"),
			},
		},
		Frames: FramesConfig{
			FetchTimeout: envDuration("FRAME_FETCH_TIMEOUT", 10*time.Second),
			FetchRetries: envInt("FRAME_FETCH_RETRIES", 2),
			MaxBytes:     int64(envInt("FRAME_MAX_BYTES", 10<<20)),
		},
		Analysis: AnalysisConfig{
			MaxImagesPerCall: envInt("ANALYSIS_MAX_IMAGES_PER_CALL", 10),
			RunTimeout:       envDuration("ANALYSIS_RUN_TIMEOUT", 10*time.Minute),
			PromptsDir:       os.Getenv("PROMPTS_DIR"),
		},
		Recovery: RecoveryConfig{
			MinRetryInterval: envDuration("RECOVERY_MIN_RETRY_INTERVAL", 45*time.Second),
		},
		Queue: QueueConfig{
			Enabled:     envBool("QUEUE_ENABLED", false),
			Key:         envString("QUEUE_KEY", "swing:triggers"),
			PollTimeout: envDuration("QUEUE_POLL_TIMEOUT", 5*time.Second),
		},
		Telemetry: TelemetryConfig{
			TracingEnabled: envBool("TRACING_ENABLED", false),
			OTLPEndpoint:   envString("OTLP_ENDPOINT", "localhost:4318"),
			MetricsEnabled: envBool("METRICS_ENABLED", true),
			ServiceName:    envString("SERVICE_NAME", "swing-analysis"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite; got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is postgres")
	}
	if c.Database.Driver == "sqlite" && c.Database.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is sqlite")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of ollama, vllm, openai, anthropic, gemini; got %q", c.AI.Provider)
	}
	if c.AI.FallbackProvider != "" {
		if !validProviders[c.AI.FallbackProvider] {
			return fmt.Errorf("AI_FALLBACK_PROVIDER must be one of ollama, vllm, openai, anthropic, gemini; got %q", c.AI.FallbackProvider)
		}
		if c.AI.FallbackProvider == c.AI.Provider {
			return fmt.Errorf("AI_FALLBACK_PROVIDER must differ from AI_PROVIDER")
		}
	}
	for _, p := range []string{c.AI.Provider, c.AI.FallbackProvider} {
		if err := c.AI.requireKey(p); err != nil {
			return err
		}
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("AI_MAX_TOKENS must be positive, got %d", c.AI.MaxTokens)
	}
	if c.AI.RequestsPerSecond <= 0 {
		return fmt.Errorf("AI_REQUESTS_PER_SECOND must be positive, got %v", c.AI.RequestsPerSecond)
	}

	if c.Analysis.MaxImagesPerCall < 1 || c.Analysis.MaxImagesPerCall > MaxImagesCeiling {
		return fmt.Errorf("ANALYSIS_MAX_IMAGES_PER_CALL must be between 1 and %d, got %d",
			MaxImagesCeiling, c.Analysis.MaxImagesPerCall)
	}

	if c.Recovery.MinRetryInterval <= 0 {
		return fmt.Errorf("RECOVERY_MIN_RETRY_INTERVAL must be positive, got %s", c.Recovery.MinRetryInterval)
	}

	if c.Frames.FetchRetries < 0 {
		return fmt.Errorf("FRAME_FETCH_RETRIES must not be negative, got %d", c.Frames.FetchRetries)
	}

	if c.Queue.Enabled && strings.TrimSpace(c.Queue.Key) == "" {
		return fmt.Errorf("QUEUE_KEY is required when QUEUE_ENABLED is true")
	}

	return nil
}

func (a AIConfig) requireKey(provider string) error {
	switch provider {
	case "openai":
		if a.OpenAI.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when openai is configured")
		}
	case "anthropic":
		if a.Anthropic.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when anthropic is configured")
		}
	case "gemini":
		if a.Gemini.APIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when gemini is configured")
		}
	case "vllm":
		if a.VLLM.Model == "" {
			return fmt.Errorf("VLLM_MODEL is required when vllm is configured")
		}
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
