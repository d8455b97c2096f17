// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	AppEnv         string
	LogLevel       slog.Level
	AllowedOrigins []string
	DBPath         string
	Sources        SourceConfig
	Generation     GenerationConfig
	OpenAI         OpenAIConfig
	RateLimit      RateLimitConfig
	Retention      RetentionConfig
}

// SourceConfig points at the prompt templates and sample data files.
type SourceConfig struct {
	TemplatesPath string
	SamplesPath   string
	ContextPath   string
}

// GenerationConfig controls how messages are generated for the trainee.
type GenerationConfig struct {
	EnvironmentID string
	UserID        string
	BatchSize     int
	// NormalizeHTML escapes generated content and converts whitespace for display.
	// When false the content is stored exactly as the model returned it.
	NormalizeHTML bool
}

// OpenAIConfig configures the language model backend.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	MaxOutputTokens int
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
}

// RateLimitConfig bounds trainee requests that reach the language model.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RetentionConfig controls pruning of the exchange journal.
type RetentionConfig struct {
	ExchangeTTL time.Duration
	Interval    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		DBPath:         getEnv("DB_PATH", "./data/phishcoach.db"),
		Sources: SourceConfig{
			TemplatesPath: getEnv("PROMPT_TEMPLATES_PATH", "prompting/prompt_templates.yaml"),
			SamplesPath:   getEnv("MESSAGE_SAMPLES_PATH", "prompting/message_samples.json"),
			ContextPath:   getEnv("MESSAGE_CONTEXT_PATH", "prompting/message_generation_context.json"),
		},
		Generation: GenerationConfig{
			EnvironmentID: getEnv("GENERATION_ENVIRONMENT_ID", "e3"),
			UserID:        getEnv("GENERATION_USER_ID", "u3"),
			BatchSize:     getEnvInt("GENERATION_BATCH_SIZE", 1),
			NormalizeHTML: getEnvBool("CONTENT_HTML_NORMALIZE", true),
		},
		OpenAI: OpenAIConfig{
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			BaseURL:         getEnv("OPENAI_BASE_URL", ""),
			Model:           getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			MaxOutputTokens: getEnvInt("OPENAI_MAX_OUTPUT_TOKENS", 1500),
			MaxRetries:      getEnvInt("OPENAI_MAX_RETRIES", 3),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Retention: RetentionConfig{
			ExchangeTTL: getEnvDuration("EXCHANGE_RETENTION", 7*24*time.Hour),
			Interval:    getEnvDuration("RETENTION_INTERVAL", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Sources.TemplatesPath == "" {
		return fmt.Errorf("PROMPT_TEMPLATES_PATH cannot be empty")
	}
	if c.Generation.BatchSize <= 0 {
		return fmt.Errorf("GENERATION_BATCH_SIZE must be > 0")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.OpenAI.Model == "" {
		return fmt.Errorf("OPENAI_MODEL cannot be empty")
	}
	if c.OpenAI.MaxRetries < 0 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be >= 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Retention.ExchangeTTL <= 0 {
		return fmt.Errorf("EXCHANGE_RETENTION must be > 0")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "" || c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
