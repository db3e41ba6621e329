package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTP     HTTPConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	OpenAI   OpenAIConfig
	Pipeline PipelineConfig
	Review   ReviewConfig
	Logging  LoggingConfig
}

type HTTPConfig struct {
	Addr string
}

type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey         string
	Model          string
	EnableFallback bool
}

type PipelineConfig struct {
	SourceLanguage string
	BatchSize      int
	MaxAttempts    int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration
	BatchDelay     time.Duration
	LanguageDelay  time.Duration
	JobBudget      time.Duration
}

// ReviewConfig carries the classifier word lists. They are configuration,
// not code: extending a list must never require a control-flow change.
type ReviewConfig struct {
	SensitiveTerms       []string
	JustificationPhrases []string
	WarningPhrases       []string
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnvInt("POSTGRES_PORT", 5432),
			User:            getEnv("POSTGRES_USER", "translations"),
			Password:        getEnv("POSTGRES_PASSWORD", ""),
			Database:        getEnv("POSTGRES_DB", "translations"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("POSTGRES_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			EnableFallback: getEnvBool("OPENAI_ENABLE_FALLBACK", true),
		},
		Pipeline: PipelineConfig{
			SourceLanguage: getEnv("SOURCE_LANGUAGE", "en"),
			BatchSize:      getEnvInt("PIPELINE_BATCH_SIZE", 50),
			MaxAttempts:    getEnvInt("PIPELINE_MAX_ATTEMPTS", 5),
			BaseDelay:      getEnvDuration("PIPELINE_BASE_DELAY", 2*time.Second),
			RateLimitDelay: getEnvDuration("PIPELINE_RATE_LIMIT_DELAY", 25*time.Second),
			BatchDelay:     getEnvDuration("PIPELINE_BATCH_DELAY", 2*time.Second),
			LanguageDelay:  getEnvDuration("PIPELINE_LANGUAGE_DELAY", 5*time.Second),
			JobBudget:      getEnvDuration("PIPELINE_JOB_BUDGET", 4*time.Minute),
		},
		Review: ReviewConfig{
			SensitiveTerms: parseCommaSeparated(getEnv("REVIEW_SENSITIVE_TERMS",
				"lord,spirit,word,grace,covenant,ark,gentile")),
			JustificationPhrases: parseCommaSeparated(getEnv("REVIEW_JUSTIFICATION_PHRASES",
				"consistent,followed,glossary,per the style guide,as established")),
			WarningPhrases: parseCommaSeparated(getEnv("REVIEW_WARNING_PHRASES",
				"untranslated,ambiguous,unsure,unclear,could not,uncertain")),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("PIPELINE_BATCH_SIZE must be positive")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("PIPELINE_MAX_ATTEMPTS must be positive")
	}
	if c.Pipeline.SourceLanguage == "" {
		return fmt.Errorf("SOURCE_LANGUAGE is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
