package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	StoragePath    string
	StorageBaseURL string

	FluxAPIURL string
	BFLAPIKey  string

	PromptProvider    string
	EnhancementActive bool
	GeminiAPIKey      string
	GeminiModel       string
	GeminiBaseURL     string
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string

	MaxChainLength int

	JobSoftTimeLimit time.Duration
	JobHardTimeLimit time.Duration

	GeoIPDBPath string

	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
	RateLimitPerMin   int
	SubmitLimitPerDay int
	AllowedOrigins    []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/media"),

		FluxAPIURL: getEnv("FLUX_API_URL", "https://api.bfl.ai/v1/flux-kontext-pro"),
		BFLAPIKey:  os.Getenv("BFL_API_KEY"),

		PromptProvider:    getEnv("PROMPT_PROVIDER", "gemini"),
		EnhancementActive: getEnvBool("ENABLE_PROMPT_ENHANCEMENT", true),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiBaseURL:     getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),

		MaxChainLength: getEnvInt("MAX_CHAIN_LENGTH", 5),

		JobSoftTimeLimit: time.Second * time.Duration(getEnvInt("JOB_SOFT_TIME_LIMIT_SECONDS", 600)),
		JobHardTimeLimit: time.Second * time.Duration(getEnvInt("JOB_HARD_TIME_LIMIT_SECONDS", 660)),

		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_STATUS_CHECKS_PER_MINUTE", 30),
		SubmitLimitPerDay: getEnvInt("RATE_LIMIT_DAILY_IMAGES", 3),
	}

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.MaxChainLength < 1 {
		return nil, fmt.Errorf("MAX_CHAIN_LENGTH must be at least 1")
	}

	if cfg.JobHardTimeLimit < cfg.JobSoftTimeLimit {
		return nil, fmt.Errorf("JOB_HARD_TIME_LIMIT_SECONDS must not be below the soft limit")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}
