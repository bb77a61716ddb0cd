package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig  ServerConfig  `json:"server"`
	AuthConfig    AuthConfig    `json:"auth"`
	LoggingConfig LoggingConfig `json:"logging"`
	RedisConfig   RedisConfig   `json:"redis"`
	StakingConfig StakingConfig `json:"staking"`
	MarketConfig  MarketConfig  `json:"market"`
	NewsConfig    NewsConfig    `json:"news"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	RateLimitPerMin int    `json:"rate_limit_per_min"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MinPasswordLength    int           `json:"min_password_length"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// RedisConfig holds Redis configuration for caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// StakingConfig holds staking reward sweep configuration
type StakingConfig struct {
	SweepInterval time.Duration `json:"sweep_interval"`
	MaxConcurrent int           `json:"max_concurrent"`
	SweepTimeout  time.Duration `json:"sweep_timeout"`
}

// MarketConfig holds the live price feed configuration
type MarketConfig struct {
	Enabled   bool     `json:"enabled"`
	StreamURL string   `json:"stream_url"`
	Symbols   []string `json:"symbols"`
}

// NewsConfig holds the news aggregator configuration
type NewsConfig struct {
	Enabled      bool          `json:"enabled"`
	FeedURLs     []string      `json:"feed_urls"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxItems     int           `json:"max_items"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.RateLimitPerMin = getEnvIntOrDefault("SERVER_RATE_LIMIT_PER_MIN", 120)

	// Auth config
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_DURATION", 7*24*time.Hour)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", 8)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Staking config
	cfg.StakingConfig.SweepInterval = getEnvDurationOrDefault("STAKING_SWEEP_INTERVAL", time.Hour)
	cfg.StakingConfig.MaxConcurrent = getEnvIntOrDefault("STAKING_SWEEP_MAX_CONCURRENT", 5)
	cfg.StakingConfig.SweepTimeout = getEnvDurationOrDefault("STAKING_SWEEP_TIMEOUT", 5*time.Minute)

	// Market config
	cfg.MarketConfig.Enabled = getEnvOrDefault("MARKET_FEED_ENABLED", "true") == "true"
	cfg.MarketConfig.StreamURL = getEnvOrDefault("MARKET_STREAM_URL", "wss://stream.binance.com:9443")
	if symbols := getEnvOrDefault("MARKET_SYMBOLS", ""); symbols != "" {
		cfg.MarketConfig.Symbols = splitAndTrim(symbols)
	}
	if len(cfg.MarketConfig.Symbols) == 0 {
		cfg.MarketConfig.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ADAUSDT", "DOTUSDT"}
	}

	// News config
	cfg.NewsConfig.Enabled = getEnvOrDefault("NEWS_ENABLED", "false") == "true"
	if feeds := getEnvOrDefault("NEWS_FEED_URLS", ""); feeds != "" {
		cfg.NewsConfig.FeedURLs = splitAndTrim(feeds)
	}
	cfg.NewsConfig.PollInterval = getEnvDurationOrDefault("NEWS_POLL_INTERVAL", 10*time.Minute)
	cfg.NewsConfig.MaxItems = getEnvIntOrDefault("NEWS_MAX_ITEMS", 50)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
