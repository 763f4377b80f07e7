package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	APIBaseURL        string
	APITimeoutSeconds int
	APIRateLimitRPS   float64
	APIRateLimitBurst int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	CatalogTTLSeconds int
	DatabaseURL       string
	SessionFile       string
	LogLevel          string
}

// Load reads configuration from the environment, after an optional .env
// file in the working directory. Environment values win over .env.
func Load() Config {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("API_BASE_URL", "")
	v.SetDefault("API_TIMEOUT_SECONDS", 20)
	v.SetDefault("API_RATE_LIMIT_RPS", 10)
	v.SetDefault("API_RATE_LIMIT_BURST", 5)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CATALOG_TTL_SECONDS", 60)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SESSION_FILE", defaultSessionFile())
	v.SetDefault("LOG_LEVEL", "info")
	v.AutomaticEnv()

	timeout := v.GetInt("API_TIMEOUT_SECONDS")
	if timeout < 1 {
		timeout = 20
	}
	ttl := v.GetInt("CATALOG_TTL_SECONDS")
	if ttl < 0 {
		ttl = 60
	}
	burst := v.GetInt("API_RATE_LIMIT_BURST")
	if burst < 1 {
		burst = 1
	}

	return Config{
		APIBaseURL:        strings.TrimRight(strings.TrimSpace(v.GetString("API_BASE_URL")), "/"),
		APITimeoutSeconds: timeout,
		APIRateLimitRPS:   v.GetFloat64("API_RATE_LIMIT_RPS"),
		APIRateLimitBurst: burst,
		RedisAddr:         strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:     v.GetString("REDIS_PASSWORD"),
		RedisDB:           v.GetInt("REDIS_DB"),
		CatalogTTLSeconds: ttl,
		DatabaseURL:       strings.TrimSpace(v.GetString("DATABASE_URL")),
		SessionFile:       v.GetString("SESSION_FILE"),
		LogLevel:          strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
	}
}

func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

func (c Config) CatalogTTL() time.Duration {
	return time.Duration(c.CatalogTTLSeconds) * time.Second
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "smidi", "session.json")
}
