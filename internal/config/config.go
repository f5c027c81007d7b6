package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the pcvgate server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Insights InsightsConfig
	PCV      PCVConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// InsightsConfig describes the remote Nexus Dashboard Insights deployment.
type InsightsConfig struct {
	BaseURL     string
	Username    string
	Password    string
	LoginDomain string
	APIPrefix   string
	Timeout     time.Duration
	Insecure    bool
}

// PCVConfig tunes the orchestrator: polling cadence for wait_and_query,
// epoch cache lifetime, and where uploaded change files are staged.
type PCVConfig struct {
	PollInterval    time.Duration
	PollMaxInterval time.Duration
	WaitTimeout     time.Duration
	EpochCacheTTL   time.Duration
	UploadDir       string
}

// defaultAPIPrefix is the telemetry API mount point on Nexus Dashboard.
const defaultAPIPrefix = "/sedgeapi/v1/cisco-nir/api/api/telemetry/v2"

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("PCVGATE_PORT", 8080),
			Env:  envString("PCVGATE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Insights: InsightsConfig{
			BaseURL:     os.Getenv("ND_BASE_URL"),
			Username:    os.Getenv("ND_USERNAME"),
			Password:    os.Getenv("ND_PASSWORD"),
			LoginDomain: envString("ND_LOGIN_DOMAIN", "DefaultAuth"),
			APIPrefix:   envString("ND_API_PREFIX", defaultAPIPrefix),
			Timeout:     envDuration("ND_TIMEOUT", 30*time.Second),
			Insecure:    envBool("ND_INSECURE", false),
		},
		PCV: PCVConfig{
			PollInterval:    envDuration("PCV_POLL_INTERVAL", 2*time.Second),
			PollMaxInterval: envDuration("PCV_POLL_MAX_INTERVAL", 30*time.Second),
			WaitTimeout:     envDuration("PCV_WAIT_TIMEOUT", 20*time.Minute),
			EpochCacheTTL:   envDuration("PCV_EPOCH_CACHE_TTL", 60*time.Second),
			UploadDir:       envString("PCV_UPLOAD_DIR", os.TempDir()),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Insights.BaseURL == "" {
		return fmt.Errorf("ND_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Insights.BaseURL, "http://") && !strings.HasPrefix(c.Insights.BaseURL, "https://") {
		return fmt.Errorf("ND_BASE_URL must start with http:// or https://, got %q", c.Insights.BaseURL)
	}

	if c.Insights.Username == "" {
		return fmt.Errorf("ND_USERNAME is required")
	}
	if c.Insights.Password == "" {
		return fmt.Errorf("ND_PASSWORD is required")
	}

	if c.PCV.PollInterval <= 0 {
		return fmt.Errorf("PCV_POLL_INTERVAL must be positive, got %s", c.PCV.PollInterval)
	}
	if c.PCV.PollMaxInterval < c.PCV.PollInterval {
		return fmt.Errorf("PCV_POLL_MAX_INTERVAL must be >= PCV_POLL_INTERVAL")
	}
	if c.PCV.WaitTimeout <= 0 {
		return fmt.Errorf("PCV_WAIT_TIMEOUT must be positive, got %s", c.PCV.WaitTimeout)
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
