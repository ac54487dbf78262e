package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ServerAddr string

	// Browser pool
	Headless       bool
	MaxConcurrency int
	NavTimeout     time.Duration
	MaxRetries     int
	ChromeBin      string

	// Session / proxy rotation
	ProxyEndpoints   []string
	ProxyUsername    string
	ProxyPassword    string
	RotationInterval time.Duration
	RequestTimeout   time.Duration

	// Scraping
	DefaultMaxPages int
	RateLimitMs     int
	CSVAuditPath    string
	MinConfidence   float64

	// Enrichment
	CompanyGraphAPIKey string
	FundingDBAPIKey    string
	ProNetworkAPIKey   string
	EnrichBatchSize    int
	EnrichBatchDelay   time.Duration
	EnrichTimeout      time.Duration

	// Scheduling
	AutoSync        bool
	SyncIntervalMin int
	RetentionDays   int

	LogLevel string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "bizharvest"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "bizharvest123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ServerAddr: getEnv("SERVER_ADDR", ":8080"),

		Headless:       getEnvBool("HEADLESS", true),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		NavTimeout:     getEnvDuration("NAV_TIMEOUT_MS", 60000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		ProxyEndpoints:   getEnvList("PROXY_ENDPOINTS"),
		ProxyUsername:    getEnv("PROXY_USERNAME", ""),
		ProxyPassword:    getEnv("PROXY_PASSWORD", ""),
		RotationInterval: getEnvDuration("ROTATION_INTERVAL_MS", 300000),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT_MS", 30000),

		DefaultMaxPages: getEnvInt("MAX_PAGES", 5),
		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 2000),
		CSVAuditPath:    getEnv("CSV_AUDIT_PATH", ""),
		MinConfidence:   getEnvFloat("MIN_CONFIDENCE", 0.2),

		CompanyGraphAPIKey: getEnv("COMPANY_GRAPH_API_KEY", ""),
		FundingDBAPIKey:    getEnv("FUNDING_DB_API_KEY", ""),
		ProNetworkAPIKey:   getEnv("PRO_NETWORK_API_KEY", ""),
		EnrichBatchSize:    getEnvInt("ENRICH_BATCH_SIZE", 10),
		EnrichBatchDelay:   getEnvDuration("ENRICH_BATCH_DELAY_MS", 2000),
		EnrichTimeout:      getEnvDuration("ENRICH_TIMEOUT_MS", 10000),

		AutoSync:        getEnvBool("AUTO_SYNC", false),
		SyncIntervalMin: getEnvInt("SYNC_INTERVAL_MIN", 360),
		RetentionDays:   getEnvInt("RETENTION_DAYS", 90),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks that configured values are usable. Startup is the only
// place configuration problems are fatal.
func (c *Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("config: MAX_CONCURRENCY must be >= 1, got %d", c.MaxConcurrency)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("config: MAX_RETRIES must be >= 1, got %d", c.MaxRetries)
	}
	if c.DefaultMaxPages < 1 {
		return fmt.Errorf("config: MAX_PAGES must be >= 1, got %d", c.DefaultMaxPages)
	}
	if c.RotationInterval < time.Second {
		return fmt.Errorf("config: ROTATION_INTERVAL_MS must be >= 1000, got %v", c.RotationInterval)
	}
	if c.EnrichBatchSize < 1 {
		return fmt.Errorf("config: ENRICH_BATCH_SIZE must be >= 1, got %d", c.EnrichBatchSize)
	}
	if c.SyncIntervalMin < 1 {
		return fmt.Errorf("config: SYNC_INTERVAL_MIN must be >= 1, got %d", c.SyncIntervalMin)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: MIN_CONFIDENCE must be in [0,1], got %v", c.MinConfidence)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads a millisecond count from the environment.
func getEnvDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}

// getEnvList reads a comma-separated list, dropping empty entries.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
