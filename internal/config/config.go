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
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Output   OutputConfig
	Clean    CleanConfig
	Contact  ContactConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type ScraperConfig struct {
	Keyword      string
	BaseURL      string
	MaxPages     int
	MaxPerPage   int
	SettleDelay  time.Duration
	RateLimitMin time.Duration
	RateLimitMax time.Duration
	MaxRetries   int
	OperatorName string
	SellerCache  int
}

type BrowserConfig struct {
	Engine         string
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	UserAgent      string
	ProxyServer    string
}

type OutputConfig struct {
	Path    string
	Columns []string
}

type CleanConfig struct {
	KeyColumn    string
	FilterColumn string
	FilterValue  string
}

type ContactConfig struct {
	Enabled     bool
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Timeout     time.Duration
	CacheSize   int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PollInterval time.Duration
	BatchSize    int
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the optional .env file and then builds the configuration from
// the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Scraper: ScraperConfig{
			Keyword:      getEnvOrDefault("SCRAPER_KEYWORD", ""),
			BaseURL:      getEnvOrDefault("SCRAPER_BASE_URL", "https://www.amazon.co.jp"),
			MaxPages:     getIntOrDefault("SCRAPER_MAX_PAGES", 5),
			MaxPerPage:   getIntOrDefault("SCRAPER_MAX_PER_PAGE", 60),
			SettleDelay:  getDurationOrDefault("SCRAPER_SETTLE_DELAY", 3*time.Second),
			RateLimitMin: getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", time.Second),
			RateLimitMax: getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", 3*time.Second),
			MaxRetries:   getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			OperatorName: getEnvOrDefault("SCRAPER_OPERATOR_NAME", "Amazon.co.jp"),
			SellerCache:  getIntOrDefault("SCRAPER_SELLER_CACHE", 256),
		},
		Browser: BrowserConfig{
			Engine:         getEnvOrDefault("BROWSER_ENGINE", "playwright"),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ja-JP,ja;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Tokyo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ja-JP"),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Output: OutputConfig{
			Path:    getEnvOrDefault("OUTPUT_PATH", "amazon_seller_list.csv"),
			Columns: getStringSliceOrDefault("OUTPUT_COLUMNS", nil),
		},
		Clean: CleanConfig{
			KeyColumn:    getEnvOrDefault("CLEAN_KEY_COLUMN", "company_name"),
			FilterColumn: getEnvOrDefault("CLEAN_FILTER_COLUMN", "seller_country"),
			FilterValue:  getEnvOrDefault("CLEAN_FILTER_VALUE", "JP"),
		},
		Contact: ContactConfig{
			Enabled:     getBoolOrDefault("CONTACT_INFERENCE", false),
			APIKey:      getEnvOrDefault("OPENAI_API_KEY", ""),
			BaseURL:     getEnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:       getEnvOrDefault("OPENAI_MODEL", "gpt-3.5-turbo"),
			Temperature: getFloatOrDefault("OPENAI_TEMPERATURE", 0.3),
			Timeout:     getDurationOrDefault("OPENAI_TIMEOUT", 30*time.Second),
			CacheSize:   getIntOrDefault("CONTACT_CACHE_SIZE", 512),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "seller_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getIntOrDefault("RELAY_BATCH_SIZE", 100),
		},
		Server: ServerConfig{
			Addr:            getEnvOrDefault("STATUS_ADDR", ""),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.MaxPages < 0 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must not be negative")
	}

	if c.Scraper.MaxPerPage < 0 {
		return fmt.Errorf("SCRAPER_MAX_PER_PAGE must not be negative")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	switch c.Browser.Engine {
	case "playwright", "static":
	default:
		return fmt.Errorf("BROWSER_ENGINE must be playwright or static, got %q", c.Browser.Engine)
	}

	if c.Output.Path == "" {
		return fmt.Errorf("OUTPUT_PATH is required")
	}

	if c.Contact.Enabled && c.Contact.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when CONTACT_INFERENCE is enabled")
	}

	return nil
}

// DSN returns the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
