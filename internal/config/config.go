package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port        string
	CORSOrigins []string

	// Backend selection: memory, sqlite or rest
	DataBackend string

	// Database
	SQLiteDBPath string

	// Hosted data API (rest backend)
	DataAPIURL     string
	DataAPIKey     string
	DataAPIToken   string
	DataAPITimeout time.Duration

	// AMQP cache invalidation fan-out; empty URL disables it
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	InstanceID   string

	// Google Sheets report export; empty spreadsheet ID disables it
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	// OAuth user credentials, the alternative to a service account
	GoogleOAuthClientFile string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenFile  string
	OAuthRedirectPort     string

	// Cache
	CacheMaxEntries    int
	CacheMaxMemoryMB   int
	CacheDefaultTTL    time.Duration
	CacheSweepInterval time.Duration

	// Connectivity probe
	ProbeInterval time.Duration

	// Scheduled reports
	ReportScheduleEnabled bool
	ReportUsers           []string

	// Logging
	LogLevel  string
	LogFormat string
}

var validBackends = []string{"memory", "sqlite", "rest"}

func Load() *Config {
	hostname, _ := os.Hostname()
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finanzas.db"),

		DataAPIURL:     getEnv("DATA_API_URL", ""),
		DataAPIKey:     getEnv("DATA_API_KEY", ""),
		DataAPIToken:   getEnv("DATA_API_TOKEN", ""),
		DataAPITimeout: getEnvDuration("DATA_API_TIMEOUT", 10*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finanzas"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "cache_invalidation"),
		InstanceID:   getEnv("INSTANCE_ID", hostname),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:       getEnv("GOOGLE_SHEET_NAME", "Reports"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		GoogleOAuthClientFile: getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthClientJSON: getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthTokenFile:  getEnv("GOOGLE_OAUTH_TOKEN_FILE", "token.json"),
		OAuthRedirectPort:     getEnv("OAUTH_REDIRECT_PORT", "8085"),

		CacheMaxEntries:    getEnvInt("CACHE_MAX_ENTRIES", 100),
		CacheMaxMemoryMB:   getEnvInt("CACHE_MAX_MEMORY_MB", 50),
		CacheDefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		CacheSweepInterval: getEnvDuration("CACHE_SWEEP_INTERVAL", time.Minute),

		ProbeInterval: getEnvDuration("PROBE_INTERVAL", 30*time.Second),

		ReportScheduleEnabled: getEnvBool("REPORT_SCHEDULE_ENABLED", false),
		ReportUsers:           getEnvList("REPORT_USERS", nil),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == "rest" {
		if c.DataAPIURL == "" {
			errors = append(errors, "DATA_API_URL is required when using rest backend")
		} else if u, err := url.Parse(c.DataAPIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errors = append(errors, fmt.Sprintf("invalid data API URL '%s': must be an http(s) URL", c.DataAPIURL))
		}
		if c.DataAPIKey == "" {
			errors = append(errors, "DATA_API_KEY is required when using rest backend")
		}
		if c.DataAPITimeout <= 0 {
			errors = append(errors, fmt.Sprintf("invalid data API timeout %v: must be positive", c.DataAPITimeout))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when report export is enabled")
		}
		hasFile := c.GoogleCredentialsFile != ""
		if !hasFile && c.GoogleCredentialsJSON == "" && !c.HasOAuthClient() {
			errors = append(errors, "GOOGLE_CREDENTIALS_FILE, GOOGLE_CREDENTIALS_JSON or an OAuth client must be provided for report export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
	}

	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache max entries %d: must be at least 1", c.CacheMaxEntries))
	}
	if c.CacheMaxMemoryMB < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache memory ceiling %dMB: must be at least 1", c.CacheMaxMemoryMB))
	}
	if c.CacheDefaultTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache default TTL %v: must be positive", c.CacheDefaultTTL))
	}
	if c.CacheSweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache sweep interval %v: must be at least 1 second", c.CacheSweepInterval))
	}

	if c.ProbeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at least 1 second", c.ProbeInterval))
	} else if c.ProbeInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid probe interval %v: must be at most 24 hours", c.ProbeInterval))
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// CacheMaxMemoryBytes returns the cache memory ceiling in bytes.
// HasOAuthClient reports whether OAuth user credentials are configured.
func (c *Config) HasOAuthClient() bool {
	return c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != ""
}

// OAuthClientSecret returns the OAuth client secret, inline JSON first.
func (c *Config) OAuthClientSecret() ([]byte, error) {
	if c.GoogleOAuthClientJSON != "" {
		return []byte(c.GoogleOAuthClientJSON), nil
	}
	if c.GoogleOAuthClientFile == "" {
		return nil, fmt.Errorf("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	b, err := os.ReadFile(c.GoogleOAuthClientFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	return b, nil
}

func (c *Config) CacheMaxMemoryBytes() int64 {
	return int64(c.CacheMaxMemoryMB) * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
