package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fynace/internal/log"
)

const (
	BackendMemory = "memory"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"

	WebhookPath = "/pagamentos/webhook"
)

type Config struct {
	// HTTP Server
	Port               string
	BaseURL            string
	RateLimitPerMinute int

	LogLevel string

	// Backend selection
	LedgerBackend  string
	ProfileBackend string

	// Database
	SQLiteDBPath string

	// Google Sheets
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsMaxRetries         int
	SheetsRetryDelay         time.Duration

	// Mercado Pago
	MercadoPagoAccessToken string
	MercadoPagoBaseURL     string

	// Identity
	JWTSecret   string
	JWTAudience string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8000"),
		BaseURL:            strings.TrimRight(getEnv("BASE_URL", "http://localhost:8000"), "/"),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		LedgerBackend:  getEnv("LEDGER_BACKEND", BackendMemory),
		ProfileBackend: getEnv("PROFILE_BACKEND", BackendMemory),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/fynace.db"),

		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
		SheetsMaxRetries:         getEnvInt("SHEETS_MAX_RETRIES", 2),
		SheetsRetryDelay:         getEnvDuration("SHEETS_RETRY_DELAY", 500*time.Millisecond),

		MercadoPagoAccessToken: getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		MercadoPagoBaseURL:     getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTAudience: getEnv("JWT_AUDIENCE", "authenticated"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "fynace"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "plan_changes"),
	}
}

// NotificationURL is where the payment backend posts webhook events.
func (c *Config) NotificationURL() string {
	return c.BaseURL + WebhookPath
}

// PaymentsEnabled reports whether a payment backend is configured.
func (c *Config) PaymentsEnabled() bool {
	return c.MercadoPagoAccessToken != ""
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if err := validateHTTPURL(c.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("invalid BASE_URL '%s': %v", c.BaseURL, err))
	}

	if c.RateLimitPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("invalid rate limit %d: must be at least 1 request per minute", c.RateLimitPerMinute))
	}

	switch c.LedgerBackend {
	case BackendMemory:
	case BackendSheets:
		errs = append(errs, c.validateSheets()...)
	default:
		errs = append(errs, fmt.Sprintf("invalid ledger backend '%s': must be one of [memory sheets]", c.LedgerBackend))
	}

	switch c.ProfileBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			errs = append(errs, "SQLite database path cannot be empty when using sqlite profile backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				errs = append(errs, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid profile backend '%s': must be one of [memory sqlite]", c.ProfileBackend))
	}

	if c.PaymentsEnabled() {
		if err := validateHTTPURL(c.MercadoPagoBaseURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid MERCADOPAGO_BASE_URL '%s': %v", c.MercadoPagoBaseURL, err))
		}
	}

	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, "JWT_SECRET is required to verify bearer tokens")
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			errs = append(errs, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			errs = append(errs, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errs = append(errs, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errs []string
	hasJSON := c.GoogleServiceAccountJSON != ""
	hasFile := c.GoogleServiceAccountFile != ""
	if !hasJSON && !hasFile {
		errs = append(errs, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for sheets backend")
	}
	if !hasJSON && hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			errs = append(errs, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if c.SheetsMaxRetries < 0 || c.SheetsMaxRetries > 10 {
		errs = append(errs, fmt.Sprintf("invalid sheets max retries %d: must be between 0 and 10", c.SheetsMaxRetries))
	}
	if c.SheetsRetryDelay < time.Millisecond || c.SheetsRetryDelay > 30*time.Second {
		errs = append(errs, fmt.Sprintf("invalid sheets retry delay %v: must be between 1ms and 30s", c.SheetsRetryDelay))
	}
	return errs
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
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
		if i, err := strconv.Atoi(value); err == nil {
			return i
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
