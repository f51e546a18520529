package backend

import (
	"fmt"
	"time"

	"fynace/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Ledger  BackendType
	Profile BackendType

	// SQLite specific
	SQLiteDBPath string

	// Google Sheets specific
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	SheetsMaxRetries         int
	SheetsRetryDelay         time.Duration

	// Mercado Pago, optional
	MercadoPagoAccessToken string
	MercadoPagoBaseURL     string
	NotificationURL        string

	// AMQP, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Ledger:  BackendType(appConfig.LedgerBackend),
		Profile: BackendType(appConfig.ProfileBackend),

		SQLiteDBPath: appConfig.SQLiteDBPath,

		GoogleServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile: appConfig.GoogleServiceAccountFile,
		SheetsMaxRetries:         appConfig.SheetsMaxRetries,
		SheetsRetryDelay:         appConfig.SheetsRetryDelay,

		MercadoPagoAccessToken: appConfig.MercadoPagoAccessToken,
		MercadoPagoBaseURL:     appConfig.MercadoPagoBaseURL,
		NotificationURL:        appConfig.NotificationURL(),

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Ledger.ValidLedger() {
		return fmt.Errorf("invalid ledger backend: %s", c.Ledger)
	}
	if !c.Profile.ValidProfile() {
		return fmt.Errorf("invalid profile backend: %s", c.Profile)
	}

	if c.Ledger == SheetsBackend && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		return fmt.Errorf("service account credentials are required for sheets backend")
	}
	if c.Profile == SQLiteBackend && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	// Payments and AMQP are optional, so we don't validate them
	return nil
}
