package backend

import (
	"context"
	"errors"
	"fmt"

	"fynace/internal/amqp"
	"fynace/internal/ledger"
	"fynace/internal/ledger/google"
	"fynace/internal/ledger/memory"
	"fynace/internal/log"
	"fynace/internal/payments/mercadopago"
	"fynace/internal/profiles"
	"fynace/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackends builds every backend named by config. On failure whatever
// was already opened is closed again.
func (f *DefaultFactory) CreateBackends(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res      BackendResult
		closers  []func() error
		buildErr error
	)
	defer func() {
		if buildErr != nil {
			for _, c := range closers {
				_ = c()
			}
		}
	}()

	res.Ledgers, buildErr = f.createLedgerStore(ctx, config)
	if buildErr != nil {
		return nil, buildErr
	}

	var closeProfiles func() error
	res.Profiles, closeProfiles, buildErr = f.createProfileStore(config)
	if buildErr != nil {
		return nil, buildErr
	}
	if closeProfiles != nil {
		closers = append(closers, closeProfiles)
	}

	if config.MercadoPagoAccessToken != "" {
		gw, err := mercadopago.New(mercadopago.Config{
			AccessToken:     config.MercadoPagoAccessToken,
			BaseURL:         config.MercadoPagoBaseURL,
			NotificationURL: config.NotificationURL,
		})
		if err != nil {
			buildErr = fmt.Errorf("failed to initialize Mercado Pago client: %w", err)
			return nil, buildErr
		}
		res.Gateway = gw
		f.logger.Info("Initialized Mercado Pago gateway", "base_url", config.MercadoPagoBaseURL)
	} else {
		f.logger.Warn("MERCADOPAGO_ACCESS_TOKEN not set, payment operations are disabled")
	}

	// AMQP is optional: a broker outage at boot only disables notifications.
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without plan notifications", "error", err)
		} else {
			res.Publisher = client
			closers = append(closers, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	res.Cleanup = func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return &res, nil
}

func (f *DefaultFactory) createLedgerStore(ctx context.Context, config Config) (ledger.Store, error) {
	switch config.Ledger {
	case SheetsBackend:
		cli, err := google.New(ctx, google.Config{
			CredentialsJSON: []byte(config.GoogleServiceAccountJSON),
			CredentialsFile: config.GoogleServiceAccountFile,
			MaxRetries:      config.SheetsMaxRetries,
			RetryDelay:      config.SheetsRetryDelay,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets ledger backend",
			"max_retries", config.SheetsMaxRetries,
			"retry_delay", config.SheetsRetryDelay)
		return cli, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory ledger backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s", config.Ledger)
	}
}

func (f *DefaultFactory) createProfileStore(config Config) (profiles.Store, func() error, error) {
	switch config.Profile {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite profile backend", "db_path", config.SQLiteDBPath)
		return repo, repo.Close, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory profile backend")
		return profiles.NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported profile backend: %s", config.Profile)
	}
}
