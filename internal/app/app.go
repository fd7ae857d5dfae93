// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jobrunner/blobloader/internal/adapters/metrics"
	"github.com/jobrunner/blobloader/internal/adapters/mongo"
	"github.com/jobrunner/blobloader/internal/adapters/storage"
	"github.com/jobrunner/blobloader/internal/adapters/tabular"
	"github.com/jobrunner/blobloader/internal/adapters/vault"
	"github.com/jobrunner/blobloader/internal/application"
	"github.com/jobrunner/blobloader/internal/config"
	"github.com/jobrunner/blobloader/internal/domain"
	"github.com/jobrunner/blobloader/internal/ports/output"
)

// Mode selects which components New wires.
type Mode int

const (
	// ModeLoad wires storage and, unless dry-running, the database.
	ModeLoad Mode = iota
	// ModeResolve wires storage only.
	ModeResolve
	// ModeQuery wires the database only.
	ModeQuery
)

// App holds all application components.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      output.MetricsCollector
	Storage      output.ObjectStorage
	Pipeline     *application.Pipeline
	QueryService *application.QueryService

	collection *mongo.Collection
}

// Dependencies lets callers replace adapters that talk to external services.
// Nil fields are built from the configuration.
type Dependencies struct {
	Storage output.ObjectStorage
	Secrets output.SecretStore
	Sink    output.DocumentSink
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, mode Mode) (*App, error) {
	return NewWithDependencies(ctx, cfg, logger, mode, Dependencies{})
}

// NewWithDependencies is New with adapter overrides.
func NewWithDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger, mode Mode, deps Dependencies) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	if cfg.Metrics.PushgatewayURL != "" {
		app.Metrics = metrics.NewCollector("blobloader", cfg.Metrics.PushgatewayURL, cfg.Metrics.Job)
	} else {
		app.Metrics = &output.NoOpMetrics{}
	}

	if mode == ModeQuery {
		if err := app.connectDatabase(ctx); err != nil {
			return nil, err
		}
		app.QueryService = application.NewQueryService(app.collection, logger)
		return app, nil
	}

	lp, err := domain.UnpackPath(cfg.Files)
	if err != nil {
		return nil, err
	}

	// Initialize storage adapter
	app.Storage = deps.Storage
	if app.Storage == nil {
		app.Storage, err = initStorage(ctx, cfg, lp.Account, deps.Secrets)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
	}

	resolver := application.NewResolver(app.Storage, app.Metrics, logger)
	dryRun := mode == ModeResolve || cfg.DryRun
	if dryRun {
		app.Pipeline = application.NewPipeline(resolver, nil, nil, app.Metrics, logger, true)
		return app, nil
	}

	sink := deps.Sink
	if sink == nil {
		if err := app.connectDatabase(ctx); err != nil {
			return nil, err
		}
		sink = app.collection
	}

	comma, err := cfg.CSV.Comma()
	if err != nil {
		return nil, err
	}

	fetcher := application.NewFetcher(app.Storage, app.Metrics, logger, application.FetcherConfig{
		Root:           cfg.DownloadDir,
		Workers:        cfg.Fetch.Workers,
		OnSizeMismatch: application.MismatchPolicy(cfg.Fetch.OnSizeMismatch),
	})
	loader := application.NewLoader(
		tabular.NewCSVSource(tabular.CSVConfig{Comma: comma, RawValues: cfg.CSV.RawValues}),
		sink,
		app.Metrics,
		logger,
		cfg.DownloadDir,
	)
	app.Pipeline = application.NewPipeline(resolver, fetcher, loader, app.Metrics, logger, false)

	return app, nil
}

// Close pushes metrics and disconnects from the database.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Metrics.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.collection != nil {
		if err := a.collection.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disconnecting from mongodb: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) connectDatabase(ctx context.Context) error {
	m := a.Config.Mongo
	collection, err := mongo.Connect(ctx, mongo.Config{
		Host:           m.IP,
		Port:           m.Port,
		Username:       m.Username,
		Password:       m.Password,
		Database:       m.Database,
		Collection:     m.Collection,
		ConnectTimeout: m.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	a.collection = collection
	a.Logger.Info("connected to mongodb", "host", m.IP, "db", m.Database, "collection", m.Collection)
	return nil
}

// initStorage initializes the storage adapter for the account of the logical path.
func initStorage(ctx context.Context, cfg *config.Config, account string, secrets output.SecretStore) (output.ObjectStorage, error) {
	switch output.StorageType(cfg.Storage.Type) {
	case output.StorageTypeLocal:
		return storage.NewLocalStorage(filepath.Join(cfg.Storage.LocalPath, account)), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
		})

	case output.StorageTypeAzure:
		azureCfg := storage.AzureConfig{
			AccountName:      account,
			AccountKey:       cfg.Storage.Azure.AccountKey,
			ConnectionString: cfg.Storage.Azure.ConnectionString,
			ServiceURL:       cfg.Storage.Azure.ServiceURL,
		}
		if azureCfg.AccountKey == "" && azureCfg.ConnectionString == "" {
			key, err := accountKey(ctx, cfg.Vault, account, secrets)
			if err != nil {
				return nil, err
			}
			azureCfg.AccountKey = key
		}
		return storage.NewAzureStorage(azureCfg)

	default:
		return nil, &domain.ConfigError{Field: "storage.type", Message: fmt.Sprintf("unknown storage type: %s", cfg.Storage.Type)}
	}
}

// accountKey reads the storage key stored under the account name.
func accountKey(ctx context.Context, cfg config.VaultConfig, account string, secrets output.SecretStore) (string, error) {
	if secrets == nil {
		kv, err := vault.NewKeyVault(vault.Config{
			TenantID:     cfg.TenantID,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Account:      cfg.Account,
		})
		if err != nil {
			return "", err
		}
		secrets = kv
	}

	key, err := secrets.GetSecret(ctx, account)
	if err != nil {
		return "", fmt.Errorf("fetching storage key: %w", err)
	}
	return key, nil
}
